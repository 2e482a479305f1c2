package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalHub/internal/domain"
	"signalHub/internal/entitlement"
	"signalHub/internal/metrics"
	"signalHub/internal/news"
	"signalHub/internal/ports"
)

// Store is the persistence the broadcast engine needs.
type Store interface {
	ports.SignalRepository
	ports.SubscriptionRepository
	ports.DeliveryRepository
	ports.TaskRepository
}

// Waker is notified when new tasks may be due earlier than the armed timer.
type Waker interface {
	Wake()
}

// ServiceConfig wires the broadcast service.
type ServiceConfig struct {
	Store   Store
	Table   *entitlement.Table
	Stream  ports.SignalStream // Optional
	Waker   Waker              // Optional
	Logger  ports.Logger
	Metrics ports.Metrics // Optional
	Now     func() time.Time
}

// Service turns candidates into stored signals and schedules their fan-out.
type Service struct {
	store   Store
	table   *entitlement.Table
	stream  ports.SignalStream
	waker   Waker
	logger  ports.Logger
	metrics ports.Metrics
	now     func() time.Time
}

// NewService creates a broadcast service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("tier table is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	s := &Service{
		store:   cfg.Store,
		table:   cfg.Table,
		stream:  cfg.Stream,
		waker:   cfg.Waker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

func validateCandidate(c *domain.SignalCandidate) error {
	switch {
	case c == nil:
		return fmt.Errorf("candidate is nil: %w", ports.ErrInvalidRequest)
	case c.Symbol == "":
		return fmt.Errorf("candidate symbol is empty: %w", ports.ErrInvalidRequest)
	case c.Direction != domain.Buy && c.Direction != domain.Sell:
		return fmt.Errorf("candidate direction %q: %w", c.Direction, ports.ErrInvalidRequest)
	case len(c.TakeProfits) == 0 || len(c.TakeProfits) > 3:
		return fmt.Errorf("candidate has %d take profits: %w", len(c.TakeProfits), ports.ErrInvalidRequest)
	case c.Confidence < 0 || c.Confidence > 100:
		return fmt.Errorf("candidate confidence %d: %w", c.Confidence, ports.ErrInvalidRequest)
	}
	return nil
}

// Publish stores the candidate as a signal, fixing its priority and minimum tier,
// and enqueues a delivery task for every eligible subscriber and tier channel.
func (s *Service) Publish(ctx context.Context, candidate *domain.SignalCandidate, bindingID int64) (*domain.Signal, error) {
	if err := validateCandidate(candidate); err != nil {
		return nil, err
	}

	priority := entitlement.PriorityFor(candidate)
	minTier, ok := s.table.MinTierFor(priority)
	if !ok {
		// Stored with an empty minimum tier, which no tier satisfies.
		s.logger.Warn(ctx, "No tier mapped for priority; signal will not be delivered", map[string]interface{}{
			"priority": priority,
			"symbol":   candidate.Symbol,
		})
	}

	sig := &domain.Signal{
		Ref:          uuid.NewString(),
		BindingID:    bindingID,
		Symbol:       candidate.Symbol,
		Direction:    candidate.Direction,
		Entry:        candidate.Entry,
		StopLoss:     candidate.StopLoss,
		TakeProfits:  append([]float64(nil), candidate.TakeProfits...),
		RiskFraction: candidate.RiskFraction,
		Confidence:   candidate.Confidence,
		Timeframe:    candidate.Timeframe,
		Priority:     priority,
		MinTier:      minTier,
		Source:       candidate.Source,
		Analysis:     candidate.Analysis,
		Status:       domain.StatusActive,
		CreatedAt:    s.now(),
	}
	if _, err := s.store.CreateSignal(ctx, sig); err != nil {
		s.metrics.RecordError("signal_store")
		return nil, fmt.Errorf("failed to store signal: %w", err)
	}
	s.metrics.RecordSignal(string(sig.Source), string(sig.Priority))

	queued, err := s.schedule(ctx, sig)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to schedule signal deliveries", map[string]interface{}{"signalID": sig.ID})
	}

	s.logger.Info(ctx, "Signal published", map[string]interface{}{
		"signalID":   sig.ID,
		"ref":        sig.Ref,
		"symbol":     sig.Symbol,
		"direction":  sig.Direction,
		"confidence": sig.Confidence,
		"priority":   sig.Priority,
		"minTier":    sig.MinTier,
		"source":     sig.Source,
		"queued":     queued,
	})

	if s.stream != nil {
		if err := s.stream.PublishSignal(ctx, sig); err != nil {
			s.metrics.RecordError("stream")
			s.logger.Warn(ctx, "Failed to publish signal event", map[string]interface{}{"signalID": sig.ID, "error": err.Error()})
		}
	}
	s.wake()
	return sig, nil
}

// schedule enqueues the initial delivery tasks for sig. Enqueueing is idempotent per subscriber.
func (s *Service) schedule(ctx context.Context, sig *domain.Signal) (int, error) {
	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	now := s.now()
	queued := 0

	for _, sub := range subs {
		tier, ok := s.table.Tier(sub.Tier)
		if !ok || !s.table.Eligible(sub.Tier, sig) || !sub.CoversTime(now) {
			continue
		}
		task := &domain.DeliveryTask{
			SignalID:     sig.ID,
			SubscriberID: sub.SubscriberID,
			Destination:  sub.Destination,
			Tier:         tier.Slug,
			Kind:         domain.TaskSignal,
			DueAt:        entitlement.DueAt(sig.CreatedAt, tier),
		}
		created, err := s.store.EnqueueTask(ctx, task)
		if err != nil {
			return queued, fmt.Errorf("failed to enqueue delivery for subscriber %d: %w", sub.SubscriberID, err)
		}
		if created {
			queued++
		}
	}

	for _, tier := range s.table.Tiers() {
		if tier.ChannelID == "" || !s.table.Eligible(tier.Slug, sig) {
			continue
		}
		task := &domain.DeliveryTask{
			SignalID:    sig.ID,
			Destination: tier.ChannelID,
			Tier:        tier.Slug,
			Kind:        domain.TaskChannel,
			DueAt:       entitlement.DueAt(sig.CreatedAt, &tier),
		}
		created, err := s.store.EnqueueTask(ctx, task)
		if err != nil {
			return queued, fmt.Errorf("failed to enqueue channel broadcast for tier %s: %w", tier.Slug, err)
		}
		if created {
			queued++
		}
	}
	return queued, nil
}

// UpdateSignalStatus moves a signal along its lifecycle and notifies every receipt holder.
// exitPrice is optional; when absent, the level implied by the status is used.
func (s *Service) UpdateSignalStatus(ctx context.Context, id int64, to domain.SignalStatus, exitPrice *float64) (*domain.Signal, error) {
	sig, err := s.store.FindSignalByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal %d: %w", id, err)
	}
	if sig == nil {
		return nil, fmt.Errorf("signal %d: %w", id, ports.ErrNotFound)
	}
	previous := sig.Status
	if !previous.CanTransition(to) {
		return nil, fmt.Errorf("signal %d cannot move from %s to %s: %w", id, previous, to, ports.ErrInvalidTransition)
	}

	var (
		resultPips *float64
		closedAt   *time.Time
	)
	if to.IsTerminal() {
		now := s.now()
		closedAt = &now
		if price, ok := exitLevel(sig, to, exitPrice); ok {
			pips := ResultPips(sig, price)
			resultPips = &pips
		}
	}

	if err := s.store.UpdateSignalStatus(ctx, id, previous, to, resultPips, closedAt); err != nil {
		return nil, fmt.Errorf("failed to update signal %d: %w", id, err)
	}
	sig.Status = to
	if resultPips != nil {
		sig.ResultPips = resultPips
	}
	if closedAt != nil {
		sig.ClosedAt = closedAt
	}

	queued, err := s.notifyReceiptHolders(ctx, sig)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to schedule status notifications", map[string]interface{}{"signalID": id})
	}
	s.logger.Info(ctx, "Signal status updated", map[string]interface{}{
		"signalID": id,
		"from":     previous,
		"to":       to,
		"queued":   queued,
	})

	if s.stream != nil {
		if err := s.stream.PublishStatus(ctx, sig, previous); err != nil {
			s.metrics.RecordError("stream")
			s.logger.Warn(ctx, "Failed to publish status event", map[string]interface{}{"signalID": id, "error": err.Error()})
		}
	}
	s.wake()
	return sig, nil
}

func (s *Service) notifyReceiptHolders(ctx context.Context, sig *domain.Signal) (int, error) {
	deliveries, err := s.store.ListDeliveriesForSignal(ctx, sig.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	now := s.now()
	queued := 0
	for _, d := range deliveries {
		sub, err := s.store.FindActiveSubscription(ctx, d.SubscriberID)
		if err != nil {
			return queued, fmt.Errorf("failed to load subscription of subscriber %d: %w", d.SubscriberID, err)
		}
		if sub == nil {
			continue
		}
		task := &domain.DeliveryTask{
			SignalID:     sig.ID,
			SubscriberID: d.SubscriberID,
			Destination:  sub.Destination,
			Tier:         d.Tier,
			Kind:         domain.TaskStatus,
			StatusTag:    string(sig.Status),
			DueAt:        now,
		}
		created, err := s.store.EnqueueTask(ctx, task)
		if err != nil {
			return queued, fmt.Errorf("failed to enqueue status update for subscriber %d: %w", d.SubscriberID, err)
		}
		if created {
			queued++
		}
	}
	return queued, nil
}

func (s *Service) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

// exitLevel picks the price a signal closed at.
func exitLevel(sig *domain.Signal, to domain.SignalStatus, exitPrice *float64) (float64, bool) {
	if exitPrice != nil {
		return *exitPrice, true
	}
	switch to {
	case domain.StatusSLHit:
		return sig.StopLoss, true
	case domain.StatusTP3Hit:
		if n := len(sig.TakeProfits); n > 0 {
			return sig.TakeProfits[n-1], true
		}
	}
	return 0, false
}

// ResultPips returns the signed pip result of closing sig at price.
func ResultPips(sig *domain.Signal, price float64) float64 {
	diff := price - sig.Entry
	if sig.Direction == domain.Sell {
		diff = -diff
	}
	return diff / news.PipSize(sig.Symbol)
}
