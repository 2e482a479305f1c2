package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signalHub/internal/domain"
	"signalHub/internal/entitlement"
	"signalHub/internal/metrics"
	"signalHub/internal/ports"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultWorkers       = 4
	defaultBatchSize     = 50
	defaultSendTimeout   = 10 * time.Second
	recordRetries        = 3
)

// DispatcherConfig wires the delivery dispatcher.
type DispatcherConfig struct {
	Store         Store
	Table         *entitlement.Table
	Channel       ports.MessageChannel
	Logger        ports.Logger
	Metrics       ports.Metrics  // Optional
	Location      *time.Location // Quota day boundary; UTC when nil
	SweepInterval time.Duration
	Workers       int
	BatchSize     int
	SendTimeout   time.Duration
	Now           func() time.Time
}

// Dispatcher sends due delivery tasks. It sweeps periodically and arms a timer
// for the earliest pending task so delayed tiers are served on time.
type Dispatcher struct {
	cfg     DispatcherConfig
	locks   *keyedMutex
	wakeCh  chan struct{}
	mu      sync.Mutex
	timer   *time.Timer
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a dispatcher with defaults applied.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil || cfg.Table == nil || cfg.Channel == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("dispatcher requires store, tier table, channel and logger: %w", ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		cfg:    cfg,
		locks:  newKeyedMutex(),
		wakeCh: make(chan struct{}, 1),
	}, nil
}

// Start resets tasks left in flight by a previous run and begins dispatching.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.cfg.Logger.Warn(ctx, "Dispatcher already running")
		return nil
	}

	if _, err := d.cfg.Store.ResetInFlight(ctx); err != nil {
		return fmt.Errorf("failed to recover in-flight tasks: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(loopCtx, d.done)
	d.Wake()
	d.cfg.Logger.Info(ctx, "Delivery dispatcher started", map[string]interface{}{
		"sweepInterval": d.cfg.SweepInterval.String(),
		"workers":       d.cfg.Workers,
	})
	return nil
}

// Stop halts dispatching and waits for in-progress sends. Pending tasks stay queued.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel, done := d.cancel, d.done
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	cancel()
	<-done
	d.cfg.Logger.Info(context.Background(), "Delivery dispatcher stopped")
}

// Wake triggers a sweep without waiting for the next tick.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wakeCh:
		}
		if _, err := d.Sweep(ctx); err != nil && ctx.Err() == nil {
			d.cfg.Metrics.RecordError("dispatch")
			d.cfg.Logger.Error(ctx, err, "Delivery sweep failed")
		}
		d.armTimer(ctx)
	}
}

// armTimer schedules a wake-up for the earliest pending task.
func (d *Dispatcher) armTimer(ctx context.Context) {
	next, err := d.cfg.Store.NextDueAt(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.cfg.Logger.Warn(ctx, "Failed to read next due task", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if next == nil || !d.running {
		return
	}
	wait := next.Sub(d.cfg.Now())
	if wait < 0 {
		wait = 0
	}
	d.timer = time.AfterFunc(wait, d.Wake)
}

// Sweep sends every task due now and returns how many were processed.
// Tasks of one subscriber are sent one at a time; different subscribers run in parallel.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	processed := 0
	for {
		tasks, err := d.cfg.Store.ClaimDueTasks(ctx, d.cfg.Now(), d.cfg.BatchSize)
		if err != nil {
			return processed, fmt.Errorf("failed to claim due tasks: %w", err)
		}
		if len(tasks) == 0 {
			return processed, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.Workers)
		for _, task := range tasks {
			g.Go(func() error {
				unlock := d.locks.Lock(lockKey(task))
				defer unlock()
				d.process(gctx, task)
				return nil
			})
		}
		_ = g.Wait()
		processed += len(tasks)

		if len(tasks) < d.cfg.BatchSize || ctx.Err() != nil {
			return processed, ctx.Err()
		}
	}
}

func lockKey(task *domain.DeliveryTask) string {
	if task.SubscriberID == 0 {
		return "channel:" + task.Destination
	}
	return "subscriber:" + strconv.FormatInt(task.SubscriberID, 10)
}

// outcome is the terminal state of a processed task.
type outcome struct {
	state  domain.TaskState
	reason string
}

func sent() outcome                 { return outcome{state: domain.TaskSent} }
func skipped(reason string) outcome { return outcome{state: domain.TaskSkipped, reason: reason} }
func failed(err error) outcome      { return outcome{state: domain.TaskFailed, reason: err.Error()} }

func (d *Dispatcher) process(ctx context.Context, task *domain.DeliveryTask) {
	var res outcome
	sig, err := d.cfg.Store.FindSignalByID(ctx, task.SignalID)
	switch {
	case err != nil:
		res = failed(err)
	case sig == nil:
		res = skipped("signal not found")
	default:
		switch task.Kind {
		case domain.TaskSignal:
			res = d.deliverSignal(ctx, task, sig)
		case domain.TaskStatus:
			res = d.deliverStatus(ctx, task, sig)
		case domain.TaskChannel:
			res = d.deliverChannel(ctx, task, sig)
		default:
			res = skipped("unknown task kind " + string(task.Kind))
		}
	}

	d.cfg.Metrics.RecordDelivery(string(task.Kind), string(res.state))
	fields := map[string]interface{}{
		"taskID":       task.ID,
		"signalID":     task.SignalID,
		"subscriberID": task.SubscriberID,
		"kind":         task.Kind,
		"state":        res.state,
	}
	if res.reason != "" {
		fields["reason"] = res.reason
	}
	if res.state == domain.TaskFailed {
		d.cfg.Logger.Warn(ctx, "Delivery failed", fields)
	} else {
		d.cfg.Logger.Debug(ctx, "Delivery task processed", fields)
	}

	// Completion must land even when the sweep context is cancelled after a send.
	if err := d.cfg.Store.CompleteTask(context.WithoutCancel(ctx), task.ID, res.state, res.reason); err != nil {
		d.cfg.Logger.Error(ctx, err, "Failed to complete delivery task", fields)
	}
}

// deliverSignal re-checks subscription, entitlement and quota at send time, then sends and records the receipt.
func (d *Dispatcher) deliverSignal(ctx context.Context, task *domain.DeliveryTask, sig *domain.Signal) outcome {
	now := d.cfg.Now()
	sub, err := d.cfg.Store.FindActiveSubscription(ctx, task.SubscriberID)
	if err != nil {
		return failed(err)
	}
	if sub == nil || !sub.CoversTime(now) {
		return skipped("no active subscription")
	}
	tier, ok := d.cfg.Table.Tier(sub.Tier)
	if !ok || !d.cfg.Table.Eligible(sub.Tier, sig) {
		return skipped(ports.ErrNotEntitled.Error())
	}
	delivered, err := d.cfg.Store.HasDelivery(ctx, sig.ID, sub.SubscriberID)
	if err != nil {
		return failed(err)
	}
	if delivered {
		return skipped("already delivered")
	}
	day := entitlement.DayKey(now, d.cfg.Location)
	if !entitlement.QuotaAvailable(tier, sub, day) {
		return skipped(ports.ErrQuotaExhausted.Error())
	}

	if err := d.send(ctx, sub.Destination, NewMessage(sig, tier).Render()); err != nil {
		return failed(err)
	}

	if err := d.record(ctx, sig, sub, tier, now, day); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			return skipped("already delivered")
		}
		return failed(err)
	}
	return sent()
}

// record writes the receipt, reloading the counter if another writer moved it.
func (d *Dispatcher) record(ctx context.Context, sig *domain.Signal, sub *domain.Subscription, tier *domain.Tier, now time.Time, day string) error {
	ctx = context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		count, date := entitlement.NextCounter(sub, day)
		delivery := &domain.Delivery{
			SignalID:     sig.ID,
			SubscriberID: sub.SubscriberID,
			Tier:         tier.Slug,
			DeliveredAt:  now,
		}
		quota := ports.QuotaUpdate{
			SubscriptionID: sub.ID,
			ExpectedCount:  sub.SignalsReceivedDay,
			ExpectedDate:   sub.LastSignalDate,
			NewCount:       count,
			NewDate:        date,
		}
		_, err := d.cfg.Store.RecordDelivery(ctx, delivery, quota)
		if err == nil || !errors.Is(err, ports.ErrConflict) || attempt+1 >= recordRetries {
			return err
		}
		fresh, ferr := d.cfg.Store.FindActiveSubscription(ctx, sub.SubscriberID)
		if ferr != nil {
			return ferr
		}
		if fresh == nil {
			return fmt.Errorf("subscription of subscriber %d disappeared: %w", sub.SubscriberID, ports.ErrNotFound)
		}
		sub = fresh
	}
}

func (d *Dispatcher) deliverStatus(ctx context.Context, task *domain.DeliveryTask, sig *domain.Signal) outcome {
	sub, err := d.cfg.Store.FindActiveSubscription(ctx, task.SubscriberID)
	if err != nil {
		return failed(err)
	}
	if sub == nil {
		return skipped("no active subscription")
	}
	tier, ok := d.cfg.Table.Tier(sub.Tier)
	if !ok {
		if tier, ok = d.cfg.Table.Tier(task.Tier); !ok {
			return skipped("unknown tier")
		}
	}
	msg := NewMessage(sig, tier).WithStatus(domain.SignalStatus(task.StatusTag)).Render()
	if err := d.send(ctx, sub.Destination, msg); err != nil {
		return failed(err)
	}
	return sent()
}

func (d *Dispatcher) deliverChannel(ctx context.Context, task *domain.DeliveryTask, sig *domain.Signal) outcome {
	tier, ok := d.cfg.Table.Tier(task.Tier)
	if !ok || tier.ChannelID == "" {
		return skipped("tier has no channel")
	}
	if !d.cfg.Table.Eligible(tier.Slug, sig) {
		return skipped(ports.ErrNotEntitled.Error())
	}
	if err := d.send(ctx, task.Destination, NewMessage(sig, tier).Render()); err != nil {
		return failed(err)
	}
	return sent()
}

func (d *Dispatcher) send(ctx context.Context, destination, message string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.cfg.Channel.Send(sendCtx, destination, message); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrDeliveryRejected, err)
	}
	return nil
}

// keyedMutex serialises work per key and frees entries when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
