package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
	"signalHub/internal/risk"
)

// CycleReport summarises one scan cycle.
type CycleReport struct {
	StartedAt  time.Time        `json:"startedAt"`
	Duration   time.Duration    `json:"duration"`
	Bindings   int              `json:"bindings"`
	Scanned    int              `json:"scanned"`
	Signals    []*domain.Signal `json:"signals"`
	Executions int              `json:"executions"`
	Failures   int              `json:"failures"`
}

func (r *CycleReport) fail() { r.Failures++ }

// RunCycle performs one scan over every enabled binding. Failures are logged and
// isolated per symbol and binding; the report counts them.
func (s *Scheduler) RunCycle(ctx context.Context) *CycleReport {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := &CycleReport{StartedAt: s.now(), Signals: make([]*domain.Signal, 0)}
	bindings, err := s.cfg.Bindings.EnabledBindings(ctx)
	if err != nil {
		s.metrics.RecordError("bindings")
		s.logger.Error(ctx, err, "Failed to load strategy bindings")
		report.fail()
		return s.finish(ctx, report)
	}

	for i := range bindings {
		if ctx.Err() != nil {
			break
		}
		b := &bindings[i]
		if !b.Enabled {
			continue
		}
		if !s.cfg.Venue.IsConnected(ctx, b.AccountID) {
			s.logger.Debug(ctx, "Skipping binding with disconnected account", map[string]interface{}{
				"bindingID": b.ID,
				"accountID": b.AccountID,
			})
			continue
		}
		report.Bindings++
		s.scanBinding(ctx, b, report)
	}
	return s.finish(ctx, report)
}

func (s *Scheduler) finish(ctx context.Context, report *CycleReport) *CycleReport {
	report.Duration = s.now().Sub(report.StartedAt)
	s.metrics.RecordCycle(report.Duration.Seconds(), report.Bindings, len(report.Signals))

	s.mu.Lock()
	s.cycles++
	s.lastCycle = report
	s.mu.Unlock()

	s.logger.Debug(ctx, "Scan cycle finished", map[string]interface{}{
		"bindings":   report.Bindings,
		"signals":    len(report.Signals),
		"executions": report.Executions,
		"failures":   report.Failures,
	})
	return report
}

// scanBinding publishes at most one signal, and requests at most one execution, for b.
func (s *Scheduler) scanBinding(ctx context.Context, b *domain.StrategyBinding, report *CycleReport) {
	fields := map[string]interface{}{"bindingID": b.ID, "accountID": b.AccountID}

	if !s.belowCeiling(ctx, b, report) {
		return
	}

	strategy := s.strategyFor(b.Strategy)
	count := s.settings.CandleCount
	if need := strategy.RequiredDataPoints(); need > count {
		count = need
	}
	candles := s.fetchCandles(ctx, b, count, report)

	now := s.now()
	for _, symbol := range b.Symbols {
		series, ok := candles[symbol]
		if !ok {
			continue
		}
		report.Scanned++
		if s.coolingDown(b.ID, symbol, now) {
			continue
		}

		candidate := s.selectCandidate(ctx, b, strategy, symbol, series, now)
		if candidate == nil {
			continue
		}

		// First qualifying signal ends the binding's turn whatever the outcome below.
		if b.AutoTrade && !s.settings.DryRun {
			if !s.belowCeiling(ctx, b, report) {
				return
			}
			s.execute(ctx, b, candidate, report)
		}

		sig, err := s.cfg.Publisher.Publish(ctx, candidate, b.ID)
		if err != nil {
			s.metrics.RecordError("publish")
			s.logger.Error(ctx, err, "Failed to publish signal", fields)
			report.fail()
			return
		}
		s.markCooldown(b.ID, symbol, now)
		report.Signals = append(report.Signals, sig)
		return
	}
}

// selectCandidate picks the signal for one symbol. The news overlay only answers
// around scheduled releases and takes precedence there; otherwise the binding's
// strategy decides, and its candidate is dropped while the avoidance guard fires.
func (s *Scheduler) selectCandidate(ctx context.Context, b *domain.StrategyBinding, strategy ports.SignalStrategy, symbol string, series []domain.Candle, now time.Time) *domain.SignalCandidate {
	if s.cfg.News != nil && s.cfg.News != strategy {
		if news := s.cfg.News.Evaluate(ctx, symbol, b.Timeframe, series, b.RiskLevel); s.qualifies(news) {
			return news
		}
	}

	candidate := strategy.Evaluate(ctx, symbol, b.Timeframe, series, b.RiskLevel)
	if !s.qualifies(candidate) {
		return nil
	}
	if candidate.Source.IsNews() || s.cfg.Guard == nil {
		return candidate
	}
	if avoid, ev := s.cfg.Guard.ShouldAvoid(symbol, now, s.settings.AvoidWindow); avoid {
		suppressed := map[string]interface{}{"bindingID": b.ID, "symbol": symbol}
		if ev != nil {
			suppressed["event"] = ev.Name
			suppressed["at"] = ev.ScheduledAt
		}
		s.logger.Info(ctx, "Suppressing signal ahead of high-impact event", suppressed)
		return nil
	}
	return candidate
}

func (s *Scheduler) qualifies(c *domain.SignalCandidate) bool {
	return c != nil && c.Confidence >= s.settings.MinConfidence
}

// strategyFor resolves a binding's strategy name, falling back to the default.
func (s *Scheduler) strategyFor(name string) ports.SignalStrategy {
	if st, ok := s.cfg.Strategies[name]; ok {
		return st
	}
	return s.cfg.Strategies[s.cfg.DefaultStrategy]
}

// belowCeiling reads the account's open positions and reports whether another one may be opened.
func (s *Scheduler) belowCeiling(ctx context.Context, b *domain.StrategyBinding, report *CycleReport) bool {
	open, err := s.cfg.Venue.OpenPositionCount(ctx, b.AccountID)
	if err != nil {
		s.metrics.RecordError("positions")
		s.logger.Error(ctx, err, "Failed to read open positions", map[string]interface{}{"bindingID": b.ID, "accountID": b.AccountID})
		report.fail()
		return false
	}
	if err := risk.CheckCeiling(open, b.PositionCeiling()); err != nil {
		s.logger.Info(ctx, "Binding at open-position ceiling", map[string]interface{}{
			"bindingID": b.ID,
			"open":      open,
			"ceiling":   b.PositionCeiling(),
		})
		return false
	}
	return true
}

func (s *Scheduler) execute(ctx context.Context, b *domain.StrategyBinding, c *domain.SignalCandidate, report *CycleReport) {
	pos, err := s.cfg.Venue.OpenPosition(ctx, b.AccountID, c)
	if err != nil {
		s.metrics.RecordExecution("failed")
		s.logger.Error(ctx, err, "Execution request failed", map[string]interface{}{
			"bindingID": b.ID,
			"symbol":    c.Symbol,
			"direction": c.Direction,
		})
		report.fail()
		return
	}
	s.metrics.RecordExecution("opened")
	report.Executions++
	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"bindingID": b.ID,
		"symbol":    pos.Symbol,
		"orderID":   pos.OrderID,
		"quantity":  pos.Quantity,
	})
}

// fetchCandles loads every symbol of the binding through a bounded pool. Failed symbols are absent from the result.
func (s *Scheduler) fetchCandles(ctx context.Context, b *domain.StrategyBinding, count int, report *CycleReport) map[string][]domain.Candle {
	var (
		mu     sync.Mutex
		result = make(map[string][]domain.Candle, len(b.Symbols))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.FetchWorkers)
	for _, symbol := range b.Symbols {
		g.Go(func() error {
			candles, err := s.cfg.Market.GetRecentCandles(gctx, symbol, b.Timeframe, count)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.metrics.RecordError("candles")
				s.logger.Warn(gctx, "Failed to fetch candles", map[string]interface{}{
					"bindingID": b.ID,
					"symbol":    symbol,
					"error":     err.Error(),
				})
				report.fail()
				return nil
			}
			result[symbol] = candles
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func cooldownKey(bindingID int64, symbol string) string {
	return fmt.Sprintf("%d:%s", bindingID, symbol)
}

func (s *Scheduler) coolingDown(bindingID int64, symbol string, now time.Time) bool {
	until, ok := s.cooldown[cooldownKey(bindingID, symbol)]
	return ok && now.Before(until)
}

func (s *Scheduler) markCooldown(bindingID int64, symbol string, now time.Time) {
	s.cooldown[cooldownKey(bindingID, symbol)] = now.Add(s.settings.Cooldown)
}
