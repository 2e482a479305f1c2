package news

import (
	"context"
	"fmt"
	"math"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
	"signalHub/internal/risk"
)

// StrategyName identifies news-sourced candidates in logs.
const StrategyName = "news"

const (
	baselineConfidence = 50
	marginStep         = 6 // Confidence per candle of momentum majority
	momentumWindow     = 5
	takeProfitLevels   = 3
	preStopTightening  = 0.5 // Pre-news stop as a fraction of the post-news stop
	preSizeFactor      = 0.5
)

// Config holds the overlay's time windows and gates.
type Config struct {
	PostEventWindow  time.Duration // How long after a release post-event mode applies
	PreEventMin      time.Duration // Closest a release may be for pre-positioning
	PreEventMax      time.Duration // Furthest a release may be for pre-positioning
	PreMinConfidence int           // Floor for pre-news candidates
	Now              func() time.Time
}

// DefaultConfig returns the standard overlay windows.
func DefaultConfig() Config {
	return Config{
		PostEventWindow:  15 * time.Minute,
		PreEventMin:      5 * time.Minute,
		PreEventMax:      15 * time.Minute,
		PreMinConfidence: 70,
		Now:              time.Now,
	}
}

// Overlay produces news-driven candidates around scheduled releases and guards technical entries.
type Overlay struct {
	cfg      Config
	calendar *Calendar
	logger   ports.Logger
}

// NewOverlay creates a news overlay over calendar.
func NewOverlay(cfg Config, calendar *Calendar, logger ports.Logger) (*Overlay, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for news overlay")
	}
	if calendar == nil {
		return nil, fmt.Errorf("calendar is required for news overlay")
	}
	if cfg.PreEventMin < 0 || cfg.PreEventMax < cfg.PreEventMin || cfg.PostEventWindow <= 0 {
		return nil, fmt.Errorf("invalid news windows")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Overlay{cfg: cfg, calendar: calendar, logger: logger}, nil
}

// Calendar exposes the underlying event calendar.
func (o *Overlay) Calendar() *Calendar { return o.calendar }

// Name implements ports.SignalStrategy.
func (o *Overlay) Name() string { return StrategyName }

// RequiredDataPoints implements ports.SignalStrategy.
func (o *Overlay) RequiredDataPoints() int { return momentumWindow + 1 }

// ShouldAvoid reports whether a HIGH-impact release on either currency of symbol
// is scheduled between now and now+window, returning the first such event.
func (o *Overlay) ShouldAvoid(symbol string, now time.Time, window time.Duration) (bool, *domain.EconomicEvent) {
	for _, ev := range o.calendar.Between(symbol, now, now.Add(window)) {
		if ev.Impact == domain.ImpactHigh {
			return true, &ev
		}
	}
	return false, nil
}

// Evaluate implements ports.SignalStrategy. Post-event mode takes precedence over pre-event mode.
func (o *Overlay) Evaluate(ctx context.Context, symbol, timeframe string, candles []domain.Candle, level domain.RiskLevel) *domain.SignalCandidate {
	if len(candles) < o.RequiredDataPoints() {
		return nil
	}
	now := o.cfg.Now()

	if ev := o.recentRelease(symbol, now); ev != nil {
		return o.postEvent(ctx, symbol, timeframe, candles, level, *ev, now)
	}
	if ev := o.upcomingRelease(symbol, now); ev != nil {
		return o.preEvent(ctx, symbol, timeframe, candles, level, *ev, now)
	}
	return nil
}

// recentRelease returns the most impactful HIGH/MEDIUM release within the post-event window, latest first on ties.
func (o *Overlay) recentRelease(symbol string, now time.Time) *domain.EconomicEvent {
	var best *domain.EconomicEvent
	for _, ev := range o.calendar.Between(symbol, now.Add(-o.cfg.PostEventWindow), now) {
		if ev.Impact != domain.ImpactHigh && ev.Impact != domain.ImpactMedium {
			continue
		}
		if best == nil || impactRank(ev.Impact) > impactRank(best.Impact) ||
			(ev.Impact == best.Impact && ev.ScheduledAt.After(best.ScheduledAt)) {
			best = &ev
		}
	}
	return best
}

func (o *Overlay) upcomingRelease(symbol string, now time.Time) *domain.EconomicEvent {
	for _, ev := range o.calendar.Between(symbol, now.Add(o.cfg.PreEventMin), now.Add(o.cfg.PreEventMax)) {
		if ev.Impact == domain.ImpactHigh {
			return &ev
		}
	}
	return nil
}

func impactRank(i domain.Impact) int {
	switch i {
	case domain.ImpactHigh:
		return 3
	case domain.ImpactMedium:
		return 2
	case domain.ImpactLow:
		return 1
	}
	return 0
}

// momentum returns the majority direction over the last candles and its margin.
// A tie falls back to the net move across the window; no move at all yields margin 0.
func momentum(candles []domain.Candle) (domain.Direction, int) {
	n := len(candles)
	var up, down int
	for i := n - momentumWindow; i < n; i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			up++
		case candles[i].Close < candles[i-1].Close:
			down++
		}
	}
	switch {
	case up > down:
		return domain.Buy, up - down
	case down > up:
		return domain.Sell, down - up
	}
	net := candles[n-1].Close - candles[n-1-momentumWindow].Close
	switch {
	case net > 0:
		return domain.Buy, 1
	case net < 0:
		return domain.Sell, 1
	}
	return domain.Buy, 0
}

func clampConfidence(c int) int {
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}

func (o *Overlay) postEvent(ctx context.Context, symbol, timeframe string, candles []domain.Candle, level domain.RiskLevel, ev domain.EconomicEvent, now time.Time) *domain.SignalCandidate {
	dir, margin := momentum(candles)
	if margin == 0 {
		o.logger.Debug(ctx, "No post-news momentum", map[string]interface{}{"symbol": symbol, "event": ev.Name})
		return nil
	}
	profile := ProfileFor(ev.Impact)
	confidence := clampConfidence(baselineConfidence + marginStep*margin + profile.Bonus)

	move := ev.ExpectedPips * PipSize(symbol)
	entry := candles[len(candles)-1].Close
	analysis := fmt.Sprintf("%s (%s, %s impact) released %d min ago\nExpected move ~%.0f pips, volatility x%.1f\nPost-release momentum favours %s (margin %d)",
		ev.Name, ev.Currency, ev.Impact, int(now.Sub(ev.ScheduledAt).Minutes()), ev.ExpectedPips, profile.Volatility, dir, margin)
	c := &domain.SignalCandidate{
		Symbol:       symbol,
		Direction:    dir,
		Entry:        entry,
		StopLoss:     risk.StopLoss(entry, profile.StopRatio*move, dir),
		TakeProfits:  risk.TakeProfits(entry, profile.TargetRatio*move, dir, takeProfitLevels),
		RiskFraction: risk.ProfileFor(level).RiskFraction,
		Confidence:   confidence,
		Timeframe:    timeframe,
		Source:       domain.SourceNews,
		NewsImpact:   ev.Impact,
		Analysis:     analysis,
	}
	o.logger.Info(ctx, "Post-news candidate", map[string]interface{}{
		"symbol": symbol, "event": ev.Name, "impact": ev.Impact, "direction": dir, "confidence": confidence,
	})
	return c
}

func (o *Overlay) preEvent(ctx context.Context, symbol, timeframe string, candles []domain.Candle, level domain.RiskLevel, ev domain.EconomicEvent, now time.Time) *domain.SignalCandidate {
	dir, margin := momentum(candles)
	profile := ProfileFor(ev.Impact)
	confidence := clampConfidence(baselineConfidence + marginStep*margin + profile.Bonus/2)
	if margin == 0 || confidence < o.cfg.PreMinConfidence {
		o.logger.Debug(ctx, "Pre-news candidate below confidence floor", map[string]interface{}{
			"symbol": symbol, "event": ev.Name, "confidence": confidence, "floor": o.cfg.PreMinConfidence,
		})
		return nil
	}

	move := ev.ExpectedPips * PipSize(symbol)
	entry := candles[len(candles)-1].Close
	size := math.Round(risk.ProfileFor(level).RiskFraction*preSizeFactor*1000) / 1000
	analysis := fmt.Sprintf("Pre-positioning ahead of %s (%s, %s impact) in %d min\nExpected move ~%.0f pips, reduced size and tight stop",
		ev.Name, ev.Currency, ev.Impact, int(math.Ceil(ev.ScheduledAt.Sub(now).Minutes())), ev.ExpectedPips)
	c := &domain.SignalCandidate{
		Symbol:       symbol,
		Direction:    dir,
		Entry:        entry,
		StopLoss:     risk.StopLoss(entry, profile.StopRatio*preStopTightening*move, dir),
		TakeProfits:  risk.TakeProfits(entry, profile.TargetRatio*move, dir, takeProfitLevels),
		RiskFraction: size,
		Confidence:   confidence,
		Timeframe:    timeframe,
		Source:       domain.SourceNewsPre,
		NewsImpact:   ev.Impact,
		Analysis:     analysis,
	}
	o.logger.Info(ctx, "Pre-news candidate", map[string]interface{}{
		"symbol": symbol, "event": ev.Name, "direction": dir, "confidence": confidence,
	})
	return c
}
