package decision

import (
	"context"
	"fmt"
	"strings"

	"signalHub/internal/domain"
	"signalHub/internal/indicators"
	"signalHub/internal/ports"
	"signalHub/internal/risk"
)

// StrategyName is the binding strategy name served by Engine.
const StrategyName = "momentum"

const (
	baseConfidence   = 60
	momentumBonus    = 15
	crossBonus       = 15
	rsiExtremeBonus  = 10
	forcedConfidence = 45

	momentumWindow    = 5
	momentumThreshold = 4
	takeProfitLevels  = 3
)

// Config holds parameters for the decision engine.
type Config struct {
	FastEMAPeriod int     // e.g., 8
	SlowEMAPeriod int     // e.g., 20
	RSIPeriod     int     // e.g., 14
	ATRPeriod     int     // e.g., 14
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0
	MinCandles    int     // e.g., 20
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		FastEMAPeriod: 8,
		SlowEMAPeriod: 20,
		RSIPeriod:     indicators.DefaultRSIPeriod,
		ATRPeriod:     indicators.DefaultATRPeriod,
		RSIOverbought: 70,
		RSIOversold:   30,
		MinCandles:    20,
	}
}

// Engine turns candles into a directional candidate with ATR-sized risk levels.
type Engine struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Engine instance.
func New(cfg Config, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for decision engine")
	}
	if cfg.FastEMAPeriod <= 0 || cfg.SlowEMAPeriod <= 0 || cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("indicator periods must be positive")
	}
	if cfg.FastEMAPeriod >= cfg.SlowEMAPeriod {
		return nil, fmt.Errorf("fast EMA period must be less than slow EMA period")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold {
		return nil, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold)")
	}
	if cfg.MinCandles < momentumWindow+1 {
		cfg.MinCandles = momentumWindow + 1
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Name implements ports.SignalStrategy.
func (e *Engine) Name() string { return StrategyName }

// RequiredDataPoints returns the minimum number of candles Evaluate needs.
func (e *Engine) RequiredDataPoints() int {
	n := e.cfg.MinCandles
	if e.cfg.SlowEMAPeriod+1 > n {
		n = e.cfg.SlowEMAPeriod + 1
	}
	if e.cfg.ATRPeriod+1 > n {
		n = e.cfg.ATRPeriod + 1
	}
	return n
}

// reading is the indicator snapshot a decision is based on.
type reading struct {
	atr       float64
	rsi       float64
	bullish   int
	bearish   int
	crossUp   bool
	crossDown bool
	fastEMA   float64
	slowEMA   float64
	macd      indicators.MACDResult
	bands     indicators.BollingerResult
}

func (e *Engine) read(candles []domain.Candle) reading {
	closes := domain.Closes(candles)
	fast := indicators.EMA(closes, e.cfg.FastEMAPeriod)
	slow := indicators.EMA(closes, e.cfg.SlowEMAPeriod)

	r := reading{
		atr:       indicators.ATR(candles, e.cfg.ATRPeriod),
		rsi:       indicators.RSI(closes, e.cfg.RSIPeriod),
		crossUp:   indicators.CrossedUp(fast, slow),
		crossDown: indicators.CrossedDown(fast, slow),
		fastEMA:   indicators.Last(fast),
		slowEMA:   indicators.Last(slow),
		macd:      indicators.MACD(closes, indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal),
		bands:     indicators.BollingerBands(closes, indicators.DefaultBBPeriod, indicators.DefaultBBStdDev),
	}
	for i := len(closes) - momentumWindow; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			r.bullish++
		case closes[i] < closes[i-1]:
			r.bearish++
		}
	}
	return r
}

// decide applies the precedence BUY, SELL, forced entry.
func (e *Engine) decide(r reading, lastClose float64) (domain.Direction, int, bool) {
	oversold := r.rsi < e.cfg.RSIOversold
	overbought := r.rsi > e.cfg.RSIOverbought

	if r.bullish >= momentumThreshold || r.crossUp || oversold {
		return domain.Buy, score(r.bullish >= momentumThreshold, r.crossUp, oversold), false
	}
	if r.bearish >= momentumThreshold || r.crossDown || overbought {
		return domain.Sell, score(r.bearish >= momentumThreshold, r.crossDown, overbought), false
	}

	switch {
	case r.bullish > r.bearish:
		return domain.Buy, forcedConfidence, true
	case r.bearish > r.bullish:
		return domain.Sell, forcedConfidence, true
	case lastClose >= r.slowEMA:
		return domain.Buy, forcedConfidence, true
	default:
		return domain.Sell, forcedConfidence, true
	}
}

func score(momentum, cross, extreme bool) int {
	c := baseConfidence
	if momentum {
		c += momentumBonus
	}
	if cross {
		c += crossBonus
	}
	if extreme {
		c += rsiExtremeBonus
	}
	if c > 100 {
		c = 100
	}
	return c
}

// Evaluate implements ports.SignalStrategy. It returns nil for degenerate or insufficient data.
func (e *Engine) Evaluate(ctx context.Context, symbol, timeframe string, candles []domain.Candle, level domain.RiskLevel) *domain.SignalCandidate {
	required := e.RequiredDataPoints()
	if len(candles) < required {
		e.logger.Debug(ctx, "Not enough candle data for decision",
			map[string]interface{}{"symbol": symbol, "available": len(candles), "required": required})
		return nil
	}

	r := e.read(candles)
	if r.atr == 0 {
		e.logger.Debug(ctx, "ATR is zero, skipping decision", map[string]interface{}{"symbol": symbol})
		return nil
	}

	entry := candles[len(candles)-1].Close
	dir, confidence, forced := e.decide(r, entry)
	profile := risk.ProfileFor(level)

	candidate := &domain.SignalCandidate{
		Symbol:       symbol,
		Direction:    dir,
		Entry:        entry,
		StopLoss:     risk.StopLoss(entry, profile.StopMultiple*r.atr, dir),
		TakeProfits:  risk.TakeProfits(entry, profile.TargetMultiple*r.atr, dir, takeProfitLevels),
		RiskFraction: profile.RiskFraction,
		Confidence:   confidence,
		Timeframe:    timeframe,
		Source:       domain.SourceScheduler,
		Analysis:     e.describe(r, dir, forced),
	}

	e.logger.Debug(ctx, "Decision evaluated", map[string]interface{}{
		"symbol":     symbol,
		"direction":  dir,
		"confidence": confidence,
		"forced":     forced,
		"rsi":        r.rsi,
		"atr":        r.atr,
	})
	return candidate
}

func (e *Engine) describe(r reading, dir domain.Direction, forced bool) string {
	parts := make([]string, 0, 6)

	rsiNote := "neutral"
	if r.rsi < e.cfg.RSIOversold {
		rsiNote = "oversold"
	} else if r.rsi > e.cfg.RSIOverbought {
		rsiNote = "overbought"
	}
	parts = append(parts, fmt.Sprintf("RSI(%d) %.1f %s", e.cfg.RSIPeriod, r.rsi, rsiNote))

	emaNote := fmt.Sprintf("EMA%d below EMA%d", e.cfg.FastEMAPeriod, e.cfg.SlowEMAPeriod)
	if r.fastEMA > r.slowEMA {
		emaNote = fmt.Sprintf("EMA%d above EMA%d", e.cfg.FastEMAPeriod, e.cfg.SlowEMAPeriod)
	}
	if r.crossUp {
		emaNote += ", fresh cross up"
	} else if r.crossDown {
		emaNote += ", fresh cross down"
	}
	parts = append(parts, emaNote)
	parts = append(parts, fmt.Sprintf("Momentum %d up / %d down over %d candles", r.bullish, r.bearish, momentumWindow))

	macdNote := "bearish"
	if r.macd.Bullish {
		macdNote = "bullish"
	}
	parts = append(parts, fmt.Sprintf("MACD %s (hist %.5f)", macdNote, r.macd.Histogram))
	parts = append(parts, fmt.Sprintf("Price at %s band (%%B %.2f)", strings.ReplaceAll(string(r.bands.Position), "_", "-"), r.bands.PercentB))

	if forced {
		parts = append(parts, fmt.Sprintf("No clear setup, %s bias from majority momentum", strings.ToLower(string(dir))))
	}
	return strings.Join(parts, "\n")
}
