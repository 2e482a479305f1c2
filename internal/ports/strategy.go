package ports

import (
	"context"
	"time"

	"signalHub/internal/domain"
)

// SignalStrategy turns recent candles into an optional signal candidate.
type SignalStrategy interface {
	// Name identifies the strategy in bindings and logs.
	Name() string
	// RequiredDataPoints returns the minimum number of candles the strategy needs.
	RequiredDataPoints() int
	// Evaluate returns nil when there is nothing to publish.
	Evaluate(ctx context.Context, symbol, timeframe string, candles []domain.Candle, risk domain.RiskLevel) *domain.SignalCandidate
}

// NewsGuard reports scheduled high-impact releases that should suppress technical entries.
type NewsGuard interface {
	ShouldAvoid(symbol string, now time.Time, window time.Duration) (bool, *domain.EconomicEvent)
}

// SignalPublisher persists a candidate and schedules its fan-out.
type SignalPublisher interface {
	Publish(ctx context.Context, candidate *domain.SignalCandidate, bindingID int64) (*domain.Signal, error)
}

// BindingSource lists the strategy bindings the scheduler scans.
type BindingSource interface {
	EnabledBindings(ctx context.Context) ([]domain.StrategyBinding, error)
}
