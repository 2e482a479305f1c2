package ports

import (
	"context"

	"signalHub/internal/domain"
)

// MarketData supplies recent candles for a symbol.
type MarketData interface {
	// GetRecentCandles returns up to count candles ordered oldest first.
	GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error)
}

// ExecutionVenue opens positions on behalf of trading accounts.
type ExecutionVenue interface {
	// IsConnected reports whether the account can currently trade.
	IsConnected(ctx context.Context, accountID string) bool
	// OpenPositionCount returns the number of positions currently open on the account.
	OpenPositionCount(ctx context.Context, accountID string) (int, error)
	// OpenPosition requests a market entry with protective orders derived from the candidate.
	// Each call is treated as at most once; callers do not retry.
	OpenPosition(ctx context.Context, accountID string, candidate *domain.SignalCandidate) (*domain.Position, error)
}
