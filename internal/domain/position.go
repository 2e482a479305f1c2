package domain

import "time"

// Position is the venue-side result of executing a signal.
type Position struct {
	OrderID    string
	Symbol     string
	Side       Direction
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time

	// Protective order ids, nil when the venue rejected or was not asked for them
	StopLossOrderID   *string
	TakeProfitOrderID *string
}
