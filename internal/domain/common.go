package domain

// Direction is the trade side a signal recommends (BUY or SELL).
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// RiskLevel selects the ATR multiples and position size used for a signal.
type RiskLevel string

const (
	RiskLow        RiskLevel = "low"
	RiskMedium     RiskLevel = "medium"
	RiskHigh       RiskLevel = "high"
	RiskAggressive RiskLevel = "aggressive"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskAggressive:
		return true
	}
	return false
}

// Source identifies which component produced a signal.
type Source string

const (
	SourceScheduler Source = "scheduler"
	SourceNews      Source = "news"
	SourceNewsPre   Source = "news_pre" // Emitted ahead of a high-impact release
)

// IsNews reports whether the signal came from the news overlay.
func (s Source) IsNews() bool {
	return s == SourceNews || s == SourceNewsPre
}
