package domain

// DefaultMaxOpenPositions applies when a binding leaves the ceiling unset.
const DefaultMaxOpenPositions = 3

// StrategyBinding ties one trading account to a strategy, timeframe, risk level and symbol universe.
type StrategyBinding struct {
	ID               int64
	AccountID        string
	Strategy         string
	Timeframe        string
	RiskLevel        RiskLevel
	Symbols          []string
	Enabled          bool
	MaxOpenPositions int
	AutoTrade        bool // Request execution on the venue in addition to publishing
}

// PositionCeiling returns the configured ceiling or the default.
func (b *StrategyBinding) PositionCeiling() int {
	if b.MaxOpenPositions <= 0 {
		return DefaultMaxOpenPositions
	}
	return b.MaxOpenPositions
}
