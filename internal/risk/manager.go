package risk

import (
	"fmt"

	"signalHub/internal/domain"
)

// Profile holds the stop/target multiples and sizing for a risk level.
type Profile struct {
	StopMultiple   float64 // Stop distance as a multiple of the volatility unit (ATR)
	TargetMultiple float64 // First target distance as a multiple of the volatility unit
	RiskFraction   float64 // Share of the account balance lost if the stop is hit
}

var profiles = map[domain.RiskLevel]Profile{
	domain.RiskLow:        {StopMultiple: 2.5, TargetMultiple: 3.0, RiskFraction: 0.005},
	domain.RiskMedium:     {StopMultiple: 2.0, TargetMultiple: 2.5, RiskFraction: 0.01},
	domain.RiskHigh:       {StopMultiple: 1.5, TargetMultiple: 2.0, RiskFraction: 0.02},
	domain.RiskAggressive: {StopMultiple: 1.2, TargetMultiple: 1.5, RiskFraction: 0.03},
}

// ProfileFor returns the profile of level; unknown levels fall back to medium.
func ProfileFor(level domain.RiskLevel) Profile {
	if p, ok := profiles[level]; ok {
		return p
	}
	return profiles[domain.RiskMedium]
}

// StopLoss places the stop distance away from entry, against the trade direction.
func StopLoss(entry, distance float64, dir domain.Direction) float64 {
	if dir == domain.Buy {
		return entry - distance
	}
	return entry + distance
}

// TakeProfits returns levels take-profit prices at 1x, 2x, ... the target distance in the trade direction.
func TakeProfits(entry, distance float64, dir domain.Direction, levels int) []float64 {
	out := make([]float64, 0, levels)
	for k := 1; k <= levels; k++ {
		step := float64(k) * distance
		if dir == domain.Buy {
			out = append(out, entry+step)
		} else {
			out = append(out, entry-step)
		}
	}
	return out
}

// CheckCeiling returns an error when an account already holds max or more open positions.
func CheckCeiling(open, max int) error {
	if max <= 0 {
		max = domain.DefaultMaxOpenPositions
	}
	if open >= max {
		return fmt.Errorf("number of open positions %d reaches maximum allowed %d", open, max)
	}
	return nil
}
