package news

import (
	"strings"

	"signalHub/internal/domain"
)

// ImpactProfile describes the typical market reaction to a class of release.
type ImpactProfile struct {
	AvgPips     float64 // Average move in pips
	Volatility  float64 // Volatility multiplier relative to a quiet session
	StopRatio   float64 // Stop distance as a fraction of the expected move
	TargetRatio float64 // First target distance as a fraction of the expected move
	Bonus       int     // Confidence bonus applied after the release
}

var impactProfiles = map[domain.Impact]ImpactProfile{
	domain.ImpactHigh:   {AvgPips: 80, Volatility: 2.0, StopRatio: 0.5, TargetRatio: 1.5, Bonus: 20},
	domain.ImpactMedium: {AvgPips: 40, Volatility: 1.5, StopRatio: 0.6, TargetRatio: 1.2, Bonus: 10},
	domain.ImpactLow:    {AvgPips: 15, Volatility: 1.1, StopRatio: 0.7, TargetRatio: 1.0, Bonus: 0},
}

// ProfileFor returns the profile for impact; unknown impacts are treated as LOW.
func ProfileFor(impact domain.Impact) ImpactProfile {
	if p, ok := impactProfiles[impact]; ok {
		return p
	}
	return impactProfiles[domain.ImpactLow]
}

// severity keywords, checked from most to least severe.
var severityTable = []struct {
	impact   domain.Impact
	keywords []string
}{
	{domain.ImpactHigh, []string{"non-farm", "nonfarm", "interest rate decision", "fomc", "cpi", "gdp"}},
	{domain.ImpactMedium, []string{"jobless claims", "retail sales", "pmi", "unemployment", "employment change", "zew", "ppi"}},
	{domain.ImpactLow, []string{"inventories", "sentiment", "permits", "housing"}},
}

// Classify maps an event name to its impact by keyword. Unmatched names are LOW.
func Classify(name string) domain.Impact {
	lower := strings.ToLower(name)
	for _, row := range severityTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.impact
			}
		}
	}
	return domain.ImpactLow
}
