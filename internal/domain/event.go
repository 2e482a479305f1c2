package domain

import "time"

// Impact is the expected market effect of an economic release.
type Impact string

const (
	ImpactNone   Impact = ""
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

// EconomicEvent is a scheduled macro release.
type EconomicEvent struct {
	ScheduledAt  time.Time
	Currency     string
	Name         string
	Impact       Impact
	ExpectedPips float64
}
