package entitlement

import "signalHub/internal/domain"

// Confidence thresholds for priority assignment.
const (
	VIPConfidence    = 90
	HighConfidence   = 80
	MediumConfidence = 65
)

// PriorityFor assigns a priority from a candidate's confidence and origin.
// A post-release HIGH-impact news candidate at VIP confidence becomes EXCLUSIVE.
func PriorityFor(c *domain.SignalCandidate) domain.Priority {
	switch {
	case c.Confidence >= VIPConfidence:
		if c.Source == domain.SourceNews && c.NewsImpact == domain.ImpactHigh {
			return domain.PriorityExclusive
		}
		return domain.PriorityVIP
	case c.Confidence >= HighConfidence:
		return domain.PriorityHigh
	case c.Confidence >= MediumConfidence:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}
