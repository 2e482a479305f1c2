package domain

// Tier is a subscription level with entitlement rules.
type Tier struct {
	Slug                     string
	Name                     string
	Rank                     int
	AllowedPriorities        []Priority
	DelayMinutes             int
	MaxSignalsPerDay         *int // nil means unlimited
	IncludesSLTP             bool
	IncludesAnalysis         bool
	IncludesExclusiveChannel bool
	ChannelID                string // Shared broadcast destination; empty when the tier has none
}

// Allows reports whether the tier lists p among its priorities.
func (t *Tier) Allows(p Priority) bool {
	for _, ap := range t.AllowedPriorities {
		if ap == p {
			return true
		}
	}
	return false
}

// Unlimited reports whether the tier has no daily cap.
func (t *Tier) Unlimited() bool {
	return t.MaxSignalsPerDay == nil
}
