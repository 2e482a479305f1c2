package entitlement

import (
	"fmt"
	"sort"
	"strings"

	"signalHub/internal/domain"
)

// Tier slugs of the standard catalogue.
const (
	TierStarter = "starter"
	TierBasic   = "basic"
	TierPremium = "premium"
	TierVIP     = "vip"
)

func intPtr(v int) *int { return &v }

// DefaultTiers returns the standard tier catalogue, lowest rank first.
func DefaultTiers() []domain.Tier {
	return []domain.Tier{
		{
			Slug:              TierStarter,
			Name:              "Starter",
			Rank:              0,
			AllowedPriorities: []domain.Priority{domain.PriorityLow},
			DelayMinutes:      30,
			MaxSignalsPerDay:  intPtr(3),
		},
		{
			Slug:              TierBasic,
			Name:              "Basic",
			Rank:              1,
			AllowedPriorities: []domain.Priority{domain.PriorityLow, domain.PriorityMedium},
			DelayMinutes:      15,
			MaxSignalsPerDay:  intPtr(10),
			IncludesSLTP:      true,
		},
		{
			Slug:              TierPremium,
			Name:              "Premium",
			Rank:              2,
			AllowedPriorities: []domain.Priority{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh},
			DelayMinutes:      5,
			IncludesSLTP:      true,
			IncludesAnalysis:  true,
		},
		{
			Slug:                     TierVIP,
			Name:                     "VIP",
			Rank:                     3,
			AllowedPriorities:        domain.AllPriorities(),
			IncludesSLTP:             true,
			IncludesAnalysis:         true,
			IncludesExclusiveChannel: true,
		},
	}
}

// DefaultPriorityMap maps each priority to the lowest tier that may receive it.
func DefaultPriorityMap() map[domain.Priority]string {
	return map[domain.Priority]string{
		domain.PriorityLow:       TierStarter,
		domain.PriorityMedium:    TierBasic,
		domain.PriorityHigh:      TierPremium,
		domain.PriorityVIP:       TierVIP,
		domain.PriorityExclusive: TierVIP,
	}
}

// Table is the static tier catalogue plus the priority to minimum-tier mapping.
type Table struct {
	tiers       []domain.Tier // ordered by rank
	bySlug      map[string]*domain.Tier
	priorityMap map[domain.Priority]string
}

// NewTable validates tiers and mapping and builds a Table.
// Every higher tier must allow a superset of the priorities of every lower tier.
func NewTable(tiers []domain.Tier, priorityMap map[domain.Priority]string) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	sorted := append([]domain.Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	t := &Table{
		tiers:       sorted,
		bySlug:      make(map[string]*domain.Tier, len(sorted)),
		priorityMap: make(map[domain.Priority]string, len(priorityMap)),
	}
	for i := range t.tiers {
		tier := &t.tiers[i]
		if tier.Slug == "" {
			return nil, fmt.Errorf("tier at rank %d has no slug", tier.Rank)
		}
		if _, dup := t.bySlug[tier.Slug]; dup {
			return nil, fmt.Errorf("duplicate tier slug %q", tier.Slug)
		}
		if i > 0 && t.tiers[i-1].Rank == tier.Rank {
			return nil, fmt.Errorf("tiers %q and %q share rank %d", t.tiers[i-1].Slug, tier.Slug, tier.Rank)
		}
		for _, p := range tier.AllowedPriorities {
			if !p.Valid() {
				return nil, fmt.Errorf("tier %q lists unknown priority %q", tier.Slug, p)
			}
		}
		t.bySlug[tier.Slug] = tier
	}
	if err := checkSuperset(t.tiers); err != nil {
		return nil, err
	}
	for p, slug := range priorityMap {
		t.priorityMap[p] = slug
	}
	return t, nil
}

// NewDefaultTable builds the standard catalogue.
func NewDefaultTable() *Table {
	t, err := NewTable(DefaultTiers(), DefaultPriorityMap())
	if err != nil {
		panic(err) // static data
	}
	return t
}

func checkSuperset(ordered []domain.Tier) error {
	for i := 1; i < len(ordered); i++ {
		lower, higher := ordered[i-1], ordered[i]
		var missing []string
		for _, p := range lower.AllowedPriorities {
			if !higher.Allows(p) {
				missing = append(missing, string(p))
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("tier %q must include priorities of lower tier %q: missing %s",
				higher.Slug, lower.Slug, strings.Join(missing, ", "))
		}
	}
	return nil
}

// Tier returns the tier for slug.
func (t *Table) Tier(slug string) (*domain.Tier, bool) {
	tier, ok := t.bySlug[slug]
	return tier, ok
}

// Tiers returns all tiers, lowest rank first.
func (t *Table) Tiers() []domain.Tier {
	return append([]domain.Tier(nil), t.tiers...)
}

// MinTierFor returns the minimum tier slug for p; ok is false when p has no mapping.
func (t *Table) MinTierFor(p domain.Priority) (string, bool) {
	slug, ok := t.priorityMap[p]
	if !ok {
		return "", false
	}
	if _, known := t.bySlug[slug]; !known {
		return "", false
	}
	return slug, true
}

// Eligible reports whether a subscriber on tierSlug may receive sig.
// The tier must allow the signal's priority and rank at or above the signal's stored minimum tier.
// Unknown tiers on either side make nobody eligible.
func (t *Table) Eligible(tierSlug string, sig *domain.Signal) bool {
	tier, ok := t.bySlug[tierSlug]
	if !ok || sig == nil {
		return false
	}
	minTier, ok := t.bySlug[sig.MinTier]
	if !ok {
		return false
	}
	return tier.Allows(sig.Priority) && tier.Rank >= minTier.Rank
}
