package domain

import "strings"

// Priority ranks a signal for entitlement purposes.
type Priority string

const (
	PriorityLow       Priority = "LOW"
	PriorityMedium    Priority = "MEDIUM"
	PriorityHigh      Priority = "HIGH"
	PriorityVIP       Priority = "VIP"
	PriorityExclusive Priority = "EXCLUSIVE"
)

var priorityRank = map[Priority]int{
	PriorityLow:       0,
	PriorityMedium:    1,
	PriorityHigh:      2,
	PriorityVIP:       3,
	PriorityExclusive: 4,
}

// Rank returns the ordinal of p, or -1 when p is unknown.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return -1
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool { return p.Rank() >= 0 }

// ParsePriority normalises s into a Priority. Unknown input yields "".
func ParsePriority(s string) Priority {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return ""
	}
	return p
}

// AllPriorities lists priorities from lowest to highest.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityVIP, PriorityExclusive}
}
