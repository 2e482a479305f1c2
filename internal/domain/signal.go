package domain

import "time"

// SignalStatus is the lifecycle state of a published signal.
type SignalStatus string

const (
	StatusActive SignalStatus = "active"
	StatusTP1Hit SignalStatus = "tp1_hit"
	StatusTP2Hit SignalStatus = "tp2_hit"
	StatusTP3Hit SignalStatus = "tp3_hit"
	StatusSLHit  SignalStatus = "sl_hit"
	StatusClosed SignalStatus = "closed"
)

// progress orders the non-terminal path; terminal states that leave the path carry no rank.
var statusProgress = map[SignalStatus]int{
	StatusActive: 0,
	StatusTP1Hit: 1,
	StatusTP2Hit: 2,
	StatusTP3Hit: 3,
}

// Valid reports whether s is a known status.
func (s SignalStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTP1Hit, StatusTP2Hit, StatusTP3Hit, StatusSLHit, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s SignalStatus) IsTerminal() bool {
	return s == StatusTP3Hit || s == StatusSLHit || s == StatusClosed
}

// CanTransition reports whether a signal may move from s to next.
// Transitions are monotonic: no return to active, no backwards TP step, nothing out of a terminal state.
func (s SignalStatus) CanTransition(next SignalStatus) bool {
	if !s.Valid() || !next.Valid() || s == next || s.IsTerminal() {
		return false
	}
	switch next {
	case StatusActive:
		return false
	case StatusSLHit, StatusClosed:
		return true
	}
	return statusProgress[next] > statusProgress[s]
}

// Signal is a published trade recommendation.
// Priority and MinTier are fixed at creation so later tier-table edits do not change who could have seen it.
type Signal struct {
	ID           int64
	Ref          string // External reference (uuid), stable across stores and event streams
	BindingID    int64  // Zero for signals not produced by a strategy binding
	Symbol       string
	Direction    Direction
	Entry        float64
	StopLoss     float64
	TakeProfits  []float64 // One to three levels, nearest first
	RiskFraction float64
	Confidence   int // 0..100
	Timeframe    string
	Priority     Priority
	MinTier      string
	Source       Source
	Analysis     string
	Status       SignalStatus
	ResultPips   *float64
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// TakeProfit returns the n-th (1-based) take-profit level, or 0 when absent.
func (s *Signal) TakeProfit(n int) float64 {
	if n < 1 || n > len(s.TakeProfits) {
		return 0
	}
	return s.TakeProfits[n-1]
}

// IsActive reports whether the signal is still open.
func (s *Signal) IsActive() bool {
	return !s.Status.IsTerminal()
}

// SignalCandidate is the output of an analysis step before it is persisted and prioritised.
type SignalCandidate struct {
	Symbol       string
	Direction    Direction
	Entry        float64
	StopLoss     float64
	TakeProfits  []float64
	RiskFraction float64
	Confidence   int
	Timeframe    string
	Source       Source
	Analysis     string
	NewsImpact   Impact // Set only for news-sourced candidates
}
