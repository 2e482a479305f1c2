package performance

import (
	"sort"
	"time"

	"signalHub/internal/domain"
)

// Stats summarises the results of closed signals, measured in pips.
type Stats struct {
	// Counts
	Total   int     `json:"total"`
	Open    int     `json:"open"`
	Closed  int     `json:"closed"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`

	// Pips
	TotalPips    float64 `json:"total_pips"`
	AverageWin   float64 `json:"average_win"`
	AverageLoss  float64 `json:"average_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	MaxDrawdown  float64 `json:"max_drawdown_pips"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	BySource map[string]*SourceStats `json:"by_source"`
	ByMonth  []MonthlyPips           `json:"by_month"`
}

// SourceStats is the per-source slice of Stats.
type SourceStats struct {
	Closed    int     `json:"closed"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	TotalPips float64 `json:"total_pips"`
}

// MonthlyPips is the pip result of signals closed in one calendar month.
type MonthlyPips struct {
	Month time.Time `json:"month"`
	Pips  float64   `json:"pips"`
}

// Analyze computes Stats over signals. Only signals with a recorded result count as closed;
// a signal closed manually without an exit price is neither a win nor a loss.
func Analyze(signals []*domain.Signal) *Stats {
	stats := &Stats{BySource: make(map[string]*SourceStats)}

	closed := make([]*domain.Signal, 0, len(signals))
	for _, sig := range signals {
		stats.Total++
		if sig.IsActive() {
			stats.Open++
			continue
		}
		if sig.ResultPips == nil {
			continue
		}
		closed = append(closed, sig)
	}

	sort.Slice(closed, func(i, j int) bool {
		return closedAt(closed[i]).Before(closedAt(closed[j]))
	})

	var equity, peak float64
	var consecutiveWins, consecutiveLosses int
	var grossWin, grossLoss float64
	monthly := make(map[string]float64)

	for _, sig := range closed {
		pips := *sig.ResultPips
		stats.Closed++
		stats.TotalPips += pips

		src := stats.BySource[string(sig.Source)]
		if src == nil {
			src = &SourceStats{}
			stats.BySource[string(sig.Source)] = src
		}
		src.Closed++
		src.TotalPips += pips

		if pips > 0 {
			stats.Wins++
			src.Wins++
			grossWin += pips
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			stats.Losses++
			grossLoss += pips
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > stats.MaxConsecutiveWins {
			stats.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > stats.MaxConsecutiveLosses {
			stats.MaxConsecutiveLosses = consecutiveLosses
		}

		equity += pips
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > stats.MaxDrawdown {
			stats.MaxDrawdown = dd
		}

		monthly[closedAt(sig).UTC().Format("2006-01")] += pips
	}

	if stats.Closed > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Closed)
		if stats.Wins > 0 {
			stats.AverageWin = grossWin / float64(stats.Wins)
		}
		if stats.Losses > 0 {
			stats.AverageLoss = grossLoss / float64(stats.Losses)
		}
		if grossLoss != 0 {
			stats.ProfitFactor = grossWin / -grossLoss
		}
		stats.Expectancy = stats.TotalPips / float64(stats.Closed)
	}
	for _, src := range stats.BySource {
		src.WinRate = float64(src.Wins) / float64(src.Closed)
	}

	stats.ByMonth = make([]MonthlyPips, 0, len(monthly))
	for month, pips := range monthly {
		date, _ := time.Parse("2006-01", month)
		stats.ByMonth = append(stats.ByMonth, MonthlyPips{Month: date, Pips: pips})
	}
	sort.Slice(stats.ByMonth, func(i, j int) bool {
		return stats.ByMonth[i].Month.Before(stats.ByMonth[j].Month)
	})

	return stats
}

func closedAt(sig *domain.Signal) time.Time {
	if sig.ClosedAt != nil {
		return *sig.ClosedAt
	}
	return sig.CreatedAt
}
