package broadcast

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"signalHub/internal/domain"
	"signalHub/internal/news"
)

// Message renders a signal for one tier. Content depends only on the tier's flags.
type Message struct {
	signal *domain.Signal
	tier   *domain.Tier
	status domain.SignalStatus
}

// NewMessage starts a message for the initial delivery of sig to tier.
func NewMessage(sig *domain.Signal, tier *domain.Tier) *Message {
	return &Message{signal: sig, tier: tier}
}

// WithStatus turns the message into an update announcing status.
func (m *Message) WithStatus(status domain.SignalStatus) *Message {
	m.status = status
	return m
}

// Render produces Telegram-compatible HTML.
func (m *Message) Render() string {
	if m.status != "" {
		return m.renderStatus()
	}
	sig := m.signal
	var sb strings.Builder

	if sig.Priority == domain.PriorityExclusive && m.tier.IncludesExclusiveChannel {
		sb.WriteString("<b>EXCLUSIVE</b>\n")
	}
	fmt.Fprintf(&sb, "%s <b>%s %s</b> (%s)\n", directionMark(sig.Direction), sig.Direction, html.EscapeString(sig.Symbol), html.EscapeString(sig.Timeframe))
	fmt.Fprintf(&sb, "Entry: <code>%s</code>\n", FormatPrice(sig.Symbol, sig.Entry))

	if m.tier.IncludesSLTP {
		fmt.Fprintf(&sb, "Stop loss: <code>%s</code>\n", FormatPrice(sig.Symbol, sig.StopLoss))
		for i, tp := range sig.TakeProfits {
			fmt.Fprintf(&sb, "TP%d: <code>%s</code>\n", i+1, FormatPrice(sig.Symbol, tp))
		}
	}

	fmt.Fprintf(&sb, "Confidence: %d%%\n", sig.Confidence)
	fmt.Fprintf(&sb, "Priority: %s\n", sig.Priority)
	if sig.Source.IsNews() {
		sb.WriteString("Source: economic calendar\n")
	}

	if m.tier.IncludesAnalysis && sig.Analysis != "" {
		fmt.Fprintf(&sb, "\n<i>%s</i>\n", html.EscapeString(sig.Analysis))
	}
	fmt.Fprintf(&sb, "\nRef: %s", sig.Ref)
	return sb.String()
}

func (m *Message) renderStatus() string {
	sig := m.signal
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s %s</b> update: %s\n", sig.Direction, html.EscapeString(sig.Symbol), statusLabel(m.status))
	if m.tier.IncludesSLTP {
		switch m.status {
		case domain.StatusTP1Hit, domain.StatusTP2Hit, domain.StatusTP3Hit:
			level := statusLevel(m.status)
			if tp := sig.TakeProfit(level); tp != 0 {
				fmt.Fprintf(&sb, "TP%d <code>%s</code> reached\n", level, FormatPrice(sig.Symbol, tp))
			}
		case domain.StatusSLHit:
			fmt.Fprintf(&sb, "Stop loss <code>%s</code> reached\n", FormatPrice(sig.Symbol, sig.StopLoss))
		}
	}
	if m.status.IsTerminal() && sig.ResultPips != nil {
		fmt.Fprintf(&sb, "Result: %s pips\n", decimal.NewFromFloat(*sig.ResultPips).StringFixed(1))
	}
	fmt.Fprintf(&sb, "Ref: %s", sig.Ref)
	return sb.String()
}

// FormatPrice rounds price to one decimal place beyond the symbol's pip size.
func FormatPrice(symbol string, price float64) string {
	places := int32(-math.Round(math.Log10(news.PipSize(symbol)))) + 1
	if places < 2 {
		places = 2
	}
	return decimal.NewFromFloat(price).StringFixed(places)
}

func directionMark(d domain.Direction) string {
	if d == domain.Buy {
		return "🟢"
	}
	return "🔴"
}

func statusLevel(s domain.SignalStatus) int {
	switch s {
	case domain.StatusTP1Hit:
		return 1
	case domain.StatusTP2Hit:
		return 2
	case domain.StatusTP3Hit:
		return 3
	}
	return 0
}

func statusLabel(s domain.SignalStatus) string {
	switch s {
	case domain.StatusActive:
		return "active"
	case domain.StatusTP1Hit:
		return "TP1 hit"
	case domain.StatusTP2Hit:
		return "TP2 hit"
	case domain.StatusTP3Hit:
		return "TP3 hit"
	case domain.StatusSLHit:
		return "stop loss hit"
	case domain.StatusClosed:
		return "closed"
	}
	return string(s)
}
