package news

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalHub/internal/domain"
)

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// 2024-03-01 is the first Friday of March: payrolls at 12:30 UTC.
var payrollsAt = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func closesToCandles(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{Open: c, High: c + 0.0005, Low: c - 0.0005, Close: c}
	}
	return out
}

func newOverlayAt(t *testing.T, now time.Time) *Overlay {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	o, err := NewOverlay(cfg, NewCalendar(nil), &mockLogger{})
	require.NoError(t, err)
	return o
}

func TestClassify(t *testing.T) {
	tests := map[string]domain.Impact{
		"Non-Farm Payrolls":             domain.ImpactHigh,
		"FOMC Interest Rate Decision":   domain.ImpactHigh,
		"CPI m/m":                       domain.ImpactHigh,
		"Initial Jobless Claims":        domain.ImpactMedium,
		"German ZEW Economic Sentiment": domain.ImpactMedium,
		"Unemployment Rate":             domain.ImpactMedium,
		"Crude Oil Inventories":         domain.ImpactLow,
		"Something Obscure":             domain.ImpactLow,
	}
	for name, expected := range tests {
		assert.Equal(t, expected, Classify(name), name)
	}
}

func TestCurrenciesAndPipSize(t *testing.T) {
	tests := []struct {
		symbol string
		base   string
		quote  string
		pip    float64
	}{
		{"EURUSD", "EUR", "USD", 0.0001},
		{"USDJPY", "USD", "JPY", 0.01},
		{"XAUUSD", "XAU", "USD", 0.1},
		{"BTCUSDT", "BTC", "USD", 1},
		{"ETH/USDC", "ETH", "USD", 1},
		{"GBP_USD", "GBP", "USD", 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, quote := Currencies(tt.symbol)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.quote, quote)
			assert.Equal(t, tt.pip, PipSize(tt.symbol))
		})
	}
	assert.True(t, Affects("EURUSD", "USD"))
	assert.False(t, Affects("EURGBP", "USD"))
}

func TestCalendar_Recurrence(t *testing.T) {
	cal := NewCalendar(nil)

	first := cal.EventsOn(payrollsAt)
	names := make([]string, 0, len(first))
	for _, ev := range first {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "Non-Farm Payrolls")

	second := cal.EventsOn(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	for _, ev := range second {
		assert.NotEqual(t, "Non-Farm Payrolls", ev.Name, "payrolls only on the first Friday")
	}

	claims := 0
	for _, ev := range cal.Upcoming(payrollsAt, DefaultWindowDays) {
		if ev.Name == "Initial Jobless Claims" {
			claims++
			assert.Equal(t, time.Thursday, ev.ScheduledAt.Weekday())
			assert.Equal(t, 40.0, ev.ExpectedPips)
		}
	}
	assert.Equal(t, 1, claims, "one Thursday in a 7-day window")
}

func TestCalendar_StableForADate(t *testing.T) {
	cal := NewCalendar(nil)
	a := cal.EventsOn(payrollsAt)
	a[0].Name = "mutated"
	b := cal.EventsOn(payrollsAt.Add(3 * time.Hour))
	assert.NotEqual(t, "mutated", b[0].Name, "callers get copies")
	assert.Equal(t, NewCalendar(nil).EventsOn(payrollsAt), b, "generation is deterministic")
}

func TestCalendar_PrunesOldDays(t *testing.T) {
	cal := NewCalendar(nil)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var first []domain.EconomicEvent
	for i := 0; i < 120; i++ {
		events := cal.Upcoming(start.AddDate(0, 0, i), DefaultWindowDays)
		if i == 0 {
			first = events
		}
	}

	cal.mu.Lock()
	size := len(cal.cache)
	_, kept := cal.cache["2024-01-01"]
	cal.mu.Unlock()
	assert.LessOrEqual(t, size, 2*cacheRetentionDays+1)
	assert.False(t, kept, "days far behind the rolling window are evicted")

	// Evicted days regenerate the same events.
	assert.Equal(t, first, cal.Upcoming(start, DefaultWindowDays))
}

func TestShouldAvoid(t *testing.T) {
	o := newOverlayAt(t, payrollsAt.Add(-10*time.Minute))
	now := payrollsAt.Add(-10 * time.Minute)

	avoid, ev := o.ShouldAvoid("EURUSD", now, 30*time.Minute)
	assert.True(t, avoid)
	require.NotNil(t, ev)
	assert.Equal(t, "Non-Farm Payrolls", ev.Name)

	avoid, _ = o.ShouldAvoid("EURGBP", now, 30*time.Minute)
	assert.False(t, avoid, "no USD leg")

	avoid, _ = o.ShouldAvoid("EURUSD", now, 5*time.Minute)
	assert.False(t, avoid, "event outside window")
}

func TestEvaluate_PreNewsGating(t *testing.T) {
	o := newOverlayAt(t, payrollsAt.Add(-10*time.Minute))

	strong := closesToCandles(1.0800, 1.0801, 1.0802, 1.0803, 1.0804, 1.0805)
	c := o.Evaluate(context.Background(), "EURUSD", "5m", strong, domain.RiskMedium)
	require.NotNil(t, c)
	assert.Equal(t, domain.SourceNewsPre, c.Source)
	assert.Equal(t, domain.Buy, c.Direction)
	assert.GreaterOrEqual(t, c.Confidence, 70)
	assert.Equal(t, 0.005, c.RiskFraction, "half of the medium risk")
	assert.InDelta(t, 1.0805-0.002, c.StopLoss, 1e-9, "HIGH stop 0.5x80 pips halved")
	assert.InDelta(t, 1.0805+0.012, c.TakeProfits[0], 1e-9)

	weak := closesToCandles(1.0800, 1.0801, 1.0800, 1.0801, 1.0800, 1.0801)
	assert.Nil(t, o.Evaluate(context.Background(), "EURUSD", "5m", weak, domain.RiskMedium), "below the 70 floor")
}

func TestEvaluate_PostNews(t *testing.T) {
	o := newOverlayAt(t, payrollsAt.Add(4*time.Minute))

	falling := closesToCandles(1.0805, 1.0804, 1.0803, 1.0802, 1.0801, 1.0800)
	c := o.Evaluate(context.Background(), "EURUSD", "5m", falling, domain.RiskLow)
	require.NotNil(t, c)
	assert.Equal(t, domain.SourceNews, c.Source)
	assert.Equal(t, domain.ImpactHigh, c.NewsImpact)
	assert.Equal(t, domain.Sell, c.Direction)
	assert.Equal(t, 100, c.Confidence)
	assert.InDelta(t, 1.0800+0.004, c.StopLoss, 1e-9)
	assert.InDelta(t, 1.0800-0.012, c.TakeProfits[0], 1e-9)
	assert.Contains(t, c.Analysis, "Non-Farm Payrolls")
}

func TestEvaluate_QuietMarket(t *testing.T) {
	o := newOverlayAt(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	candles := closesToCandles(1, 2, 3, 4, 5, 6)
	assert.Nil(t, o.Evaluate(context.Background(), "EURUSD", "5m", candles, domain.RiskLow))
	assert.Nil(t, o.Evaluate(context.Background(), "EURUSD", "5m", candles[:3], domain.RiskLow))
}
