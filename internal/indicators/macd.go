package indicators

// MACDResult holds the latest MACD values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Bullish   bool
}

// MACD computes the MACD line (fast EMA minus slow EMA), its signal EMA and the histogram.
// A zero result is returned when fewer than slow closes are available.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow {
		return MACDResult{}
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	// The line is only meaningful once the slow EMA is seeded.
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	signalLine := EMA(line, signal)

	m := Last(line)
	s := Last(signalLine)
	return MACDResult{
		MACD:      m,
		Signal:    s,
		Histogram: m - s,
		Bullish:   m > s,
	}
}
