// Package indicators provides pure technical-analysis functions over close
// series and candle series. None of the functions keep state or modify their
// input; insufficient data yields a neutral value instead of an error.
package indicators

// Default periods used across the engine.
const (
	DefaultRSIPeriod   = 14
	DefaultATRPeriod   = 14
	DefaultADXPeriod   = 14
	DefaultMACDFast    = 12
	DefaultMACDSlow    = 26
	DefaultMACDSignal  = 9
	DefaultBBPeriod    = 20
	DefaultBBStdDev    = 2.0
	DefaultStochPeriod = 14
	DefaultStochSmooth = 3
)

// Last returns the final element of series, or 0 for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
