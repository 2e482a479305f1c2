package domain

import "time"

// Candle represents a single OHLCV bar.
type Candle struct {
	OpenTime time.Time // Start time of the interval
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the closing prices of candles in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
