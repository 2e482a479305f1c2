package indicators

import "signalHub/internal/domain"

// StochasticResult holds the latest smoothed %K and %D.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes the slow stochastic oscillator. Raw %K is
// (close - lowest low) / (highest high - lowest low) * 100 over period candles,
// smoothed by smoothK to give %K, which is smoothed by smoothD to give %D.
// Insufficient data yields 50/50.
func Stochastic(candles []domain.Candle, period, smoothK, smoothD int) StochasticResult {
	neutral := StochasticResult{K: 50, D: 50}
	if period <= 0 || smoothK <= 0 || smoothD <= 0 || len(candles) < period+smoothK+smoothD-2 {
		return neutral
	}

	raw := make([]float64, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		hh, ll := candles[i].High, candles[i].Low
		for j := i - period + 1; j < i; j++ {
			if candles[j].High > hh {
				hh = candles[j].High
			}
			if candles[j].Low < ll {
				ll = candles[j].Low
			}
		}
		if hh == ll {
			raw = append(raw, 50)
			continue
		}
		raw = append(raw, (candles[i].Close-ll)/(hh-ll)*100)
	}

	k := trailingMeans(raw, smoothK)
	d := trailingMeans(k, smoothD)
	return StochasticResult{K: Last(k), D: Last(d)}
}

// trailingMeans returns the mean of every full window of size n.
func trailingMeans(data []float64, n int) []float64 {
	if len(data) < n {
		return nil
	}
	out := make([]float64, 0, len(data)-n+1)
	var sum float64
	for i, v := range data {
		sum += v
		if i >= n {
			sum -= data[i-n]
		}
		if i >= n-1 {
			out = append(out, sum/float64(n))
		}
	}
	return out
}
