package indicators

// SMA returns the simple moving average series of data.
// The first period-1 points carry the raw input value so the series never looks ahead.
func SMA(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	if period <= 1 {
		copy(out, data)
		return out
	}

	var window float64
	for i, v := range data {
		window += v
		if i >= period {
			window -= data[i-period]
		}
		if i < period-1 {
			out[i] = v
			continue
		}
		out[i] = window / float64(period)
	}
	return out
}

// EMA returns the exponential moving average series of data, seeded with the
// simple average of the first period points. Data shorter than period is returned unchanged.
func EMA(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	if period <= 0 || len(data) < period {
		return out
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += data[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	multiplier := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(data); i++ {
		prev = (data[i]-prev)*multiplier + prev
		out[i] = prev
	}
	return out
}

// CrossedUp reports whether fast moved from at or below slow to above it on the last point.
func CrossedUp(fast, slow []float64) bool {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return false
	}
	return fast[n-2] <= slow[n-2] && fast[n-1] > slow[n-1]
}

// CrossedDown reports whether fast moved from at or above slow to below it on the last point.
func CrossedDown(fast, slow []float64) bool {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return false
	}
	return fast[n-2] >= slow[n-2] && fast[n-1] < slow[n-1]
}
