package indicators

import "math"

// BandPosition describes where the last close sits relative to the bands.
type BandPosition string

const (
	BandUpper       BandPosition = "upper"
	BandUpperMiddle BandPosition = "upper_middle"
	BandMiddle      BandPosition = "middle"
	BandLowerMiddle BandPosition = "lower_middle"
	BandLower       BandPosition = "lower"
)

// BollingerResult holds the latest Bollinger Band values.
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	PercentB float64
	Position BandPosition
}

// BollingerBands computes mean ± k standard deviations over the trailing period.
// With fewer than period closes all bands collapse onto the last close.
func BollingerBands(closes []float64, period int, k float64) BollingerResult {
	last := Last(closes)
	if period <= 0 || len(closes) < period {
		return BollingerResult{Upper: last, Middle: last, Lower: last, PercentB: 0.5, Position: BandMiddle}
	}

	window := closes[len(closes)-period:]
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	res := BollingerResult{
		Upper:  mean + k*std,
		Middle: mean,
		Lower:  mean - k*std,
	}
	width := res.Upper - res.Lower
	if width == 0 {
		res.PercentB = 0.5
	} else {
		res.PercentB = (last - res.Lower) / width
	}
	res.Position = bandPosition(res.PercentB)
	return res
}

func bandPosition(percentB float64) BandPosition {
	switch {
	case percentB >= 1:
		return BandUpper
	case percentB >= 0.6:
		return BandUpperMiddle
	case percentB > 0.4:
		return BandMiddle
	case percentB > 0:
		return BandLowerMiddle
	default:
		return BandLower
	}
}
