package indicators

import (
	"math"

	"signalHub/internal/domain"
)

// ADXResult holds the latest trend-strength values.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes the Average Directional Index. Directional movement and true range
// are smoothed with an EMA, converted to DX and smoothed again.
// A zero result is returned when fewer than 2*period candles are available.
func ADX(candles []domain.Candle, period int) ADXResult {
	if period <= 0 || len(candles) < 2*period {
		return ADXResult{}
	}

	n := len(candles) - 1
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
	}

	smTR := EMA(tr, period)
	smPlus := EMA(plusDM, period)
	smMinus := EMA(minusDM, period)

	dx := make([]float64, 0, n-period+1)
	var plusDI, minusDI float64
	for i := period - 1; i < n; i++ {
		if smTR[i] == 0 {
			plusDI, minusDI = 0, 0
			dx = append(dx, 0)
			continue
		}
		plusDI = 100 * smPlus[i] / smTR[i]
		minusDI = 100 * smMinus[i] / smTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(plusDI-minusDI)/sum)
	}

	return ADXResult{
		ADX:     Last(EMA(dx, period)),
		PlusDI:  plusDI,
		MinusDI: minusDI,
	}
}
