package indicator

import (
	"fmt"
	"math"

	"github.com/dnldd/smc/shared"
)

// ADX returns the average directional index series of the provided candles over the
// provided period. The first defined value is at index 2*period-1.
func ADX(candles []*shared.Candlestick, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("adx period must be positive, got %d", period)
	}

	n := len(candles)
	adx := nanSeries(n)
	if n < 2*period {
		return adx, nil
	}

	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for idx := 1; idx < n; idx++ {
		up := candles[idx].High - candles[idx-1].High
		down := candles[idx-1].Low - candles[idx].Low
		if up > down && up > 0 {
			plusDM[idx] = up
		}
		if down > up && down > 0 {
			minusDM[idx] = down
		}
	}

	// Directional movement starts at the second candle.
	sTR := wilder(tr, 1, period)
	sPlus := wilder(plusDM, 1, period)
	sMinus := wilder(minusDM, 1, period)

	dx := nanSeries(n)
	for idx := period; idx < n; idx++ {
		if sTR[idx] == 0 {
			dx[idx] = 0
			continue
		}

		plusDI := 100 * sPlus[idx] / sTR[idx]
		minusDI := 100 * sMinus[idx] / sTR[idx]
		sum := plusDI + minusDI
		if sum == 0 {
			dx[idx] = 0
			continue
		}

		dx[idx] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	return wilder(dx, period, period), nil
}
