package indicator

import (
	"fmt"
	"math"

	"github.com/dnldd/smc/shared"
)

// TrueRange returns the true range series of the provided candles. The first
// candle has no previous close so its true range is its high-low range.
func TrueRange(candles []*shared.Candlestick) []float64 {
	series := make([]float64, len(candles))
	for idx, candle := range candles {
		tr := candle.High - candle.Low
		if idx > 0 {
			prevClose := candles[idx-1].Close
			tr = math.Max(tr, math.Abs(candle.High-prevClose))
			tr = math.Max(tr, math.Abs(candle.Low-prevClose))
		}
		series[idx] = tr
	}

	return series
}

// ATR returns the average true range series of the provided candles, smoothed
// with Wilder's moving average over the provided period.
func ATR(candles []*shared.Candlestick, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr period must be positive, got %d", period)
	}

	return wilder(TrueRange(candles), 0, period), nil
}
