package indicator

import (
	"fmt"
	"math"
)

// Undefined reports whether the provided indicator value is not yet defined
// because of insufficient history.
func Undefined(value float64) bool {
	return math.IsNaN(value)
}

// nanSeries returns a series of the provided length with every entry undefined.
func nanSeries(n int) []float64 {
	series := make([]float64, n)
	for idx := range series {
		series[idx] = math.NaN()
	}

	return series
}

// EMA returns the exponential moving average series of the provided values over the
// provided period. The average is seeded with the simple average of the first period
// values, entries before that are undefined. The value at index i depends only on
// values[0..i].
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}

	series := nanSeries(len(values))
	if len(values) < period {
		return series, nil
	}

	var sum float64
	for idx := range period {
		sum += values[idx]
	}

	alpha := 2 / float64(period+1)
	ema := sum / float64(period)
	series[period-1] = ema
	for idx := period; idx < len(values); idx++ {
		ema = alpha*values[idx] + (1-alpha)*ema
		series[idx] = ema
	}

	return series, nil
}

// wilder applies Wilder's smoothing to the provided values starting at index start,
// seeded with the simple average of values[start..start+period-1].
func wilder(values []float64, start int, period int) []float64 {
	series := nanSeries(len(values))
	if start < 0 || len(values)-start < period {
		return series
	}

	var sum float64
	for idx := start; idx < start+period; idx++ {
		sum += values[idx]
	}

	avg := sum / float64(period)
	series[start+period-1] = avg
	for idx := start + period; idx < len(values); idx++ {
		avg = (avg*float64(period-1) + values[idx]) / float64(period)
		series[idx] = avg
	}

	return series
}
