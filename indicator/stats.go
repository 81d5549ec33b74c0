package indicator

import "math"

// PercentChanges returns the fractional change between consecutive values. Changes
// from a zero value are skipped.
func PercentChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	changes := make([]float64, 0, len(values)-1)
	for idx := 1; idx < len(values); idx++ {
		prev := values[idx-1]
		if prev == 0 {
			continue
		}
		changes = append(changes, (values[idx]-prev)/prev)
	}

	return changes
}

// StdDev returns the sample standard deviation of the provided values, zero when
// there are fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	return math.Sqrt(sq / float64(len(values)-1))
}
