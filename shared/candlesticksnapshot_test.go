package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestCandlestickSnapshot(t *testing.T) {
	// Ensure candle snapshot size cannot be negative or zero.
	_, err := NewCandlestickSnapshot(-1)
	assert.Error(t, err)

	_, err = NewCandlestickSnapshot(0)
	assert.Error(t, err)

	// Ensure a candlestick snapshot can be created.
	size := int32(4)
	candleSnapshot, err := NewCandlestickSnapshot(size)
	assert.NoError(t, err)

	// Ensure calling last on an empty snapshot returns nothing.
	last := candleSnapshot.Last()
	assert.Nil(t, last)

	// Ensure calling LastN on an empty snapshot returns an empty set.
	lastN := candleSnapshot.LastN(size)
	assert.Equal(t, len(lastN), 0)

	// Ensure calling LastN with zero or negative size returns nil.
	lastN = candleSnapshot.LastN(-1)
	assert.Nil(t, lastN)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Ensure the snapshot can be updated with candles.
	for idx := range size {
		candle := &Candlestick{
			Open:      float64(idx + 1),
			Close:     float64(idx + 2),
			High:      float64(idx + 3),
			Low:       float64(idx),
			Volume:    float64(idx),
			Date:      start.Add(time.Minute * 5 * time.Duration(idx)),
			Timeframe: FiveMinute,
		}
		ok := candleSnapshot.Update(candle)
		assert.True(t, ok)
	}

	assert.Equal(t, candleSnapshot.Count(), int(size))
	assert.Equal(t, candleSnapshot.start.Load(), int32(0))

	// Ensure calling last on a valid snapshot returns the last added entry.
	last = candleSnapshot.Last()
	assert.Equal(t, last.Low, float64(3))

	// Ensure stale candles are ignored.
	ok := candleSnapshot.Update(&Candlestick{Low: 100, Date: start})
	assert.False(t, ok)
	assert.Equal(t, candleSnapshot.Last().Low, float64(3))

	// Ensure calling LastN with a larger size than the snapshot gets clamped to the snapshot's size.
	lastN = candleSnapshot.LastN(size + 1)
	assert.Equal(t, len(lastN), int(size))

	// Ensure candle updates at capacity overwrite existing slots.
	candle := &Candlestick{
		Open:      float64(5),
		Close:     float64(8),
		High:      float64(9),
		Low:       float64(7),
		Volume:    float64(2),
		Date:      start.Add(time.Hour),
		Timeframe: FiveMinute,
	}

	ok = candleSnapshot.Update(candle)
	assert.True(t, ok)
	assert.Equal(t, candleSnapshot.Count(), int(size))
	assert.Equal(t, candleSnapshot.start.Load(), int32(1))

	// Ensure LastN returns entries oldest first after wrapping.
	lastN = candleSnapshot.LastN(2)
	assert.Equal(t, len(lastN), 2)
	assert.Equal(t, lastN[0].Low, float64(3))
	assert.Equal(t, lastN[1].Low, float64(7))
}
