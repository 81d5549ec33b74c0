package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestFetchSentiment(t *testing.T) {
	tests := []struct {
		name   string
		candle Candlestick
		want   Sentiment
	}{
		{
			"bullish candle",
			Candlestick{Open: 10, Close: 12, High: 13, Low: 9},
			Bullish,
		},
		{
			"bearish candle",
			Candlestick{Open: 12, Close: 10, High: 13, Low: 9},
			Bearish,
		},
		{
			"doji",
			Candlestick{Open: 10, Close: 10, High: 11, Low: 9},
			Neutral,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.candle.FetchSentiment(), test.want)
		})
	}
}

func TestSentimentDirection(t *testing.T) {
	// Ensure bullish sentiment trades long.
	dir, ok := Bullish.Direction()
	assert.True(t, ok)
	assert.Equal(t, dir, Long)

	// Ensure bearish sentiment trades short.
	dir, ok = Bearish.Direction()
	assert.True(t, ok)
	assert.Equal(t, dir, Short)

	// Ensure neutral sentiment has no tradable direction.
	_, ok = Neutral.Direction()
	assert.False(t, ok)
}

func TestSentimentString(t *testing.T) {
	assert.Equal(t, Neutral.String(), "neutral")
	assert.Equal(t, Bullish.String(), "bullish")
	assert.Equal(t, Bearish.String(), "bearish")
	assert.Equal(t, Sentiment(99).String(), "unknown")
}

func TestClosesAndPointers(t *testing.T) {
	candles := []Candlestick{
		{Close: 1},
		{Close: 2},
		{Close: 3},
	}

	// Ensure pointers share the backing array of the provided candles.
	ptrs := Pointers(candles)
	assert.Equal(t, len(ptrs), len(candles))
	ptrs[0].Close = 5
	assert.Equal(t, candles[0].Close, float64(5))

	// Ensure close prices are extracted in order.
	closes := Closes(ptrs)
	assert.Equal(t, closes, []float64{5, 2, 3})
}
