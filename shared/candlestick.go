package shared

import (
	"time"
)

// Sentiment represents the directional bias of a candlestick or price action event.
type Sentiment int

const (
	Neutral Sentiment = iota
	Bullish
	Bearish
)

// String stringifies the provided sentiment.
func (s Sentiment) String() string {
	switch s {
	case Neutral:
		return "neutral"
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// Direction returns the position direction that trades with the sentiment.
func (s Sentiment) Direction() (Direction, bool) {
	switch s {
	case Bullish:
		return Long, true
	case Bearish:
		return Short, true
	default:
		return Long, false
	}
}

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	Date   time.Time

	// Metadata fields.
	Market    string
	Timeframe Timeframe
}

// FetchSentiment returns the provided candlestick's sentiment.
func (c *Candlestick) FetchSentiment() Sentiment {
	sentiment := c.Close - c.Open
	switch {
	case sentiment < 0:
		return Bearish
	case sentiment > 0:
		return Bullish
	default:
		return Neutral
	}
}

// Closes returns the close prices of the provided candlesticks.
func Closes(candles []*Candlestick) []float64 {
	closes := make([]float64, len(candles))
	for idx := range candles {
		closes[idx] = candles[idx].Close
	}

	return closes
}

// Pointers returns the provided candlesticks as a slice of pointers into the
// same backing array.
func Pointers(candles []Candlestick) []*Candlestick {
	set := make([]*Candlestick, len(candles))
	for idx := range candles {
		set[idx] = &candles[idx]
	}

	return set
}
