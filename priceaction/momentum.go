package priceaction

import (
	"github.com/dnldd/smc/indicator"
	"github.com/dnldd/smc/shared"
)

const (
	// MomentumLength is the default ema length for momentum bias.
	MomentumLength = 5
	// ADXPeriod is the default average directional index period.
	ADXPeriod = 14
	// ATRPeriod is the default average true range period.
	ATRPeriod = 14
)

// bias compares a close against its moving average.
func bias(close float64, ema float64) shared.Sentiment {
	if close < ema {
		return shared.Bearish
	}

	return shared.Bullish
}

// MomentumBias returns the momentum bias of the provided candles, bearish when the last
// close is below the exponential moving average of the provided length.
func MomentumBias(candles []*shared.Candlestick, length int) (shared.Sentiment, error) {
	closes := shared.Closes(candles)
	ema, err := indicator.EMA(closes, length)
	if err != nil {
		return shared.Neutral, err
	}

	if len(closes) == 0 || indicator.Undefined(ema[len(ema)-1]) {
		return shared.Neutral, shared.ErrInsufficientData
	}

	return bias(closes[len(closes)-1], ema[len(ema)-1]), nil
}

// Trending checks whether the average directional index of the provided candles is
// above the provided threshold. Insufficient history is not trending.
func Trending(candles []*shared.Candlestick, period int, minADX float64) bool {
	adx, err := indicator.ADX(candles, period)
	if err != nil || len(adx) == 0 {
		return false
	}

	last := adx[len(adx)-1]
	return !indicator.Undefined(last) && last > minADX
}
