package priceaction

import (
	"github.com/dnldd/smc/shared"
)

const (
	// minDetectionCandles is the minimum number of candles required for pattern detection.
	minDetectionCandles = 3
)

// LatestStructure returns the most recent market structure event of the provided
// candles, nil if there is none. A higher high is a bullish break of structure at the
// previous high, a lower low is a bearish break of structure at the previous low and
// an inside bar is a change of character at the current high.
func LatestStructure(candles []*shared.Candlestick) (*shared.StructureEvent, error) {
	if len(candles) < minDetectionCandles {
		return nil, shared.ErrInsufficientData
	}

	for idx := len(candles) - 1; idx >= 2; idx-- {
		current := candles[idx]
		prev := candles[idx-1]

		switch {
		case current.High > prev.High:
			return &shared.StructureEvent{
				Kind:      shared.BreakOfStructure,
				Sentiment: shared.Bullish,
				Level:     prev.High,
				Index:     idx,
				Date:      current.Date,
			}, nil
		case current.Low < prev.Low:
			return &shared.StructureEvent{
				Kind:      shared.BreakOfStructure,
				Sentiment: shared.Bearish,
				Level:     prev.Low,
				Index:     idx,
				Date:      current.Date,
			}, nil
		case current.High < prev.High && current.Low > prev.Low:
			return &shared.StructureEvent{
				Kind:      shared.ChangeOfCharacter,
				Sentiment: shared.Neutral,
				Level:     current.High,
				Index:     idx,
				Date:      current.Date,
			}, nil
		}
	}

	return nil, nil
}

// LatestImbalance returns the most recent fair value gap of the provided candles, nil
// if there is none.
func LatestImbalance(candles []*shared.Candlestick) (*shared.Imbalance, error) {
	if len(candles) < minDetectionCandles {
		return nil, shared.ErrInsufficientData
	}

	for idx := len(candles) - 1; idx >= 2; idx-- {
		current := candles[idx]
		first := candles[idx-2]

		switch {
		case current.Low > first.High:
			return shared.NewImbalance(shared.Bullish, first.High, current.Low, idx, current.Date), nil
		case current.High < first.Low:
			return shared.NewImbalance(shared.Bearish, current.High, first.Low, idx, current.Date), nil
		}
	}

	return nil, nil
}

// LatestSweep returns the most recent liquidity sweep of the provided candles, nil if
// there is none. A candle that sweeps both extremes is treated as a bearish sweep.
func LatestSweep(candles []*shared.Candlestick) (*shared.LiquiditySweep, error) {
	if len(candles) < minDetectionCandles {
		return nil, shared.ErrInsufficientData
	}

	for idx := len(candles) - 1; idx >= 2; idx-- {
		current := candles[idx]
		prev := candles[idx-1]

		switch {
		case current.High > prev.High && current.Close < prev.High:
			return &shared.LiquiditySweep{
				Sentiment:  shared.Bearish,
				Level:      prev.High,
				EntryPrice: current.Close,
				Index:      idx,
				Date:       current.Date,
			}, nil
		case current.Low < prev.Low && current.Close > prev.Low:
			return &shared.LiquiditySweep{
				Sentiment:  shared.Bullish,
				Level:      prev.Low,
				EntryPrice: current.Close,
				Index:      idx,
				Date:       current.Date,
			}, nil
		}
	}

	return nil, nil
}

// Detection represents the latest price action patterns of a candle series.
type Detection struct {
	Structure *shared.StructureEvent
	Imbalance *shared.Imbalance
	Sweep     *shared.LiquiditySweep
}

// Detect returns the latest structure event, fair value gap and liquidity sweep of
// the provided candles.
func Detect(candles []*shared.Candlestick) (*Detection, error) {
	structure, err := LatestStructure(candles)
	if err != nil {
		return nil, err
	}

	imb, err := LatestImbalance(candles)
	if err != nil {
		return nil, err
	}

	sweep, err := LatestSweep(candles)
	if err != nil {
		return nil, err
	}

	return &Detection{
		Structure: structure,
		Imbalance: imb,
		Sweep:     sweep,
	}, nil
}

// Confirmed returns the sentiment of the detection if the latest structure event is a
// break of structure agreeing with both the fair value gap and the liquidity sweep.
func (d *Detection) Confirmed() (shared.Sentiment, bool) {
	if d.Structure == nil || d.Imbalance == nil || d.Sweep == nil {
		return shared.Neutral, false
	}

	if d.Structure.Kind != shared.BreakOfStructure {
		return shared.Neutral, false
	}

	sentiment := d.Structure.Sentiment
	if d.Imbalance.Sentiment != sentiment || d.Sweep.Sentiment != sentiment {
		return shared.Neutral, false
	}

	return sentiment, true
}
