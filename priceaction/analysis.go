package priceaction

import (
	"errors"
	"fmt"
	"math"

	"github.com/dnldd/smc/indicator"
	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

// AnalysisConfig represents the price action analysis configuration.
type AnalysisConfig struct {
	// MomentumLength is the ema length used for momentum bias.
	MomentumLength int
	// ADXPeriod is the average directional index period of the trend filter.
	ADXPeriod int
	// ATRPeriod is the average true range period used for volatility.
	ATRPeriod int
	// MinADX is the average directional index threshold entries must exceed.
	MinADX float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *AnalysisConfig) Validate() error {
	var errs error
	if cfg.MomentumLength <= 0 {
		errs = errors.Join(errs, fmt.Errorf("momentum length must be positive, got %d", cfg.MomentumLength))
	}
	if cfg.ADXPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("adx period must be positive, got %d", cfg.ADXPeriod))
	}
	if cfg.ATRPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("atr period must be positive, got %d", cfg.ATRPeriod))
	}
	if cfg.MinADX < 0 {
		errs = errors.Join(errs, fmt.Errorf("min adx cannot be negative, got %f", cfg.MinADX))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Analysis represents the precomputed price action state of a market's candle series.
// Every value at index i depends only on the candles up to and including i.
type Analysis struct {
	cfg     *AnalysisConfig
	market  string
	candles []*shared.Candlestick
	closes  []float64
	ema     []float64
	atr     []float64
	adx     []float64
}

// NewAnalysis initializes a new price action analysis of the provided candles.
func NewAnalysis(market string, candles []*shared.Candlestick, cfg *AnalysisConfig) (*Analysis, error) {
	closes := shared.Closes(candles)
	ema, err := indicator.EMA(closes, cfg.MomentumLength)
	if err != nil {
		return nil, fmt.Errorf("calculating ema: %w", err)
	}

	atr, err := indicator.ATR(candles, cfg.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("calculating atr: %w", err)
	}

	adx, err := indicator.ADX(candles, cfg.ADXPeriod)
	if err != nil {
		return nil, fmt.Errorf("calculating adx: %w", err)
	}

	return &Analysis{
		cfg:     cfg,
		market:  market,
		candles: candles,
		closes:  closes,
		ema:     ema,
		atr:     atr,
		adx:     adx,
	}, nil
}

// Market returns the analysed market.
func (a *Analysis) Market() string {
	return a.market
}

// Len returns the number of analysed candles.
func (a *Analysis) Len() int {
	return len(a.candles)
}

// Candle returns the candle at the provided index, nil if out of range.
func (a *Analysis) Candle(idx int) *shared.Candlestick {
	if idx < 0 || idx >= len(a.candles) {
		return nil
	}

	return a.candles[idx]
}

// ATR returns the average true range at the provided index, NaN if undefined.
func (a *Analysis) ATR(idx int) float64 {
	if idx < 0 || idx >= len(a.atr) {
		return math.NaN()
	}

	return a.atr[idx]
}

// ADX returns the average directional index at the provided index, NaN if undefined.
func (a *Analysis) ADX(idx int) float64 {
	if idx < 0 || idx >= len(a.adx) {
		return math.NaN()
	}

	return a.adx[idx]
}

// Momentum returns the momentum bias at the provided index.
func (a *Analysis) Momentum(idx int) (shared.Sentiment, error) {
	if idx < 0 || idx >= len(a.ema) || indicator.Undefined(a.ema[idx]) {
		return shared.Neutral, shared.ErrInsufficientData
	}

	return bias(a.closes[idx], a.ema[idx]), nil
}

// Trending checks whether the market is trending at the provided index.
func (a *Analysis) Trending(idx int) bool {
	adx := a.ADX(idx)
	return !indicator.Undefined(adx) && adx > a.cfg.MinADX
}

// Evaluate returns a confirmed entry signal at the provided index, nil if the price
// action does not support an entry. Entries require a break of structure agreeing with
// the latest fair value gap and liquidity sweep, a momentum bias in the same direction
// and a trending market.
func (a *Analysis) Evaluate(idx int) (*shared.EntrySignal, error) {
	if idx < 0 || idx >= len(a.candles) {
		return nil, fmt.Errorf("index %d out of range for %d candles", idx, len(a.candles))
	}

	detection, err := Detect(a.candles[:idx+1])
	if err != nil {
		return nil, err
	}

	sentiment, ok := detection.Confirmed()
	if !ok {
		return nil, nil
	}

	momentum, err := a.Momentum(idx)
	if err != nil {
		return nil, err
	}

	if momentum != sentiment {
		a.cfg.Logger.Debug().Msgf("%s: %s momentum opposes %s structure at %d",
			a.market, momentum, sentiment, idx)
		return nil, nil
	}

	if !a.Trending(idx) {
		a.cfg.Logger.Debug().Msgf("%s: adx %.2f below %.2f at %d",
			a.market, a.ADX(idx), a.cfg.MinADX, idx)
		return nil, nil
	}

	direction, _ := sentiment.Direction()
	reasons := []shared.Reason{
		shared.BreakOfStructureConfirmed,
		shared.ImbalanceConfirmed,
		shared.LiquiditySweepConfirmed,
		shared.MomentumConfirmed,
		shared.TrendingMarket,
	}

	signal := shared.NewEntrySignal(a.market, direction, detection.Sweep.EntryPrice,
		reasons, idx, a.candles[idx].Date)

	return &signal, nil
}

// Snapshot represents a market's ranking inputs at a simulation step.
type Snapshot struct {
	Market string
	// Closes are the close prices of the ranking window, oldest first.
	Closes []float64
	Close  float64
	// ATR is the average true range at the step, NaN if undefined.
	ATR      float64
	Momentum shared.Sentiment
	// MomentumKnown indicates whether the momentum bias could be determined.
	MomentumKnown bool
}

// Snapshot returns the ranking inputs of the market at the provided index over the
// provided window of candles.
func (a *Analysis) Snapshot(idx int, window int) *Snapshot {
	if idx < 0 || idx >= len(a.candles) {
		return nil
	}

	start := 0
	if window > 0 && idx+1-window > 0 {
		start = idx + 1 - window
	}

	momentum, err := a.Momentum(idx)

	return &Snapshot{
		Market:        a.market,
		Closes:        a.closes[start : idx+1],
		Close:         a.closes[idx],
		ATR:           a.atr[idx],
		Momentum:      momentum,
		MomentumKnown: err == nil,
	}
}
