package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// FilePath is the filepath to the historic market data.
	FilePath string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HistoricDataConfig) Validate() error {
	var errs error
	if cfg.FilePath == "" {
		errs = errors.Join(errs, errors.New("no historic data file path provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// HistoricData represents historic market data loaded from a json file. The file is
// an object keyed by market, each holding either an array of candles or an object of
// candle arrays keyed by timeframe.
type HistoricData struct {
	cfg  *HistoricDataConfig
	data gjson.Result
}

// Ensure HistoricData implements the CandleSource interface.
var _ shared.CandleSource = (*HistoricData)(nil)

// loadHistoricData loads the historic data from the provided file path.
func loadHistoricData(filepath string) (gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return gjson.Result{}, fmt.Errorf("invalid json in historic data file '%s'", filepath)
	}

	return gjson.ParseBytes(readb), nil
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating historic data config: %w", err)
	}

	data, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	if !data.IsObject() {
		return nil, fmt.Errorf("historic data in '%s' is not keyed by market", cfg.FilePath)
	}

	return &HistoricData{cfg: cfg, data: data}, nil
}

// Markets returns the markets in the historic data, sorted by name.
func (h *HistoricData) Markets() []string {
	var markets []string
	h.data.ForEach(func(key, _ gjson.Result) bool {
		markets = append(markets, key.String())
		return true
	})
	sort.Strings(markets)

	return markets
}

// ParseCandlesticks parses candlesticks from the provided json data.
func ParseCandlesticks(data []gjson.Result, market string, timeframe shared.Timeframe) ([]shared.Candlestick, error) {
	candles := make([]shared.Candlestick, len(data))
	for idx := range data {
		var candle shared.Candlestick

		candle.Open = data[idx].Get("open").Float()
		candle.Low = data[idx].Get("low").Float()
		candle.High = data[idx].Get("high").Float()
		candle.Close = data[idx].Get("close").Float()
		candle.Volume = data[idx].Get("volume").Float()

		candle.Market = market
		candle.Timeframe = timeframe

		date := data[idx].Get("date")
		switch date.Type {
		case gjson.Number:
			candle.Date = time.UnixMilli(date.Int()).UTC()
		default:
			dt, err := time.Parse(shared.DateLayout, date.String())
			if err != nil {
				return nil, fmt.Errorf("parsing candlestick date at index %d: %w", idx, err)
			}
			candle.Date = dt
		}

		candles[idx] = candle
	}

	return candles, nil
}

// FetchCandles returns up to limit of the most recent historic candles of the
// provided market and timeframe, ordered by date.
func (h *HistoricData) FetchCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]shared.Candlestick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := h.data.Get(gjson.Escape(market))
	if !entry.Exists() {
		return nil, fmt.Errorf("no historic data found for market %s", market)
	}

	if entry.IsObject() {
		entry = entry.Get(timeframe.String())
		if !entry.Exists() {
			return nil, fmt.Errorf("no %s historic data found for market %s", timeframe, market)
		}
	}

	candles, err := ParseCandlesticks(entry.Array(), market, timeframe)
	if err != nil {
		return nil, fmt.Errorf("parsing %s candlesticks: %w", market, err)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Date.Before(candles[j].Date)
	})

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	if len(candles) > 0 {
		first := candles[0].Date
		last := candles[len(candles)-1].Date
		h.cfg.Logger.Debug().Msgf("loaded %d historic %s candles for %s covering %.2f hours, from %s, to %s",
			len(candles), timeframe, market, last.Sub(first).Hours(),
			first.Format(time.RFC1123), last.Format(time.RFC1123))
	}

	return candles, nil
}
