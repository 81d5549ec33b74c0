package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/smc/market"
	"github.com/dnldd/smc/position"
	"github.com/dnldd/smc/priceaction"
	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

// EngineConfig represents the backtest engine configuration.
type EngineConfig struct {
	// Markets represents the collection of ids of the markets to backtest.
	Markets []string
	// Timeframe is the candle timeframe fetched for each market.
	Timeframe shared.Timeframe
	// CandleLimit is the maximum number of candles fetched per market.
	CandleLimit int
	// WarmupCandles is the number of leading candles used only as indicator history.
	WarmupCandles int
	// InitialBalance is the starting balance of the backtest.
	InitialBalance float64
	// MinBalance is the balance below which no further positions are opened.
	MinBalance float64
	// CarryoverPercent is the fraction of the final balance carried over for trading.
	CarryoverPercent float64
	// RankWindow is the number of candles ranked markets are scored over, zero for all.
	RankWindow int
	// SinglePosition restricts the backtest to one open position across all markets.
	SinglePosition bool
	// Source fetches market candles.
	Source shared.CandleSource
	// Ranker orders candidate markets at each step.
	Ranker market.Ranker
	// Sizer sizes positions for entry signals.
	Sizer *risk.Sizer
	// Analysis is the price action analysis configuration.
	Analysis priceaction.AnalysisConfig
	// Lifecycle is the position lifecycle configuration.
	Lifecycle position.LifecycleConfig
	// Sinks persist the backtest report. Optional.
	Sinks []shared.ReportSink
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, errors.New("no markets provided"))
	}
	if cfg.CandleLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("candle limit must be positive, got %d", cfg.CandleLimit))
	}
	if cfg.WarmupCandles < 2 {
		errs = errors.Join(errs, fmt.Errorf("warmup candles must be at least 2, got %d", cfg.WarmupCandles))
	}
	if cfg.InitialBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial balance must be positive, got %f", cfg.InitialBalance))
	}
	if cfg.MinBalance < 0 {
		errs = errors.Join(errs, fmt.Errorf("min balance cannot be negative, got %f", cfg.MinBalance))
	}
	if cfg.CarryoverPercent < 0 || cfg.CarryoverPercent > 1 {
		errs = errors.Join(errs, fmt.Errorf("carryover percent must be in [0, 1], got %f", cfg.CarryoverPercent))
	}
	if cfg.RankWindow < 0 {
		errs = errors.Join(errs, fmt.Errorf("rank window cannot be negative, got %d", cfg.RankWindow))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, errors.New("no candle source provided"))
	}
	if cfg.Ranker == nil {
		errs = errors.Join(errs, errors.New("no ranker provided"))
	}
	if cfg.Sizer == nil {
		errs = errors.Join(errs, errors.New("no sizer provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}
	if err := cfg.Lifecycle.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// State represents the mutable state of a backtest, owned by the engine.
type State struct {
	Balance   float64
	Positions *position.Manager
	Trades    []shared.TradeRecord
	Equity    []shared.EquityPoint
	Halted    bool
}

// Engine drives a deterministic backtest over historical market data.
type Engine struct {
	cfg      *EngineConfig
	analyses map[string]*priceaction.Analysis
	markets  []string
	state    *State
}

// NewEngine initializes a new backtest engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	analysisCfg := cfg.Analysis
	analysisCfg.Logger = cfg.Logger
	err = analysisCfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating analysis config: %w", err)
	}
	cfg.Analysis = analysisCfg

	positions, err := position.NewManager(&position.ManagerConfig{
		Markets:        cfg.Markets,
		SinglePosition: cfg.SinglePosition,
		Lifecycle:      cfg.Lifecycle,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating position manager: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		analyses: make(map[string]*priceaction.Analysis),
		state: &State{
			Balance:   cfg.InitialBalance,
			Positions: positions,
		},
	}, nil
}

// State returns the backtest state.
func (e *Engine) State() *State {
	return e.state
}

// LoadCandles adds the provided market candles to the backtest. Candles must be
// strictly ordered by date.
func (e *Engine) LoadCandles(market string, candles []shared.Candlestick) error {
	if !slices.Contains(e.cfg.Markets, market) {
		return fmt.Errorf("no market found with name: %s", market)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles provided for %s", market)
	}

	for idx := 1; idx < len(candles); idx++ {
		if !candles[idx].Date.After(candles[idx-1].Date) {
			return fmt.Errorf("%s candles out of order at index %d: %s is not after %s", market, idx,
				candles[idx].Date.Format(shared.DateLayout), candles[idx-1].Date.Format(shared.DateLayout))
		}
	}

	analysis, err := priceaction.NewAnalysis(market, shared.Pointers(candles), &e.cfg.Analysis)
	if err != nil {
		return fmt.Errorf("analysing %s candles: %w", market, err)
	}

	if _, ok := e.analyses[market]; !ok {
		e.markets = append(e.markets, market)
		slices.Sort(e.markets)
	}
	e.analyses[market] = analysis

	return nil
}

// Load fetches candles for every configured market. Markets that fail to load are
// skipped.
func (e *Engine) Load(ctx context.Context) error {
	for _, mkt := range e.cfg.Markets {
		candles, err := e.cfg.Source.FetchCandles(ctx, mkt, e.cfg.Timeframe, e.cfg.CandleLimit)
		if err != nil {
			e.cfg.Logger.Warn().Msgf("fetching %s candles, skipping market: %v", mkt, err)
			continue
		}
		if len(candles) == 0 {
			e.cfg.Logger.Warn().Msgf("no %s candles fetched, skipping market", mkt)
			continue
		}

		err = e.LoadCandles(mkt, candles)
		if err != nil {
			e.cfg.Logger.Warn().Msgf("loading %s candles, skipping market: %v", mkt, err)
			continue
		}

		e.cfg.Logger.Info().Msgf("loaded %d %s candles for %s", len(candles), e.cfg.Timeframe, mkt)
	}

	if len(e.markets) == 0 {
		return errors.New("no market data loaded")
	}

	return nil
}

// maxLength returns the length of the longest loaded candle series, capped at the
// candle limit.
func (e *Engine) maxLength() int {
	var n int
	for _, mkt := range e.markets {
		n = max(n, e.analyses[mkt].Len())
	}

	return min(n, e.cfg.CandleLimit)
}

// stepDate returns the date of the provided step, the date of the first market with
// a candle at that index.
func (e *Engine) stepDate(idx int) time.Time {
	for _, mkt := range e.markets {
		if candle := e.analyses[mkt].Candle(idx); candle != nil {
			return candle.Date
		}
	}

	return time.Time{}
}

// apply books the provided management result.
func (e *Engine) apply(res *position.Result) {
	e.state.Balance += res.BalanceDelta
	if res.Record != nil {
		e.state.Trades = append(e.state.Trades, *res.Record)
	}
}

// manage advances every open position with a candle at the provided index and
// returns the managed markets.
func (e *Engine) manage(idx int) map[string]struct{} {
	managed := make(map[string]struct{})
	for _, mkt := range e.state.Positions.OpenMarkets() {
		candle := e.analyses[mkt].Candle(idx)
		if candle == nil {
			continue
		}

		res, err := e.state.Positions.Manage(mkt, candle.Close, idx, candle.Date, e.state.Balance)
		if err != nil {
			e.cfg.Logger.Error().Msgf("managing %s position at step %d: %v\n%s", mkt, idx, err,
				spew.Sdump(e.state.Positions.Position(mkt)))
			continue
		}

		managed[mkt] = struct{}{}
		if res != nil {
			e.apply(res)
		}
	}

	return managed
}

// enter ranks markets and opens positions for confirmed entry signals at the provided
// index.
func (e *Engine) enter(ctx context.Context, idx int, managed map[string]struct{}) {
	snapshots := make([]*priceaction.Snapshot, 0, len(e.markets))
	for _, mkt := range e.markets {
		if snap := e.analyses[mkt].Snapshot(idx, e.cfg.RankWindow); snap != nil {
			snapshots = append(snapshots, snap)
		}
	}

	ranked := e.cfg.Ranker.Rank(ctx, snapshots)
	if len(ranked) == 0 {
		e.cfg.Logger.Debug().Msgf("step %d: no favourable markets", idx)
		return
	}

	for _, mkt := range ranked {
		if _, ok := managed[mkt]; ok {
			continue
		}
		if !e.state.Positions.CanOpen(mkt) {
			continue
		}

		analysis, ok := e.analyses[mkt]
		if !ok {
			continue
		}

		signal, err := analysis.Evaluate(idx)
		if err != nil {
			if errors.Is(err, shared.ErrInsufficientData) {
				e.cfg.Logger.Debug().Msgf("step %d: insufficient %s data", idx, mkt)
				continue
			}
			e.cfg.Logger.Warn().Msgf("evaluating %s at step %d: %v", mkt, idx, err)
			continue
		}
		if signal == nil {
			continue
		}

		candle := analysis.Candle(idx)
		plan, err := e.cfg.Sizer.Plan(signal, analysis.ATR(idx), candle.Close, e.state.Balance)
		if err != nil {
			e.cfg.Logger.Debug().Msgf("step %d: skipping %s entry: %v", idx, mkt, err)
			continue
		}

		_, err = e.state.Positions.Open(plan, idx, candle.Date)
		if err != nil {
			e.cfg.Logger.Warn().Msgf("opening %s position at step %d: %v", mkt, idx, err)
			continue
		}

		e.state.Balance -= plan.EntryFee

		if e.cfg.SinglePosition {
			return
		}
	}
}

// flush closes every open position at the last available candle.
func (e *Engine) flush(last int) bool {
	closes := make(map[string]*shared.Candlestick)
	for _, mkt := range e.state.Positions.OpenMarkets() {
		analysis := e.analyses[mkt]
		closes[mkt] = analysis.Candle(min(last, analysis.Len()-1))
	}

	results := e.state.Positions.Flush(closes, e.state.Balance)
	for _, res := range results {
		e.apply(res)
	}

	return len(results) > 0
}

// Run runs the backtest over the loaded market data and returns its report.
func (e *Engine) Run(ctx context.Context) (*shared.Report, error) {
	if len(e.markets) == 0 {
		return nil, errors.New("no market data loaded")
	}

	n := e.maxLength()
	warmup := e.cfg.WarmupCandles
	if n <= warmup {
		return nil, fmt.Errorf("insufficient candles for backtest: %d available, %d warmup", n, warmup)
	}

	e.cfg.Logger.Info().Msgf("starting backtest with initial balance %.2f over %d steps across %d markets",
		e.state.Balance, n-warmup, len(e.markets))

	e.state.Equity = append(e.state.Equity, shared.EquityPoint{
		Index:   warmup - 1,
		Date:    e.stepDate(warmup - 1),
		Balance: e.state.Balance,
	})

	last := warmup - 1
	for idx := warmup; idx < n; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !e.state.Halted && e.state.Balance < e.cfg.MinBalance {
			e.state.Halted = true
			e.cfg.Logger.Info().Msgf("halting entries at step %d: balance %.2f below %.2f",
				idx, e.state.Balance, e.cfg.MinBalance)
		}
		if e.state.Halted && e.state.Positions.Count() == 0 {
			break
		}

		managed := e.manage(idx)

		allowEntries := !e.state.Halted
		if e.cfg.SinglePosition && e.state.Positions.Count() > 0 {
			allowEntries = false
		}
		if allowEntries {
			e.enter(ctx, idx, managed)
		}

		e.state.Equity = append(e.state.Equity, shared.EquityPoint{
			Index:   idx,
			Date:    e.stepDate(idx),
			Balance: e.state.Balance,
		})
		last = idx
	}

	if e.flush(last) {
		e.state.Equity = append(e.state.Equity, shared.EquityPoint{
			Index:   last,
			Date:    e.stepDate(last),
			Balance: e.state.Balance,
		})
	}

	report := NewReport(e.state.Trades, e.state.Equity, e.cfg.InitialBalance, e.cfg.CarryoverPercent)
	e.cfg.Logger.Info().Msgf("backtest complete: %d trades, final balance %.2f, profit %.2f",
		report.Summary.TotalTrades, report.Summary.FinalBalance, report.Summary.Profit)

	for _, sink := range e.cfg.Sinks {
		err := sink.PersistReport(ctx, report)
		if err != nil {
			e.cfg.Logger.Error().Msgf("persisting report %s: %v", report.ID, err)
		}
	}

	return report, nil
}
