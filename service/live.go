package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/smc/alert"
	"github.com/dnldd/smc/fetch"
	"github.com/dnldd/smc/market"
	"github.com/dnldd/smc/position"
	"github.com/dnldd/smc/priceaction"
	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// orderTimeout is the maximum time allowed for a broker call.
	orderTimeout = time.Second * 10
)

// TradeStorer defines the requirements for storing live trade records.
type TradeStorer interface {
	// PersistTrade stores the provided trade record of a live session.
	PersistTrade(ctx context.Context, sessionID string, seq int, trade *shared.TradeRecord) error
}

// LiveConfig represents the configuration for the live trading service.
type LiveConfig struct {
	// Markets represents the tracked markets.
	Markets []string
	// Timeframe is the candle timeframe evaluated for each market.
	Timeframe shared.Timeframe
	// HistorySize is the number of recent candles retained and analysed per market.
	HistorySize int32
	// MinBalance is the broker balance below which no further positions are opened.
	MinBalance float64
	// MaxSpread is the maximum relative spread allowed for orders, zero to disable.
	MaxSpread float64
	// RankWindow is the number of candles ranked markets are scored over, zero for all.
	RankWindow int
	// EvaluationInterval is the interval between market evaluations.
	EvaluationInterval time.Duration
	// Source fetches market candles.
	Source shared.CandleSource
	// Broker places orders and reports the account balance.
	Broker shared.OrderBroker
	// Ranker orders candidate markets at each evaluation.
	Ranker market.Ranker
	// Sizer sizes positions for entry signals.
	Sizer *risk.Sizer
	// Analysis is the price action analysis configuration.
	Analysis priceaction.AnalysisConfig
	// Lifecycle is the position lifecycle configuration.
	Lifecycle position.LifecycleConfig
	// SinglePosition restricts trading to one open position across all markets.
	SinglePosition bool
	// Store persists concluded trades. Optional.
	Store TradeStorer
	// AlertAddr is the address alerts are served on, empty to disable alerts.
	AlertAddr string
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *LiveConfig) Validate() error {
	var errs error
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, errors.New("no markets provided for live service"))
	}
	if cfg.HistorySize < 3 {
		errs = errors.Join(errs, fmt.Errorf("history size must be at least 3, got %d", cfg.HistorySize))
	}
	if cfg.MinBalance < 0 {
		errs = errors.Join(errs, fmt.Errorf("min balance cannot be negative, got %f", cfg.MinBalance))
	}
	if cfg.MaxSpread < 0 {
		errs = errors.Join(errs, fmt.Errorf("max spread cannot be negative, got %f", cfg.MaxSpread))
	}
	if cfg.EvaluationInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("evaluation interval must be positive, got %s", cfg.EvaluationInterval))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, errors.New("candle source cannot be nil"))
	}
	if cfg.Broker == nil {
		errs = errors.Join(errs, errors.New("order broker cannot be nil"))
	}
	if cfg.Ranker == nil {
		errs = errors.Join(errs, errors.New("ranker cannot be nil"))
	}
	if cfg.Sizer == nil {
		errs = errors.Join(errs, errors.New("sizer cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, errors.New("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("logger cannot be nil"))
	}

	return errs
}

// Live represents the live trading service.
type Live struct {
	cfg          *LiveConfig
	sessionID    string
	fetchMgr     *fetch.Manager
	marketMgr    *market.Manager
	positionMgr  *position.Manager
	alertHandler *alert.Handler
	alerts       chan shared.Alert
	balance      atomic.Float64
	halted       atomic.Bool
	seq          atomic.Int32
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewLive initializes a new live trading service.
func NewLive(cfg *LiveConfig) (*Live, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating live config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	sessionID := uuid.New().String()
	logger := cfg.Logger.With().Str("service", "live").Str("session", sessionID).Logger()

	analysisCfg := cfg.Analysis
	analysisCfg.Logger = &logger
	err = analysisCfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating analysis config: %w", err)
	}
	cfg.Analysis = analysisCfg

	live := &Live{
		cfg:       cfg,
		sessionID: sessionID,
		alerts:    make(chan shared.Alert, bufferSize),
		logger:    &logger,
	}

	positionMgrLogger := logger.With().Str("component", "positionmanager").Logger()
	live.positionMgr, err = position.NewManager(&position.ManagerConfig{
		Markets:        cfg.Markets,
		SinglePosition: cfg.SinglePosition,
		Lifecycle:      cfg.Lifecycle,
		NotifyClose:    live.persistTrade,
		Logger:         &positionMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating position manager: %w", err)
	}

	marketMgrLogger := logger.With().Str("component", "marketmanager").Logger()
	live.marketMgr, err = market.NewManager(&market.ManagerConfig{
		Markets:      cfg.Markets,
		SnapshotSize: cfg.HistorySize,
		NotifyUpdate: live.UpdatePrice,
		Logger:       &marketMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market manager: %w", err)
	}

	notifyCandles := func(candles []shared.Candlestick) {
		_, err := live.marketMgr.Update(candles...)
		if err != nil {
			live.logger.Error().Msgf("applying market update: %v", err)
		}
	}

	fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
	live.fetchMgr, err = fetch.NewManager(&fetch.ManagerConfig{
		Markets:       cfg.Markets,
		Timeframe:     cfg.Timeframe,
		CatchUpLimit:  int(cfg.HistorySize),
		Source:        cfg.Source,
		NotifyCandles: notifyCandles,
		JobScheduler:  cfg.JobScheduler,
		Logger:        &fetchMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch manager: %w", err)
	}

	if cfg.AlertAddr != "" {
		alertLogger := logger.With().Str("component", "alerts").Logger()
		live.alertHandler, err = alert.NewHandler(&alert.HandlerConfig{
			Relay:  live.SendAlert,
			Logger: &alertLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating alert handler: %w", err)
		}
	}

	return live, nil
}

// SessionID returns the id of the live session.
func (l *Live) SessionID() string {
	return l.sessionID
}

// Halted checks whether new entries are halted.
func (l *Live) Halted() bool {
	return l.halted.Load()
}

// Positions returns the position manager.
func (l *Live) Positions() *position.Manager {
	return l.positionMgr
}

// LastPrice returns the most recent close of the provided market.
func (l *Live) LastPrice(mkt string) (float64, error) {
	candle := l.marketMgr.Last(mkt)
	if candle == nil {
		return 0, fmt.Errorf("no %s price available", mkt)
	}

	return candle.Close, nil
}

// candleIndex returns the position of the provided candle date on the timeframe grid.
func (l *Live) candleIndex(date time.Time) int {
	return int(date.Unix() / int64(l.cfg.Timeframe.Duration().Seconds()))
}

// persistTrade stores the provided concluded trade.
func (l *Live) persistTrade(record shared.TradeRecord) {
	if l.cfg.Store == nil {
		return
	}

	seq := int(l.seq.Inc())
	ctx, cancel := context.WithTimeout(context.Background(), orderTimeout)
	defer cancel()

	err := l.cfg.Store.PersistTrade(ctx, l.sessionID, seq, &record)
	if err != nil {
		l.logger.Error().Msgf("persisting trade: %v", err)
	}
}

// refreshBalance syncs the balance with the broker and halts entries once it falls
// below the minimum balance.
func (l *Live) refreshBalance(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()

	balance, err := l.cfg.Broker.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching broker balance: %w", err)
	}

	l.balance.Store(balance)
	if balance < l.cfg.MinBalance && l.halted.CompareAndSwap(false, true) {
		l.logger.Warn().Msgf("halting entries: balance %.2f below %.2f", balance, l.cfg.MinBalance)
	}

	return nil
}

// analyse builds the price action analysis of the retained candles of the provided market.
func (l *Live) analyse(mkt string) (*priceaction.Analysis, error) {
	candles, err := l.marketMgr.Candles(mkt)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no %s candles: %w", mkt, shared.ErrInsufficientData)
	}

	return priceaction.NewAnalysis(mkt, candles, &l.cfg.Analysis)
}

// placeOrder places a market order after enforcing the spread limit.
func (l *Live) placeOrder(ctx context.Context, mkt string, direction shared.Direction, size float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()

	if quoter, ok := l.cfg.Broker.(shared.SpreadQuoter); ok && l.cfg.MaxSpread > 0 {
		spread, err := quoter.FetchSpread(ctx, mkt)
		if err != nil {
			return "", fmt.Errorf("fetching %s spread: %w", mkt, err)
		}
		if spread > l.cfg.MaxSpread {
			return "", fmt.Errorf("%s spread %f exceeds max spread %f", mkt, spread, l.cfg.MaxSpread)
		}
	}

	return l.cfg.Broker.PlaceMarketOrder(ctx, mkt, direction, size)
}

// enter sizes, orders and opens a position for the provided signal. The entry order is
// placed while the market's position slot is held so concurrent entries cannot both
// reach the broker.
func (l *Live) enter(ctx context.Context, signal *shared.EntrySignal, atr float64, close float64) error {
	if l.halted.Load() {
		return fmt.Errorf("entries halted, skipping %s signal", signal.Market)
	}
	if !l.positionMgr.CanOpen(signal.Market) {
		return fmt.Errorf("%s cannot take a new position", signal.Market)
	}

	plan, err := l.cfg.Sizer.Plan(signal, atr, close, l.balance.Load())
	if err != nil {
		return err
	}

	var orderID string
	_, err = l.positionMgr.OpenWith(plan, signal.Index, signal.CreatedOn, func(pos *position.Position) error {
		id, err := l.placeOrder(ctx, pos.Market, pos.Direction, pos.Size)
		if err != nil {
			return fmt.Errorf("placing %s entry order: %w", pos.Market, err)
		}
		orderID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("opening %s position: %w", signal.Market, err)
	}

	l.balance.Sub(plan.EntryFee)
	l.logger.Info().Msgf("entered %s %s with order %s", signal.Market, signal.Direction, orderID)

	return nil
}

// Evaluate ranks the tracked markets and enters positions for confirmed signals.
func (l *Live) Evaluate(ctx context.Context) {
	err := l.refreshBalance(ctx)
	if err != nil {
		l.logger.Error().Msgf("evaluating markets: %v", err)
		return
	}
	if l.halted.Load() {
		return
	}

	analyses := make(map[string]*priceaction.Analysis)
	snapshots := make([]*priceaction.Snapshot, 0, len(l.cfg.Markets))
	for _, mkt := range l.marketMgr.Markets() {
		analysis, err := l.analyse(mkt)
		if err != nil {
			l.logger.Debug().Msgf("skipping %s evaluation: %v", mkt, err)
			continue
		}

		analyses[mkt] = analysis
		snapshots = append(snapshots, analysis.Snapshot(analysis.Len()-1, l.cfg.RankWindow))
	}

	for _, mkt := range l.cfg.Ranker.Rank(ctx, snapshots) {
		analysis, ok := analyses[mkt]
		if !ok || !l.positionMgr.CanOpen(mkt) {
			continue
		}

		last := analysis.Len() - 1
		signal, err := analysis.Evaluate(last)
		if err != nil {
			l.logger.Debug().Msgf("skipping %s: %v", mkt, err)
			continue
		}
		if signal == nil {
			continue
		}

		signal.Index = l.candleIndex(signal.CreatedOn)
		err = l.enter(ctx, signal, analysis.ATR(last), analysis.Candle(last).Close)
		if err != nil {
			l.logger.Warn().Msgf("skipping %s entry: %v", mkt, err)
			continue
		}

		if l.cfg.SinglePosition {
			return
		}
	}
}

// UpdatePrice advances the open position of the candle's market with its close. Exits
// are applied only once their closing order is placed, a failed exit order keeps the
// position open to be retried on the next update.
func (l *Live) UpdatePrice(candle shared.Candlestick) {
	var orderID string
	exitOrder := func(res *position.Result) error {
		exit := shared.Long
		if res.Record.Direction == shared.Long {
			exit = shared.Short
		}

		id, err := l.placeOrder(context.Background(), candle.Market, exit, res.Record.Size)
		if err != nil {
			return fmt.Errorf("placing %s exit order: %w", candle.Market, err)
		}
		orderID = id
		return nil
	}

	res, err := l.positionMgr.ManageWith(candle.Market, candle.Close, l.candleIndex(candle.Date),
		candle.Date, l.balance.Load(), exitOrder)
	if err != nil {
		l.logger.Error().Msgf("updating %s price: %v", candle.Market, err)
		return
	}
	if res == nil || res.Record == nil {
		return
	}

	l.balance.Add(res.BalanceDelta)
	l.logger.Info().Msgf("exited %f of %s with order %s", res.Record.Size, candle.Market, orderID)
}

// SendAlert relays the provided alert for processing.
func (l *Live) SendAlert(alert shared.Alert) {
	select {
	case l.alerts <- alert:
		// do nothing.
	default:
		l.logger.Error().Msgf("alert channel at capacity: %d/%d", len(l.alerts), bufferSize)
	}
}

// HandleAlert enters a position for the provided alert in place of a detected signal.
func (l *Live) HandleAlert(ctx context.Context, alert shared.Alert) error {
	analysis, err := l.analyse(alert.Market)
	if err != nil {
		return fmt.Errorf("analysing %s for alert: %w", alert.Market, err)
	}

	last := analysis.Len() - 1
	candle := analysis.Candle(last)
	price := alert.Price
	if price <= 0 {
		price = candle.Close
	}

	signal := shared.NewEntrySignal(alert.Market, alert.Kind.Direction(), price,
		[]shared.Reason{shared.AlertReceived}, l.candleIndex(candle.Date), candle.Date)

	return l.enter(ctx, &signal, analysis.ATR(last), candle.Close)
}

// Run handles the lifecycle processes of the live service.
func (l *Live) Run(ctx context.Context) {
	err := l.refreshBalance(ctx)
	if err != nil {
		l.logger.Error().Msgf("fetching initial balance: %v", err)
	}

	_, err = l.cfg.JobScheduler.Every(l.cfg.EvaluationInterval).Do(func() {
		l.Evaluate(ctx)
	})
	if err != nil {
		l.logger.Error().Msgf("scheduling evaluation job: %v", err)
	}

	l.wg.Add(3)
	go func() {
		l.marketMgr.Run(ctx)
		l.wg.Done()
	}()

	go func() {
		l.fetchMgr.Run(ctx)
		l.wg.Done()
	}()

	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case alert := <-l.alerts:
				err := l.HandleAlert(ctx, alert)
				if err != nil {
					l.logger.Warn().Msgf("handling %s alert for %s: %v", alert.Kind, alert.Market, err)
				}
			}
		}
	}()

	if l.alertHandler != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			err := alert.Serve(ctx, l.cfg.AlertAddr, l.alertHandler, l.logger)
			if err != nil {
				l.logger.Error().Msgf("serving alerts: %v", err)
			}
		}()
	}

	l.wg.Wait()
}
