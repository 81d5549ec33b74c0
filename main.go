package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dnldd/smc/database"
	"github.com/dnldd/smc/engine"
	"github.com/dnldd/smc/fetch"
	"github.com/dnldd/smc/market"
	"github.com/dnldd/smc/position"
	"github.com/dnldd/smc/priceaction"
	"github.com/dnldd/smc/report"
	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/sentiment"
	"github.com/dnldd/smc/service"
	"github.com/dnldd/smc/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// httpTimeout is the timeout for exchange and provider requests.
	httpTimeout = time.Second * 10
	// snapshotHistory is the number of candles retained per market in live mode.
	snapshotHistory = int32(shared.SnapshotSize)
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// newSizer creates the position sizer described by the config.
func newSizer(cfg *Config, logger *zerolog.Logger) (*risk.Sizer, error) {
	base, err := risk.ParseBase(cfg.RiskBase)
	if err != nil {
		return nil, err
	}

	return risk.NewSizer(&risk.SizerConfig{
		RiskPercent:       cfg.RiskPercent,
		StopATRMultiplier: cfg.StopATRMultiplier,
		MinATRFactor:      cfg.MinATRFactor,
		TakeProfitLevels:  cfg.TPLevels,
		Slippage:          cfg.Slippage,
		Fee:               cfg.Fee,
		Base:              base,
		ReferenceBalance:  cfg.InitialBalance,
		Logger:            logger,
	})
}

// newLifecycle creates the position lifecycle configuration described by the config.
func newLifecycle(cfg *Config) (position.LifecycleConfig, error) {
	mode, err := position.ParseTakeProfitMode(cfg.TakeProfitMode)
	if err != nil {
		return position.LifecycleConfig{}, err
	}

	return position.LifecycleConfig{
		TradeTimeout:        cfg.TradeTimeoutCandles,
		TrailingStopPercent: cfg.TrailingStopPercent,
		Fee:                 cfg.Fee,
		TakeProfitMode:      mode,
	}, nil
}

// newRanker creates the market ranker described by the config.
func newRanker(cfg *Config, logger *zerolog.Logger) (market.Ranker, error) {
	kind, err := market.ParseKind(cfg.Ranker)
	if err != nil {
		return nil, err
	}

	switch kind {
	case market.Return:
		return market.NewReturnRanker(&market.ReturnConfig{
			Lookback: cfg.RankWindow,
			TopN:     cfg.RankTopN,
			Logger:   logger,
		})
	default:
		var source shared.SentimentSource = sentiment.Static{}
		if cfg.SentimentURL != "" {
			source, err = sentiment.NewHTTPSource(&sentiment.HTTPConfig{
				URL:     cfg.SentimentURL,
				Timeout: httpTimeout,
				Logger:  logger,
			})
			if err != nil {
				return nil, err
			}
		}

		return market.NewCompositeRanker(&market.CompositeConfig{
			Sentiment: source,
			TopN:      cfg.RankTopN,
			Logger:    logger,
		})
	}
}

// newExchangeSource creates the retrying exchange candle source.
func newExchangeSource(cfg *Config, logger *zerolog.Logger) (shared.CandleSource, error) {
	client, err := fetch.NewKlineClient(&fetch.KlineConfig{
		BaseURL: cfg.ExchangeURL,
		Timeout: httpTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return fetch.NewRetrier(&fetch.RetrierConfig{
		Source:      client,
		MaxAttempts: 3,
		Backoff:     time.Second,
		MaxBackoff:  time.Second * 8,
		Logger:      logger,
	})
}

// runBacktest runs a backtest described by the config.
func runBacktest(ctx context.Context, cfg *Config, logger *zerolog.Logger) error {
	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return err
	}

	var source shared.CandleSource
	switch {
	case cfg.BacktestDataFilepath != "":
		source, err = fetch.NewHistoricData(&fetch.HistoricDataConfig{
			FilePath: cfg.BacktestDataFilepath,
			Logger:   logger,
		})
	default:
		source, err = newExchangeSource(cfg, logger)
	}
	if err != nil {
		return fmt.Errorf("creating candle source: %w", err)
	}

	sizer, err := newSizer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating sizer: %w", err)
	}

	lifecycle, err := newLifecycle(cfg)
	if err != nil {
		return fmt.Errorf("creating lifecycle config: %w", err)
	}

	ranker, err := newRanker(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating ranker: %w", err)
	}

	sinks := []shared.ReportSink{report.NewLogSink(logger)}
	if cfg.ReportDir != "" {
		csvSink, err := report.NewCSVSink(&report.CSVConfig{Dir: cfg.ReportDir, Logger: logger})
		if err != nil {
			return fmt.Errorf("creating csv sink: %w", err)
		}
		sinks = append(sinks, csvSink)
	}
	if cfg.DBEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
		sinks = append(sinks, db)
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	eng, err := engine.NewEngine(&engine.EngineConfig{
		Markets:          cfg.Markets,
		Timeframe:        timeframe,
		CandleLimit:      cfg.CandleLimit,
		WarmupCandles:    cfg.WarmupCandles,
		InitialBalance:   cfg.InitialBalance,
		MinBalance:       cfg.MinBalance,
		CarryoverPercent: cfg.CarryoverPercent,
		RankWindow:       cfg.RankWindow,
		SinglePosition:   cfg.SinglePosition,
		Source:           source,
		Ranker:           ranker,
		Sizer:            sizer,
		Analysis: priceaction.AnalysisConfig{
			MomentumLength: priceaction.MomentumLength,
			ADXPeriod:      priceaction.ADXPeriod,
			ATRPeriod:      priceaction.ATRPeriod,
			MinADX:         cfg.MinADX,
		},
		Lifecycle: lifecycle,
		Sinks:     sinks,
		Logger:    &engineLogger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	err = eng.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading market data: %w", err)
	}

	_, err = eng.Run(ctx)
	if err != nil {
		return fmt.Errorf("running backtest: %w", err)
	}

	return nil
}

// runLive runs the live trading service described by the config against a paper broker.
func runLive(ctx context.Context, cfg *Config, logger *zerolog.Logger) error {
	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return err
	}

	source, err := newExchangeSource(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating candle source: %w", err)
	}

	sizer, err := newSizer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating sizer: %w", err)
	}

	lifecycle, err := newLifecycle(cfg)
	if err != nil {
		return fmt.Errorf("creating lifecycle config: %w", err)
	}

	ranker, err := newRanker(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating ranker: %w", err)
	}

	var live *service.Live
	quote := func(mkt string) (float64, error) {
		if live == nil {
			return 0, fmt.Errorf("no %s price available", mkt)
		}
		return live.LastPrice(mkt)
	}

	brokerLogger := logger.With().Str("component", "broker").Logger()
	broker, err := service.NewPaperBroker(&service.PaperConfig{
		InitialBalance: cfg.InitialBalance,
		Fee:            cfg.Fee,
		Quote:          quote,
		Logger:         &brokerLogger,
	})
	if err != nil {
		return fmt.Errorf("creating broker: %w", err)
	}

	var store service.TradeStorer
	if cfg.DBEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		store, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
	}

	live, err = service.NewLive(&service.LiveConfig{
		Markets:            cfg.Markets,
		Timeframe:          timeframe,
		HistorySize:        snapshotHistory,
		MinBalance:         cfg.MinBalance,
		MaxSpread:          cfg.MaxSpread,
		RankWindow:         cfg.RankWindow,
		EvaluationInterval: cfg.EvaluationInterval,
		Source:             source,
		Broker:             broker,
		Ranker:             ranker,
		Sizer:              sizer,
		Analysis: priceaction.AnalysisConfig{
			MomentumLength: priceaction.MomentumLength,
			ADXPeriod:      priceaction.ADXPeriod,
			ATRPeriod:      priceaction.ATRPeriod,
			MinADX:         cfg.MinADX,
		},
		Lifecycle:      lifecycle,
		SinglePosition: cfg.SinglePosition,
		Store:          store,
		AlertAddr:      cfg.AlertAddr,
		JobScheduler:   gocron.NewScheduler(time.UTC),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating live service: %w", err)
	}

	live.Run(ctx)

	return nil
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		return
	}

	logger := log.With().Str("service", "smc").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	switch cfg.Backtest {
	case true:
		err = runBacktest(ctx, &cfg, &logger)
	default:
		err = runLive(ctx, &cfg, &logger)
	}
	if err != nil {
		logger.Error().Msgf("%v", err)
	}
}
