package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// maxWorkers is the maximum number of concurrent workers.
	maxWorkers = 8
	// defaultPollLimit is the number of candles fetched by a periodic market data job.
	defaultPollLimit = 3
)

// ManagerConfig represents the configuration for the fetch manager.
type ManagerConfig struct {
	// Markets represents the collection of ids of the markets to fetch.
	Markets []string
	// Timeframe is the candle timeframe fetched for each market.
	Timeframe shared.Timeframe
	// CatchUpLimit is the number of candles fetched per market on start.
	CatchUpLimit int
	// PollLimit is the number of candles fetched per market by periodic jobs.
	PollLimit int
	// Source represents the candle source.
	Source shared.CandleSource
	// NotifyCandles relays fetched closed candles for processing.
	NotifyCandles func(candles []shared.Candlestick)
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, errors.New("no markets provided"))
	}
	if cfg.CatchUpLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("catch up limit must be positive, got %d", cfg.CatchUpLimit))
	}
	if cfg.PollLimit < 0 {
		errs = errors.Join(errs, fmt.Errorf("poll limit cannot be negative, got %d", cfg.PollLimit))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, errors.New("candle source cannot be nil"))
	}
	if cfg.NotifyCandles == nil {
		errs = errors.Join(errs, errors.New("notify candles function cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, errors.New("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("logger cannot be nil"))
	}

	return errs
}

// Manager periodically fetches closed candles for live markets.
type Manager struct {
	cfg     *ManagerConfig
	markets map[string]struct{}
	workers chan struct{}
	now     func() time.Time
}

// NewManager initializes the fetch manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fetch manager config: %w", err)
	}

	if cfg.PollLimit == 0 {
		cfg.PollLimit = defaultPollLimit
	}

	markets := make(map[string]struct{}, len(cfg.Markets))
	for _, market := range cfg.Markets {
		markets[market] = struct{}{}
	}

	return &Manager{
		cfg:     cfg,
		markets: markets,
		workers: make(chan struct{}, maxWorkers),
		now:     time.Now,
	}, nil
}

// closed filters out candles that are still forming.
func (m *Manager) closed(candles []shared.Candlestick) []shared.Candlestick {
	now := m.now()
	filtered := candles[:0:0]
	for idx := range candles {
		if candles[idx].Date.Add(m.cfg.Timeframe.Duration()).After(now) {
			continue
		}
		filtered = append(filtered, candles[idx])
	}

	return filtered
}

// fetchMarketData fetches and relays the most recent closed candles of the provided market.
func (m *Manager) fetchMarketData(ctx context.Context, market string, limit int) error {
	if _, ok := m.markets[market]; !ok {
		return fmt.Errorf("no market found with name %s", market)
	}

	candles, err := m.cfg.Source.FetchCandles(ctx, market, m.cfg.Timeframe, limit)
	if err != nil {
		return fmt.Errorf("fetching %s market data: %w", market, err)
	}

	candles = m.closed(candles)
	if len(candles) == 0 {
		return nil
	}

	m.cfg.NotifyCandles(candles)

	return nil
}

// fetchMarketDataJob fetches the latest closed candles of the provided market.
func (m *Manager) fetchMarketDataJob(market string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeframe.Duration())
	defer cancel()

	return m.fetchMarketData(ctx, market, m.cfg.PollLimit)
}

// CatchUp fetches the recent candle history of every market concurrently.
func (m *Manager) CatchUp(ctx context.Context) error {
	var wg sync.WaitGroup
	var mtx sync.Mutex
	var errs error
	for _, market := range m.cfg.Markets {
		m.workers <- struct{}{}
		wg.Add(1)
		go func(market string) {
			defer func() {
				<-m.workers
				wg.Done()
			}()

			err := m.fetchMarketData(ctx, market, m.cfg.CatchUpLimit)
			if err != nil {
				mtx.Lock()
				errs = errors.Join(errs, err)
				mtx.Unlock()
			}
		}(market)
	}
	wg.Wait()

	return errs
}

// Run manages the lifecycle processes of the fetch manager.
func (m *Manager) Run(ctx context.Context) {
	err := m.CatchUp(ctx)
	if err != nil {
		m.cfg.Logger.Error().Msgf("catching up on market data: %v", err)
	}

	for _, market := range m.cfg.Markets {
		_, err := m.cfg.JobScheduler.Every(m.cfg.Timeframe.Duration()).Do(func(market string) {
			err := m.fetchMarketDataJob(market)
			if err != nil {
				m.cfg.Logger.Error().Msgf("running market data job for %s: %v", market, err)
			}
		}, market)
		if err != nil {
			m.cfg.Logger.Error().Msgf("scheduling market data job for %s: %v", market, err)
		}
	}

	m.cfg.JobScheduler.StartAsync()

	<-ctx.Done()
	m.cfg.JobScheduler.Stop()
}
