package market

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
)

// ManagerConfig represents the market manager configuration.
type ManagerConfig struct {
	// Markets represents the collection of ids of the markets to manage.
	Markets []string
	// SnapshotSize is the number of recent candles retained per market.
	SnapshotSize int32
	// NotifyUpdate relays processed candle updates. Optional.
	NotifyUpdate func(candle shared.Candlestick)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, errors.New("no markets provided"))
	}
	if cfg.SnapshotSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("snapshot size must be positive, got %d", cfg.SnapshotSize))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Manager tracks the recent candles of live markets.
type Manager struct {
	cfg           *ManagerConfig
	snapshots     map[string]*shared.CandlestickSnapshot
	updateSignals chan shared.Candlestick
}

// NewManager initializes a new market manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating market manager config: %w", err)
	}

	snapshots := make(map[string]*shared.CandlestickSnapshot, len(cfg.Markets))
	for _, market := range cfg.Markets {
		snapshot, err := shared.NewCandlestickSnapshot(cfg.SnapshotSize)
		if err != nil {
			return nil, fmt.Errorf("creating %s candlestick snapshot: %w", market, err)
		}
		snapshots[market] = snapshot
	}

	return &Manager{
		cfg:           cfg,
		snapshots:     snapshots,
		updateSignals: make(chan shared.Candlestick, bufferSize),
	}, nil
}

// Markets returns the tracked markets, sorted by name.
func (m *Manager) Markets() []string {
	markets := make([]string, 0, len(m.snapshots))
	for market := range m.snapshots {
		markets = append(markets, market)
	}
	slices.Sort(markets)

	return markets
}

// SendMarketUpdate relays the provided candlestick for processing.
func (m *Manager) SendMarketUpdate(candle shared.Candlestick) {
	select {
	case m.updateSignals <- candle:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("market update channel at capacity: %d/%d",
			len(m.updateSignals), bufferSize)
	}
}

// Update adds the provided candles to their market snapshots and returns the number
// of candles applied. Stale candles are ignored.
func (m *Manager) Update(candles ...shared.Candlestick) (int, error) {
	var applied int
	for idx := range candles {
		candle := candles[idx]
		snapshot, ok := m.snapshots[candle.Market]
		if !ok {
			return applied, fmt.Errorf("no market found with name %s for update", candle.Market)
		}

		if snapshot.Update(&candle) {
			applied++
			if m.cfg.NotifyUpdate != nil {
				m.cfg.NotifyUpdate(candle)
			}
		}
	}

	return applied, nil
}

// Candles returns the retained candles of the provided market, oldest first.
func (m *Manager) Candles(market string) ([]*shared.Candlestick, error) {
	snapshot, ok := m.snapshots[market]
	if !ok {
		return nil, fmt.Errorf("no market found with name %s", market)
	}

	return snapshot.LastN(m.cfg.SnapshotSize), nil
}

// Last returns the most recent candle of the provided market, nil if none.
func (m *Manager) Last(market string) *shared.Candlestick {
	snapshot, ok := m.snapshots[market]
	if !ok {
		return nil
	}

	return snapshot.Last()
}

// Run processes market updates until the provided context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle := <-m.updateSignals:
			_, err := m.Update(candle)
			if err != nil {
				m.cfg.Logger.Error().Msgf("updating %s market: %v", candle.Market, err)
			}
		}
	}
}
