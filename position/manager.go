package position

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

var (
	// ErrSinglePosition is returned when opening a second position while the manager
	// only allows a single open position.
	ErrSinglePosition = errors.New("single position already open")
)

// ManagerConfig represents the position manager configuration.
type ManagerConfig struct {
	// Markets represents the collection of ids of the markets to manage.
	Markets []string
	// SinglePosition restricts the manager to one open position across all markets.
	SinglePosition bool
	// Lifecycle is the position lifecycle configuration.
	Lifecycle LifecycleConfig
	// NotifyClose relays concluded trade records. Optional.
	NotifyClose func(record shared.TradeRecord)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, errors.New("no markets provided"))
	}
	if err := cfg.Lifecycle.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Manager manages positions through their lifecycles, at most one per market.
type Manager struct {
	cfg     *ManagerConfig
	markets map[string]*Market
	names   []string
	openMtx sync.Mutex
	open    atomic.Int32
}

// NewManager initializes a new position manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating position manager config: %w", err)
	}

	markets := make(map[string]*Market, len(cfg.Markets))
	for _, market := range cfg.Markets {
		markets[market] = NewMarket(market)
	}

	names := slices.Clone(cfg.Markets)
	slices.Sort(names)
	names = slices.Compact(names)

	return &Manager{
		cfg:     cfg,
		markets: markets,
		names:   names,
	}, nil
}

// fetchMarket returns the tracked market with the provided name.
func (m *Manager) fetchMarket(market string) (*Market, error) {
	mkt, ok := m.markets[market]
	if !ok {
		return nil, fmt.Errorf("no market found with name: %s", market)
	}

	return mkt, nil
}

// CanOpen checks whether a position can be opened for the provided market.
func (m *Manager) CanOpen(market string) bool {
	mkt, ok := m.markets[market]
	if !ok {
		return false
	}
	if m.cfg.SinglePosition && m.open.Load() > 0 {
		return false
	}

	return !mkt.IsOpen()
}

// Open opens a position from the provided plan.
func (m *Manager) Open(plan *risk.Plan, index int, date time.Time) (*Position, error) {
	return m.OpenWith(plan, index, date, nil)
}

// OpenWith opens a position from the provided plan once the provided entry succeeds.
// The plan's market stays locked while the entry runs. In single position mode every
// market is locked for the duration.
func (m *Manager) OpenWith(plan *risk.Plan, index int, date time.Time, entry EntryFunc) (*Position, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}

	mkt, err := m.fetchMarket(plan.Market)
	if err != nil {
		return nil, err
	}

	if m.cfg.SinglePosition {
		m.openMtx.Lock()
		defer m.openMtx.Unlock()

		if m.open.Load() > 0 {
			return nil, fmt.Errorf("%s: %w", plan.Market, ErrSinglePosition)
		}
	}

	pos, err := mkt.OpenWith(plan, index, date, entry)
	if err != nil {
		return nil, err
	}

	m.open.Inc()
	m.cfg.Logger.Info().Msgf("opened %s position (%s) for %s @ %f, stop loss %f, size %f",
		pos.Direction, pos.ID, pos.Market, pos.EntryPrice, pos.StopLoss, pos.Size)

	return pos, nil
}

// handleResult logs and relays the provided management result.
func (m *Manager) handleResult(market string, res *Result, pos *Position) {
	switch res.Action {
	case Trail:
		if pos != nil {
			m.cfg.Logger.Info().Msgf("trailed %s stop loss to %f", market, pos.StopLoss)
		}
	case PartialClose, Close:
		rec := res.Record
		m.cfg.Logger.Info().Msgf("%s %s position (%s) for %s @ %f, %s, profit %f",
			res.Action, rec.Direction, rec.PositionID, rec.Market, rec.ExitPrice, rec.Outcome, rec.ProfitLoss)
		if res.Action == Close {
			m.open.Dec()
		}
		if m.cfg.NotifyClose != nil {
			m.cfg.NotifyClose(*rec)
		}
	}
}

// Manage advances the open position of the provided market at the provided price. A nil
// result is returned when the market has no open position.
func (m *Manager) Manage(market string, price float64, index int, date time.Time, balance float64) (*Result, error) {
	return m.ManageWith(market, price, index, date, balance, nil)
}

// ManageWith advances the open position of the provided market at the provided price,
// applying reductions and closes only once the provided exit succeeds.
func (m *Manager) ManageWith(market string, price float64, index int, date time.Time, balance float64, exit ExitFunc) (*Result, error) {
	mkt, err := m.fetchMarket(market)
	if err != nil {
		return nil, err
	}

	res, err := mkt.ManageWith(price, index, date, balance, &m.cfg.Lifecycle, exit)
	if err != nil {
		return nil, fmt.Errorf("managing %s position: %w", market, err)
	}
	if res == nil {
		return nil, nil
	}

	var pos *Position
	if res.Action == Trail {
		pos = mkt.Position()
	}
	m.handleResult(market, res, pos)

	return res, nil
}

// Close concludes the open position of the provided market at the provided price.
func (m *Manager) Close(market string, price float64, reason shared.Reason, date time.Time, balance float64) (*Result, error) {
	mkt, err := m.fetchMarket(market)
	if err != nil {
		return nil, err
	}

	res, err := mkt.Close(price, reason, date, balance, m.cfg.Lifecycle.Fee)
	if err != nil {
		return nil, fmt.Errorf("closing %s position: %w", market, err)
	}
	if res == nil {
		return nil, nil
	}

	m.handleResult(market, res, nil)

	return res, nil
}

// Position returns a copy of the open position of the provided market, nil if flat.
func (m *Manager) Position(market string) *Position {
	mkt, ok := m.markets[market]
	if !ok {
		return nil
	}

	return mkt.Position()
}

// OpenMarkets returns the markets with open positions, sorted by name.
func (m *Manager) OpenMarkets() []string {
	open := make([]string, 0)
	for _, name := range m.names {
		if m.markets[name].IsOpen() {
			open = append(open, name)
		}
	}

	return open
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	return int(m.open.Load())
}

// Flush closes every open position at the provided closing candles as end of data. Each
// close is settled against the balance left by the previous ones. Markets without a
// closing candle are left open.
func (m *Manager) Flush(closes map[string]*shared.Candlestick, balance float64) []*Result {
	results := make([]*Result, 0)
	for _, name := range m.OpenMarkets() {
		candle, ok := closes[name]
		if !ok || candle == nil {
			m.cfg.Logger.Error().Msgf("no closing candle to flush %s position", name)
			continue
		}

		res, err := m.Close(name, candle.Close, shared.EndOfData, candle.Date, balance)
		if err != nil {
			m.cfg.Logger.Error().Msgf("flushing %s position: %v", name, err)
			continue
		}
		if res == nil {
			continue
		}

		balance += res.BalanceDelta
		results = append(results, res)
	}

	return results
}
