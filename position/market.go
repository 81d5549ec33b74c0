package position

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
)

var (
	// ErrPositionExists is returned when opening a position for a market that already
	// has one open.
	ErrPositionExists = errors.New("position already open")
)

// Market serializes the position lifecycle of a single market. Opening and managing
// a market's position never interleave.
type Market struct {
	market      string
	position    *Position
	positionMtx sync.Mutex
}

// NewMarket initializes a new market.
func NewMarket(market string) *Market {
	return &Market{
		market: market,
	}
}

// EntryFunc places the order backing a position about to be opened.
type EntryFunc func(pos *Position) error

// ExitFunc places the order backing a position reduction or close about to be applied.
type ExitFunc func(res *Result) error

// Open opens a position for the market from the provided plan.
func (m *Market) Open(plan *risk.Plan, index int, date time.Time) (*Position, error) {
	return m.OpenWith(plan, index, date, nil)
}

// OpenWith opens a position for the market from the provided plan once the provided
// entry succeeds. The market stays locked while the entry runs, a failed entry leaves
// the market flat.
func (m *Market) OpenWith(plan *risk.Plan, index int, date time.Time, entry EntryFunc) (*Position, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}
	if plan.Market != m.market {
		return nil, fmt.Errorf("unexpected %s plan provided for %s market", plan.Market, m.market)
	}

	m.positionMtx.Lock()
	defer m.positionMtx.Unlock()

	if m.position != nil {
		return nil, fmt.Errorf("%s: %w", m.market, ErrPositionExists)
	}

	pos, err := NewPosition(plan, index, date)
	if err != nil {
		return nil, err
	}

	if entry != nil {
		err = entry(pos.clone())
		if err != nil {
			return nil, err
		}
	}

	m.position = pos

	return pos.clone(), nil
}

// Manage advances the market's open position at the provided price. A nil result is
// returned when no position is open.
func (m *Market) Manage(price float64, index int, date time.Time, balance float64, cfg *LifecycleConfig) (*Result, error) {
	return m.ManageWith(price, index, date, balance, cfg, nil)
}

// ManageWith advances the market's open position at the provided price. Reductions
// and closes are applied only once the provided exit succeeds, a failed exit leaves
// the position untouched.
func (m *Market) ManageWith(price float64, index int, date time.Time, balance float64, cfg *LifecycleConfig, exit ExitFunc) (*Result, error) {
	m.positionMtx.Lock()
	defer m.positionMtx.Unlock()

	if m.position == nil {
		return nil, nil
	}

	next := m.position.clone()
	res, err := next.Manage(price, index, date, balance, cfg)
	if err != nil {
		return nil, err
	}

	if exit != nil && res.Record != nil {
		err = exit(res)
		if err != nil {
			return nil, err
		}
	}

	switch res.Action {
	case Close:
		m.position = nil
	default:
		m.position = next
	}

	return res, nil
}

// Close concludes the market's open position at the provided price. A nil result is
// returned when no position is open.
func (m *Market) Close(price float64, reason shared.Reason, date time.Time, balance float64, fee float64) (*Result, error) {
	m.positionMtx.Lock()
	defer m.positionMtx.Unlock()

	if m.position == nil {
		return nil, nil
	}

	res, err := m.position.Close(price, reason, date, balance, fee)
	if err != nil {
		return nil, err
	}

	m.position = nil

	return res, nil
}

// Position returns a copy of the market's open position, nil if flat.
func (m *Market) Position() *Position {
	m.positionMtx.Lock()
	defer m.positionMtx.Unlock()

	if m.position == nil {
		return nil
	}

	return m.position.clone()
}

// IsOpen checks whether the market has an open position.
func (m *Market) IsOpen() bool {
	m.positionMtx.Lock()
	defer m.positionMtx.Unlock()

	return m.position != nil
}
