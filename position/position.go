package position

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
	"github.com/google/uuid"
)

// TakeProfitMode represents how take profit levels close a position.
type TakeProfitMode int

const (
	// FullExit closes the entire position at the first take profit reached.
	FullExit TakeProfitMode = iota
	// PartialExit closes an equal share of the initial size at each take profit level,
	// the last level closing the remainder.
	PartialExit
)

// String stringifies the provided take profit mode.
func (m TakeProfitMode) String() string {
	switch m {
	case FullExit:
		return "full"
	case PartialExit:
		return "partial"
	default:
		return "unknown"
	}
}

// ParseTakeProfitMode parses the provided take profit mode string.
func ParseTakeProfitMode(str string) (TakeProfitMode, error) {
	switch str {
	case "full":
		return FullExit, nil
	case "partial":
		return PartialExit, nil
	default:
		return 0, fmt.Errorf("unknown take profit mode provided: %s", str)
	}
}

// LifecycleConfig represents the position lifecycle configuration.
type LifecycleConfig struct {
	// TradeTimeout is the number of candles after entry a position is closed at.
	TradeTimeout int
	// TrailingStopPercent is the fraction of price the trailing stop follows at.
	TrailingStopPercent float64
	// Fee is the fee rate charged on exit notional.
	Fee float64
	// TakeProfitMode is how take profit levels close positions.
	TakeProfitMode TakeProfitMode
}

// Validate asserts the config sane inputs.
func (cfg *LifecycleConfig) Validate() error {
	var errs error
	if cfg.TradeTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("trade timeout must be positive, got %d", cfg.TradeTimeout))
	}
	if cfg.TrailingStopPercent < 0 || cfg.TrailingStopPercent >= 1 {
		errs = errors.Join(errs, fmt.Errorf("trailing stop percent must be in [0, 1), got %f", cfg.TrailingStopPercent))
	}
	if cfg.Fee < 0 || cfg.Fee >= 1 {
		errs = errors.Join(errs, fmt.Errorf("fee must be in [0, 1), got %f", cfg.Fee))
	}
	if cfg.TakeProfitMode != FullExit && cfg.TakeProfitMode != PartialExit {
		errs = errors.Join(errs, fmt.Errorf("unknown take profit mode: %d", cfg.TakeProfitMode))
	}

	return errs
}

// Position represents an open market position.
type Position struct {
	ID         string
	Market     string
	Direction  shared.Direction
	EntryPrice float64
	StopLoss   float64
	// Targets are the take profit prices, nearest first.
	Targets []float64
	// TargetsHit tracks the take profit levels already reached. Entries only ever
	// transition from false to true.
	TargetsHit     []bool
	Size           float64
	InitialSize    float64
	EntryIndex     int
	EntryTime      time.Time
	EntryFee       float64
	EntryFeeBooked bool
	EntryReasons   string
}

// clone returns a deep copy of the position.
func (p *Position) clone() *Position {
	pos := *p
	pos.Targets = slices.Clone(p.Targets)
	pos.TargetsHit = slices.Clone(p.TargetsHit)

	return &pos
}

// stringifyReasons stringifies the collection of reasons provided.
func stringifyReasons(reasons []shared.Reason) string {
	buf := bytes.NewBuffer([]byte{})
	for idx := range reasons {
		buf.WriteString(reasons[idx].String())
		if idx < len(reasons)-1 {
			buf.WriteString(",")
		}
	}

	return buf.String()
}

// NewPosition initializes a new position from the provided plan.
func NewPosition(plan *risk.Plan, index int, date time.Time) (*Position, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan cannot be nil")
	}
	if plan.Size <= 0 {
		return nil, fmt.Errorf("position size must be positive, got %f", plan.Size)
	}
	if len(plan.Targets) == 0 {
		return nil, fmt.Errorf("no take profit targets provided for %s", plan.Market)
	}

	pos := &Position{
		ID:           uuid.New().String(),
		Market:       plan.Market,
		Direction:    plan.Direction,
		EntryPrice:   plan.EntryPrice,
		StopLoss:     plan.StopLoss,
		Targets:      slices.Clone(plan.Targets),
		TargetsHit:   make([]bool, len(plan.Targets)),
		Size:         plan.Size,
		InitialSize:  plan.Size,
		EntryIndex:   index,
		EntryTime:    date,
		EntryFee:     plan.EntryFee,
		EntryReasons: stringifyReasons(plan.Reasons),
	}

	return pos, nil
}

// Action represents the effect of a management step on a position.
type Action int

const (
	Hold Action = iota
	Trail
	PartialClose
	Close
)

// String stringifies the provided action.
func (a Action) String() string {
	switch a {
	case Hold:
		return "hold"
	case Trail:
		return "trail"
	case PartialClose:
		return "partial close"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// Result represents the outcome of a management step.
type Result struct {
	Action Action
	// Record is the concluded trade for close actions.
	Record *shared.TradeRecord
	// BalanceDelta is the balance change of the step, net of the exit fee.
	BalanceDelta float64
}

// UnrealizedProfit returns the gross profit of the position at the provided price.
func (p *Position) UnrealizedProfit(price float64) float64 {
	if p.Direction == shared.Short {
		return (p.EntryPrice - price) * p.Size
	}

	return (price - p.EntryPrice) * p.Size
}

// settle books the closing of the provided size at the provided exit price.
func (p *Position) settle(size float64, exit float64, outcome shared.Outcome, reason shared.Reason,
	date time.Time, balance float64, fee float64) (*shared.TradeRecord, float64) {
	var gross float64
	switch p.Direction {
	case shared.Short:
		gross = (p.EntryPrice - exit) * size
	default:
		gross = (exit - p.EntryPrice) * size
	}

	// A loss can at most wipe out the remaining balance.
	delta := math.Max(gross-size*exit*fee, -balance)
	pnl := delta
	if !p.EntryFeeBooked {
		pnl -= p.EntryFee
		p.EntryFeeBooked = true
	}

	p.Size -= size
	record := &shared.TradeRecord{
		PositionID: p.ID,
		Market:     p.Market,
		Direction:  p.Direction,
		Outcome:    outcome,
		Reason:     reason,
		ProfitLoss: pnl,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exit,
		Size:       size,
		EntryTime:  p.EntryTime,
		ExitTime:   date,
	}

	return record, delta
}

// stopHit checks whether the provided price breached the stop loss.
func (p *Position) stopHit(price float64) bool {
	if p.Direction == shared.Short {
		return price >= p.StopLoss
	}

	return price <= p.StopLoss
}

// targetReached checks whether the provided price reached the target at the provided index.
func (p *Position) targetReached(idx int, price float64) bool {
	if p.Direction == shared.Short {
		return price <= p.Targets[idx]
	}

	return price >= p.Targets[idx]
}

// Manage advances the position by a single step at the provided price. Exits are
// checked in a fixed order: timeout, stop loss, the take profit ladder and finally
// the trailing stop ratchet. The first condition met concludes the step.
func (p *Position) Manage(price float64, index int, date time.Time, balance float64, cfg *LifecycleConfig) (*Result, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("position %s for %s is already closed", p.ID, p.Market)
	}

	if index-p.EntryIndex >= cfg.TradeTimeout {
		record, delta := p.settle(p.Size, price, shared.Timeout, shared.TimedOut, date, balance, cfg.Fee)
		return &Result{Action: Close, Record: record, BalanceDelta: delta}, nil
	}

	if p.stopHit(price) {
		record, delta := p.settle(p.Size, p.StopLoss, shared.Loss, shared.StopLossHit, date, balance, cfg.Fee)
		return &Result{Action: Close, Record: record, BalanceDelta: delta}, nil
	}

	for idx := range p.Targets {
		if p.TargetsHit[idx] || !p.targetReached(idx, price) {
			continue
		}

		p.TargetsHit[idx] = true

		size := p.Size
		action := Close
		if cfg.TakeProfitMode == PartialExit && !p.lastTarget(idx) {
			size = math.Min(p.InitialSize/float64(len(p.Targets)), p.Size)
			action = PartialClose
		}

		record, delta := p.settle(size, p.Targets[idx], shared.Win, shared.TargetHit, date, balance, cfg.Fee)
		if action == PartialClose && p.Size <= 0 {
			action = Close
		}

		return &Result{Action: action, Record: record, BalanceDelta: delta}, nil
	}

	if p.trail(price, cfg.TrailingStopPercent) {
		return &Result{Action: Trail}, nil
	}

	return &Result{Action: Hold}, nil
}

// lastTarget checks whether every other target has been hit.
func (p *Position) lastTarget(idx int) bool {
	for i, hit := range p.TargetsHit {
		if i != idx && !hit {
			return false
		}
	}

	return true
}

// trail tightens the stop loss toward the provided price once price has moved past
// entry. The stop never loosens.
func (p *Position) trail(price float64, percent float64) bool {
	switch p.Direction {
	case shared.Short:
		if price >= p.EntryPrice {
			return false
		}
		stop := price * (1 + percent)
		if stop < p.StopLoss {
			p.StopLoss = stop
			return true
		}
	case shared.Long:
		if price <= p.EntryPrice {
			return false
		}
		stop := price * (1 - percent)
		if stop > p.StopLoss {
			p.StopLoss = stop
			return true
		}
	}

	return false
}

// Close concludes the remainder of the position at the provided price as a timeout.
func (p *Position) Close(price float64, reason shared.Reason, date time.Time, balance float64, fee float64) (*Result, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("position %s for %s is already closed", p.ID, p.Market)
	}

	record, delta := p.settle(p.Size, price, shared.Timeout, reason, date, balance, fee)
	return &Result{Action: Close, Record: record, BalanceDelta: delta}, nil
}
