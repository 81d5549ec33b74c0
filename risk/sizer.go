package risk

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

// Base represents the balance risk amounts are calculated against.
type Base int

const (
	// Reference computes risk against a fixed reference balance.
	Reference Base = iota
	// Running computes risk against the current balance.
	Running
)

// String stringifies the provided risk base.
func (b Base) String() string {
	switch b {
	case Reference:
		return "reference"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// ParseBase parses the provided risk base string.
func ParseBase(str string) (Base, error) {
	switch str {
	case "reference":
		return Reference, nil
	case "running":
		return Running, nil
	default:
		return 0, fmt.Errorf("unknown risk base provided: %s", str)
	}
}

// SizerConfig represents the risk sizer configuration.
type SizerConfig struct {
	// RiskPercent is the percentage of the base balance risked per trade.
	RiskPercent float64
	// StopATRMultiplier is the multiple of the average true range used as stop distance.
	StopATRMultiplier float64
	// MinATRFactor is the fraction of the close price used as the minimum stop distance.
	MinATRFactor float64
	// TakeProfitLevels are the take profit risk multiples.
	TakeProfitLevels []float64
	// Slippage is the fraction entries are filled against the trader.
	Slippage float64
	// Fee is the fee rate charged on entry and exit notional.
	Fee float64
	// Base is the balance risk amounts are calculated against.
	Base Base
	// ReferenceBalance is the fixed balance used when risking against the reference.
	ReferenceBalance float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SizerConfig) Validate() error {
	var errs error
	if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		errs = errors.Join(errs, fmt.Errorf("risk percent must be in (0, 100], got %f", cfg.RiskPercent))
	}
	if cfg.StopATRMultiplier < 0 {
		errs = errors.Join(errs, fmt.Errorf("stop atr multiplier cannot be negative, got %f", cfg.StopATRMultiplier))
	}
	if cfg.MinATRFactor < 0 {
		errs = errors.Join(errs, fmt.Errorf("min atr factor cannot be negative, got %f", cfg.MinATRFactor))
	}
	if len(cfg.TakeProfitLevels) == 0 {
		errs = errors.Join(errs, errors.New("no take profit levels provided"))
	}
	for _, level := range cfg.TakeProfitLevels {
		if level <= 0 {
			errs = errors.Join(errs, fmt.Errorf("take profit levels must be positive, got %f", level))
		}
	}
	if cfg.Slippage < 0 || cfg.Slippage >= 1 {
		errs = errors.Join(errs, fmt.Errorf("slippage must be in [0, 1), got %f", cfg.Slippage))
	}
	if cfg.Fee < 0 || cfg.Fee >= 1 {
		errs = errors.Join(errs, fmt.Errorf("fee must be in [0, 1), got %f", cfg.Fee))
	}
	if cfg.Base == Reference && cfg.ReferenceBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("reference balance must be positive, got %f", cfg.ReferenceBalance))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Plan represents the sized levels of a position about to be opened.
type Plan struct {
	Market    string
	Direction shared.Direction
	// EntryPrice is the signal price adjusted for slippage.
	EntryPrice   float64
	StopLoss     float64
	StopDistance float64
	// Targets are the take profit prices, nearest first.
	Targets    []float64
	Size       float64
	RiskAmount float64
	EntryFee   float64
	Reasons    []shared.Reason
}

// Sizer converts entry signals into sized position plans.
type Sizer struct {
	cfg    *SizerConfig
	levels []float64
}

// NewSizer initializes a new risk sizer.
func NewSizer(cfg *SizerConfig) (*Sizer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating sizer config: %w", err)
	}

	levels := slices.Clone(cfg.TakeProfitLevels)
	slices.Sort(levels)

	return &Sizer{
		cfg:    cfg,
		levels: levels,
	}, nil
}

// StopDistance returns the stop distance for the provided average true range and close.
// An undefined or non-positive average true range falls back to the close price floor.
func (s *Sizer) StopDistance(atr float64, close float64) (float64, error) {
	floor := close * s.cfg.MinATRFactor
	if math.IsNaN(atr) || atr <= 0 {
		atr = 0
	}

	distance := math.Max(atr*s.cfg.StopATRMultiplier, floor)
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, shared.ErrDegenerateSignal
	}

	return distance, nil
}

// TakeProfitDistances returns the take profit distances for the provided stop distance,
// nearest first.
func (s *Sizer) TakeProfitDistances(stopDistance float64) []float64 {
	distances := make([]float64, len(s.levels))
	for idx, level := range s.levels {
		distances[idx] = stopDistance * level
	}

	return distances
}

// RiskAmount returns the amount risked per trade given the current balance.
func (s *Sizer) RiskAmount(balance float64) float64 {
	base := s.cfg.ReferenceBalance
	if s.cfg.Base == Running {
		base = balance
	}

	return base * s.cfg.RiskPercent / 100
}

// EntryPrice adjusts the provided price for slippage against the trader.
func (s *Sizer) EntryPrice(direction shared.Direction, price float64) float64 {
	if direction == shared.Short {
		return price * (1 - s.cfg.Slippage)
	}

	return price * (1 + s.cfg.Slippage)
}

// Plan sizes a position for the provided entry signal.
func (s *Sizer) Plan(signal *shared.EntrySignal, atr float64, close float64, balance float64) (*Plan, error) {
	distance, err := s.StopDistance(atr, close)
	if err != nil {
		return nil, fmt.Errorf("%s stop distance (atr %f, close %f): %w", signal.Market, atr, close, err)
	}

	riskAmount := s.RiskAmount(balance)
	if riskAmount <= 0 || balance < riskAmount {
		return nil, fmt.Errorf("%s balance %f cannot cover risk %f: %w",
			signal.Market, balance, riskAmount, shared.ErrInsufficientBalance)
	}

	entry := s.EntryPrice(signal.Direction, signal.Price)
	size := riskAmount / distance
	fee := size * entry * s.cfg.Fee
	if fee > balance {
		return nil, fmt.Errorf("%s entry fee %f exceeds balance %f: %w",
			signal.Market, fee, balance, shared.ErrInsufficientBalance)
	}

	distances := s.TakeProfitDistances(distance)
	targets := make([]float64, len(distances))
	var stop float64
	switch signal.Direction {
	case shared.Long:
		stop = entry - distance
		for idx, d := range distances {
			targets[idx] = entry + d
		}
	case shared.Short:
		stop = entry + distance
		for idx, d := range distances {
			targets[idx] = entry - d
		}
	default:
		return nil, fmt.Errorf("unknown direction for %s signal: %s", signal.Market, signal.Direction)
	}

	plan := &Plan{
		Market:       signal.Market,
		Direction:    signal.Direction,
		EntryPrice:   entry,
		StopLoss:     stop,
		StopDistance: distance,
		Targets:      targets,
		Size:         size,
		RiskAmount:   riskAmount,
		EntryFee:     fee,
		Reasons:      signal.Reasons,
	}

	s.cfg.Logger.Debug().Msgf("%s: balance %.2f, risk %.2f, stop distance %.4f, size %.4f, entry %.4f",
		signal.Market, balance, riskAmount, distance, size, entry)

	return plan, nil
}
