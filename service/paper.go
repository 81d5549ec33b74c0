package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dnldd/smc/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaperConfig represents the paper broker configuration.
type PaperConfig struct {
	// InitialBalance is the starting cash balance.
	InitialBalance float64
	// Fee is the fee rate charged on order notional.
	Fee float64
	// Quote returns the current price of the provided market.
	Quote func(market string) (float64, error)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PaperConfig) Validate() error {
	var errs error
	if cfg.InitialBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial balance must be positive, got %f", cfg.InitialBalance))
	}
	if cfg.Fee < 0 || cfg.Fee >= 1 {
		errs = errors.Join(errs, fmt.Errorf("fee must be in [0, 1), got %f", cfg.Fee))
	}
	if cfg.Quote == nil {
		errs = errors.Join(errs, errors.New("quote function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("logger cannot be nil"))
	}

	return errs
}

// PaperBroker simulates order fills at quoted prices against a cash balance.
type PaperBroker struct {
	cfg      *PaperConfig
	mtx      sync.Mutex
	cash     float64
	holdings map[string]float64
}

// Ensure the PaperBroker implements the OrderBroker interface.
var _ shared.OrderBroker = (*PaperBroker)(nil)

// NewPaperBroker initializes a new paper broker.
func NewPaperBroker(cfg *PaperConfig) (*PaperBroker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating paper broker config: %w", err)
	}

	return &PaperBroker{
		cfg:      cfg,
		cash:     cfg.InitialBalance,
		holdings: make(map[string]float64),
	}, nil
}

// PlaceMarketOrder fills a market order at the quoted price.
func (b *PaperBroker) PlaceMarketOrder(_ context.Context, market string, direction shared.Direction, size float64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("order size must be positive, got %f", size)
	}

	price, err := b.cfg.Quote(market)
	if err != nil {
		return "", fmt.Errorf("quoting %s: %w", market, err)
	}

	signed := size
	if direction == shared.Short {
		signed = -size
	}

	b.mtx.Lock()
	b.cash -= signed*price + size*price*b.cfg.Fee
	b.holdings[market] += signed
	if math.Abs(b.holdings[market]) < 1e-12 {
		delete(b.holdings, market)
	}
	b.mtx.Unlock()

	id := uuid.New().String()
	b.cfg.Logger.Info().Msgf("filled paper %s order %s for %f %s @ %f", direction, id, size, market, price)

	return id, nil
}

// FetchBalance returns the cash balance marked to the quoted price of open holdings.
func (b *PaperBroker) FetchBalance(_ context.Context) (float64, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	balance := b.cash
	for market, held := range b.holdings {
		price, err := b.cfg.Quote(market)
		if err != nil {
			return 0, fmt.Errorf("quoting %s: %w", market, err)
		}
		balance += held * price
	}

	return balance, nil
}
