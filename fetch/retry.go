package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

// RetrierConfig represents the candle fetch retry policy configuration.
type RetrierConfig struct {
	// Source is the wrapped candle source.
	Source shared.CandleSource
	// MaxAttempts is the maximum number of fetch attempts.
	MaxAttempts int
	// Backoff is the delay before the first retry, doubled after every attempt.
	Backoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RetrierConfig) Validate() error {
	var errs error
	if cfg.Source == nil {
		errs = errors.Join(errs, errors.New("no candle source provided"))
	}
	if cfg.MaxAttempts <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts))
	}
	if cfg.Backoff < 0 {
		errs = errors.Join(errs, fmt.Errorf("backoff cannot be negative, got %s", cfg.Backoff))
	}
	if cfg.MaxBackoff < cfg.Backoff {
		errs = errors.Join(errs, fmt.Errorf("max backoff %s is less than backoff %s", cfg.MaxBackoff, cfg.Backoff))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Retrier retries failed candle fetches with exponential backoff.
type Retrier struct {
	cfg *RetrierConfig
}

// Ensure the Retrier implements the CandleSource interface.
var _ shared.CandleSource = (*Retrier)(nil)

// NewRetrier initializes a new retrier.
func NewRetrier(cfg *RetrierConfig) (*Retrier, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating retrier config: %w", err)
	}

	return &Retrier{cfg: cfg}, nil
}

// FetchCandles fetches candles from the wrapped source, retrying failures until the
// attempts are exhausted or the context is cancelled.
func (r *Retrier) FetchCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]shared.Candlestick, error) {
	delay := r.cfg.Backoff
	var errs error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		candles, err := r.cfg.Source.FetchCandles(ctx, market, timeframe, limit)
		if err == nil {
			return candles, nil
		}

		errs = errors.Join(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		if attempt == r.cfg.MaxAttempts {
			break
		}

		r.cfg.Logger.Warn().Msgf("fetching %s candles (attempt %d/%d), retrying in %s: %v",
			market, attempt, r.cfg.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(errs, ctx.Err())
		case <-time.After(delay):
		}

		delay = min(delay*2, r.cfg.MaxBackoff)
	}

	return nil, fmt.Errorf("fetching %s candles after %d attempts: %w", market, r.cfg.MaxAttempts, errs)
}
