package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dnldd/smc/indicator"
	"github.com/dnldd/smc/priceaction"
	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

const (
	// DefaultTopN is the default number of ranked markets returned.
	DefaultTopN = 4
	// DefaultReturnLookback is the default lookback of the return ranker, a day of five
	// minute candles.
	DefaultReturnLookback = 288
	// minVolatility is the minimum average atr to close ratio of a favourable market.
	minVolatility = 0.005
	// minBearishRatio is the minimum share of markets with bearish momentum of a
	// favourable market.
	minBearishRatio = 0.6
	// sentimentWeight scales how much sentiment adjusts composite scores.
	sentimentWeight = 0.5
)

// Ranker orders candidate markets by favourability.
type Ranker interface {
	// Rank returns the names of the most favourable markets, best first. An empty
	// result indicates unfavourable conditions.
	Rank(ctx context.Context, snapshots []*priceaction.Snapshot) []string
}

// Kind represents a ranking strategy.
type Kind int

const (
	Composite Kind = iota
	Return
)

// String stringifies the provided ranking strategy.
func (k Kind) String() string {
	switch k {
	case Composite:
		return "composite"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

// ParseKind parses the provided ranking strategy name.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "composite":
		return Composite, nil
	case "return":
		return Return, nil
	default:
		return 0, fmt.Errorf("unknown ranker provided: %s", name)
	}
}

// score represents a scored market.
type score struct {
	market string
	value  float64
}

// top orders the provided scores descending, breaking ties by market name, and
// returns at most n market names.
func top(scores []score, n int) []string {
	slices.SortFunc(scores, func(a, b score) int {
		switch {
		case a.value > b.value:
			return -1
		case a.value < b.value:
			return 1
		case a.market < b.market:
			return -1
		case a.market > b.market:
			return 1
		default:
			return 0
		}
	})

	if n > 0 && len(scores) > n {
		scores = scores[:n]
	}

	names := make([]string, len(scores))
	for idx := range scores {
		names[idx] = scores[idx].market
	}

	return names
}

// CompositeConfig represents the composite ranker configuration.
type CompositeConfig struct {
	// Sentiment scores market sentiment. Optional, markets are neutral without it.
	Sentiment shared.SentimentSource
	// TopN is the maximum number of markets returned.
	TopN int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *CompositeConfig) Validate() error {
	var errs error
	if cfg.TopN <= 0 {
		errs = errors.Join(errs, fmt.Errorf("top n must be positive, got %d", cfg.TopN))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// CompositeRanker ranks volatile markets with bearish momentum and bearish sentiment.
type CompositeRanker struct {
	cfg *CompositeConfig
}

// NewCompositeRanker initializes a new composite ranker.
func NewCompositeRanker(cfg *CompositeConfig) (*CompositeRanker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating composite ranker config: %w", err)
	}

	return &CompositeRanker{cfg: cfg}, nil
}

// eligible checks whether the provided snapshot carries enough history to be ranked.
func eligible(snap *priceaction.Snapshot) bool {
	return snap != nil && snap.MomentumKnown && !indicator.Undefined(snap.ATR) && snap.Close > 0
}

// Favourable checks whether aggregate conditions across the provided snapshots
// support trading: volatile markets with mostly bearish momentum.
func (r *CompositeRanker) Favourable(snapshots []*priceaction.Snapshot) bool {
	var volatility float64
	var bearish, count int
	for _, snap := range snapshots {
		if !eligible(snap) {
			continue
		}

		count++
		volatility += snap.ATR / snap.Close
		if snap.Momentum == shared.Bearish {
			bearish++
		}
	}

	if count == 0 {
		return false
	}

	avgVolatility := volatility / float64(count)
	bearishRatio := float64(bearish) / float64(count)
	favourable := avgVolatility > minVolatility && bearishRatio > minBearishRatio
	r.cfg.Logger.Debug().Msgf("market check: avg volatility %.4f, bearish ratio %.2f, favourable %v",
		avgVolatility, bearishRatio, favourable)

	return favourable
}

// sentiment returns the clamped sentiment score of the provided market, neutral when
// unavailable.
func (r *CompositeRanker) sentiment(ctx context.Context, market string) float64 {
	if r.cfg.Sentiment == nil {
		return 0
	}

	value, err := r.cfg.Sentiment.Score(ctx, market)
	if err != nil {
		r.cfg.Logger.Warn().Msgf("fetching %s sentiment, defaulting to neutral: %v", market, err)
		return 0
	}

	if math.IsNaN(value) {
		return 0
	}

	return math.Max(-1, math.Min(1, value))
}

// Rank returns the highest scoring markets. Only markets with bearish momentum score
// above zero.
func (r *CompositeRanker) Rank(ctx context.Context, snapshots []*priceaction.Snapshot) []string {
	if !r.Favourable(snapshots) {
		r.cfg.Logger.Debug().Msg("market conditions unfavourable, no markets ranked")
		return nil
	}

	scores := make([]score, 0, len(snapshots))
	for _, snap := range snapshots {
		if !eligible(snap) || len(snap.Closes) < 2 || snap.Closes[0] == 0 {
			continue
		}

		var value float64
		if snap.Momentum == shared.Bearish {
			first := snap.Closes[0]
			change := (snap.Closes[len(snap.Closes)-1] - first) / first
			volatility := indicator.StdDev(indicator.PercentChanges(snap.Closes))
			factor := 1 - r.sentiment(ctx, snap.Market)*sentimentWeight
			value = math.Abs(change) * volatility * factor
		}

		r.cfg.Logger.Debug().Msgf("%s: momentum %s, score %.6f", snap.Market, snap.Momentum, value)
		scores = append(scores, score{market: snap.Market, value: value})
	}

	return top(scores, r.cfg.TopN)
}

// ReturnConfig represents the return ranker configuration.
type ReturnConfig struct {
	// Lookback is the number of candles the trailing return is measured over.
	Lookback int
	// TopN is the maximum number of markets returned.
	TopN int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ReturnConfig) Validate() error {
	var errs error
	if cfg.Lookback < 2 {
		errs = errors.Join(errs, fmt.Errorf("lookback must be at least 2, got %d", cfg.Lookback))
	}
	if cfg.TopN <= 0 {
		errs = errors.Join(errs, fmt.Errorf("top n must be positive, got %d", cfg.TopN))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// ReturnRanker ranks markets by trailing return.
type ReturnRanker struct {
	cfg *ReturnConfig
}

// NewReturnRanker initializes a new return ranker.
func NewReturnRanker(cfg *ReturnConfig) (*ReturnRanker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating return ranker config: %w", err)
	}

	return &ReturnRanker{cfg: cfg}, nil
}

// Rank returns the markets with the highest trailing return over the lookback.
func (r *ReturnRanker) Rank(_ context.Context, snapshots []*priceaction.Snapshot) []string {
	scores := make([]score, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || len(snap.Closes) < 2 {
			continue
		}

		closes := snap.Closes
		if len(closes) > r.cfg.Lookback {
			closes = closes[len(closes)-r.cfg.Lookback:]
		}

		first := closes[0]
		if first == 0 {
			continue
		}

		value := (closes[len(closes)-1] - first) / first
		scores = append(scores, score{market: snap.Market, value: value})
	}

	return top(scores, r.cfg.TopN)
}
