package sentiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Clamp bounds the provided sentiment score to [-1, 1]. Undefined scores are neutral.
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}

	return math.Max(-1, math.Min(1, score))
}

// Static serves fixed sentiment scores. Markets without a score are neutral.
type Static map[string]float64

// Ensure Static implements the SentimentSource interface.
var _ shared.SentimentSource = Static(nil)

// Score returns the configured sentiment score of the provided market.
func (s Static) Score(_ context.Context, market string) (float64, error) {
	return Clamp(s[market]), nil
}

// HTTPConfig represents the http sentiment provider configuration.
type HTTPConfig struct {
	// URL is the sentiment endpoint, queried with a symbol parameter.
	URL string
	// Timeout is the http request timeout.
	Timeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HTTPConfig) Validate() error {
	var errs error
	if cfg.URL == "" {
		errs = errors.Join(errs, errors.New("no sentiment url provided"))
	}
	if cfg.Timeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// HTTPSource fetches market sentiment scores from an http provider responding with
// a json object carrying a numeric score field.
type HTTPSource struct {
	cfg   *HTTPConfig
	httpc *http.Client
}

// Ensure HTTPSource implements the SentimentSource interface.
var _ shared.SentimentSource = (*HTTPSource)(nil)

// NewHTTPSource initializes a new http sentiment source.
func NewHTTPSource(cfg *HTTPConfig) (*HTTPSource, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating sentiment source config: %w", err)
	}

	return &HTTPSource{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Score fetches the sentiment score of the provided market.
func (s *HTTPSource) Score(ctx context.Context, market string) (float64, error) {
	params := url.Values{}
	params.Add("symbol", market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating sentiment request: %w", err)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s sentiment: %w", market, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching %s sentiment: unexpected status %d", market, resp.StatusCode)
	}

	score := gjson.GetBytes(body, "score")
	if score.Type != gjson.Number {
		return 0, fmt.Errorf("fetching %s sentiment: no numeric score in response: %s", market, body)
	}

	s.cfg.Logger.Debug().Msgf("%s sentiment score: %.4f", market, score.Float())

	return Clamp(score.Float()), nil
}
