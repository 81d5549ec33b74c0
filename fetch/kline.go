package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// klinesPath is the exchange kline endpoint.
	klinesPath = "/api/v3/klines"
	// maxKlineBatch is the maximum number of klines returned per request.
	maxKlineBatch = 1000
)

// KlineConfig represents the configuration for the exchange kline client.
type KlineConfig struct {
	// BaseURL is the exchange REST api base url.
	BaseURL string
	// Timeout is the http request timeout.
	Timeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *KlineConfig) Validate() error {
	var errs error
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, errors.New("no base url provided"))
	}
	if cfg.Timeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// KlineClient fetches candles from a Binance compatible kline api.
type KlineClient struct {
	cfg   *KlineConfig
	httpc *http.Client
}

// Ensure the KlineClient implements the CandleSource interface.
var _ shared.CandleSource = (*KlineClient)(nil)

// NewKlineClient instantiates a new kline client.
func NewKlineClient(cfg *KlineConfig) (*KlineClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating kline client config: %w", err)
	}

	return &KlineClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// formURL creates full urls including parameters for the api.
func (c *KlineClient) formURL(path string, params string) string {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params)

	return buf.String()
}

// ParseKlines parses candlesticks from the provided kline rows. Each row is an array
// of open time (ms), open, high, low, close and volume, followed by fields that are
// ignored.
func ParseKlines(data []gjson.Result, market string, timeframe shared.Timeframe) ([]shared.Candlestick, error) {
	candles := make([]shared.Candlestick, len(data))
	for idx := range data {
		row := data[idx].Array()
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline at index %d: expected at least 6 fields, got %d",
				idx, len(row))
		}

		candles[idx] = shared.Candlestick{
			Date:      time.UnixMilli(row[0].Int()).UTC(),
			Open:      row[1].Float(),
			High:      row[2].Float(),
			Low:       row[3].Float(),
			Close:     row[4].Float(),
			Volume:    row[5].Float(),
			Market:    market,
			Timeframe: timeframe,
		}
	}

	return candles, nil
}

// fetchBatch fetches a batch of klines ending at the provided time, the most recent
// klines if end is zero.
func (c *KlineClient) fetchBatch(ctx context.Context, market string, timeframe shared.Timeframe, limit int, end time.Time) ([]gjson.Result, error) {
	params := url.Values{}
	params.Add("symbol", market)
	params.Add("interval", timeframe.String())
	params.Add("limit", strconv.Itoa(limit))
	if !end.IsZero() {
		params.Add("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(klinesPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating kline request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s klines for %s: %w", timeframe, market, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s klines for %s: unexpected status %d: %s", timeframe, market,
			resp.StatusCode, gjson.GetBytes(body, "msg").String())
	}

	data := gjson.ParseBytes(body)
	if !data.IsArray() {
		return nil, fmt.Errorf("fetching %s klines for %s: unexpected response: %s", timeframe, market, body)
	}

	return data.Array(), nil
}

// FetchCandles fetches up to limit of the most recent candles of the provided market,
// paging backwards through the kline api in batches.
func (c *KlineClient) FetchCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]shared.Candlestick, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var candles []shared.Candlestick
	var end time.Time
	for len(candles) < limit {
		batch := min(limit-len(candles), maxKlineBatch)
		data, err := c.fetchBatch(ctx, market, timeframe, batch, end)
		if err != nil {
			return nil, err
		}

		parsed, err := ParseKlines(data, market, timeframe)
		if err != nil {
			return nil, fmt.Errorf("parsing %s klines: %w", market, err)
		}

		if len(parsed) == 0 {
			break
		}

		candles = append(parsed, candles...)
		end = parsed[0].Date.Add(-time.Millisecond)

		if len(parsed) < batch {
			break
		}
	}

	c.cfg.Logger.Debug().Msgf("fetched %d %s klines for %s", len(candles), timeframe, market)

	return candles, nil
}
