package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
)

// klineServer serves count five minute klines, honouring the limit and endTime
// parameters.
func klineServer(t *testing.T, count int) (*httptest.Server, *atomic.Int32) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	requests := atomic.NewInt32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()
		if r.URL.Path != klinesPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		query := r.URL.Query()
		if query.Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}
		assert.Equal(t, query.Get("interval"), "5m")

		limit, err := strconv.Atoi(query.Get("limit"))
		assert.NoError(t, err)

		last := count
		if end := query.Get("endTime"); end != "" {
			ms, err := strconv.ParseInt(end, 10, 64)
			assert.NoError(t, err)
			last = int(time.UnixMilli(ms).Sub(start)/(5*time.Minute)) + 1
		}
		first := max(0, last-limit)

		rows := make([]string, 0, last-first)
		for idx := first; idx < last; idx++ {
			open := start.Add(time.Duration(idx) * 5 * time.Minute).UnixMilli()
			price := 100 + idx
			rows = append(rows, fmt.Sprintf(`[%d,"%d.0","%d.5","%d.5","%d.25","12.5",%d,"0",10,"0","0","0"]`,
				open, price, price, price-1, price, open+299999))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	t.Cleanup(srv.Close)

	return srv, requests
}

func TestKlineConfigValidate(t *testing.T) {
	cfg := &KlineConfig{}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no base url provided"))
	assert.True(t, strings.Contains(err.Error(), "timeout must be positive"))
	assert.True(t, strings.Contains(err.Error(), "no logger provided"))
}

func TestKlineClient(t *testing.T) {
	srv, requests := klineServer(t, 1500)

	client, err := NewKlineClient(&KlineConfig{
		BaseURL: srv.URL,
		Timeout: time.Second * 5,
		Logger:  &log.Logger,
	})
	assert.NoError(t, err)

	// Ensure urls can be formed accurately.
	assert.Equal(t, client.formURL("/path", "a=bbb&b=ccc"), srv.URL+"/path?a=bbb&b=ccc")

	ctx := context.Background()

	// Ensure a single batch is fetched for small limits.
	candles, err := client.FetchCandles(ctx, "BTCUSDT", shared.FiveMinute, 10)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 10)
	assert.Equal(t, requests.Load(), int32(1))
	assert.Equal(t, candles[9].Open, float64(1599))
	assert.Equal(t, candles[9].Close, float64(1599.25))
	assert.Equal(t, candles[9].High, float64(1599.5))
	assert.Equal(t, candles[9].Low, float64(1598.5))
	assert.Equal(t, candles[9].Volume, 12.5)
	assert.Equal(t, candles[9].Market, "BTCUSDT")

	// Ensure large limits page backwards and stay ordered.
	requests.Store(0)
	candles, err = client.FetchCandles(ctx, "BTCUSDT", shared.FiveMinute, 1200)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1200)
	assert.Equal(t, requests.Load(), int32(2))
	for idx := 1; idx < len(candles); idx++ {
		assert.True(t, candles[idx].Date.After(candles[idx-1].Date))
	}
	assert.Equal(t, candles[0].Open, float64(400))

	// Ensure paging stops once history is exhausted.
	candles, err = client.FetchCandles(ctx, "BTCUSDT", shared.FiveMinute, 2000)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1500)

	// Ensure api errors are surfaced.
	_, err = client.FetchCandles(ctx, "ABCDEF", shared.FiveMinute, 10)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Invalid symbol."))

	// Ensure invalid limits error.
	_, err = client.FetchCandles(ctx, "BTCUSDT", shared.FiveMinute, 0)
	assert.Error(t, err)
}

func TestParseKlines(t *testing.T) {
	data := `[[1738681500000,"10","15","8","12","5",1738681799999]]`
	candles, err := ParseKlines(gjson.Parse(data).Array(), "BTCUSDT", shared.FiveMinute)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1)
	assert.Equal(t, candles[0].Open, float64(10))
	assert.Equal(t, candles[0].High, float64(15))
	assert.Equal(t, candles[0].Low, float64(8))
	assert.Equal(t, candles[0].Close, float64(12))
	assert.Equal(t, candles[0].Date, time.UnixMilli(1738681500000).UTC())

	// Ensure truncated rows error.
	_, err = ParseKlines(gjson.Parse(`[[1738681500000,"10"]]`).Array(), "BTCUSDT", shared.FiveMinute)
	assert.Error(t, err)
}
