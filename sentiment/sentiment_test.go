package sentiment

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"within range", 0.4, 0.4},
		{"above range", 3, 1},
		{"below range", -2.5, -1},
		{"undefined", math.NaN(), 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, Clamp(test.score), test.want)
		})
	}
}

func TestStatic(t *testing.T) {
	source := Static{"BTCUSDT": -0.6, "ETHUSDT": 4}

	score, err := source.Score(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, score, -0.6)

	// Ensure scores are clamped.
	score, err = source.Score(context.Background(), "ETHUSDT")
	assert.NoError(t, err)
	assert.Equal(t, score, float64(1))

	// Ensure unknown markets are neutral.
	score, err = source.Score(context.Background(), "XRPUSDT")
	assert.NoError(t, err)
	assert.Equal(t, score, float64(0))
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			fmt.Fprint(w, `{"symbol":"BTCUSDT","score":-0.35}`)
		case "ETHUSDT":
			fmt.Fprint(w, `{"symbol":"ETHUSDT","score":-7}`)
		case "XRPUSDT":
			fmt.Fprint(w, `{"symbol":"XRPUSDT"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// Ensure an invalid config errors.
	_, err := NewHTTPSource(&HTTPConfig{})
	assert.Error(t, err)

	source, err := NewHTTPSource(&HTTPConfig{
		URL:     srv.URL,
		Timeout: time.Second * 5,
		Logger:  &log.Logger,
	})
	assert.NoError(t, err)

	ctx := context.Background()

	// Ensure scores can be fetched.
	score, err := source.Score(ctx, "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, score, -0.35)

	// Ensure fetched scores are clamped.
	score, err = source.Score(ctx, "ETHUSDT")
	assert.NoError(t, err)
	assert.Equal(t, score, float64(-1))

	// Ensure responses without a score error.
	_, err = source.Score(ctx, "XRPUSDT")
	assert.Error(t, err)

	// Ensure unexpected statuses error.
	_, err = source.Score(ctx, "DOGEUSDT")
	assert.Error(t, err)
}
