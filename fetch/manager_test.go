package fetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/go-co-op/gocron"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sourceMock serves candles ending at a fixed time.
type sourceMock struct {
	end time.Time
	err error
}

func (m *sourceMock) FetchCandles(_ context.Context, market string, timeframe shared.Timeframe, limit int) ([]shared.Candlestick, error) {
	if m.err != nil {
		return nil, m.err
	}

	candles := make([]shared.Candlestick, limit)
	for idx := range limit {
		candles[idx] = shared.Candlestick{
			Open:      10,
			High:      12,
			Low:       9,
			Close:     11,
			Date:      m.end.Add(-timeframe.Duration() * time.Duration(limit-1-idx)),
			Market:    market,
			Timeframe: timeframe,
		}
	}

	return candles, nil
}

type notifications struct {
	mtx     sync.Mutex
	candles []shared.Candlestick
}

func (n *notifications) notify(candles []shared.Candlestick) {
	n.mtx.Lock()
	n.candles = append(n.candles, candles...)
	n.mtx.Unlock()
}

func (n *notifications) count() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.candles)
}

func setupManager(t *testing.T, source shared.CandleSource, received *notifications) *Manager {
	cfg := &ManagerConfig{
		Markets:       []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:     shared.FiveMinute,
		CatchUpLimit:  10,
		Source:        source,
		NotifyCandles: received.notify,
		JobScheduler:  gocron.NewScheduler(time.UTC),
		Logger:        &log.Logger,
	}

	mgr, err := NewManager(cfg)
	assert.NoError(t, err)

	return mgr
}

func TestFetchManagerConfigValidate(t *testing.T) {
	logger := zerolog.New(nil)
	baseCfg := &ManagerConfig{
		Markets:       []string{"BTCUSDT"},
		Timeframe:     shared.FiveMinute,
		CatchUpLimit:  10,
		Source:        &sourceMock{},
		NotifyCandles: func(candles []shared.Candlestick) {},
		JobScheduler:  gocron.NewScheduler(time.UTC),
		Logger:        &logger,
	}

	tests := []struct {
		name        string
		modify      func(cfg *ManagerConfig)
		wantErr     bool
		errContains []string
	}{
		{
			name:    "valid config returns nil",
			modify:  func(cfg *ManagerConfig) {},
			wantErr: false,
		},
		{
			name:        "missing Markets",
			modify:      func(cfg *ManagerConfig) { cfg.Markets = nil },
			wantErr:     true,
			errContains: []string{"no markets provided"},
		},
		{
			name:        "missing Source",
			modify:      func(cfg *ManagerConfig) { cfg.Source = nil },
			wantErr:     true,
			errContains: []string{"candle source cannot be nil"},
		},
		{
			name:        "missing NotifyCandles",
			modify:      func(cfg *ManagerConfig) { cfg.NotifyCandles = nil },
			wantErr:     true,
			errContains: []string{"notify candles function cannot be nil"},
		},
		{
			name:        "missing JobScheduler",
			modify:      func(cfg *ManagerConfig) { cfg.JobScheduler = nil },
			wantErr:     true,
			errContains: []string{"job scheduler cannot be nil"},
		},
		{
			name: "multiple missing fields",
			modify: func(cfg *ManagerConfig) {
				*cfg = ManagerConfig{}
			},
			wantErr: true,
			errContains: []string{
				"no markets provided",
				"catch up limit must be positive",
				"candle source cannot be nil",
				"notify candles function cannot be nil",
				"job scheduler cannot be nil",
				"logger cannot be nil",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *baseCfg
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				for _, substr := range tt.errContains {
					assert.True(t, strings.Contains(err.Error(), substr))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetchMarketDataJob(t *testing.T) {
	now := time.Date(2025, 2, 4, 15, 12, 0, 0, time.UTC)
	received := &notifications{}
	mgr := setupManager(t, &sourceMock{end: time.Date(2025, 2, 4, 15, 10, 0, 0, time.UTC)}, received)
	mgr.now = func() time.Time { return now }

	// Ensure calling a market data job for an unknown market errors.
	err := mgr.fetchMarketDataJob("XRPUSDT")
	assert.Error(t, err)

	// Ensure the forming candle is dropped from a market data job.
	err = mgr.fetchMarketDataJob("BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, received.count(), defaultPollLimit-1)
	for _, candle := range received.candles {
		assert.True(t, candle.Date.Before(time.Date(2025, 2, 4, 15, 10, 0, 0, time.UTC)))
	}
}

func TestCatchUp(t *testing.T) {
	now := time.Date(2025, 2, 4, 15, 20, 0, 0, time.UTC)
	received := &notifications{}
	source := &sourceMock{end: time.Date(2025, 2, 4, 15, 10, 0, 0, time.UTC)}
	mgr := setupManager(t, source, received)
	mgr.now = func() time.Time { return now }

	// Ensure every market catches up on its recent history.
	err := mgr.CatchUp(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, received.count(), 20)

	// Ensure catch up failures are reported.
	source.err = errors.New("exchange unavailable")
	err = mgr.CatchUp(context.Background())
	assert.Error(t, err)
}

func TestManagerRun(t *testing.T) {
	received := &notifications{}
	mgr := setupManager(t, &sourceMock{end: time.Now().Add(-time.Hour)}, received)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	// Ensure the fetch manager catches up and can be gracefully terminated.
	deadline := time.After(time.Second * 5)
	for received.count() < 20 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for catch up")
		case <-time.After(time.Millisecond * 10):
		}
	}

	cancel()
	<-done
}
