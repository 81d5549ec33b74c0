package position

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/peterldowns/testy/assert"
)

func TestMarket(t *testing.T) {
	// Ensure a market can be created.
	mkt := NewMarket("BTCUSDT")
	now := time.Now()
	cfg := &LifecycleConfig{TradeTimeout: 10, TrailingStopPercent: 0.05}

	// Ensure managing a flat market is a no-op.
	res, err := mkt.Manage(100, 1, now, 28, cfg)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Nil(t, mkt.Position())

	// Ensure a nil plan errors.
	_, err = mkt.Open(nil, 0, now)
	assert.Error(t, err)

	// Ensure plans for other markets are rejected.
	_, err = mkt.Open(longPlan(), 0, now)
	assert.Error(t, err)

	// Ensure a position can be opened.
	pos, err := mkt.Open(shortPlan(), 0, now)
	assert.NoError(t, err)
	assert.True(t, mkt.IsOpen())

	// Ensure a second position for the same market is rejected.
	_, err = mkt.Open(shortPlan(), 1, now)
	assert.True(t, errors.Is(err, ErrPositionExists))

	// Ensure the returned position is a copy.
	cp := mkt.Position()
	assert.Equal(t, cp.ID, pos.ID)
	cp.TargetsHit[0] = true
	assert.False(t, mkt.Position().TargetsHit[0])

	// Ensure the market is flat after the position closes.
	res, err = mkt.Manage(103, 1, now, 28, cfg)
	assert.NoError(t, err)
	assert.Equal(t, res.Action, Close)
	assert.False(t, mkt.IsOpen())

	// Ensure closing a flat market is a no-op.
	res, err = mkt.Close(100, shared.EndOfData, now, 28, 0)
	assert.NoError(t, err)
	assert.Nil(t, res)

	// Ensure an open position can be force closed.
	_, err = mkt.Open(shortPlan(), 2, now)
	assert.NoError(t, err)
	res, err = mkt.Close(99, shared.EndOfData, now, 28, 0)
	assert.NoError(t, err)
	assert.Equal(t, res.Record.Outcome, shared.Timeout)
	assert.Equal(t, res.Record.Reason, shared.EndOfData)
	assert.False(t, mkt.IsOpen())
}

func TestMarketConcurrentOpen(t *testing.T) {
	mkt := NewMarket("BTCUSDT")
	now := time.Now()

	// Ensure concurrent opens for a market yield exactly one position.
	var wg sync.WaitGroup
	var mtx sync.Mutex
	opened := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mkt.Open(shortPlan(), 0, now)
			if err == nil {
				mtx.Lock()
				opened++
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, opened, 1)
}

func TestMarketOpenWith(t *testing.T) {
	mkt := NewMarket("BTCUSDT")
	now := time.Now()

	// Ensure a failed entry leaves the market flat.
	_, err := mkt.OpenWith(shortPlan(), 0, now, func(pos *Position) error {
		assert.Equal(t, pos.Market, "BTCUSDT")
		return errors.New("order rejected")
	})
	assert.Error(t, err)
	assert.False(t, mkt.IsOpen())

	// Ensure a successful entry opens the position it was called for.
	var entered string
	pos, err := mkt.OpenWith(shortPlan(), 0, now, func(pos *Position) error {
		entered = pos.ID
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, pos.ID, entered)
	assert.True(t, mkt.IsOpen())
}

func TestMarketConcurrentOpenWith(t *testing.T) {
	mkt := NewMarket("BTCUSDT")
	now := time.Now()

	// Ensure concurrent entries for a market reach the entry once.
	var wg sync.WaitGroup
	var mtx sync.Mutex
	entries := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mkt.OpenWith(shortPlan(), 0, now, func(_ *Position) error {
				time.Sleep(time.Millisecond * 10)
				mtx.Lock()
				entries++
				mtx.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, entries, 1)
	assert.True(t, mkt.IsOpen())
}

func TestMarketManageWith(t *testing.T) {
	mkt := NewMarket("BTCUSDT")
	now := time.Now()
	cfg := &LifecycleConfig{TradeTimeout: 10, TrailingStopPercent: 0.05}

	_, err := mkt.Open(shortPlan(), 0, now)
	assert.NoError(t, err)

	// Ensure exits are not requested for holds.
	res, err := mkt.ManageWith(101, 1, now, 28, cfg, func(_ *Result) error {
		t.Fatal("unexpected exit")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, res.Action, Hold)

	// Ensure a failed exit keeps the position open and unchanged.
	before := mkt.Position()
	_, err = mkt.ManageWith(103, 2, now, 28, cfg, func(res *Result) error {
		assert.Equal(t, res.Action, Close)
		return errors.New("order rejected")
	})
	assert.Error(t, err)
	assert.True(t, mkt.IsOpen())
	assert.Equal(t, mkt.Position().StopLoss, before.StopLoss)
	assert.False(t, mkt.Position().EntryFeeBooked)

	// Ensure the exit is retried and applied on the next update.
	exits := 0
	res, err = mkt.ManageWith(103, 3, now, 28, cfg, func(_ *Result) error {
		exits++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, res.Action, Close)
	assert.Equal(t, exits, 1)
	assert.False(t, mkt.IsOpen())
}
