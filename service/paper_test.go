package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dnldd/smc/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

func TestPaperBroker(t *testing.T) {
	prices := map[string]float64{"BTCUSDT": 100}
	quote := func(market string) (float64, error) {
		price, ok := prices[market]
		if !ok {
			return 0, errors.New("no quote")
		}
		return price, nil
	}

	// Ensure an invalid config errors.
	_, err := NewPaperBroker(&PaperConfig{})
	assert.Error(t, err)

	broker, err := NewPaperBroker(&PaperConfig{
		InitialBalance: 1000,
		Fee:            0.001,
		Quote:          quote,
		Logger:         &log.Logger,
	})
	assert.NoError(t, err)

	ctx := context.Background()

	// Ensure a short fill only costs the fee at the fill price.
	id, err := broker.PlaceMarketOrder(ctx, "BTCUSDT", shared.Short, 2)
	assert.NoError(t, err)
	assert.NotEqual(t, id, "")
	balance, err := broker.FetchBalance(ctx)
	assert.NoError(t, err)
	assert.True(t, math.Abs(balance-999.8) < 1e-9)

	// Ensure open holdings are marked to the quoted price.
	prices["BTCUSDT"] = 90
	balance, err = broker.FetchBalance(ctx)
	assert.NoError(t, err)
	assert.True(t, math.Abs(balance-1019.8) < 1e-9)

	// Ensure closing the short realizes the profit net of fees.
	_, err = broker.PlaceMarketOrder(ctx, "BTCUSDT", shared.Long, 2)
	assert.NoError(t, err)
	balance, err = broker.FetchBalance(ctx)
	assert.NoError(t, err)
	assert.True(t, math.Abs(balance-1019.62) < 1e-9)

	// Ensure unquoted markets and invalid sizes error.
	_, err = broker.PlaceMarketOrder(ctx, "XRPUSDT", shared.Long, 1)
	assert.Error(t, err)
	_, err = broker.PlaceMarketOrder(ctx, "BTCUSDT", shared.Long, 0)
	assert.Error(t, err)
}
