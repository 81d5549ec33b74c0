package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestNewEntrySignal(t *testing.T) {
	now := time.Now()
	reasons := []Reason{BreakOfStructureConfirmed, ImbalanceConfirmed, LiquiditySweepConfirmed}

	// Ensure an entry signal can be created.
	sig := NewEntrySignal("BTCUSDT", Short, 100, reasons, 10, now)
	assert.Equal(t, sig.Market, "BTCUSDT")
	assert.Equal(t, sig.Direction, Short)
	assert.Equal(t, sig.Price, float64(100))
	assert.Equal(t, sig.Reasons, reasons)
	assert.Equal(t, sig.Index, 10)
	assert.Equal(t, sig.CreatedOn, now)
}

func TestAlertKind(t *testing.T) {
	// Ensure alert kinds map to position directions.
	assert.Equal(t, Buy.Direction(), Long)
	assert.Equal(t, Sell.Direction(), Short)

	// Ensure alert kinds stringify to their wire names.
	assert.Equal(t, Buy.String(), "BUY")
	assert.Equal(t, Sell.String(), "SELL")
	assert.Equal(t, AlertKind(9).String(), "unknown")
}
