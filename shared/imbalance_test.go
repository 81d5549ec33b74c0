package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestImbalance(t *testing.T) {
	now := time.Now()
	imb := NewImbalance(Bearish, 9, 10, 4, now)

	// Ensure the imbalance is initialized with its bounds.
	assert.Equal(t, imb.Low, 9.0)
	assert.Equal(t, imb.High, 10.0)
	assert.Equal(t, imb.Index, 4)
	assert.Equal(t, imb.Sentiment, Bearish)
	assert.Equal(t, imb.Date, now)
}
