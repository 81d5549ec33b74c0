package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestTimeframeString(t *testing.T) {
	tests := []struct {
		name      string
		timeframe Timeframe
		want      string
	}{
		{"One Minute", OneMinute, "1m"},
		{"Five Minute", FiveMinute, "5m"},
		{"Fifteen Minute", FifteenMinute, "15m"},
		{"One Hour", OneHour, "1h"},
		{"Unknown", Timeframe(999), "unknown"},
	}

	for _, test := range tests {
		str := test.timeframe.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	// Ensure known timeframes round trip through their string form.
	for _, tf := range []Timeframe{OneMinute, FiveMinute, FifteenMinute, OneHour} {
		parsed, err := ParseTimeframe(tf.String())
		assert.NoError(t, err)
		assert.Equal(t, parsed, tf)
	}

	// Ensure unknown timeframes error.
	_, err := ParseTimeframe("3d")
	assert.Error(t, err)
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, FiveMinute.Duration(), time.Minute*5)
	assert.Equal(t, OneHour.Duration(), time.Hour)
	assert.Equal(t, Timeframe(999).Duration(), time.Duration(0))
}
