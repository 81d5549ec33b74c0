package shared

import "testing"

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{"win", Win, "win"},
		{"loss", Loss, "loss"},
		{"timeout", Timeout, "timeout"},
		{"unknown", Outcome(999), "unknown"},
	}

	for _, test := range tests {
		str := test.outcome.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}
