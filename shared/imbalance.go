package shared

import "time"

// Imbalance represents a fair value gap, a three candle market inefficiency where
// price skipped a range. Low is always less than or equal to High.
type Imbalance struct {
	Sentiment Sentiment
	Low       float64
	High      float64
	// Index is the position of the third candle of the gap in the scanned series.
	Index int
	Date  time.Time
}

// NewImbalance initializes a new imbalance.
func NewImbalance(sentiment Sentiment, low float64, high float64, index int, date time.Time) *Imbalance {
	return &Imbalance{
		Sentiment: sentiment,
		Low:       low,
		High:      high,
		Index:     index,
		Date:      date,
	}
}
