package shared

import (
	"context"
)

// CandleSource defines the requirements for fetching market candles.
type CandleSource interface {
	// FetchCandles fetches up to limit of the most recent candles for the provided market,
	// ordered by date.
	FetchCandles(ctx context.Context, market string, timeframe Timeframe, limit int) ([]Candlestick, error)
}

// SentimentSource defines the requirements for scoring market sentiment.
type SentimentSource interface {
	// Score returns the sentiment score of the provided market, in the range [-1, 1].
	Score(ctx context.Context, market string) (float64, error)
}

// OrderBroker defines the requirements for placing live orders.
type OrderBroker interface {
	// PlaceMarketOrder places a market order and returns its order id.
	PlaceMarketOrder(ctx context.Context, market string, direction Direction, size float64) (string, error)
	// FetchBalance returns the available account balance.
	FetchBalance(ctx context.Context) (float64, error)
}

// SpreadQuoter defines the requirements for quoting a market's spread. Brokers
// that implement it have orders gated by the configured maximum spread.
type SpreadQuoter interface {
	// FetchSpread returns the market's relative bid/ask spread.
	FetchSpread(ctx context.Context, market string) (float64, error)
}

// ReportSink defines the requirements for persisting backtest reports.
type ReportSink interface {
	// PersistReport persists the provided report.
	PersistReport(ctx context.Context, report *Report) error
}
