package shared

import (
	"time"
)

// Outcome represents how a trade concluded.
type Outcome int

const (
	Win Outcome = iota
	Loss
	Timeout
)

// String stringifies the provided outcome.
func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TradeRecord represents a concluded trade, or the concluded portion of a trade
// when take profits close positions partially. ProfitLoss is net of all fees.
type TradeRecord struct {
	PositionID string
	Market     string
	Direction  Direction
	Outcome    Outcome
	Reason     Reason
	ProfitLoss float64
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	EntryTime  time.Time
	ExitTime   time.Time
}

// EquityPoint represents a balance snapshot at a simulation step.
type EquityPoint struct {
	Index   int
	Date    time.Time
	Balance float64
}

// Summary represents the summary statistics of a backtest.
type Summary struct {
	InitialBalance float64
	FinalBalance   float64
	Profit         float64
	TotalTrades    int
	Wins           int
	Losses         int
	Timeouts       int
	// WinRate is the percentage of trades that were wins.
	WinRate          float64
	AverageProfitLoss float64
	// MaxDrawdown is the largest peak to trough balance decline, as a positive amount.
	MaxDrawdown    float64
	TradingBalance float64
	ReserveBalance float64
}

// Report represents the output of a backtest.
type Report struct {
	ID      string
	Trades  []TradeRecord
	Equity  []EquityPoint
	Summary Summary
}
