package engine

import (
	"slices"

	"github.com/dnldd/smc/shared"
	"github.com/google/uuid"
)

// MaxDrawdown returns the largest peak to trough decline of the provided equity curve.
func MaxDrawdown(equity []shared.EquityPoint) float64 {
	var peak, drawdown float64
	for idx, point := range equity {
		if idx == 0 || point.Balance > peak {
			peak = point.Balance
		}
		drawdown = max(drawdown, peak-point.Balance)
	}

	return drawdown
}

// closedTrade is the aggregate of the records booked for a single position.
type closedTrade struct {
	outcome    shared.Outcome
	profitLoss float64
}

// closedTrades aggregates the provided records per position, in order of first record.
// A position with any take profit level reached is a win, otherwise it takes the
// outcome of its closing record. Records without a position id stand alone.
func closedTrades(records []shared.TradeRecord) []closedTrade {
	trades := make([]closedTrade, 0, len(records))
	positions := make(map[string]int)
	for idx := range records {
		rec := &records[idx]
		pos, ok := positions[rec.PositionID]
		if !ok || rec.PositionID == "" {
			trades = append(trades, closedTrade{outcome: rec.Outcome})
			pos = len(trades) - 1
			if rec.PositionID != "" {
				positions[rec.PositionID] = pos
			}
		}

		trades[pos].profitLoss += rec.ProfitLoss
		if trades[pos].outcome != shared.Win {
			trades[pos].outcome = rec.Outcome
		}
	}

	return trades
}

// Summarize calculates the summary statistics of the provided trades and equity curve.
// Statistics are per position, partial take profit records are folded into the
// position they reduce.
func Summarize(records []shared.TradeRecord, equity []shared.EquityPoint, initial float64, carryover float64) shared.Summary {
	final := initial
	if len(equity) > 0 {
		final = equity[len(equity)-1].Balance
	}

	trades := closedTrades(records)
	summary := shared.Summary{
		InitialBalance: initial,
		FinalBalance:   final,
		Profit:         final - initial,
		TotalTrades:    len(trades),
		MaxDrawdown:    MaxDrawdown(equity),
		TradingBalance: final * carryover,
		ReserveBalance: final * (1 - carryover),
	}

	var total float64
	for idx := range trades {
		total += trades[idx].profitLoss
		switch trades[idx].outcome {
		case shared.Win:
			summary.Wins++
		case shared.Loss:
			summary.Losses++
		case shared.Timeout:
			summary.Timeouts++
		}
	}

	if len(trades) > 0 {
		summary.WinRate = float64(summary.Wins) / float64(len(trades)) * 100
		summary.AverageProfitLoss = total / float64(len(trades))
	}

	return summary
}

// NewReport initializes a new backtest report.
func NewReport(trades []shared.TradeRecord, equity []shared.EquityPoint, initial float64, carryover float64) *shared.Report {
	return &shared.Report{
		ID:      uuid.New().String(),
		Trades:  slices.Clone(trades),
		Equity:  slices.Clone(equity),
		Summary: Summarize(trades, equity, initial, carryover),
	}
}
