package report

import (
	"context"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

// LogSink logs backtest report summaries.
type LogSink struct {
	logger *zerolog.Logger
}

// Ensure the LogSink implements the ReportSink interface.
var _ shared.ReportSink = (*LogSink)(nil)

// NewLogSink initializes a new log report sink.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// PersistReport logs the summary of the provided report.
func (s *LogSink) PersistReport(_ context.Context, report *shared.Report) error {
	summary := report.Summary
	s.logger.Info().
		Str("report", report.ID).
		Int("trades", summary.TotalTrades).
		Int("wins", summary.Wins).
		Int("losses", summary.Losses).
		Int("timeouts", summary.Timeouts).
		Float64("winrate", summary.WinRate).
		Float64("avgpnl", summary.AverageProfitLoss).
		Float64("maxdrawdown", summary.MaxDrawdown).
		Float64("initial", summary.InitialBalance).
		Float64("final", summary.FinalBalance).
		Float64("profit", summary.Profit).
		Float64("trading", summary.TradingBalance).
		Float64("reserve", summary.ReserveBalance).
		Msg("backtest summary")

	return nil
}
