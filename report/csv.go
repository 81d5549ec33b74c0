package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
)

const (
	// TradesFile is the name of the trade records file.
	TradesFile = "trades.csv"
	// EquityFile is the name of the equity curve file.
	EquityFile = "equity.csv"
)

// CSVConfig represents the csv report sink configuration.
type CSVConfig struct {
	// Dir is the directory reports are written to, one subdirectory per report.
	Dir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *CSVConfig) Validate() error {
	var errs error
	if cfg.Dir == "" {
		errs = errors.Join(errs, errors.New("no report directory provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// CSVSink writes backtest reports as csv files.
type CSVSink struct {
	cfg *CSVConfig
}

// Ensure the CSVSink implements the ReportSink interface.
var _ shared.ReportSink = (*CSVSink)(nil)

// NewCSVSink initializes a new csv report sink.
func NewCSVSink(cfg *CSVConfig) (*CSVSink, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating csv sink config: %w", err)
	}

	return &CSVSink{cfg: cfg}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSV writes the provided rows to a csv file at the provided path.
func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	err = w.WriteAll(rows)
	if err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}

// tradeRows returns the csv rows of the provided trade records.
func tradeRows(trades []shared.TradeRecord) [][]string {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, []string{"position_id", "market", "direction", "outcome", "reason",
		"profit_loss", "entry_price", "exit_price", "size", "entry_time", "exit_time"})
	for idx := range trades {
		trade := &trades[idx]
		rows = append(rows, []string{
			trade.PositionID,
			trade.Market,
			trade.Direction.String(),
			trade.Outcome.String(),
			trade.Reason.String(),
			formatFloat(trade.ProfitLoss),
			formatFloat(trade.EntryPrice),
			formatFloat(trade.ExitPrice),
			formatFloat(trade.Size),
			trade.EntryTime.Format(shared.DateLayout),
			trade.ExitTime.Format(shared.DateLayout),
		})
	}

	return rows
}

// equityRows returns the csv rows of the provided equity curve.
func equityRows(equity []shared.EquityPoint) [][]string {
	rows := make([][]string, 0, len(equity)+1)
	rows = append(rows, []string{"index", "date", "balance"})
	for _, point := range equity {
		rows = append(rows, []string{
			strconv.Itoa(point.Index),
			point.Date.Format(shared.DateLayout),
			formatFloat(point.Balance),
		})
	}

	return rows
}

// PersistReport writes the trades and equity curve of the provided report.
func (s *CSVSink) PersistReport(ctx context.Context, report *shared.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.cfg.Dir, report.ID)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	err = writeCSV(filepath.Join(dir, TradesFile), tradeRows(report.Trades))
	if err != nil {
		return err
	}

	err = writeCSV(filepath.Join(dir, EquityFile), equityRows(report.Equity))
	if err != nil {
		return err
	}

	s.cfg.Logger.Info().Msgf("wrote report %s to %s", report.ID, dir)

	return nil
}
