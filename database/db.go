package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/smc/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createRunTableSQL   = "CREATE TABLE IF NOT EXISTS run (id TEXT PRIMARY KEY, initialbalance REAL, finalbalance REAL, profit REAL, total INTEGER, wins INTEGER, losses INTEGER, timeouts INTEGER, winrate REAL, averagepnl REAL, maxdrawdown REAL, tradingbalance REAL, reservebalance REAL, createdon INTEGER)"
	createTradeTableSQL = "CREATE TABLE IF NOT EXISTS trade (runid TEXT, seq INTEGER, positionid TEXT, market TEXT, direction TEXT, outcome TEXT, reason TEXT, pnl REAL, entryprice REAL, exitprice REAL, size REAL, entrytime INTEGER, exittime INTEGER, PRIMARY KEY (runid, seq))"
	persistRunSQL       = "INSERT INTO run(id, initialbalance, finalbalance, profit, total, wins, losses, timeouts, winrate, averagepnl, maxdrawdown, tradingbalance, reservebalance, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	persistTradeSQL     = "INSERT INTO trade(runid, seq, positionid, market, direction, outcome, reason, pnl, entryprice, exitprice, size, entrytime, exittime) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error
	if cfg.Endpoint == "" {
		errs = errors.Join(errs, errors.New("no database endpoint provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("no logger provided"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
	now    func() time.Time
}

// Ensure the database implements the ReportSink interface.
var _ shared.ReportSink = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createRunTableSQL},
		{SQL: createTradeTableSQL},
	})
}

// tradeStatement creates the statement persisting the provided trade record.
func tradeStatement(runID string, seq int, trade *shared.TradeRecord) *rqlitehttp.SQLStatement {
	return &rqlitehttp.SQLStatement{
		SQL: persistTradeSQL,
		PositionalParams: []any{runID, seq, trade.PositionID, trade.Market, trade.Direction.String(),
			trade.Outcome.String(), trade.Reason.String(), trade.ProfitLoss, trade.EntryPrice,
			trade.ExitPrice, trade.Size, trade.EntryTime.Unix(), trade.ExitTime.Unix()},
	}
}

// runStatement creates the statement persisting the provided report summary.
func runStatement(id string, summary *shared.Summary, created time.Time) *rqlitehttp.SQLStatement {
	return &rqlitehttp.SQLStatement{
		SQL: persistRunSQL,
		PositionalParams: []any{id, summary.InitialBalance, summary.FinalBalance, summary.Profit,
			summary.TotalTrades, summary.Wins, summary.Losses, summary.Timeouts, summary.WinRate,
			summary.AverageProfitLoss, summary.MaxDrawdown, summary.TradingBalance,
			summary.ReserveBalance, created.Unix()},
	}
}

// PersistReport stores the provided backtest report and its trades to the database.
func (db *Database) PersistReport(ctx context.Context, report *shared.Report) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(report.Trades)+1)
	stmts = append(stmts, runStatement(report.ID, &report.Summary, db.now()))
	for idx := range report.Trades {
		stmts = append(stmts, tradeStatement(report.ID, idx, &report.Trades[idx]))
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		db.cfg.Logger.Error().Msgf("persisting report %s: %v\n%s", report.ID, err, spew.Sdump(report.Summary))
		return fmt.Errorf("persisting report %s: %w", report.ID, err)
	}

	db.cfg.Logger.Info().Msgf("persisted report %s with %d trades", report.ID, len(report.Trades))

	return nil
}

// PersistTrade stores the provided trade record of a live session to the database.
func (db *Database) PersistTrade(ctx context.Context, sessionID string, seq int, trade *shared.TradeRecord) error {
	err := db.execute(ctx, rqlitehttp.SQLStatements{tradeStatement(sessionID, seq, trade)})
	if err != nil {
		db.cfg.Logger.Error().Msgf("persisting trade %d of session %s: %v\n%s", seq, sessionID, err,
			spew.Sdump(trade))
		return fmt.Errorf("persisting trade %d of session %s: %w", seq, sessionID, err)
	}

	return nil
}
