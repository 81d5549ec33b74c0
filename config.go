package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/smc/market"
	"github.com/dnldd/smc/position"
	"github.com/dnldd/smc/risk"
	"github.com/dnldd/smc/shared"
	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the tracked markets.
	Markets []string
	// Timeframe is the candle timeframe traded.
	Timeframe string
	// CandleLimit is the maximum number of candles fetched per market.
	CandleLimit int
	// WarmupCandles is the number of leading candles used only as indicator history.
	WarmupCandles int
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// ExchangeURL is the exchange kline api base url.
	ExchangeURL string
	// SentimentURL is the sentiment provider url, empty for neutral sentiment.
	SentimentURL string
	// DBEndpoint is the rqlite endpoint, empty to disable persistence.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// ReportDir is the directory csv reports are written to, empty to disable.
	ReportDir string
	// AlertAddr is the address alerts are served on, empty to disable alerts.
	AlertAddr string
	// EvaluationInterval is the interval between live market evaluations.
	EvaluationInterval time.Duration

	// RiskPercent is the percentage of the base balance risked per trade.
	RiskPercent float64
	// TrailingStopPercent is the trailing stop distance as a fraction of price.
	TrailingStopPercent float64
	// TPLevels are the take profit levels as multiples of the stop distance.
	TPLevels []float64
	// MaxSpread is the maximum relative spread allowed for live orders.
	MaxSpread float64
	// TradeTimeoutCandles is the number of candles after which a trade times out.
	TradeTimeoutCandles int
	// Slippage is the fractional entry price slippage against the trader.
	Slippage float64
	// Fee is the fee rate charged on entry and exit notional.
	Fee float64
	// MinATRFactor is the fraction of price used as the minimum stop distance.
	MinATRFactor float64
	// MinBalance is the balance below which no further positions are opened.
	MinBalance float64
	// MinADX is the minimum ADX for a market to be considered trending.
	MinADX float64
	// StopATRMultiplier is the ATR multiple of the stop distance.
	StopATRMultiplier float64
	// InitialBalance is the starting balance.
	InitialBalance float64
	// RiskBase is the balance risk is sized from, reference or running.
	RiskBase string
	// TakeProfitMode is the take profit exit mode, full or partial.
	TakeProfitMode string
	// SinglePosition restricts trading to one open position across all markets.
	SinglePosition bool
	// Ranker is the market ranking strategy, composite or return.
	Ranker string
	// RankTopN is the maximum number of ranked markets considered per step.
	RankTopN int
	// RankWindow is the number of candles markets are ranked over.
	RankWindow int
	// CarryoverPercent is the fraction of the final balance carried over for trading.
	CarryoverPercent float64

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" && cfg.ExchangeURL == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath or exchange url required for backtests"))
		}
	case false:
		if cfg.ExchangeURL == "" {
			errs = errors.Join(errs, fmt.Errorf("exchange url cannot be an empty string"))
		}
		if cfg.EvaluationInterval <= 0 {
			errs = errors.Join(errs, fmt.Errorf("evaluation interval must be positive"))
		}
	}

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided"))
	}
	if _, err := shared.ParseTimeframe(cfg.Timeframe); err != nil {
		errs = errors.Join(errs, err)
	}
	if _, err := risk.ParseBase(cfg.RiskBase); err != nil {
		errs = errors.Join(errs, err)
	}
	if _, err := position.ParseTakeProfitMode(cfg.TakeProfitMode); err != nil {
		errs = errors.Join(errs, err)
	}
	if _, err := market.ParseKind(cfg.Ranker); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		errs = errors.Join(errs, fmt.Errorf("risk percent must be in (0, 100], got %f", cfg.RiskPercent))
	}
	if len(cfg.TPLevels) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no take profit levels provided"))
	}
	if cfg.InitialBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial balance must be positive, got %f", cfg.InitialBalance))
	}

	return errs
}

// defaults are the option values used when neither the environment nor flags set them.
var defaults = map[string]string{
	"timeframe":             "5m",
	"candle_limit":          "1000",
	"warmup_candles":        "200",
	"exchange_url":          "https://api.binance.com",
	"evaluation_interval":   "5m",
	"risk_percent":          "5",
	"trailing_stop_percent": "0.01",
	"tp_levels":             "2",
	"max_spread":            "0.0005",
	"trade_timeout_candles": "48",
	"slippage":              "0.001",
	"fee":                   "0.00075",
	"min_atr_factor":        "0.0001",
	"min_balance":           "5",
	"min_adx":               "25",
	"stop_atr_multiplier":   "1",
	"initial_balance":       "28",
	"risk_base":             "reference",
	"take_profit_mode":      "full",
	"ranker":                "composite",
	"rank_top_n":            "4",
	"rank_window":           "288",
	"carryover_percent":     "0.2",
}

// parseFloats parses a comma separated list of floats.
func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		values = append(values, v)
	}

	return values, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	if defValue == "" {
		defValue = defaults[name]
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	if dur, ok := value.(*time.Duration); ok {
		var def time.Duration
		if defValue != "" {
			var err error
			def, err = time.ParseDuration(defValue)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		flag.DurationVar(dur, name, def, usage)
		return nil
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		switch val.Elem().Type().Elem().Kind() {
		case reflect.String:
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			if defValue != "" {
				*value.(*[]string) = strings.Split(defValue, ",")
			}
		case reflect.Float64:
			flag.Func(name, usage, func(s string) error {
				values, err := parseFloats(s)
				if err != nil {
					return err
				}
				*value.(*[]float64) = values
				return nil
			})
			if defValue != "" {
				values, err := parseFloats(defValue)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				*value.(*[]float64) = values
			}
		default:
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"markets", &cfg.Markets, "the tracked markets"},
		{"timeframe", &cfg.Timeframe, "the candle timeframe"},
		{"candle_limit", &cfg.CandleLimit, "the maximum candles fetched per market"},
		{"warmup_candles", &cfg.WarmupCandles, "the indicator warmup candles"},
		{"backtest", &cfg.Backtest, "the backtest flag"},
		{"backtest_data_filepath", &cfg.BacktestDataFilepath, "the backtest data filepath"},
		{"exchange_url", &cfg.ExchangeURL, "the exchange kline api base url"},
		{"sentiment_url", &cfg.SentimentURL, "the sentiment provider url"},
		{"db_endpoint", &cfg.DBEndpoint, "the rqlite endpoint"},
		{"db_user", &cfg.DBUser, "the database user"},
		{"db_pass", &cfg.DBPass, "the database pass"},
		{"report_dir", &cfg.ReportDir, "the csv report directory"},
		{"alert_addr", &cfg.AlertAddr, "the alert webhook address"},
		{"evaluation_interval", &cfg.EvaluationInterval, "the live evaluation interval"},
		{"risk_percent", &cfg.RiskPercent, "the percentage of balance risked per trade"},
		{"trailing_stop_percent", &cfg.TrailingStopPercent, "the trailing stop fraction"},
		{"tp_levels", &cfg.TPLevels, "the take profit risk multiples"},
		{"max_spread", &cfg.MaxSpread, "the maximum relative spread for live orders"},
		{"trade_timeout_candles", &cfg.TradeTimeoutCandles, "the trade timeout in candles"},
		{"slippage", &cfg.Slippage, "the entry slippage fraction"},
		{"fee", &cfg.Fee, "the fee rate"},
		{"min_atr_factor", &cfg.MinATRFactor, "the minimum stop distance as a fraction of price"},
		{"min_balance", &cfg.MinBalance, "the balance below which entries halt"},
		{"min_adx", &cfg.MinADX, "the minimum trending adx"},
		{"stop_atr_multiplier", &cfg.StopATRMultiplier, "the stop distance atr multiple"},
		{"initial_balance", &cfg.InitialBalance, "the starting balance"},
		{"risk_base", &cfg.RiskBase, "the risk sizing balance (reference|running)"},
		{"take_profit_mode", &cfg.TakeProfitMode, "the take profit exit mode (full|partial)"},
		{"single_position", &cfg.SinglePosition, "restrict trading to one open position"},
		{"ranker", &cfg.Ranker, "the market ranker (composite|return)"},
		{"rank_top_n", &cfg.RankTopN, "the maximum ranked markets per step"},
		{"rank_window", &cfg.RankWindow, "the ranking window in candles"},
		{"carryover_percent", &cfg.CarryoverPercent, "the carried over fraction of the final balance"},
	}
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
