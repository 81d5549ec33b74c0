package main

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// validConfig returns a valid live config.
func validConfig() Config {
	return Config{
		Markets:            []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:          "5m",
		ExchangeURL:        "https://api.binance.com",
		EvaluationInterval: time.Minute * 5,
		RiskPercent:        5,
		TPLevels:           []float64{2},
		InitialBalance:     28,
		RiskBase:           "reference",
		TakeProfitMode:     "full",
		Ranker:             "composite",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid config, not backtest",
			modify:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name:    "missing markets",
			modify:  func(cfg *Config) { cfg.Markets = nil },
			wantErr: []string{"no markets provided"},
		},
		{
			name: "missing exchange url and interval, not backtest",
			modify: func(cfg *Config) {
				cfg.ExchangeURL = ""
				cfg.EvaluationInterval = 0
			},
			wantErr: []string{
				"exchange url cannot be an empty string",
				"evaluation interval must be positive",
			},
		},
		{
			name: "backtest true, valid filepath",
			modify: func(cfg *Config) {
				cfg.Backtest = true
				cfg.ExchangeURL = ""
				cfg.EvaluationInterval = 0
				cfg.BacktestDataFilepath = "/tmp/data.json"
			},
			wantErr: nil,
		},
		{
			name: "backtest true, missing data source",
			modify: func(cfg *Config) {
				cfg.Backtest = true
				cfg.ExchangeURL = ""
			},
			wantErr: []string{"backtest data filepath or exchange url required for backtests"},
		},
		{
			name: "unknown enumerations",
			modify: func(cfg *Config) {
				cfg.Timeframe = "2m"
				cfg.RiskBase = "equity"
				cfg.TakeProfitMode = "ladder"
				cfg.Ranker = "momentum"
			},
			wantErr: []string{"unknown ranker provided: momentum"},
		},
		{
			name: "invalid risk inputs",
			modify: func(cfg *Config) {
				cfg.RiskPercent = 0
				cfg.TPLevels = nil
				cfg.InitialBalance = -1
			},
			wantErr: []string{
				"risk percent must be in (0, 100]",
				"no take profit levels provided",
				"initial balance must be positive",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Errorf("expected error(s) %v, got none", tt.wantErr)
				return
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args.
	origArgs := os.Args
	defer func() {
		os.Args = origArgs
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults with markets from env",
			env: map[string]string{
				"markets": "BTCUSDT,ETHUSDT",
			},
			args: []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if diff := cmp.Diff([]string{"BTCUSDT", "ETHUSDT"}, cfg.Markets); diff != "" {
					t.Errorf("unexpected markets (-want +got):\n%s", diff)
				}
				if cfg.RiskPercent != 5 || cfg.MinBalance != 5 || cfg.TradeTimeoutCandles != 48 {
					t.Errorf("unexpected risk defaults: %+v", cfg)
				}
				if diff := cmp.Diff([]float64{2}, cfg.TPLevels); diff != "" {
					t.Errorf("unexpected tp levels (-want +got):\n%s", diff)
				}
				if cfg.EvaluationInterval != time.Minute*5 {
					t.Errorf("unexpected evaluation interval: %s", cfg.EvaluationInterval)
				}
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"markets":      "BTCUSDT",
				"risk_percent": "2",
			},
			args: []string{"cmd", "-markets=SOLUSDT", "-risk_percent=1.5", "-tp_levels=1.2,2.4,3.6",
				"-take_profit_mode=partial", "-single_position=true", "-evaluation_interval=1m"},
			check: func(t *testing.T, cfg *Config) {
				if diff := cmp.Diff([]string{"SOLUSDT"}, cfg.Markets); diff != "" {
					t.Errorf("unexpected markets (-want +got):\n%s", diff)
				}
				if cfg.RiskPercent != 1.5 {
					t.Errorf("RiskPercent: got %v, want 1.5", cfg.RiskPercent)
				}
				if diff := cmp.Diff([]float64{1.2, 2.4, 3.6}, cfg.TPLevels); diff != "" {
					t.Errorf("unexpected tp levels (-want +got):\n%s", diff)
				}
				if cfg.TakeProfitMode != "partial" || !cfg.SinglePosition {
					t.Errorf("unexpected lifecycle options: %s, %v", cfg.TakeProfitMode, cfg.SinglePosition)
				}
				if cfg.EvaluationInterval != time.Minute {
					t.Errorf("unexpected evaluation interval: %s", cfg.EvaluationInterval)
				}
			},
		},
		{
			name:        "missing markets",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"no markets provided"},
		},
		{
			name: "backtest true, filepath from flag",
			env: map[string]string{
				"markets":  "BTCUSDT",
				"backtest": "true",
			},
			args: []string{"cmd", "-backtest_data_filepath=/tmp/data.json"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Backtest || cfg.BacktestDataFilepath != "/tmp/data.json" {
					t.Errorf("unexpected backtest options: %v, %s", cfg.Backtest, cfg.BacktestDataFilepath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test.
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "testdata-missing.env")

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			tt.check(t, &cfg)
		})
	}
}
