package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"USERS_FILE", "TRADES_FILE", "DRY_RUN", "TIMEFRAME", "CANDLE_LIMIT", "LEDGER_BACKEND", "WORKERS", "LOOP_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.UsersFile != "./users.json" || cfg.TradesFile != "./trades.json" {
		t.Fatalf("files=%q,%q", cfg.UsersFile, cfg.TradesFile)
	}
	if !cfg.DryRun {
		t.Fatal("DryRun should default to true")
	}
	if cfg.Timeframe != "5" || cfg.CandleLimit != 300 {
		t.Fatalf("Timeframe=%q CandleLimit=%d", cfg.Timeframe, cfg.CandleLimit)
	}
	if cfg.LedgerBackend != LedgerJSON {
		t.Fatalf("LedgerBackend=%q, expected %q", cfg.LedgerBackend, LedgerJSON)
	}
	if cfg.HTTPTimeout != 10*time.Second || cfg.RecvWindow != 5000 {
		t.Fatalf("HTTPTimeout=%v RecvWindow=%d", cfg.HTTPTimeout, cfg.RecvWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("USERS_FILE", "/tmp/u.json")
	t.Setenv("DRY_RUN", "FALSE")
	t.Setenv("CANDLE_LIMIT", "not-a-number")
	t.Setenv("LOOP_INTERVAL", "90")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("LEDGER_BACKEND", "SQLite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.UsersFile != "/tmp/u.json" {
		t.Fatalf("UsersFile=%q", cfg.UsersFile)
	}
	if cfg.DryRun {
		t.Fatal("DryRun should be false")
	}
	if cfg.CandleLimit != 300 {
		t.Fatalf("CandleLimit=%d, expected fallback 300", cfg.CandleLimit)
	}
	if cfg.LoopInterval != 90*time.Second {
		t.Fatalf("LoopInterval=%v, expected 90s", cfg.LoopInterval)
	}
	if cfg.HTTPTimeout != 3*time.Second {
		t.Fatalf("HTTPTimeout=%v, expected 3s", cfg.HTTPTimeout)
	}
	if cfg.LedgerBackend != LedgerSQLite {
		t.Fatalf("LedgerBackend=%q", cfg.LedgerBackend)
	}
}

func TestValidate(t *testing.T) {
	base := Config{LedgerBackend: LedgerJSON, Workers: 1, CandleLimit: 10, LoopInterval: time.Second}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"ledger", func(c *Config) { c.LedgerBackend = "csv" }, ErrUnknownLedger},
		{"workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"limit", func(c *Config) { c.CandleLimit = -1 }, ErrInvalidLimit},
		{"interval", func(c *Config) { c.LoopInterval = 0 }, ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate()=%v, expected %v", err, tt.want)
			}
		})
	}
}

func TestValidateAdmin(t *testing.T) {
	for _, secret := range []string{"", "  ", DefaultJWTSecret} {
		cfg := Config{JWTSecret: secret}
		if err := cfg.ValidateAdmin(); !errors.Is(err, ErrDefaultJWT) {
			t.Fatalf("ValidateAdmin(%q)=%v, expected ErrDefaultJWT", secret, err)
		}
	}
	cfg := Config{JWTSecret: "a-long-random-operator-secret"}
	if err := cfg.ValidateAdmin(); err != nil {
		t.Fatalf("ValidateAdmin()=%v", err)
	}
}
