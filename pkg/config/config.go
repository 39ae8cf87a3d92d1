package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is the development signing key used when JWT_SECRET is unset.
const DefaultJWTSecret = "dev-secret"

// Ledger backends accepted by LEDGER_BACKEND.
const (
	LedgerJSON   = "json"
	LedgerSQLite = "sqlite"
)

var (
	ErrUnknownLedger   = errors.New("unknown ledger backend")
	ErrInvalidWorkers  = errors.New("workers must be positive")
	ErrInvalidLimit    = errors.New("candle limit must be positive")
	ErrInvalidInterval = errors.New("loop interval must be positive")
	ErrDefaultJWT      = errors.New("JWT_SECRET must be set to a non-default value")
)

// Config holds environment-driven settings for the autotrader core.
type Config struct {
	// Persistence
	UsersFile     string
	TradesFile    string
	LedgerBackend string
	LedgerDBPath  string

	// Run mode
	DryRun       bool
	Timeframe    string
	CandleLimit  int
	LoopInterval time.Duration
	Workers      int

	// Exchange
	HTTPTimeout time.Duration
	RecvWindow  int64 // ms
	ExchangeRPS float64

	// Market data cache
	MarketCacheTTL time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Credentials at rest: comma-separated base64 AES-256 keys, v1 first
	SecretsKey string

	// Admin API
	AdminAddr         string
	JWTSecret         string
	AdminPasswordHash string

	// Logging / localization
	LogLevel  string
	LogFormat string // "console" or "json"
	Language  string // "en" or "ru"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		UsersFile:         getEnv("USERS_FILE", "./users.json"),
		TradesFile:        getEnv("TRADES_FILE", "./trades.json"),
		LedgerBackend:     strings.ToLower(getEnv("LEDGER_BACKEND", LedgerJSON)),
		LedgerDBPath:      getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		DryRun:            strings.ToLower(getEnv("DRY_RUN", "true")) == "true",
		Timeframe:         getEnv("TIMEFRAME", "5"),
		CandleLimit:       getEnvInt("CANDLE_LIMIT", 300),
		LoopInterval:      getEnvDuration("LOOP_INTERVAL", time.Minute),
		Workers:           getEnvInt("WORKERS", 1),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		RecvWindow:        int64(getEnvInt("RECV_WINDOW", 5000)),
		ExchangeRPS:       getEnvFloat("EXCHANGE_RPS", 10),
		MarketCacheTTL:    getEnvDuration("MARKET_CACHE_TTL", 0),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SecretsKey:        os.Getenv("SECRETS_KEY"),
		AdminAddr:         getEnv("ADMIN_ADDR", ":8080"),
		JWTSecret:         getEnv("JWT_SECRET", DefaultJWTSecret),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "console")),
		Language:          getEnv("LANGUAGE", "en"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the core cannot run with.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerJSON, LedgerSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLedger, c.LedgerBackend)
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.CandleLimit <= 0 {
		return ErrInvalidLimit
	}
	if c.LoopInterval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// ValidateAdmin rejects a token signing key that anyone could guess. Commands
// exposing or issuing admin tokens call it before starting.
func (c *Config) ValidateAdmin() error {
	if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == DefaultJWTSecret {
		return ErrDefaultJWT
	}
	return nil
}
