// Package cache holds short-lived public market-data responses so several
// users evaluating the same symbol in one cycle share a single fetch.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores raw response bodies by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Key prefixes
const (
	PrefixKline        = "bybit:%s:kline:%s:%s:%d"
	PrefixOpenInterest = "bybit:%s:oi:%s:%s:%d"
)

// KlineKey builds the cache key for a candle request.
func KlineKey(env, symbol, interval string, limit int) string {
	return fmt.Sprintf(PrefixKline, env, symbol, interval, limit)
}

// OpenInterestKey builds the cache key for an open-interest request.
func OpenInterestKey(env, symbol, interval string, limit int) string {
	return fmt.Sprintf(PrefixOpenInterest, env, symbol, interval, limit)
}
