package common

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests and tracks the quota the exchange
// reports back in response headers.
type RateLimiter struct {
	limiter *rate.Limiter
	log     zerolog.Logger

	mu        sync.RWMutex
	remaining int
	limit     int
}

// NewRateLimiter allows rps requests per second with a burst of burst.
// rps <= 0 disables pacing.
func NewRateLimiter(rps float64, burst int, logger zerolog.Logger) *RateLimiter {
	lim := rate.Inf
	if rps > 0 {
		lim = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter:   rate.NewLimiter(lim, burst),
		log:       logger,
		remaining: -1,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// UpdateFromHeader records X-Bapi-Limit-Status (remaining) and X-Bapi-Limit.
func (rl *RateLimiter) UpdateFromHeader(remainingHeader, limitHeader string) {
	if remainingHeader == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingHeader)
	if err != nil {
		return
	}
	limit, err := strconv.Atoi(limitHeader)
	if err != nil || limit <= 0 {
		limit = 0
	}

	rl.mu.Lock()
	rl.remaining = remaining
	rl.limit = limit
	rl.mu.Unlock()

	if limit == 0 {
		return
	}
	used := float64(limit-remaining) / float64(limit) * 100
	if used >= 95 {
		rl.log.Warn().Int("remaining", remaining).Int("limit", limit).Msg("rate limit critical")
	} else if used >= 80 {
		rl.log.Info().Int("remaining", remaining).Int("limit", limit).Msg("rate limit warning")
	}
}

// Usage returns the last reported quota; remaining is -1 before any report.
func (rl *RateLimiter) Usage() (remaining, limit int) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.remaining, rl.limit
}
