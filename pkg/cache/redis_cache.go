package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/logging"
)

// RedisOptions configures RedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache shares cached responses between processes. Redis outages are
// treated as misses; after maxFailures consecutive errors the cache stops
// calling Redis until recoveryBackoff has passed.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger

	mu              sync.Mutex
	healthy         bool
	failureCount    int
	lastFailure     time.Time
	maxFailures     int
	recoveryBackoff time.Duration
}

// NewRedisCache connects to Redis. A failed ping leaves the cache in degraded
// mode rather than failing startup.
func NewRedisCache(opts RedisOptions, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MinIdleConns: 1,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	rc := &RedisCache{
		client:          client,
		log:             logging.Component(logger, "redis_cache"),
		maxFailures:     3,
		recoveryBackoff: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rc.log.Warn().Err(err).Str("addr", opts.Addr).Msg("redis unavailable, cache degraded")
		rc.failureCount = rc.maxFailures
		rc.lastFailure = time.Now()
		return rc
	}
	rc.healthy = true
	rc.log.Info().Str("addr", opts.Addr).Msg("redis connected")
	return rc
}

// IsHealthy reports whether Redis is currently used.
func (rc *RedisCache) IsHealthy() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.healthy
}

func (rc *RedisCache) available() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.healthy {
		return true
	}
	return time.Since(rc.lastFailure) >= rc.recoveryBackoff
}

func (rc *RedisCache) recordFailure(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failureCount++
	rc.lastFailure = time.Now()
	if rc.failureCount >= rc.maxFailures && rc.healthy {
		rc.log.Warn().Err(err).Int("failures", rc.failureCount).Msg("redis marked unhealthy")
		rc.healthy = false
	}
}

func (rc *RedisCache) recordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.healthy {
		rc.log.Info().Msg("redis recovered")
	}
	rc.failureCount = 0
	rc.healthy = true
}

// Get returns the cached value, or a miss on absence or any Redis error.
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !rc.available() {
		return nil, false
	}
	val, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.recordSuccess()
		return nil, false
	}
	if err != nil {
		rc.recordFailure(err)
		return nil, false
	}
	rc.recordSuccess()
	return val, true
}

// Set stores value with ttl; errors are logged and dropped.
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || !rc.available() {
		return
	}
	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		rc.recordFailure(err)
		rc.log.Debug().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	rc.recordSuccess()
}

// Close releases the client.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
