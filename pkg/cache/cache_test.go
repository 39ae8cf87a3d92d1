package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShardedCacheTTL(t *testing.T) {
	c := NewShardedCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if got, ok := c.Get(ctx, "k"); !ok || string(got) != "v" {
		t.Fatalf("Get=%q,%v", got, ok)
	}

	c.Set(ctx, "zero", []byte("x"), 0)
	if _, ok := c.Get(ctx, "zero"); ok {
		t.Fatal("zero ttl should not be stored")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry returned")
	}
	if removed := c.Cleanup(); removed != 1 || c.Len() != 0 {
		t.Fatalf("Cleanup removed %d, Len=%d", removed, c.Len())
	}
}

func TestKeysDistinguishEnvironments(t *testing.T) {
	if KlineKey("testnet", "BTCUSDT", "5", 300) == KlineKey("mainnet", "BTCUSDT", "5", 300) {
		t.Fatal("testnet and mainnet keys collide")
	}
	if KlineKey("testnet", "BTCUSDT", "5", 300) == OpenInterestKey("testnet", "BTCUSDT", "5", 300) {
		t.Fatal("kline and open interest keys collide")
	}
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	rc := NewRedisCache(RedisOptions{Addr: "127.0.0.1:1"}, zerolog.Nop())
	defer rc.Close()

	if rc.IsHealthy() {
		t.Fatal("unreachable redis reported healthy")
	}
	ctx := context.Background()
	rc.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok := rc.Get(ctx, "k"); ok {
		t.Fatal("degraded cache returned a hit")
	}
}

var (
	_ Cache = (*ShardedCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
