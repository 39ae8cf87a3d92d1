package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTimeSyncRefreshOnlyWhenStale(t *testing.T) {
	var calls int32
	ts := NewTimeSync(func(context.Context) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return time.Now().Add(3 * time.Second).UnixMilli(), nil
	}, zerolog.Nop())

	if ts.Synced() {
		t.Fatal("new TimeSync reports synced")
	}
	ts.Refresh(context.Background(), time.Minute)
	ts.Refresh(context.Background(), time.Minute)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("server time fetched %d times, expected 1", n)
	}
	if !ts.Synced() {
		t.Fatal("expected synced after refresh")
	}
	if off := ts.Offset(); off < 2000 || off > 4000 {
		t.Fatalf("offset=%d, expected about 3000", off)
	}

	ts.Refresh(context.Background(), 0)
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("stale offset not refreshed, calls=%d", n)
	}
}

func TestTimeSyncRefreshBacksOffAfterFailure(t *testing.T) {
	var calls int32
	ts := NewTimeSync(func(context.Context) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("unreachable")
	}, zerolog.Nop())

	ts.Refresh(context.Background(), time.Minute)
	ts.Refresh(context.Background(), time.Minute)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls=%d, expected one attempt inside the retry window", n)
	}
	if ts.Synced() {
		t.Fatal("failed sync must not mark synced")
	}
}
