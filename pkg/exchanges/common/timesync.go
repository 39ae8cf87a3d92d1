package common

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimeSync tracks the offset between the local clock and an exchange server.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	log           zerolog.Logger

	mu          sync.RWMutex
	offset      int64 // milliseconds, server - local
	lastSync    time.Time
	lastAttempt time.Time

	refreshMu sync.Mutex // one refresh in flight
}

// retryAfter spaces out refresh attempts while the server is unreachable.
const retryAfter = time.Minute

// NewTimeSync creates a time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), logger zerolog.Logger) *TimeSync {
	return &TimeSync{getServerTime: getServerTime, log: logger}
}

// Sync measures the offset once, assuming symmetric latency.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	offset := ts.offset
	ts.mu.Unlock()

	ts.log.Debug().Int64("offset_ms", offset).Int64("server", serverTime).Int64("local", localTime).Msg("time sync")
	return nil
}

// Refresh syncs when the offset was never measured or is older than maxAge.
// A failure is logged and the previous offset stays in use.
func (ts *TimeSync) Refresh(ctx context.Context, maxAge time.Duration) {
	ts.refreshMu.Lock()
	defer ts.refreshMu.Unlock()

	ts.mu.RLock()
	fresh := !ts.lastSync.IsZero() && time.Since(ts.lastSync) < maxAge
	failedRecently := ts.lastAttempt.After(ts.lastSync) && time.Since(ts.lastAttempt) < retryAfter
	ts.mu.RUnlock()
	if fresh || failedRecently {
		return
	}

	ts.mu.Lock()
	ts.lastAttempt = time.Now()
	ts.mu.Unlock()
	if err := ts.Sync(ctx); err != nil {
		ts.log.Warn().Err(err).Msg("time sync failed, keeping previous offset")
	}
}

// Now returns the current time in ms adjusted for the server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// Synced reports whether Sync has succeeded at least once.
func (ts *TimeSync) Synced() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return !ts.lastSync.IsZero()
}
