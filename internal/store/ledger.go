package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/logging"
)

// Trade is one opaque ledger record; it always carries user_id.
type Trade map[string]any

// UserID returns the owning user id in string form.
func (t Trade) UserID() string {
	switch v := t["user_id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Ledger is the append-only trade history.
type Ledger interface {
	Append(ctx context.Context, t Trade) error
	// TradesFor returns the last limit records of userID in insertion order;
	// limit <= 0 returns all of them.
	TradesFor(ctx context.Context, userID string, limit int) ([]Trade, error)
}

// JSONLedger keeps the ledger as a single JSON array file. Elements that are
// not objects are carried through appends untouched and never returned.
type JSONLedger struct {
	path string
	log  zerolog.Logger
	lock *fileLock
}

// NewJSONLedger builds a ledger over path, creating the file if needed.
func NewJSONLedger(path string, logger zerolog.Logger) (*JSONLedger, error) {
	l := &JSONLedger{
		path: path,
		log:  logging.Component(logger, "ledger"),
		lock: newFileLock(path),
	}
	if err := ensureFile(path, []any{}); err != nil {
		return nil, err
	}
	return l, nil
}

// Append reads the ledger, appends t and writes it back under the ledger lock.
func (l *JSONLedger) Append(_ context.Context, t Trade) error {
	if t.UserID() == "" {
		return ErrEmptyID
	}
	unlock, err := l.lock.acquire()
	defer unlock()
	if err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("lock ledger failed")
		return err
	}

	items := l.readLocked()
	items = append(items, map[string]any(t))
	if err := writeJSONAtomic(l.path, items); err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("write ledger failed")
		return err
	}
	return nil
}

// TradesFor filters the ledger by owner and keeps the tail.
func (l *JSONLedger) TradesFor(_ context.Context, userID string, limit int) ([]Trade, error) {
	unlock, err := l.lock.acquire()
	if err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("reading ledger without file lock")
	}
	items := l.readLocked()
	unlock()

	trades := make([]Trade, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			trades = append(trades, Trade(obj))
		}
	}
	return lastN(trades, userID, limit), nil
}

// readLocked returns every ledger element as decoded, objects or not.
func (l *JSONLedger) readLocked() []any {
	var raw []any
	if err := readJSON(l.path, &raw); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.log.Error().Err(err).Str("path", l.path).Msg("ledger unreadable, treating as empty")
			quarantine(l.log, l.path, time.Now())
		}
		return []any{}
	}
	if raw == nil {
		raw = []any{}
	}
	return raw
}

func lastN(trades []Trade, userID string, limit int) []Trade {
	out := make([]Trade, 0)
	for _, t := range trades {
		if t.UserID() == userID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
