// Package store persists per-user profiles and the trade ledger in flat JSON
// files. Every read-modify-write holds the owning file's lock for its whole
// span, across goroutines and processes, and files are replaced atomically so
// readers never see partial writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/logging"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrEmptyID  = errors.New("user id is required")
	ErrEmptyKey = errors.New("setting key is required")
	ErrNoLedger = errors.New("no ledger configured")
)

// Document is the raw profiles file: user id -> profile object.
type Document map[string]map[string]any

// FileStore is the JSON-file SettingsStore.
type FileStore struct {
	path   string
	ledger Ledger
	log    zerolog.Logger
	now    func() time.Time
	lock   *fileLock
}

// NewFileStore builds a store over the profiles file at path. Call Open before use.
func NewFileStore(path string, ledger Ledger, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		ledger: ledger,
		log:    logging.Component(logger, "store"),
		now:    time.Now,
		lock:   newFileLock(path),
	}
}

// Open creates the profiles file when missing and runs one normalization pass,
// writing back only if some profile gained a field.
func (s *FileStore) Open() error {
	unlock, err := s.lock.acquire()
	defer unlock()
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("lock profiles failed")
		return err
	}

	if err := ensureFile(s.path, map[string]any{}); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("create profiles file failed")
		return err
	}
	doc := s.loadLocked()
	changed := 0
	for id, raw := range doc {
		if Normalize(raw, DefaultUsername(id)) {
			changed++
		}
	}
	if changed == 0 {
		s.log.Info().Int("profiles", len(doc)).Msg("profiles already normalized")
		return nil
	}
	if err := s.saveLocked(doc); err != nil {
		return err
	}
	s.log.Info().Int("profiles", len(doc)).Int("changed", changed).Msg("profiles normalized")
	return nil
}

// LoadAll reads the whole profiles document. A missing or corrupt file yields
// an empty document; the problem is logged, never returned.
func (s *FileStore) LoadAll() Document {
	unlock, err := s.lock.acquire()
	defer unlock()
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("reading profiles without file lock")
	}
	return s.loadLocked()
}

// SaveAll replaces the profiles document.
func (s *FileStore) SaveAll(doc Document) error {
	unlock, err := s.lock.acquire()
	defer unlock()
	if err != nil {
		return err
	}
	return s.saveLocked(doc)
}

// Profiles returns every profile, normalized in memory, ordered by id.
func (s *FileStore) Profiles() []Profile {
	doc := s.LoadAll()
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		raw := doc[id]
		Normalize(raw, DefaultUsername(id))
		out = append(out, profileFromRaw(id, raw))
	}
	return out
}

// Lookup returns a profile without creating it.
func (s *FileStore) Lookup(id string) (Profile, error) {
	doc := s.LoadAll()
	raw, ok := doc[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	Normalize(raw, DefaultUsername(id))
	return profileFromRaw(id, raw), nil
}

// Get loads, normalizes and returns the profile for id, creating it when
// absent and persisting only if normalization changed something. The profile
// is valid even when the returned error reports a failed write.
func (s *FileStore) Get(id string) (Profile, error) {
	return s.Create(id, "")
}

// Create ensures a profile exists; username only applies to a new profile.
func (s *FileStore) Create(id, username string) (Profile, error) {
	if id == "" {
		return Profile{}, ErrEmptyID
	}
	if username == "" {
		username = DefaultUsername(id)
	}

	unlock, err := s.lock.acquire()
	defer unlock()
	if err != nil {
		return Profile{}, err
	}

	doc := s.loadLocked()
	raw, ok := doc[id]
	if !ok {
		raw = map[string]any{}
		doc[id] = raw
	}
	changed := Normalize(raw, username) || !ok
	p := profileFromRaw(id, raw)
	if !changed {
		return p, nil
	}
	return p, s.saveLocked(doc)
}

// Update runs fn against the profile for id inside a single locked
// read-modify-write. Returning an error from fn aborts without writing.
func (s *FileStore) Update(id string, fn func(p *Profile) error) (Profile, error) {
	if id == "" {
		return Profile{}, ErrEmptyID
	}

	unlock, err := s.lock.acquire()
	defer unlock()
	if err != nil {
		return Profile{}, err
	}

	doc := s.loadLocked()
	raw, ok := doc[id]
	if !ok {
		raw = map[string]any{}
		doc[id] = raw
	}
	Normalize(raw, DefaultUsername(id))
	p := profileFromRaw(id, raw)
	if err := fn(&p); err != nil {
		return p, err
	}
	p.applyTo(raw)
	return p, s.saveLocked(doc)
}

// SetCredentials stores trimmed API credentials.
func (s *FileStore) SetCredentials(id, key, secret string) error {
	_, err := s.Update(id, func(p *Profile) error {
		p.APIKey = strings.TrimSpace(key)
		p.APISecret = strings.TrimSpace(secret)
		return nil
	})
	return err
}

// SetSubscription grants a subscription lasting days from now.
func (s *FileStore) SetSubscription(id string, days int) error {
	_, err := s.Update(id, func(p *Profile) error {
		p.SubUntil = FormatSubUntil(s.now().Add(time.Duration(days) * 24 * time.Hour))
		return nil
	})
	return err
}

// IsSubscribed reports whether id has an active subscription.
func (s *FileStore) IsSubscribed(id string) bool {
	p, err := s.Get(id)
	if err != nil {
		s.log.Warn().Err(err).Str("user", id).Msg("persist on subscription check failed")
	}
	return p.SubscriptionActive(s.now())
}

// UpdateSetting sets one settings key and returns the resulting settings.
func (s *FileStore) UpdateSetting(id, key string, value any) (Settings, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	p, err := s.Update(id, func(p *Profile) error {
		p.Settings[key] = value
		return nil
	})
	return p.Settings, err
}

// AppendTrade adds a record to the ledger.
func (s *FileStore) AppendTrade(ctx context.Context, t Trade) error {
	if s.ledger == nil {
		return ErrNoLedger
	}
	return s.ledger.Append(ctx, t)
}

// TradesFor returns the last limit ledger records of id in original order.
func (s *FileStore) TradesFor(ctx context.Context, id string, limit int) []Trade {
	if s.ledger == nil {
		return nil
	}
	trades, err := s.ledger.TradesFor(ctx, id, limit)
	if err != nil {
		s.log.Error().Err(err).Str("user", id).Msg("read trades failed")
		return nil
	}
	return trades
}

func (s *FileStore) loadLocked() Document {
	var raw map[string]any
	if err := readJSON(s.path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := ensureFile(s.path, map[string]any{}); err != nil {
				s.log.Error().Err(err).Str("path", s.path).Msg("create profiles file failed")
			}
		} else {
			s.log.Error().Err(err).Str("path", s.path).Msg("profiles file unreadable, treating as empty")
			quarantine(s.log, s.path, s.now())
		}
		return Document{}
	}

	doc := make(Document, len(raw))
	for id, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			s.log.Warn().Str("user", id).Msg("profile is not an object, resetting")
			obj = map[string]any{}
		}
		doc[id] = obj
	}
	return doc
}

func (s *FileStore) saveLocked(doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	if err := writeJSONAtomic(s.path, doc); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("write profiles failed")
		return err
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSONAtomic writes v pretty-printed to a sibling temp file and renames
// it over path.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// quarantine moves an undecodable file aside so the next write cannot destroy
// what is left of it.
func quarantine(log zerolog.Logger, path string, now time.Time) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	backup := fmt.Sprintf("%s.corrupt-%d", path, now.UnixNano())
	if err := os.Rename(path, backup); err != nil {
		log.Error().Err(err).Str("path", path).Msg("quarantine corrupt file failed")
		return
	}
	log.Warn().Str("path", path).Str("backup", backup).Msg("corrupt file moved aside")
}

func ensureFile(path string, def any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeJSONAtomic(path, def)
}
