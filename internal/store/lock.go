package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// fileLock guards one data file against writers in this process (mutex) and
// in other processes (advisory flock on a ".lock" sidecar).
type fileLock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{fl: flock.New(path + ".lock")}
}

// acquire blocks until both locks are held. The mutex is held on return even
// when the flock fails; the returned func always releases what was taken.
func (l *fileLock) acquire() (func(), error) {
	l.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return l.mu.Unlock, fmt.Errorf("lock directory: %w", err)
	}
	if err := l.fl.Lock(); err != nil {
		return l.mu.Unlock, fmt.Errorf("lock %s: %w", l.fl.Path(), err)
	}
	return func() {
		l.fl.Unlock()
		l.mu.Unlock()
	}, nil
}
