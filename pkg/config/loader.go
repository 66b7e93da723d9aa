package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Loader caches a JSON config file by mtime and is safe for concurrent
// reads. One Loader instance per file path; the control engine holds three
// of them (funded levels, risk controls, live accounts).
//
// The operator files are decoded with encoding/json rather than the viper
// path the app settings use: their maps are keyed by case-sensitive tier
// names ("Pro (Gold)"), which viper's case-insensitive key handling would
// silently lowercase.
type Loader[T any] struct {
	path string

	mu      sync.RWMutex
	modTime time.Time
	cached  *T
}

// NewLoader builds a Loader for path. Parsing is lazy: the first Get() call
// performs the initial load.
func NewLoader[T any](path string) *Loader[T] {
	return &Loader[T]{path: path}
}

// Get returns the parsed config, reloading from disk only if the file's
// mtime has advanced since the last successful parse.
func (l *Loader[T]) Get() (*T, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat config %s", l.path)
	}

	l.mu.RLock()
	if l.cached != nil && !info.ModTime().After(l.modTime) {
		cached := l.cached
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check under the write lock: another goroutine may have already
	// reloaded while we waited.
	info, err = os.Stat(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat config %s", l.path)
	}
	if l.cached != nil && !info.ModTime().After(l.modTime) {
		return l.cached, nil
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", l.path)
	}

	var parsed T
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config %s", l.path)
	}

	l.cached = &parsed
	l.modTime = info.ModTime()
	return l.cached, nil
}
