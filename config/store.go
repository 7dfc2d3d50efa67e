package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrConfig matches every *Error with errors.Is.
var ErrConfig = errors.New("config error")

// Error reports a config file that is absent, malformed or invalid.
type Error struct {
	Op   string // "stat", "read" or "parse"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrConfig }

// Store serves the current configuration for one file and re-reads it only
// when the file's modification time moves forward. Consumers call Load once
// per unit of work and never keep the result longer than that.
type Store struct {
	path string

	mu       sync.Mutex
	current  *Config
	mtime    time.Time
	loadedAt time.Time

	// last rejected file version, so a broken file is parsed once
	badMtime time.Time
	badErr   error

	now func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Load returns the configuration in effect. When the file changed and the new
// version cannot be used, the previous good configuration (nil if there never
// was one) is returned together with a *Error.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return s.current, &Error{Op: "stat", Path: s.path, Err: err}
	}
	mtime := info.ModTime()

	if s.current != nil && !mtime.After(s.mtime) {
		return s.current, nil
	}
	if s.badErr != nil && mtime.Equal(s.badMtime) {
		return s.current, s.badErr
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.current, &Error{Op: "read", Path: s.path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		s.badMtime = mtime
		s.badErr = &Error{Op: "parse", Path: s.path, Err: err}
		return s.current, s.badErr
	}

	s.current = cfg
	s.mtime = mtime
	s.loadedAt = s.now()
	s.badErr = nil
	s.badMtime = time.Time{}
	return cfg, nil
}

// Current returns the last good configuration without touching the file.
func (s *Store) Current() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LoadedAt is when the current configuration was read; zero before the first
// successful Load.
func (s *Store) LoadedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedAt
}
