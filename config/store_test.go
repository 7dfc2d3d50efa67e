package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, doc string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestStoreMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := s.Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "stat", cerr.Op)
}

func TestStoreFirstLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "system: {}\n", time.Unix(1_700_000_000, 0))

	s := NewStore(path)
	cfg, err := s.Load()
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrConfig)
	assert.True(t, s.LoadedAt().IsZero())
}

func TestStoreReloadsOnlyWhenModified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t0 := time.Unix(1_700_000_000, 0)
	writeConfig(t, path, sampleYAML, t0)

	s := NewStore(path)
	first, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.False(t, s.LoadedAt().IsZero())

	// Same mtime: the cached document is served even though the bytes changed.
	edited := strings.Replace(sampleYAML, "volume: 0.1", "volume: 0.3", 1)
	writeConfig(t, path, edited, t0)
	again, err := s.Load()
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 0.1, again.Strategies["EURUSD_TREND_01"].Volume)

	// Newer mtime: the edit is picked up and replaces the document wholesale.
	writeConfig(t, path, edited, t0.Add(time.Second))
	reloaded, err := s.Load()
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, 0.3, reloaded.Strategies["EURUSD_TREND_01"].Volume)
	assert.Equal(t, 0.1, first.Strategies["EURUSD_TREND_01"].Volume)
	assert.Same(t, reloaded, s.Current())
}

func TestStoreKeepsLastGoodOnMalformedEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t0 := time.Unix(1_700_000_000, 0)
	writeConfig(t, path, sampleYAML, t0)

	s := NewStore(path)
	good, err := s.Load()
	require.NoError(t, err)

	writeConfig(t, path, "system: [broken\n", t0.Add(time.Second))
	cfg, err := s.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Same(t, good, cfg)

	// The broken version is remembered; a second call reports the same error.
	cfg2, err2 := s.Load()
	assert.Same(t, good, cfg2)
	assert.Equal(t, err, err2)

	// Fixing the file clears the error.
	writeConfig(t, path, sampleYAML, t0.Add(2*time.Second))
	fixed, err := s.Load()
	require.NoError(t, err)
	assert.NotSame(t, good, fixed)
}

func TestStoreFileRemovedAfterLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, sampleYAML, time.Unix(1_700_000_000, 0))

	s := NewStore(path)
	good, err := s.Load()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	cfg, err := s.Load()
	assert.ErrorIs(t, err, ErrConfig)
	assert.Same(t, good, cfg)
}
