package id

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorMonotonic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)
	g := NewGenerator(bytes.NewReader(bytes.Repeat([]byte{7}, 1024)), func() time.Time { return at })

	prev := g.New()
	for i := 0; i < 50; i++ {
		next := g.New()
		assert.Len(t, next, 26)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 6, 14, 0, 0, 123_000_000, time.UTC)
	g := NewGenerator(nil, func() time.Time { return at })

	got, err := Time(g.New())
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}

func TestNewIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		v := New()
		require.False(t, seen[v])
		seen[v] = true
	}
}
