// Package id issues ULID request identifiers. They sort by creation time,
// which keeps log lines and journal metadata for one signal easy to follow.
package id

import (
	cryptoRand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator uses crypto/rand and the wall clock when passed nil.
// IDs minted in the same millisecond stay increasing.
func NewGenerator(entropy io.Reader, now func() time.Time) *Generator {
	if entropy == nil {
		entropy = cryptoRand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: ulid.Monotonic(entropy, 0), now: now}
}

func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		// only on entropy failure or monotonic overflow inside one millisecond
		panic(err)
	}
	return id.String()
}

var std = NewGenerator(nil, nil)

// New returns a ULID string from the process-wide generator.
func New() string {
	return std.New()
}

// Time extracts the creation time encoded in an id.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
