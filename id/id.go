// Package id generates identifiers for ledger records.
package id

import (
	cryptoRand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces ULIDs that stay strictly increasing even when several
// are minted within the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(cryptoRand.Reader, 0),
		now:     now,
	}
}

// New returns the next ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		// Only possible if the clock runs backwards past the monotonic window
		// or crypto/rand fails.
		panic(err)
	}
	return id.String()
}

var std = NewGenerator(nil)

// New returns a transaction identifier (time-sortable ULID).
func New() string {
	return std.New()
}

// NewAccountID returns a random account identifier.
func NewAccountID() string {
	return uuid.NewString()
}
