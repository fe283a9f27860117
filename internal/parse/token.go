package parse

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator mints generation tokens for parse instances. Every parse
// gets a fresh token; declaration handles embed it, which is how stale
// handles are detected after a reparse.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 generation tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort
// by creation time - convenient when reading logs of repeated reparses.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for testing. Deterministic
// tokens make handles and golden snapshots reproducible.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("gen-1", "gen-2")
//	gen.Generate() // "gen-1"
//	gen.Generate() // "gen-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics when all tokens are consumed: a test that parses more often than
// it declared is misconfigured, and failing fast beats silently reusing
// generations.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
