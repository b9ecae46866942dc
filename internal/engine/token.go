package engine

import (
	"sync"

	"github.com/google/uuid"
)

// CycleTokenGenerator produces correlation tokens for cycles. Every log
// line of a cycle carries its token so one run can be traced end to end.
type CycleTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 cycle tokens. UUIDv7
// embeds a timestamp in the most significant bits, so tokens sort by
// cycle start time in log aggregation.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for deterministic tests.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order,
// then repeats the last one once exhausted. With no tokens it always
// returns "cycle-fixed".
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.tokens) == 0 {
		return "cycle-fixed"
	}
	if g.idx >= len(g.tokens) {
		return g.tokens[len(g.tokens)-1]
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
