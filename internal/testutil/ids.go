package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates reservation ids "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike coordinator.FixedGenerator, which panics once its list is used up,
// SequentialIDs never runs out, so tests can create any number of
// reservations and still compare ids byte for byte.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "res".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "res"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Issued returns how many ids have been generated.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next Generate returns "<prefix>-0001".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
