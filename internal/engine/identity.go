package engine

import (
	"sync"

	"github.com/google/uuid"
)

// DeviceIDGenerator produces the device id of a new installation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type DeviceIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 device ids.
//
// Device ids double as CRDT actor ids. UUIDv7 keeps them unique across
// installations and printable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "0190d5d4-8a3e-7c1b-9f2a-6b1e2d3c4f5a" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined device ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("device-a", "device-b")
//	gen.Generate() // "device-a"
//	gen.Generate() // "device-b"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed. A test that generates more device
// ids than it configured is misconfigured.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
