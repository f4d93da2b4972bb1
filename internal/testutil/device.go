package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// SequentialDeviceIDs generates "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator, it never runs out, which suits tests that
// open an unknown number of engines.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialDeviceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialDeviceIDs creates a generator. If prefix is empty,
// "device" is used.
func NewSequentialDeviceIDs(prefix string) *SequentialDeviceIDs {
	if prefix == "" {
		prefix = "device"
	}
	return &SequentialDeviceIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.DeviceIDGenerator interface.
func (g *SequentialDeviceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedDeviceID always generates the same id.
//
// Implements engine.DeviceIDGenerator interface.
type FixedDeviceID string

// Generate returns the fixed id.
func (id FixedDeviceID) Generate() string {
	return string(id)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
