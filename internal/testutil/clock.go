package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a WallClock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// WallClock is a manually advanced wall clock for tests.
//
// Pass its Now method wherever production code takes a func() time.Time.
// Time only moves when the test calls Advance or Set, so timestamps in
// persisted records are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewWallClock creates a clock reading start. A zero start means Epoch.
func NewWallClock(start time.Time) *WallClock {
	if start.IsZero() {
		start = Epoch
	}
	return &WallClock{start: start, now: start}
}

// Now returns the current reading.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *WallClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset moves the clock back to its start time.
//
// Used for test reuse.
func (c *WallClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
