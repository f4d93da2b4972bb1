package engine

import "sync/atomic"

// Clock is a monotonic generation counter for Document mutations.
//
// The engine advances it once per effective change or merge. Comparing the
// generation captured by a flush with the current one tells whether newer
// mutations still need persisting.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new value.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
