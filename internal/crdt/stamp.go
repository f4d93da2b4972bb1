package crdt

import (
	"fmt"
	"strings"
)

// Stamp identifies the write that produced a register value.
// Stamps are totally ordered by (Counter, Actor).
type Stamp struct {
	Counter int64
	Actor   string
}

// Compare returns -1, 0 or +1. Higher counters are greater; equal counters
// compare actors byte-wise.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.Counter < o.Counter:
		return -1
	case s.Counter > o.Counter:
		return 1
	}
	return strings.Compare(s.Actor, o.Actor)
}

// After reports whether s wins over o.
func (s Stamp) After(o Stamp) bool {
	return s.Compare(o) > 0
}

// IsZero reports whether the stamp was never set.
func (s Stamp) IsZero() bool {
	return s.Counter == 0 && s.Actor == ""
}

// String renders the stamp as counter@actor.
func (s Stamp) String() string {
	return fmt.Sprintf("%d@%s", s.Counter, s.Actor)
}
