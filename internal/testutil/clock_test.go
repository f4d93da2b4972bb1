package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClock_StartsAtEpoch(t *testing.T) {
	clock := NewWallClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestWallClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewWallClock(start)

	assert.Equal(t, start.Add(time.Second), clock.Advance(time.Second))
	assert.Equal(t, start.Add(time.Second), clock.Now(), "Now does not move the clock")

	clock.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute+time.Second), clock.Now())
}

func TestWallClock_SetAndReset(t *testing.T) {
	clock := NewWallClock(time.Time{})
	later := Epoch.Add(24 * time.Hour)

	clock.Set(later)
	assert.Equal(t, later, clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestWallClock_ThreadSafe(t *testing.T) {
	clock := NewWallClock(time.Time{})
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(numGoroutines*time.Millisecond), clock.Now())
}
