package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialDeviceIDs(t *testing.T) {
	gen := NewSequentialDeviceIDs("phone")
	assert.Equal(t, "phone-1", gen.Generate())
	assert.Equal(t, "phone-2", gen.Generate())

	assert.Equal(t, "device-1", NewSequentialDeviceIDs("").Generate())
}

func TestSequentialDeviceIDs_Unique(t *testing.T) {
	gen := NewSequentialDeviceIDs("d")
	const numGoroutines = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines)
}

func TestFixedDeviceID(t *testing.T) {
	gen := FixedDeviceID("laptop")
	assert.Equal(t, "laptop", gen.Generate())
	assert.Equal(t, "laptop", gen.Generate())
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger()
	logger.Info("dropped", "key", "value")
	assert.NotNil(t, logger)
}
