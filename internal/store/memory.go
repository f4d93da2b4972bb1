package store

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Adapter. Values are copied on the way in and out.
//
// FailWrites and FailConnect inject errors for tests; SetCalls counts write
// attempts including failed ones.
type Memory struct {
	mu        sync.Mutex
	connected bool
	data      map[string][]byte

	failConnect error
	failWrites  error
	setCalls    int
}

var (
	_ Adapter = (*Memory)(nil)
	_ Batcher = (*Memory)(nil)
)

// NewMemory returns an empty, unconnected Memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Connect marks the adapter usable. Data survives Close and reconnect.
func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &ConnectError{Err: err}
	}
	if m.failConnect != nil {
		return &ConnectError{Err: m.failConnect}
	}
	m.connected = true
	return nil
}

// Close disconnects the adapter.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, false, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, false, &ReadError{Key: key, Err: err}
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	return m.SetBatch(ctx, []Entry{{Key: key, Value: value}})
}

// SetBatch stores every entry or, on failure, none.
func (m *Memory) SetBatch(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.setCalls++
	if err := ctx.Err(); err != nil {
		return &WriteError{Keys: entryKeys(entries), Err: err}
	}
	if m.failWrites != nil {
		return &WriteError{Keys: entryKeys(entries), Err: m.failWrites}
	}
	for _, e := range entries {
		v := slices.Clone(e.Value)
		if v == nil {
			v = []byte{}
		}
		m.data[e.Key] = v
	}
	return nil
}

// FailConnect makes subsequent Connect calls fail with err. Pass nil to
// restore normal behavior.
func (m *Memory) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failConnect = err
}

// FailWrites makes subsequent writes fail with err. Pass nil to restore
// normal behavior.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

// SetCalls returns the number of write attempts made while connected.
func (m *Memory) SetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

// Put stores a value without counting it as a write. Tests use it to seed
// persisted state.
func (m *Memory) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(value)
}

// Value returns the stored value regardless of connection state.
func (m *Memory) Value(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok
}
