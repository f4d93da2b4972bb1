package store

import "context"

// Record keys written by the engine.
const (
	KeyDocument  = "document"
	KeySyncState = "syncState"
)

// Adapter is a durable key-value byte store.
type Adapter interface {
	// Connect prepares the adapter for use. It is safe to call more than once.
	Connect(ctx context.Context) error

	// Get returns the value stored under key. ok is false when the key has
	// never been written.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. The write is durable when Set returns nil.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the adapter's resources.
	Close() error
}

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value []byte
}

// Batcher is implemented by adapters that can write several keys in one
// atomic step. Either every entry is stored or none is.
type Batcher interface {
	SetBatch(ctx context.Context, entries []Entry) error
}
