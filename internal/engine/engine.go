package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/nexus/internal/crdt"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/store"
)

// Engine owns the live Document of one device.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - mutations are serialized by the mutation guard
//   - flushes are serialized by the flush guard
//
// INVARIANTS:
//   - the device id never changes after Open
//   - SyncState.SyncToken is the hash of the last persisted document bytes
//   - flushes never persist a Document older than an already persisted one
type Engine struct {
	adapter store.Adapter
	logger  *slog.Logger
	now     func() time.Time
	idGen   DeviceIDGenerator
	metrics *Metrics

	// mu guards the fields below it.
	mu           sync.Mutex
	open         bool
	doc          *crdt.Document
	state        store.SyncState
	persistedGen int64

	gen *Clock

	// flushMu admits one flush at a time.
	flushMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNow sets the wall clock used for SyncState.LastSynced.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithDeviceIDGenerator sets the generator used when no device id has been
// persisted yet. Default: UUIDv7Generator.
func WithDeviceIDGenerator(g DeviceIDGenerator) Option {
	return func(e *Engine) {
		e.idGen = g
	}
}

// WithMetrics enables metric collection.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine persisting through adapter. Call Open before use.
func New(adapter store.Adapter, opts ...Option) *Engine {
	e := &Engine{
		adapter: adapter,
		logger:  slog.Default(),
		now:     time.Now,
		idGen:   UUIDv7Generator{},
		doc:     crdt.Empty(),
		gen:     NewClock(),
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Open connects the adapter and restores persisted state.
//
// A persisted document that fails to decode is returned as an error
// wrapping *crdt.DecodeError; nothing is overwritten. When no syncState
// exists yet, a device id is generated and persisted immediately so it is
// stable even if no flush ever happens.
//
// Open is idempotent.
func (e *Engine) Open(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if e.open {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	doc, state, err := e.restore(ctx)
	if err != nil {
		e.adapter.Close()
		return fmt.Errorf("open engine: %w", err)
	}

	e.mu.Lock()
	e.doc = doc
	e.state = state
	e.persistedGen = e.gen.Current()
	e.open = true
	e.mu.Unlock()

	e.logger.Info("engine opened",
		"device_id", state.DeviceID,
		"clock", doc.Clock(),
		"last_synced", state.LastSyncedMillis(),
	)
	return nil
}

// restore reads the persisted document and syncState, creating the
// device id on first run.
func (e *Engine) restore(ctx context.Context) (*crdt.Document, store.SyncState, error) {
	doc := crdt.Empty()
	data, ok, err := e.adapter.Get(ctx, store.KeyDocument)
	if err != nil {
		return nil, store.SyncState{}, err
	}
	if ok {
		doc, err = crdt.Load(data)
		if err != nil {
			e.logger.Error("persisted document is corrupt", "error", err, "bytes", len(data))
			return nil, store.SyncState{}, fmt.Errorf("load persisted document: %w", err)
		}
	}

	raw, ok, err := e.adapter.Get(ctx, store.KeySyncState)
	if err != nil {
		return nil, store.SyncState{}, err
	}
	if ok {
		state, err := store.UnmarshalSyncState(raw)
		if err != nil {
			return nil, store.SyncState{}, err
		}
		return doc, state, nil
	}

	state := store.SyncState{DeviceID: e.idGen.Generate()}
	encoded, err := store.MarshalSyncState(state)
	if err != nil {
		return nil, store.SyncState{}, err
	}
	if err := e.adapter.Set(ctx, store.KeySyncState, encoded); err != nil {
		return nil, store.SyncState{}, fmt.Errorf("persist device id: %w", err)
	}
	e.logger.Info("device id generated", "device_id", state.DeviceID)
	return doc, state, nil
}

// Close waits for an in-flight flush and closes the adapter. Pending
// changes that were never flushed are lost; call Sync first to keep them.
func (e *Engine) Close() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	wasOpen := e.open
	e.open = false
	e.mu.Unlock()

	if !wasOpen {
		return nil
	}
	e.logger.Info("engine closed", "pending", e.Pending())
	return e.adapter.Close()
}

// Change applies fn as a local mutation stamped with the device id.
// It reports whether the Document changed; only then does the engine
// become pending.
func (e *Engine) Change(fn func(*crdt.Draft) error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return false, ErrNotOpen
	}

	next, changed, err := crdt.Change(e.doc, e.state.DeviceID, fn)
	if err != nil {
		return false, fmt.Errorf("change: %w", err)
	}
	if !changed {
		return false, nil
	}
	e.doc = next
	gen := e.gen.Next()

	e.logger.Debug("document changed", "clock", next.Clock(), "generation", gen)
	return true, nil
}

// Apply replaces every synchronized field with the lists of s.
func (e *Engine) Apply(s ir.Snapshot) (bool, error) {
	return e.Change(func(dr *crdt.Draft) error {
		return dr.SetSnapshot(s)
	})
}

// Merge decodes a remote Document and merges it into the live one.
//
// Malformed input returns an error wrapping *crdt.DecodeError and leaves
// the live Document untouched. On success Merge returns the merged
// snapshot, captured atomically with the merge, and whether the Document
// changed.
func (e *Engine) Merge(ctx context.Context, data []byte) (ir.Snapshot, bool, error) {
	remote, err := crdt.Load(data)
	if err != nil {
		e.metrics.merge(MergeRejected)
		e.logger.Warn("rejected remote document", "error", err, "bytes", len(data))
		return ir.Snapshot{}, false, fmt.Errorf("merge: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return ir.Snapshot{}, false, ErrNotOpen
	}

	merged := crdt.Merge(e.doc, remote)
	changed := !bytes.Equal(crdt.Save(merged), crdt.Save(e.doc))
	if changed {
		e.doc = merged
		e.gen.Next()
	}
	e.metrics.merge(MergeMerged)

	e.logger.Info("merged remote document",
		"changed", changed,
		"clock", e.doc.Clock(),
		"bytes", len(data),
	)
	return e.doc.Snapshot(), changed, nil
}

// Sync flushes the current Document, waiting for any in-flight flush first.
// It reports whether bytes were persisted; false with a nil error means the
// persisted state was already up to date.
func (e *Engine) Sync(ctx context.Context) (bool, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.flush(ctx)
}

// TrySync flushes unless another flush is in flight, in which case it
// returns ran == false without waiting.
func (e *Engine) TrySync(ctx context.Context) (ran, persisted bool, err error) {
	if !e.flushMu.TryLock() {
		return false, false, nil
	}
	defer e.flushMu.Unlock()

	persisted, err = e.flush(ctx)
	return true, persisted, err
}

// flush runs with flushMu held.
func (e *Engine) flush(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return false, newNotOpenError()
	}
	doc := e.doc
	gen := e.gen.Current()
	state := e.state
	e.mu.Unlock()

	// Documents are immutable, so serializing outside the guard sees
	// exactly the state of generation gen.
	data := crdt.Save(doc)
	token := ir.DocumentToken(data)

	if token == state.SyncToken {
		e.markFlushed(gen, nil)
		e.metrics.flush(FlushUnchanged)
		e.logger.Debug("flush skipped: document unchanged", "token", token)
		return false, nil
	}

	next := store.SyncState{
		DeviceID:   state.DeviceID,
		LastSynced: e.now(),
		SyncToken:  token,
	}
	encoded, err := store.MarshalSyncState(next)
	if err != nil {
		return false, newPersistError(err)
	}

	if err := e.persist(ctx, data, encoded); err != nil {
		e.metrics.flush(FlushFailed)
		e.logger.Error("flush failed", "error", err, "generation", gen)
		return false, newPersistError(err)
	}

	e.markFlushed(gen, &next)
	e.metrics.flush(FlushPersisted)
	e.metrics.persisted(next.LastSynced, len(data))
	e.logger.Info("document persisted",
		"token", token,
		"bytes", len(data),
		"clock", doc.Clock(),
	)
	return true, nil
}

// persist writes the document and syncState, atomically when the adapter
// supports batches. Otherwise the document goes first so a torn write
// leaves an outdated token, which only causes one redundant flush.
func (e *Engine) persist(ctx context.Context, doc, state []byte) error {
	if b, ok := e.adapter.(store.Batcher); ok {
		return b.SetBatch(ctx, []store.Entry{
			{Key: store.KeyDocument, Value: doc},
			{Key: store.KeySyncState, Value: state},
		})
	}
	if err := e.adapter.Set(ctx, store.KeyDocument, doc); err != nil {
		return err
	}
	return e.adapter.Set(ctx, store.KeySyncState, state)
}

func (e *Engine) markFlushed(gen int64, state *store.SyncState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen > e.persistedGen {
		e.persistedGen = gen
	}
	if state != nil {
		e.state = *state
	}
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (e *Engine) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Pending reports whether mutations happened since the last flush.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen.Current() > e.persistedGen
}

// CurrentDocumentBytes returns the serialized live Document.
func (e *Engine) CurrentDocumentBytes() []byte {
	return crdt.Save(e.Document())
}

// Document returns the live Document. Documents are immutable, so the
// caller may keep it.
func (e *Engine) Document() *crdt.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Snapshot returns the snapshot of the live Document.
func (e *Engine) Snapshot() ir.Snapshot {
	return e.Document().Snapshot()
}

// SyncState returns the bookkeeping of the last successful flush.
func (e *Engine) SyncState() store.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// DeviceID returns the installation's device id, empty before Open.
func (e *Engine) DeviceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.DeviceID
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}
