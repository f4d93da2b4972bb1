package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/state"
)

// ErrClosed is returned by Merge after Close.
var ErrClosed = errors.New("bridge: closed")

// errContainerMoved aborts a merge write-back when the container was
// written after the bridge last caught up with it.
var errContainerMoved = errors.New("container moved")

// Bridge mediates between a state.Container and an engine.Engine.
type Bridge struct {
	engine    *engine.Engine
	container *state.Container
	logger    *slog.Logger
	selector  state.Selector

	queue       *eventQueue
	unsubscribe func()

	// mu serializes event processing and merges. Fields below are guarded.
	mu          sync.Mutex
	closed      bool
	lastVersion uint64
	// applied is the container projection at lastVersion. Local edits are
	// replayed relative to it.
	applied ir.Snapshot
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Default: the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithSelector overrides the selector. Default: state.SyncSelector.
func WithSelector(sel state.Selector) Option {
	return func(b *Bridge) {
		b.selector = sel
	}
}

// New creates a Bridge for an open engine. The container is first loaded
// with the engine's snapshot so both sides start equal, then subscribed.
func New(e *engine.Engine, c *state.Container, opts ...Option) (*Bridge, error) {
	if !e.IsOpen() {
		return nil, fmt.Errorf("bridge: %w", engine.ErrNotOpen)
	}

	b := &Bridge{
		engine:    e,
		container: c,
		logger:    e.Logger(),
		selector:  state.SyncSelector,
		queue:     newEventQueue(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.applied = e.Snapshot()
	b.lastVersion = c.SetSnapshot(b.applied)
	b.unsubscribe = c.Subscribe(b.selector, b.onChange)

	b.logger.Debug("bridge attached", "version", b.lastVersion)
	return b, nil
}

// onChange runs on the container writer's goroutine.
func (b *Bridge) onChange(version uint64, selected ir.Snapshot) {
	if !b.queue.Enqueue(ChangeEvent{Version: version, Snapshot: selected}) {
		b.logger.Debug("change dropped: bridge closed", "version", version)
	}
}

// Run processes change events until ctx is cancelled or the Bridge is
// closed. Errors applying an event are logged; Run keeps going.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := b.Drain(); err != nil {
			b.logger.Error("applying local change failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-b.queue.Wait():
			if !ok {
				// closed: fold in what is left, then stop
				if err := b.Drain(); err != nil {
					b.logger.Error("applying local change failed", "error", err)
				}
				return nil
			}
		}
	}
}

// Drain synchronously applies every queued change event.
func (b *Bridge) Drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked()
}

func (b *Bridge) drainLocked() error {
	var errs []error
	for {
		ev, ok := b.queue.TryDequeue()
		if !ok {
			return errors.Join(errs...)
		}
		if err := b.apply(ev); err != nil {
			errs = append(errs, err)
		}
	}
}

// apply runs with mu held. The event's edit is rebased onto the engine's
// current snapshot, so an event written against a container that had not
// yet seen a merge cannot remove the merged-in items.
func (b *Bridge) apply(ev ChangeEvent) error {
	if ev.Version <= b.lastVersion {
		b.logger.Debug("stale change dropped", "version", ev.Version, "applied", b.lastVersion)
		return nil
	}
	b.lastVersion = ev.Version

	target := rebase(b.applied, ev.Snapshot, b.engine.Snapshot())
	b.applied = ev.Snapshot

	changed, err := b.engine.Apply(target)
	if err != nil {
		return fmt.Errorf("apply version %d: %w", ev.Version, err)
	}
	b.logger.Debug("local change applied", "version", ev.Version, "changed", changed)
	return nil
}

// Merge folds a remote Document into the local one.
//
// Queued local edits are applied first so they take part in the merge. The
// merged snapshot then replaces the container's synchronizable fields in
// one write, and the engine flushes right away. The write only lands if
// the container still holds what the bridge last applied; a local write
// that slipped in is folded into the engine first and the write retried.
// Malformed bytes return an error wrapping *crdt.DecodeError and change
// nothing. A failed flush after a successful merge is logged and left to
// the scheduler; Merge still returns nil.
func (b *Bridge) Merge(ctx context.Context, data []byte) (changed bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrClosed
	}

	if err := b.drainLocked(); err != nil {
		b.logger.Error("applying local change before merge failed", "error", err)
	}

	merged, changed, err := b.engine.Merge(ctx, data)
	if err != nil {
		return false, err
	}

	for attempt := 1; ; attempt++ {
		moved, err := b.writeBack(merged)
		if err == nil {
			break
		}
		if !errors.Is(err, errContainerMoved) {
			return changed, fmt.Errorf("merge: %w", err)
		}
		b.logger.Debug("container written during merge, folding in", "version", moved.Version, "attempt", attempt)
		if err := b.apply(ChangeEvent{Version: moved.Version, Snapshot: b.selector(moved)}); err != nil {
			b.logger.Error("applying local change during merge failed", "error", err)
		}
		merged = b.engine.Snapshot()
	}

	// events queued by writes up to the write-back are stale now; drop
	// them, and apply anything written since
	if err := b.drainLocked(); err != nil {
		b.logger.Error("applying local change after merge failed", "error", err)
	}

	if _, err := b.engine.Sync(ctx); err != nil {
		b.logger.Error("flush after merge failed; scheduler will retry", "error", err)
	}
	return changed, nil
}

// writeBack replaces the container's synchronizable fields with s if the
// container is still at lastVersion. Otherwise it returns the container's
// state and errContainerMoved. It runs with mu held.
func (b *Bridge) writeBack(s ir.Snapshot) (state.State, error) {
	var moved, written state.State
	version, err := b.container.Update(func(st *state.State) error {
		if st.Version != b.lastVersion {
			moved = st.Clone()
			return errContainerMoved
		}
		st.Data = s.Clone()
		written = st.Clone()
		return nil
	})
	if err != nil {
		return moved, err
	}
	written.Version = version
	b.lastVersion = max(b.lastVersion, version)
	b.applied = b.selector(written)
	return state.State{}, nil
}

// Close unsubscribes from the container and stops Run. Events already
// queued are still applied by a running Run loop. Close is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.unsubscribe()
	b.queue.Close()
	b.logger.Debug("bridge closed")
	return nil
}

// Pending returns the number of queued change events.
func (b *Bridge) Pending() int {
	return b.queue.Len()
}
