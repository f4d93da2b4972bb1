// Package inbox merges document blobs dropped into a local directory.
//
// Another device, a sync folder or a user copies a file produced by
// `nexus export` into the inbox directory. The watcher waits until writes to
// the file settle, hands its bytes to a Merger and then removes the file.
// Files that do not decode are renamed with a ".rejected" suffix so they are
// not picked up again. Any other merge failure leaves the file in place for
// the next event or restart.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/nexus/internal/crdt"
)

// Suffix of files the watcher picks up.
const Suffix = ".json"

// RejectedSuffix is appended to files that failed to decode.
const RejectedSuffix = ".rejected"

// DefaultDebounce is how long a file must stay quiet before it is merged.
const DefaultDebounce = 250 * time.Millisecond

// Merger merges serialized documents. *bridge.Bridge implements it.
type Merger interface {
	Merge(ctx context.Context, data []byte) (bool, error)
}

// Stats counts what the watcher did.
type Stats struct {
	Merged   int
	Rejected int
	Failed   int
}

// Watcher watches one directory for dropped documents.
type Watcher struct {
	dir      string
	merger   Merger
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	ready   chan string
	done    chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stats   Stats
	running bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a Watcher for dir, creating the directory if needed.
func New(dir string, m Merger, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("inbox: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("inbox: create %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		merger:   m,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		watcher:  fw,
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Stats returns the counters so far.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run merges files already in the directory, then watches for new ones
// until ctx is cancelled. Run closes the underlying watcher on return, so a
// Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("inbox: watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer w.shutdown()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.dir, err)
	}
	w.logger.Info("inbox watching", "dir", w.dir, "debounce", w.debounce)

	if err := w.scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if accept(event) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)

		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

// scan merges the files present before watching started.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: read %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), Suffix) {
			w.process(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}
	return nil
}

func accept(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, Suffix) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}

// schedule (re)arms the quiet timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

// process merges one file. It runs on the Run goroutine only.
func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.count(func(s *Stats) { s.Failed++ })
			w.logger.Warn("inbox read failed", "path", path, "error", err)
		}
		return
	}

	changed, err := w.merger.Merge(ctx, data)
	switch {
	case crdt.IsDecodeError(err):
		w.count(func(s *Stats) { s.Rejected++ })
		w.logger.Warn("inbox file rejected", "path", path, "error", err)
		if err := os.Rename(path, path+RejectedSuffix); err != nil {
			w.logger.Error("inbox rename failed", "path", path, "error", err)
		}
	case err != nil:
		w.count(func(s *Stats) { s.Failed++ })
		w.logger.Error("inbox merge failed", "path", path, "error", err)
	default:
		w.count(func(s *Stats) { s.Merged++ })
		w.logger.Info("inbox file merged", "path", path, "changed", changed, "bytes", len(data))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Error("inbox remove failed", "path", path, "error", err)
		}
	}
}

func (w *Watcher) count(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

func (w *Watcher) shutdown() {
	close(w.done)

	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("inbox watcher close failed", "error", err)
	}
}
