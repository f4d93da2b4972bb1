package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scheduler defaults.
const (
	DefaultInterval       = 30 * time.Second
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 5 * time.Minute
	DefaultBackoffJitter  = 0.1
)

// SchedulerConfig configures a Scheduler. Zero fields take the defaults.
type SchedulerConfig struct {
	// Interval between ticks.
	Interval time.Duration

	// BackoffInitial is the delay before the first retry after a failed flush.
	BackoffInitial time.Duration

	// BackoffMax caps the delay between retries.
	BackoffMax time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	return c
}

// TickResult describes what one scheduler tick did.
type TickResult int

const (
	// TickIdle means nothing was pending.
	TickIdle TickResult = iota
	// TickBackoff means a retry was due later; the tick was skipped.
	TickBackoff
	// TickDropped means another flush was in flight; the tick was dropped.
	TickDropped
	// TickUnchanged means the flush found the persisted state up to date.
	TickUnchanged
	// TickPersisted means the flush wrote new bytes.
	TickPersisted
	// TickFailed means the flush failed and backoff was armed.
	TickFailed
)

// String returns the lowercase name of the result.
func (r TickResult) String() string {
	switch r {
	case TickIdle:
		return "idle"
	case TickBackoff:
		return "backoff"
	case TickDropped:
		return "dropped"
	case TickUnchanged:
		return "unchanged"
	case TickPersisted:
		return "persisted"
	case TickFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scheduler flushes pending changes of an Engine at a fixed interval.
//
// Lifecycle: Start launches the tick loop; Stop cancels the ticker and
// returns once the loop has exited, which includes waiting for a flush the
// loop started. Flushes run on a context detached from cancellation so a
// started write commits or rolls back whole.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
	logger *slog.Logger

	// tickMu guards the retry state.
	tickMu  sync.Mutex
	backoff *backoff.ExponentialBackOff
	retryAt time.Time

	// mu guards the loop handle.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// wallClock adapts the engine's clock to backoff.Clock.
type wallClock func() time.Time

func (c wallClock) Now() time.Time { return c() }

// NewScheduler creates a Scheduler for e.
func NewScheduler(e *Engine, cfg SchedulerConfig) *Scheduler {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.RandomizationFactor = DefaultBackoffJitter
	b.MaxElapsedTime = 0 // retry forever; persistence failures are never fatal
	b.Clock = wallClock(e.now)
	b.Reset()

	return &Scheduler{
		engine:  e,
		cfg:     cfg,
		logger:  e.logger,
		backoff: b,
	}
}

// ErrSchedulerRunning is returned by Start on a running Scheduler.
var ErrSchedulerRunning = errors.New("engine: scheduler already running")

// Config returns the effective configuration.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(loopCtx, s.done)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop cancels the ticker and waits for the loop, including any flush it
// is running, to finish. Stop on a stopped Scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped", "pending", s.engine.Pending())
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling step: flush if pending, unless a retry is
// not yet due or a flush is already in flight.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if !s.engine.Pending() {
		return TickIdle
	}

	now := s.engine.now()
	if now.Before(s.retryAt) {
		s.logger.Debug("tick skipped: waiting for retry", "retry_at", s.retryAt)
		return TickBackoff
	}

	ran, persisted, err := s.engine.TrySync(context.WithoutCancel(ctx))
	switch {
	case !ran:
		s.logger.Debug("tick dropped: flush in flight")
		return TickDropped
	case err != nil:
		delay := s.backoff.NextBackOff()
		s.retryAt = now.Add(delay)
		s.logger.Error("scheduled flush failed",
			"error", err,
			"retry_in", delay,
		)
		return TickFailed
	}

	s.backoff.Reset()
	s.retryAt = time.Time{}
	if persisted {
		return TickPersisted
	}
	return TickUnchanged
}

// RetryAt returns when the next retry is due, zero when no retry is armed.
func (s *Scheduler) RetryAt() time.Time {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.retryAt
}
