package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/inbox"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval    time.Duration
	Inbox       string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync service",
		Long: `Open the document store and keep it in sync until interrupted.

Local changes are flushed on every sync interval; failed flushes are
retried with exponential backoff. When an inbox directory is configured,
document files dropped into it are merged and removed. On SIGINT or
SIGTERM pending changes get one final sync before exit.

Example:
  nexus run --db ./nexus.db
  nexus run --inbox ~/Sync/nexus-inbox --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "sync interval")
	cmd.Flags().StringVar(&opts.Inbox, "inbox", "", "directory watched for document files to merge")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	sigCtx, stopSignals := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := openSession(ctx, cmd, opts.RootOptions, reg)
	if err != nil {
		return err
	}
	logger := s.logger

	sched := engine.NewScheduler(s.engine, engine.SchedulerConfig{
		Interval:       s.cfg.Sync.Interval,
		BackoffInitial: s.cfg.Sync.Backoff.Initial,
		BackoffMax:     s.cfg.Sync.Backoff.Max,
	})
	if err := sched.Start(ctx); err != nil {
		_ = s.Close()
		return WrapExitError(ExitCommandError, "failed to start scheduler", err)
	}

	var wg sync.WaitGroup
	failed := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			failed <- fmt.Errorf("bridge: %w", err)
		}
	}()

	if dir := s.cfg.Inbox.Dir; dir != "" {
		w, err := inbox.New(dir, s.bridge,
			inbox.WithDebounce(s.cfg.Inbox.Debounce),
			inbox.WithLogger(logger),
		)
		if err != nil {
			cancel()
			sched.Stop()
			wg.Wait()
			_ = s.Close()
			return WrapExitError(ExitCommandError, "failed to open inbox", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				failed <- fmt.Errorf("inbox: %w", err)
			}
		}()
	}

	var srv *http.Server
	if addr := s.cfg.Metrics.Addr; addr != "" {
		srv, err = serveMetrics(addr, reg, logger)
		if err != nil {
			cancel()
			sched.Stop()
			wg.Wait()
			_ = s.Close()
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
	}

	logger.Info("nexus running", "device_id", s.engine.DeviceID(), "db", s.cfg.DB)
	fmt.Fprintf(cmd.OutOrStdout(), "nexus running (device %s, db %s)\n", s.engine.DeviceID(), s.cfg.DB)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-failed:
		logger.Error("component failed, shutting down", "error", runErr)
	}

	cancel()
	sched.Stop()
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		cancelShutdown()
	}

	// Final sync with a fresh context: ctx is already cancelled.
	finalErr := finalSync(s)
	closeErr := s.Close()

	switch {
	case runErr != nil:
		return WrapExitError(ExitFailure, "sync service failed", runErr)
	case finalErr != nil:
		return WrapExitError(ExitFailure, "final sync failed", finalErr)
	case closeErr != nil:
		return WrapExitError(ExitFailure, "failed to close database", closeErr)
	}
	logger.Info("nexus stopped")
	return nil
}

func finalSync(s *session) error {
	if err := s.bridge.Drain(); err != nil {
		return err
	}
	persisted, err := s.engine.Sync(context.Background())
	if err != nil {
		return err
	}
	s.logger.Info("final sync", "persisted", persisted)
	return nil
}

// serveMetrics listens on addr and serves reg under /metrics.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      reg,
	}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
