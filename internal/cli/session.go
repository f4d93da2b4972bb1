package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/nexus/internal/bridge"
	"github.com/roach88/nexus/internal/config"
	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/state"
	"github.com/roach88/nexus/internal/store"
)

// loadConfig resolves the configuration for cmd. Flags registered on cmd
// under a config key's flag name override the other sources.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	flags := map[string]string{
		config.KeyDB:           "db",
		config.KeySyncInterval: "interval",
		config.KeyInboxDir:     "inbox",
		config.KeyMetricsAddr:  "metrics-addr",
	}
	bound := make(map[string]*pflag.Flag, len(flags))
	for key, name := range flags {
		if f := cmd.Flag(name); f != nil {
			bound[key] = f
		}
	}

	cfg, err := config.Load(config.Options{ConfigFile: opts.ConfigFile, Flags: bound})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w, or to a size-rotated
// file when log.file is set. The returned closer releases the file.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	var closer io.Closer = nopCloser{}
	if cfg.Log.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: 3,
		}
		w, closer = file, file
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// session is an opened document store: the engine over the SQLite
// database, the state container and the bridge between them.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	db        *store.SQLite
	engine    *engine.Engine
	container *state.Container
	bridge    *bridge.Bridge
	closed    bool
}

// openSession loads config, opens the engine and connects the container.
// reg may be nil when metrics are not served.
func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions, reg prometheus.Registerer) (*session, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	db := store.NewSQLite(cfg.DB)
	e := engine.New(db,
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if err := e.Open(ctx); err != nil {
		_ = logCloser.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s", cfg.DB), err)
	}

	container := state.NewContainer()
	b, err := bridge.New(e, container, bridge.WithLogger(logger))
	if err != nil {
		_ = e.Close()
		_ = logCloser.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start bridge", err)
	}

	return &session{
		cfg:       cfg,
		logger:    logger,
		logCloser: logCloser,
		db:        db,
		engine:    e,
		container: container,
		bridge:    b,
	}, nil
}

// Close detaches the bridge and closes the engine. Unflushed changes are
// not persisted; callers sync first. Calls after the first return nil.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.bridge.Close(), s.engine.Close(), s.logCloser.Close())
}

// finish closes s and turns a failure into an ExitError. Commands call it
// before printing their result and keep a deferred Close for early returns.
func (s *session) finish() error {
	if err := s.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to close database", err)
	}
	return nil
}
