package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with HOME pointing at another
// empty directory so no stray nexus.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "nexus.db", cfg.DB)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, time.Second, cfg.Sync.Backoff.Initial)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Backoff.Max)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.Empty(t, cfg.Inbox.Dir)
	assert.Equal(t, 250*time.Millisecond, cfg.Inbox.Debounce)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoSources(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ConfigFileSearchedInWorkingDir(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "nexus.yaml"), `
db: data/nexus.db
sync:
  interval: 10s
  backoff:
    max: 1m
log:
  level: debug
`)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "data/nexus.db", cfg.DB)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, time.Second, cfg.Sync.Backoff.Initial, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Sync.Backoff.Max)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "nexus.yaml"), cfg.Source)
}

func TestLoad_ExplicitTOMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	writeFile(t, path, "db = \"other.db\"\n[inbox]\ndir = \"drop\"\ndebounce = \"1s\"\n")

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.DB)
	assert.Equal(t, "drop", cfg.Inbox.Dir)
	assert.Equal(t, time.Second, cfg.Inbox.Debounce)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(Options{ConfigFile: "nope.yaml"})
	assert.Error(t, err)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "nexus.yaml"), "sync:\n  intervall: 10s\n")

	_, err := Load(Options{})
	assert.ErrorContains(t, err, "intervall")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "nexus.yaml"), "sync:\n  interval: 10s\n")
	t.Setenv("NEXUS_SYNC_INTERVAL", "45s")
	t.Setenv("NEXUS_METRICS_ADDR", ":9090")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "NEXUS_LOG_FILE=nexus.log\n")
	t.Cleanup(func() { os.Unsetenv("NEXUS_LOG_FILE") })

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "nexus.log", cfg.Log.File)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	isolate(t)
	t.Setenv("NEXUS_DB", "env.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("metrics-addr", "", "")
	require.NoError(t, flags.Parse([]string{"--db", "flag.db"}))

	cfg, err := Load(Options{Flags: map[string]*pflag.Flag{
		KeyDB:          flags.Lookup("db"),
		KeyMetricsAddr: flags.Lookup("metrics-addr"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.DB)
	assert.Empty(t, cfg.Metrics.Addr, "unset flag does not override")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty db", func(c *Config) { c.DB = "" }, KeyDB},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, KeySyncInterval},
		{"negative backoff", func(c *Config) { c.Sync.Backoff.Initial = -time.Second }, KeyBackoffInitial},
		{"max below initial", func(c *Config) { c.Sync.Backoff.Max = time.Millisecond }, KeyBackoffMax},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
		{"log size", func(c *Config) { c.Log.MaxSizeMB = 0 }, KeyLogMaxSizeMB},
		{"inbox debounce", func(c *Config) { c.Inbox.Dir = "drop"; c.Inbox.Debounce = 0 }, KeyInboxDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestLoad_InvalidValueFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("NEXUS_SYNC_INTERVAL", "-1s")

	_, err := Load(Options{})
	assert.ErrorContains(t, err, KeySyncInterval)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
