// Package config loads nexus settings.
//
// Precedence, lowest first: built-in defaults, the config file (YAML, TOML
// or JSON), a .env file, NEXUS_* environment variables, command-line flags.
// Nested keys map to env names by upper-casing and replacing dots with
// underscores: sync.backoff.max is NEXUS_SYNC_BACKOFF_MAX.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "NEXUS"

// Keys.
const (
	KeyDB             = "db"
	KeySyncInterval   = "sync.interval"
	KeyBackoffInitial = "sync.backoff.initial"
	KeyBackoffMax     = "sync.backoff.max"
	KeyLogLevel       = "log.level"
	KeyLogFile        = "log.file"
	KeyLogMaxSizeMB   = "log.max_size_mb"
	KeyInboxDir       = "inbox.dir"
	KeyInboxDebounce  = "inbox.debounce"
	KeyMetricsAddr    = "metrics.addr"
)

// Config is the complete configuration.
type Config struct {
	DB      string        `mapstructure:"db"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
	Inbox   InboxConfig   `mapstructure:"inbox"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Source is the config file that was read, empty when none was.
	Source string `mapstructure:"-"`
}

// SyncConfig configures the scheduler.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Backoff  BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig bounds the retry delay after a failed flush.
type BackoffConfig struct {
	Initial time.Duration `mapstructure:"initial"`
	Max     time.Duration `mapstructure:"max"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// InboxConfig configures the drop directory. An empty Dir disables it.
type InboxConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// MetricsConfig configures the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config file. When empty, nexus.{yaml,toml,json}
	// is searched in the working directory and in $HOME/.config/nexus.
	ConfigFile string

	// EnvFile is loaded into the process environment when it exists.
	// Default ".env". Variables already set are not overridden.
	EnvFile string

	// Flags maps config keys to command-line flags. A flag overrides the
	// other sources only when it was set explicitly.
	Flags map[string]*pflag.Flag
}

// Defaults sets every key's default on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyDB, "nexus.db")
	v.SetDefault(KeySyncInterval, 30*time.Second)
	v.SetDefault(KeyBackoffInitial, time.Second)
	v.SetDefault(KeyBackoffMax, 5*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyInboxDir, "")
	v.SetDefault(KeyInboxDebounce, 250*time.Millisecond)
	v.SetDefault(KeyMetricsAddr, "")
}

// Default returns the configuration with no file, env or flags applied.
func Default() *Config {
	v := viper.New()
	Defaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads and validates the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("nexus")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "nexus"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyDB))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeySyncInterval, c.Sync.Interval))
	}
	if c.Sync.Backoff.Initial <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyBackoffInitial, c.Sync.Backoff.Initial))
	}
	if c.Sync.Backoff.Max < c.Sync.Backoff.Initial {
		errs = append(errs, fmt.Errorf("%s (%s) must not be below %s (%s)",
			KeyBackoffMax, c.Sync.Backoff.Max, KeyBackoffInitial, c.Sync.Backoff.Initial))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyLogMaxSizeMB, c.Log.MaxSizeMB))
	}
	if c.Inbox.Dir != "" && c.Inbox.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyInboxDebounce, c.Inbox.Debounce))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%s: unknown level %q (debug, info, warn, error)", KeyLogLevel, s)
	}
}
