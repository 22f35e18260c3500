// Package config loads boarding settings from defaults, an optional config
// file and BOARDING_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g.
// BOARDING_ADMISSION_WINDOW_SIZE.
const EnvPrefix = "BOARDING"

// Config is the complete runtime configuration.
type Config struct {
	Admission AdmissionConfig `mapstructure:"admission"`
	Store     StoreConfig     `mapstructure:"store"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AdmissionConfig controls the admission window and lease lifecycle.
type AdmissionConfig struct {
	// WindowSize is K, the number of front positions allowed to book.
	WindowSize int `mapstructure:"window_size"`
	// LeaseTimeout is how long an admitted subject has to book.
	LeaseTimeout time.Duration `mapstructure:"lease_timeout"`
	// SweepInterval is how often expired leases are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxQueueSize caps the queue length. Zero means unbounded.
	MaxQueueSize int `mapstructure:"max_queue_size"`
}

// StoreConfig controls the SQLite store.
type StoreConfig struct {
	Path         string        `mapstructure:"path"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// DirectoryConfig points at the resource directory file (.cue, .yaml, .json).
type DirectoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Admission: AdmissionConfig{
			WindowSize:    20,
			LeaseTimeout:  300 * time.Second,
			SweepInterval: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:         "boarding.db",
			MaxAttempts:  5,
			RetryBackoff: 20 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults registers every key with v so that environment variables
// resolve even when no config file mentions the key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("admission.window_size", d.Admission.WindowSize)
	v.SetDefault("admission.lease_timeout", d.Admission.LeaseTimeout)
	v.SetDefault("admission.sweep_interval", d.Admission.SweepInterval)
	v.SetDefault("admission.max_queue_size", d.Admission.MaxQueueSize)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.max_attempts", d.Store.MaxAttempts)
	v.SetDefault("store.retry_backoff", d.Store.RetryBackoff)

	v.SetDefault("directory.path", d.Directory.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. The file format follows its extension
// (.yaml, .yml, .toml, .json). The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return cfg, nil
}

// SlogLevel converts Logging.Level to a slog.Level. Unknown values map to
// info; Validate rejects them beforehand.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var verrs ValidationErrors
	return errors.As(err, &verrs)
}
