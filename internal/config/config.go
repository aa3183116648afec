// Package config handles configuration loading and validation for timerkit.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"timerkit/internal/logging"
	"timerkit/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// Config is the complete timerkit configuration.
type Config struct {
	Version int           `toml:"version" json:"version" yaml:"version"`
	Timer   TimerConfig   `toml:"timer" json:"timer" yaml:"timer"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
	Notify  NotifyConfig  `toml:"notify" json:"notify" yaml:"notify"`
}

// TimerConfig controls new sessions and the polling loop.
type TimerConfig struct {
	// DefaultDurationSec is used by "timerctl new" without --duration.
	DefaultDurationSec int `toml:"default_duration_sec" json:"default_duration_sec" yaml:"default_duration_sec"`
	// TickIntervalMs is the polling interval of a running timer.
	TickIntervalMs int `toml:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"`
	// ZeroDurationCompletes allows zero-length timers, which complete as
	// soon as they start. When false they are rejected at creation.
	ZeroDurationCompletes bool `toml:"zero_duration_completes" json:"zero_duration_completes" yaml:"zero_duration_completes"`
}

// StorageConfig locates the session database and its integrity key.
type StorageConfig struct {
	Path          string `toml:"path" json:"path" yaml:"path"`
	KeyPath       string `toml:"key_path" json:"key_path" yaml:"key_path"`
	LockDir       string `toml:"lock_dir" json:"lock_dir" yaml:"lock_dir"`
	BusyTimeoutMs int    `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint of "timerctl run".
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// NotifyConfig controls desktop notifications on completion.
type NotifyConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	AppName   string `toml:"app_name" json:"app_name" yaml:"app_name"`
	TimeoutMs int    `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Timer: TimerConfig{
			DefaultDurationSec:    300,
			TickIntervalMs:        1000,
			ZeroDurationCompletes: true,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dataDir, "sessions.db"),
			KeyPath:       filepath.Join(dataDir, "master.key"),
			LockDir:       filepath.Join(StateDir(), "locks"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Notify: NotifyConfig{
			Enabled:   false,
			AppName:   "timerkit",
			TimeoutMs: 5000,
		},
	}
}

// Load reads the configuration at path (defaults when it does not exist),
// applies environment overrides and validates the result. An empty path
// means ConfigPath().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically, in the format named by the extension
// (TOML by default).
func Save(cfg *Config, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(cfg)
		data = []byte(b.String())
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return security.WriteSecureFile(path, data, security.PermPublicFile)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// EnsureDirectories creates the storage and lock directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Storage.KeyPath),
		c.Storage.LockDir,
	} {
		if dir == "" || dir == "." {
			continue
		}
		if err := security.EnsureSecureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies TIMERKIT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TIMERKIT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TIMERKIT_KEY_PATH"); v != "" {
		c.Storage.KeyPath = v
	}
	if v := os.Getenv("TIMERKIT_LOCK_DIR"); v != "" {
		c.Storage.LockDir = v
	}
	if v := os.Getenv("TIMERKIT_TICK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timer.TickIntervalMs = n
		}
	}
	if v := os.Getenv("TIMERKIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TIMERKIT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TIMERKIT_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("TIMERKIT_NOTIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Notify.Enabled = b
		}
	}
}

// TickInterval returns the polling interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

// DefaultDuration returns the duration of timers created without one.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.Timer.DefaultDurationSec) * time.Second
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// NotifyTimeout returns how long a desktop notification stays visible.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutMs) * time.Millisecond
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc, nil
}
