package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timerkit/internal/logging"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 5*time.Minute, cfg.DefaultDuration())
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout())
	assert.Equal(t, filepath.Join(DataDir(), "sessions.db"), cfg.Storage.Path)
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("TIMERKIT_DATA_DIR", "/tmp/timerkit-test")
	assert.Equal(t, "/tmp/timerkit-test", DataDir())
	assert.Equal(t, "/tmp/timerkit-test/master.key", DefaultConfig().Storage.KeyPath)
}

func TestConfigPathOverride(t *testing.T) {
	t.Setenv("TIMERKIT_CONFIG", "/etc/timerkit.yaml")
	assert.Equal(t, "/etc/timerkit.yaml", ConfigPath())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Timer, cfg.Timer)
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"config.toml", "[timer]\ntick_interval_ms = 250\n\n[notify]\nenabled = true\n"},
		{"config.json", `{"timer": {"tick_interval_ms": 250}, "notify": {"enabled": true}}`},
		{"config.yaml", "timer:\n  tick_interval_ms: 250\nnotify:\n  enabled: true\n"},
		{"config", "[timer]\ntick_interval_ms = 250\n[notify]\nenabled = true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
			assert.True(t, cfg.Notify.Enabled)
			// Untouched fields keep their defaults.
			assert.Equal(t, 300, cfg.Timer.DefaultDurationSec)
			assert.Equal(t, "timerkit", cfg.Notify.AppName)
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("timer = [[["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 9
	cfg.Timer.TickIntervalMs = 10
	cfg.Storage.Path = ""
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "syslog"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = "no-port"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	for _, field := range []string{
		"version",
		"timer.tick_interval_ms",
		"storage.path",
		"logging.level",
		"logging.output",
		"metrics.listen_addr",
	} {
		assert.True(t, verrs.Has(field), field)
	}
	assert.Contains(t, err.Error(), "config: timer.tick_interval_ms: must be at least 50ms")
}

func TestValidateZeroDefaultDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timer.DefaultDurationSec = 0
	assert.NoError(t, cfg.Validate())

	cfg.Timer.ZeroDurationCompletes = false
	assert.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TIMERKIT_STORAGE_PATH", "/data/s.db")
	t.Setenv("TIMERKIT_TICK_INTERVAL_MS", "125")
	t.Setenv("TIMERKIT_LOG_LEVEL", "debug")
	t.Setenv("TIMERKIT_METRICS_ADDR", ":9999")
	t.Setenv("TIMERKIT_NOTIFY", "true")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/data/s.db", cfg.Storage.Path)
	assert.Equal(t, 125*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.ListenAddr)
	assert.True(t, cfg.Notify.Enabled)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"c.toml", "c.json", "c.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Timer.TickIntervalMs = 400
			cfg.Metrics.Enabled = true
			require.NoError(t, Save(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cp := cfg.Clone()
	cp.Timer.TickIntervalMs = 77
	assert.Equal(t, 1000, cfg.Timer.TickIntervalMs)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "data", "s.db")
	cfg.Storage.KeyPath = filepath.Join(dir, "keys", "master.key")
	cfg.Storage.LockDir = filepath.Join(dir, "locks")

	require.NoError(t, cfg.EnsureDirectories())
	for _, sub := range []string{"data", "keys", "locks"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoggingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	lc, err := cfg.LoggingConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, int64(10), lc.MaxSize)
	assert.Equal(t, "timerkit", lc.Component)
}

func TestLoaderHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[timer]\ntick_interval_ms = 1000\n"), 0644))

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickInterval())

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[timer]\ntick_interval_ms = 200\n"), 0644))

	select {
	case c := <-changed:
		assert.Equal(t, 200*time.Millisecond, c.TickInterval())
		assert.Equal(t, c, l.Config())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}

func TestLoaderReportsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[timer]\ntick_interval_ms = 1000\n"), 0644))

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[timer]\ntick_interval_ms = 1\n"), 0644))

	select {
	case err := <-l.Errors():
		assert.Contains(t, err.Error(), "tick_interval_ms")
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported for invalid config")
	}
	assert.Equal(t, time.Second, l.Config().TickInterval())
}
