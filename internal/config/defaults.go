package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// DataDir returns the directory holding the session database and key.
// TIMERKIT_DATA_DIR overrides the XDG data directory.
func DataDir() string {
	if dir := os.Getenv("TIMERKIT_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "timerkit")
}

// StateDir returns the directory for owner locks and logs.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "timerkit")
}

// ConfigPath returns the configuration file path. TIMERKIT_CONFIG
// overrides the XDG location.
func ConfigPath() string {
	if p := os.Getenv("TIMERKIT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, "timerkit", "config.toml")
}
