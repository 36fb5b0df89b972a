// Package paths resolves the directories eddev reads from, following XDG conventions.
package paths

import (
	"os"
	"path/filepath"
)

// EnvConfigDir overrides the config directory when set.
const EnvConfigDir = "EDDEV_CONFIG_DIR"

// Env is the interface for environment variable lookups.
// Implementations must return "" for unset variables.
type Env interface {
	Get(key string) string
}

// OSEnv reads from the process environment.
type OSEnv struct{}

// Get returns the value of key, or "" when unset.
func (OSEnv) Get(key string) string {
	return os.Getenv(key)
}

// ConfigDir returns the directory holding the user's eddev .env file.
//
// Resolution order:
//  1. EDDEV_CONFIG_DIR (if set)
//  2. XDG_CONFIG_HOME/eddev (if set)
//  3. ~/.config/eddev
//
// Returns "" when nothing is set and homeDir is empty.
// ~ inside env vars is treated as literal (not expanded).
func ConfigDir(env Env, homeDir string) string {
	if v := env.Get(EnvConfigDir); v != "" {
		return v
	}
	if v := env.Get("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "eddev")
	}
	if homeDir == "" {
		return ""
	}
	return filepath.Join(homeDir, ".config", "eddev")
}
