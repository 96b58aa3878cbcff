// Package xdg provides XDG Base Directory paths for Emberfall.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "emberfall"

// ConfigDir returns the XDG config directory for emberfall.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the standard location of the server config
// file, used when no --config flag is given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
