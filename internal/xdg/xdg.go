// Package xdg resolves the XDG Base Directory locations used by sqlide.
// Configuration lives under $XDG_CONFIG_HOME/sqlide; statement history and the
// shell's readline history live under $XDG_STATE_HOME/sqlide. Both fall back to the
// traditional ~/.config and ~/.local/state locations when the variables are unset.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "sqlide"

// ConfigDir returns the XDG config directory for sqlide, creating it with 0700 if missing.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for sqlide, creating it with 0700 if missing.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// StateFile returns the path of name inside StateDir.
func StateFile(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func ensure(env, homeRel string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
