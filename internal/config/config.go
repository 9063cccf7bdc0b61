// Package config loads and stores sqlide preferences in the XDG config dir.
// Only non-secret settings are kept here; passwords and saved DSNs go to the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"sqlide/cli/internal/xdg"
)

// Config holds non-sensitive settings.
type Config struct {
	LogLevel string        `json:"log_level"`
	Editor   EditorConfig  `json:"editor"`
	Session  SessionConfig `json:"session"`
	History  HistoryConfig `json:"history"`
}

// EditorConfig controls how scripts are executed and how results are fetched.
type EditorConfig struct {
	// LimitRows appends a LIMIT clause to plain SELECT statements.
	LimitRows      bool `json:"limit_rows"`
	LimitRowsCount int  `json:"limit_rows_count"`
	// ContinueOnError keeps running the rest of a script after a failed statement.
	ContinueOnError bool `json:"continue_on_error"`
	ShowWarnings    bool `json:"show_warnings"`
	// OptimizeBlobFetching defers large values until they are displayed.
	OptimizeBlobFetching bool `json:"optimize_blob_fetching"`
	// MaxQuerySizeToHistory skips history entries for scripts larger than this many bytes.
	MaxQuerySizeToHistory int `json:"max_query_size_to_history"`
}

// SessionConfig controls connection setup.
type SessionConfig struct {
	Autocommit    bool     `json:"autocommit"`
	SafeUpdates   bool     `json:"safe_updates"`
	DefaultSchema string   `json:"default_schema"`
	StartupSQL    []string `json:"startup_sql"`
	// KeepAliveSeconds pings both connections on this interval; 0 disables it.
	KeepAliveSeconds int `json:"keepalive_seconds"`
}

// HistoryConfig bounds the execution log and the statement history.
type HistoryConfig struct {
	LogMaxEntries     int `json:"log_max_entries"`
	HistoryMaxEntries int `json:"history_max_entries"`
}

// KeepAlive returns the keep-alive interval as a duration.
func (s SessionConfig) KeepAlive() time.Duration {
	return time.Duration(s.KeepAliveSeconds) * time.Second
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		LogLevel: "info",
		Editor: EditorConfig{
			LimitRows:             true,
			LimitRowsCount:        1000,
			ShowWarnings:          true,
			OptimizeBlobFetching:  true,
			MaxQuerySizeToHistory: 64 * 1024,
		},
		Session: SessionConfig{
			Autocommit:  true,
			SafeUpdates: true,
		},
		History: HistoryConfig{
			LogMaxEntries:     5000,
			HistoryMaxEntries: 1000,
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
// Fields absent from the file keep their default values.
func Load() (Config, error) {
	c := Default()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
