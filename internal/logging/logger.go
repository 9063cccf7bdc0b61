// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// VerboseEnv enables debug output for every package when set to "1".
const VerboseEnv = "SQLIDE_VERBOSE"

// IsVerbose reports whether verbose mode is enabled.
func IsVerbose() bool {
	return os.Getenv(VerboseEnv) == "1"
}

// New returns a structured logger writing to stderr at the given level
// ("trace", "debug", "info", "warn", "error", "disabled"). Verbose mode forces debug.
func New(level string) *pterm.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter is like New but writes to w.
func NewWithWriter(level string, w io.Writer) *pterm.Logger {
	lvl := ParseLevel(level)
	if IsVerbose() && lvl > pterm.LogLevelDebug {
		lvl = pterm.LogLevelDebug
	}
	return pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
}

// Discard returns a logger that drops everything.
func Discard() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled).WithWriter(io.Discard)
}

// ParseLevel maps a config level name to a pterm log level. Unknown names map to info.
func ParseLevel(level string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "disabled", "off", "none":
		return pterm.LogLevelDisabled
	default:
		return pterm.LogLevelInfo
	}
}
