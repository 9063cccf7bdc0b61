// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package history

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/xdg"
)

const historyFile = "history.json"

// Item is one executed statement.
type Item struct {
	Time   time.Time `json:"time"`
	Schema string    `json:"schema,omitempty"`
	SQL    string    `json:"sql"`
}

// History is the bounded statement history. A History with an empty path is
// kept in memory only.
type History struct {
	mu     sync.Mutex
	items  []Item
	max    int
	path   string
	logger *pterm.Logger
}

// New creates an empty history stored at path.
func New(max int, path string, logger *pterm.Logger) *History {
	if logger == nil {
		logger = logging.Discard()
	}
	return &History{max: max, path: path, logger: logger}
}

// DefaultPath returns the history file in the XDG state dir.
func DefaultPath() (string, error) {
	return xdg.StateFile(historyFile)
}

// Open loads the history from the default path. A missing file yields an empty history.
func Open(max int, logger *pterm.Logger) (*History, error) {
	p, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	h := New(max, p, logger)
	if err := h.Load(); err != nil {
		return h, err
	}
	return h, nil
}

// Load replaces the in-memory items with the file contents.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	h.logger.Debug("loading statement history", h.logger.Args("path", h.path))

	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.logger.Debug("no statement history yet")
			return nil
		}
		return err
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		h.logger.Warn("statement history is corrupt, starting empty", h.logger.Args("error", err))
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = items
	h.trim()
	return nil
}

// Save writes the history with 0600 permissions.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}
	h.mu.Lock()
	b, err := json.MarshalIndent(h.items, "", "  ")
	n := len(h.items)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.logger.Debug("saving statement history", h.logger.Args("path", h.path, "entries", n))
	return os.WriteFile(h.path, b, 0o600)
}

// Add records statements run against schema. A statement equal to the most
// recent entry is not recorded twice.
func (h *History) Add(schema string, statements ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for _, s := range statements {
		if s == "" {
			continue
		}
		if n := len(h.items); n > 0 && h.items[n-1].SQL == s && h.items[n-1].Schema == schema {
			h.items[n-1].Time = now
			continue
		}
		h.items = append(h.items, Item{Time: now, Schema: schema, SQL: s})
	}
	h.trim()
}

func (h *History) trim() {
	if h.max > 0 && len(h.items) > h.max {
		h.items = append(h.items[:0], h.items[len(h.items)-h.max:]...)
	}
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Item(nil), h.items...)
}

// Clear drops every entry and removes the file.
func (h *History) Clear() error {
	h.mu.Lock()
	h.items = nil
	h.mu.Unlock()
	if h.path == "" {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
