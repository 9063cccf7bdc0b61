// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package history keeps the two records of what a session ran: the execution log,
// whose entries are created as "Running..." and later replaced in place with the
// outcome, and the statement history, a bounded list of executed SQL persisted in
// the XDG state directory across runs.
package history

import (
	"sync"
	"time"

	"sqlide/cli/internal/events"
)

// Severity classifies an execution log entry.
type Severity string

const (
	SeverityBusy    Severity = "busy"
	SeverityOK      Severity = "ok"
	SeverityNote    Severity = "note"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is one execution log row.
type Entry struct {
	ID       int       `json:"id"`
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Action   string    `json:"action"`
	Message  string    `json:"message"`
	Duration string    `json:"duration"`
}

// Log is the bounded, in-memory execution log of a session.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	nextID  int
	bus     *events.Bus
	now     func() time.Time
}

// NewLog creates a log that keeps at most max entries (0 means unbounded) and
// publishes EventLogChanged on bus for every add and replace.
func NewLog(max int, bus *events.Bus) *Log {
	return &Log{max: max, nextID: 1, bus: bus, now: time.Now}
}

// Add appends an entry and returns its id.
func (l *Log) Add(sev Severity, action, message, duration string) int {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, Entry{
		ID:       id,
		Time:     l.now(),
		Severity: sev,
		Action:   action,
		Message:  message,
		Duration: duration,
	})
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.max:]...)
	}
	l.mu.Unlock()

	l.bus.Publish(events.Event{Type: events.EventLogChanged, LogID: id})
	return id
}

// Set replaces entry id in place. An empty action keeps the current one.
// It reports false when id is unknown or already evicted.
func (l *Log) Set(id int, sev Severity, action, message, duration string) bool {
	l.mu.Lock()
	i := l.index(id)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	e := &l.entries[i]
	e.Severity = sev
	if action != "" {
		e.Action = action
	}
	e.Message = message
	e.Duration = duration
	l.mu.Unlock()

	l.bus.Publish(events.Event{Type: events.EventLogChanged, LogID: id})
	return true
}

// index returns the slice position of id; ids are increasing so it can search.
func (l *Log) index(id int) int {
	lo, hi := 0, len(l.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case l.entries[mid].ID == id:
			return mid
		case l.entries[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

// Entry returns entry id.
func (l *Log) Entry(id int) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.index(id); i >= 0 {
		return l.entries[i], true
	}
	return Entry{}, false
}

// Entries returns a copy of all retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Since returns the retained entries with an id of at least id.
func (l *Log) Since(id int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ID >= id {
			out = append(out, e)
		}
	}
	return out
}

// NextID returns the id the next Add will assign.
func (l *Log) NextID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// Count returns how many retained entries have severity sev.
func (l *Log) Count(sev Severity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
