// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"sqlide/cli/internal/recordset"
)

// Flags modify a single Execute call. They are never stored on the engine.
type Flags uint8

const (
	// Retaining appends results to the editor's list instead of replacing it.
	Retaining Flags = 1 << iota
	// NeedNonStdDelimiter splits on the dialect's routine delimiter so bodies of
	// routines and triggers keep their semicolons. PostgreSQL has none: dollar
	// quoting already protects them.
	NeedNonStdDelimiter
	// DontAddLimitClause runs SELECT statements without the configured row limit.
	DontAddLimitClause
	// ShowWarnings reports server warnings even when the config disables them.
	ShowWarnings
)

// Has reports whether every bit of x is set.
func (f Flags) Has(x Flags) bool { return f&x == x }

func (f Flags) String() string {
	var parts []string
	for _, fl := range []struct {
		bit  Flags
		name string
	}{
		{Retaining, "retaining"},
		{NeedNonStdDelimiter, "non-std-delimiter"},
		{DontAddLimitClause, "no-limit"},
		{ShowWarnings, "warnings"},
	} {
		if f.Has(fl.bit) {
			parts = append(parts, fl.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

var nextEditorID atomic.Int64

// Editor is one script buffer and the results its executions produced.
type Editor struct {
	id   int64
	name string

	// run is the result-list lock held for a whole execution; Execute only TryLocks it.
	run  sync.Mutex
	busy atomic.Bool
	// queued is set between Reserve and Unreserve, while an execution waits to start.
	queued atomic.Bool

	mu      sync.Mutex
	results []*recordset.Recordset
	seq     int
}

// NewEditor creates an empty editor.
func NewEditor(name string) *Editor {
	id := nextEditorID.Add(1)
	if name == "" {
		name = fmt.Sprintf("SQL File %d", id)
	}
	return &Editor{id: id, name: name}
}

func (ed *Editor) ID() int64    { return ed.id }
func (ed *Editor) Name() string { return ed.name }

// Busy reports whether an execution is running or waiting to run in this editor.
func (ed *Editor) Busy() bool { return ed.busy.Load() || ed.queued.Load() }

// Reserve claims ed for one execution that will start later. It fails when ed is
// busy, so each editor has at most one execution queued or running.
func (ed *Editor) Reserve() bool {
	if ed.busy.Load() {
		return false
	}
	return ed.queued.CompareAndSwap(false, true)
}

// Unreserve gives back a claim taken by Reserve.
func (ed *Editor) Unreserve() { ed.queued.Store(false) }

// Results returns the editor's recordsets in display order.
func (ed *Editor) Results() []*recordset.Recordset {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return append([]*recordset.Recordset(nil), ed.results...)
}

// Result returns the recordset with the given id.
func (ed *Editor) Result(id int64) (*recordset.Recordset, bool) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	for _, rs := range ed.results {
		if rs.ID() == id {
			return rs, true
		}
	}
	return nil, false
}

// HasPendingChanges reports whether any recordset has unapplied edits.
func (ed *Editor) HasPendingChanges() bool {
	for _, rs := range ed.Results() {
		if rs.HasPendingChanges() {
			return true
		}
	}
	return false
}

// CloseResult drops one recordset unless it has pending edits and force is false.
func (ed *Editor) CloseResult(id int64, force bool) bool {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	for i, rs := range ed.results {
		if rs.ID() != id {
			continue
		}
		if !force && !rs.CanClose() {
			return false
		}
		rs.Invalidate()
		ed.results = append(ed.results[:i], ed.results[i+1:]...)
		return true
	}
	return false
}

// nextCaption numbers result captions per editor: "Result 1", "users 2", ...
func (ed *Editor) nextCaption(base string) string {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	ed.seq++
	if base == "" {
		base = "Result"
	}
	return fmt.Sprintf("%s %d", base, ed.seq)
}

// resetResults drops every recordset that can close. Recordsets holding edits stay,
// in their current order, at the front of the list.
func (ed *Editor) resetResults() {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	kept := ed.results[:0]
	for _, rs := range ed.results {
		if rs.CanClose() {
			rs.Invalidate()
			continue
		}
		kept = append(kept, rs)
	}
	for i := len(kept); i < len(ed.results); i++ {
		ed.results[i] = nil
	}
	ed.results = kept
}

func (ed *Editor) addResult(rs *recordset.Recordset) {
	ed.mu.Lock()
	ed.results = append(ed.results, rs)
	ed.mu.Unlock()
}

// InvalidateResults marks every recordset invalid, e.g. when the session disconnects.
func (ed *Editor) InvalidateResults() {
	for _, rs := range ed.Results() {
		rs.Invalidate()
	}
}
