// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package recordset turns a result set into an editable, in-memory table.
//
// A Recordset is editable only when its statement reads the columns of a single
// table, the table has a row identifier (primary key or NOT NULL unique index),
// and every identifier column is part of the result. Edits are kept locally and
// compiled into a minimal change script of DELETE, UPDATE and INSERT statements
// whose WHERE clauses use the identifier values as originally fetched.
package recordset

import (
	"strings"
	"sync"
	"sync/atomic"

	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/sqlparse"
)

const (
	// ReasonNotSingleTable is the read-only reason for statements that cannot be mapped to one table.
	ReasonNotSingleTable = "Statement must be a SELECT for columns of a single table with a primary key for its results to be editable."
	// ReasonNoIdentifier is the read-only reason for tables without a usable unique key.
	ReasonNoIdentifier = "The table has no unique row identifier (primary key or a NOT NULL unique index)"
)

var nextID atomic.Int64

// Column describes one result column.
type Column struct {
	Name     string
	TypeName string
	Kind     driver.TypeKind
	// Quoted is true when SQL literals of the column need quotes.
	Quoted bool
	Blob   bool
	// Source is the underlying table column, empty for expressions.
	Source string
}

// DeferredBlob stands in for a large value that was not kept while fetching.
type DeferredBlob struct{}

func (DeferredBlob) String() string { return "<BLOB>" }

type rowState int

const (
	rowClean rowState = iota
	rowModified
	rowInserted
)

type rowMeta struct {
	state   rowState
	orig    []any
	changed map[int]bool
}

// Options configures a new Recordset.
type Options struct {
	Caption string
	// SQL is the statement that produced the rows, as sent to the server.
	SQL     string
	Dialect *driver.Dialect
	// Target is the parsed single-table SELECT; nil makes the recordset read-only.
	Target *sqlparse.EditTarget
	// Schema is used when Target names no schema.
	Schema     string
	Keys       KeyResolver
	Blobs      BlobSource
	DeferBlobs bool
	Store      Store
}

// Recordset is one result set with its local edits.
type Recordset struct {
	id         int64
	caption    string
	sql        string
	dialect    *driver.Dialect
	target     *sqlparse.EditTarget
	schema     string
	table      string
	keys       KeyResolver
	blobs      BlobSource
	deferBlobs bool

	mu       sync.Mutex
	cols     []Column
	store    Store
	meta     []rowMeta
	deleted  [][]any
	keyCols  []int
	readOnly bool
	reason   string
	valid    bool
}

// New creates an empty recordset; Populate fills it.
func New(opts Options) *Recordset {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	r := &Recordset{
		id:         nextID.Add(1),
		caption:    opts.Caption,
		sql:        opts.SQL,
		dialect:    opts.Dialect,
		target:     opts.Target,
		schema:     opts.Schema,
		keys:       opts.Keys,
		blobs:      opts.Blobs,
		deferBlobs: opts.DeferBlobs,
		store:      opts.Store,
		valid:      true,
	}
	if opts.Target == nil {
		r.readOnly, r.reason = true, ReasonNotSingleTable
	} else {
		r.table = opts.Target.Table
		if opts.Target.Schema != "" {
			r.schema = opts.Target.Schema
		}
	}
	return r
}

func (r *Recordset) ID() int64       { return r.id }
func (r *Recordset) Caption() string { return r.caption }
func (r *Recordset) SQL() string     { return r.sql }

// Table returns the schema and table the rows come from, empty when not editable.
func (r *Recordset) Table() (schema, table string) { return r.schema, r.table }

// QualifiedTable returns the display name of the source table.
func (r *Recordset) QualifiedTable() string {
	if r.schema == "" {
		return r.table
	}
	return r.schema + "." + r.table
}

func (r *Recordset) Columns() []Column {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Column(nil), r.cols...)
}

// RowCount returns the number of rows currently in the recordset.
func (r *Recordset) RowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Len()
}

// Value returns a cell; blob cells that were not kept return DeferredBlob.
func (r *Recordset) Value(row, col int) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row < 0 || row >= r.store.Len() || col < 0 || col >= len(r.cols) {
		return nil
	}
	return r.store.Row(row)[col]
}

// Row returns a copy of a row.
func (r *Recordset) Row(row int) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row < 0 || row >= r.store.Len() {
		return nil
	}
	return append([]any(nil), r.store.Row(row)...)
}

func (r *Recordset) IsReadOnly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readOnly
}

func (r *Recordset) ReadOnlyReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func (r *Recordset) setReadOnly(reason string) {
	r.readOnly, r.reason = true, reason
}

// KeyColumns returns the names of the row identifier columns.
func (r *Recordset) KeyColumns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.keyCols))
	for i, c := range r.keyCols {
		names[i] = r.cols[c].Source
	}
	return names
}

// IsValid is false once the recordset was invalidated, e.g. after its
// connection was replaced.
func (r *Recordset) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valid
}

func (r *Recordset) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

// resolveSources maps result columns to table columns using the parsed SELECT list.
func resolveSources(target *sqlparse.EditTarget, cols []Column) {
	if target == nil {
		return
	}
	star := false
	for _, item := range target.Columns {
		if item.Name == "*" {
			star = true
		}
	}
	if !star && len(target.Columns) == len(cols) {
		for i := range cols {
			cols[i].Source = target.Columns[i].Name
		}
		return
	}
	for i := range cols {
		found := false
		for _, item := range target.Columns {
			if item.Name == "*" {
				continue
			}
			label := item.Alias
			if label == "" {
				label = item.Name
			}
			if label != "" && strings.EqualFold(label, cols[i].Name) {
				cols[i].Source, found = item.Name, true
				break
			}
		}
		if !found && star {
			cols[i].Source = cols[i].Name
		}
	}
}
