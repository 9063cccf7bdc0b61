// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"fmt"
	"reflect"
	"strings"

	sqlerr "sqlide/cli/internal/errors"
)

// Statement is one parameterized statement of a change script.
type Statement struct {
	SQL  string
	Args []any
}

func (r *Recordset) checkEditable() error {
	if !r.valid {
		return sqlerr.New(sqlerr.EditConflict, "Recordset is no longer valid")
	}
	if r.readOnly {
		return sqlerr.New(sqlerr.EditConflict, "Recordset is read-only: "+r.reason)
	}
	return nil
}

// SetField changes one cell. Setting a cell back to its fetched value clears the change.
func (r *Recordset) SetField(row, col int, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEditable(); err != nil {
		return err
	}
	if row < 0 || row >= r.store.Len() || col < 0 || col >= len(r.cols) {
		return sqlerr.New(sqlerr.EditConflict, fmt.Sprintf("cell (%d, %d) is out of range", row, col))
	}
	if r.cols[col].Source == "" {
		return sqlerr.New(sqlerr.EditConflict, fmt.Sprintf("Column %s is not editable", r.cols[col].Name))
	}

	m := &r.meta[row]
	if m.changed == nil {
		m.changed = make(map[int]bool)
	}
	if m.state == rowInserted {
		r.store.Set(row, col, v)
		m.changed[col] = true
		return nil
	}
	if m.orig == nil {
		m.orig = append([]any(nil), r.store.Row(row)...)
	}
	r.store.Set(row, col, v)
	if reflect.DeepEqual(m.orig[col], v) {
		delete(m.changed, col)
	} else {
		m.changed[col] = true
	}
	if len(m.changed) == 0 {
		m.state = rowClean
	} else {
		m.state = rowModified
	}
	return nil
}

// AddRow appends a new row; missing trailing values are NULL. It returns the row index.
func (r *Recordset) AddRow(vals []any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEditable(); err != nil {
		return -1, err
	}
	if len(vals) > len(r.cols) {
		return -1, sqlerr.New(sqlerr.EditConflict, fmt.Sprintf("row has %d values for %d columns", len(vals), len(r.cols)))
	}
	row := make([]any, len(r.cols))
	copy(row, vals)
	changed := make(map[int]bool)
	for i := range vals {
		if r.cols[i].Source != "" {
			changed[i] = true
		}
	}
	idx := r.store.Append(row)
	r.meta = append(r.meta, rowMeta{state: rowInserted, changed: changed})
	return idx, nil
}

// DeleteRow removes a row. Fetched rows are remembered so the change script deletes them.
func (r *Recordset) DeleteRow(row int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEditable(); err != nil {
		return err
	}
	if row < 0 || row >= r.store.Len() {
		return sqlerr.New(sqlerr.EditConflict, fmt.Sprintf("row %d is out of range", row))
	}
	m := r.meta[row]
	if m.state != rowInserted {
		orig := m.orig
		if orig == nil {
			orig = append([]any(nil), r.store.Row(row)...)
		}
		r.deleted = append(r.deleted, orig)
	}
	r.store.Delete(row)
	r.meta = append(r.meta[:row], r.meta[row+1:]...)
	return nil
}

// HasPendingChanges reports whether there are edits not yet applied.
func (r *Recordset) HasPendingChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending()
}

func (r *Recordset) pending() bool {
	if len(r.deleted) > 0 {
		return true
	}
	for _, m := range r.meta {
		if m.state != rowClean {
			return true
		}
	}
	return false
}

// CanClose reports whether the recordset can be dropped without losing edits.
func (r *Recordset) CanClose() bool {
	return !r.HasPendingChanges()
}

// MarkClean accepts the current contents as the fetched state, after a successful apply.
func (r *Recordset) MarkClean() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = nil
	for i := range r.meta {
		r.meta[i] = rowMeta{state: rowClean}
	}
}

// DiscardChanges reverts every edit. Deleted rows are appended back at the end.
func (r *Recordset) DiscardChanges() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.meta) - 1; i >= 0; i-- {
		m := r.meta[i]
		switch m.state {
		case rowInserted:
			r.store.Delete(i)
			r.meta = append(r.meta[:i], r.meta[i+1:]...)
		case rowModified, rowClean:
			if m.orig != nil {
				for c, v := range m.orig {
					r.store.Set(i, c, v)
				}
			}
			r.meta[i] = rowMeta{state: rowClean}
		}
	}
	for _, row := range r.deleted {
		r.store.Append(row)
		r.meta = append(r.meta, rowMeta{state: rowClean})
	}
	r.deleted = nil
}

// CompileChangeScript returns the statements that write the pending edits back:
// deletes first, then updates of changed columns only, then inserts. Rows are
// located by their identifier values as originally fetched.
func (r *Recordset) CompileChangeScript() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readOnly || r.dialect == nil {
		return nil
	}
	table := r.dialect.QualifiedName(r.schema, r.table)

	var script []Statement
	for _, orig := range r.deleted {
		where, args := r.keyPredicate(orig, 1, false)
		script = append(script, Statement{SQL: "DELETE FROM " + table + " WHERE " + where, Args: args})
	}

	for i, m := range r.meta {
		if m.state != rowModified {
			continue
		}
		row := r.store.Row(i)
		var (
			sets []string
			args []any
		)
		for c := range r.cols {
			if !m.changed[c] {
				continue
			}
			args = append(args, row[c])
			sets = append(sets, r.dialect.QuoteIdent(r.cols[c].Source)+" = "+r.dialect.Placeholder(len(args)))
		}
		where, keyArgs := r.keyPredicate(m.orig, len(args)+1, false)
		script = append(script, Statement{
			SQL:  "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where,
			Args: append(args, keyArgs...),
		})
	}

	for i, m := range r.meta {
		if m.state != rowInserted || len(m.changed) == 0 {
			continue
		}
		row := r.store.Row(i)
		var (
			names, marks []string
			args         []any
		)
		for c := range r.cols {
			if !m.changed[c] {
				continue
			}
			args = append(args, row[c])
			names = append(names, r.dialect.QuoteIdent(r.cols[c].Source))
			marks = append(marks, r.dialect.Placeholder(len(args)))
		}
		script = append(script, Statement{
			SQL:  "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")",
			Args: args,
		})
	}
	return script
}

// keyPredicate builds the identifier WHERE clause with placeholders numbered from
// first. byLabel names the columns as they appear in the result instead of the table.
func (r *Recordset) keyPredicate(orig []any, first int, byLabel bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, c := range r.keyCols {
		col := r.cols[c].Source
		if byLabel {
			col = r.cols[c].Name
		}
		name := r.dialect.QuoteIdent(col)
		if orig[c] == nil {
			conds = append(conds, name+" IS NULL")
			continue
		}
		conds = append(conds, name+" = "+r.dialect.Placeholder(first+len(args)))
		args = append(args, orig[c])
	}
	return strings.Join(conds, " AND "), args
}
