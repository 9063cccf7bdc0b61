// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"context"
	"strings"

	"sqlide/cli/internal/driver"
	sqlerr "sqlide/cli/internal/errors"
)

// ReasonKeyNotSelected is the read-only reason for results that omit identifier columns.
const ReasonKeyNotSelected = "The result does not include every column of the table's unique row identifier"

// MsgStopped is returned when the stop flag is raised while fetching.
const MsgStopped = "Query execution has been stopped"

// Populate reads the current result set of cur into the recordset and returns the
// number of rows read. stop is polled before every row; when it reports true the
// fetch ends with a Cancelled error and the rows read so far are kept.
func (r *Recordset) Populate(ctx context.Context, cur driver.Cursor, stop func() bool) (int, error) {
	dcols := cur.Columns()
	cols := make([]Column, len(dcols))
	for i, c := range dcols {
		cols[i] = Column{Name: c.Name, TypeName: c.TypeName, Kind: c.Kind, Quoted: c.Quoted, Blob: c.Blob}
	}

	r.mu.Lock()
	editable := !r.readOnly
	r.mu.Unlock()

	var keyCols []int
	reason := ""
	if editable {
		resolveSources(r.target, cols)
		keyCols, reason = r.lookupKey(ctx, cols)
	}

	r.mu.Lock()
	r.cols = cols
	if reason != "" {
		r.setReadOnly(reason)
	}
	r.keyCols = keyCols
	deferBlobs := r.deferBlobs && !r.readOnly
	r.mu.Unlock()

	n := 0
	for cur.Next() {
		if stop != nil && stop() {
			return n, sqlerr.New(sqlerr.Cancelled, MsgStopped)
		}
		if err := ctx.Err(); err != nil {
			return n, sqlerr.Wrap(sqlerr.Cancelled, MsgStopped, err)
		}
		vals, err := cur.Values()
		if err != nil {
			return n, err
		}
		row := make([]any, len(cols))
		copy(row, vals)
		if deferBlobs {
			for i, c := range cols {
				if c.Blob && row[i] != nil {
					row[i] = DeferredBlob{}
				}
			}
		}
		r.mu.Lock()
		r.store.Append(row)
		r.meta = append(r.meta, rowMeta{state: rowClean})
		r.mu.Unlock()
		n++
	}
	return n, nil
}

// lookupKey finds the identifier columns in the result, or returns why the rows
// cannot be edited.
func (r *Recordset) lookupKey(ctx context.Context, cols []Column) ([]int, string) {
	if r.keys == nil {
		return nil, ReasonNoIdentifier
	}
	id, err := r.keys.BestRowIdentifier(ctx, r.schema, r.table)
	if err != nil {
		return nil, sqlerr.MessageOf(err)
	}
	if id == nil || len(id.Columns) == 0 {
		return nil, ReasonNoIdentifier
	}
	keyCols := make([]int, 0, len(id.Columns))
	for _, name := range id.Columns {
		idx := -1
		for i, c := range cols {
			if c.Source != "" && strings.EqualFold(c.Source, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ReasonKeyNotSelected
		}
		keyCols = append(keyCols, idx)
	}
	return keyCols, ""
}
