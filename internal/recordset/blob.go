// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"context"
	"fmt"

	"sqlide/cli/internal/driver"
	sqlerr "sqlide/cli/internal/errors"
)

// BlobSource runs the query that fetches one deferred value.
type BlobSource interface {
	QueryAll(ctx context.Context, query string, args ...any) ([][]any, error)
}

// QueryAll lets a plain QueryFunc serve as a BlobSource.
func (f QueryFunc) QueryAll(ctx context.Context, query string, args ...any) ([][]any, error) {
	return f(ctx, query, args...)
}

// FetchBlob returns the full value of a cell. Deferred values are read from the
// server by re-running the recordset's statement filtered to the row's identifier,
// then kept in place of the placeholder.
func (r *Recordset) FetchBlob(ctx context.Context, row, col int) ([]byte, error) {
	r.mu.Lock()
	if row < 0 || row >= r.store.Len() || col < 0 || col >= len(r.cols) {
		r.mu.Unlock()
		return nil, sqlerr.New(sqlerr.EditConflict, fmt.Sprintf("cell (%d, %d) is out of range", row, col))
	}
	v := r.store.Row(row)[col]
	if _, deferred := v.(DeferredBlob); !deferred {
		r.mu.Unlock()
		return blobBytes(v), nil
	}
	if r.blobs == nil || len(r.keyCols) == 0 {
		r.mu.Unlock()
		return nil, sqlerr.New(sqlerr.Unsupported, "value was not fetched and cannot be loaded")
	}
	keys := r.meta[row].orig
	if keys == nil {
		keys = r.store.Row(row)
	}
	where, args := r.keyPredicate(keys, 1, true)
	query := r.dialect.BlobQuery(r.cols[col].Name, r.sql, where)
	r.mu.Unlock()

	rows, err := r.blobs.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, sqlerr.New(sqlerr.EditConflict, "row no longer exists on the server")
	}
	data := blobBytes(rows[0][0])
	if len(rows[0]) > 1 {
		if n, ok := driver.AsInt64(rows[0][1]); ok && int64(len(data)) != n {
			return nil, sqlerr.New(sqlerr.StatementError, fmt.Sprintf("value truncated: got %d of %d bytes", len(data), n))
		}
	}

	r.mu.Lock()
	if row < r.store.Len() {
		if _, still := r.store.Row(row)[col].(DeferredBlob); still {
			r.store.Set(row, col, data)
			if orig := r.meta[row].orig; orig != nil {
				orig[col] = data
			}
		}
	}
	r.mu.Unlock()
	return data, nil
}

func blobBytes(v any) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return []byte(driver.AsString(x))
	}
}
