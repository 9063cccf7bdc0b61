// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"context"
	"strings"
	"sync"

	"sqlide/cli/internal/driver"
)

// RowIdentifier is the best unique key of a table: the primary key when there is
// one, else a unique index whose columns are all NOT NULL.
type RowIdentifier struct {
	Index   string
	Columns []string
}

// KeyResolver finds the row identifier of a table. A nil identifier means the
// table has none.
type KeyResolver interface {
	BestRowIdentifier(ctx context.Context, schema, table string) (*RowIdentifier, error)
}

// QueryFunc runs a metadata query and returns all rows of its first result set.
type QueryFunc func(ctx context.Context, query string, args ...any) ([][]any, error)

// Inspector looks up row identifiers through the dialect's catalog query and
// caches them per table until invalidated.
type Inspector struct {
	// dialect supplies the catalog query
	dialect *driver.Dialect
	// query runs on the auxiliary connection
	query QueryFunc
	// cache stores identifiers keyed by schema.table; nil entries cache "no key"
	cache map[string]*RowIdentifier
	mu    sync.RWMutex
}

// NewInspector creates an Inspector that runs catalog queries through query.
func NewInspector(d *driver.Dialect, query QueryFunc) *Inspector {
	return &Inspector{
		dialect: d,
		query:   query,
		cache:   make(map[string]*RowIdentifier),
	}
}

func cacheKey(schema, table string) string {
	return schema + "." + table
}

// BestRowIdentifier returns the cached identifier or queries the catalog.
func (si *Inspector) BestRowIdentifier(ctx context.Context, schema, table string) (*RowIdentifier, error) {
	key := cacheKey(schema, table)
	si.mu.RLock()
	if id, exists := si.cache[key]; exists {
		si.mu.RUnlock()
		return id, nil
	}
	si.mu.RUnlock()

	rows, err := si.query(ctx, si.dialect.BestRowIdentifierQuery, schema, table)
	if err != nil {
		return nil, err
	}
	id := pickIdentifier(rows)

	si.mu.Lock()
	si.cache[key] = id
	si.mu.Unlock()
	return id, nil
}

// pickIdentifier takes rows of (index, column, nullable), best index first,
// and returns the first index with no nullable column.
func pickIdentifier(rows [][]any) *RowIdentifier {
	var (
		cur      *RowIdentifier
		nullable bool
	)
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		index := driver.AsString(r[0])
		if cur == nil || cur.Index != index {
			if cur != nil && !nullable {
				return cur
			}
			cur, nullable = &RowIdentifier{Index: index}, false
		}
		cur.Columns = append(cur.Columns, driver.AsString(r[1]))
		if driver.AsBool(r[2]) {
			nullable = true
		}
	}
	if cur != nil && !nullable {
		return cur
	}
	return nil
}

// Invalidate forgets the identifier of one table.
func (si *Inspector) Invalidate(schema, table string) {
	si.mu.Lock()
	defer si.mu.Unlock()
	delete(si.cache, cacheKey(schema, table))
}

// InvalidateSchema forgets every table of schema.
func (si *Inspector) InvalidateSchema(schema string) {
	si.mu.Lock()
	defer si.mu.Unlock()
	prefix := schema + "."
	for k := range si.cache {
		if strings.HasPrefix(k, prefix) {
			delete(si.cache, k)
		}
	}
}

// ClearCache forgets everything.
func (si *Inspector) ClearCache() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.cache = make(map[string]*RowIdentifier)
}
