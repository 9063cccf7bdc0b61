// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// QueryRow runs a parameterized query and returns its first row, or nil when
// the query returns no rows.
func QueryRow(ctx context.Context, c Conn, query string, args ...any) ([]any, error) {
	rows, err := QueryAll(ctx, c, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// QueryAll runs a parameterized query and collects every row of its first result set.
func QueryAll(ctx context.Context, c Conn, query string, args ...any) ([][]any, error) {
	cur, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out [][]any
	if cur.NextResultSet() {
		for cur.Next() {
			vals, err := cur.Values()
			if err != nil {
				return nil, err
			}
			out = append(out, vals)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AsString renders a scanned value as text; nil becomes "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// AsInt64 converts integer-like scanned values.
func AsInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(AsString(x)), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// AsBool converts boolean-like scanned values, including MySQL's 0/1 integers.
func AsBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	if n, ok := AsInt64(v); ok {
		return n != 0
	}
	s := strings.ToLower(AsString(v))
	return s == "t" || s == "true" || s == "yes"
}
