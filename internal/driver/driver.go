// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package driver is the boundary between sqlide and the database client libraries.
// A Driver opens Conns; a Conn executes raw SQL text and exposes every result the
// server returns through a Cursor, one result set at a time and one row at a time,
// so callers can stream large results and stop between rows.
//
// Everything dialect specific (kill statement, schema switching, catalog queries,
// error-code tables, type classification) is data on a Dialect. Two dialects are
// provided: MySQL over github.com/go-sql-driver/mysql and PostgreSQL over
// github.com/jackc/pgx/v5.
package driver

import (
	"context"

	"sqlide/cli/internal/dsn"
)

// Driver opens connections for one dialect.
type Driver interface {
	Dialect() *Dialect
	// Open connects using info; info.Password is used as given, including empty.
	Open(ctx context.Context, info *dsn.DSNInfo) (Conn, error)
}

// Conn is one physical connection. It is not safe for concurrent use; callers
// serialize access (see conn.Handle).
type Conn interface {
	// Execute runs raw SQL text and returns a cursor over all of its results.
	Execute(ctx context.Context, sql string) (Cursor, error)
	// Query runs a parameterized statement producing a single result set.
	Query(ctx context.Context, sql string, args ...any) (Cursor, error)
	// Exec runs a parameterized statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// SetAutocommit switches transaction mode. Enabling it commits an open transaction.
	SetAutocommit(ctx context.Context, on bool) error
	// Warnings returns the warnings raised by the most recent statement.
	Warnings(ctx context.Context) ([]Warning, error)
	Ping(ctx context.Context) error
	IsClosed() bool
	Close(ctx context.Context) error
}

// Cursor walks the results of one execution.
//
//	for cur.NextResultSet() {
//		if cur.HasRows() {
//			for cur.Next() { vals, err := cur.Values() }
//		} else {
//			n := cur.RowsAffected()
//		}
//	}
//	err := cur.Err()
type Cursor interface {
	// NextResultSet advances to the next result; the first call positions on the first.
	NextResultSet() bool
	// HasRows reports whether the current result carries a row description.
	HasRows() bool
	Columns() []Column
	Next() bool
	Values() ([]any, error)
	// RowsAffected is the update count of the current result, or -1 when not reported.
	RowsAffected() int64
	Err() error
	Close() error
}

// Column describes one result column.
type Column struct {
	Name string
	// Table is the source table when the driver reports it.
	Table    string
	TypeName string
	Kind     TypeKind
	// Quoted is true when literal values of this column need quoting in SQL.
	Quoted bool
	// Blob marks large-object columns whose values may be fetched lazily.
	Blob bool
}

// Warning is a server warning or notice raised by a statement.
type Warning struct {
	Level   string
	Code    string
	Message string
}
