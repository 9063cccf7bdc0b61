// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"
	"github.com/jackc/pgx/v5/pgtype"

	"sqlide/cli/internal/dsn"
)

// PostgresDriver opens single pgx connections.
type PostgresDriver struct {
	ConnectTimeout time.Duration
}

// NewPostgres returns a PostgreSQL driver with a 10 second connect timeout.
func NewPostgres() *PostgresDriver {
	return &PostgresDriver{ConnectTimeout: 10 * time.Second}
}

func (d *PostgresDriver) Dialect() *Dialect { return PostgreSQL }

func (d *PostgresDriver) Open(ctx context.Context, info *dsn.DSNInfo) (Conn, error) {
	connString, err := dsn.NewPostgreSQLResolver().Normalize(info.WithPassword(""))
	if err != nil {
		return nil, err
	}
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.Password = info.Password
	if d.ConnectTimeout > 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}

	c := &pgConn{autocommit: true}
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		c.mu.Lock()
		c.notices = append(c.notices, Warning{Level: n.Severity, Code: n.Code, Message: n.Message})
		c.mu.Unlock()
	}
	// Context cancellation sends a protocol cancel request instead of tearing
	// the socket down, so an interrupted statement leaves the connection usable.
	cfg.BuildContextWatcherHandler = func(pc *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.CancelRequestContextWatcherHandler{
			Conn:               pc,
			CancelRequestDelay: 0,
			DeadlineDelay:      5 * time.Second,
		}
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

type pgConn struct {
	conn       *pgx.Conn
	autocommit bool

	mu      sync.Mutex
	notices []Warning
}

// begin opens a transaction when autocommit is off and none is active.
func (c *pgConn) begin(ctx context.Context) error {
	if c.autocommit || c.conn.PgConn().TxStatus() != 'I' {
		return nil
	}
	_, err := c.conn.Exec(ctx, "BEGIN")
	return err
}

func (c *pgConn) resetNotices() {
	c.mu.Lock()
	c.notices = nil
	c.mu.Unlock()
}

func (c *pgConn) Execute(ctx context.Context, sql string) (Cursor, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	c.resetNotices()
	return &pgCursor{
		typeMap:  c.conn.TypeMap(),
		mrr:      c.conn.PgConn().Exec(ctx, sql),
		affected: -1,
	}, nil
}

func (c *pgConn) Query(ctx context.Context, sql string, args ...any) (Cursor, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	c.resetNotices()
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgRowsCursor{rows: rows, typeMap: c.conn.TypeMap()}, nil
}

func (c *pgConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := c.begin(ctx); err != nil {
		return 0, err
	}
	c.resetNotices()
	tag, err := c.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) SetAutocommit(ctx context.Context, on bool) error {
	if on && !c.autocommit && c.conn.PgConn().TxStatus() != 'I' {
		if _, err := c.conn.Exec(ctx, "COMMIT"); err != nil {
			return err
		}
	}
	c.autocommit = on
	return nil
}

func (c *pgConn) Warnings(context.Context) ([]Warning, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, len(c.notices))
	copy(out, c.notices)
	return out, nil
}

func (c *pgConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *pgConn) IsClosed() bool                 { return c.conn.IsClosed() }
func (c *pgConn) Close(ctx context.Context) error { return c.conn.Close(ctx) }

func pgColumns(m *pgtype.Map, fields []pgconn.FieldDescription) []Column {
	cols := make([]Column, len(fields))
	for i, fd := range fields {
		typeName := strconv.FormatUint(uint64(fd.DataTypeOID), 10)
		if typ, ok := m.TypeForOID(fd.DataTypeOID); ok {
			typeName = typ.Name
		}
		cols[i] = PostgreSQL.NewColumn(fd.Name, "", typeName)
	}
	return cols
}

// pgCursor streams the results of a simple-protocol execution.
type pgCursor struct {
	typeMap  *pgtype.Map
	mrr      *pgconn.MultiResultReader
	rr       *pgconn.ResultReader
	fields   []pgconn.FieldDescription
	cols     []Column
	affected int64
	closed   bool
	err      error
}

func (c *pgCursor) NextResultSet() bool {
	c.finishResult()
	if c.err != nil || c.closed {
		return false
	}
	if !c.mrr.NextResult() {
		c.closeReader()
		return false
	}
	c.rr = c.mrr.ResultReader()
	c.fields = c.rr.FieldDescriptions()
	c.cols = pgColumns(c.typeMap, c.fields)
	c.affected = -1
	if len(c.fields) == 0 {
		c.finishResult()
		if c.err != nil {
			return false
		}
	}
	return true
}

// finishResult closes the current result reader, capturing its command tag.
func (c *pgCursor) finishResult() {
	if c.rr == nil {
		return
	}
	tag, err := c.rr.Close()
	c.rr = nil
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return
	}
	c.affected = tag.RowsAffected()
}

func (c *pgCursor) closeReader() {
	if c.closed {
		return
	}
	c.closed = true
	if err := c.mrr.Close(); err != nil && c.err == nil {
		c.err = err
	}
}

func (c *pgCursor) HasRows() bool     { return len(c.fields) > 0 }
func (c *pgCursor) Columns() []Column { return c.cols }

func (c *pgCursor) Next() bool {
	if c.rr == nil {
		return false
	}
	if c.rr.NextRow() {
		return true
	}
	c.finishResult()
	return false
}

func (c *pgCursor) Values() ([]any, error) {
	raw := c.rr.Values()
	out := make([]any, len(raw))
	for i, src := range raw {
		if src == nil {
			continue
		}
		fd := c.fields[i]
		typ, ok := c.typeMap.TypeForOID(fd.DataTypeOID)
		if !ok {
			out[i] = string(src)
			continue
		}
		v, err := typ.Codec.DecodeValue(c.typeMap, fd.DataTypeOID, fd.Format, src)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *pgCursor) RowsAffected() int64 { return c.affected }
func (c *pgCursor) Err() error          { return c.err }

func (c *pgCursor) Close() error {
	c.finishResult()
	c.closeReader()
	return c.err
}

// pgRowsCursor adapts pgx.Rows from a parameterized query to a single-result Cursor.
type pgRowsCursor struct {
	rows    pgx.Rows
	typeMap *pgtype.Map
	cols    []Column
	started bool
	done    bool
}

func (c *pgRowsCursor) NextResultSet() bool {
	if c.started {
		return false
	}
	c.started = true
	c.cols = pgColumns(c.typeMap, c.rows.FieldDescriptions())
	return true
}

func (c *pgRowsCursor) HasRows() bool     { return len(c.cols) > 0 }
func (c *pgRowsCursor) Columns() []Column { return c.cols }

func (c *pgRowsCursor) Next() bool {
	if c.done {
		return false
	}
	if c.rows.Next() {
		return true
	}
	c.done = true
	return false
}

func (c *pgRowsCursor) Values() ([]any, error) { return c.rows.Values() }

func (c *pgRowsCursor) RowsAffected() int64 {
	if !c.done {
		return -1
	}
	return c.rows.CommandTag().RowsAffected()
}

func (c *pgRowsCursor) Err() error { return c.rows.Err() }

func (c *pgRowsCursor) Close() error {
	c.rows.Close()
	c.done = true
	return c.rows.Err()
}
