// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package drivertest provides an in-memory driver.Driver whose responses are scripted
// per statement. Every executed statement is recorded on the connection that ran it.
package drivertest

import (
	"context"
	sqldriver "database/sql/driver"
	"strings"
	"sync"

	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/dsn"
)

// Result is one scripted result set or update count.
type Result struct {
	Columns []driver.Column
	Rows    [][]any
	// Affected is reported for results without columns.
	Affected int64
	// Err fails the cursor when it advances onto this result.
	Err error
	// OnRow runs before row i is yielded.
	OnRow func(i int)
}

// Response is the scripted outcome of one statement.
type Response struct {
	Results  []Result
	Err      error
	Warnings []driver.Warning
	// Block delays Execute until it is closed or the context ends.
	Block <-chan struct{}
}

// Handler scripts a statement. Returning false falls through to the built-in
// answers for the dialect's session queries.
type Handler func(c *Conn, sql string, args []any) (Response, bool)

// Driver is a scripted driver.Driver.
type Driver struct {
	D       *driver.Dialect
	Handler Handler
	// OpenFunc rejects a connection attempt when it returns an error.
	OpenFunc func(info *dsn.DSNInfo) error
	Version  string

	mu       sync.Mutex
	conns    []*Conn
	attempts []string
}

// New returns a fake driver for dialect d.
func New(d *driver.Dialect, h Handler) *Driver {
	return &Driver{D: d, Handler: h, Version: "8.0.36"}
}

func (d *Driver) Dialect() *driver.Dialect { return d.D }

func (d *Driver) Open(ctx context.Context, info *dsn.DSNInfo) (driver.Conn, error) {
	d.mu.Lock()
	d.attempts = append(d.attempts, info.Password)
	d.mu.Unlock()
	if d.OpenFunc != nil {
		if err := d.OpenFunc(info); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &Conn{drv: d, ID: int64(len(d.conns) + 1), Info: info, autocommit: true}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conns returns every connection opened so far, in order.
func (d *Driver) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Attempts returns the passwords of every Open call, in order.
func (d *Driver) Attempts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempts...)
}

// Conn is a scripted connection.
type Conn struct {
	drv  *Driver
	ID   int64
	Info *dsn.DSNInfo

	mu         sync.Mutex
	log        []string
	closed     bool
	autocommit bool
	warnings   []driver.Warning
}

// Executed returns the statements run on c, including autocommit switches.
func (c *Conn) Executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Drop simulates the server closing the connection.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// AutocommitOn reports the connection's current autocommit mode.
func (c *Conn) AutocommitOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autocommit
}

func (c *Conn) respond(ctx context.Context, sql string, args []any) (Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, sqldriver.ErrBadConn
	}
	c.log = append(c.log, sql)
	c.mu.Unlock()

	resp, ok := Response{}, false
	if c.drv.Handler != nil {
		resp, ok = c.drv.Handler(c, sql, args)
	}
	if !ok {
		resp = c.builtin(sql)
	}
	if resp.Block != nil {
		select {
		case <-resp.Block:
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	c.mu.Lock()
	c.warnings = resp.Warnings
	c.mu.Unlock()
	return resp, resp.Err
}

func (c *Conn) builtin(sql string) Response {
	d := c.drv.D
	switch strings.TrimSpace(sql) {
	case d.ConnectionIDQuery:
		return Single(Column(d, "id", "BIGINT"), []any{c.ID})
	case d.VersionQuery:
		return Single(Column(d, "version", "VARCHAR"), []any{c.drv.Version})
	case d.CurrentSchemaQuery:
		var schema any
		if c.Info != nil && c.Info.Database != "" {
			schema = c.Info.Database
		}
		return Single(Column(d, "schema", "VARCHAR"), []any{schema})
	case d.SQLModeQuery:
		return Single(Column(d, "sql_mode", "VARCHAR"), []any{"STRICT_TRANS_TABLES"})
	case d.PingQuery:
		return Single(Column(d, "1", "INT"), []any{int64(1)})
	case d.BestRowIdentifierQuery:
		return Rows(Columns(d, "index_name", "VARCHAR", "column_name", "VARCHAR", "nullable", "INT"))
	}
	return Response{Results: []Result{{}}}
}

func (c *Conn) Execute(ctx context.Context, sql string) (driver.Cursor, error) {
	resp, err := c.respond(ctx, sql, nil)
	if err != nil {
		return nil, err
	}
	return &cursor{results: resp.Results, idx: -1}, nil
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (driver.Cursor, error) {
	resp, err := c.respond(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return &cursor{results: resp.Results[:min(1, len(resp.Results))], idx: -1}, nil
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	resp, err := c.respond(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, nil
	}
	return resp.Results[0].Affected, resp.Results[0].Err
}

func (c *Conn) SetAutocommit(_ context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return sqldriver.ErrBadConn
	}
	if on {
		c.log = append(c.log, "autocommit=1")
	} else {
		c.log = append(c.log, "autocommit=0")
	}
	c.autocommit = on
	return nil
}

func (c *Conn) Warnings(context.Context) ([]driver.Warning, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.respond(ctx, c.drv.D.PingQuery, nil)
	return err
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Close(context.Context) error {
	c.Drop()
	return nil
}

// Column builds a column of the given server type name.
func Column(d *driver.Dialect, name, typeName string) driver.Column {
	return d.NewColumn(name, "", typeName)
}

// Columns builds columns from alternating name, type pairs.
func Columns(d *driver.Dialect, nameTypes ...string) []driver.Column {
	cols := make([]driver.Column, 0, len(nameTypes)/2)
	for i := 0; i+1 < len(nameTypes); i += 2 {
		cols = append(cols, Column(d, nameTypes[i], nameTypes[i+1]))
	}
	return cols
}

// Single is a response with one single-column result set.
func Single(col driver.Column, rows ...[]any) Response {
	return Rows([]driver.Column{col}, rows...)
}

// Rows is a response with one result set.
func Rows(cols []driver.Column, rows ...[]any) Response {
	return Response{Results: []Result{{Columns: cols, Rows: rows}}}
}

// Affected is a response reporting n changed rows.
func Affected(n int64) Response {
	return Response{Results: []Result{{Affected: n}}}
}

// Fail is a response whose execution fails with err.
func Fail(err error) Response {
	return Response{Err: err}
}

type cursor struct {
	results []Result
	idx     int
	row     int
	err     error
}

func (c *cursor) NextResultSet() bool {
	if c.err != nil {
		return false
	}
	c.idx++
	c.row = -1
	if c.idx >= len(c.results) {
		return false
	}
	if err := c.results[c.idx].Err; err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *cursor) cur() *Result {
	if c.idx < 0 || c.idx >= len(c.results) {
		return nil
	}
	return &c.results[c.idx]
}

func (c *cursor) HasRows() bool {
	r := c.cur()
	return r != nil && len(r.Columns) > 0
}

func (c *cursor) Columns() []driver.Column {
	if r := c.cur(); r != nil {
		return r.Columns
	}
	return nil
}

func (c *cursor) Next() bool {
	r := c.cur()
	if r == nil || c.row+1 >= len(r.Rows) {
		return false
	}
	c.row++
	if r.OnRow != nil {
		r.OnRow(c.row)
	}
	return true
}

func (c *cursor) Values() ([]any, error) {
	row := c.cur().Rows[c.row]
	return append([]any(nil), row...), nil
}

func (c *cursor) RowsAffected() int64 {
	r := c.cur()
	if r == nil || len(r.Columns) > 0 {
		return -1
	}
	return r.Affected
}

func (c *cursor) Err() error   { return c.err }
func (c *cursor) Close() error { return nil }
