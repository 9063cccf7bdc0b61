// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"sqlide/cli/internal/dsn"
	"sqlide/cli/internal/sqlparse"
)

// MySQLDriver opens single connections through go-sql-driver/mysql.
type MySQLDriver struct {
	ConnectTimeout time.Duration
}

// NewMySQL returns a MySQL driver with a 10 second connect timeout.
func NewMySQL() *MySQLDriver {
	return &MySQLDriver{ConnectTimeout: 10 * time.Second}
}

func (d *MySQLDriver) Dialect() *Dialect { return MySQL }

func (d *MySQLDriver) Open(ctx context.Context, info *dsn.DSNInfo) (Conn, error) {
	formatted, err := dsn.NewMySQLResolver().Normalize(info)
	if err != nil {
		return nil, err
	}
	cfg, err := mysql.ParseDSN(formatted)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = d.ConnectTimeout
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}

	// The pool is pinned to one physical connection; the handle owns it.
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &mysqlConn{db: db, conn: conn, autocommit: true}, nil
}

type mysqlConn struct {
	db         *sql.DB
	conn       *sql.Conn
	autocommit bool
	closed     bool
}

// track marks the connection closed when err means the socket is gone.
func (c *mysqlConn) track(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		c.closed = true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == 2006 || me.Number == 2013) {
		c.closed = true
	}
	return err
}

func (c *mysqlConn) Execute(ctx context.Context, query string) (Cursor, error) {
	if !sqlparse.ReturnsRows(query) {
		res, err := c.conn.ExecContext(ctx, query)
		if err != nil {
			return nil, c.track(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = -1
		}
		return &countCursor{affected: n}, nil
	}
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, c.track(err)
	}
	return &mysqlCursor{conn: c, rows: rows}, nil
}

func (c *mysqlConn) Query(ctx context.Context, query string, args ...any) (Cursor, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.track(err)
	}
	return &mysqlCursor{conn: c, rows: rows, single: true}, nil
}

func (c *mysqlConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, c.track(err)
	}
	return res.RowsAffected()
}

func (c *mysqlConn) SetAutocommit(ctx context.Context, on bool) error {
	stmt := "SET autocommit=0"
	if on {
		stmt = "SET autocommit=1"
	}
	if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
		return c.track(err)
	}
	c.autocommit = on
	return nil
}

func (c *mysqlConn) Warnings(ctx context.Context) ([]Warning, error) {
	rows, err := c.conn.QueryContext(ctx, "SHOW WARNINGS")
	if err != nil {
		return nil, c.track(err)
	}
	defer rows.Close()
	var out []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.Level, &w.Code, &w.Message); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (c *mysqlConn) Ping(ctx context.Context) error {
	return c.track(c.conn.PingContext(ctx))
}

func (c *mysqlConn) IsClosed() bool { return c.closed }

func (c *mysqlConn) Close(context.Context) error {
	c.closed = true
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// mysqlCursor walks sql.Rows, which starts positioned on the first result set.
type mysqlCursor struct {
	conn    *mysqlConn
	rows    *sql.Rows
	cols    []Column
	started bool
	single  bool
	err     error
}

func (c *mysqlCursor) NextResultSet() bool {
	if c.err != nil {
		return false
	}
	if c.started {
		if c.single || !c.rows.NextResultSet() {
			c.err = c.conn.track(c.rows.Err())
			return false
		}
	}
	c.started = true
	types, err := c.rows.ColumnTypes()
	if err != nil {
		c.err = c.conn.track(err)
		return false
	}
	c.cols = make([]Column, len(types))
	for i, ct := range types {
		c.cols[i] = MySQL.NewColumn(ct.Name(), "", ct.DatabaseTypeName())
	}
	return true
}

func (c *mysqlCursor) HasRows() bool     { return len(c.cols) > 0 }
func (c *mysqlCursor) Columns() []Column { return c.cols }

func (c *mysqlCursor) Next() bool {
	if c.rows.Next() {
		return true
	}
	if err := c.rows.Err(); err != nil && c.err == nil {
		c.err = c.conn.track(err)
	}
	return false
}

func (c *mysqlCursor) Values() ([]any, error) {
	vals := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && c.cols[i].Kind != KindBinary {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func (c *mysqlCursor) RowsAffected() int64 { return -1 }
func (c *mysqlCursor) Err() error          { return c.err }

func (c *mysqlCursor) Close() error {
	err := c.rows.Close()
	if c.err != nil {
		return c.err
	}
	return err
}

// countCursor is the single update-count result of a statement run with ExecContext.
type countCursor struct {
	affected int64
	started  bool
}

func (c *countCursor) NextResultSet() bool {
	if c.started {
		return false
	}
	c.started = true
	return true
}

func (c *countCursor) HasRows() bool          { return false }
func (c *countCursor) Columns() []Column      { return nil }
func (c *countCursor) Next() bool             { return false }
func (c *countCursor) Values() ([]any, error) { return nil, nil }
func (c *countCursor) RowsAffected() int64    { return c.affected }
func (c *countCursor) Err() error             { return nil }
func (c *countCursor) Close() error           { return nil }
