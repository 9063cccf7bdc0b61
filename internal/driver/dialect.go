// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"fmt"
	"strconv"
	"strings"

	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
)

// Dialect carries the SQL text and lookup tables that differ between servers.
type Dialect struct {
	Name string
	Type dsn.DBType
	// MinServerMajor is the oldest supported server major version.
	MinServerMajor int
	// RoutineDelimiter replaces ";" in scripts that define routines. It is empty
	// when the dialect's own quoting already protects routine bodies.
	RoutineDelimiter string

	PingQuery          string
	VersionQuery       string
	ConnectionIDQuery  string
	CurrentSchemaQuery string
	// SQLModeQuery and SetSQLMode are empty when the server has no sql_mode.
	SQLModeQuery string
	SetSQLMode   string
	// SafeUpdates enables rejection of keyless UPDATE/DELETE; empty when unsupported.
	SafeUpdates  string
	SessionSetup []string
	// BestRowIdentifierQuery takes (schema, table) and returns rows of
	// (index name, column name, nullable) for unique indexes, best first.
	BestRowIdentifierQuery string

	identQuote  byte
	killFormat  string
	useFormat   string
	limitFormat string
	placeholder func(i int) string
	types       map[string]typeInfo
	upperTypes  bool
	server      func(err error) *Error
}

// MySQL is the dialect of MySQL and MariaDB servers.
var MySQL = &Dialect{
	Name:               "MySQL",
	Type:               dsn.DBTypeMySQL,
	MinServerMajor:     5,
	RoutineDelimiter:   "$$",
	PingQuery:          "SELECT 1",
	VersionQuery:       "SELECT VERSION()",
	ConnectionIDQuery:  "SELECT CONNECTION_ID()",
	CurrentSchemaQuery: "SELECT DATABASE()",
	SQLModeQuery:       "SELECT @@SESSION.sql_mode",
	SetSQLMode:         "SET SESSION sql_mode = ?",
	SafeUpdates:        "SET SQL_SAFE_UPDATES=1",
	SessionSetup:       []string{"SET NAMES utf8mb4"},
	BestRowIdentifierQuery: `SELECT s.INDEX_NAME, s.COLUMN_NAME, c.IS_NULLABLE = 'YES'
FROM information_schema.STATISTICS s
JOIN information_schema.COLUMNS c
  ON c.TABLE_SCHEMA = s.TABLE_SCHEMA AND c.TABLE_NAME = s.TABLE_NAME AND c.COLUMN_NAME = s.COLUMN_NAME
WHERE s.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND s.TABLE_NAME = ? AND s.NON_UNIQUE = 0
ORDER BY s.INDEX_NAME <> 'PRIMARY', s.INDEX_NAME, s.SEQ_IN_INDEX`,
	identQuote:  '`',
	killFormat:  "KILL QUERY %d",
	useFormat:   "USE %s",
	limitFormat: " LIMIT 0, %d",
	placeholder: func(int) string { return "?" },
	types:       mysqlTypes,
	upperTypes:  true,
	server:      mysqlServerError,
}

// PostgreSQL is the dialect of PostgreSQL servers.
var PostgreSQL = &Dialect{
	Name:               "PostgreSQL",
	Type:               dsn.DBTypePostgreSQL,
	MinServerMajor:     9,
	PingQuery:          "SELECT 1",
	VersionQuery:       "SHOW server_version",
	ConnectionIDQuery:  "SELECT pg_backend_pid()",
	CurrentSchemaQuery: "SELECT current_schema()",
	SessionSetup:       []string{"SET application_name = 'sqlide'"},
	BestRowIdentifierQuery: `SELECT i.relname, a.attname, NOT a.attnotnull
FROM pg_index x
JOIN pg_class t ON t.oid = x.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_class i ON i.oid = x.indexrelid
JOIN LATERAL unnest(x.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND t.relname = $2
  AND x.indisunique AND x.indpred IS NULL AND x.indexprs IS NULL
ORDER BY x.indisprimary DESC, i.relname, k.ord`,
	identQuote:  '"',
	killFormat:  "SELECT pg_cancel_backend(%d)",
	useFormat:   "SET search_path TO %s",
	limitFormat: " LIMIT %d",
	placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	types:       postgresTypes,
	server:      postgresServerError,
}

// ForType returns the dialect for a DSN type.
func ForType(t dsn.DBType) (*Dialect, error) {
	switch t {
	case dsn.DBTypeMySQL:
		return MySQL, nil
	case dsn.DBTypePostgreSQL:
		return PostgreSQL, nil
	}
	return nil, sqlerr.New(sqlerr.Unsupported, fmt.Sprintf("no driver for %s", t))
}

// New returns the driver for a DSN type.
func New(t dsn.DBType) (Driver, error) {
	switch t {
	case dsn.DBTypeMySQL:
		return NewMySQL(), nil
	case dsn.DBTypePostgreSQL:
		return NewPostgres(), nil
	}
	return nil, sqlerr.New(sqlerr.Unsupported, fmt.Sprintf("no driver for %s", t))
}

// QuoteIdent quotes an identifier, doubling embedded quote characters.
func (d *Dialect) QuoteIdent(name string) string {
	q := string(d.identQuote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QualifiedName returns schema.table quoted, or just table when schema is empty.
func (d *Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// KillQuery returns the statement that interrupts the query running on connection id.
func (d *Dialect) KillQuery(id int64) string {
	return fmt.Sprintf(d.killFormat, id)
}

// UseSchema returns the statement that makes schema the session default.
func (d *Dialect) UseSchema(schema string) string {
	return fmt.Sprintf(d.useFormat, d.QuoteIdent(schema))
}

// LimitClause returns the row-limit suffix, including its leading space.
func (d *Dialect) LimitClause(n int) string {
	return fmt.Sprintf(d.limitFormat, n)
}

// Placeholder returns the bind marker for the i-th (1-based) parameter.
func (d *Dialect) Placeholder(i int) string {
	return d.placeholder(i)
}

// BlobQuery selects one column plus its byte length from the rows of query matching where.
func (d *Dialect) BlobQuery(column, query, where string) string {
	col := d.QuoteIdent(column)
	return fmt.Sprintf("SELECT %s, length(%s) FROM (%s) t WHERE %s", col, col, query, where)
}

// NormalizeSQLMode strips modes that break the metadata queries run on the
// auxiliary connection. The boolean reports whether mode changed.
func (d *Dialect) NormalizeSQLMode(mode string) (string, bool) {
	if d.SQLModeQuery == "" {
		return mode, false
	}
	parts := strings.Split(mode, ",")
	kept := parts[:0]
	for _, p := range parts {
		if strings.EqualFold(strings.TrimSpace(p), "MYSQL40") {
			continue
		}
		kept = append(kept, p)
	}
	out := strings.Join(kept, ",")
	return out, out != mode
}

// ServerMajor extracts the major version from a server version string like "8.0.36-log".
func ServerMajor(version string) int {
	v := strings.TrimSpace(version)
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(v[:end])
	return n
}
