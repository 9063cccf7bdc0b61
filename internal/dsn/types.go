// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"strings"
)

// DBType represents the type of database
type DBType string

const (
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeMySQL      DBType = "mysql"
	DBTypeOracle     DBType = "oracle"
	DBTypeUnknown    DBType = "unknown"
)

// DSNInfo contains parsed information from a DSN string
type DSNInfo struct {
	Type     DBType
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
	Original string
}

// String returns the DSN as it was supplied.
func (d *DSNInfo) String() string {
	return d.Original
}

// ServiceKey identifies the server for credential storage, e.g. "mysql@db:3306".
// Passwords are stored per (ServiceKey, User).
func (d *DSNInfo) ServiceKey() string {
	return fmt.Sprintf("%s@%s:%s", d.Type, d.Host, d.Port)
}

// Schema returns the schema the DSN asks to start in: the database for MySQL,
// the first search_path entry for PostgreSQL. It is empty when none is named.
func (d *DSNInfo) Schema() string {
	switch d.Type {
	case DBTypeMySQL:
		return d.Database
	case DBTypePostgreSQL:
		first, _, _ := strings.Cut(d.Params["search_path"], ",")
		return strings.Trim(strings.TrimSpace(first), `"`)
	}
	return ""
}

// WithPassword returns a copy of d carrying password.
func (d *DSNInfo) WithPassword(password string) *DSNInfo {
	c := *d
	c.Password = password
	c.Params = make(map[string]string, len(d.Params))
	for k, v := range d.Params {
		c.Params[k] = v
	}
	return &c
}

// Resolver is an interface for database-specific DSN resolution
type Resolver interface {
	// Parse parses a DSN string and returns normalized DSN info
	Parse(dsn string) (*DSNInfo, error)

	// Normalize converts DSN info to a properly formatted connection string
	Normalize(info *DSNInfo) (string, error)

	// Validate checks if the DSN is valid for the database type
	Validate(dsn string) error
}

// ParseError represents an error that occurred during DSN parsing
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}
