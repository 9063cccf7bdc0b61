// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	sqlerr "sqlide/cli/internal/errors"
)

// Error is a classified server or transport failure.
type Error struct {
	Code    string
	Message string
	Kind    sqlerr.Kind
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("Error Code: %s. %s", e.Code, e.Message)
	}
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// AsKind converts e into the shared error type so callers can branch on Kind.
func (e *Error) AsKind() *sqlerr.E {
	return sqlerr.Wrap(e.Kind, e.Error(), e)
}

const (
	hintNoSchema = "Select the default schema to work with (USE <schema>, or \\use <schema> in the shell)."
	hintSafeMode = "You are using safe update mode and tried to update a table without a WHERE that uses a KEY column.\n" +
		"To disable safe mode, set session.safe_updates to false in the config and reconnect."
)

type codeEntry struct {
	kind sqlerr.Kind
	hint string
}

var mysqlCodes = map[uint16]codeEntry{
	1045: {kind: sqlerr.AuthenticationFailed},
	1698: {kind: sqlerr.AuthenticationFailed},
	1820: {kind: sqlerr.PasswordExpired},
	1862: {kind: sqlerr.PasswordExpired},
	1317: {kind: sqlerr.Cancelled},
	1053: {kind: sqlerr.ServerUnavailable},
	2002: {kind: sqlerr.ServerUnavailable},
	2003: {kind: sqlerr.ServerUnavailable},
	2006: {kind: sqlerr.NotConnected},
	2013: {kind: sqlerr.NotConnected},
	1046: {kind: sqlerr.StatementError, hint: hintNoSchema},
	1175: {kind: sqlerr.StatementError, hint: hintSafeMode},
}

var postgresCodes = map[string]codeEntry{
	"28P01": {kind: sqlerr.AuthenticationFailed},
	"28000": {kind: sqlerr.AuthenticationFailed},
	"57014": {kind: sqlerr.Cancelled},
	"57P01": {kind: sqlerr.ServerUnavailable},
	"57P02": {kind: sqlerr.ServerUnavailable},
	"57P03": {kind: sqlerr.ServerUnavailable},
	"08001": {kind: sqlerr.ServerUnavailable},
	"08004": {kind: sqlerr.ServerUnavailable},
	"08000": {kind: sqlerr.NotConnected},
	"08003": {kind: sqlerr.NotConnected},
	"08006": {kind: sqlerr.NotConnected},
	"3F000": {kind: sqlerr.StatementError, hint: hintNoSchema},
}

// Classify maps err onto an Error using the dialect's code table, then
// transport-level checks. It returns nil for a nil err.
func (d *Dialect) Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if d.server != nil {
		if e := d.server(err); e != nil {
			return e
		}
	}
	return classifyTransport(err)
}

// KindOf is a shortcut for Classify(err).Kind.
func (d *Dialect) KindOf(err error) sqlerr.Kind {
	if e := d.Classify(err); e != nil {
		return e.Kind
	}
	return ""
}

func mysqlServerError(err error) *Error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil
	}
	entry, ok := mysqlCodes[me.Number]
	if !ok {
		entry.kind = sqlerr.StatementError
	}
	return &Error{
		Code:    strconv.Itoa(int(me.Number)),
		Message: me.Message,
		Kind:    entry.kind,
		Hint:    entry.hint,
		Err:     err,
	}
}

func postgresServerError(err error) *Error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return nil
	}
	entry, ok := postgresCodes[pe.Code]
	if !ok {
		switch {
		case strings.HasPrefix(pe.Code, "08"):
			entry.kind = sqlerr.NotConnected
		case strings.HasPrefix(pe.Code, "28"):
			entry.kind = sqlerr.AuthenticationFailed
		default:
			entry.kind = sqlerr.StatementError
		}
	}
	msg := pe.Message
	if pe.Detail != "" {
		msg += " (" + pe.Detail + ")"
	}
	return &Error{
		Code:    pe.Code,
		Message: msg,
		Kind:    entry.kind,
		Hint:    entry.hint,
		Err:     err,
	}
}

func classifyTransport(err error) *Error {
	e := &Error{Message: err.Error(), Kind: sqlerr.StatementError, Err: err}
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled):
		e.Kind = sqlerr.Cancelled
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.As(err, &dnsErr):
		e.Kind = sqlerr.ServerUnavailable
	case errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sqldriver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		strings.Contains(err.Error(), "conn closed"):
		e.Kind = sqlerr.NotConnected
	}
	return e
}
