// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. Driver failures, connection loss, edit conflicts and
// cancellation are all reported through the same E type so callers can branch on Kind
// without knowing which dialect produced the failure.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// NotConnected indicates the connection is closed and cannot be restored transparently.
	NotConnected Kind = "not_connected"
	// AuthenticationFailed indicates the server rejected the supplied credentials.
	AuthenticationFailed Kind = "authentication_failed"
	// PasswordExpired indicates the account password must be changed before use.
	PasswordExpired Kind = "password_expired"
	// StatementError indicates a single statement failed on the server.
	StatementError Kind = "statement_error"
	// ServerUnavailable indicates the server is likely down or unreachable.
	ServerUnavailable Kind = "server_unavailable"
	// EditConflict indicates an edit was rejected by the local recordset.
	EditConflict Kind = "edit_conflict"
	// ApplyFailed indicates a change script failed and was rolled back.
	ApplyFailed Kind = "apply_failed"
	// Cancelled indicates a user-initiated interruption.
	Cancelled Kind = "cancelled"
	// Busy indicates the target is executing and refused the request.
	Busy Kind = "busy"
	// Unsupported indicates a dialect or server version that is not handled.
	Unsupported Kind = "unsupported"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the human-friendly message of err, falling back to err.Error().
func MessageOf(err error) string {
	var e *E
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
