// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package conn owns the two database connections of a session. The user connection
// runs everything typed into an editor; the auxiliary connection runs metadata
// lookups and the kill statement that interrupts the user connection.
//
// Each connection lives in a Handle. Access is serialized through a Lease: whoever
// holds the lease is the only goroutine talking to the driver connection. The one
// exception is the stop flag, which is read and written without the lease so a
// cancel request can reach a statement that is still fetching rows.
package conn

import (
	"context"
	"sync"
	"sync/atomic"

	"sqlide/cli/internal/driver"
)

// Role distinguishes the two connections of a session.
type Role string

const (
	RoleUser Role = "user"
	RoleAux  Role = "aux"
)

// Handle owns one driver connection plus the session state tied to it.
type Handle struct {
	role Role
	sem  chan struct{}
	stop atomic.Bool

	mu         sync.Mutex
	conn       driver.Conn
	schema     string
	sqlMode    string
	autocommit bool
	id         int64
	connected  bool // ever connected
}

// NewHandle creates an empty, unconnected handle.
func NewHandle(role Role, autocommit bool) *Handle {
	return &Handle{role: role, sem: make(chan struct{}, 1), autocommit: autocommit}
}

// Lease is exclusive access to a Handle. Release is idempotent.
type Lease struct {
	h    *Handle
	once sync.Once
}

// Acquire blocks until the handle is free or ctx ends.
func (h *Handle) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case h.sem <- struct{}{}:
		return &Lease{h: h}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the handle only if nobody holds it.
func (h *Handle) TryAcquire() (*Lease, bool) {
	select {
	case h.sem <- struct{}{}:
		return &Lease{h: h}, true
	default:
		return nil, false
	}
}

// Busy reports whether a lease is currently held.
func (h *Handle) Busy() bool { return len(h.sem) > 0 }

func (l *Lease) Release() {
	l.once.Do(func() { <-l.h.sem })
}

func (l *Lease) Handle() *Handle { return l.h }

// Conn returns the driver connection, or nil when the handle was never connected.
func (l *Lease) Conn() driver.Conn {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	return l.h.conn
}

// SetSchema records the active schema after it was changed on the server.
func (l *Lease) SetSchema(schema string) { l.h.SetSchema(schema) }

// SetAutocommit switches the transaction mode on the server and records it.
func (l *Lease) SetAutocommit(ctx context.Context, on bool) error {
	c := l.Conn()
	if c != nil {
		if err := c.SetAutocommit(ctx, on); err != nil {
			return err
		}
	}
	l.h.mu.Lock()
	l.h.autocommit = on
	l.h.mu.Unlock()
	return nil
}

func (h *Handle) Role() Role { return h.role }

// Schema returns the cached active schema.
func (h *Handle) Schema() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.schema
}

// SetSchema updates the cached active schema without talking to the server.
func (h *Handle) SetSchema(schema string) {
	h.mu.Lock()
	h.schema = schema
	h.mu.Unlock()
}

// SQLMode returns the last read SQL mode, empty for servers without one.
func (h *Handle) SQLMode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sqlMode
}

func (h *Handle) setSQLMode(mode string) {
	h.mu.Lock()
	h.sqlMode = mode
	h.mu.Unlock()
}

func (h *Handle) Autocommit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autocommit
}

// ID returns the server-side connection id, used to target the kill statement.
func (h *Handle) ID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// IsOpen reports whether the handle has a live driver connection.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil && !h.conn.IsClosed()
}

// WasConnected reports whether the handle was ever connected.
func (h *Handle) WasConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *Handle) RequestStop()        { h.stop.Store(true) }
func (h *Handle) StopRequested() bool { return h.stop.Load() }
func (h *Handle) ResetStop()          { h.stop.Store(false) }

// attach installs a freshly initialized connection. Called with the lease held.
func (h *Handle) attach(c driver.Conn, id int64, schema string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn = c
	h.id = id
	h.schema = schema
	h.connected = true
}

// detach removes and returns the driver connection. Called with the lease held.
func (h *Handle) detach() driver.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.conn
	h.conn = nil
	return c
}

// close tears down the driver connection. Called with the lease held.
func (h *Handle) close(ctx context.Context) error {
	if c := h.detach(); c != nil {
		return c.Close(ctx)
	}
	return nil
}
