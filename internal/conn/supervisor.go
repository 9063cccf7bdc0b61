// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/events"
	"sqlide/cli/internal/logging"
)

const notAvailableMsg = "DBMS connection is not available"

// Credentials stores passwords per server and account.
type Credentials interface {
	LookupPassword(service, account string) (string, bool, error)
	StorePassword(service, account, password string) error
	ForgetPassword(service, account string) error
}

// PasswordRequest describes an interactive password prompt.
type PasswordRequest struct {
	Service string
	Account string
	// Failed is set when a previous password for the account was rejected.
	Failed bool
}

// PasswordReply is the answer to a PasswordRequest.
type PasswordReply struct {
	Password string
	// Store asks for the password to be saved once it is accepted.
	Store bool
}

// Prompter asks the user for a password.
type Prompter interface {
	PromptPassword(ctx context.Context, req PasswordRequest) (PasswordReply, error)
}

// ErrPromptCancelled is returned by a Prompter when the user dismisses the prompt.
var ErrPromptCancelled = errors.New("password prompt cancelled")

// Outcome is the soft result of Connect.
type Outcome int

const (
	OutcomeConnected Outcome = iota
	// OutcomeServerDown means the server could not be reached; the session stays disconnected.
	OutcomeServerDown
	// OutcomeCancelled means the user dismissed the password prompt.
	OutcomeCancelled
	// OutcomeFailed accompanies every error returned by Connect.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeServerDown:
		return "server down"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Options configures a Supervisor.
type Options struct {
	Driver      driver.Driver
	Target      *dsn.DSNInfo
	Credentials Credentials
	Prompter    Prompter
	Config      config.Config
	Bus         *events.Bus
	Idle        *events.IdleQueue
	Logger      *pterm.Logger
}

// Supervisor owns the user and auxiliary handles of a session and keeps them connected.
type Supervisor struct {
	drv     driver.Driver
	dialect *driver.Dialect
	target  *dsn.DSNInfo
	creds   Credentials
	prompt  Prompter
	cfg     config.Config
	bus     *events.Bus
	idle    *events.IdleQueue
	log     *pterm.Logger

	user *Handle
	aux  *Handle

	mu        sync.Mutex
	password  string
	havePass  bool
	state     events.ServerState
	version   string
	isRunning func() bool

	reconnects singleflight.Group
}

// NewSupervisor creates a supervisor with two unconnected handles.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Idle == nil {
		opts.Idle = events.NewIdleQueue()
	}
	return &Supervisor{
		drv:     opts.Driver,
		dialect: opts.Driver.Dialect(),
		target:  opts.Target,
		creds:   opts.Credentials,
		prompt:  opts.Prompter,
		cfg:     opts.Config,
		bus:     opts.Bus,
		idle:    opts.Idle,
		log:     opts.Logger,
		user:    NewHandle(RoleUser, opts.Config.Session.Autocommit),
		aux:     NewHandle(RoleAux, true),
		state:   events.StateUnknown,
	}
}

func (s *Supervisor) UserHandle() *Handle      { return s.user }
func (s *Supervisor) AuxHandle() *Handle       { return s.aux }
func (s *Supervisor) Dialect() *driver.Dialect { return s.dialect }
func (s *Supervisor) Target() *dsn.DSNInfo     { return s.target }
func (s *Supervisor) Idle() *events.IdleQueue  { return s.idle }
func (s *Supervisor) Config() config.Config    { return s.cfg }
func (s *Supervisor) Logger() *pterm.Logger    { return s.log }
func (s *Supervisor) Credentials() Credentials { return s.creds }
func (s *Supervisor) ServiceKey() string       { return s.target.ServiceKey() }

// SetRunningCheck installs the check used to defer reconnects while a query runs.
func (s *Supervisor) SetRunningCheck(f func() bool) {
	s.mu.Lock()
	s.isRunning = f
	s.mu.Unlock()
}

// ServerState returns the last known server state.
func (s *Supervisor) ServerState() events.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerVersion returns the version string reported at connect time.
func (s *Supervisor) ServerVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Supervisor) running() bool {
	s.mu.Lock()
	f := s.isRunning
	s.mu.Unlock()
	return f != nil && f()
}

// kindOf classifies err, preferring a kind already attached by this package.
func (s *Supervisor) kindOf(err error) sqlerr.Kind {
	if k := sqlerr.KindOf(err); k != "" {
		return k
	}
	return s.dialect.KindOf(err)
}

// asKind wraps err in the shared error type unless it already is one.
func (s *Supervisor) asKind(err error) error {
	if err == nil || sqlerr.KindOf(err) != "" {
		return err
	}
	return s.dialect.Classify(err).AsKind()
}

// Connect opens both connections, trying the DSN password first, then the
// keychain, then the interactive prompter until a password is accepted.
func (s *Supervisor) Connect(ctx context.Context) (Outcome, error) {
	service, account := s.ServiceKey(), s.target.User
	s.log.Debug("connecting", s.log.Args("target", logging.Mask(s.target.String()), "user", account))

	outcome, done, err := s.attempt(ctx, s.target.Password)
	if done {
		return outcome, err
	}

	failed := false
	if s.creds != nil {
		pw, ok, kerr := s.creds.LookupPassword(service, account)
		if kerr != nil {
			s.log.Warn("keychain lookup failed", s.log.Args("error", kerr))
		}
		if ok {
			if outcome, done, err := s.attempt(ctx, pw); done {
				return outcome, err
			}
			failed = true
		}
	}

	if s.prompt == nil {
		return OutcomeFailed, sqlerr.New(sqlerr.AuthenticationFailed,
			fmt.Sprintf("Access denied for user '%s' and no password prompt is available", account))
	}
	for {
		reply, perr := s.prompt.PromptPassword(ctx, PasswordRequest{Service: service, Account: account, Failed: failed})
		if errors.Is(perr, ErrPromptCancelled) {
			return OutcomeCancelled, nil
		}
		if perr != nil {
			return OutcomeFailed, perr
		}
		outcome, done, err := s.attempt(ctx, reply.Password)
		if done {
			if err == nil && outcome == OutcomeConnected && reply.Store && s.creds != nil {
				if serr := s.creds.StorePassword(service, account, reply.Password); serr != nil {
					s.log.Warn("could not store password", s.log.Args("error", serr))
				}
			}
			return outcome, err
		}
		failed = true
	}
}

// attempt connects with one password. done is false only for a rejected password.
func (s *Supervisor) attempt(ctx context.Context, password string) (Outcome, bool, error) {
	err := s.open(ctx, password)
	if err == nil {
		s.mu.Lock()
		s.password, s.havePass = password, true
		s.mu.Unlock()
		s.NoteConnectionOutcome(nil)
		s.bus.Publish(events.Event{Type: events.EventSchemaChanged, Schema: s.user.Schema()})
		s.bus.Publish(events.Event{Type: events.EventTitleChanged})
		s.log.Info("connected", s.log.Args("server", s.ServerVersion(), "connection_id", s.user.ID()))
		return OutcomeConnected, true, nil
	}

	switch s.kindOf(err) {
	case sqlerr.AuthenticationFailed:
		s.log.Debug("password rejected", s.log.Args("error", logging.Mask(err.Error())))
		return OutcomeFailed, false, nil
	case sqlerr.ServerUnavailable:
		s.NoteConnectionOutcome(err)
		s.log.Warn("server unavailable", s.log.Args("error", logging.Mask(err.Error())))
		return OutcomeServerDown, true, nil
	}
	return OutcomeFailed, true, s.asKind(err)
}

// open connects the user handle, then the auxiliary handle, and initializes both concurrently.
func (s *Supervisor) open(ctx context.Context, password string) error {
	info := s.target.WithPassword(password)

	uc, err := s.drv.Open(ctx, info)
	if err != nil {
		return err
	}
	ac, err := s.drv.Open(ctx, info)
	if err != nil {
		uc.Close(ctx)
		return err
	}

	ul, err := s.user.Acquire(ctx)
	if err != nil {
		uc.Close(ctx)
		ac.Close(ctx)
		return err
	}
	defer ul.Release()
	al, err := s.aux.Acquire(ctx)
	if err != nil {
		uc.Close(ctx)
		ac.Close(ctx)
		return err
	}
	defer al.Release()

	s.user.close(ctx)
	s.aux.close(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.initConn(gctx, ul, uc) })
	g.Go(func() error { return s.initConn(gctx, al, ac) })
	if err := g.Wait(); err != nil {
		s.user.close(ctx)
		s.aux.close(ctx)
		return err
	}
	return nil
}

// initConn runs the session init script on c and installs it into the lease's handle.
func (s *Supervisor) initConn(ctx context.Context, l *Lease, c driver.Conn) (err error) {
	h := l.Handle()
	d := s.dialect
	defer func() {
		if err != nil {
			c.Close(ctx)
		}
	}()

	exec := func(stmt string, args ...any) error {
		if _, err := c.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
		return nil
	}

	if h.Role() == RoleUser {
		row, err := driver.QueryRow(ctx, c, d.VersionQuery)
		if err != nil {
			return err
		}
		version := driver.AsString(first(row))
		if major := driver.ServerMajor(version); major > 0 && major < d.MinServerMajor {
			return sqlerr.New(sqlerr.Unsupported,
				fmt.Sprintf("%s server version %s is not supported, %d.x or newer is required", d.Name, version, d.MinServerMajor))
		}
		s.mu.Lock()
		s.version = version
		s.mu.Unlock()
	}

	for _, stmt := range s.cfg.Session.StartupSQL {
		if err := exec(stmt); err != nil {
			return err
		}
	}
	for _, stmt := range d.SessionSetup {
		if err := exec(stmt); err != nil {
			return err
		}
	}
	if h.Role() == RoleUser && s.cfg.Session.SafeUpdates && d.SafeUpdates != "" {
		if err := exec(d.SafeUpdates); err != nil {
			return err
		}
	}
	if d.SQLModeQuery != "" {
		row, err := driver.QueryRow(ctx, c, d.SQLModeQuery)
		if err != nil {
			return err
		}
		mode := driver.AsString(first(row))
		if h.Role() == RoleAux {
			if norm, changed := d.NormalizeSQLMode(mode); changed {
				if err := exec(d.SetSQLMode, norm); err != nil {
					return err
				}
				mode = norm
			}
		}
		h.setSQLMode(mode)
	}

	row, err := driver.QueryRow(ctx, c, d.ConnectionIDQuery)
	if err != nil {
		return err
	}
	id, _ := driver.AsInt64(first(row))

	schema, err := s.restoreSchema(ctx, h, c)
	if err != nil {
		return err
	}

	if err := c.SetAutocommit(ctx, h.Autocommit()); err != nil {
		return err
	}

	h.attach(c, id, schema)
	s.log.Debug("connection initialized", s.log.Args("role", string(h.Role()), "id", id, "schema", schema))
	return nil
}

// restoreSchema selects the previous schema on reconnect, else the configured one,
// and finally asks the server which schema is current.
func (s *Supervisor) restoreSchema(ctx context.Context, h *Handle, c driver.Conn) (string, error) {
	d := s.dialect
	want := h.Schema()
	if want == "" {
		want = s.target.Schema()
	}
	if want == "" {
		want = s.cfg.Session.DefaultSchema
	}
	if want != "" {
		_, err := c.Exec(ctx, d.UseSchema(want))
		if err == nil {
			return want, nil
		}
		s.log.Warn("could not restore schema", s.log.Args("schema", want, "error", err))
	}
	row, err := driver.QueryRow(ctx, c, d.CurrentSchemaQuery)
	if err != nil {
		return "", err
	}
	return driver.AsString(first(row)), nil
}

// DefaultSchema is the schema selected when the active one is dropped.
func (s *Supervisor) DefaultSchema() string {
	if schema := s.target.Schema(); schema != "" {
		return schema
	}
	return s.cfg.Session.DefaultSchema
}

// RefreshSQLMode re-reads the SQL mode of a leased handle after a statement changed it.
func (s *Supervisor) RefreshSQLMode(ctx context.Context, l *Lease) error {
	if s.dialect.SQLModeQuery == "" || l.Conn() == nil {
		return nil
	}
	row, err := driver.QueryRow(ctx, l.Conn(), s.dialect.SQLModeQuery)
	if err != nil {
		return s.asKind(err)
	}
	l.Handle().setSQLMode(driver.AsString(first(row)))
	return nil
}

func first(row []any) any {
	if len(row) == 0 {
		return nil
	}
	return row[0]
}

// Disconnect closes both connections.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	var errs []error
	for _, h := range []*Handle{s.aux, s.user} {
		l, err := h.Acquire(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, h.close(ctx))
		l.Release()
	}
	return errors.Join(errs...)
}

// EnsureValid returns a lease on h with a live connection. A closed connection
// is reopened transparently when autocommit is on, keeping the active schema.
// With autocommit off the open transaction is gone, so it fails with NotConnected.
func (s *Supervisor) EnsureValid(ctx context.Context, h *Handle) (*Lease, error) {
	l, err := h.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if h.IsOpen() {
		return l, nil
	}
	s.mu.Lock()
	password, havePass := s.password, s.havePass
	s.mu.Unlock()

	if !h.WasConnected() || !havePass || !h.Autocommit() {
		l.Release()
		return nil, sqlerr.New(sqlerr.NotConnected, notAvailableMsg)
	}

	s.log.Info("reconnecting", s.log.Args("role", string(h.Role())))
	if err := s.reopen(ctx, l, password); err != nil {
		l.Release()
		s.NoteConnectionOutcome(err)
		return nil, sqlerr.Wrap(sqlerr.NotConnected, notAvailableMsg, s.asKind(err))
	}
	s.NoteConnectionOutcome(nil)
	return l, nil
}

// reopen replaces the connection of a leased handle.
func (s *Supervisor) reopen(ctx context.Context, l *Lease, password string) error {
	h := l.Handle()
	h.close(ctx)
	c, err := s.drv.Open(ctx, s.target.WithPassword(password))
	if err != nil {
		return err
	}
	return s.initConn(ctx, l, c)
}

// Reconnect reopens both connections with the last accepted password.
// Concurrent calls share one attempt.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	_, err, _ := s.reconnects.Do("reconnect", func() (any, error) {
		s.mu.Lock()
		password, havePass := s.password, s.havePass
		s.mu.Unlock()
		if !havePass {
			return nil, sqlerr.New(sqlerr.NotConnected, notAvailableMsg)
		}
		for _, h := range []*Handle{s.user, s.aux} {
			l, err := h.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			err = s.reopen(ctx, l, password)
			l.Release()
			s.NoteConnectionOutcome(err)
			if err != nil {
				return nil, s.asKind(err)
			}
		}
		s.bus.Publish(events.Event{Type: events.EventTitleChanged})
		return nil, nil
	})
	return err
}

// Ping checks the user connection. A busy connection counts as alive.
func (s *Supervisor) Ping(ctx context.Context) bool {
	l, ok := s.user.TryAcquire()
	if !ok {
		return true
	}
	defer l.Release()
	c := l.Conn()
	if c == nil || c.IsClosed() {
		return false
	}
	err := c.Ping(ctx)
	s.NoteConnectionOutcome(err)
	return err == nil
}

// KeepAlive validates the auxiliary then the user connection, reconnecting
// either one if needed, and pings both.
func (s *Supervisor) KeepAlive(ctx context.Context) error {
	for _, h := range []*Handle{s.aux, s.user} {
		l, err := s.EnsureValid(ctx, h)
		if err != nil {
			return err
		}
		err = l.Conn().Ping(ctx)
		l.Release()
		if err != nil {
			return s.asKind(err)
		}
	}
	return nil
}

// StartKeepAlive posts KeepAlive to the idle queue on the configured interval
// until ctx ends. It does nothing when the interval is zero.
func (s *Supervisor) StartKeepAlive(ctx context.Context) {
	interval := s.cfg.Session.KeepAlive()
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.idle.Post("keepalive", func(ctx context.Context) {
					if err := s.KeepAlive(ctx); err != nil {
						s.log.Debug("keep-alive failed", s.log.Args("error", err))
					}
				})
			}
		}
	}()
}

// NoteConnectionOutcome updates the server state from the result of a
// connection attempt and publishes EventServerStateChanged on a change.
func (s *Supervisor) NoteConnectionOutcome(err error) {
	var next events.ServerState
	switch {
	case err == nil:
		next = events.StateRunning
	case s.kindOf(err) == sqlerr.ServerUnavailable:
		next = events.StatePossiblyStopped
	default:
		return
	}
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed {
		s.bus.Publish(events.Event{Type: events.EventServerStateChanged, Target: s.ServiceKey(), State: next})
	}
}

// HandleServerStateChanged reacts to a server state notification for this
// session's target by scheduling a reconnect when the connection is not healthy.
func (s *Supervisor) HandleServerStateChanged(ctx context.Context, ev events.Event) {
	if ev.Type != events.EventServerStateChanged || ev.Target != s.ServiceKey() {
		return
	}
	if ev.State == events.StateRunning && s.user.IsOpen() && s.Ping(ctx) {
		return
	}
	if s.running() {
		return
	}
	s.idle.Post("reconnect", func(ctx context.Context) {
		if err := s.Reconnect(ctx); err != nil {
			s.log.Debug("reconnect failed", s.log.Args("error", logging.Mask(err.Error())))
		}
	})
}
