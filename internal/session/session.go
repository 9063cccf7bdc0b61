// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session ties one connection supervisor, one execution engine and a set
// of editors together behind a single background worker.
//
// Every operation that talks to the user connection is queued to the worker, so
// at most one of them runs at a time. Cancel is the exception: it runs on the
// caller's goroutine and uses the auxiliary connection. Deferred work posted to
// the idle queue (keep-alives, reconnects) runs whenever the worker has nothing
// else to do.
package session

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pterm/pterm"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/conn"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/events"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/recordset"
	"sqlide/cli/internal/sqlexec"
)

const (
	// MsgCloseBusy is returned by Close while a query runs.
	MsgCloseBusy = "Cannot close SQL IDE while being busy"
	// MsgPendingEdits is returned by CloseEditor when results hold unsaved edits.
	MsgPendingEdits = "There are pending changes in the results of this editor"
	// MsgQueueFull is returned when too many operations wait for the worker.
	MsgQueueFull = "Too many operations are waiting for the connection"

	msgClosed = "Session is closed"
	queueSize = 16
)

// Options configures a Session.
type Options struct {
	Driver      driver.Driver
	Target      *dsn.DSNInfo
	Credentials conn.Credentials
	Prompter    conn.Prompter
	Config      config.Config
	// History is the persistent statement history; an in-memory one is used when nil.
	History *history.History
	Logger  *pterm.Logger
}

// Result is delivered once per Execute call.
type Result struct {
	Report *sqlexec.Report
	Err    error
}

// task is one unit of worker work. fail is called instead of run when the
// session closes before the task gets its turn.
type task struct {
	run  func(ctx context.Context)
	fail func(err error)
}

// Session is one connected workspace.
type Session struct {
	sup    *conn.Supervisor
	eng    *sqlexec.Engine
	bus    *events.Bus
	idle   *events.IdleQueue
	log    *history.Log
	hist   *history.History
	cfg    config.Config
	logger *pterm.Logger

	mu      sync.Mutex
	editors []*sqlexec.Editor
	closed  bool

	tasks       chan task
	active      atomic.Bool
	ctx         context.Context
	stop        context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// New creates a session and starts its worker. It does not connect.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.History == nil {
		opts.History = history.New(opts.Config.History.HistoryMaxEntries, "", opts.Logger)
	}
	bus := events.NewBus()
	idle := events.NewIdleQueue()
	log := history.NewLog(opts.Config.History.LogMaxEntries, bus)

	sup := conn.NewSupervisor(conn.Options{
		Driver:      opts.Driver,
		Target:      opts.Target,
		Credentials: opts.Credentials,
		Prompter:    opts.Prompter,
		Config:      opts.Config,
		Bus:         bus,
		Idle:        idle,
		Logger:      opts.Logger,
	})
	eng := sqlexec.New(sqlexec.Options{
		Supervisor: sup,
		Config:     opts.Config,
		Log:        log,
		History:    opts.History,
		Bus:        bus,
		Logger:     opts.Logger,
	})
	sup.SetRunningCheck(eng.IsRunning)

	ctx, stop := context.WithCancel(context.Background())
	s := &Session{
		sup:    sup,
		eng:    eng,
		bus:    bus,
		idle:   idle,
		log:    log,
		hist:   opts.History,
		cfg:    opts.Config,
		logger: opts.Logger,
		tasks:  make(chan task, queueSize),
		ctx:    ctx,
		stop:   stop,
		done:   make(chan struct{}),
	}
	s.unsubscribe = bus.Subscribe(func(ev events.Event) {
		if ev.Type == events.EventServerStateChanged {
			sup.HandleServerStateChanged(ctx, ev)
		}
	})
	go s.work()
	return s
}

func (s *Session) Bus() *events.Bus                { return s.bus }
func (s *Session) Idle() *events.IdleQueue         { return s.idle }
func (s *Session) Log() *history.Log               { return s.log }
func (s *Session) History() *history.History       { return s.hist }
func (s *Session) Supervisor() *conn.Supervisor    { return s.sup }
func (s *Session) Engine() *sqlexec.Engine         { return s.eng }
func (s *Session) Dialect() *driver.Dialect        { return s.sup.Dialect() }
func (s *Session) Target() *dsn.DSNInfo            { return s.sup.Target() }
func (s *Session) IsRunning() bool                 { return s.eng.IsRunning() }
func (s *Session) ActiveSchema() string            { return s.sup.UserHandle().Schema() }
func (s *Session) Autocommit() bool                { return s.sup.UserHandle().Autocommit() }
func (s *Session) ServerState() events.ServerState { return s.sup.ServerState() }

// work runs queued tasks one at a time and drains the idle queue in between.
// Tasks taken after the session started closing are failed, not run.
func (s *Session) work() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-s.tasks:
			if s.ctx.Err() != nil {
				t.fail(errClosed())
				continue
			}
			s.active.Store(true)
			t.run(s.ctx)
			s.active.Store(false)
		case <-s.idle.Ready():
		}
		if len(s.tasks) == 0 {
			s.active.Store(true)
			if n := s.idle.Drain(s.ctx); n > 0 {
				s.logger.Trace("idle tasks ran", s.logger.Args("count", n))
			}
			s.active.Store(false)
		}
	}
}

func errClosed() error { return sqlerr.New(sqlerr.NotConnected, msgClosed) }

// submit queues t without blocking. It fails with NotConnected once the session
// is closed and with Busy when the queue is full.
func (s *Session) submit(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	select {
	case s.tasks <- t:
		return nil
	default:
		return sqlerr.New(sqlerr.Busy, MsgQueueFull)
	}
}

// failQueued fails every task still waiting once the worker has stopped.
func (s *Session) failQueued() {
	for {
		select {
		case t := <-s.tasks:
			t.fail(errClosed())
		default:
			return
		}
	}
}

// do runs fn on the worker and waits for it.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	err := s.submit(task{
		run:  func(context.Context) { errc <- fn(ctx) },
		fail: func(err error) { errc <- err },
	})
	if err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect opens the user and auxiliary connections and starts the keep-alive timer.
func (s *Session) Connect(ctx context.Context) (conn.Outcome, error) {
	var outcome conn.Outcome
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.sup.Connect(ctx)
		return err
	})
	if err == nil && outcome == conn.OutcomeConnected {
		s.sup.StartKeepAlive(s.ctx)
	}
	return outcome, err
}

// NewEditor adds an editor to the session.
func (s *Session) NewEditor(name string) *sqlexec.Editor {
	ed := sqlexec.NewEditor(name)
	s.mu.Lock()
	s.editors = append(s.editors, ed)
	s.mu.Unlock()
	return ed
}

// Editors returns the session's editors in creation order.
func (s *Session) Editors() []*sqlexec.Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.editors)
}

// Editor finds an editor by name.
func (s *Session) Editor(name string) (*sqlexec.Editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ed := range s.editors {
		if ed.Name() == name {
			return ed, true
		}
	}
	return nil, false
}

// CloseEditor removes ed. Unless force is set, an editor that is running or
// whose results hold unsaved edits stays open.
func (s *Session) CloseEditor(ed *sqlexec.Editor, force bool) error {
	if !force {
		if ed.Busy() {
			return sqlerr.New(sqlerr.Busy, sqlexec.MsgEditorBusy)
		}
		if ed.HasPendingChanges() {
			return sqlerr.New(sqlerr.EditConflict, MsgPendingEdits)
		}
	}
	ed.InvalidateResults()
	s.mu.Lock()
	s.editors = slices.DeleteFunc(s.editors, func(e *sqlexec.Editor) bool { return e == ed })
	s.mu.Unlock()
	return nil
}

// Results returns the recordsets currently held by ed.
func (s *Session) Results(ed *sqlexec.Editor) []*recordset.Recordset {
	return ed.Results()
}

// Execute queues sql for ed and returns a channel that receives the outcome.
// It never blocks: an editor with an execution already queued or running, or a
// full queue, is rejected at once with Busy.
func (s *Session) Execute(ctx context.Context, ed *sqlexec.Editor, sql string, flags sqlexec.Flags) <-chan Result {
	out := make(chan Result, 1)
	if !ed.Reserve() {
		out <- Result{Err: sqlerr.New(sqlerr.Busy, sqlexec.MsgEditorBusy)}
		return out
	}
	finish := func(r Result) {
		ed.Unreserve()
		out <- r
	}
	err := s.submit(task{
		run: func(context.Context) {
			report, err := s.eng.Execute(ctx, ed, sql, flags)
			finish(Result{Report: report, Err: err})
		},
		fail: func(err error) { finish(Result{Err: err}) },
	})
	if err != nil {
		finish(Result{Err: err})
	}
	return out
}

// ExecuteWait is Execute followed by waiting for the result.
func (s *Session) ExecuteWait(ctx context.Context, ed *sqlexec.Editor, sql string, flags sqlexec.Flags) (*sqlexec.Report, error) {
	select {
	case r := <-s.Execute(ctx, ed, sql, flags):
		return r.Report, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel interrupts the running query. It does not wait for the worker.
func (s *Session) Cancel(ctx context.Context) error {
	return s.eng.Cancel(ctx)
}

// Commit commits the open transaction.
func (s *Session) Commit(ctx context.Context, ed *sqlexec.Editor) (*sqlexec.Report, error) {
	return s.ExecuteWait(ctx, ed, "COMMIT", sqlexec.Retaining)
}

// Rollback rolls back the open transaction.
func (s *Session) Rollback(ctx context.Context, ed *sqlexec.Editor) (*sqlexec.Report, error) {
	return s.ExecuteWait(ctx, ed, "ROLLBACK", sqlexec.Retaining)
}

// SetActiveSchema changes the default schema of the user connection.
func (s *Session) SetActiveSchema(ctx context.Context, schema string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.eng.SetActiveSchema(ctx, schema)
	})
}

// ToggleAutocommit flips the transaction mode and returns the new one.
func (s *Session) ToggleAutocommit(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		on, err = s.eng.ToggleAutocommit(ctx)
		return err
	})
	return on, err
}

// ApplyChanges writes the edits of rs back to its table.
func (s *Session) ApplyChanges(ctx context.Context, rs *recordset.Recordset, confirm sqlexec.Confirmer) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.eng.ApplyChanges(ctx, rs, confirm)
	})
}

// FetchBlob loads a deferred BLOB cell of rs.
func (s *Session) FetchBlob(ctx context.Context, rs *recordset.Recordset, row, col int) ([]byte, error) {
	var data []byte
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = rs.FetchBlob(ctx, row, col)
		return err
	})
	return data, err
}

// Close disconnects and stops the worker. It refuses while the worker is busy;
// operations still queued fail with NotConnected.
func (s *Session) Close(ctx context.Context) error {
	if s.eng.IsRunning() || s.active.Load() {
		return sqlerr.New(sqlerr.Busy, MsgCloseBusy)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	editors := s.editors
	s.editors = nil
	s.mu.Unlock()

	for _, ed := range editors {
		ed.InvalidateResults()
	}
	s.unsubscribe()
	s.stop()
	<-s.done
	s.failQueued()

	if err := s.hist.Save(); err != nil {
		s.logger.Warn("could not save history", s.logger.Args("error", err))
	}
	return s.sup.Disconnect(ctx)
}
