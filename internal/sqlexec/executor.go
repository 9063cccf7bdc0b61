// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs SQL scripts typed into an editor against the user connection
// of a session. It splits a script into statements, executes them in order, turns
// every result set into a recordset and records one execution log entry per
// statement, updated in place from "Running..." to its outcome.
//
// Key features include:
//   - Row limits added to plain SELECTs, with single-table SELECTs made editable
//   - Continue-on-error batches and multi-result statements
//   - Cooperative cancellation through a kill statement on the auxiliary connection
//   - Side effects of USE, DROP and SET sql_mode kept in sync with the session
//   - Applying recordset edits inside a transaction
package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/conn"
	"sqlide/cli/internal/driver"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/events"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/recordset"
	"sqlide/cli/internal/sqlparse"
)

const (
	MsgEditorBusy      = "The editor is busy and cannot execute the query now. Please try again later."
	MsgStoppedBefore   = "Query execution has been stopped, the connection to the DB server was not restarted, any open transaction remains open"
	MsgQueryInterrupt  = "Query interrupted"
	StatusCompleted    = "Query Completed"
	StatusInterrupted  = "Query interrupted"
	durationUnknown    = "? / ?"
	historyNoteMessage = "Skipping history entries for %d statements, total %d bytes"
)

// Options wires an Engine to its session.
type Options struct {
	Supervisor *conn.Supervisor
	Config     config.Config
	Log        *history.Log
	History    *history.History
	Bus        *events.Bus
	// Inspector looks up row identifiers; one backed by the auxiliary connection is created when nil.
	Inspector *recordset.Inspector
	Logger    *pterm.Logger
}

// Engine executes scripts for all editors of one session.
type Engine struct {
	sup       *conn.Supervisor
	dialect   *driver.Dialect
	cfg       config.Config
	log       *history.Log
	hist      *history.History
	bus       *events.Bus
	inspector *recordset.Inspector
	fixer     *StatementFixer
	logger    *pterm.Logger

	running atomic.Bool
}

// Report summarizes one Execute call.
type Report struct {
	LogIDs      []int
	Results     []*recordset.Recordset
	Errors      int
	Interrupted bool
	Status      string
	Duration    time.Duration
}

// New creates an Engine from the session's collaborators.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Log == nil {
		opts.Log = history.NewLog(opts.Config.History.LogMaxEntries, opts.Bus)
	}
	e := &Engine{
		sup:     opts.Supervisor,
		dialect: opts.Supervisor.Dialect(),
		cfg:     opts.Config,
		log:     opts.Log,
		hist:    opts.History,
		bus:     opts.Bus,
		logger:  opts.Logger,
	}
	e.fixer = NewStatementFixer(e.dialect, opts.Config.Editor)
	e.inspector = opts.Inspector
	if e.inspector == nil {
		e.inspector = recordset.NewInspector(e.dialect, e.AuxQuery)
	}
	return e
}

func (e *Engine) Log() *history.Log               { return e.log }
func (e *Engine) Inspector() *recordset.Inspector { return e.inspector }

// IsRunning reports whether a script is executing.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// AuxQuery runs a metadata query on the auxiliary connection.
func (e *Engine) AuxQuery(ctx context.Context, query string, args ...any) ([][]any, error) {
	l, err := e.sup.EnsureValid(ctx, e.sup.AuxHandle())
	if err != nil {
		return nil, err
	}
	defer l.Release()
	rows, err := driver.QueryAll(ctx, l.Conn(), query, args...)
	if err != nil {
		return nil, e.classify(err)
	}
	return rows, nil
}

// classify converts a driver failure into the shared error type.
func (e *Engine) classify(err error) error {
	if err == nil || sqlerr.KindOf(err) != "" {
		return err
	}
	return e.dialect.Classify(err).AsKind()
}

// Execute runs sql in ed and waits for it to finish. It fails without blocking
// when ed is already executing. Statement failures are reported in the log and
// the Report; only a connection that cannot be made available is returned as an
// error, along with the busy case.
func (e *Engine) Execute(ctx context.Context, ed *Editor, sql string, flags Flags) (report *Report, err error) {
	if !ed.run.TryLock() {
		return nil, sqlerr.New(sqlerr.Busy, MsgEditorBusy)
	}
	defer ed.run.Unlock()
	ed.busy.Store(true)
	defer ed.busy.Store(false)

	start := time.Now()
	if !flags.Has(Retaining) {
		ed.resetResults()
	}

	user := e.sup.UserHandle()
	lease, err := e.sup.EnsureValid(ctx, user)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	e.running.Store(true)
	report = &Report{}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("unexpected error while executing", e.logger.Args("panic", fmt.Sprint(r)))
			report.LogIDs = append(report.LogIDs, e.log.Add(history.SeverityError, "", fmt.Sprintf("Unexpected error: %v", r), ""))
			report.Errors++
			err = nil
		}
		user.ResetStop()
		e.running.Store(false)
		report.Status = StatusCompleted
		if report.Interrupted {
			report.Status = StatusInterrupted
		}
		report.Duration = time.Since(start)
		e.bus.Publish(events.Event{Type: events.EventStatusText, Message: report.Status})
		e.logger.Debug("execution finished", e.logger.Args(
			"editor", ed.Name(),
			"statements", len(report.LogIDs),
			"errors", report.Errors,
			"status", report.Status,
			"duration", report.Duration,
		))
	}()

	delimiter := sqlparse.DefaultDelimiter
	if flags.Has(NeedNonStdDelimiter) && e.dialect.RoutineDelimiter != "" {
		delimiter = e.dialect.RoutineDelimiter
	}
	var statements []string
	for _, r := range sqlparse.Split(sql, delimiter) {
		stmt := strings.TrimSpace(r.Text(sql))
		if sqlparse.Classify(stmt) == sqlparse.Empty {
			continue
		}
		statements = append(statements, stmt)
	}
	e.recordHistory(statements, user.Schema())

	for _, stmt := range statements {
		if e.executeStatement(ctx, ed, lease, stmt, flags, report) {
			break
		}
	}
	return report, nil
}

// recordHistory adds the statements to the history unless they are too large.
func (e *Engine) recordHistory(statements []string, schema string) {
	if e.hist == nil || len(statements) == 0 {
		return
	}
	total := 0
	for _, s := range statements {
		total += len(s)
	}
	if limit := e.cfg.Editor.MaxQuerySizeToHistory; limit > 0 && total > limit {
		e.log.Add(history.SeverityNote, "", fmt.Sprintf(historyNoteMessage, len(statements), total), "")
		return
	}
	e.hist.Add(schema, statements...)
}

// executeStatement runs one statement and reports whether the batch must stop.
func (e *Engine) executeStatement(ctx context.Context, ed *Editor, lease *conn.Lease, stmt string, flags Flags, report *Report) bool {
	user := lease.Handle()
	id := e.log.Add(history.SeverityBusy, stmt, "Running...", durationUnknown)
	report.LogIDs = append(report.LogIDs, id)

	p := e.fixer.Prepare(stmt, flags)
	if p.Limited {
		e.logger.Debug("row limit added", e.logger.Args("sql", logging.Mask(p.SQL)))
	}
	if user.StopRequested() {
		e.log.Set(id, history.SeverityError, "", MsgStoppedBefore, durationUnknown)
		report.Errors++
		report.Interrupted = true
		return true
	}

	execStart := time.Now()
	cur, err := lease.Conn().Execute(ctx, p.SQL)
	if err != nil {
		return e.statementFailed(id, err, formatDuration(time.Since(execStart)), report)
	}
	defer cur.Close()
	execTime := time.Since(execStart)

	if err := e.collect(ctx, ed, lease, cur, p, id, execTime, flags, report); err != nil {
		last := report.LogIDs[len(report.LogIDs)-1]
		if en, ok := e.log.Entry(last); ok && en.Severity != history.SeverityBusy {
			last = e.log.Add(history.SeverityBusy, p.SQL, "Fetching...", durationUnknown)
			report.LogIDs = append(report.LogIDs, last)
		}
		return e.statementFailed(last, err, formatDuration(time.Since(execStart)), report)
	}
	e.sideEffects(ctx, lease, p)
	return false
}

// statementFailed logs err on entry id and reports whether the batch must stop.
func (e *Engine) statementFailed(id int, err error, duration string, report *Report) bool {
	kind, msg := e.describe(err)
	if kind == sqlerr.Cancelled {
		e.log.Set(id, history.SeverityNote, "", MsgQueryInterrupt, duration)
		report.Interrupted = true
		return true
	}
	e.log.Set(id, history.SeverityError, "", msg, duration)
	report.Errors++
	return !e.cfg.Editor.ContinueOnError
}

// describe returns the kind and the user-facing message of a statement failure.
func (e *Engine) describe(err error) (sqlerr.Kind, string) {
	if k := sqlerr.KindOf(err); k != "" {
		return k, sqlerr.MessageOf(err)
	}
	de := e.dialect.Classify(err)
	return de.Kind, de.Error()
}

// collect walks every result of a statement. Rows become recordsets; update
// counts and warnings go to the statement's log entry. A failure on any result
// abandons the remaining ones.
func (e *Engine) collect(ctx context.Context, ed *Editor, lease *conn.Lease, cur driver.Cursor, p Prepared, id int, execTime time.Duration, flags Flags, report *Report) error {
	user := lease.Handle()
	entry := id
	produced := false
	for cur.NextResultSet() {
		if produced {
			entry = e.log.Add(history.SeverityBusy, p.SQL, "Fetching...", formatDuration(execTime)+" / ?")
			report.LogIDs = append(report.LogIDs, entry)
		}
		produced = true

		if !cur.HasRows() {
			e.logAffected(ctx, lease.Conn(), entry, cur.RowsAffected(), execTime, flags)
			continue
		}

		e.log.Set(entry, history.SeverityBusy, "", "Fetching...", formatDuration(execTime)+" / ?")
		fetchStart := time.Now()
		base := ""
		if p.Target != nil {
			base = p.Target.Table
		}
		rs := recordset.New(recordset.Options{
			Caption:    ed.nextCaption(base),
			SQL:        p.SQL,
			Dialect:    e.dialect,
			Target:     p.Target,
			Schema:     user.Schema(),
			Keys:       e.inspector,
			Blobs:      recordset.QueryFunc(e.userQuery),
			DeferBlobs: e.cfg.Editor.OptimizeBlobFetching,
		})
		n, err := rs.Populate(ctx, cur, user.StopRequested)
		if err != nil {
			return err
		}
		ed.addResult(rs)
		report.Results = append(report.Results, rs)
		e.log.Set(entry, history.SeverityOK, "", fmt.Sprintf("%d row(s) returned", n),
			formatDuration(execTime)+" / "+formatDuration(time.Since(fetchStart)))
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if !produced {
		e.log.Set(entry, history.SeverityOK, "", "OK", formatDuration(execTime))
	}
	return nil
}

// logAffected records an update count plus any server warnings.
func (e *Engine) logAffected(ctx context.Context, c driver.Conn, id int, affected int64, execTime time.Duration, flags Flags) {
	msg := "OK"
	if affected >= 0 {
		msg = fmt.Sprintf("%d row(s) affected", affected)
	}
	sev := history.SeverityOK
	if flags.Has(ShowWarnings) || e.cfg.Editor.ShowWarnings {
		warnings, err := c.Warnings(ctx)
		if err != nil {
			e.logger.Debug("could not read warnings", e.logger.Args("error", err))
		}
		if len(warnings) > 0 {
			sev = history.SeverityWarning
			msg += fmt.Sprintf(", %d warning(s):", len(warnings))
			for _, w := range warnings {
				msg += fmt.Sprintf(" %s %s", w.Code, w.Message)
			}
		}
	}
	e.log.Set(id, sev, "", msg, formatDuration(execTime))
}

// userQuery runs blob fetches on the user connection. It is only called between
// executions, so the lease is free.
func (e *Engine) userQuery(ctx context.Context, query string, args ...any) ([][]any, error) {
	l, err := e.sup.EnsureValid(ctx, e.sup.UserHandle())
	if err != nil {
		return nil, err
	}
	defer l.Release()
	rows, err := driver.QueryAll(ctx, l.Conn(), query, args...)
	if err != nil {
		return nil, e.classify(err)
	}
	return rows, nil
}

// sideEffects keeps session state in sync after a successful statement.
func (e *Engine) sideEffects(ctx context.Context, lease *conn.Lease, p Prepared) {
	switch p.Kind {
	case sqlparse.Use:
		if schema, ok := sqlparse.UseTarget(p.SQL); ok {
			e.schemaChanged(lease, schema)
		}
	case sqlparse.Set:
		if schema, ok := sqlparse.SearchPathTarget(p.SQL); ok {
			e.schemaChanged(lease, schema)
		}
		if sqlparse.SetsSQLMode(p.SQL) {
			if err := e.sup.RefreshSQLMode(ctx, lease); err != nil {
				e.logger.Warn("could not re-read sql_mode", e.logger.Args("error", err))
			}
		}
	case sqlparse.Drop:
		info, ok := sqlparse.DropTarget(p.SQL)
		if !ok {
			return
		}
		e.dropped(ctx, lease, info)
	}
}

// schemaChanged records a new active schema and tells the front end.
func (e *Engine) schemaChanged(lease *conn.Lease, schema string) {
	lease.SetSchema(schema)
	e.sup.AuxHandle().SetSchema(schema)
	e.bus.Publish(events.Event{Type: events.EventSchemaChanged, Schema: schema})
	e.bus.Publish(events.Event{Type: events.EventTitleChanged})
}

// dropped invalidates cached metadata for a dropped object. Dropping the active
// schema falls back to the session default.
func (e *Engine) dropped(ctx context.Context, lease *conn.Lease, info sqlparse.DropInfo) {
	active := lease.Handle().Schema()
	schema := info.Schema
	if schema == "" {
		schema = active
	}
	if info.IsSchema() {
		e.inspector.InvalidateSchema(schema)
	} else {
		e.inspector.Invalidate(schema, info.Name)
	}
	e.bus.Publish(events.Event{Type: events.EventObjectsChanged, Schema: schema, ObjectType: info.Object, ObjectName: info.Name})

	if !info.IsSchema() || !strings.EqualFold(schema, active) {
		return
	}
	def := e.sup.DefaultSchema()
	if strings.EqualFold(def, schema) {
		def = ""
	}
	if def != "" {
		if _, err := lease.Conn().Exec(ctx, e.dialect.UseSchema(def)); err != nil {
			e.logger.Warn("could not select default schema", e.logger.Args("schema", def, "error", err))
			def = ""
		}
	}
	e.schemaChanged(lease, def)
}

// formatDuration renders durations the way the execution log shows them.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f sec", d.Seconds())
}
