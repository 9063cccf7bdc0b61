// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"time"

	"sqlide/cli/internal/conn"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/events"
	"sqlide/cli/internal/history"
)

// Cancel interrupts the statement running on the user connection. The kill
// statement runs on the auxiliary connection; the stop flag then makes a fetch
// in progress end at the next row.
func (e *Engine) Cancel(ctx context.Context) error {
	id := e.log.Add(history.SeverityBusy, "INTERRUPT", "Running...", durationUnknown)
	start := time.Now()
	user := e.sup.UserHandle()

	l, err := e.sup.EnsureValid(ctx, e.sup.AuxHandle())
	if err != nil {
		e.log.Set(id, history.SeverityError, "", sqlerr.MessageOf(err), formatDuration(time.Since(start)))
		return err
	}
	_, err = l.Conn().Exec(ctx, e.dialect.KillQuery(user.ID()))
	l.Release()
	if err != nil {
		err = e.classify(err)
		e.log.Set(id, history.SeverityError, "", sqlerr.MessageOf(err), formatDuration(time.Since(start)))
		return err
	}

	if e.running.Load() {
		user.RequestStop()
		e.log.Set(id, history.SeverityOK, "", "OK - Query cancelled", formatDuration(time.Since(start)))
	} else {
		e.log.Set(id, history.SeverityOK, "", "OK - Query already completed", formatDuration(time.Since(start)))
	}
	e.logger.Info("query cancelled", e.logger.Args("connection_id", user.ID()))

	if user.Autocommit() {
		e.sup.Idle().Post("keepalive", func(ctx context.Context) {
			if err := e.sup.KeepAlive(ctx); err != nil {
				e.logger.Debug("keep-alive after cancel failed", e.logger.Args("error", err))
			}
		})
	}
	return nil
}

// ExecuteRaw runs one parameterized statement on a leased connection and
// returns the affected row count. Failures are classified but not logged.
func (e *Engine) ExecuteRaw(ctx context.Context, l *conn.Lease, sql string, args ...any) (int64, error) {
	c := l.Conn()
	if c == nil {
		return 0, sqlerr.New(sqlerr.NotConnected, "DBMS connection is not available")
	}
	n, err := c.Exec(ctx, sql, args...)
	if err != nil {
		return n, e.classify(err)
	}
	return n, nil
}

// Commit commits the open transaction of the user connection through ed.
func (e *Engine) Commit(ctx context.Context, ed *Editor) (*Report, error) {
	return e.Execute(ctx, ed, "COMMIT", Retaining)
}

// Rollback rolls back the open transaction of the user connection through ed.
func (e *Engine) Rollback(ctx context.Context, ed *Editor) (*Report, error) {
	return e.Execute(ctx, ed, "ROLLBACK", Retaining)
}

// SetActiveSchema makes schema the default of the user connection.
func (e *Engine) SetActiveSchema(ctx context.Context, schema string) error {
	stmt := e.dialect.UseSchema(schema)
	id := e.log.Add(history.SeverityBusy, stmt, "Running...", durationUnknown)
	start := time.Now()

	l, err := e.sup.EnsureValid(ctx, e.sup.UserHandle())
	if err != nil {
		e.log.Set(id, history.SeverityError, "", sqlerr.MessageOf(err), durationUnknown)
		return err
	}
	defer l.Release()
	if _, err := e.ExecuteRaw(ctx, l, stmt); err != nil {
		e.log.Set(id, history.SeverityError, "", sqlerr.MessageOf(err), formatDuration(time.Since(start)))
		return err
	}
	e.schemaChanged(l, schema)
	e.log.Set(id, history.SeverityOK, "", "OK", formatDuration(time.Since(start)))
	return nil
}

// ToggleAutocommit flips the transaction mode of the user connection and
// returns the new mode. Switching autocommit on commits an open transaction.
func (e *Engine) ToggleAutocommit(ctx context.Context) (bool, error) {
	l, err := e.sup.EnsureValid(ctx, e.sup.UserHandle())
	if err != nil {
		return false, err
	}
	defer l.Release()

	on := !l.Handle().Autocommit()
	action := "SET autocommit = 0"
	if on {
		action = "SET autocommit = 1"
	}
	if err := l.SetAutocommit(ctx, on); err != nil {
		err = e.classify(err)
		e.log.Add(history.SeverityError, action, sqlerr.MessageOf(err), "")
		return !on, err
	}
	e.log.Add(history.SeverityOK, action, fmt.Sprintf("OK - autocommit is %s", onOff(on)), "")
	e.bus.Publish(events.Event{Type: events.EventTitleChanged})
	return on, nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
