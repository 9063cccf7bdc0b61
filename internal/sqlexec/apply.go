// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"time"

	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/recordset"
)

// ApplyChoice is the answer to the question asked before applying edits inside
// an already open transaction.
type ApplyChoice int

const (
	ApplyCancel ApplyChoice = iota
	// ApplyOnly runs the change script inside the open transaction.
	ApplyOnly
	// CommitAndApply commits the open transaction first.
	CommitAndApply
)

func (c ApplyChoice) String() string {
	switch c {
	case ApplyOnly:
		return "Apply"
	case CommitAndApply:
		return "Commit and Apply"
	default:
		return "Cancel"
	}
}

// Confirmer is asked what to do when autocommit is off. A failure while applying
// rolls back the whole transaction, including earlier work in it.
type Confirmer func(table string) ApplyChoice

// ApplyChanges writes the pending edits of rs to the server in one transaction.
// With autocommit on, it is switched off for the duration and restored afterwards.
// Any failing statement rolls everything back and fails with ApplyFailed.
func (e *Engine) ApplyChanges(ctx context.Context, rs *recordset.Recordset, confirm Confirmer) error {
	if rs.IsReadOnly() {
		return sqlerr.New(sqlerr.EditConflict, "Recordset is read-only: "+rs.ReadOnlyReason())
	}
	script := rs.CompileChangeScript()
	if len(script) == 0 {
		return nil
	}
	table := rs.QualifiedTable()
	action := "Apply changes to " + table
	start := time.Now()

	l, err := e.sup.EnsureValid(ctx, e.sup.UserHandle())
	if err != nil {
		return err
	}
	defer l.Release()

	if l.Handle().Autocommit() {
		if err := l.SetAutocommit(ctx, false); err != nil {
			return e.classify(err)
		}
		defer func() {
			if err := l.SetAutocommit(ctx, true); err != nil {
				e.logger.Warn("could not restore autocommit", e.logger.Args("error", err))
			}
		}()
	} else {
		choice := ApplyOnly
		if confirm != nil {
			choice = confirm(table)
		}
		switch choice {
		case ApplyCancel:
			return sqlerr.New(sqlerr.Cancelled, "Applying changes was cancelled")
		case CommitAndApply:
			if _, err := e.ExecuteRaw(ctx, l, "COMMIT"); err != nil {
				e.log.Add(history.SeverityError, "COMMIT", sqlerr.MessageOf(err), "")
				return err
			}
		}
	}

	failed := 0
	for _, st := range script {
		id := e.log.Add(history.SeverityBusy, st.SQL, "Running...", durationUnknown)
		stmtStart := time.Now()
		n, err := e.ExecuteRaw(ctx, l, st.SQL, st.Args...)
		if err != nil {
			failed++
			e.log.Set(id, history.SeverityError, "", sqlerr.MessageOf(err), formatDuration(time.Since(stmtStart)))
			continue
		}
		e.log.Set(id, history.SeverityOK, "", fmt.Sprintf("%d row(s) affected", n), formatDuration(time.Since(stmtStart)))
	}

	if failed > 0 {
		if _, err := e.ExecuteRaw(ctx, l, "ROLLBACK"); err != nil {
			e.logger.Warn("rollback after failed apply", e.logger.Args("error", err))
		}
		msg := fmt.Sprintf("%d error(s) saving changes to table %s", failed, table)
		e.log.Add(history.SeverityError, action, msg, formatDuration(time.Since(start)))
		return sqlerr.New(sqlerr.ApplyFailed, msg)
	}
	if _, err := e.ExecuteRaw(ctx, l, "COMMIT"); err != nil {
		msg := fmt.Sprintf("1 error(s) saving changes to table %s", table)
		e.log.Add(history.SeverityError, action, sqlerr.MessageOf(err), formatDuration(time.Since(start)))
		return sqlerr.Wrap(sqlerr.ApplyFailed, msg, err)
	}
	rs.MarkClean()
	e.log.Add(history.SeverityOK, action, "OK", formatDuration(time.Since(start)))
	e.logger.Debug("changes applied", e.logger.Args("table", table, "statements", len(script)))
	return nil
}
