// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/driver/drivertest"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/recordset"
)

const updateActor = "UPDATE `sakila`.`actor` SET `first_name` = ? WHERE `actor_id` = ?"

// actorTable answers the actor SELECT and its row identifier lookup; failUpdate
// makes the change script fail.
func actorTable(failUpdate bool) drivertest.Handler {
	d := driver.MySQL
	return func(c *drivertest.Conn, sql string, _ []any) (drivertest.Response, bool) {
		switch {
		case sql == d.BestRowIdentifierQuery:
			return drivertest.Rows(drivertest.Columns(d, "index_name", "VARCHAR", "column_name", "VARCHAR", "nullable", "INT"),
				[]any{"PRIMARY", "actor_id", int64(0)}), true
		case sql == "SELECT actor_id, first_name FROM actor LIMIT 0, 1000":
			return drivertest.Rows(drivertest.Columns(d, "actor_id", "SMALLINT", "first_name", "VARCHAR"),
				[]any{int64(1), "PENELOPE"},
				[]any{int64(2), "NICK"},
			), true
		case failUpdate && strings.HasPrefix(sql, "UPDATE"):
			return drivertest.Fail(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'first_name' at row 1"}), true
		}
		return drivertest.Response{}, false
	}
}

func editedActor(t *testing.T, h *harness) *recordset.Recordset {
	t.Helper()
	report, err := h.eng.Execute(context.Background(), NewEditor(""), "SELECT actor_id, first_name FROM actor", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %d", len(report.Results))
	}
	rs := report.Results[0]
	if rs.IsReadOnly() {
		t.Fatalf("actor results should be editable: %s", rs.ReadOnlyReason())
	}
	if rs.Caption() != "actor 1" {
		t.Errorf("Caption() = %q", rs.Caption())
	}
	if err := rs.SetField(0, 1, "PENNY"); err != nil {
		t.Fatal(err)
	}
	return rs
}

// since returns the statements run on c after the first n.
func since(c *drivertest.Conn, n int) []string {
	return c.Executed()[n:]
}

func TestApplyChanges(t *testing.T) {
	tests := []struct {
		name       string
		autocommit bool
		failUpdate bool
		confirm    Confirmer
		wantKind   sqlerr.Kind
		wantSQL    []string
		wantClean  bool
	}{
		{
			name:       "autocommit switched off for the apply",
			autocommit: true,
			wantSQL:    []string{"autocommit=0", updateActor, "COMMIT", "autocommit=1"},
			wantClean:  true,
		},
		{
			name:       "failure rolls back",
			autocommit: true,
			failUpdate: true,
			wantKind:   sqlerr.ApplyFailed,
			wantSQL:    []string{"autocommit=0", updateActor, "ROLLBACK", "autocommit=1"},
		},
		{
			name:     "open transaction cancelled",
			confirm:  func(string) ApplyChoice { return ApplyCancel },
			wantKind: sqlerr.Cancelled,
		},
		{
			name:      "open transaction committed first",
			confirm:   func(string) ApplyChoice { return CommitAndApply },
			wantSQL:   []string{"COMMIT", updateActor, "COMMIT"},
			wantClean: true,
		},
		{
			name:      "apply inside open transaction",
			confirm:   func(string) ApplyChoice { return ApplyOnly },
			wantSQL:   []string{updateActor, "COMMIT"},
			wantClean: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, actorTable(tt.failUpdate), func(c *config.Config) {
				c.Session.Autocommit = tt.autocommit
			})
			rs := editedActor(t, h)
			before := len(h.userConn().Executed())

			err := h.eng.ApplyChanges(context.Background(), rs, tt.confirm)
			if sqlerr.KindOf(err) != tt.wantKind {
				t.Fatalf("ApplyChanges() = %v, want kind %q", err, tt.wantKind)
			}
			if got := since(h.userConn(), before); !slices.Equal(got, tt.wantSQL) {
				t.Errorf("executed %q, want %q", got, tt.wantSQL)
			}
			if rs.HasPendingChanges() == tt.wantClean {
				t.Errorf("HasPendingChanges() = %v", rs.HasPendingChanges())
			}
			if h.sup.UserHandle().Autocommit() != tt.autocommit {
				t.Error("autocommit mode was not restored")
			}
		})
	}
}

func TestApplyFailureMessage(t *testing.T) {
	h := newHarness(t, actorTable(true), nil)
	rs := editedActor(t, h)
	err := h.eng.ApplyChanges(context.Background(), rs, nil)
	want := "1 error(s) saving changes to table sakila.actor"
	if sqlerr.MessageOf(err) != want {
		t.Errorf("message = %q, want %q", sqlerr.MessageOf(err), want)
	}

	var sawStatement bool
	for _, e := range h.log.Entries() {
		if e.Action == updateActor && e.Severity == history.SeverityError && strings.Contains(e.Message, "Error Code: 1406.") {
			sawStatement = true
		}
	}
	if !sawStatement {
		t.Errorf("failing statement not reported: %+v", h.log.Entries())
	}
}

func TestApplyReadOnly(t *testing.T) {
	h := newHarness(t, script(), nil)
	report, err := h.eng.Execute(context.Background(), NewEditor(""), "SELECT 1", 0)
	if err != nil {
		t.Fatal(err)
	}
	err = h.eng.ApplyChanges(context.Background(), report.Results[0], nil)
	if !sqlerr.Is(err, sqlerr.EditConflict) {
		t.Errorf("ApplyChanges() on read-only = %v", err)
	}
}
