// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/driver/drivertest"
	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/sqlparse"
)

type staticKeys map[string]*RowIdentifier

func (k staticKeys) BestRowIdentifier(_ context.Context, schema, table string) (*RowIdentifier, error) {
	return k[schema+"."+table], nil
}

var usersKey = staticKeys{"app.users": {Index: "PRIMARY", Columns: []string{"id"}}}

// fetch runs stmt against a fake connection answering with resp and populates a recordset.
func fetch(t *testing.T, d *driver.Dialect, stmt string, resp drivertest.Response, keys KeyResolver, mutate func(*Options)) *Recordset {
	t.Helper()
	ctx := context.Background()
	drv := drivertest.New(d, func(_ *drivertest.Conn, sql string, _ []any) (drivertest.Response, bool) {
		return resp, sql == stmt
	})
	c, err := drv.Open(ctx, &dsn.DSNInfo{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cur, err := c.Execute(ctx, stmt)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !cur.NextResultSet() {
		t.Fatalf("no result set: %v", cur.Err())
	}

	opts := Options{Caption: "users 1", SQL: stmt, Dialect: d, Schema: "app", Keys: keys}
	if target, ok := sqlparse.ParseSelectForEdit(stmt); ok {
		opts.Target = target
	}
	if mutate != nil {
		mutate(&opts)
	}
	rs := New(opts)
	if _, err := rs.Populate(ctx, cur, nil); err != nil {
		t.Fatalf("populate: %v", err)
	}
	return rs
}

func usersResult(d *driver.Dialect) drivertest.Response {
	return drivertest.Rows(drivertest.Columns(d, "id", "INT", "name", "VARCHAR"),
		[]any{int64(1), "alice"},
		[]any{int64(2), "bob"},
	)
}

func TestEditability(t *testing.T) {
	d := driver.MySQL
	tests := []struct {
		name     string
		stmt     string
		resp     drivertest.Response
		keys     KeyResolver
		readOnly bool
		reason   string
	}{
		{
			name: "single table with primary key",
			stmt: "SELECT id, name FROM users",
			resp: usersResult(d),
			keys: usersKey,
		},
		{
			name:     "join results are read-only",
			stmt:     "SELECT u.id, o.total FROM users u JOIN orders o ON o.user_id = u.id",
			resp:     usersResult(d),
			keys:     usersKey,
			readOnly: true,
			reason:   ReasonNotSingleTable,
		},
		{
			name:     "table without identifier",
			stmt:     "SELECT id, name FROM logs",
			resp:     usersResult(d),
			keys:     usersKey,
			readOnly: true,
			reason:   ReasonNoIdentifier,
		},
		{
			name:     "identifier column not selected",
			stmt:     "SELECT name FROM users",
			resp:     drivertest.Single(drivertest.Column(d, "name", "VARCHAR"), []any{"alice"}),
			keys:     usersKey,
			readOnly: true,
			reason:   ReasonKeyNotSelected,
		},
		{
			name: "wildcard maps result names",
			stmt: "SELECT * FROM app.users",
			resp: usersResult(d),
			keys: usersKey,
		},
		{
			name: "aliased key column",
			stmt: "SELECT id AS user_id, name FROM users",
			resp: drivertest.Rows(drivertest.Columns(d, "user_id", "INT", "name", "VARCHAR"), []any{int64(1), "alice"}),
			keys: usersKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := fetch(t, d, tt.stmt, tt.resp, tt.keys, nil)
			if rs.IsReadOnly() != tt.readOnly {
				t.Fatalf("IsReadOnly() = %v, want %v (reason %q)", rs.IsReadOnly(), tt.readOnly, rs.ReadOnlyReason())
			}
			if rs.ReadOnlyReason() != tt.reason {
				t.Errorf("ReadOnlyReason() = %q, want %q", rs.ReadOnlyReason(), tt.reason)
			}
			if tt.readOnly {
				err := rs.SetField(0, 0, "x")
				if !sqlerr.Is(err, sqlerr.EditConflict) {
					t.Fatalf("SetField on read-only = %v, want EditConflict", err)
				}
				if want := "Recordset is read-only: " + tt.reason; sqlerr.MessageOf(err) != want {
					t.Errorf("message = %q, want %q", sqlerr.MessageOf(err), want)
				}
			}
		})
	}
}

func TestCompileChangeScript(t *testing.T) {
	tests := []struct {
		name    string
		dialect *driver.Dialect
		edit    func(t *testing.T, rs *Recordset)
		want    []Statement
	}{
		{
			name:    "single UPDATE whose WHERE uses the original PK",
			dialect: driver.MySQL,
			edit: func(t *testing.T, rs *Recordset) {
				mustEdit(t, rs.SetField(0, 1, "alicia"))
				mustEdit(t, rs.SetField(0, 0, int64(10)))
			},
			want: []Statement{{
				SQL:  "UPDATE `app`.`users` SET `id` = ?, `name` = ? WHERE `id` = ?",
				Args: []any{int64(10), "alicia", int64(1)},
			}},
		},
		{
			name:    "only changed columns are updated",
			dialect: driver.MySQL,
			edit: func(t *testing.T, rs *Recordset) {
				mustEdit(t, rs.SetField(1, 1, "robert"))
			},
			want: []Statement{{
				SQL:  "UPDATE `app`.`users` SET `name` = ? WHERE `id` = ?",
				Args: []any{"robert", int64(2)},
			}},
		},
		{
			name:    "reverted edit produces nothing",
			dialect: driver.MySQL,
			edit: func(t *testing.T, rs *Recordset) {
				mustEdit(t, rs.SetField(1, 1, "robert"))
				mustEdit(t, rs.SetField(1, 1, "bob"))
			},
		},
		{
			name:    "delete then update then insert with numbered placeholders",
			dialect: driver.PostgreSQL,
			edit: func(t *testing.T, rs *Recordset) {
				_, err := rs.AddRow([]any{int64(3), "carol"})
				mustEdit(t, err)
				mustEdit(t, rs.SetField(1, 1, "robert"))
				mustEdit(t, rs.DeleteRow(0))
			},
			want: []Statement{
				{SQL: `DELETE FROM "app"."users" WHERE "id" = $1`, Args: []any{int64(1)}},
				{SQL: `UPDATE "app"."users" SET "name" = $1 WHERE "id" = $2`, Args: []any{"robert", int64(2)}},
				{SQL: `INSERT INTO "app"."users" ("id", "name") VALUES ($1, $2)`, Args: []any{int64(3), "carol"}},
			},
		},
		{
			name:    "deleting an inserted row leaves no trace",
			dialect: driver.MySQL,
			edit: func(t *testing.T, rs *Recordset) {
				idx, err := rs.AddRow([]any{int64(3)})
				mustEdit(t, err)
				mustEdit(t, rs.DeleteRow(idx))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := fetch(t, tt.dialect, "SELECT id, name FROM users", usersResult(tt.dialect), usersKey, nil)
			tt.edit(t, rs)
			got := rs.CompileChangeScript()
			if len(got) == 0 && len(tt.want) == 0 {
				if rs.HasPendingChanges() {
					t.Error("HasPendingChanges() = true with an empty script")
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CompileChangeScript() =\n%#v\nwant\n%#v", got, tt.want)
			}
			if !rs.HasPendingChanges() || rs.CanClose() {
				t.Error("edited recordset should report pending changes")
			}
		})
	}
}

func mustEdit(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
}

func TestDiscardAndMarkClean(t *testing.T) {
	d := driver.MySQL
	rs := fetch(t, d, "SELECT id, name FROM users", usersResult(d), usersKey, nil)

	mustEdit(t, rs.SetField(0, 1, "alicia"))
	mustEdit(t, rs.DeleteRow(1))
	if _, err := rs.AddRow([]any{int64(3), "carol"}); err != nil {
		t.Fatal(err)
	}
	rs.DiscardChanges()
	if rs.HasPendingChanges() {
		t.Fatal("DiscardChanges left pending changes")
	}
	if rs.RowCount() != 2 {
		t.Fatalf("RowCount() = %d, want 2", rs.RowCount())
	}
	if got := rs.Value(0, 1); got != "alice" {
		t.Errorf("Value(0, 1) = %v, want alice", got)
	}

	mustEdit(t, rs.SetField(0, 1, "alicia"))
	rs.MarkClean()
	if rs.HasPendingChanges() || len(rs.CompileChangeScript()) != 0 {
		t.Error("MarkClean should accept current values")
	}
	if got := rs.Value(0, 1); got != "alicia" {
		t.Errorf("Value(0, 1) = %v, want alicia", got)
	}
}

func TestPopulateStop(t *testing.T) {
	d := driver.MySQL
	ctx := context.Background()
	stopped := false
	resp := drivertest.Rows(drivertest.Columns(d, "n", "INT"), []any{int64(1)}, []any{int64(2)}, []any{int64(3)})
	resp.Results[0].OnRow = func(i int) {
		if i == 1 {
			stopped = true
		}
	}
	drv := drivertest.New(d, func(*drivertest.Conn, string, []any) (drivertest.Response, bool) { return resp, true })
	c, _ := drv.Open(ctx, &dsn.DSNInfo{})
	cur, _ := c.Execute(ctx, "SELECT n FROM t")
	cur.NextResultSet()

	rs := New(Options{SQL: "SELECT n FROM t", Dialect: d})
	n, err := rs.Populate(ctx, cur, func() bool { return stopped })
	if !sqlerr.Is(err, sqlerr.Cancelled) {
		t.Fatalf("Populate() error = %v, want Cancelled", err)
	}
	if sqlerr.MessageOf(err) != MsgStopped {
		t.Errorf("message = %q", sqlerr.MessageOf(err))
	}
	if n != 1 || rs.RowCount() != 1 {
		t.Errorf("rows = %d/%d, want 1", n, rs.RowCount())
	}
}

func TestFetchBlob(t *testing.T) {
	d := driver.MySQL
	var gotQuery string
	var gotArgs []any
	blobs := QueryFunc(func(_ context.Context, query string, args ...any) ([][]any, error) {
		gotQuery, gotArgs = query, args
		return [][]any{{[]byte("payload"), int64(7)}}, nil
	})
	resp := drivertest.Rows(drivertest.Columns(d, "id", "INT", "body", "LONGBLOB"), []any{int64(5), []byte("payload")})
	stmt := "SELECT id, body FROM users"
	rs := fetch(t, d, stmt, resp, usersKey, func(o *Options) {
		o.Blobs = blobs
		o.DeferBlobs = true
	})

	if _, ok := rs.Value(0, 1).(DeferredBlob); !ok {
		t.Fatalf("Value(0, 1) = %#v, want DeferredBlob", rs.Value(0, 1))
	}
	data, err := rs.FetchBlob(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("FetchBlob() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("FetchBlob() = %q", data)
	}
	wantQuery := "SELECT `body`, length(`body`) FROM (" + stmt + ") t WHERE `id` = ?"
	if gotQuery != wantQuery {
		t.Errorf("query = %q, want %q", gotQuery, wantQuery)
	}
	if !reflect.DeepEqual(gotArgs, []any{int64(5)}) {
		t.Errorf("args = %v", gotArgs)
	}

	gotQuery = ""
	if _, err := rs.FetchBlob(context.Background(), 0, 1); err != nil || gotQuery != "" {
		t.Errorf("second FetchBlob should use the kept value (err %v, query %q)", err, gotQuery)
	}
}

func TestReadOnlyKeepsBlobs(t *testing.T) {
	d := driver.MySQL
	resp := drivertest.Rows(drivertest.Columns(d, "id", "INT", "body", "TEXT"), []any{int64(5), "long text"})
	rs := fetch(t, d, "SELECT id, body FROM logs", resp, usersKey, func(o *Options) { o.DeferBlobs = true })
	if got := rs.Value(0, 1); got != "long text" {
		t.Errorf("Value(0, 1) = %#v, want the fetched text", got)
	}
	if !strings.Contains(rs.ReadOnlyReason(), "unique row identifier") {
		t.Errorf("ReadOnlyReason() = %q", rs.ReadOnlyReason())
	}
}
