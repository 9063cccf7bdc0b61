// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"sqlide/cli/internal/driver"
)

func TestPickIdentifier(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want *RowIdentifier
	}{
		{
			name: "primary key",
			rows: [][]any{
				{"PRIMARY", "tenant_id", int64(0)},
				{"PRIMARY", "id", int64(0)},
				{"uq_email", "email", int64(0)},
			},
			want: &RowIdentifier{Index: "PRIMARY", Columns: []string{"tenant_id", "id"}},
		},
		{
			name: "skips unique index with nullable column",
			rows: [][]any{
				{"uq_code", "code", int64(1)},
				{"uq_email", "email", false},
			},
			want: &RowIdentifier{Index: "uq_email", Columns: []string{"email"}},
		},
		{
			name: "only nullable indexes",
			rows: [][]any{{"uq_code", "code", "YES"}},
		},
		{
			name: "no indexes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickIdentifier(tt.rows)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pickIdentifier() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInspectorCache(t *testing.T) {
	calls := 0
	q := func(_ context.Context, query string, args ...any) ([][]any, error) {
		calls++
		if query != driver.MySQL.BestRowIdentifierQuery {
			t.Errorf("unexpected query %q", query)
		}
		if args[1] == "broken" {
			return nil, errors.New("boom")
		}
		if args[1] == "logs" {
			return nil, nil
		}
		return [][]any{{"PRIMARY", "id", int64(0)}}, nil
	}
	si := NewInspector(driver.MySQL, q)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id, err := si.BestRowIdentifier(ctx, "app", "users")
		if err != nil || id == nil || id.Columns[0] != "id" {
			t.Fatalf("BestRowIdentifier() = %+v, %v", id, err)
		}
	}
	if id, _ := si.BestRowIdentifier(ctx, "app", "logs"); id != nil {
		t.Errorf("logs identifier = %+v, want nil", id)
	}
	si.BestRowIdentifier(ctx, "app", "logs")
	if calls != 2 {
		t.Errorf("catalog queried %d times, want 2 (misses are cached too)", calls)
	}

	if _, err := si.BestRowIdentifier(ctx, "app", "broken"); err == nil {
		t.Error("query errors should propagate")
	}
	si.BestRowIdentifier(ctx, "app", "broken")
	if calls != 4 {
		t.Errorf("errors must not be cached: %d calls", calls)
	}

	si.Invalidate("app", "users")
	si.BestRowIdentifier(ctx, "app", "users")
	if calls != 5 {
		t.Errorf("Invalidate did not drop the entry: %d calls", calls)
	}

	si.InvalidateSchema("app")
	si.BestRowIdentifier(ctx, "app", "users")
	si.BestRowIdentifier(ctx, "app", "logs")
	if calls != 7 {
		t.Errorf("InvalidateSchema did not drop entries: %d calls", calls)
	}

	si.ClearCache()
	si.BestRowIdentifier(ctx, "app", "users")
	if calls != 8 {
		t.Errorf("ClearCache did not drop entries: %d calls", calls)
	}
}
