// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlparse

import (
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		delimiter string
		want      []string
	}{
		{
			name:   "two statements",
			script: "select 1; select 2;",
			want:   []string{"select 1", "select 2"},
		},
		{
			name:   "trailing statement without delimiter",
			script: "select 1;\n  update t set a = 1  ",
			want:   []string{"select 1", "update t set a = 1"},
		},
		{
			name:   "semicolon inside strings and identifiers",
			script: "insert into t values ('a;b', \"c;d\"); select `x;y` from t",
			want:   []string{"insert into t values ('a;b', \"c;d\")", "select `x;y` from t"},
		},
		{
			name:   "escaped quote",
			script: `select 'it\'s; fine'; select 2`,
			want:   []string{`select 'it\'s; fine'`, "select 2"},
		},
		{
			name:   "comments keep their semicolons",
			script: "select 1 -- a;b\n; /* c;d */ select 2",
			want:   []string{"select 1 -- a;b", "/* c;d */ select 2"},
		},
		{
			name:   "dollar quoted body",
			script: "create function f() returns int as $body$ begin return 1; end $body$ language plpgsql; select f()",
			want: []string{
				"create function f() returns int as $body$ begin return 1; end $body$ language plpgsql",
				"select f()",
			},
		},
		{
			name:   "delimiter command",
			script: "DELIMITER //\ncreate procedure p() begin select 1; select 2; end//\nDELIMITER ;\ncall p();",
			want:   []string{"create procedure p() begin select 1; select 2; end", "call p()"},
		},
		{
			name:      "non standard delimiter override",
			script:    "create trigger tr before insert on t for each row begin set new.a = 1; end$$ select 1$$",
			delimiter: "$$",
			want:      []string{"create trigger tr before insert on t for each row begin set new.a = 1; end", "select 1"},
		},
		{
			name:   "whitespace only pieces dropped",
			script: " ; ;\n;select 1;;",
			want:   []string{"select 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.script, tt.delimiter)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitStatements() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	script := "select 1;\n\n  select 2;\n/* x\n y */ select 3"
	ranges := Split(script, "")
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges", len(ranges))
	}
	wantLines := []int{1, 3, 4}
	for i, r := range ranges {
		if r.Line != wantLines[i] {
			t.Errorf("range %d line = %d, want %d", i, r.Line, wantLines[i])
		}
	}
	if got := ranges[1].Text(script); got != "select 2" {
		t.Errorf("range 1 text = %q", got)
	}
}
