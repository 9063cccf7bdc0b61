// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlparse

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		stmt string
		want StatementType
	}{
		{"", Empty},
		{"  -- only a comment\n", Empty},
		{"/* block */", Empty},
		{"select 1", Select},
		{"/* hint */ SELECT * FROM t", Select},
		{"(select 1) union (select 2)", Select},
		{"with x as (select 1) select * from x", Select},
		{"with x as (delete from t returning *) select * from x", Other},
		{"select a into @v from t", Other},
		{"USE `sakila`", Use},
		{"set @@session.sql_mode = 'ANSI'", Set},
		{"drop table t", Drop},
		{"update t set a = 1", Other},
		{"call p()", Other},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			if got := Classify(tt.stmt); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"select 1", true},
		{"SHOW TABLES", true},
		{"call p()", true},
		{"explain select 1", true},
		{"insert into t values (1)", false},
		{"set names utf8mb4", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			if got := ReturnsRows(tt.stmt); got != tt.want {
				t.Errorf("ReturnsRows(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestLimitHelpers(t *testing.T) {
	tests := []struct {
		name     string
		stmt     string
		hasLimit bool
		insertAt string
	}{
		{name: "plain", stmt: "select * from t", insertAt: "select * from t"},
		{name: "trailing comment", stmt: "select * from t -- all rows", insertAt: "select * from t"},
		{name: "locking clause", stmt: "select * from t for update", insertAt: "select * from t "},
		{name: "existing limit", stmt: "select * from t limit 5", hasLimit: true, insertAt: "select * from t limit 5"},
		{name: "limit in subquery only", stmt: "select * from (select * from t limit 1) x", insertAt: "select * from (select * from t limit 1) x"},
		{name: "fetch first", stmt: "select * from t fetch first 3 rows only", hasLimit: true, insertAt: "select * from t fetch first 3 rows only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasLimit(tt.stmt); got != tt.hasLimit {
				t.Errorf("HasLimit() = %v, want %v", got, tt.hasLimit)
			}
			if got := tt.stmt[:LimitInsertPos(tt.stmt)]; got != tt.insertAt {
				t.Errorf("LimitInsertPos() prefix = %q, want %q", got, tt.insertAt)
			}
		})
	}
}

func TestSchemaTargets(t *testing.T) {
	if got, ok := UseTarget("use `my db`"); !ok || got != "my db" {
		t.Errorf("UseTarget() = %q, %v", got, ok)
	}
	if _, ok := UseTarget("select 1"); ok {
		t.Errorf("UseTarget() matched a SELECT")
	}

	tests := []struct {
		stmt string
		want string
		ok   bool
	}{
		{"SET search_path TO app, public", "app", true},
		{"set session search_path = 'reporting'", "reporting", true},
		{"SET SCHEMA 'audit'", "audit", true},
		{"SET NAMES utf8", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			got, ok := SearchPathTarget(tt.stmt)
			if ok != tt.ok || got != tt.want {
				t.Errorf("SearchPathTarget() = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDropTarget(t *testing.T) {
	tests := []struct {
		stmt       string
		want       DropInfo
		wantSchema bool
	}{
		{"DROP TABLE IF EXISTS shop.orders", DropInfo{Object: "TABLE", Schema: "shop", Name: "orders"}, false},
		{"drop temporary table tmp", DropInfo{Object: "TABLE", Name: "tmp"}, false},
		{"DROP DATABASE `sakila`", DropInfo{Object: "DATABASE", Schema: "sakila", Name: "sakila"}, true},
		{"drop schema if exists s cascade", DropInfo{Object: "SCHEMA", Schema: "s", Name: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			got, ok := DropTarget(tt.stmt)
			if !ok {
				t.Fatalf("DropTarget() not recognized")
			}
			if got != tt.want {
				t.Errorf("DropTarget() = %+v, want %+v", got, tt.want)
			}
			if got.IsSchema() != tt.wantSchema {
				t.Errorf("IsSchema() = %v", got.IsSchema())
			}
		})
	}
}

func TestSetsSQLMode(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SET @@SESSION.sql_mode = 'TRADITIONAL'", true},
		{"set sql_mode=''", true},
		{"set names utf8", false},
		{"select @@sql_mode", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			if got := SetsSQLMode(tt.stmt); got != tt.want {
				t.Errorf("SetsSQLMode(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}
