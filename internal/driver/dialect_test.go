// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"testing"

	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
)

func TestDialectStatements(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"mysql kill", MySQL.KillQuery(42), "KILL QUERY 42"},
		{"pg kill", PostgreSQL.KillQuery(42), "SELECT pg_cancel_backend(42)"},
		{"mysql use", MySQL.UseSchema("sak`ila"), "USE `sak``ila`"},
		{"pg use", PostgreSQL.UseSchema("app"), `SET search_path TO "app"`},
		{"mysql limit", MySQL.LimitClause(1000), " LIMIT 0, 1000"},
		{"pg limit", PostgreSQL.LimitClause(1000), " LIMIT 1000"},
		{"mysql placeholder", MySQL.Placeholder(3), "?"},
		{"pg placeholder", PostgreSQL.Placeholder(3), "$3"},
		{"qualified", MySQL.QualifiedName("s", "t"), "`s`.`t`"},
		{"unqualified", PostgreSQL.QualifiedName("", "t"), `"t"`},
		{"blob", MySQL.BlobQuery("img", "SELECT * FROM p", "`id` = ?"), "SELECT `img`, length(`img`) FROM (SELECT * FROM p) t WHERE `id` = ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNormalizeSQLMode(t *testing.T) {
	tests := []struct {
		mode        string
		want        string
		wantChanged bool
	}{
		{"MYSQL40,STRICT_TRANS_TABLES", "STRICT_TRANS_TABLES", true},
		{"STRICT_TRANS_TABLES,MYSQL40,NO_ZERO_DATE", "STRICT_TRANS_TABLES,NO_ZERO_DATE", true},
		{"ANSI_QUOTES", "ANSI_QUOTES", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, changed := MySQL.NormalizeSQLMode(tt.mode)
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("NormalizeSQLMode(%q) = %q, %v, want %q, %v", tt.mode, got, changed, tt.want, tt.wantChanged)
			}
		})
	}
	if _, changed := PostgreSQL.NormalizeSQLMode("MYSQL40"); changed {
		t.Errorf("PostgreSQL has no sql_mode to normalize")
	}
}

func TestServerMajor(t *testing.T) {
	tests := map[string]int{
		"8.0.36-log":                8,
		"5.7.44":                    5,
		"16.2 (Debian 16.2-1.pgdg)": 16,
		"garbage":                   0,
	}
	for in, want := range tests {
		if got := ServerMajor(in); got != want {
			t.Errorf("ServerMajor(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNewColumn(t *testing.T) {
	tests := []struct {
		name     string
		d        *Dialect
		typeName string
		kind     TypeKind
		quoted   bool
		blob     bool
	}{
		{"mysql int", MySQL, "INT", KindNumeric, false, false},
		{"mysql unsigned", MySQL, "UNSIGNED BIGINT", KindNumeric, false, false},
		{"mysql lower varchar", MySQL, "varchar", KindString, true, false},
		{"mysql blob", MySQL, "BLOB", KindBinary, true, true},
		{"mysql text", MySQL, "TEXT", KindString, true, true},
		{"pg int4", PostgreSQL, "int4", KindNumeric, false, false},
		{"pg bytea", PostgreSQL, "bytea", KindBinary, true, true},
		{"pg timestamptz", PostgreSQL, "timestamptz", KindTemporal, true, false},
		{"pg array", PostgreSQL, "_int4", KindString, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.d.NewColumn("c", "t", tt.typeName)
			if c.Kind != tt.kind || c.Quoted != tt.quoted || c.Blob != tt.blob {
				t.Errorf("NewColumn(%q) = kind %v quoted %v blob %v", tt.typeName, c.Kind, c.Quoted, c.Blob)
			}
		})
	}
}

func TestForType(t *testing.T) {
	if d, err := ForType(dsn.DBTypeMySQL); err != nil || d != MySQL {
		t.Errorf("ForType(mysql) = %v, %v", d, err)
	}
	if _, err := ForType(dsn.DBTypeOracle); !sqlerr.Is(err, sqlerr.Unsupported) {
		t.Errorf("ForType(oracle) error = %v, want Unsupported", err)
	}
	if drv, err := New(dsn.DBTypePostgreSQL); err != nil || drv.Dialect() != PostgreSQL {
		t.Errorf("New(postgresql) = %v, %v", drv, err)
	}
}
