// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"strings"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/sqlparse"
)

// Prepared is a statement ready to be sent to the server.
type Prepared struct {
	// SQL is the text to execute, possibly with a LIMIT clause added.
	SQL  string
	Kind sqlparse.StatementType
	// Target is set for SELECTs whose results can be edited.
	Target *sqlparse.EditTarget
	// Limited reports whether a LIMIT clause was added.
	Limited bool
}

// StatementFixer decorates statements before execution. Plain, non-compound
// SELECTs get the configured row limit unless they already carry one, and are
// parsed for the single table their results could be edited against.
type StatementFixer struct {
	dialect *driver.Dialect
	limit   int
}

// NewStatementFixer creates a fixer. A zero limit disables LIMIT injection.
func NewStatementFixer(d *driver.Dialect, cfg config.EditorConfig) *StatementFixer {
	limit := 0
	if cfg.LimitRows && cfg.LimitRowsCount > 0 {
		limit = cfg.LimitRowsCount
	}
	return &StatementFixer{dialect: d, limit: limit}
}

// Prepare classifies stmt and applies the SELECT decorations allowed by flags.
func (f *StatementFixer) Prepare(stmt string, flags Flags) Prepared {
	p := Prepared{SQL: stmt, Kind: sqlparse.Classify(stmt)}
	if p.Kind != sqlparse.Select || sqlparse.IsCompound(stmt) {
		return p
	}
	if f.limit > 0 && !flags.Has(DontAddLimitClause) && !sqlparse.HasLimit(stmt) {
		p.SQL = f.addLimit(stmt)
		p.Limited = true
	}
	if target, ok := sqlparse.ParseSelectForEdit(stmt); ok {
		p.Target = target
	}
	return p
}

// addLimit inserts the limit clause ahead of any locking clause and trailing comments.
func (f *StatementFixer) addLimit(stmt string) string {
	pos := sqlparse.LimitInsertPos(stmt)
	head := strings.TrimRight(stmt[:pos], " \t\r\n")
	tail := strings.TrimLeft(stmt[pos:], " \t\r\n")
	out := head + f.dialect.LimitClause(f.limit)
	if tail != "" {
		out += " " + tail
	}
	return out
}
