// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlparse

import (
	"strings"
)

// StatementType is the coarse statement class the engine reacts to.
type StatementType string

const (
	Empty  StatementType = "empty"
	Select StatementType = "select"
	Use    StatementType = "use"
	Set    StatementType = "set"
	Drop   StatementType = "drop"
	Other  StatementType = "other"
)

// rowKeywords start statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"CALL":     true,
	"HELP":     true,
	"CHECK":    true,
	"ANALYZE":  true,
	"OPTIMIZE": true,
	"REPAIR":   true,
	"CHECKSUM": true,
}

// firstKeyword returns the first significant word of stmt, upper-cased.
// A leading parenthesis is skipped so "(SELECT ...) UNION ..." counts as SELECT.
func firstKeyword(toks []token) string {
	for _, t := range toks {
		if t.kind == tokPunct && t.text == "(" {
			continue
		}
		if t.kind == tokWord {
			return t.upper()
		}
		return ""
	}
	return ""
}

// Classify returns the statement type of stmt.
func Classify(stmt string) StatementType {
	toks := tokenize(stmt)
	if len(toks) == 0 {
		return Empty
	}
	switch firstKeyword(toks) {
	case "SELECT", "WITH":
		if isSelectQuery(toks) {
			return Select
		}
		return Other
	case "USE":
		return Use
	case "SET":
		return Set
	case "DROP":
		return Drop
	}
	return Other
}

// isSelectQuery reports whether a SELECT/WITH statement is a plain query and not
// a data-modifying CTE or SELECT ... INTO.
func isSelectQuery(toks []token) bool {
	for _, t := range toks {
		if t.depth != 0 || t.kind != tokWord {
			continue
		}
		switch t.upper() {
		case "INSERT", "UPDATE", "DELETE", "INTO":
			return false
		}
	}
	return true
}

// ReturnsRows reports whether stmt is expected to produce a result set.
func ReturnsRows(stmt string) bool {
	toks := tokenize(stmt)
	kw := firstKeyword(toks)
	if kw == "WITH" {
		return isSelectQuery(toks)
	}
	return rowKeywords[kw]
}

// IsCompound reports whether a SELECT combines several queries at top level.
func IsCompound(stmt string) bool {
	for _, t := range tokenize(stmt) {
		if t.depth != 0 || t.kind != tokWord {
			continue
		}
		switch t.upper() {
		case "UNION", "INTERSECT", "EXCEPT", "MINUS":
			return true
		}
	}
	return false
}

// HasLimit reports whether stmt already carries a top-level row limit.
func HasLimit(stmt string) bool {
	toks := tokenize(stmt)
	for i, t := range toks {
		if t.depth != 0 || t.kind != tokWord {
			continue
		}
		if t.is("LIMIT") {
			return true
		}
		if t.is("FETCH") && i+1 < len(toks) && (toks[i+1].is("FIRST") || toks[i+1].is("NEXT")) {
			return true
		}
	}
	return false
}

// LimitInsertPos returns the offset at which a LIMIT clause can be inserted into a
// SELECT: before a trailing locking clause (FOR UPDATE, FOR SHARE, LOCK IN SHARE MODE)
// or otherwise right after the last significant token, ahead of trailing comments.
func LimitInsertPos(stmt string) int {
	toks := tokenize(stmt)
	if len(toks) == 0 {
		return len(stmt)
	}
	for i, t := range toks {
		if t.depth != 0 {
			continue
		}
		if t.is("FOR") && i+1 < len(toks) && (toks[i+1].is("UPDATE") || toks[i+1].is("SHARE") || toks[i+1].is("NO") || toks[i+1].is("KEY")) {
			return t.pos
		}
		if t.is("LOCK") && i+1 < len(toks) && toks[i+1].is("IN") {
			return t.pos
		}
	}
	return toks[len(toks)-1].end
}

// UseTarget returns the schema named by a USE statement.
func UseTarget(stmt string) (string, bool) {
	toks := tokenize(stmt)
	if len(toks) < 2 || !toks[0].is("USE") {
		return "", false
	}
	return toks[1].ident(), true
}

// SearchPathTarget returns the first schema of a PostgreSQL
// "SET [SESSION] search_path TO|= a, b" or "SET SCHEMA 'a'" statement.
func SearchPathTarget(stmt string) (string, bool) {
	toks := tokenize(stmt)
	if len(toks) < 3 || !toks[0].is("SET") {
		return "", false
	}
	i := 1
	if toks[i].is("SESSION") {
		i++
	}
	if i >= len(toks) {
		return "", false
	}
	if toks[i].is("SCHEMA") && i+1 < len(toks) {
		return unquoteString(toks[i+1]), true
	}
	if !toks[i].is("search_path") || i+2 >= len(toks) {
		return "", false
	}
	if !toks[i+1].is("TO") && toks[i+1].text != "=" {
		return "", false
	}
	return unquoteString(toks[i+2]), true
}

func unquoteString(t token) string {
	if t.kind == tokString && len(t.text) >= 2 && t.text[0] == '\'' {
		return strings.ReplaceAll(t.text[1:len(t.text)-1], "''", "'")
	}
	return t.ident()
}

// DropInfo describes the object removed by a DROP statement.
type DropInfo struct {
	// Object is the object class, e.g. TABLE, VIEW, SCHEMA, DATABASE.
	Object string
	Schema string
	Name   string
}

// IsSchema reports whether a whole schema/database was dropped.
func (d DropInfo) IsSchema() bool {
	return d.Object == "SCHEMA" || d.Object == "DATABASE"
}

// DropTarget parses "DROP [TEMPORARY] <object> [IF EXISTS] [schema.]name".
func DropTarget(stmt string) (DropInfo, bool) {
	toks := tokenize(stmt)
	if len(toks) < 3 || !toks[0].is("DROP") {
		return DropInfo{}, false
	}
	i := 1
	if toks[i].is("TEMPORARY") {
		i++
	}
	if i >= len(toks) {
		return DropInfo{}, false
	}
	info := DropInfo{Object: toks[i].upper()}
	i++
	if i+1 < len(toks) && toks[i].is("IF") && toks[i+1].is("EXISTS") {
		i += 2
	}
	if i >= len(toks) {
		return DropInfo{}, false
	}
	info.Name = toks[i].ident()
	if i+2 < len(toks) && toks[i+1].text == "." {
		info.Schema = info.Name
		info.Name = toks[i+2].ident()
	}
	if info.IsSchema() {
		info.Schema = info.Name
	}
	return info, true
}

// SetsSQLMode reports whether a SET statement assigns the session sql_mode.
func SetsSQLMode(stmt string) bool {
	toks := tokenize(stmt)
	if len(toks) == 0 || !toks[0].is("SET") {
		return false
	}
	for _, t := range toks[1:] {
		if t.kind == tokWord && strings.Contains(strings.ToLower(t.text), "sql_mode") {
			return true
		}
	}
	return false
}
