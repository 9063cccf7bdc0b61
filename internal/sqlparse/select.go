// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlparse

import (
	"strings"
)

// SelectColumn is one item of a SELECT list.
type SelectColumn struct {
	// Name is the source column, "*" for a wildcard, or "" for an expression.
	Name string
	// Alias is the AS name, if any.
	Alias string
	// Expr is the raw item text.
	Expr string
}

// EditTarget names the single table a SELECT reads from.
type EditTarget struct {
	Schema  string
	Table   string
	Alias   string
	Columns []SelectColumn
}

// clauses allowed after the FROM table of an editable SELECT.
var trailingClauses = map[string]bool{
	"WHERE":  true,
	"ORDER":  true,
	"LIMIT":  true,
	"OFFSET": true,
	"FOR":    true,
	"LOCK":   true,
	"FETCH":  true,
}

// ParseSelectForEdit recognizes "SELECT <columns> FROM [schema.]table [[AS] alias] ..."
// where only filtering, ordering, limiting and locking clauses follow the table.
// Joins, comma joins, subqueries in FROM, grouping, DISTINCT and set operations make the
// statement non-editable and return false.
func ParseSelectForEdit(stmt string) (*EditTarget, bool) {
	toks := tokenize(stmt)
	if len(toks) < 4 || !toks[0].is("SELECT") || IsCompound(stmt) {
		return nil, false
	}

	from := -1
	for i, t := range toks {
		if t.depth == 0 && t.is("FROM") {
			from = i
			break
		}
	}
	if from < 2 || from+1 >= len(toks) {
		return nil, false
	}

	list := toks[1:from]
	if len(list) > 0 && (list[0].is("DISTINCT") || list[0].is("DISTINCTROW")) {
		return nil, false
	}
	// MySQL select modifiers carry no meaning for editability
	for len(list) > 0 && list[0].kind == tokWord && strings.HasPrefix(list[0].upper(), "SQL_") {
		list = list[1:]
	}
	if len(list) > 0 && list[0].is("ALL") {
		list = list[1:]
	}
	if len(list) == 0 {
		return nil, false
	}

	target := &EditTarget{}
	for _, item := range splitTopLevel(list, ",") {
		target.Columns = append(target.Columns, selectColumn(stmt, item))
	}

	rest := toks[from+1:]
	if rest[0].kind != tokWord && rest[0].kind != tokQuotedIdent {
		return nil, false
	}
	target.Table = rest[0].ident()
	n := 1
	if len(rest) >= 3 && rest[1].text == "." && (rest[2].kind == tokWord || rest[2].kind == tokQuotedIdent) {
		target.Schema = target.Table
		target.Table = rest[2].ident()
		n = 3
	}
	rest = rest[n:]

	if len(rest) > 0 && rest[0].is("AS") {
		if len(rest) < 2 {
			return nil, false
		}
		target.Alias = rest[1].ident()
		rest = rest[2:]
	} else if len(rest) > 0 && (rest[0].kind == tokQuotedIdent || (rest[0].kind == tokWord && !trailingClauses[rest[0].upper()] && !isJoinWord(rest[0]))) {
		target.Alias = rest[0].ident()
		rest = rest[1:]
	}

	if len(rest) > 0 {
		if rest[0].depth != 0 || rest[0].kind != tokWord || !trailingClauses[rest[0].upper()] {
			return nil, false
		}
	}
	for _, t := range rest {
		if t.depth != 0 || t.kind != tokWord {
			continue
		}
		switch t.upper() {
		case "JOIN", "GROUP", "HAVING", "WINDOW", "INTO":
			return nil, false
		}
	}
	return target, true
}

func isJoinWord(t token) bool {
	switch t.upper() {
	case "JOIN", "INNER", "LEFT", "RIGHT", "CROSS", "NATURAL", "FULL", "STRAIGHT_JOIN",
		"GROUP", "HAVING", "UNION", "WINDOW", "USE", "FORCE", "IGNORE", "PARTITION", "TABLESAMPLE":
		return true
	}
	return false
}

func splitTopLevel(toks []token, sep string) [][]token {
	var out [][]token
	var cur []token
	base := 0
	if len(toks) > 0 {
		base = toks[0].depth
	}
	for _, t := range toks {
		if t.depth == base && t.kind == tokPunct && t.text == sep {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func selectColumn(stmt string, item []token) SelectColumn {
	if len(item) == 0 {
		return SelectColumn{}
	}
	col := SelectColumn{Expr: stmt[item[0].pos:item[len(item)-1].end]}

	body := item
	switch {
	case len(item) >= 3 && item[len(item)-2].is("AS"):
		col.Alias = item[len(item)-1].ident()
		body = item[:len(item)-2]
	case len(item) >= 2 && isIdentToken(item[len(item)-1]) && isIdentToken(item[len(item)-2]):
		col.Alias = item[len(item)-1].ident()
		body = item[:len(item)-1]
	}

	switch {
	case len(body) == 1 && body[0].kind == tokPunct && body[0].text == "*":
		col.Name = "*"
	case len(body) == 1 && isIdentToken(body[0]):
		col.Name = body[0].ident()
	case len(body) == 3 && isIdentToken(body[0]) && body[1].text == "." && (isIdentToken(body[2]) || body[2].text == "*"):
		col.Name = body[2].ident()
	}
	return col
}

func isIdentToken(t token) bool {
	return t.kind == tokWord || t.kind == tokQuotedIdent
}
