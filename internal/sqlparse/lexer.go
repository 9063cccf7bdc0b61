// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlparse provides the lexical SQL services used by the execution engine:
// splitting scripts into statements, classifying statement types, and recognizing
// single-table SELECT statements whose results can be edited.
//
// It is a scanner, not a grammar. It understands quoting ('...', "...", `...`),
// comments (--, #, /* */), PostgreSQL dollar quoting and parenthesis depth, which is
// enough to find statement boundaries and top-level keywords reliably.
package sqlparse

import (
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string
	depth int
	pos   int
	end   int
}

// upper returns the token text upper-cased for keyword comparisons.
func (t token) upper() string { return strings.ToUpper(t.text) }

// is reports whether t is the bare keyword kw (case-insensitive).
func (t token) is(kw string) bool { return t.kind == tokWord && strings.EqualFold(t.text, kw) }

// ident returns the identifier value of a word or quoted identifier token.
func (t token) ident() string {
	if t.kind == tokQuotedIdent && len(t.text) >= 2 {
		q := t.text[:1]
		inner := t.text[1 : len(t.text)-1]
		return strings.ReplaceAll(inner, q+q, q)
	}
	return t.text
}

func isWordStart(c byte) bool {
	return c == '_' || c == '@' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordChar(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

// skipQuoted returns the index just past the closing quote that matches s[i].
// Backslash escapes are honored inside single and double quotes; doubled quotes
// are consumed naturally because the scan resumes at the second quote.
func skipQuoted(s string, i int) int {
	q := s[i]
	j := i + 1
	for j < len(s) {
		c := s[j]
		if c == '\\' && q != '`' {
			j += 2
			continue
		}
		if c == q {
			if j+1 < len(s) && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

// dollarTag returns the $tag$ opener at s[i], or "" when s[i] does not start one.
func dollarTag(s string, i int) string {
	if s[i] != '$' {
		return ""
	}
	j := i + 1
	for j < len(s) && (s[j] == '_' || (s[j] >= 'a' && s[j] <= 'z') || (s[j] >= 'A' && s[j] <= 'Z') || (j > i+1 && s[j] >= '0' && s[j] <= '9')) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[i : j+1]
	}
	return ""
}

// skipComment returns the index past the comment starting at s[i], or i when there is none.
func skipComment(s string, i int) int {
	switch {
	case s[i] == '#':
		return skipLine(s, i)
	case s[i] == '-' && i+1 < len(s) && s[i+1] == '-':
		return skipLine(s, i)
	case s[i] == '/' && i+1 < len(s) && s[i+1] == '*':
		end := strings.Index(s[i+2:], "*/")
		if end == -1 {
			return len(s)
		}
		return i + 2 + end + 2
	}
	return i
}

func skipLine(s string, i int) int {
	nl := strings.IndexByte(s[i:], '\n')
	if nl == -1 {
		return len(s)
	}
	return i + nl + 1
}

// tokenize splits a single statement into significant tokens, dropping whitespace
// and comments and recording the parenthesis depth of each token.
func tokenize(s string) []token {
	var out []token
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' {
			i++
			continue
		}
		if j := skipComment(s, i); j != i {
			i = j
			continue
		}
		start := i
		switch {
		case c == '\'':
			i = skipQuoted(s, i)
			out = append(out, token{kind: tokString, text: s[start:i], depth: depth, pos: start, end: i})
		case c == '"' || c == '`':
			i = skipQuoted(s, i)
			out = append(out, token{kind: tokQuotedIdent, text: s[start:i], depth: depth, pos: start, end: i})
		case c == '$' && dollarTag(s, i) != "":
			tag := dollarTag(s, i)
			end := strings.Index(s[i+len(tag):], tag)
			if end == -1 {
				i = len(s)
			} else {
				i = i + len(tag) + end + len(tag)
			}
			out = append(out, token{kind: tokString, text: s[start:i], depth: depth, pos: start, end: i})
		case c >= '0' && c <= '9':
			for i < len(s) && (isWordChar(s[i]) || s[i] == '.') {
				i++
			}
			out = append(out, token{kind: tokNumber, text: s[start:i], depth: depth, pos: start, end: i})
		case isWordStart(c):
			for i < len(s) && isWordChar(s[i]) {
				i++
			}
			out = append(out, token{kind: tokWord, text: s[start:i], depth: depth, pos: start, end: i})
		case c == '(':
			out = append(out, token{kind: tokPunct, text: "(", depth: depth, pos: start, end: i + 1})
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			out = append(out, token{kind: tokPunct, text: ")", depth: depth, pos: start, end: i + 1})
			i++
		default:
			out = append(out, token{kind: tokPunct, text: string(c), depth: depth, pos: start, end: i + 1})
			i++
		}
	}
	return out
}
