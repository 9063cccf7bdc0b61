// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlparse

import (
	"strings"
)

// DefaultDelimiter terminates statements unless a script overrides it.
const DefaultDelimiter = ";"

// Range locates one statement inside a script by byte offset.
type Range struct {
	Start  int
	Length int
	// Line is the 1-based line on which the statement starts.
	Line int
}

// End returns the offset just past the statement.
func (r Range) End() int { return r.Start + r.Length }

// Text returns the statement text from script.
func (r Range) Text(script string) string {
	return script[r.Start:r.End()]
}

// Split breaks script into top-level statements terminated by delimiter.
// An empty delimiter means DefaultDelimiter. A line of the form "DELIMITER xx"
// between statements switches the delimiter for the rest of the script and is not
// itself returned. Delimiters inside quotes, comments and dollar-quoted bodies are
// ignored. Whitespace-only pieces are dropped; comment-only pieces are kept and
// classify as Empty.
func Split(script, delimiter string) []Range {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	var out []Range
	stmtStart := 0
	blank := true
	line := 1
	stmtLine := 1

	emit := func(end int) {
		text := script[stmtStart:end]
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			lead := len(text) - len(strings.TrimLeft(text, " \t\r\n\f"))
			out = append(out, Range{
				Start:  stmtStart + lead,
				Length: len(strings.TrimRight(text[lead:], " \t\r\n\f")),
				Line:   stmtLine + strings.Count(text[:lead], "\n"),
			})
		}
	}

	i := 0
	for i < len(script) {
		c := script[i]

		if blank && atLineStart(script, i) {
			if newDelim, next, ok := delimiterCommand(script, i); ok {
				delimiter = newDelim
				line += strings.Count(script[i:next], "\n")
				i = next
				stmtStart = i
				stmtLine = line
				continue
			}
		}

		if strings.HasPrefix(script[i:], delimiter) {
			emit(i)
			i += len(delimiter)
			stmtStart = i
			stmtLine = line
			blank = true
			continue
		}

		next := i + 1
		switch {
		case c == '\n':
			line++
		case c == '\'' || c == '"' || c == '`':
			next = skipQuoted(script, i)
			blank = false
		case c == '$' && dollarTag(script, i) != "":
			tag := dollarTag(script, i)
			if end := strings.Index(script[i+len(tag):], tag); end == -1 {
				next = len(script)
			} else {
				next = i + len(tag) + end + len(tag)
			}
			blank = false
		default:
			if j := skipComment(script, i); j != i {
				next = j
			} else if c != ' ' && c != '\t' && c != '\r' && c != '\f' {
				blank = false
			}
		}
		if next > i+1 {
			line += strings.Count(script[i+1:next], "\n")
		}
		i = next
	}
	emit(len(script))
	return out
}

// SplitStatements is a convenience wrapper returning the statement texts.
func SplitStatements(script, delimiter string) []string {
	ranges := Split(script, delimiter)
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.Text(script))
	}
	return out
}

func atLineStart(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// delimiterCommand recognizes "DELIMITER <token>" at s[i:] (leading blanks allowed)
// and returns the new delimiter and the offset after the line.
func delimiterCommand(s string, i int) (string, int, bool) {
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	const kw = "DELIMITER"
	if len(s)-j <= len(kw) || !strings.EqualFold(s[j:j+len(kw)], kw) {
		return "", 0, false
	}
	j += len(kw)
	if s[j] != ' ' && s[j] != '\t' {
		return "", 0, false
	}
	end := skipLine(s, j)
	arg := strings.TrimSpace(s[j:end])
	if arg == "" || strings.ContainsAny(arg, " \t") {
		return "", 0, false
	}
	return arg, end, true
}
