// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pterm/pterm"

	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/recordset"
	"sqlide/cli/internal/terminal"
)

// maxCellWidth truncates wide values in result tables.
const maxCellWidth = 60

// newTable creates a table writer with the rounded style used for all output.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetAutoIndex(false)
	t.Style().Options.SeparateRows = false
	t.SetAllowedRowLength(terminal.Width())
	return t
}

// renderRecordset prints rs as a table, showing at most limit rows (0 shows all).
func renderRecordset(rs *recordset.Recordset, limit int) {
	cols := rs.Columns()
	n := rs.RowCount()

	title := rs.Caption()
	if rs.IsReadOnly() {
		title += pterm.NewStyle(pterm.FgGray).Sprint(" (read-only)")
	} else if rs.HasPendingChanges() {
		title += pterm.NewStyle(pterm.FgYellow).Sprint(" (modified)")
	}
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprintf("[%d] ", rs.ID()) + title)

	t := newTable()
	header := make(table.Row, len(cols)+1)
	header[0] = "#"
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight, Colors: text.Colors{text.FgHiBlack}}}
	for i, c := range cols {
		header[i+1] = c.Name
		cfg := table.ColumnConfig{Number: i + 2, WidthMax: maxCellWidth}
		if c.Kind == driver.KindNumeric {
			cfg.Align = text.AlignRight
		}
		configs = append(configs, cfg)
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)

	shown := n
	if limit > 0 && n > limit {
		shown = limit
	}
	for i := 0; i < shown; i++ {
		vals := rs.Row(i)
		row := make(table.Row, len(vals)+1)
		row[0] = i
		for j, v := range vals {
			row[j+1] = formatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()

	rowText := "rows"
	if n == 1 {
		rowText = "row"
	}
	if shown < n {
		pterm.Printf("%d %s in set (showing %d)\n", n, rowText, shown)
	} else {
		pterm.Printf("%d %s in set\n", n, rowText)
	}
	pterm.Println()
}

// formatValue formats a cell for display.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return pterm.NewStyle(pterm.FgGray).Sprint("NULL")
	case recordset.DeferredBlob:
		return pterm.NewStyle(pterm.FgGray).Sprint(x.String())
	case []byte:
		if !isPrintable(x) {
			return pterm.NewStyle(pterm.FgGray).Sprintf("<%d bytes>", len(x))
		}
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.DateTime)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return driver.AsString(x)
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}

// severityStyle returns the marker printed before a log entry.
func severityStyle(sev history.Severity) string {
	switch sev {
	case history.SeverityOK:
		return pterm.NewStyle(pterm.FgGreen).Sprint("✔")
	case history.SeverityNote:
		return pterm.NewStyle(pterm.FgCyan).Sprint("ℹ")
	case history.SeverityWarning:
		return pterm.NewStyle(pterm.FgYellow).Sprint("⚠")
	case history.SeverityError:
		return pterm.NewStyle(pterm.FgRed).Sprint("✖")
	default:
		return pterm.NewStyle(pterm.FgGray).Sprint("…")
	}
}

// printLogEntry prints one execution log entry on a single line, with any
// multi-line message indented below it.
func printLogEntry(e history.Entry) {
	msg := e.Message
	var rest string
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg, rest = msg[:i], msg[i+1:]
	}
	line := fmt.Sprintf("%s %s %s  %s", severityStyle(e.Severity),
		pterm.NewStyle(pterm.FgGray).Sprintf("%3d %s", e.ID, e.Time.Format(time.TimeOnly)),
		oneLine(e.Action, maxStatusWidth), msg)
	if e.Duration != "" {
		line += pterm.NewStyle(pterm.FgGray).Sprint("  " + e.Duration)
	}
	pterm.Println(line)
	for _, l := range strings.Split(rest, "\n") {
		if l != "" {
			pterm.Println("      " + l)
		}
	}
}

// renderLog prints log entries as a table.
func renderLog(entries []history.Entry) {
	t := newTable()
	t.AppendHeader(table.Row{"", "#", "Time", "Action", "Message", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: maxStatusWidth},
		{Number: 5, WidthMax: maxCellWidth},
	})
	for _, e := range entries {
		t.AppendRow(table.Row{severityStyle(e.Severity), e.ID, e.Time.Format(time.TimeOnly), oneLine(e.Action, maxStatusWidth), e.Message, e.Duration})
	}
	t.Render()
}

// renderHistory prints statement history items, most recent last.
func renderHistory(items []history.Item) {
	t := newTable()
	t.AppendHeader(table.Row{"#", "Time", "Schema", "Statement"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: maxCellWidth + 20}})
	for i, it := range items {
		t.AppendRow(table.Row{i + 1, it.Time.Format(time.DateTime), it.Schema, oneLine(it.SQL, maxCellWidth+20)})
	}
	t.Render()
}
