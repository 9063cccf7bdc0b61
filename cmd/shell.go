// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/recordset"
	"sqlide/cli/internal/session"
	"sqlide/cli/internal/sqlexec"
	"sqlide/cli/internal/xdg"
)

// shellCmd starts the interactive SQL shell.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive SQL shell",
	Long: `The shell command opens an interactive session on the configured connection.
SQL accumulates across lines until a line ends with ';'. Lines starting with a
backslash are shell commands; type \help to list them.

Press Ctrl+C while a statement runs to cancel it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, sessionOptions{})
		if err != nil {
			if !errors.Is(err, errNoConnection) {
				pterm.Println(logging.FormatConnectionError(err))
			}
			return err
		}
		sh, err := newShell(s)
		if err != nil {
			s.Close(context.Background())
			return err
		}
		defer sh.rl.Close()
		return sh.run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shell is the state of one interactive session.
type shell struct {
	sess  *session.Session
	ed    *sqlexec.Editor
	rl    *readline.Instance
	query strings.Builder
	delim string
}

func newShell(s *session.Session) (*shell, error) {
	historyFile, err := xdg.StateFile("shell_history")
	if err != nil {
		historyFile = ""
	}
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "\\q",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}
	return &shell{sess: s, ed: s.NewEditor(""), rl: rl, delim: ";"}, nil
}

// updatePrompt shows the active schema, and marks an open transaction.
func (sh *shell) updatePrompt() {
	schema := sh.sess.ActiveSchema()
	if schema == "" {
		schema = "(none)"
	}
	arrow := ">"
	if sh.query.Len() > 0 {
		arrow = "->"
	}
	if !sh.sess.Autocommit() {
		sh.rl.SetPrompt(fmt.Sprintf("\033[1;33m%s [TXN]%s\033[0m ", schema, arrow))
		return
	}
	sh.rl.SetPrompt(fmt.Sprintf("\033[1;36m%s%s\033[0m ", schema, arrow))
}

func (sh *shell) run(ctx context.Context) error {
	pterm.Printf("Connected to %s (%s)\n", sh.sess.Target().ServiceKey(), sh.sess.Supervisor().ServerVersion())
	pterm.Println("Enter SQL terminated by ';', \\help for commands, \\q to quit.")
	pterm.Println()

	for {
		sh.updatePrompt()
		line, err := sh.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if sh.query.Len() > 0 {
				sh.query.Reset()
				continue
			}
			if sh.quit() {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			if sh.quit() {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if sh.query.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "\\") {
				if sh.meta(ctx, trimmed) {
					return nil
				}
				continue
			}
		}

		if sh.query.Len() > 0 {
			sh.query.WriteString("\n")
		}
		sh.query.WriteString(line)
		if !strings.HasSuffix(trimmed, sh.delim) {
			continue
		}
		sql := sh.query.String()
		sh.query.Reset()
		sh.execute(ctx, sql, 0)
	}
}

func (sh *shell) execute(ctx context.Context, sql string, flags sqlexec.Flags) {
	if sh.delim != ";" {
		flags |= sqlexec.NeedNonStdDelimiter
	}
	report, err := runWithCancel(ctx, sh.sess, sh.ed, sql, flags)
	if err != nil {
		pterm.Error.Println(logging.PresentError("", err))
		return
	}
	printReport(sh.sess, report)
}

// quit closes the session unless edits are pending and the user keeps the shell open.
func (sh *shell) quit() bool {
	if sh.ed.HasPendingChanges() && !askYesNo("Results hold unapplied changes. Quit anyway?") {
		return false
	}
	if err := sh.sess.Close(context.Background()); err != nil {
		pterm.Error.Println(logging.PresentError("", err))
		return false
	}
	return true
}

// meta runs a backslash command. It reports true when the shell should exit.
func (sh *shell) meta(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	var err error
	switch name {
	case "\\q", "\\quit", "\\exit":
		return sh.quit()
	case "\\help", "\\h", "\\?":
		printShellHelp()
	case "\\commit":
		var report *sqlexec.Report
		if report, err = sh.sess.Commit(ctx, sh.ed); err == nil {
			printReport(sh.sess, report)
		}
	case "\\rollback":
		var report *sqlexec.Report
		if report, err = sh.sess.Rollback(ctx, sh.ed); err == nil {
			printReport(sh.sess, report)
		}
	case "\\autocommit":
		var on bool
		if on, err = sh.sess.ToggleAutocommit(ctx); err == nil {
			pterm.Info.Printf("autocommit is %s\n", map[bool]string{true: "on", false: "off"}[on])
		}
	case "\\use":
		if len(args) != 1 {
			err = errors.New("usage: \\use <schema>")
			break
		}
		err = sh.sess.SetActiveSchema(ctx, args[0])
	case "\\delimiter":
		if len(args) == 1 && args[0] == "$$" {
			sh.delim = "$$"
		} else {
			sh.delim = ";"
		}
		pterm.Info.Printf("statement delimiter is %s\n", sh.delim)
	case "\\log":
		entries := sh.sess.Log().Entries()
		if n, perr := argInt(args, 0); perr == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
		renderLog(entries)
	case "\\history":
		renderHistory(sh.sess.History().Entries())
	case "\\results":
		for _, rs := range sh.ed.Results() {
			pterm.Printf("[%d] %s  %d row(s)  %s\n", rs.ID(), rs.Caption(), rs.RowCount(), editState(rs))
		}
	case "\\show":
		var rs *recordset.Recordset
		if rs, err = sh.result(args, 1); err == nil {
			renderRecordset(rs, 0)
		}
	case "\\edit":
		err = sh.edit(args)
	case "\\delete":
		var rs *recordset.Recordset
		if rs, err = sh.result(args, 2); err == nil {
			var row int
			if row, err = argInt(args, 1); err == nil {
				err = rs.DeleteRow(row)
			}
		}
	case "\\discard":
		var rs *recordset.Recordset
		if rs, err = sh.result(args, 1); err == nil {
			rs.DiscardChanges()
		}
	case "\\apply":
		var rs *recordset.Recordset
		if rs, err = sh.result(args, 1); err == nil {
			if err = sh.sess.ApplyChanges(ctx, rs, confirmApply); err == nil {
				pterm.Success.Printf("Changes applied to %s\n", rs.QualifiedTable())
			}
		}
	case "\\blob":
		err = sh.blob(ctx, args)
	case "\\close":
		var rs *recordset.Recordset
		if rs, err = sh.result(args, 1); err == nil && !sh.ed.CloseResult(rs.ID(), false) {
			err = errors.New("result has unapplied changes; \\discard or \\apply them first")
		}
	default:
		err = fmt.Errorf("unknown command %s, type \\help for a list", name)
	}
	if err != nil {
		pterm.Error.Println(logging.PresentError("", err))
	}
	return false
}

// result finds the recordset named by args[0] and checks the argument count.
func (sh *shell) result(args []string, want int) (*recordset.Recordset, error) {
	if len(args) < want {
		return nil, fmt.Errorf("expected %d argument(s)", want)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid result id %q", args[0])
	}
	rs, ok := sh.ed.Result(id)
	if !ok {
		return nil, fmt.Errorf("no result [%d], see \\results", id)
	}
	return rs, nil
}

// edit handles \edit <result> <row> <column> <value...>.
func (sh *shell) edit(args []string) error {
	rs, err := sh.result(args, 4)
	if err != nil {
		return errors.New("usage: \\edit <result> <row> <column> <value>")
	}
	row, err := argInt(args, 1)
	if err != nil {
		return err
	}
	col, err := columnIndex(rs, args[2])
	if err != nil {
		return err
	}
	var v any = strings.Join(args[3:], " ")
	if strings.EqualFold(v.(string), "NULL") {
		v = nil
	}
	if row == rs.RowCount() {
		vals := make([]any, len(rs.Columns()))
		vals[col] = v
		_, err = rs.AddRow(vals)
		return err
	}
	return rs.SetField(row, col, v)
}

// blob handles \blob <result> <row> <column> [file].
func (sh *shell) blob(ctx context.Context, args []string) error {
	rs, err := sh.result(args, 3)
	if err != nil {
		return errors.New("usage: \\blob <result> <row> <column> [file]")
	}
	row, err := argInt(args, 1)
	if err != nil {
		return err
	}
	col, err := columnIndex(rs, args[2])
	if err != nil {
		return err
	}
	data, err := sh.sess.FetchBlob(ctx, rs, row, col)
	if err != nil {
		return err
	}
	if len(args) > 3 {
		if err := os.WriteFile(args[3], data, 0o600); err != nil {
			return err
		}
		pterm.Success.Printf("%d bytes written to %s\n", len(data), args[3])
		return nil
	}
	pterm.Println(formatValue(data))
	return nil
}

func columnIndex(rs *recordset.Recordset, name string) (int, error) {
	cols := rs.Columns()
	if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(cols) {
		return i, nil
	}
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no column %q", name)
}

func argInt(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, errors.New("missing argument")
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return n, nil
}

func editState(rs *recordset.Recordset) string {
	switch {
	case rs.IsReadOnly():
		return pterm.NewStyle(pterm.FgGray).Sprint("read-only: " + rs.ReadOnlyReason())
	case rs.HasPendingChanges():
		return pterm.NewStyle(pterm.FgYellow).Sprint("modified")
	default:
		return pterm.NewStyle(pterm.FgGreen).Sprint("editable")
	}
}

func printShellHelp() {
	pterm.Println(pterm.NewStyle(pterm.Bold).Sprint("Shell commands"))
	pterm.Println()
	rows := [][2]string{
		{"\\commit, \\rollback", "End the open transaction"},
		{"\\autocommit", "Toggle autocommit"},
		{"\\use <schema>", "Change the active schema"},
		{"\\delimiter [$$]", "Split statements on $$ instead of ;"},
		{"\\log [n]", "Show the execution log"},
		{"\\history", "Show the statement history"},
		{"\\results", "List the results of the last execution"},
		{"\\show <result>", "Print all rows of a result"},
		{"\\edit <result> <row> <col> <value>", "Change a cell; row = row count adds a row; NULL sets null"},
		{"\\delete <result> <row>", "Delete a row"},
		{"\\discard <result>", "Drop unapplied changes"},
		{"\\apply <result>", "Write changes back in one transaction"},
		{"\\blob <result> <row> <col> [file]", "Load a BLOB value, optionally into a file"},
		{"\\close <result>", "Close a result"},
		{"\\q", "Quit"},
	}
	for _, r := range rows {
		pterm.Printf("  %-38s %s\n", r[0], r[1])
	}
	pterm.Println()
}
