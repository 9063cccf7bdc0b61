// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/events"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/session"
	"sqlide/cli/internal/sqlexec"
	"sqlide/cli/internal/terminal"
)

var (
	execSQL         string
	execFile        string
	continueOnError bool
	noLimit         bool
	altDelimiter    bool
	maxDisplayRows  int
)

// execCmd runs a SQL script against the configured connection.
var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a SQL script and print its results",
	Long: `The exec command runs the statements of a script on the configured connection,
printing one execution log line per statement and a table for every result set.

The script is read from --execute, from --file, or from standard input.
Press Ctrl+C to cancel the running statement.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := readScript(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if strings.TrimSpace(script) == "" {
			return errors.New("nothing to execute")
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, sessionOptions{mutate: func(c *config.Config) {
			if continueOnError {
				c.Editor.ContinueOnError = true
			}
		}})
		if err != nil {
			if !errors.Is(err, errNoConnection) {
				pterm.Println(logging.FormatConnectionError(err))
			}
			return err
		}
		defer s.Close(context.Background())

		report, err := runWithCancel(ctx, s, s.NewEditor(""), script, execFlags())
		if err != nil {
			pterm.Error.Println(logging.PresentError("", err))
			return err
		}
		printReport(s, report)
		if report.Errors > 0 {
			return fmt.Errorf("%d statement(s) failed", report.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execSQL, "execute", "e", "", "SQL to execute")
	execCmd.Flags().StringVarP(&execFile, "file", "f", "", "Read SQL from file")
	execCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep executing after a statement fails")
	execCmd.Flags().BoolVar(&noLimit, "no-limit", false, "Do not add a LIMIT clause to SELECT statements")
	execCmd.Flags().BoolVar(&altDelimiter, "delimiter", false, "Split statements on the routine delimiter ($$ on MySQL) instead of ;")
	execCmd.Flags().IntVar(&maxDisplayRows, "max-rows", 200, "Maximum rows printed per result (0 prints all)")
}

// execFlags returns the per-call execution flags selected on the command line.
func execFlags() sqlexec.Flags {
	var flags sqlexec.Flags
	if altDelimiter {
		flags |= sqlexec.NeedNonStdDelimiter
	}
	if noLimit {
		flags |= sqlexec.DontAddLimitClause
	}
	return flags
}

// readScript returns the SQL given by flags, or stdin when none is set.
func readScript(stdin io.Reader) (string, error) {
	switch {
	case execSQL != "":
		return execSQL, nil
	case execFile != "":
		b, err := os.ReadFile(execFile)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}

// runWithCancel executes sql on ed while showing the running statement in a
// spinner. The first interrupt cancels the running query; the report is
// still returned.
func runWithCancel(ctx context.Context, s *session.Session, ed *sqlexec.Editor, sql string, flags sqlexec.Flags) (*sqlexec.Report, error) {
	var spin *statusSpinner
	if terminal.IsInteractive() {
		spin = startStatusSpinner("Running...")
	}
	unsubscribe := s.Bus().Subscribe(func(ev events.Event) {
		if ev.Type != events.EventLogChanged {
			return
		}
		if e, ok := s.Log().Entry(ev.LogID); ok && e.Severity == history.SeverityBusy {
			spin.Set(e.Message + " " + oneLine(e.Action, maxStatusWidth))
		}
	})
	defer unsubscribe()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	done := s.Execute(ctx, ed, sql, flags)
	for {
		select {
		case r := <-done:
			spin.Stop()
			return r.Report, r.Err
		case <-interrupts:
			spin.Set("Cancelling...")
			if err := s.Cancel(ctx); err != nil {
				s.Log().Add(history.SeverityError, "INTERRUPT", logging.PresentError("", err), "")
			}
		}
	}
}

// printReport prints the log entries and results produced by one execution.
func printReport(s *session.Session, report *sqlexec.Report) {
	if report == nil {
		return
	}
	results := report.Results
	for _, id := range report.LogIDs {
		e, ok := s.Log().Entry(id)
		if !ok {
			continue
		}
		printLogEntry(e)
		if e.Severity == history.SeverityOK && strings.HasSuffix(e.Message, "row(s) returned") && len(results) > 0 {
			renderRecordset(results[0], maxDisplayRows)
			results = results[1:]
		}
	}
	for _, rs := range results {
		renderRecordset(rs, maxDisplayRows)
	}
	if report.Interrupted {
		pterm.Warning.Println(report.Status)
	}
}
