// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sqlide/cli/internal/dsn"
	"sqlide/cli/internal/logging"
)

// statusCmd connects with the configured DSN and shows a summary of the session.
// The password in the DSN is masked.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured connection and server state",
	Long: `The status command shows which connection string is in use, with the password
masked, then connects and reports the server version, connection ids, active schema,
transaction mode and SQL mode.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		raw, source, err := resolveDSN()
		if errors.Is(err, errNoConnection) {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: sqlide connect")
			return nil
		}
		if err != nil {
			pterm.Println("❌ Secure storage is not available on this system")
			return err
		}
		pterm.Printf("Using DSN from %s\n", source)
		pterm.Println()

		info, err := dsn.ParseInfo(raw)
		if err != nil {
			return err
		}
		s, err := connectInfo(cmd.Context(), info, sessionOptions{quiet: true})
		if err != nil {
			pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Database Connection")).
				WithPadding(1).
				Println(logging.Mask(raw))
			pterm.Println(logging.FormatConnectionError(err))
			return err
		}
		defer s.Close(context.Background())

		sup := s.Supervisor()
		user, aux := sup.UserHandle(), sup.AuxHandle()
		autocommit := "on"
		if !user.Autocommit() {
			autocommit = "off"
		}
		lines := []string{
			logging.Mask(raw),
			"",
			fmt.Sprintf("Server:       %s", sup.ServerVersion()),
			fmt.Sprintf("State:        %s", sup.ServerState()),
			fmt.Sprintf("Connections:  user %d, aux %d", user.ID(), aux.ID()),
			fmt.Sprintf("Schema:       %s", valueOr(user.Schema(), "(none)")),
			fmt.Sprintf("Autocommit:   %s", autocommit),
		}
		if mode := user.SQLMode(); mode != "" {
			lines = append(lines, fmt.Sprintf("SQL mode:     %s", mode))
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(strings.Join(lines, "\n"))
		pterm.Println()
		pterm.Println("To update this connection, run: sqlide connect")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
