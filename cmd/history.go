// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/logging"
)

var (
	clearHistory bool
	historyLast  int
)

// historyCmd prints or clears the persisted statement history.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the statement history",
	Long: `The history command lists statements run by previous sessions, most recent last.
Use --clear to delete the history file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			pterm.Warning.Printf("Could not read config, using defaults: %v\n", err)
		}
		h, err := history.Open(cfg.History.HistoryMaxEntries, logging.New(cfg.LogLevel))
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		if clearHistory {
			if err := h.Clear(); err != nil {
				return err
			}
			fmt.Println("✅ Statement history cleared")
			return nil
		}

		items := h.Entries()
		if len(items) == 0 {
			pterm.Println("No statements recorded yet")
			return nil
		}
		if historyLast > 0 && historyLast < len(items) {
			items = items[len(items)-historyLast:]
		}
		renderHistory(items)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&clearHistory, "clear", false, "Delete the statement history")
	historyCmd.Flags().IntVar(&historyLast, "last", 50, "Show only the most recent N statements (0 shows all)")
}
