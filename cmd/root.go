// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for sqlide.
// It implements subcommands for configuring connections, running SQL scripts and an
// interactive shell on top of the execution core, using the Cobra CLI framework.
// The package handles command parsing, execution, and renders results with pterm
// and go-pretty tables.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	// connName selects the saved connection used by every command.
	connName string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sqlide",
	Short: "Terminal SQL IDE for MySQL and PostgreSQL",
	Long: `sqlide runs SQL scripts and an interactive shell against MySQL and PostgreSQL
servers. Results of single-table queries can be edited and written back inside a
transaction, and every statement outcome is kept in an execution log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("sqlide %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVarP(&connName, "name", "n", "", "Saved connection name (default \"default\")")
}
