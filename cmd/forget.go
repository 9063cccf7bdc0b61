// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sqlide/cli/internal/dsn"
	"sqlide/cli/internal/keychain"
)

// forgetCmd removes a saved connection and the password stored for it.
var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove a saved connection and its stored password",
	Long: `The forget command clears the connection selected by --name from the OS keychain,
together with any password saved for its server and account.

This command removes:
- The saved connection string
- The stored password for the connection's server and user`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system")
			return err
		}

		raw, err := km.LoadDSN(connName)
		if errors.Is(err, keychain.ErrNotFound) {
			fmt.Println("⚠️  No saved connection to forget")
			return nil
		}
		if err != nil {
			return err
		}
		// Best effort: a DSN that no longer parses still gets removed.
		if info, perr := dsn.ParseInfo(raw); perr == nil {
			_ = km.ForgetPassword(info.ServiceKey(), info.User)
		}
		if err := km.ClearDSN(connName); err != nil {
			return err
		}

		fmt.Println("✅ Saved connection and password have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}
