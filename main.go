// Package main is the entry point for the sqlide CLI application.
// It provides SQL execution and editable results for MySQL and PostgreSQL.
package main

import (
	"sqlide/cli/cmd"
)

// main is the entry point for the sqlide CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
