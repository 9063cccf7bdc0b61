// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	sqlerr "sqlide/cli/internal/errors"

	"github.com/pterm/pterm"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Mask(err.Error())
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// FormatConnectionError renders a connection failure with a short explanation and the
// action the user can take, keyed on the error kind.
func FormatConnectionError(err error) string {
	var b strings.Builder

	title := "Connection Failed"
	switch sqlerr.KindOf(err) {
	case sqlerr.ServerUnavailable:
		title = "Server Unavailable"
	case sqlerr.NotConnected:
		title = "Connection Lost"
	}
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
	b.WriteString("\n\n")

	switch sqlerr.KindOf(err) {
	case sqlerr.ServerUnavailable:
		b.WriteString("The database server did not accept the connection.\n")
		b.WriteString("It may be stopped, or the host and port may be wrong.\n")
	case sqlerr.AuthenticationFailed:
		b.WriteString("The server rejected the supplied credentials.\n")
	case sqlerr.PasswordExpired:
		b.WriteString("The account password has expired and must be changed\n")
		b.WriteString("with a client that supports expired-password sandbox mode.\n")
	case sqlerr.NotConnected:
		b.WriteString("The connection was closed while a transaction was open,\n")
		b.WriteString("so it was not restored automatically.\n")
	default:
		b.WriteString("The connection could not be established.\n")
	}

	b.WriteString("\n")
	if sqlerr.KindOf(err) == sqlerr.AuthenticationFailed {
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'sqlide forget' to drop the stored password and try again"))
	} else {
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Check the server and run the command again"))
	}
	b.WriteString("\n")

	if err != nil {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return b.String()
}
