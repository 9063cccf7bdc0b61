// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides small helpers for the controlling terminal: its width,
// whether input is interactive, and clearing echoed prompt lines.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// Width returns the width of stdout, or 80 when it is not a terminal.
func Width() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return defaultWidth
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ClearPreviousLines clears a prompt and the answer typed after it. textLength is
// the number of characters of both together; the line the cursor moved to after
// Enter is cleared as well.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, LinesUsed(textLength, Width())+1)
}

// LinesUsed returns how many terminal rows textLength characters occupy at width.
func LinesUsed(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	if textLength <= 0 {
		return 1
	}
	return (textLength + width - 1) / width
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
