// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	spinnerInterval = 100 * time.Millisecond
	// maxStatusWidth caps the statement text shown next to a spinner.
	maxStatusWidth = 72
)

// startInlineSpinner starts a simple inline spinner animation on a single line.
// It displays rotating animation frames followed by the provided text, updating
// the same line in the terminal. The spinner runs in a separate goroutine and
// can be stopped by calling the returned function, which clears the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], text)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// statusSpinner shows a spinner with a status line that can change while it runs.
type statusSpinner struct {
	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	status string
	start  time.Time
}

// startStatusSpinner hides the cursor and starts animating status in a pterm area.
// It returns nil when the terminal does not support areas.
func startStatusSpinner(status string) *statusSpinner {
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return nil
	}
	s := &statusSpinner{area: area, stop: make(chan struct{}), status: status, start: time.Now()}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				s.mu.Lock()
				line := fmt.Sprintf("%s %s [%.1fs]", spinnerFrames[i%len(spinnerFrames)], s.status, time.Since(s.start).Seconds())
				s.mu.Unlock()
				area.Update(line)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Set replaces the status text.
func (s *statusSpinner) Set(status string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Stop removes the spinner and shows the cursor again.
func (s *statusSpinner) Stop() {
	if s == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.area.Stop()
	cursor.Show()
}

// oneLine collapses whitespace in sql and truncates it to width runes.
func oneLine(sql string, width int) string {
	s := strings.Join(strings.Fields(sql), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
