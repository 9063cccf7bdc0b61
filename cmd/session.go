// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/conn"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/dsn"
	"sqlide/cli/internal/history"
	"sqlide/cli/internal/keychain"
	"sqlide/cli/internal/logging"
	"sqlide/cli/internal/session"
	"sqlide/cli/internal/sqlexec"
	"sqlide/cli/internal/terminal"
)

// dsnSource names where a connection string came from.
type dsnSource string

const (
	sourceEnv      dsnSource = "SQLIDE_DSN environment variable"
	sourceDatabase dsnSource = "DATABASE_URL environment variable"
	sourceKeychain dsnSource = "OS keychain"
)

// errNoConnection is returned when no DSN is configured anywhere.
var errNoConnection = errors.New("no database connection configured")

// resolveDSN returns the connection string to use: SQLIDE_DSN, then DATABASE_URL,
// then the connection saved in the keychain under connName.
func resolveDSN() (string, dsnSource, error) {
	if env := strings.TrimSpace(os.Getenv("SQLIDE_DSN")); env != "" {
		return env, sourceEnv, nil
	}
	if env := strings.TrimSpace(os.Getenv("DATABASE_URL")); env != "" {
		return env, sourceDatabase, nil
	}
	km, err := keychain.GetManager()
	if err != nil {
		return "", "", err
	}
	raw, err := km.LoadDSN(connName)
	if errors.Is(err, keychain.ErrNotFound) || (err == nil && strings.TrimSpace(raw) == "") {
		return "", "", errNoConnection
	}
	if err != nil {
		return "", "", err
	}
	return raw, sourceKeychain, nil
}

// sessionOptions carries the parts of a session that commands may override.
type sessionOptions struct {
	mutate func(*config.Config)
	// quiet suppresses the spinner while connecting.
	quiet bool
}

// openSession resolves the DSN, creates a session and connects it.
// The caller owns the returned session and must Close it.
func openSession(ctx context.Context, opts sessionOptions) (*session.Session, error) {
	raw, _, err := resolveDSN()
	if errors.Is(err, errNoConnection) {
		pterm.Println("⚠️  No database connection configured")
		pterm.Println("   Please run: sqlide connect")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	info, err := dsn.ParseInfo(raw)
	if err != nil {
		return nil, err
	}
	return connectInfo(ctx, info, opts)
}

// connectInfo opens a session against info.
func connectInfo(ctx context.Context, info *dsn.DSNInfo, opts sessionOptions) (*session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		pterm.Warning.Printf("Could not read config, using defaults: %v\n", err)
	}
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}
	logger := logging.New(cfg.LogLevel)

	drv, err := driver.New(info.Type)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(cfg.History.HistoryMaxEntries, logger)
	if err != nil {
		logger.Warn("statement history unavailable", logger.Args("error", err))
	}

	sessOpts := session.Options{
		Driver:   drv,
		Target:   info,
		Prompter: terminalPrompter{},
		Config:   cfg,
		History:  hist,
		Logger:   logger,
	}
	if km, err := keychain.GetManager(); err == nil {
		sessOpts.Credentials = km
	} else {
		logger.Debug("keychain unavailable", logger.Args("error", err))
	}
	s := session.New(sessOpts)

	stop := func() {}
	if !opts.quiet && terminal.IsInteractive() {
		stop = startInlineSpinner(os.Stdout, "connecting to "+info.ServiceKey(), spinnerFrames, spinnerInterval)
	}
	outcome, err := s.Connect(ctx)
	stop()
	if err == nil {
		switch outcome {
		case conn.OutcomeServerDown:
			err = fmt.Errorf("%s is not reachable", info.ServiceKey())
		case conn.OutcomeCancelled:
			err = errors.New("connection cancelled")
		}
	}
	if err != nil {
		s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

// terminalPrompter asks for passwords on the controlling terminal.
type terminalPrompter struct{}

func (terminalPrompter) PromptPassword(ctx context.Context, req conn.PasswordRequest) (conn.PasswordReply, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return conn.PasswordReply{}, conn.ErrPromptCancelled
	}
	if req.Failed {
		pterm.Warning.Println("Access denied, please try again")
	}
	fmt.Printf("Password for %s on %s: ", req.Account, req.Service)
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return conn.PasswordReply{}, err
	}
	if len(pw) == 0 {
		return conn.PasswordReply{}, conn.ErrPromptCancelled
	}
	store := askYesNo(fmt.Sprintf("Save password for %s in the keychain?", req.Account))
	return conn.PasswordReply{Password: string(pw), Store: store}, nil
}

// askYesNo reads a y/N answer from stdin.
func askYesNo(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// confirmApply asks what to do with edits when a transaction is already open.
func confirmApply(table string) sqlexec.ApplyChoice {
	pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("A transaction is open"))
	pterm.Printf("Changes to %s will be applied inside it; a failure rolls back the whole transaction.\n", table)
	pterm.Println("  • Type " + pterm.NewStyle(pterm.FgGreen).Sprint("apply") + " to apply inside the open transaction")
	pterm.Println("  • Type " + pterm.NewStyle(pterm.FgGreen).Sprint("commit") + " to commit it first, then apply")
	pterm.Println("  • Press " + pterm.NewStyle(pterm.FgRed).Sprint("Enter") + " to cancel")
	pterm.Print("Your answer: ")
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "apply", "a":
		return sqlexec.ApplyOnly
	case "commit", "c":
		return sqlexec.CommitAndApply
	}
	return sqlexec.ApplyCancel
}
