// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package conn

import (
	"context"
	"net"
	"reflect"
	"slices"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"

	"sqlide/cli/internal/config"
	"sqlide/cli/internal/driver"
	"sqlide/cli/internal/driver/drivertest"
	"sqlide/cli/internal/dsn"
	sqlerr "sqlide/cli/internal/errors"
	"sqlide/cli/internal/events"
)

type memCreds struct {
	passwords map[string]string
	stored    []string
}

func (m *memCreds) LookupPassword(service, account string) (string, bool, error) {
	pw, ok := m.passwords[service+"/"+account]
	return pw, ok, nil
}

func (m *memCreds) StorePassword(service, account, password string) error {
	if m.passwords == nil {
		m.passwords = map[string]string{}
	}
	m.passwords[service+"/"+account] = password
	m.stored = append(m.stored, password)
	return nil
}

func (m *memCreds) ForgetPassword(service, account string) error {
	delete(m.passwords, service+"/"+account)
	return nil
}

type scriptedPrompter struct {
	replies  []PasswordReply
	requests []PasswordRequest
}

func (p *scriptedPrompter) PromptPassword(_ context.Context, req PasswordRequest) (PasswordReply, error) {
	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return PasswordReply{}, ErrPromptCancelled
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r, nil
}

func mysqlTarget() *dsn.DSNInfo {
	return &dsn.DSNInfo{
		Type:     dsn.DBTypeMySQL,
		Host:     "db",
		Port:     "3306",
		User:     "root",
		Database: "sakila",
		Original: "mysql://root@db:3306/sakila",
	}
}

func acceptOnly(password string) func(*dsn.DSNInfo) error {
	return func(info *dsn.DSNInfo) error {
		if info.Password != password {
			return &mysql.MySQLError{Number: 1045, Message: "Access denied for user 'root'"}
		}
		return nil
	}
}

func newSupervisor(drv *drivertest.Driver, mutate func(*Options)) (*Supervisor, *events.Recorder) {
	bus := events.NewBus()
	opts := Options{
		Driver: drv,
		Target: mysqlTarget(),
		Config: config.Default(),
		Bus:    bus,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewSupervisor(opts), events.Record(bus)
}

func TestConnectPasswordRetry(t *testing.T) {
	tests := []struct {
		name         string
		stored       string
		replies      []PasswordReply
		wantOutcome  Outcome
		wantAttempts []string
		wantFailed   []bool
		wantStored   []string
	}{
		{
			name:         "stored password accepted",
			stored:       "right",
			wantOutcome:  OutcomeConnected,
			wantAttempts: []string{"", "right", "right"},
		},
		{
			name:         "stale stored password then prompt",
			stored:       "stale",
			replies:      []PasswordReply{{Password: "wrong"}, {Password: "right", Store: true}},
			wantOutcome:  OutcomeConnected,
			wantAttempts: []string{"", "stale", "wrong", "right", "right"},
			wantFailed:   []bool{true, true},
			wantStored:   []string{"right"},
		},
		{
			name:         "nothing stored and prompt dismissed",
			wantOutcome:  OutcomeCancelled,
			wantAttempts: []string{""},
			wantFailed:   []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := drivertest.New(driver.MySQL, nil)
			drv.OpenFunc = acceptOnly("right")
			creds := &memCreds{passwords: map[string]string{}}
			if tt.stored != "" {
				creds.passwords["mysql@db:3306/root"] = tt.stored
			}
			prompter := &scriptedPrompter{replies: tt.replies}
			s, _ := newSupervisor(drv, func(o *Options) {
				o.Credentials = creds
				o.Prompter = prompter
			})

			outcome, err := s.Connect(context.Background())
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			if outcome != tt.wantOutcome {
				t.Errorf("Connect() outcome = %v, want %v", outcome, tt.wantOutcome)
			}
			if got := drv.Attempts(); !reflect.DeepEqual(got, tt.wantAttempts) {
				t.Errorf("attempts = %q, want %q", got, tt.wantAttempts)
			}
			var failed []bool
			for _, r := range prompter.requests {
				failed = append(failed, r.Failed)
			}
			if !reflect.DeepEqual(failed, tt.wantFailed) {
				t.Errorf("prompt Failed flags = %v, want %v", failed, tt.wantFailed)
			}
			if !reflect.DeepEqual(creds.stored, tt.wantStored) {
				t.Errorf("stored = %q, want %q", creds.stored, tt.wantStored)
			}
		})
	}
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name        string
		openErr     error
		wantOutcome Outcome
		wantKind    sqlerr.Kind
		wantState   events.ServerState
	}{
		{
			name:        "server down is a soft failure",
			openErr:     &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantOutcome: OutcomeServerDown,
			wantState:   events.StatePossiblyStopped,
		},
		{
			name:        "expired password aborts",
			openErr:     &mysql.MySQLError{Number: 1820, Message: "You must reset your password"},
			wantOutcome: OutcomeFailed,
			wantKind:    sqlerr.PasswordExpired,
			wantState:   events.StateUnknown,
		},
		{
			name:        "rejected password without a prompter",
			openErr:     &mysql.MySQLError{Number: 1045, Message: "Access denied for user 'root'@'localhost'"},
			wantOutcome: OutcomeFailed,
			wantKind:    sqlerr.AuthenticationFailed,
			wantState:   events.StateUnknown,
		},
		{
			name:        "other errors are returned",
			openErr:     &mysql.MySQLError{Number: 1049, Message: "Unknown database 'nope'"},
			wantOutcome: OutcomeFailed,
			wantKind:    sqlerr.StatementError,
			wantState:   events.StateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := drivertest.New(driver.MySQL, nil)
			drv.OpenFunc = func(*dsn.DSNInfo) error { return tt.openErr }
			s, rec := newSupervisor(drv, nil)

			outcome, err := s.Connect(context.Background())
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Connect() error = %v", err)
				}
			} else if !sqlerr.Is(err, tt.wantKind) {
				t.Fatalf("Connect() error = %v, want kind %v", err, tt.wantKind)
			}
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %v, want %v", outcome, tt.wantOutcome)
			}
			if s.ServerState() != tt.wantState {
				t.Errorf("ServerState() = %v, want %v", s.ServerState(), tt.wantState)
			}
			changes := rec.Events(events.EventServerStateChanged)
			if tt.wantState == events.StatePossiblyStopped && (len(changes) != 1 || changes[0].Target != "mysql@db:3306") {
				t.Errorf("state change events = %+v", changes)
			}
			if s.UserHandle().IsOpen() {
				t.Errorf("user handle open after failed connect")
			}
		})
	}
}

func TestConnectInitScript(t *testing.T) {
	drv := drivertest.New(driver.MySQL, func(c *drivertest.Conn, sql string, _ []any) (drivertest.Response, bool) {
		if sql == driver.MySQL.SQLModeQuery {
			return drivertest.Single(drivertest.Column(driver.MySQL, "m", "VARCHAR"), []any{"MYSQL40,STRICT_TRANS_TABLES"}), true
		}
		return drivertest.Response{}, false
	})
	s, rec := newSupervisor(drv, func(o *Options) {
		o.Config.Session.StartupSQL = []string{"SET @app = 'sqlide'"}
	})

	if outcome, err := s.Connect(context.Background()); err != nil || outcome != OutcomeConnected {
		t.Fatalf("Connect() = %v, %v", outcome, err)
	}

	conns := drv.Conns()
	if len(conns) != 2 {
		t.Fatalf("opened %d connections, want 2", len(conns))
	}
	user, aux := conns[0].Executed(), conns[1].Executed()
	for _, want := range []string{"SET @app = 'sqlide'", "SET NAMES utf8mb4", "SET SQL_SAFE_UPDATES=1", "USE `sakila`"} {
		if !slices.Contains(user, want) {
			t.Errorf("user connection did not run %q: %q", want, user)
		}
	}
	if slices.Contains(aux, "SET SQL_SAFE_UPDATES=1") {
		t.Errorf("safe updates enabled on the auxiliary connection")
	}
	if !slices.Contains(aux, driver.MySQL.SetSQLMode) {
		t.Errorf("aux connection did not normalize sql_mode: %q", aux)
	}
	if s.AuxHandle().SQLMode() != "STRICT_TRANS_TABLES" || s.UserHandle().SQLMode() != "MYSQL40,STRICT_TRANS_TABLES" {
		t.Errorf("sql modes = user %q aux %q", s.UserHandle().SQLMode(), s.AuxHandle().SQLMode())
	}
	if s.UserHandle().ID() != 1 || s.AuxHandle().ID() != 2 {
		t.Errorf("connection ids = %d, %d", s.UserHandle().ID(), s.AuxHandle().ID())
	}
	if s.UserHandle().Schema() != "sakila" {
		t.Errorf("schema = %q", s.UserHandle().Schema())
	}
	if s.ServerVersion() != "8.0.36" || s.ServerState() != events.StateRunning {
		t.Errorf("version %q state %v", s.ServerVersion(), s.ServerState())
	}
	if ev := rec.Events(events.EventSchemaChanged); len(ev) != 1 || ev[0].Schema != "sakila" {
		t.Errorf("schema events = %+v", ev)
	}
}

func TestConnectRejectsOldServer(t *testing.T) {
	drv := drivertest.New(driver.MySQL, nil)
	drv.Version = "4.1.22"
	s, _ := newSupervisor(drv, nil)
	if _, err := s.Connect(context.Background()); !sqlerr.Is(err, sqlerr.Unsupported) {
		t.Fatalf("Connect() error = %v, want Unsupported", err)
	}
	for _, c := range drv.Conns() {
		if !c.IsClosed() {
			t.Errorf("connection %d left open", c.ID)
		}
	}
}

func TestEnsureValid(t *testing.T) {
	ctx := context.Background()

	t.Run("never connected", func(t *testing.T) {
		s, _ := newSupervisor(drivertest.New(driver.MySQL, nil), nil)
		_, err := s.EnsureValid(ctx, s.UserHandle())
		if !sqlerr.Is(err, sqlerr.NotConnected) {
			t.Fatalf("EnsureValid() error = %v, want NotConnected", err)
		}
	})

	t.Run("reconnects and keeps schema", func(t *testing.T) {
		drv := drivertest.New(driver.MySQL, nil)
		s, _ := newSupervisor(drv, nil)
		if _, err := s.Connect(ctx); err != nil {
			t.Fatal(err)
		}
		s.UserHandle().SetSchema("world")
		drv.Conns()[0].Drop()

		l, err := s.EnsureValid(ctx, s.UserHandle())
		if err != nil {
			t.Fatalf("EnsureValid() error = %v", err)
		}
		defer l.Release()

		conns := drv.Conns()
		if len(conns) != 3 {
			t.Fatalf("opened %d connections, want 3", len(conns))
		}
		if l.Conn() != conns[2] {
			t.Errorf("lease does not hold the new connection")
		}
		if !slices.Contains(conns[2].Executed(), "USE `world`") {
			t.Errorf("schema not restored: %q", conns[2].Executed())
		}
		if s.UserHandle().Schema() != "world" || s.UserHandle().ID() != 3 {
			t.Errorf("schema %q id %d", s.UserHandle().Schema(), s.UserHandle().ID())
		}
	})

	t.Run("no reconnect inside a transaction", func(t *testing.T) {
		drv := drivertest.New(driver.MySQL, nil)
		s, _ := newSupervisor(drv, nil)
		if _, err := s.Connect(ctx); err != nil {
			t.Fatal(err)
		}
		l, _ := s.UserHandle().Acquire(ctx)
		if err := l.SetAutocommit(ctx, false); err != nil {
			t.Fatal(err)
		}
		l.Release()
		drv.Conns()[0].Drop()

		_, err := s.EnsureValid(ctx, s.UserHandle())
		if !sqlerr.Is(err, sqlerr.NotConnected) || sqlerr.MessageOf(err) != "DBMS connection is not available" {
			t.Fatalf("EnsureValid() error = %v", err)
		}
		if len(drv.Conns()) != 2 {
			t.Errorf("reconnected despite autocommit off")
		}
		if s.UserHandle().Busy() {
			t.Errorf("lease leaked on failure")
		}
	})
}

func TestPingAndKeepAlive(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(driver.MySQL, nil)
	s, _ := newSupervisor(drv, nil)

	if s.Ping(ctx) {
		t.Errorf("Ping() true before connect")
	}
	if _, err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	l, _ := s.UserHandle().Acquire(ctx)
	if !s.Ping(ctx) {
		t.Errorf("Ping() on a busy connection should report alive")
	}
	l.Release()

	drv.Conns()[1].Drop()
	if err := s.KeepAlive(ctx); err != nil {
		t.Fatalf("KeepAlive() error = %v", err)
	}
	if !s.AuxHandle().IsOpen() || len(drv.Conns()) != 3 {
		t.Errorf("aux connection not restored by KeepAlive")
	}
}

func TestHandleServerStateChanged(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(driver.MySQL, nil)
	s, _ := newSupervisor(drv, nil)
	if _, err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	s.HandleServerStateChanged(ctx, events.Event{Type: events.EventServerStateChanged, Target: "mysql@other:3306", State: events.StatePossiblyStopped})
	s.HandleServerStateChanged(ctx, events.Event{Type: events.EventServerStateChanged, Target: s.ServiceKey(), State: events.StateRunning})
	if pending := s.Idle().Pending(); len(pending) != 0 {
		t.Fatalf("healthy connection scheduled %v", pending)
	}

	drv.Conns()[0].Drop()
	s.SetRunningCheck(func() bool { return true })
	s.HandleServerStateChanged(ctx, events.Event{Type: events.EventServerStateChanged, Target: s.ServiceKey(), State: events.StateRunning})
	if pending := s.Idle().Pending(); len(pending) != 0 {
		t.Fatalf("reconnect scheduled while a query runs: %v", pending)
	}

	s.SetRunningCheck(nil)
	s.HandleServerStateChanged(ctx, events.Event{Type: events.EventServerStateChanged, Target: s.ServiceKey(), State: events.StateRunning})
	if pending := s.Idle().Pending(); !reflect.DeepEqual(pending, []string{"reconnect"}) {
		t.Fatalf("pending = %v, want [reconnect]", pending)
	}
	s.Idle().Drain(ctx)
	if !s.UserHandle().IsOpen() || !s.AuxHandle().IsOpen() {
		t.Errorf("handles not reopened by the idle reconnect")
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(driver.PostgreSQL, nil)
	drv.Version = "16.2"
	s, _ := newSupervisor(drv, func(o *Options) {
		o.Target = &dsn.DSNInfo{Type: dsn.DBTypePostgreSQL, Host: "pg", Port: "5432", User: "app", Database: "app"}
	})
	if _, err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(drv.Conns()[0].Executed(), `SET search_path TO "app"`) {
		t.Errorf("postgres database name used as a schema")
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if s.UserHandle().IsOpen() || s.AuxHandle().IsOpen() {
		t.Errorf("handles still open")
	}
}

func TestInitialSchemaFromSearchPath(t *testing.T) {
	drv := drivertest.New(driver.PostgreSQL, nil)
	drv.Version = "16.2"
	s, _ := newSupervisor(drv, func(o *Options) {
		o.Target = &dsn.DSNInfo{Type: dsn.DBTypePostgreSQL, Host: "pg", Port: "5432", User: "app", Database: "app",
			Params: map[string]string{"search_path": "sales,public"}}
	})
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(drv.Conns()[0].Executed(), `SET search_path TO "sales"`) {
		t.Errorf("search_path schema not selected: %q", drv.Conns()[0].Executed())
	}
	if got := s.UserHandle().Schema(); got != "sales" {
		t.Errorf("Schema() = %q, want sales", got)
	}
	if got := s.DefaultSchema(); got != "sales" {
		t.Errorf("DefaultSchema() = %q, want sales", got)
	}
}
