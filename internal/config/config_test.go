package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.Editor.LimitRows || c.Editor.LimitRowsCount != 1000 {
		t.Errorf("unexpected limit defaults: %+v", c.Editor)
	}
	if !c.Session.Autocommit {
		t.Errorf("autocommit should default to on")
	}
}

func TestLoadKeepsDefaultsForAbsentFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "sqlide"), 0o700); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"editor": {"continue_on_error": true, "limit_rows": true, "limit_rows_count": 50}}`)
	if err := os.WriteFile(filepath.Join(dir, "sqlide", "config.json"), body, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.Editor.ContinueOnError || c.Editor.LimitRowsCount != 50 {
		t.Errorf("file values not applied: %+v", c.Editor)
	}
	if c.History.HistoryMaxEntries != 1000 {
		t.Errorf("HistoryMaxEntries = %d, want default 1000", c.History.HistoryMaxEntries)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c := Default()
	c.Session.DefaultSchema = "sakila"
	if err := Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Session.DefaultSchema != "sakila" {
		t.Errorf("DefaultSchema = %q", got.Session.DefaultSchema)
	}
}
