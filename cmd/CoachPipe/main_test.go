package main

import (
	"path/filepath"
	"testing"
)

func TestReconcileDSN(t *testing.T) {
	config := Config{
		StateDir:    DefaultStateDir,
		DatabaseURL: filepath.Join(DefaultStateDir, DefaultDBFileName),
	}

	// A flag-supplied state dir moves the defaulted SQLite path with it.
	got := reconcileDSN(config, "/tmp/coach-state", config.DatabaseURL)
	if want := filepath.Join("/tmp/coach-state", DefaultDBFileName); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	// An unchanged state dir leaves the DSN alone.
	if got := reconcileDSN(config, config.StateDir, config.DatabaseURL); got != config.DatabaseURL {
		t.Errorf("DSN changed without a state dir override: %q", got)
	}

	// An explicit -db-dsn wins over -state-dir.
	if got := reconcileDSN(config, "/tmp/coach-state", "/data/custom.db"); got != "/data/custom.db" {
		t.Errorf("explicit DSN overridden: %q", got)
	}

	// A DSN resolved from $DATABASE_URL is never recomputed.
	pgConfig := Config{StateDir: DefaultStateDir, DatabaseURL: "postgres://localhost/coach"}
	if got := reconcileDSN(pgConfig, "/tmp/coach-state", pgConfig.DatabaseURL); got != pgConfig.DatabaseURL {
		t.Errorf("environment DSN overridden: %q", got)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	for _, dsn := range []string{"postgres://localhost/coach", "postgresql://localhost/coach", "host=localhost dbname=coach"} {
		if !isPostgresDSN(dsn) {
			t.Errorf("expected %q to select Postgres", dsn)
		}
	}
	if isPostgresDSN("/var/lib/coachpipe/coachpipe.db") {
		t.Error("file path must select SQLite")
	}
}
