package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"invoicedesk/backend/internal/config"
	"invoicedesk/backend/internal/store/memory"
	"invoicedesk/backend/internal/store/sqlite"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", CounterMaxAttempts: 5})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", CounterMaxAttempts: 5})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	if len(closers) != 0 {
		t.Fatalf("memory store needs no closers")
	}
}

func TestOpenRepositoryUsesSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoicedesk.db")
	repo, closers, err := openRepository(context.Background(), config.Config{SQLitePath: path})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer func() {
		for _, c := range closers {
			_ = c.fn()
		}
	}()
	if _, ok := repo.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", repo)
	}
}

func TestUserAddCreatesAccountInSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "user", "add", "billing", "--password", "pass1234"})
	if err := root.Execute(); err != nil {
		t.Fatalf("user add: %v", err)
	}
	if !strings.Contains(out.String(), "created user billing") {
		t.Fatalf("unexpected output %q", out.String())
	}

	root = newRootCommand()
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "user", "add", "billing", "--password", "pass5678"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCommand()
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "migrate", "up"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing DATABASE_URL error, got %v", err)
	}
}
