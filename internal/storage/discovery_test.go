package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverDatabaseEnvOverride(t *testing.T) {
	t.Setenv("DUPGUARD_DB", ":memory:")

	path, err := DiscoverDatabase()
	if err != nil {
		t.Fatalf("Failed to discover: %v", err)
	}
	if path != ":memory:" {
		t.Errorf("Expected :memory:, got %s", path)
	}
}

func TestDiscoverDatabaseCurrentDir(t *testing.T) {
	t.Setenv("DUPGUARD_DB", "")
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })

	// Nothing to find yet
	if _, err := DiscoverDatabase(); err == nil {
		t.Fatal("Expected error with no database present")
	}

	if err := os.WriteFile(filepath.Join(dir, "dupguard.db"), []byte{}, 0644); err != nil {
		t.Fatalf("Failed to create database file: %v", err)
	}

	path, err := DiscoverDatabase()
	if err != nil {
		t.Fatalf("Failed to discover: %v", err)
	}
	if !strings.HasSuffix(path, "dupguard.db") {
		t.Errorf("Expected path ending in dupguard.db, got %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %s", path)
	}
}

func TestInitDatabase(t *testing.T) {
	dir := t.TempDir()

	path, err := InitDatabase(dir, "")
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if filepath.Base(path) != "dupguard.db" {
		t.Errorf("Expected default name dupguard.db, got %s", filepath.Base(path))
	}

	// Extension is appended when missing
	path, err = InitDatabase(dir, "ledger")
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if filepath.Base(path) != "ledger.db" {
		t.Errorf("Expected ledger.db, got %s", filepath.Base(path))
	}

	// Refuses to clobber an existing database
	existing := filepath.Join(dir, "taken.db")
	if err := os.WriteFile(existing, []byte{}, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if _, err := InitDatabase(dir, "taken.db"); err == nil {
		t.Error("Expected error for existing database")
	}

	// Missing parent directory
	if _, err := InitDatabase(filepath.Join(dir, "missing"), ""); err == nil {
		t.Error("Expected error for missing directory")
	}
}
