package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiscoverDatabase locates the dupguard database for the current directory.
// The DUPGUARD_DB environment variable takes precedence when set, which also
// gives tests isolation without flag plumbing. Otherwise only the current
// directory is checked; walking up the tree risks silently picking up an
// unrelated ledger's database.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("DUPGUARD_DB"); dbPath != "" {
		// Allow special values like ":memory:" or explicit paths
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	candidate := filepath.Join(dir, "dupguard.db")
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		absPath, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	return "", fmt.Errorf(
		"no dupguard.db found in %s\n"+
			"  Run 'dupguard init' to create one here\n"+
			"  Or use --db to specify the database path explicitly",
		dir)
}

// InitDatabase picks the database path for a fresh install under dir,
// refusing to clobber an existing file. The database itself is created on
// first open.
func InitDatabase(dir, name string) (string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("directory does not exist: %s", dir)
	}

	if name == "" {
		name = "dupguard.db"
	}
	if filepath.Ext(name) != ".db" {
		name += ".db"
	}

	dbPath := filepath.Join(dir, name)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}
