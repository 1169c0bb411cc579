package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/guestledger/dupguard/internal/types"
)

// Store implements the storage.Storage interface using SQLite.
//
// All time values cross the driver boundary as TEXT in fixed UTC layouts so
// that range comparisons and strftime() work directly on stored column
// values regardless of driver time handling.
type Store struct {
	db   *sql.DB
	path string
}

// timeLayout is the storage layout for DATETIME columns. Lexicographic order
// on stored values equals chronological order because every value is UTC.
const timeLayout = "2006-01-02 15:04:05.000"

// New creates a new SQLite store at path, initializing the schema on first
// open. The special path ":memory:" creates a private in-memory database;
// its pool is pinned to a single connection so every query sees the same
// data.
func New(path string) (*Store, error) {
	memory := path == ":memory:"

	if !memory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	// WAL keeps readers unblocked during audit writes; busy_timeout covers
	// the writer lock handoff under concurrent duplicate checks.
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database path the store was opened with
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// storeTime renders t for a DATETIME column
func storeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// storeDate renders the calendar date of t for a DATE column. The civil date
// is taken in t's own location so a date entered as 2024-03-01 stays
// 2024-03-01 no matter the wall-clock zone.
func storeDate(t time.Time) string {
	return types.DateOnly(t).Format(time.DateOnly)
}

// parseStoredTime accepts every layout this package has written plus RFC 3339
// for rows loaded from external dumps. Returned times are UTC.
func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value: %q", s)
}
