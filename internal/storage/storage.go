package storage

import (
	"context"
	"io"
	"time"

	"github.com/guestledger/dupguard/internal/storage/sqlite"
	"github.com/guestledger/dupguard/internal/types"
)

// Storage defines the interface for duplicate-detection storage backends
type Storage interface {
	// Transactions - historical rows consulted by duplicate detection
	InsertTransaction(ctx context.Context, rec *types.TransactionRecord) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*types.TransactionRecord, error)
	FindMatches(ctx context.Context, q types.DuplicateQuery, epsilon float64, since time.Time, limit int) (types.CandidateSet, error)
	CountReferencing(ctx context.Context, fileID string) (int, error)

	// Decision log - append-only audit trail
	InsertDecision(ctx context.Context, entry *types.DecisionLogEntry) (int64, error)
	QueryDecisions(ctx context.Context, filter types.AuditFilter, limit, offset int) ([]*types.DecisionLogEntry, error)
	CountDecisions(ctx context.Context, filter types.AuditFilter) (int, error)
	TransactionTrail(ctx context.Context, referenceNumber string, date time.Time, amount, epsilon float64) ([]*types.DecisionLogEntry, error)

	// Reports
	ComplianceReport(ctx context.Context, from, to time.Time, includeDetails bool) (*types.ComplianceReport, error)
	UserActivityReport(ctx context.Context, userID string, from, to time.Time) (*types.UserActivityReport, error)

	// Retention & maintenance
	CleanupDecisionLog(ctx context.Context, retentionDays, batchSize int) (int, error)
	GetAuditCounts(ctx context.Context) (*sqlite.AuditCounts, error)
	VacuumDatabase(ctx context.Context) error
	AnalyzeDatabase(ctx context.Context) error

	// Export
	ExportCSV(ctx context.Context, w io.Writer, filter types.AuditFilter) (int, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: "dupguard.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: "dupguard.db",
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
// and future extension possibilities
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Path == "" {
		cfg.Path = "dupguard.db"
	}

	return sqlite.New(cfg.Path)
}
