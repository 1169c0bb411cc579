package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditCounts holds decision log statistics for monitoring and the
// retention CLI. NULL user ids group under "system".
type AuditCounts struct {
	TotalEntries      int
	EntriesByDecision map[string]int
	EntriesByUser     map[string]int
	TotalTransactions int
	OldestEntry       time.Time
	NewestEntry       time.Time
}

// CleanupDecisionLog deletes decision log entries older than the retention
// period and returns how many were removed. This is the only mutation ever
// applied to the log. Deletions are batched so a large purge cannot hold the
// write lock for the whole run.
func (s *Store) CleanupDecisionLog(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	totalDeleted := 0

	for {
		// Check context cancellation between batches
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM decision_log
			WHERE id IN (
				SELECT id FROM decision_log
				WHERE timestamp < ?
				ORDER BY timestamp ASC
				LIMIT ?
			)
		`, storeTime(cutoff), batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete expired entries: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}

		totalDeleted += int(rowsAffected)

		// Fewer rows than the batch size means nothing expired remains
		if rowsAffected < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// GetAuditCounts returns decision log statistics for monitoring
func (s *Store) GetAuditCounts(ctx context.Context) (*AuditCounts, error) {
	counts := &AuditCounts{
		EntriesByDecision: make(map[string]int),
		EntriesByUser:     make(map[string]int),
	}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM decision_log
	`).Scan(&counts.TotalEntries, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to count decision log: %w", err)
	}

	if oldest.Valid {
		if counts.OldestEntry, err = parseStoredTime(oldest.String); err != nil {
			return nil, fmt.Errorf("bad oldest entry timestamp: %w", err)
		}
	}
	if newest.Valid {
		if counts.NewestEntry, err = parseStoredTime(newest.String); err != nil {
			return nil, fmt.Errorf("bad newest entry timestamp: %w", err)
		}
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&counts.TotalTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT decision, COUNT(*)
		FROM decision_log
		GROUP BY decision
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", err)
		}
		counts.EntriesByDecision[decision] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT COALESCE(user_id, 'system'), COUNT(*)
		FROM decision_log
		GROUP BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions by user: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan user count: %w", err)
		}
		counts.EntriesByUser[userID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user counts: %w", err)
	}

	return counts, nil
}

// VacuumDatabase runs the VACUUM command to reclaim disk space after large
// retention deletes. This can be slow and locks the database, so it should
// be run from maintenance paths only.
func (s *Store) VacuumDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// AnalyzeDatabase refreshes the query planner statistics backing the
// duplicate lookup indexes
func (s *Store) AnalyzeDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to run pragma optimize: %w", err)
	}
	return nil
}
