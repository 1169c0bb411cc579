package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

// InsertDecision appends one entry to the decision log and returns its id.
// An empty UserID is stored as NULL to mark a system-applied decision.
// Timestamp is honored when set so imports can replay historical entries;
// otherwise it defaults to now.
func (s *Store) InsertDecision(ctx context.Context, entry *types.DecisionLogEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var userID sql.NullString
	if entry.UserID != "" {
		userID = sql.NullString{String: entry.UserID, Valid: true}
	}

	var existingID sql.NullInt64
	if entry.ExistingTransactionID != nil {
		existingID = sql.NullInt64{Int64: *entry.ExistingTransactionID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_log (
			timestamp, reference_number, transaction_date, transaction_amount,
			decision, existing_transaction_id, new_file_url, user_id,
			session_id, operation_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		storeTime(ts),
		entry.ReferenceNumber,
		storeDate(entry.TransactionDate),
		entry.TransactionAmount,
		string(entry.Decision),
		existingID,
		entry.NewFileURL,
		userID,
		entry.SessionID,
		entry.OperationID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision (ref=%s, op=%s): %w", entry.ReferenceNumber, entry.OperationID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read decision id: %w", err)
	}

	entry.ID = id
	entry.Timestamp = ts
	return id, nil
}

// QueryDecisions retrieves decision log entries matching the given filter,
// most recent first. A limit of 0 returns all matching rows; offset applies
// only together with a limit.
func (s *Store) QueryDecisions(ctx context.Context, filter types.AuditFilter, limit, offset int) ([]*types.DecisionLogEntry, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	where, args := decisionFilterSQL(filter)
	query := selectDecisionColumns + where + " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// CountDecisions returns the number of decision log entries matching the
// given filter, for pagination alongside QueryDecisions.
func (s *Store) CountDecisions(ctx context.Context, filter types.AuditFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, fmt.Errorf("invalid filter: %w", err)
	}

	where, args := decisionFilterSQL(filter)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_log"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decision log: %w", err)
	}
	return count, nil
}

// TransactionTrail returns every decision ever recorded for one transaction
// key in chronological order. Amount matching uses the same epsilon as
// duplicate detection so the trail lines up with what the detector saw.
func (s *Store) TransactionTrail(ctx context.Context, referenceNumber string, date time.Time, amount, epsilon float64) ([]*types.DecisionLogEntry, error) {
	if referenceNumber == "" {
		return nil, fmt.Errorf("reference_number is required")
	}

	query := selectDecisionColumns + `
		WHERE reference_number = ?
		  AND transaction_date = ?
		  AND transaction_amount BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, referenceNumber, storeDate(date), amount-epsilon, amount+epsilon)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction trail: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

const selectDecisionColumns = `
	SELECT id, timestamp, reference_number, transaction_date, transaction_amount,
	       decision, existing_transaction_id, new_file_url, user_id,
	       session_id, operation_id
	FROM decision_log`

// decisionFilterSQL renders filter as a WHERE tail shared by queries, counts
// and exports. Zero-valued filter fields add no clause.
func decisionFilterSQL(filter types.AuditFilter) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}

	if filter.ReferenceNumber != "" {
		clause += " AND reference_number = ?"
		args = append(args, filter.ReferenceNumber)
	}
	if !filter.StartDate.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, storeTime(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		clause += " AND timestamp <= ?"
		args = append(args, storeTime(filter.EndDate))
	}
	if filter.Decision != "" {
		clause += " AND decision = ?"
		args = append(args, string(filter.Decision))
	}
	if filter.UserID != "" {
		clause += " AND user_id = ?"
		args = append(args, filter.UserID)
	}

	return clause, args
}

// scanDecisions is a helper to scan rows into DecisionLogEntry structs
func scanDecisions(rows *sql.Rows) ([]*types.DecisionLogEntry, error) {
	var result []*types.DecisionLogEntry

	for rows.Next() {
		entry, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}

	return result, nil
}

// scanDecision scans the current row of a selectDecisionColumns query
func scanDecision(rows *sql.Rows) (*types.DecisionLogEntry, error) {
	var entry types.DecisionLogEntry
	var ts, txDate, decision string
	var existingID sql.NullInt64
	var userID sql.NullString

	err := rows.Scan(
		&entry.ID, &ts, &entry.ReferenceNumber, &txDate, &entry.TransactionAmount,
		&decision, &existingID, &entry.NewFileURL, &userID,
		&entry.SessionID, &entry.OperationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision entry: %w", err)
	}

	if entry.Timestamp, err = parseStoredTime(ts); err != nil {
		return nil, fmt.Errorf("bad timestamp for decision %d: %w", entry.ID, err)
	}
	if entry.TransactionDate, err = parseStoredTime(txDate); err != nil {
		return nil, fmt.Errorf("bad transaction_date for decision %d: %w", entry.ID, err)
	}

	entry.Decision = types.Decision(decision)
	if existingID.Valid {
		v := existingID.Int64
		entry.ExistingTransactionID = &v
	}
	if userID.Valid {
		entry.UserID = userID.String
	}

	return &entry, nil
}
