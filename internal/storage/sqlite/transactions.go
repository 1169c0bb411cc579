package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

// InsertTransaction stores a new transaction record and returns its id.
// TransactionDate is normalized to a calendar date; CreatedAt defaults to
// now when unset so imports can replay historical rows.
func (s *Store) InsertTransaction(ctx context.Context, rec *types.TransactionRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			reference_number, transaction_date, amount,
			file_url, file_id, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ReferenceNumber,
		storeDate(rec.TransactionDate),
		rec.Amount,
		rec.FileURL,
		rec.FileID,
		rec.Source,
		storeTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction (ref=%s): %w", rec.ReferenceNumber, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction id: %w", err)
	}

	rec.ID = id
	rec.TransactionDate = types.DateOnly(rec.TransactionDate)
	rec.CreatedAt = createdAt
	return id, nil
}

// GetTransaction retrieves a transaction by id. Returns nil without error
// when the row does not exist.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*types.TransactionRecord, error) {
	var rec types.TransactionRecord
	var txDate, createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference_number, transaction_date, amount,
		       file_url, file_id, source, created_at
		FROM transactions
		WHERE id = ?
	`, id).Scan(
		&rec.ID, &rec.ReferenceNumber, &txDate, &rec.Amount,
		&rec.FileURL, &rec.FileID, &rec.Source, &createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if rec.TransactionDate, err = parseStoredTime(txDate); err != nil {
		return nil, fmt.Errorf("bad transaction_date for id %d: %w", id, err)
	}
	if rec.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for id %d: %w", id, err)
	}

	return &rec, nil
}

// FindMatches returns transactions sharing the query's exact match key, with
// amounts within epsilon, newest id first. The since cutoff restricts the
// search window and is applied in the query itself so ranking and the limit
// only ever see in-window rows. A query with no matches returns an empty,
// non-nil set.
func (s *Store) FindMatches(ctx context.Context, q types.DuplicateQuery, epsilon float64, since time.Time, limit int) (types.CandidateSet, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		SELECT id, reference_number, transaction_date, amount,
		       file_url, file_id, source, created_at
		FROM transactions
		WHERE reference_number = ?
		  AND transaction_date = ?
		  AND amount BETWEEN ? AND ?
	`
	args := []interface{}{q.ReferenceNumber, storeDate(q.TransactionDate), q.Amount - epsilon, q.Amount + epsilon}

	if !since.IsZero() {
		query += " AND transaction_date >= ?"
		args = append(args, storeDate(since))
	}

	query += " ORDER BY id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// CountReferencing returns how many transactions reference the given file
// identifier. An empty identifier never matches anything.
func (s *Store) CountReferencing(ctx context.Context, fileID string) (int, error) {
	if fileID == "" {
		return 0, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE file_id = ?`, fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count file references: %w", err)
	}
	return count, nil
}

// scanTransactions is a helper to scan rows into a CandidateSet
func scanTransactions(rows *sql.Rows) (types.CandidateSet, error) {
	set := types.CandidateSet{}

	for rows.Next() {
		var rec types.TransactionRecord
		var txDate, createdAt string

		err := rows.Scan(
			&rec.ID, &rec.ReferenceNumber, &txDate, &rec.Amount,
			&rec.FileURL, &rec.FileID, &rec.Source, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if rec.TransactionDate, err = parseStoredTime(txDate); err != nil {
			return nil, fmt.Errorf("bad transaction_date for id %d: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at for id %d: %w", rec.ID, err)
		}

		set = append(set, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return set, nil
}
