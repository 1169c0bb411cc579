package sqlite

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

// csvHeader lists the exported columns in schema order
var csvHeader = []string{
	"id", "timestamp", "reference_number", "transaction_date",
	"transaction_amount", "decision", "existing_transaction_id",
	"new_file_url", "user_id", "session_id", "operation_id",
}

// ExportCSV streams decision log entries matching filter to w as CSV, oldest
// first, and returns the number of data rows written. Timestamps are RFC 3339
// UTC; a system decision leaves user_id empty.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, filter types.AuditFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, fmt.Errorf("invalid filter: %w", err)
	}

	where, args := decisionFilterSQL(filter)
	query := selectDecisionColumns + where + " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	written := 0
	for rows.Next() {
		entry, err := scanDecision(rows)
		if err != nil {
			return written, err
		}

		existingID := ""
		if entry.ExistingTransactionID != nil {
			existingID = strconv.FormatInt(*entry.ExistingTransactionID, 10)
		}

		record := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.ReferenceNumber,
			entry.TransactionDate.Format(time.DateOnly),
			strconv.FormatFloat(entry.TransactionAmount, 'f', 2, 64),
			string(entry.Decision),
			existingID,
			entry.NewFileURL,
			entry.UserID,
			entry.SessionID,
			entry.OperationID,
		}
		if err := cw.Write(record); err != nil {
			return written, fmt.Errorf("failed to write csv row: %w", err)
		}
		written++
	}
	if err := rows.Err(); err != nil {
		return written, fmt.Errorf("error iterating decision rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("failed to flush csv: %w", err)
	}

	return written, nil
}
