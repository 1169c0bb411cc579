package audit

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/types"
)

// MirrorRow is the warehouse shape of a decision log entry. Column names
// match the authoritative table so warehouse queries read the same way.
type MirrorRow struct {
	EntryID               int64               `bigquery:"entry_id"`
	Timestamp             time.Time           `bigquery:"timestamp"`
	ReferenceNumber       string              `bigquery:"reference_number"`
	TransactionDate       civil.Date          `bigquery:"transaction_date"`
	TransactionAmount     float64             `bigquery:"transaction_amount"`
	Decision              string              `bigquery:"decision"`
	ExistingTransactionID bigquery.NullInt64  `bigquery:"existing_transaction_id"`
	NewFileURL            string              `bigquery:"new_file_url"`
	UserID                bigquery.NullString `bigquery:"user_id"`
	SessionID             string              `bigquery:"session_id"`
	OperationID           string              `bigquery:"operation_id"`
}

// mirrorRow converts an entry to its warehouse row. UserID stays NULL for
// system decisions, matching the authoritative table.
func mirrorRow(entry types.DecisionLogEntry) *MirrorRow {
	row := &MirrorRow{
		EntryID:           entry.ID,
		Timestamp:         entry.Timestamp.UTC(),
		ReferenceNumber:   entry.ReferenceNumber,
		TransactionDate:   civil.DateOf(entry.TransactionDate),
		TransactionAmount: entry.TransactionAmount,
		Decision:          string(entry.Decision),
		NewFileURL:        entry.NewFileURL,
		SessionID:         entry.SessionID,
		OperationID:       entry.OperationID,
	}
	if entry.ExistingTransactionID != nil {
		row.ExistingTransactionID = bigquery.NullInt64{Int64: *entry.ExistingTransactionID, Valid: true}
	}
	if entry.UserID != "" {
		row.UserID = bigquery.NullString{StringVal: entry.UserID, Valid: true}
	}
	return row
}

// BigQueryMirror streams committed decision log entries into a warehouse
// table for enterprise reporting.
type BigQueryMirror struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	log     zerolog.Logger
}

// NewBigQueryMirror creates a mirror sink for the configured warehouse
// table using application default credentials.
func NewBigQueryMirror(ctx context.Context, cfg config.AuditConfig, log zerolog.Logger) (*BigQueryMirror, error) {
	client, err := bigquery.NewClient(ctx, cfg.MirrorProject)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQueryMirror{
		client:  client,
		project: cfg.MirrorProject,
		dataset: cfg.MirrorDataset,
		table:   cfg.MirrorTable,
		log:     log.With().Str("component", "audit_mirror").Logger(),
	}, nil
}

// Mirror implements Sink
func (m *BigQueryMirror) Mirror(ctx context.Context, entry types.DecisionLogEntry) error {
	table := m.client.DatasetInProject(m.project, m.dataset).Table(m.table)
	if err := table.Inserter().Put(ctx, []*MirrorRow{mirrorRow(entry)}); err != nil {
		return fmt.Errorf("failed to mirror entry %d: %w", entry.ID, err)
	}
	m.log.Debug().Int64("entry_id", entry.ID).Str("operation_id", entry.OperationID).
		Msg("entry mirrored")
	return nil
}

// Close releases the underlying client
func (m *BigQueryMirror) Close() error {
	return m.client.Close()
}
