package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TransactionRecord is one historical transaction row as seen by the
// duplicate-detection path. Records are created by the import pipeline and
// never mutated here.
type TransactionRecord struct {
	ID              int64     `json:"id"`
	ReferenceNumber string    `json:"reference_number"`
	TransactionDate time.Time `json:"transaction_date"`
	Amount          float64   `json:"amount"`
	FileURL         string    `json:"file_url,omitempty"`
	FileID          string    `json:"file_id,omitempty"` // stable identifier extracted from FileURL
	Source          string    `json:"source,omitempty"`  // ingesting vendor feed, selects an optional matcher
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks if the record has valid field values
func (r *TransactionRecord) Validate() error {
	if strings.TrimSpace(r.ReferenceNumber) == "" {
		return fmt.Errorf("reference_number is required")
	}
	if r.TransactionDate.IsZero() {
		return fmt.Errorf("transaction_date is required")
	}
	if r.Amount < 0 {
		return fmt.Errorf("amount cannot be negative (got %.2f)", r.Amount)
	}
	return nil
}

// DuplicateQuery is the exact-match key for a duplicate check. It is built
// per check and never persisted. Source does not join the match key; it only
// routes the query to a vendor-specific matcher when one is registered.
type DuplicateQuery struct {
	ReferenceNumber string    `json:"reference_number"`
	TransactionDate time.Time `json:"transaction_date"`
	Amount          float64   `json:"amount"`
	Source          string    `json:"source,omitempty"`
}

// Validate checks if the query has valid field values
func (q *DuplicateQuery) Validate() error {
	if strings.TrimSpace(q.ReferenceNumber) == "" {
		return fmt.Errorf("reference_number is required")
	}
	if q.TransactionDate.IsZero() {
		return fmt.Errorf("transaction_date is required")
	}
	if q.Amount < 0 {
		return fmt.Errorf("amount cannot be negative (got %.2f)", q.Amount)
	}
	return nil
}

// Key returns the canonical cache key string for the query. Amounts are
// normalized to cents so 121.00 and 121.004 key identically, matching the
// epsilon used by the store lookup.
func (q *DuplicateQuery) Key() string {
	return fmt.Sprintf("%s|%s|%d", q.ReferenceNumber, q.TransactionDate.Format(time.DateOnly), Cents(q.Amount))
}

// Cents converts a 2-decimal amount to an integer cent count, absorbing
// float noise from upstream extraction.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// DateOnly truncates t to midnight UTC. Transaction dates are calendar
// dates; time-of-day must never influence the match key.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CandidateSet is an ordered list of records matching a DuplicateQuery,
// most recent first (descending id). Transient; capped by the detector.
type CandidateSet []TransactionRecord

// Empty reports whether the set contains no candidates
func (s CandidateSet) Empty() bool {
	return len(s) == 0
}

// FileURLs returns the non-empty file_url values of the set, in order
func (s CandidateSet) FileURLs() []string {
	urls := make([]string, 0, len(s))
	for _, r := range s {
		if r.FileURL != "" {
			urls = append(urls, r.FileURL)
		}
	}
	return urls
}

// Decision is the operator's resolution of a duplicate warning
type Decision string

const (
	DecisionContinue Decision = "continue" // proceed with the import despite candidates
	DecisionCancel   Decision = "cancel"   // abort the import and clean up the new upload
)

// IsValid checks if the decision value is valid
func (d Decision) IsValid() bool {
	switch d {
	case DecisionContinue, DecisionCancel:
		return true
	}
	return false
}

// DecisionLogEntry is one append-only audit row. Entries are written exactly
// once per resolved duplicate instance and are never mutated; retention
// cleanup is the only permitted deletion. An empty UserID marks a decision
// applied by the system itself (decision timeout).
type DecisionLogEntry struct {
	ID                    int64     `json:"id"`
	Timestamp             time.Time `json:"timestamp"`
	ReferenceNumber       string    `json:"reference_number"`
	TransactionDate       time.Time `json:"transaction_date"`
	TransactionAmount     float64   `json:"transaction_amount"`
	Decision              Decision  `json:"decision"`
	ExistingTransactionID *int64    `json:"existing_transaction_id,omitempty"`
	NewFileURL            string    `json:"new_file_url,omitempty"`
	UserID                string    `json:"user_id,omitempty"`
	SessionID             string    `json:"session_id,omitempty"`
	OperationID           string    `json:"operation_id"`
}

// Validate checks if the entry has valid field values
func (e *DecisionLogEntry) Validate() error {
	if strings.TrimSpace(e.ReferenceNumber) == "" {
		return fmt.Errorf("reference_number is required")
	}
	if e.TransactionDate.IsZero() {
		return fmt.Errorf("transaction_date is required")
	}
	if !e.Decision.IsValid() {
		return fmt.Errorf("invalid decision: %s", e.Decision)
	}
	if strings.TrimSpace(e.OperationID) == "" {
		return fmt.Errorf("operation_id is required")
	}
	return nil
}

// IsSystemDecision reports whether the entry was applied by the system
// rather than an operator (decision timeout auto-cancel).
func (e *DecisionLogEntry) IsSystemDecision() bool {
	return e.UserID == ""
}

// AuditFilter narrows audit log queries. Zero-valued fields are ignored.
type AuditFilter struct {
	ReferenceNumber string    `json:"reference_number,omitempty"`
	StartDate       time.Time `json:"start_date,omitempty"`
	EndDate         time.Time `json:"end_date,omitempty"`
	Decision        Decision  `json:"decision,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
}

// Validate checks if the filter has valid field values
func (f *AuditFilter) Validate() error {
	if f.Decision != "" && !f.Decision.IsValid() {
		return fmt.Errorf("invalid decision filter: %s", f.Decision)
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return fmt.Errorf("end_date precedes start_date")
	}
	return nil
}
