// Package audit owns the append-only decision log. Writes go through
// bounded synchronous retries and then a deferred in-memory queue drained
// by a background sweep, so an accepted entry is never dropped even when
// the store is down. Reads, reports, retention, and export pass through to
// the persistence layer.
package audit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/retry"
	"github.com/guestledger/dupguard/internal/types"
)

// OpAuditWrite is the operation type recorded for audit write samples
const OpAuditWrite = "audit_write"

// Storage is the slice of the persistence layer the audit store uses
type Storage interface {
	InsertDecision(ctx context.Context, entry *types.DecisionLogEntry) (int64, error)
	QueryDecisions(ctx context.Context, filter types.AuditFilter, limit, offset int) ([]*types.DecisionLogEntry, error)
	CountDecisions(ctx context.Context, filter types.AuditFilter) (int, error)
	TransactionTrail(ctx context.Context, referenceNumber string, date time.Time, amount, epsilon float64) ([]*types.DecisionLogEntry, error)
	ComplianceReport(ctx context.Context, from, to time.Time, includeDetails bool) (*types.ComplianceReport, error)
	UserActivityReport(ctx context.Context, userID string, from, to time.Time) (*types.UserActivityReport, error)
	CleanupDecisionLog(ctx context.Context, retentionDays, batchSize int) (int, error)
	ExportCSV(ctx context.Context, w io.Writer, filter types.AuditFilter) (int, error)
}

// Observer receives one sample per audit write attempt sequence
type Observer interface {
	Observe(operation string, d time.Duration, success, cacheHit bool)
}

// Store is the audit facade over persistence: durable Log plus read,
// report, retention, and export operations.
type Store struct {
	storage  Storage
	cfg      config.AuditConfig
	log      zerolog.Logger
	observer Observer
	mirror   Sink

	queue *retryQueue
	retry retry.Config

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

// New creates an audit store over the given persistence layer
func New(storage Storage, cfg config.AuditConfig, log zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		cfg:     cfg,
		log:     log.With().Str("component", "audit").Logger(),
		queue:   &retryQueue{},
		retry: retry.Config{
			MaxAttempts:    cfg.WriteMaxAttempts,
			InitialBackoff: cfg.WriteBackoff,
		},
	}
}

// SetObserver installs the performance observer. Call during startup,
// before writes begin.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

// SetMirror installs an optional warehouse sink. Call during startup,
// before writes begin.
func (s *Store) SetMirror(m Sink) {
	s.mirror = m
}

// Log accepts a decision log entry. The entry is written synchronously
// with bounded retries; if the store stays down it parks on the deferred
// queue and the background drain owns it from there. Acceptance only fails
// on validation, wrapped as types.ErrAuditWriteFailed: by the time Log is
// called the decision is final, so a slow store must not reject it.
func (s *Store) Log(ctx context.Context, entry *types.DecisionLogEntry) error {
	start := time.Now()

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrAuditWriteFailed, err)
	}
	// Stamp now, not at insert time: a queued entry must carry the moment
	// the decision was logged, not the moment the store recovered.
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	err := retry.Do(ctx, s.log, s.retry, "audit write", func(ctx context.Context) error {
		_, ierr := s.storage.InsertDecision(ctx, entry)
		return ierr
	})
	if err == nil {
		s.observe(start, true)
		s.mirrorEntry(ctx, *entry)
		s.log.Info().Int64("entry_id", entry.ID).
			Str("operation_id", entry.OperationID).
			Str("decision", string(entry.Decision)).
			Msg("decision logged")
		return nil
	}

	s.queue.push(*entry)
	s.observe(start, false)
	s.log.Error().Err(err).
		Str("operation_id", entry.OperationID).
		Int("queue_depth", s.queue.depth()).
		Msg("audit write deferred")
	return nil
}

// Drain retries every queued entry once, oldest first. A failing insert
// stops the pass and requeues the remainder in order; the return value is
// the number of entries flushed.
func (s *Store) Drain(ctx context.Context) (int, error) {
	pending := s.queue.takeAll()
	if len(pending) == 0 {
		return 0, nil
	}

	for i := range pending {
		start := time.Now()
		entry := pending[i]
		if _, err := s.storage.InsertDecision(ctx, &entry); err != nil {
			s.queue.requeueFront(pending[i:])
			return i, fmt.Errorf("audit drain stalled with %d entries queued: %w", s.queue.depth(), err)
		}
		s.observe(start, true)
		s.mirrorEntry(ctx, entry)
	}

	s.log.Info().Int("drained", len(pending)).Msg("deferred audit entries flushed")
	return len(pending), nil
}

// QueueDepth reports how many accepted entries still await persistence
func (s *Store) QueueDepth() int {
	return s.queue.depth()
}

// Start launches the background drain sweep
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.cfg.DrainInterval)
	go s.drainLoop(s.ticker, s.done)
	s.log.Debug().Dur("interval", s.cfg.DrainInterval).Msg("audit drain sweep started")
}

// Stop halts the background drain sweep. Queued entries stay queued; a
// later Start or manual Drain picks them up.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.done)
}

func (s *Store) drainLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainInterval)
			if _, err := s.Drain(ctx); err != nil {
				s.log.Warn().Err(err).Msg("audit drain incomplete")
			}
			cancel()
		case <-done:
			return
		}
	}
}

// Query retrieves decision log entries matching the filter, newest first
func (s *Store) Query(ctx context.Context, filter types.AuditFilter, limit, offset int) ([]*types.DecisionLogEntry, error) {
	return s.storage.QueryDecisions(ctx, filter, limit, offset)
}

// Count returns the number of entries matching the filter
func (s *Store) Count(ctx context.Context, filter types.AuditFilter) (int, error) {
	return s.storage.CountDecisions(ctx, filter)
}

// Trail returns the full decision history for one transaction identity in
// chronological order.
func (s *Store) Trail(ctx context.Context, referenceNumber string, date time.Time, amount, epsilon float64) ([]*types.DecisionLogEntry, error) {
	return s.storage.TransactionTrail(ctx, referenceNumber, date, amount, epsilon)
}

// Compliance builds the compliance report for the period
func (s *Store) Compliance(ctx context.Context, from, to time.Time, includeDetails bool) (*types.ComplianceReport, error) {
	return s.storage.ComplianceReport(ctx, from, to, includeDetails)
}

// UserActivity builds the per-user activity report for the period
func (s *Store) UserActivity(ctx context.Context, userID string, from, to time.Time) (*types.UserActivityReport, error) {
	return s.storage.UserActivityReport(ctx, userID, from, to)
}

// Cleanup deletes entries older than the retention window and returns the
// number removed. A non-positive retentionDays falls back to the configured
// default. This is the only mutation the log permits.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	deleted, err := s.storage.CleanupDecisionLog(ctx, retentionDays, s.cfg.CleanupBatchSize)
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).
			Msg("audit retention cleanup finished")
	}
	return deleted, nil
}

// ExportCSV streams matching entries to w in table column order and
// returns the number of rows written.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, filter types.AuditFilter) (int, error) {
	return s.storage.ExportCSV(ctx, w, filter)
}

func (s *Store) observe(start time.Time, success bool) {
	if s.observer != nil {
		s.observer.Observe(OpAuditWrite, time.Since(start), success, false)
	}
}

func (s *Store) mirrorEntry(ctx context.Context, entry types.DecisionLogEntry) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Mirror(ctx, entry); err != nil {
		s.log.Warn().Err(err).Int64("entry_id", entry.ID).
			Msg("warehouse mirror failed")
	}
}
