package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

func insertDecisionAt(t *testing.T, store *Store, ts time.Time, op string) {
	t.Helper()
	entry := &types.DecisionLogEntry{
		Timestamp:         ts,
		ReferenceNumber:   "REF-R",
		TransactionDate:   types.DateOnly(ts),
		TransactionAmount: 10,
		Decision:          types.DecisionContinue,
		UserID:            "alice",
		OperationID:       op,
	}
	if _, err := store.InsertDecision(context.Background(), entry); err != nil {
		t.Fatalf("Failed to insert decision %s: %v", op, err)
	}
}

func TestCleanupDecisionLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	insertDecisionAt(t, store, now.AddDate(0, 0, -800), "op-ancient")
	insertDecisionAt(t, store, now.AddDate(0, 0, -750), "op-old")
	insertDecisionAt(t, store, now.AddDate(0, 0, -10), "op-recent")

	// Batch size 1 forces the delete loop through multiple rounds
	deleted, err := store.CleanupDecisionLog(ctx, 730, 1)
	if err != nil {
		t.Fatalf("Failed to clean up: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	remaining, err := store.QueryDecisions(ctx, types.AuditFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("Expected 1 remaining entry, got %d", len(remaining))
	}
	if remaining[0].OperationID != "op-recent" {
		t.Errorf("Expected op-recent to survive, got %s", remaining[0].OperationID)
	}

	// Second run has nothing left to purge
	deleted, err = store.CleanupDecisionLog(ctx, 730, 1)
	if err != nil {
		t.Fatalf("Failed to clean up: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 deleted on rerun, got %d", deleted)
	}
}

func TestCleanupDecisionLogValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CleanupDecisionLog(ctx, 0, 100); err == nil {
		t.Error("Expected error for zero retention")
	}
	if _, err := store.CleanupDecisionLog(ctx, 730, 0); err == nil {
		t.Error("Expected error for zero batch size")
	}
}

func TestCleanupDecisionLogCanceledContext(t *testing.T) {
	store := newTestStore(t)

	insertDecisionAt(t, store, time.Now().AddDate(0, 0, -800), "op-ancient")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.CleanupDecisionLog(ctx, 730, 100); err == nil {
		t.Error("Expected context error")
	}
}

func TestGetAuditCounts(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)
	ctx := context.Background()

	counts, err := store.GetAuditCounts(ctx)
	if err != nil {
		t.Fatalf("Failed to get counts: %v", err)
	}

	if counts.TotalEntries != 6 {
		t.Errorf("Expected 6 entries, got %d", counts.TotalEntries)
	}
	if counts.EntriesByDecision["continue"] != 3 || counts.EntriesByDecision["cancel"] != 3 {
		t.Errorf("Unexpected decision counts: %v", counts.EntriesByDecision)
	}
	if counts.EntriesByUser["alice"] != 3 {
		t.Errorf("Expected 3 entries for alice, got %d", counts.EntriesByUser["alice"])
	}
	if counts.EntriesByUser["system"] != 1 {
		t.Errorf("Expected 1 system entry, got %d", counts.EntriesByUser["system"])
	}
	if counts.TotalTransactions != 0 {
		t.Errorf("Expected 0 transactions, got %d", counts.TotalTransactions)
	}

	wantOldest := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	wantNewest := time.Date(2024, 5, 2, 11, 0, 0, 0, time.UTC)
	if !counts.OldestEntry.Equal(wantOldest) {
		t.Errorf("Expected oldest %v, got %v", wantOldest, counts.OldestEntry)
	}
	if !counts.NewestEntry.Equal(wantNewest) {
		t.Errorf("Expected newest %v, got %v", wantNewest, counts.NewestEntry)
	}
}

func TestVacuumAndAnalyze(t *testing.T) {
	// VACUUM needs a file-backed database
	store, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	seedDecisions(t, store)
	ctx := context.Background()

	if err := store.VacuumDatabase(ctx); err != nil {
		t.Errorf("Failed to vacuum: %v", err)
	}
	if err := store.AnalyzeDatabase(ctx); err != nil {
		t.Errorf("Failed to analyze: %v", err)
	}
}
