package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

func TestInsertAndGetTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &types.TransactionRecord{
		ReferenceNumber: "INV-2024-0042",
		TransactionDate: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		Amount:          999.99,
		FileURL:         "gs://guestledger-docs/str/INV-2024-0042.pdf",
		FileID:          "INV-2024-0042.pdf",
		Source:          "vendorx",
	}

	id, err := store.InsertTransaction(ctx, rec)
	if err != nil {
		t.Fatalf("Failed to insert transaction: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero id")
	}
	if rec.ID != id {
		t.Errorf("Expected record id set to %d, got %d", id, rec.ID)
	}

	got, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get transaction: %v", err)
	}
	if got == nil {
		t.Fatal("Expected transaction, got nil")
	}
	if got.ReferenceNumber != "INV-2024-0042" {
		t.Errorf("Expected reference INV-2024-0042, got %s", got.ReferenceNumber)
	}
	if got.Amount != 999.99 {
		t.Errorf("Expected amount 999.99, got %v", got.Amount)
	}
	if got.FileID != "INV-2024-0042.pdf" {
		t.Errorf("Expected file id INV-2024-0042.pdf, got %s", got.FileID)
	}

	// Time-of-day must not survive storage
	wantDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.TransactionDate.Equal(wantDate) {
		t.Errorf("Expected date %v, got %v", wantDate, got.TransactionDate)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetTransaction(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Expected no error for missing row, got: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing row, got %+v", got)
	}
}

func TestInsertTransactionValidation(t *testing.T) {
	store := newTestStore(t)

	rec := &types.TransactionRecord{
		TransactionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:          10,
	}
	if _, err := store.InsertTransaction(context.Background(), rec); err == nil {
		t.Error("Expected validation error for missing reference number")
	}
}

func TestFindMatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	since := date.AddDate(-2, 0, 0)

	insert := func(ref string, d time.Time, amount float64) int64 {
		t.Helper()
		id, err := store.InsertTransaction(ctx, &types.TransactionRecord{
			ReferenceNumber: ref,
			TransactionDate: d,
			Amount:          amount,
		})
		if err != nil {
			t.Fatalf("Failed to insert transaction: %v", err)
		}
		return id
	}

	id1 := insert("REF-A", date, 100.00)
	id2 := insert("REF-A", date, 100.009) // within epsilon
	insert("REF-A", date, 100.02)         // outside epsilon
	insert("REF-A", date.AddDate(0, 0, 1), 100.00)
	insert("REF-B", date, 100.00)

	q := types.DuplicateQuery{ReferenceNumber: "REF-A", TransactionDate: date, Amount: 100.00}

	set, err := store.FindMatches(ctx, q, 0.01, since, 100)
	if err != nil {
		t.Fatalf("Failed to find matches: %v", err)
	}

	if len(set) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(set))
	}
	// Newest id first
	if set[0].ID != id2 || set[1].ID != id1 {
		t.Errorf("Expected ids [%d %d], got [%d %d]", id2, id1, set[0].ID, set[1].ID)
	}
}

func TestFindMatchesNoMatchesReturnsEmptySet(t *testing.T) {
	store := newTestStore(t)

	q := types.DuplicateQuery{
		ReferenceNumber: "REF-NONE",
		TransactionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:          5,
	}
	set, err := store.FindMatches(context.Background(), q, 0.01, time.Time{}, 100)
	if err != nil {
		t.Fatalf("Failed to find matches: %v", err)
	}
	if set == nil {
		t.Fatal("Expected empty set, got nil")
	}
	if !set.Empty() {
		t.Errorf("Expected empty set, got %d candidates", len(set))
	}
}

func TestFindMatchesWindowCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A matching row dated three years back must not surface when the
	// window only reaches two years back.
	oldDate := time.Now().AddDate(-3, 0, 0)
	_, err := store.InsertTransaction(ctx, &types.TransactionRecord{
		ReferenceNumber: "REF-OLD",
		TransactionDate: oldDate,
		Amount:          50,
	})
	if err != nil {
		t.Fatalf("Failed to insert transaction: %v", err)
	}

	q := types.DuplicateQuery{ReferenceNumber: "REF-OLD", TransactionDate: oldDate, Amount: 50}
	since := time.Now().AddDate(-2, 0, 0)

	set, err := store.FindMatches(ctx, q, 0.01, since, 100)
	if err != nil {
		t.Fatalf("Failed to find matches: %v", err)
	}
	if !set.Empty() {
		t.Errorf("Expected no matches outside window, got %d", len(set))
	}

	// Without the cutoff the row is found
	set, err = store.FindMatches(ctx, q, 0.01, time.Time{}, 100)
	if err != nil {
		t.Fatalf("Failed to find matches: %v", err)
	}
	if len(set) != 1 {
		t.Errorf("Expected 1 match without cutoff, got %d", len(set))
	}
}

func TestFindMatchesLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.InsertTransaction(ctx, &types.TransactionRecord{
			ReferenceNumber: "REF-DUP",
			TransactionDate: date,
			Amount:          75,
		})
		if err != nil {
			t.Fatalf("Failed to insert transaction: %v", err)
		}
	}

	q := types.DuplicateQuery{ReferenceNumber: "REF-DUP", TransactionDate: date, Amount: 75}
	set, err := store.FindMatches(ctx, q, 0.01, time.Time{}, 3)
	if err != nil {
		t.Fatalf("Failed to find matches: %v", err)
	}

	if len(set) != 3 {
		t.Fatalf("Expected 3 matches with limit, got %d", len(set))
	}
	for i := 1; i < len(set); i++ {
		if set[i-1].ID <= set[i].ID {
			t.Errorf("Expected descending ids, got %d before %d", set[i-1].ID, set[i].ID)
		}
	}
}

func TestCountReferencing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for i, fileID := range []string{"doc-1.pdf", "doc-1.pdf", "doc-2.pdf"} {
		_, err := store.InsertTransaction(ctx, &types.TransactionRecord{
			ReferenceNumber: "REF-F",
			TransactionDate: date.AddDate(0, 0, i),
			Amount:          10,
			FileID:          fileID,
		})
		if err != nil {
			t.Fatalf("Failed to insert transaction: %v", err)
		}
	}

	count, err := store.CountReferencing(ctx, "doc-1.pdf")
	if err != nil {
		t.Fatalf("Failed to count references: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 references, got %d", count)
	}

	count, err = store.CountReferencing(ctx, "doc-3.pdf")
	if err != nil {
		t.Fatalf("Failed to count references: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 references, got %d", count)
	}

	// Empty identifiers never match
	count, err = store.CountReferencing(ctx, "")
	if err != nil {
		t.Fatalf("Failed to count references: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 references for empty id, got %d", count)
	}
}
