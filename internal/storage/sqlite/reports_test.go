package sqlite

import (
	"context"
	"testing"
	"time"
)

func TestComplianceReport(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)
	ctx := context.Background()

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC)

	report, err := store.ComplianceReport(ctx, from, to, false)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if report.TotalDecisions != 6 {
		t.Errorf("Expected 6 total decisions, got %d", report.TotalDecisions)
	}
	if report.ContinueCount != 3 || report.CancelCount != 3 {
		t.Errorf("Expected 3/3 split, got %d/%d", report.ContinueCount, report.CancelCount)
	}
	if report.ContinuePercent != 50 || report.CancelPercent != 50 {
		t.Errorf("Expected 50%%/50%%, got %v/%v", report.ContinuePercent, report.CancelPercent)
	}
	if len(report.Details) != 0 {
		t.Errorf("Expected no details, got %d", len(report.Details))
	}

	if len(report.ByReference) != 2 {
		t.Fatalf("Expected 2 reference rows, got %d", len(report.ByReference))
	}
	// Busiest reference first
	top := report.ByReference[0]
	if top.ReferenceNumber != "REF-A" || top.Total != 4 || top.ContinueCount != 2 || top.CancelCount != 2 {
		t.Errorf("Unexpected top reference row: %+v", top)
	}

	if len(report.Daily) != 2 {
		t.Fatalf("Expected 2 daily rows, got %d", len(report.Daily))
	}
	day1 := report.Daily[0]
	if day1.Day != "2024-05-01" || day1.Total != 3 || day1.ContinueCount != 2 || day1.CancelCount != 1 {
		t.Errorf("Unexpected first daily row: %+v", day1)
	}
	day2 := report.Daily[1]
	if day2.Day != "2024-05-02" || day2.Total != 3 || day2.ContinueCount != 1 || day2.CancelCount != 2 {
		t.Errorf("Unexpected second daily row: %+v", day2)
	}
}

func TestComplianceReportWithDetails(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)

	report, err := store.ComplianceReport(context.Background(),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC),
		true)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Details) != 6 {
		t.Errorf("Expected 6 detail entries, got %d", len(report.Details))
	}
}

func TestComplianceReportEmptyPeriod(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)

	report, err := store.ComplianceReport(context.Background(),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		true)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if report.TotalDecisions != 0 {
		t.Errorf("Expected 0 decisions, got %d", report.TotalDecisions)
	}
	if report.ContinuePercent != 0 || report.CancelPercent != 0 {
		t.Errorf("Expected 0%% on empty period, got %v/%v", report.ContinuePercent, report.CancelPercent)
	}
	if len(report.ByReference) != 0 || len(report.Daily) != 0 || len(report.Details) != 0 {
		t.Error("Expected empty breakdowns on empty period")
	}
}

func TestComplianceReportInvalidPeriod(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ComplianceReport(context.Background(),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		false)
	if err == nil {
		t.Error("Expected error for inverted period")
	}
}

func TestUserActivityReport(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)
	ctx := context.Background()

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC)

	report, err := store.UserActivityReport(ctx, "alice", from, to)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if report.UserID != "alice" {
		t.Errorf("Expected user alice, got %s", report.UserID)
	}
	if report.TotalDecisions != 3 || report.ContinueCount != 2 || report.CancelCount != 1 {
		t.Errorf("Unexpected totals: %d total, %d continue, %d cancel",
			report.TotalDecisions, report.ContinueCount, report.CancelCount)
	}

	wantFirst := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	wantLast := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	if !report.FirstDecision.Equal(wantFirst) {
		t.Errorf("Expected first decision %v, got %v", wantFirst, report.FirstDecision)
	}
	if !report.LastDecision.Equal(wantLast) {
		t.Errorf("Expected last decision %v, got %v", wantLast, report.LastDecision)
	}

	if len(report.Daily) != 2 {
		t.Fatalf("Expected 2 daily rows, got %d", len(report.Daily))
	}
	if report.Daily[0].Day != "2024-05-01" || report.Daily[0].Total != 2 {
		t.Errorf("Unexpected first daily row: %+v", report.Daily[0])
	}
	if report.Daily[1].Day != "2024-05-02" || report.Daily[1].Total != 1 {
		t.Errorf("Unexpected second daily row: %+v", report.Daily[1])
	}
}

func TestUserActivityReportNoActivity(t *testing.T) {
	store := newTestStore(t)
	seedDecisions(t, store)

	report, err := store.UserActivityReport(context.Background(), "carol",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC))
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if report.TotalDecisions != 0 {
		t.Errorf("Expected 0 decisions, got %d", report.TotalDecisions)
	}
	if !report.FirstDecision.IsZero() || !report.LastDecision.IsZero() {
		t.Error("Expected zero first/last timestamps for inactive user")
	}
	if len(report.Daily) != 0 {
		t.Errorf("Expected empty daily series, got %d rows", len(report.Daily))
	}
}

func TestUserActivityReportRequiresUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UserActivityReport(context.Background(), "",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Error("Expected error for empty user id")
	}
}
