package main

import (
	"context"
	"testing"
	"time"

	"github.com/guestledger/dupguard/internal/filestore"
	"github.com/guestledger/dupguard/internal/logger"
)

func TestParseQueryArgs(t *testing.T) {
	q, err := parseQueryArgs([]string{"INV-2041", "2025-06-01", "121.00"})
	if err != nil {
		t.Fatalf("parseQueryArgs failed: %v", err)
	}
	if q.ReferenceNumber != "INV-2041" {
		t.Errorf("ReferenceNumber = %q; want INV-2041", q.ReferenceNumber)
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !q.TransactionDate.Equal(want) {
		t.Errorf("TransactionDate = %v; want %v", q.TransactionDate, want)
	}
	if q.Amount != 121.00 {
		t.Errorf("Amount = %v; want 121.00", q.Amount)
	}
}

func TestParseQueryArgsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad date", []string{"INV-1", "June 1st", "121.00"}},
		{"bad amount", []string{"INV-1", "2025-06-01", "a lot"}},
		{"negative amount", []string{"INV-1", "2025-06-01", "-5"}},
		{"blank reference", []string{"   ", "2025-06-01", "121.00"}},
	}
	for _, tt := range tests {
		if _, err := parseQueryArgs(tt.args); err == nil {
			t.Errorf("%s: expected error, got none", tt.name)
		}
	}
}

func TestBuildFileStoreDefaultsToMemory(t *testing.T) {
	for _, url := range []string{"", "https://drive.google.com/file/d/abc123/view", "/tmp/local.pdf"} {
		fs, closeFn, err := buildFileStore(context.Background(), 30*time.Second, url, logger.Nop())
		if err != nil {
			t.Fatalf("buildFileStore(%q) failed: %v", url, err)
		}
		if _, ok := fs.(*filestore.Memory); !ok {
			t.Errorf("buildFileStore(%q) = %T; want *filestore.Memory", url, fs)
		}
		closeFn()
	}
}
