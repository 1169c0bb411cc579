package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/detect"
	"github.com/guestledger/dupguard/internal/filestore"
	"github.com/guestledger/dupguard/internal/types"
)

var importSkipBad bool

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Bulk-load transactions from a CSV file",
	Long: `Load historical transactions into the store.

The file needs a header row with at least reference_number,
transaction_date (YYYY-MM-DD), and amount; file_url, source, and
created_at columns are picked up when present. Rows are not checked for
duplicates on the way in; use 'dupguard check' per incoming transaction.

Examples:
  dupguard import transactions.csv
  dupguard import transactions.csv --skip-bad`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runImport(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().BoolVar(&importSkipBad, "skip-bad", false, "Skip rows that fail to parse instead of aborting")
	rootCmd.AddCommand(importCmd)
}

func runImport(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// No cache to invalidate in a one-shot import.
	det := detect.New(store, nil, cfg.Detector, cliLogger())

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"reference_number", "transaction_date", "amount"} {
		if _, ok := col[name]; !ok {
			return fmt.Errorf("missing required column %q", name)
		}
	}

	imported, skipped := 0, 0
	line := 1
	for {
		row, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		line++
		if rerr == nil {
			var rec *types.TransactionRecord
			if rec, rerr = rowToRecord(row, col); rerr == nil {
				_, rerr = det.Ingest(ctx, rec)
			}
		}
		if rerr != nil {
			if !importSkipBad {
				return fmt.Errorf("line %d: %w", line, rerr)
			}
			skipped++
			fmt.Fprintf(os.Stderr, "Warning: line %d skipped: %v\n", line, rerr)
			continue
		}
		imported++
	}

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("%s Imported %d transactions from %s\n", green("✓"), imported, path)
	if skipped > 0 {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("%d rows skipped", skipped)))
	}
	return nil
}

// rowToRecord maps one CSV row onto a transaction record
func rowToRecord(row []string, col map[string]int) (*types.TransactionRecord, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	date, err := time.Parse(time.DateOnly, field("transaction_date"))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_date %q", field("transaction_date"))
	}
	amount, err := strconv.ParseFloat(field("amount"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", field("amount"))
	}

	rec := &types.TransactionRecord{
		ReferenceNumber: field("reference_number"),
		TransactionDate: date,
		Amount:          amount,
		FileURL:         field("file_url"),
		Source:          field("source"),
	}
	if rec.FileURL != "" {
		rec.FileID = filestore.ExtractID(rec.FileURL)
	}
	if v := field("created_at"); v != "" {
		at, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			at, perr = time.Parse(time.DateOnly, v)
		}
		if perr != nil {
			return nil, fmt.Errorf("invalid created_at %q", v)
		}
		rec.CreatedAt = at
	}
	return rec, rec.Validate()
}
