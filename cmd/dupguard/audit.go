package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/audit"
	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/storage"
	"github.com/guestledger/dupguard/internal/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and maintain the decision log",
	Long:  `Commands for querying the append-only decision log, generating compliance reports, and running retention cleanup.`,
}

var auditLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List decision log entries",
	Long: `List decision log entries, newest first.

Examples:
  dupguard audit logs
  dupguard audit logs --ref INV-2041
  dupguard audit logs --decision cancel --from 2025-06-01 --to 2025-06-30
  dupguard audit logs --user jchen --limit 10`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := auditFilterFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		_, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		ctx := context.Background()
		entries, err := aud.Query(ctx, filter, limit, offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		total, err := aud.Count(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		printEntries(entries)
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n  %s\n", gray(fmt.Sprintf("%d of %d entries", len(entries), total)))
	},
}

var auditTrailCmd = &cobra.Command{
	Use:   "trail <reference> <date> <amount>",
	Short: "Audit trail for one transaction",
	Long: `Show every decision ever logged for a transaction key, oldest first.
The amount matches with the same tolerance the duplicate check uses.

Example:
  dupguard audit trail INV-2041 2025-06-01 121.00`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		q, err := parseQueryArgs(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		entries, err := aud.Trail(context.Background(), q.ReferenceNumber, q.TransactionDate, q.Amount, cfg.Detector.AmountEpsilon)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Audit Trail: %s on %s (%.2f) ===",
			q.ReferenceNumber, q.TransactionDate.Format(time.DateOnly), q.Amount)))
		printEntries(entries)
	},
}

var auditReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compliance report for a period",
	Long: `Aggregate decision activity over a period: totals, per-reference
breakdown, and a daily series. Defaults to the last 30 days.

Examples:
  dupguard audit report
  dupguard audit report --from 2025-01-01 --to 2025-06-30
  dupguard audit report --details`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		from, to, err := periodFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		details, _ := cmd.Flags().GetBool("details")

		_, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		rep, err := aud.Compliance(context.Background(), from, to, details)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Compliance Report ==="))
		fmt.Printf("Period:    %s → %s\n", rep.PeriodStart.Format(time.DateOnly), rep.PeriodEnd.Format(time.DateOnly))
		fmt.Printf("Decisions: %d total, %s continued (%.1f%%), %s cancelled (%.1f%%)\n\n",
			rep.TotalDecisions,
			green(fmt.Sprintf("%d", rep.ContinueCount)), rep.ContinuePercent,
			red(fmt.Sprintf("%d", rep.CancelCount)), rep.CancelPercent)

		fmt.Printf("%s\n", yellow("By Reference:"))
		if len(rep.ByReference) == 0 {
			fmt.Printf("  %s\n", gray("No decisions in period"))
		} else {
			shown := rep.ByReference
			if len(shown) > 10 {
				shown = shown[:10]
			}
			fmt.Printf("  %-20s %8s %10s %10s\n", "REFERENCE", "TOTAL", "CONTINUE", "CANCEL")
			for _, b := range shown {
				fmt.Printf("  %-20s %8d %10d %10d\n", b.ReferenceNumber, b.Total, b.ContinueCount, b.CancelCount)
			}
			if rest := len(rep.ByReference) - len(shown); rest > 0 {
				fmt.Printf("  %s\n", gray(fmt.Sprintf("… and %d more", rest)))
			}
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Daily:"))
		if len(rep.Daily) == 0 {
			fmt.Printf("  %s\n", gray("No decisions in period"))
		} else {
			fmt.Printf("  %-12s %8s %10s %10s\n", "DAY", "TOTAL", "CONTINUE", "CANCEL")
			for _, d := range rep.Daily {
				fmt.Printf("  %-12s %8d %10d %10d\n", d.Day, d.Total, d.ContinueCount, d.CancelCount)
			}
		}

		if details {
			fmt.Printf("\n%s\n", yellow("Entries:"))
			entries := make([]*types.DecisionLogEntry, len(rep.Details))
			for i := range rep.Details {
				entries[i] = &rep.Details[i]
			}
			printEntries(entries)
		}
		fmt.Println()
	},
}

var auditActivityCmd = &cobra.Command{
	Use:   "activity <user>",
	Short: "Decision activity for one user",
	Long: `Summarize one user's decisions over a period. Defaults to the last
30 days.

Example:
  dupguard audit activity jchen --from 2025-06-01`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		from, to, err := periodFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		_, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		rep, err := aud.UserActivity(context.Background(), args[0], from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Activity: %s ===", rep.UserID)))
		fmt.Printf("Period:    %s → %s\n", rep.PeriodStart.Format(time.DateOnly), rep.PeriodEnd.Format(time.DateOnly))
		fmt.Printf("Decisions: %d total, %s continued, %s cancelled\n",
			rep.TotalDecisions,
			green(fmt.Sprintf("%d", rep.ContinueCount)),
			red(fmt.Sprintf("%d", rep.CancelCount)))
		if rep.TotalDecisions > 0 {
			fmt.Printf("First:     %s\n", rep.FirstDecision.Format("2006-01-02 15:04:05"))
			fmt.Printf("Last:      %s\n", rep.LastDecision.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Daily:"))
		if len(rep.Daily) == 0 {
			fmt.Printf("  %s\n", gray("No decisions in period"))
		} else {
			fmt.Printf("  %-12s %8s %10s %10s\n", "DAY", "TOTAL", "CONTINUE", "CANCEL")
			for _, d := range rep.Daily {
				fmt.Printf("  %-12s %8d %10d %10d\n", d.Day, d.Total, d.ContinueCount, d.CancelCount)
			}
		}
		fmt.Println()
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decision log entries as CSV",
	Long: `Stream decision log entries as CSV, filtered like 'audit logs'.
Writes to stdout unless --out names a file.

Examples:
  dupguard audit export --out decisions.csv
  dupguard audit export --decision cancel --from 2025-01-01 > cancelled.csv`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := auditFilterFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out, _ := cmd.Flags().GetString("out")

		_, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		w := os.Stdout
		if out != "" {
			f, ferr := os.Create(out)
			if ferr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ferr)
				os.Exit(1)
			}
			defer f.Close()
			w = f
		}

		n, err := aud.ExportCSV(context.Background(), w, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if out != "" {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Exported %d entries to %s\n", green("✓"), n, out)
		}
	},
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete entries past the retention window",
	Long: `Delete decision log entries older than the retention window. This is
the only mutation the log permits.

Examples:
  dupguard audit cleanup                      # configured retention (default 730 days)
  dupguard audit cleanup --retention-days 365`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("retention-days")
		if days < 0 {
			fmt.Fprintf(os.Stderr, "Error: retention-days cannot be negative\n")
			os.Exit(1)
		}

		cfg, store, aud, err := openAudit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		deleted, err := aud.Cleanup(context.Background(), days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		effective := days
		if effective == 0 {
			effective = cfg.Audit.RetentionDays
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted %d entries older than %d days\n", green("✓"), deleted, effective)
	},
}

// openAudit opens the database and the audit store for a one-shot command.
// Callers must Close the returned store.
func openAudit() (config.Config, storage.Storage, *audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, store, audit.New(store, cfg.Audit, cliLogger()), nil
}

// auditFilterFromFlags builds the shared logs/export filter
func auditFilterFromFlags(cmd *cobra.Command) (types.AuditFilter, error) {
	ref, _ := cmd.Flags().GetString("ref")
	user, _ := cmd.Flags().GetString("user")
	decisionStr, _ := cmd.Flags().GetString("decision")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	f := types.AuditFilter{
		ReferenceNumber: ref,
		UserID:          user,
		Decision:        types.Decision(decisionStr),
	}
	if fromStr != "" {
		t, err := time.Parse(time.DateOnly, fromStr)
		if err != nil {
			return f, fmt.Errorf("invalid --from %q (want YYYY-MM-DD)", fromStr)
		}
		f.StartDate = t
	}
	if toStr != "" {
		t, err := time.Parse(time.DateOnly, toStr)
		if err != nil {
			return f, fmt.Errorf("invalid --to %q (want YYYY-MM-DD)", toStr)
		}
		// Include the whole end day.
		f.EndDate = t.Add(24*time.Hour - time.Millisecond)
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// periodFromFlags resolves the report period, defaulting to the last 30 days
func periodFromFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	to := time.Now().UTC()
	if toStr != "" {
		t, err := time.Parse(time.DateOnly, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q (want YYYY-MM-DD)", toStr)
		}
		to = t.Add(24*time.Hour - time.Millisecond)
	}
	from := to.AddDate(0, 0, -30)
	if fromStr != "" {
		t, err := time.Parse(time.DateOnly, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q (want YYYY-MM-DD)", fromStr)
		}
		from = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to precedes --from")
	}
	return from, to, nil
}

// printEntries renders decision log entries as a table, preserving the
// order given. System decisions show without a user.
func printEntries(entries []*types.DecisionLogEntry) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if len(entries) == 0 {
		fmt.Printf("  %s\n", gray("No entries"))
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("  %-6s %-20s %-16s %-12s %10s  %-9s %s\n",
		"ID", "LOGGED", "REFERENCE", "DATE", "AMOUNT", "DECISION", "USER")
	for _, e := range entries {
		// Pad before coloring so the escape codes do not break alignment.
		dec := fmt.Sprintf("%-9s", string(e.Decision))
		if e.Decision == types.DecisionCancel {
			dec = red(dec)
		} else {
			dec = green(dec)
		}
		user := e.UserID
		if e.IsSystemDecision() {
			user = gray("(system)")
		}
		fmt.Printf("  %-6d %-20s %-16s %-12s %10.2f  %s %s\n",
			e.ID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.ReferenceNumber,
			e.TransactionDate.Format(time.DateOnly),
			e.TransactionAmount,
			dec, user)
	}
}

func init() {
	auditLogsCmd.Flags().String("ref", "", "Filter by reference number")
	auditLogsCmd.Flags().String("user", "", "Filter by user id")
	auditLogsCmd.Flags().String("decision", "", "Filter by decision: continue or cancel")
	auditLogsCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	auditLogsCmd.Flags().String("to", "", "End date (YYYY-MM-DD, inclusive)")
	auditLogsCmd.Flags().Int("limit", 50, "Maximum entries to list")
	auditLogsCmd.Flags().Int("offset", 0, "Entries to skip")

	auditReportCmd.Flags().String("from", "", "Period start (YYYY-MM-DD, default 30 days ago)")
	auditReportCmd.Flags().String("to", "", "Period end (YYYY-MM-DD, inclusive, default today)")
	auditReportCmd.Flags().Bool("details", false, "Include every entry in the report")

	auditActivityCmd.Flags().String("from", "", "Period start (YYYY-MM-DD, default 30 days ago)")
	auditActivityCmd.Flags().String("to", "", "Period end (YYYY-MM-DD, inclusive, default today)")

	auditExportCmd.Flags().String("ref", "", "Filter by reference number")
	auditExportCmd.Flags().String("user", "", "Filter by user id")
	auditExportCmd.Flags().String("decision", "", "Filter by decision: continue or cancel")
	auditExportCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	auditExportCmd.Flags().String("to", "", "End date (YYYY-MM-DD, inclusive)")
	auditExportCmd.Flags().String("out", "", "Write CSV to a file instead of stdout")

	auditCleanupCmd.Flags().Int("retention-days", 0, "Override the configured retention window")

	auditCmd.AddCommand(auditLogsCmd)
	auditCmd.AddCommand(auditTrailCmd)
	auditCmd.AddCommand(auditReportCmd)
	auditCmd.AddCommand(auditActivityCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditCleanupCmd)
	rootCmd.AddCommand(auditCmd)
}
