package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/audit"
	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/decision"
	"github.com/guestledger/dupguard/internal/detect"
	"github.com/guestledger/dupguard/internal/filestore"
	"github.com/guestledger/dupguard/internal/types"
)

var (
	checkFileURL string
	checkSource  string
	checkUser    string
	checkSession string
	checkDecide  string
)

var checkCmd = &cobra.Command{
	Use:   "check <reference> <date> <amount>",
	Short: "Check a transaction for duplicates and record the decision",
	Long: `Check an incoming transaction against history before importing it.

The match key is reference number, transaction date, and amount (within
a small tolerance). When candidates are found the command lists them and
waits for a decision:

  continue   import anyway (legitimate re-booking)
  cancel     abort the import and delete the uploaded file

With no answer inside the timeout the import is cancelled and the audit
entry is attributed to the system. Every resolved warning lands in the
decision log exactly once. If the transaction store is unreachable the
check fails open: the import proceeds unwarned.

Examples:
  dupguard check INV-2041 2025-06-01 121.00
  dupguard check INV-2041 2025-06-01 121.00 --file-url gs://uploads/inv-2041.pdf --user jchen
  dupguard check INV-2041 2025-06-01 121.00 --decide cancel --user jchen`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCheck(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkFileURL, "file-url", "", "URL of the uploaded file backing this transaction")
	checkCmd.Flags().StringVar(&checkSource, "source", "", "Vendor feed the transaction came from")
	checkCmd.Flags().StringVar(&checkUser, "user", "", "User recorded in the audit log (default $USER)")
	checkCmd.Flags().StringVar(&checkSession, "session", "", "Session id recorded in the audit log")
	checkCmd.Flags().StringVar(&checkDecide, "decide", "", "Apply a decision without prompting: continue or cancel")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(args []string) error {
	query, err := parseQueryArgs(args)
	if err != nil {
		return err
	}
	var preset types.Decision
	if checkDecide != "" {
		preset = types.Decision(strings.ToLower(checkDecide))
		if !preset.IsValid() {
			return fmt.Errorf("invalid --decide value %q (want continue or cancel)", checkDecide)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := cliLogger()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// One-shot process: no background sweep or drain, no monitor.
	qc := cache.New(&cache.Config{TTL: cfg.Cache.TTL, SweepInterval: cfg.Cache.SweepInterval}, log)
	det := detect.New(store, qc, cfg.Detector, log)
	aud := audit.New(store, cfg.Audit, log)

	files, closeFiles, err := buildFileStore(ctx, cfg.Files.RequestTimeout, checkFileURL, log)
	if err != nil {
		return err
	}
	defer closeFiles()
	cleaner := filestore.NewCleaner(files, store, cfg.Cleanup, log)

	proc := decision.New(det, cleaner, aud, cfg.Decision, log)
	inst, err := proc.Run(ctx, decision.Input{
		Query:      query,
		NewFileURL: checkFileURL,
		SessionID:  checkSession,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	if inst.State() == decision.StateDone {
		fmt.Printf("%s No duplicates found for %s on %s (%.2f)\n",
			green("✓"), query.ReferenceNumber, query.TransactionDate.Format(time.DateOnly), query.Amount)
		return nil
	}

	printCandidates(inst.Candidates, query)

	user := checkUser
	if user == "" {
		user = os.Getenv("USER")
	}

	if preset != "" {
		if rerr := inst.Resolve(preset, user); rerr != nil {
			return rerr
		}
	} else {
		fmt.Printf("Type %s to import anyway or %s to abort; no answer within %s cancels.\n",
			cyan("continue"), cyan("cancel"), cfg.Decision.Timeout)

		rl, rlErr := readline.NewEx(&readline.Config{
			Prompt:            cyan("decision> "),
			InterruptPrompt:   "^C",
			EOFPrompt:         "cancel",
			HistorySearchFold: true,
		})
		if rlErr != nil {
			return fmt.Errorf("opening terminal: %w", rlErr)
		}
		defer rl.Close()
		go promptDecision(rl, inst, user)
	}

	decided, err := inst.Await(ctx)
	if err != nil {
		return fmt.Errorf("recording decision: %w", err)
	}
	printOutcome(decided, inst)

	// A rejected synchronous write parks the entry on the in-memory
	// deferred queue; this process is about to exit, so push once more.
	if aud.QueueDepth() > 0 {
		if _, derr := aud.Drain(ctx); derr != nil {
			fmt.Printf("%s %d audit entries could not be persisted before exit\n",
				yellow("⚠"), aud.QueueDepth())
		}
	}
	return nil
}

// parseQueryArgs builds the duplicate query from the positional arguments
func parseQueryArgs(args []string) (types.DuplicateQuery, error) {
	date, err := time.Parse(time.DateOnly, args[1])
	if err != nil {
		return types.DuplicateQuery{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", args[1])
	}
	amount, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return types.DuplicateQuery{}, fmt.Errorf("invalid amount %q", args[2])
	}
	q := types.DuplicateQuery{
		ReferenceNumber: strings.TrimSpace(args[0]),
		TransactionDate: date,
		Amount:          amount,
		Source:          checkSource,
	}
	if err := q.Validate(); err != nil {
		return types.DuplicateQuery{}, err
	}
	return q, nil
}

// buildFileStore picks the blob store backing cleanup from the upload URL.
// GCS URLs get the real client; anything else, including no file at all,
// gets the in-memory store, where deletion is a no-op.
func buildFileStore(ctx context.Context, timeout time.Duration, fileURL string, log zerolog.Logger) (filestore.FileStore, func(), error) {
	if strings.HasPrefix(fileURL, "gs://") || strings.Contains(fileURL, "storage.googleapis.com") {
		gcs, err := filestore.NewGCS(ctx, timeout, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting file store: %w", err)
		}
		return gcs, func() { _ = gcs.Close() }, nil
	}
	return filestore.NewMemory(), func() {}, nil
}

// printCandidates lists the matching records for the operator
func printCandidates(set types.CandidateSet, q types.DuplicateQuery) {
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	noun := "possible duplicate"
	if len(set) != 1 {
		noun = "possible duplicates"
	}
	fmt.Printf("\n%s %d %s for %s on %s (%.2f):\n\n",
		yellow("⚠"), len(set), noun, q.ReferenceNumber,
		q.TransactionDate.Format(time.DateOnly), q.Amount)

	fmt.Printf("  %-8s %-12s %12s  %-10s %s\n", "ID", "DATE", "AMOUNT", "SOURCE", "FILE")
	for _, rec := range set {
		source := rec.Source
		if source == "" {
			source = "-"
		}
		file := rec.FileURL
		if file == "" {
			file = gray("-")
		}
		fmt.Printf("  %-8d %-12s %12.2f  %-10s %s\n",
			rec.ID, rec.TransactionDate.Format(time.DateOnly), rec.Amount, source, file)
	}
	fmt.Println()
}

// promptDecision feeds the operator's answer to the instance while Await
// holds the timeout. Interrupt and EOF count as cancel; if the timeout
// resolved the instance first, the Resolve here loses quietly.
func promptDecision(rl *readline.Instance, inst *decision.Instance, user string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	for {
		line, err := rl.Readline()
		if err != nil {
			// readline.ErrInterrupt is Ctrl+C; io.EOF is Ctrl+D or a
			// closed terminal. Either way nobody is going to answer.
			_ = inst.Resolve(types.DecisionCancel, user)
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "continue", "c", "yes", "y":
			_ = inst.Resolve(types.DecisionContinue, user)
			return
		case "cancel", "x", "no", "n":
			_ = inst.Resolve(types.DecisionCancel, user)
			return
		case "":
		default:
			fmt.Printf("%s enter 'continue' or 'cancel'\n", yellow("?"))
		}
	}
}

// printOutcome reports the applied decision
func printOutcome(d types.Decision, inst *decision.Instance) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Println()
	switch d {
	case types.DecisionContinue:
		fmt.Printf("%s Continuing with import\n", green("✓"))
	case types.DecisionCancel:
		fmt.Printf("%s Import cancelled\n", red("✗"))
	}
	fmt.Printf("  %s\n", gray("operation "+inst.OperationID))
}
