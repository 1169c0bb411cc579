package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/api"
	"github.com/guestledger/dupguard/internal/monitor"
)

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Performance monitoring commands",
	Long: `Inspect the running server's performance monitor: operation
statistics, the pipeline health score, and load tests.

These commands talk to 'dupguard serve' over HTTP; start it first.`,
}

var perfStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show operation statistics and store totals",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base, err := resolveServer(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		var st api.StatusResponse
		if err := apiGet(base+"/v1/performance/status", &st); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Performance Status ==="))

		fmt.Printf("%s\n", yellow("Operations:"))
		if len(st.Operations) == 0 {
			fmt.Printf("  %s\n", gray("No samples yet"))
		} else {
			ops := make([]string, 0, len(st.Operations))
			for op := range st.Operations {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			fmt.Printf("  %-18s %7s %6s %10s %10s %10s %7s\n",
				"OPERATION", "COUNT", "FAIL", "AVG", "P95", "MAX", "RATE")
			for _, op := range ops {
				s := st.Operations[op]
				fmt.Printf("  %-18s %7d %6d %10s %10s %10s %6.1f%%\n",
					op, s.Count, s.Failures,
					formatDur(s.AvgDuration), formatDur(s.P95Duration), formatDur(s.MaxDuration),
					s.SuccessRate*100)
			}
		}
		fmt.Printf("  %s\n\n", gray(fmt.Sprintf("%d samples in a window of %d", st.SampleCount, st.WindowSize)))

		fmt.Printf("%s\n", yellow("Cache:"))
		fmt.Printf("  Hits:      %d\n", st.Cache.Hits)
		fmt.Printf("  Misses:    %d\n", st.Cache.Misses)
		fmt.Printf("  Hit rate:  %.1f%%\n", st.Cache.HitRate*100)
		fmt.Printf("  Entries:   %d\n\n", st.Cache.Size)

		fmt.Printf("%s\n", yellow("Audit:"))
		fmt.Printf("  Queued writes: %d\n", st.AuditQueueDepth)
		if st.Totals != nil {
			fmt.Printf("  Log entries:   %d", st.Totals.DecisionEntries)
			if len(st.Totals.ByDecision) > 0 {
				parts := make([]string, 0, len(st.Totals.ByDecision))
				for _, d := range []string{"continue", "cancel"} {
					if n, ok := st.Totals.ByDecision[d]; ok {
						parts = append(parts, fmt.Sprintf("%d %s", n, d))
					}
				}
				fmt.Printf(" (%s)", strings.Join(parts, ", "))
			}
			fmt.Println()
			fmt.Printf("  Transactions:  %d\n", st.Totals.Transactions)
			if !st.Totals.OldestEntry.IsZero() {
				fmt.Printf("  Span:          %s → %s\n",
					st.Totals.OldestEntry.Format(time.DateOnly),
					st.Totals.NewestEntry.Format(time.DateOnly))
			}
		}
		fmt.Println()
	},
}

var perfHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the pipeline health score",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base, err := resolveServer(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		var rep monitor.HealthReport
		if err := apiGet(base+"/v1/performance/health", &rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		statusColor := color.New(color.FgGreen).SprintFunc()
		statusIcon := "●"
		switch rep.Status {
		case monitor.BandDegraded:
			statusColor = yellow
		case monitor.BandWarning:
			statusColor = yellow
			statusIcon = "⚠"
		case monitor.BandCritical:
			statusColor = color.New(color.FgRed, color.Bold).SprintFunc()
			statusIcon = "✗"
		}

		fmt.Printf("\n%s Health: %s (%.0f/100)\n\n",
			statusColor(statusIcon), statusColor(string(rep.Status)), rep.Score)
		fmt.Printf("  Query performance: %5.1f%% under budget\n", rep.QueryPerfScore*100)
		fmt.Printf("  Error rate:        %5.1f%%\n", rep.ErrorRate*100)
		fmt.Printf("  Cache efficiency:  %5.1f%% (hit rate %.1f%%)\n", rep.CacheEfficiency*100, rep.CacheHitRate*100)
		fmt.Printf("  Audit success:     %5.1f%% (%d queued)\n", rep.AuditSuccessRate*100, rep.AuditQueueDepth)
		fmt.Printf("  Samples:           %d\n", rep.SampleCount)

		if len(rep.Recommendations) > 0 {
			fmt.Printf("\n%s\n", yellow("Recommendations:"))
			for _, r := range rep.Recommendations {
				fmt.Printf("  • %s\n", r)
			}
		}
		fmt.Println()
	},
}

var perfTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Run a load test against the running server",
	Long: `Issue synthetic duplicate checks through the server's detector and
report latency and cache behavior. Synthetic keys never touch real
transactions.

Examples:
  dupguard perf test
  dupguard perf test --count 500 --concurrency 16
  dupguard perf test --uncached --rate 50`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		uncached, _ := cmd.Flags().GetBool("uncached")
		rate, _ := cmd.Flags().GetFloat64("rate")

		base, err := resolveServer(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		req := api.LoadTestRequest{
			TestCount:   count,
			UseCache:    !uncached,
			Concurrency: concurrency,
			RatePerSec:  rate,
		}
		var rep monitor.LoadTestReport
		if err := apiPost(base+"/v1/performance/test", req, &rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Load Test ==="))
		fmt.Printf("Checks:   %d, concurrency %d\n", rep.Count, rep.Concurrency)
		fmt.Printf("Elapsed:  %s (%.0f checks/sec)\n", formatDur(rep.Elapsed), rep.PerSecond)
		fmt.Printf("Latency:  avg %s, p95 %s, max %s\n",
			formatDur(rep.AvgDuration), formatDur(rep.P95Duration), formatDur(rep.MaxDuration))
		if rep.UseCache {
			fmt.Printf("Cache:    %d hits, %d misses\n", rep.CacheHits, rep.CacheMisses)
		}
		fmt.Println()
		if rep.Errors == 0 {
			fmt.Printf("%s All checks succeeded\n", green("✓"))
		} else {
			fmt.Printf("%s %d of %d checks failed\n", red("✗"), rep.Errors, rep.Count)
		}
	},
}

// resolveServer returns the base URL of the serve process, from --server
// or the configured listen address.
func resolveServer(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		return strings.TrimRight(s, "/"), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr, nil
	}
	return "http://" + addr, nil
}

// apiGet fetches url and decodes the JSON response into dest
func apiGet(url string, dest any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("reaching server: %w (is 'dupguard serve' running?)", err)
	}
	defer resp.Body.Close()
	return decodeAPI(resp, dest)
}

// apiPost sends body as JSON to url and decodes the response into dest
func apiPost(url string, body, dest any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", buf)
	if err != nil {
		return fmt.Errorf("reaching server: %w (is 'dupguard serve' running?)", err)
	}
	defer resp.Body.Close()
	return decodeAPI(resp, dest)
}

func decodeAPI(resp *http.Response, dest any) error {
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// formatDur trims sub-microsecond noise from printed durations
func formatDur(d time.Duration) string {
	return d.Round(10 * time.Microsecond).String()
}

func init() {
	perfCmd.PersistentFlags().String("server", "", "Server base URL (default from the configured listen address)")

	perfTestCmd.Flags().Int("count", 100, "Number of synthetic checks")
	perfTestCmd.Flags().Int("concurrency", 8, "Concurrent checks in flight")
	perfTestCmd.Flags().Bool("uncached", false, "Bypass the query cache")
	perfTestCmd.Flags().Float64("rate", 0, "Cap checks per second (0 = unlimited)")

	perfCmd.AddCommand(perfStatusCmd)
	perfCmd.AddCommand(perfHealthCmd)
	perfCmd.AddCommand(perfTestCmd)
	rootCmd.AddCommand(perfCmd)
}
