package main

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/logger"
	"github.com/guestledger/dupguard/internal/storage"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

var (
	cfgPath  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "dupguard",
	Short: "Duplicate transaction detection and audit pipeline",
	Long: `dupguard guards a transaction ledger against duplicate imports.

Every incoming transaction is checked against history on reference
number, date, and amount. Matches go to a human decision, every decision
lands in an append-only audit log, and cancelled uploads have their
files cleaned up.

Common workflows:
  dupguard init                      # create the database
  dupguard serve                     # run the audit/performance HTTP API
  dupguard check REF-1 2025-06-01 121.00   # interactive duplicate check
  dupguard import transactions.csv   # bulk-load historical transactions
  dupguard audit logs                # query the decision log
  dupguard perf health               # pipeline health score`,
	SilenceUsage: true,
}

// loadConfig merges defaults, the optional config file, DUPGUARD_*
// environment variables, and the persistent flags. Flags win.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadWithEnv(cfgPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Server.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// openStore opens the configured database. When nothing overrode the
// default path, the database is discovered in the working directory, so
// a missing 'dupguard init' fails with guidance instead of silently
// creating an empty ledger.
func openStore(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	path := cfg.Server.DBPath
	if path == config.Default().Server.DBPath {
		discovered, err := storage.DiscoverDatabase()
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return storage.NewStorage(ctx, &storage.Config{Path: path})
}

// cliLogger returns a console logger for interactive commands. The
// terminal belongs to the command's own output, so pipeline logs stay at
// warn unless --log-level asks for more.
func cliLogger() zerolog.Logger {
	lvl := zerolog.WarnLevel
	if logLevel != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(logLevel)); err == nil && parsed != zerolog.NoLevel {
			lvl = parsed
		}
	}
	return logger.New().Level(lvl)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default dupguard.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
