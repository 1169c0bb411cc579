package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/storage"
)

var initWriteConfig bool

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create the database and an optional starter config",
	Long: `Create the SQLite database with the transaction and decision log
schema. The database lands in the working directory as dupguard.db, or
<name>.db when a name is given; an existing file is never overwritten.

Commands run from the same directory find dupguard.db on their own;
other names need --db.

Examples:
  dupguard init
  dupguard init hotel-ledger
  dupguard init --write-config`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		path := dbPath
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
				os.Exit(1)
			}
			path, err = storage.InitDatabase(cwd, name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		// Opening the store applies the schema.
		store, err := storage.NewStorage(context.Background(), &storage.Config{Path: path})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		_ = store.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized duplicate guard\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(path))

		if initWriteConfig {
			cfgOut := cfgPath
			if cfgOut == "" {
				cfgOut = "dupguard.yaml"
			}
			if err := config.SaveDefault(cfgOut); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("  Config:   %s\n", cyan(cfgOut))
		}

		fmt.Println()
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  dupguard import transactions.csv     %s\n", gray("# load history"))
		fmt.Printf("  dupguard check REF 2025-06-01 99.00  %s\n", gray("# try a duplicate check"))
		fmt.Printf("  dupguard serve                       %s\n", gray("# start the API"))
		fmt.Println()
	},
}

func init() {
	initCmd.Flags().BoolVar(&initWriteConfig, "write-config", false, "Write a commented starter config file")
	rootCmd.AddCommand(initCmd)
}
