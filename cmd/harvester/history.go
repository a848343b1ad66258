package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent harvest runs",
	Long:  "List the most recent harvest runs with their counters. Requires the postgres store backend.",
	RunE:  runHistory,
}

var (
	historyLimit  int
	historyFormat string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", FormatJSON, "Output format (json or yaml)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}
	ctx := cmd.Context()

	backend, err := store.Open(ctx, cfg.Store, componentLog("history"))
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	lister, ok := backend.Runs.(store.RunLister)
	if !ok {
		return fmt.Errorf("the %s store backend keeps no run history", cfg.Store.Backend)
	}
	runs, err := lister.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	return writeValue("", historyFormat, runs)
}
