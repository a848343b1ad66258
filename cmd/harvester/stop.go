package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/pipeline"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Discard the pending harvest",
	Long: "Mark the stored harvest as stopped and delete its checkpoint so 'resume' has nothing to continue. " +
		"A harvest running in another process is stopped through its control API instead.",
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := componentLog("stop")

	backend, err := pipeline.OpenStore(ctx, cfg, forceUnlock, log)
	if err != nil {
		return lockHint(err)
	}
	defer backend.Close() //nolint:errcheck

	m := harvest.New(harvest.Deps{
		Checkpoints: backend.Checkpoints,
		Handles:     backend.Handles,
		History:     backend.Runs,
		Log:         log,
	})
	if err := m.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop harvest: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, "Harvest stopped")
	return nil
}
