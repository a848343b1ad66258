package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored harvest checkpoint",
	RunE:  runStatus,
}

var statusFormat string

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", FormatText, "Output format (text, json or yaml)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := componentLog("status")

	// No run lock: status is read-only and works next to a running harvest.
	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	status, err := harvest.New(harvest.Deps{Checkpoints: backend.Checkpoints, Log: log}).Status(ctx)
	if err != nil {
		return err
	}
	if statusFormat == FormatText {
		stdoutPrinter().PrintCheckpoint(status.Checkpoint)
		return nil
	}
	return writeValue("", statusFormat, status)
}
