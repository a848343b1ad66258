package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/pipeline"
	"github.com/jonathan/compass-harvester/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the work queue from the media library",
	Long:  "Walk the granted media directory and print the work queue an update run would process.",
	RunE:  runScan,
}

var (
	scanRoot   string
	scanFormat string
	scanOutput string
)

func init() {
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "Grant this directory before scanning")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", FormatJSON, "Output format (json or yaml)")
	scanCmd.Flags().StringVarP(&scanOutput, "out", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != FormatJSON && scanFormat != FormatYAML {
		return errUnsupportedFormat(scanFormat)
	}
	ctx := cmd.Context()
	log := componentLog("scan")

	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	res, err := pipeline.ScanLibrary(ctx, backend.Handles, scanRoot, log)
	if err != nil {
		return err
	}
	return writeValue(scanOutput, scanFormat, res)
}
