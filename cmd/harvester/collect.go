package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/pipeline"
	"github.com/jonathan/compass-harvester/internal/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Page through the analytics listing and export every record",
	Long: "Open the analytics page with response interception enabled, page through the listing " +
		"until the last page and write the collected records, optionally filtered, as JSON.",
	RunE: runCollect,
}

var (
	collectOutput string
	collectFilter collect.Filter
)

func init() {
	collectCmd.Flags().StringVarP(&collectOutput, "out", "o", "", "Output file (default: collect.output from config, else stdout)")
	addFilterFlags(collectCmd, &collectFilter)
	rootCmd.AddCommand(collectCmd)
}

func addFilterFlags(cmd *cobra.Command, f *collect.Filter) {
	cmd.Flags().StringVar(&f.Title, "title", "", "Keep records whose title contains this text")
	cmd.Flags().StringVar(&f.Shop, "shop", "", "Keep records whose shop contains this text")
	cmd.Flags().StringVar(&f.Days, "days", "", `Days online: "N" for at most N, "A-B" for a range`)
}

func runCollect(_ *cobra.Command, _ []string) error {
	matcher, err := collectFilter.Compile()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	log := componentLog("collect")
	session, err := pipeline.OpenSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	res, err := session.Collector().Run(ctx, func(page, collected int) {
		_, _ = fmt.Fprintf(os.Stderr, "page %d: %d records\n", page, collected)
	})
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	items := matcher.Apply(session.Records.Items())
	verbosePrinter().PrintCollection(res, items, func(rec types.ListingRecord) string { return listing.Title(rec) })
	log.WithField("pages", res.Pages).WithField("collected", res.Collected).WithField("kept", len(items)).Info("collection finished")

	out := collectOutput
	if out == "" {
		out = cfg.Collect.Output
	}
	return writeValue(out, FormatJSON, map[string]any{
		"pages": res.Pages,
		"total": res.Collected,
		"items": items,
	})
}
