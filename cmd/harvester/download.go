package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/pipeline"
	"github.com/jonathan/compass-harvester/internal/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the videos of hand-picked listing records",
	Long: "Collect the current listing, then download the videos of the records at --index " +
		"(positions in the collected list, as printed by 'collect') into today's folder of the granted directory. " +
		"Videos already anywhere in the library are skipped.",
	RunE: runDownload,
}

var (
	downloadIndexes  string
	downloadCategory string
	downloadRoot     string
	downloadCollect  bool
	downloadFilter   collect.Filter
)

func init() {
	downloadCmd.Flags().StringVar(&downloadIndexes, "index", "", "Comma separated record indexes, e.g. 0,3,7")
	downloadCmd.Flags().StringVar(&downloadCategory, "category", "", "Category recorded in the file names (default: legacy names)")
	downloadCmd.Flags().StringVar(&downloadRoot, "root", "", "Grant this directory before downloading")
	downloadCmd.Flags().BoolVar(&downloadCollect, "collect", true, "Page through the whole listing first; otherwise use the page currently shown")
	addFilterFlags(downloadCmd, &downloadFilter)
	_ = downloadCmd.MarkFlagRequired("index")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(_ *cobra.Command, _ []string) error {
	indexes, err := parseIndexes(downloadIndexes)
	if err != nil {
		return err
	}
	matcher, err := downloadFilter.Compile()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	log := componentLog("download")

	backend, err := pipeline.OpenStore(ctx, cfg, forceUnlock, log)
	if err != nil {
		return lockHint(err)
	}
	defer backend.Close() //nolint:errcheck

	lib, err := pipeline.OpenLibrary(ctx, backend.Handles, downloadRoot, log)
	if err != nil {
		return err
	}

	session, err := pipeline.OpenSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	recs := session.Records.CurrentView()
	if downloadCollect {
		if _, err := session.Collector().Run(ctx, nil); err != nil {
			return fmt.Errorf("collection failed: %w", err)
		}
		recs = session.Records.Items()
	}

	items, err := pickRecords(matcher.Apply(recs), indexes)
	if err != nil {
		return err
	}

	batch := &harvest.Batch{
		Library: lib,
		Media:   pipeline.Downloader(cfg.Download),
		Pause:   cfg.Timing.DownloadPause,
		Log:     log,
	}
	res, err := batch.Run(ctx, downloadCategory, items)
	stdoutPrinter().PrintBatch(res)
	return err
}

// pickRecords returns the records whose source index is listed, in the
// order given. Every index must be present in recs.
func pickRecords(recs []collect.Indexed, indexes []int) ([]harvest.BatchItem, error) {
	byIndex := make(map[int]types.ListingRecord, len(recs))
	for _, r := range recs {
		byIndex[r.Index] = r.Record
	}
	items := make([]harvest.BatchItem, 0, len(indexes))
	for _, i := range indexes {
		rec, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("no record at index %d", i)
		}
		items = append(items, harvest.BatchItem{Record: rec})
	}
	return items, nil
}
