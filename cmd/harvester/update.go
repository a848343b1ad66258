package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/pipeline"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/tui"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Scan the library and harvest new videos for every product",
	Long: "Rebuild the work queue from the granted directory, then search each product on the analytics page, " +
		"confirm the matching rows and download videos that are not in the library yet. " +
		"Progress is checkpointed after every product; an interrupted run continues with 'resume'.",
	RunE: runUpdate,
}

var (
	updateRoot string
	updateAuto bool
)

func init() {
	updateCmd.Flags().StringVar(&updateRoot, "root", "", "Grant this directory before scanning")
	updateCmd.Flags().BoolVar(&updateAuto, "auto", false, "Accept the preselected row without asking")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(_ *cobra.Command, _ []string) error {
	return withMachine("update", updateAuto, func(ctx context.Context, backend *store.Backend, m *harvest.Machine) error {
		plan, err := pipeline.ScanLibrary(ctx, backend.Handles, updateRoot, componentLog("scan"))
		if err != nil {
			return err
		}
		verbosePrinter().PrintQueue(plan)
		summary, err := m.Start(ctx, plan.Queue, plan.GlobalIDs)
		stdoutPrinter().PrintSummary(summary)
		return err
	})
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted harvest",
	Long:  "Continue the stored harvest at the product it stopped on. Does nothing when no harvest is pending.",
	RunE:  runResume,
}

var resumeAuto bool

func init() {
	resumeCmd.Flags().BoolVar(&resumeAuto, "auto", false, "Accept the preselected row without asking")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(_ *cobra.Command, _ []string) error {
	return withMachine("resume", resumeAuto, func(ctx context.Context, _ *store.Backend, m *harvest.Machine) error {
		summary, err := m.Resume(ctx)
		stdoutPrinter().PrintSummary(summary)
		return err
	})
}

// withMachine opens the store and a browser session and runs fn with a
// machine that asks the operator in the terminal, or accepts the default
// selection when auto is set.
func withMachine(name string, auto bool, fn func(ctx context.Context, backend *store.Backend, m *harvest.Machine) error) error {
	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	log := componentLog(name)
	backend, err := pipeline.OpenStore(ctx, cfg, forceUnlock, log)
	if err != nil {
		return lockHint(err)
	}
	defer backend.Close() //nolint:errcheck

	session, err := pipeline.OpenSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	var selector harvest.Selector = harvest.AcceptPreselected
	if !auto {
		// ctrl+c in the dialog aborts the run with its checkpoint kept.
		selector = tui.NewSelector(cancel)
	}
	m := session.Machine(backend, pipeline.MachineOptions{
		Selector:   selector,
		OnProgress: pipeline.LogProgress(log),
	})
	err = fn(ctx, backend, m)
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, tui.ErrAborted)) {
		_, _ = fmt.Fprintln(os.Stderr, "Harvest interrupted, checkpoint kept; run 'harvester resume' to continue")
		return nil
	}
	return err
}
