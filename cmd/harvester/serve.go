package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/pipeline"
	"github.com/jonathan/compass-harvester/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the harvest control API",
	Long: "Open the analytics page and serve the HTTP control API: start, resume, stop and skip harvests, " +
		"answer row selections and follow progress as server-sent events.",
	RunE: runServe,
}

var (
	serveAddr   string
	serveResume bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveResume, "resume", false, "Resume a pending harvest on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	log := componentLog("serve")

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

	hub := server.NewHub()
	broker := server.NewBroker(hub)
	machine := session.Machine(backend, pipeline.MachineOptions{
		Selector:   broker,
		OnProgress: pipeline.Tee(pipeline.LogProgress(log), hub.Progress),
	})

	srvCfg := cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srv, err := server.New(srvCfg, server.Deps{
		Harvester: machine,
		Plan: func(ctx context.Context) (*inventory.Result, error) {
			return pipeline.ScanLibrary(ctx, backend.Handles, "", componentLog("scan"))
		},
		Records: session.Records,
		Broker:  broker,
		Hub:     hub,
		Log:     componentLog("server"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if serveResume {
		g.Go(func() error {
			summary, err := machine.Resume(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("resume on startup failed")
				return nil
			}
			if summary != nil && summary.RunID != "" {
				log.WithField("run_id", summary.RunID).WithField("processed", summary.Processed).Info("resumed harvest finished")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
