package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/config"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/server"
	"github.com/me/framestep/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var flags *config.SimConfig
	var addr, statsviewAddr string
	var withStatsview bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a paced simulation behind the telemetry API",
		Long: `Runs the frame loop at --fps, records every pass, and serves live statistics,
the committed generation and recorded runs under /api/v1. With --statsview the
Go runtime stats page is served on --statsview-addr as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cfg.Sim
			mergeSimFlags(cmd, &sc, flags)
			srvCfg := cfg.Server
			if cmd.Flags().Changed("addr") {
				srvCfg.Addr = addr
			}
			if cmd.Flags().Changed("statsview") {
				srvCfg.Statsview = withStatsview
			}
			if cmd.Flags().Changed("statsview-addr") {
				srvCfg.StatsviewAddr = statsviewAddr
			}
			if err := srvCfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), sc, srvCfg)
		},
	}

	flags = bindSimFlags(cmd)
	def := config.DefaultServerConfig()
	cmd.Flags().StringVar(&addr, "addr", def.Addr, "Listen address")
	cmd.Flags().BoolVar(&withStatsview, "statsview", false, "Serve the Go runtime stats page")
	cmd.Flags().StringVar(&statsviewAddr, "statsview-addr", def.StatsviewAddr, "Listen address of the stats page")

	return cmd
}

func serve(ctx context.Context, sc config.SimConfig, srvCfg config.ServerConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := newSimulation(sc)
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := telemetry.Start(ctx, st, sim.run, telemetry.DefaultFlushEvery, logger)
	if err != nil {
		return err
	}
	orch, err := sim.orchestrator(sc, scheduler.WithObserver(rec))
	if err != nil {
		return err
	}
	loop := scheduler.NewLoop(orch, nil, scheduler.Config{TargetFPS: sc.TargetFPS}, logger)

	srv := server.New(srvCfg, logger,
		server.WithStore(st),
		server.WithLive(server.LifeLoop(loop)),
		server.WithRunID(rec.RunID()),
	)
	httpServer := &http.Server{
		Addr:    srvCfg.Addr,
		Handler: srv.Handler(),
	}

	if srvCfg.Statsview {
		viewer.SetConfiguration(viewer.WithAddr(srvCfg.StatsviewAddr))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
		logger.Info("statsview available", "url", "http://"+srvCfg.StatsviewAddr+"/debug/statsview")
	}

	runCtx, cancel := withRunLimit(ctx, sc)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Start(runCtx) }()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srvCfg.Addr, "run_id", rec.RunID())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var failure error
	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		failure = fmt.Errorf("server failed: %w", err)
		cancel()
	}
	logger.Info("shutting down")

	// Stop the frame loop before the HTTP server.
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("frame loop stopped", "error", err)
	}

	shutdownCtx, cancelShutdown := shutdownContext()
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := rec.Close(shutdownCtx, loop.Stats().Frames); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	logger.Info("server stopped")
	return failure
}
