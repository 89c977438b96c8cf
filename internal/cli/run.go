package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/config"
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/script"
	"github.com/me/framestep/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var noRecord, printFinal bool
	var flags *config.SimConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation headless and record its pass timings",
		Long: `Runs the frame loop without a display. With --frames the frames run back to
back; otherwise they are paced at --fps until --run-for elapses or the process
is interrupted. Pass timings are recorded to the telemetry database unless
--no-record is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cfg.Sim
			mergeSimFlags(cmd, &sc, flags)
			return runHeadless(cmd.Context(), cmd.OutOrStdout(), sc, !noRecord, printFinal)
		},
	}

	flags = bindSimFlags(cmd)
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not record the run")
	cmd.Flags().BoolVar(&printFinal, "print", false, "Print the final committed generation")

	return cmd
}

func runHeadless(ctx context.Context, out io.Writer, sc config.SimConfig, record, printFinal bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := newSimulation(sc)
	if err != nil {
		return err
	}

	var rec *telemetry.Recorder
	var extra []scheduler.Option
	if record {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		rec, err = telemetry.Start(ctx, st, sim.run, telemetry.DefaultFlushEvery, logger)
		if err != nil {
			return err
		}
		extra = append(extra, scheduler.WithObserver(rec))
	}

	orch, err := sim.orchestrator(sc, extra...)
	if err != nil {
		return err
	}
	loop := scheduler.NewLoop(orch, nil, scheduler.Config{TargetFPS: sc.TargetFPS}, logger)

	runCtx, cancel := withRunLimit(ctx, sc)
	defer cancel()
	if sc.Frames > 0 {
		err = loop.RunFrames(runCtx, sc.Frames)
	} else {
		err = loop.Start(runCtx)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return err
	}

	stats := loop.Stats()
	if rec != nil {
		closeCtx, cancel := shutdownContext()
		defer cancel()
		if err := rec.Close(closeCtx, stats.Frames); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}

	printSummary(out, sim, stats, loop)
	if printFinal {
		fmt.Fprintln(out)
		fmt.Fprint(out, life.Render(loop.Committed()))
	}
	return nil
}

func printSummary(out io.Writer, sim *simulation, stats scheduler.Stats, loop *scheduler.FrameLoop[life.Cell]) {
	runID := sim.run.ID
	if runID == "" {
		runID = "(not recorded)"
	}
	fmt.Fprintf(out, "Run:          %s\n", runID)
	fmt.Fprintf(out, "Workload:     %s %s %dx%d (seed %d)\n",
		sim.run.Workload, sim.run.Rule, sim.run.Width, sim.run.Height, sim.run.Seed)
	fmt.Fprintf(out, "Frames:       %s (%s overruns)\n", humanize.Comma(stats.Frames), humanize.Comma(stats.Overruns))
	fmt.Fprintf(out, "Generations:  %s\n", humanize.Comma(stats.Generation))
	fmt.Fprintf(out, "Population:   %s\n", humanize.Comma(int64(life.Population(loop.Committed()))))
	if stats.Generation > 0 {
		fmt.Fprintf(out, "Last pass:    %s\n", perf.FormatDuration(stats.LastPassDuration))
		fmt.Fprintf(out, "Average pass: %s (%s updates/s)\n",
			perf.FormatDuration(stats.AveragePassDuration), humanize.FormatFloat("#,###.#", stats.UpdatesPerSecond))
	}
	if rule, ok := sim.workload.(*script.Rule); ok && rule.Errors() > 0 {
		fmt.Fprintf(out, "Script errors: %s units left unchanged\n", humanize.Comma(int64(rule.Errors())))
	}
}
