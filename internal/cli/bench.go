package cli

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/internal/scheduler"
)

// benchResult is the measured cost of one grid size.
type benchResult struct {
	Size          int
	Cells         int
	Average       time.Duration
	FramesPerPass int
	UpdatesPerSec float64
}

func newBenchCmd() *cobra.Command {
	var sizes []int
	var passes int
	var density float64
	var seed uint64

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the full-pass cost of the Life workload per grid size",
		Long: `Runs unbounded passes over square random grids and reports the average pass
duration, the generations per second it allows, and how many frames at the
configured frame rate one generation spans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passes < 1 {
				return fmt.Errorf("--passes must be at least 1, got %d", passes)
			}
			interval := scheduler.Config{TargetFPS: cfg.Sim.TargetFPS}.FrameInterval()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "%-10s  %12s  %12s  %12s  %s\n", "SIZE", "CELLS", "AVG PASS", "UPDATES/S", "FRAMES/PASS")
			for _, n := range sizes {
				res, err := benchSize(n, passes, density, seed, interval)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-10s  %12s  %12s  %12s  %d\n",
					fmt.Sprintf("%dx%d", n, n),
					humanize.Comma(int64(res.Cells)),
					perf.FormatDuration(res.Average),
					humanize.FormatFloat("#,###.", res.UpdatesPerSec),
					res.FramesPerPass,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{64, 128, 256}, "Square grid sizes to measure")
	cmd.Flags().IntVar(&passes, "passes", 5, "Passes averaged per size")
	cmd.Flags().Float64Var(&density, "density", 0.2, "Initial live-cell density")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")

	return cmd
}

func benchSize(n, passes int, density float64, seed uint64, interval time.Duration) (benchResult, error) {
	if n < 1 {
		return benchResult{}, fmt.Errorf("grid size must be at least 1, got %d", n)
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	world := life.NewWorld(life.Random(n, n, density, rng))
	orch, err := scheduler.New[life.Cell](world,
		scheduler.WithWindowSize(passes),
		scheduler.WithSeed(seed),
		scheduler.WithLogger(logger),
	)
	if err != nil {
		return benchResult{}, err
	}
	for i := 0; i < passes; i++ {
		orch.AdvanceBounded(clock.Unbounded())
	}

	avg, _ := orch.AveragePassDuration()
	res := benchResult{Size: n, Cells: n * n, Average: avg, FramesPerPass: 1}
	res.UpdatesPerSec, _ = perf.PerSecond(avg)
	if interval > 0 && avg > interval {
		res.FramesPerPass = int((avg + interval - 1) / interval)
	}
	logger.Debug("bench size measured", "size", n, "average_pass", avg, "passes", orch.Generation())
	return res, nil
}
