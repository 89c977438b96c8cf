package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/config"
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/script"
	"github.com/me/framestep/internal/store"
	"github.com/me/framestep/pkg/grid"
	"github.com/me/framestep/pkg/model"
)

// bindSimFlags registers the simulation flags shared by run and serve. The
// returned config holds the flag values; mergeSimFlags copies the ones the
// user set over the loaded config.
func bindSimFlags(cmd *cobra.Command) *config.SimConfig {
	c := config.DefaultSimConfig()
	f := cmd.Flags()
	f.IntVar(&c.Width, "width", c.Width, "Grid columns")
	f.IntVar(&c.Height, "height", c.Height, "Grid rows")
	f.Float64Var(&c.Density, "density", c.Density, "Probability a randomly seeded cell is alive")
	f.Int64Var(&c.Seed, "seed", c.Seed, "Random seed (0 picks one)")
	f.StringVar(&c.Rule, "rule", c.Rule, "B/S rulestring")
	f.BoolVar(&c.Wrap, "wrap", c.Wrap, "Wrap neighbourhoods around the edges")
	f.StringVar(&c.Pattern, "pattern", c.Pattern, "Named pattern to place in the centre instead of random seeding")
	f.StringVar(&c.Script, "script", c.Script, "JavaScript rule file (overrides --rule)")
	f.DurationVar(&c.ScriptTimeout, "script-timeout", c.ScriptTimeout, "Interrupt a script evaluation after this long")
	f.Float64Var(&c.TargetFPS, "fps", c.TargetFPS, "Target frames per second")
	f.Float64Var(&c.MaxRate, "max-rate", c.MaxRate, "Cap each call at 1/rate seconds")
	f.DurationVar(&c.MaxDuration, "max-duration", c.MaxDuration, "Cap each call at this duration")
	f.IntVar(&c.WindowSize, "window", c.WindowSize, "Pass durations averaged for strategy selection")
	f.IntVar(&c.MaxPassesPerCall, "passes-per-call", c.MaxPassesPerCall, "Passes one frame may commit when they fit")
	f.IntVar(&c.Frames, "frames", c.Frames, "Stop after this many frames (0 = no limit)")
	f.DurationVar(&c.RunFor, "run-for", c.RunFor, "Stop after this long (0 = no limit)")
	return &c
}

func mergeSimFlags(cmd *cobra.Command, dst *config.SimConfig, src *config.SimConfig) {
	set := cmd.Flags().Changed
	if set("width") {
		dst.Width = src.Width
	}
	if set("height") {
		dst.Height = src.Height
	}
	if set("density") {
		dst.Density = src.Density
	}
	if set("seed") {
		dst.Seed = src.Seed
	}
	if set("rule") {
		dst.Rule = src.Rule
	}
	if set("wrap") {
		dst.Wrap = src.Wrap
	}
	if set("pattern") {
		dst.Pattern = src.Pattern
	}
	if set("script") {
		dst.Script = src.Script
	}
	if set("script-timeout") {
		dst.ScriptTimeout = src.ScriptTimeout
	}
	if set("fps") {
		dst.TargetFPS = src.TargetFPS
	}
	if set("max-rate") {
		dst.MaxRate = src.MaxRate
	}
	if set("max-duration") {
		dst.MaxDuration = src.MaxDuration
	}
	if set("window") {
		dst.WindowSize = src.WindowSize
	}
	if set("passes-per-call") {
		dst.MaxPassesPerCall = src.MaxPassesPerCall
	}
	if set("frames") {
		dst.Frames = src.Frames
	}
	if set("run-for") {
		dst.RunFor = src.RunFor
	}
}

// simulation is a seeded world, its workload and the run describing it.
type simulation struct {
	world    *life.World
	workload scheduler.Workload[life.Cell]
	run      *model.Run
	seed     uint64
}

// newSimulation seeds a world from sc. The seed drives both the initial
// generation and the visiting order of every pass.
func newSimulation(sc config.SimConfig) (*simulation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	seed := sc.Seed
	if seed == 0 {
		seed = rand.Int64N(1<<62) + 1
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	initial, err := initialGeneration(sc, rng)
	if err != nil {
		return nil, err
	}

	opts := []life.Option{life.WithWrap(sc.Wrap)}
	ruleName := "script"
	if sc.Script == "" {
		rule, err := life.ParseRule(sc.Rule)
		if err != nil {
			return nil, err
		}
		opts = append(opts, life.WithRule(rule))
		ruleName = rule.String()
	}
	world := life.NewWorld(initial, opts...)

	sim := &simulation{
		world:    world,
		workload: world,
		seed:     uint64(seed),
		run: &model.Run{
			Workload:  "life",
			Width:     sc.Width,
			Height:    sc.Height,
			Rule:      ruleName,
			Wrap:      sc.Wrap,
			Seed:      seed,
			TargetFPS: sc.TargetFPS,
		},
	}
	if sc.Script != "" {
		rule, err := script.Load(sc.Script, world, logger, script.WithUnitTimeout(sc.ScriptTimeout))
		if err != nil {
			return nil, err
		}
		sim.workload = rule
		sim.run.Workload = "script:" + filepath.Base(sc.Script)
	}
	return sim, nil
}

func initialGeneration(sc config.SimConfig, rng *rand.Rand) (*grid.Grid[life.Cell], error) {
	if sc.Pattern == "" {
		return life.Random(sc.Height, sc.Width, sc.Density, rng), nil
	}
	reg := life.DefaultRegistry()
	p, ok := reg.Lookup(sc.Pattern)
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (available: %s)", sc.Pattern, strings.Join(reg.Names(), ", "))
	}
	origin := grid.Index{Row: (sc.Height - p.Rows()) / 2, Col: (sc.Width - p.Cols()) / 2}
	return life.Place(grid.New(sc.Height, sc.Width, life.Dead), p, origin), nil
}

// orchestrator builds the scheduler for sim with the limits from sc.
func (sim *simulation) orchestrator(sc config.SimConfig, extra ...scheduler.Option) (*scheduler.Orchestrator[life.Cell], error) {
	lim, err := sc.Limiter()
	if err != nil {
		return nil, err
	}
	opts := []scheduler.Option{
		scheduler.WithLimiter(lim),
		scheduler.WithWindowSize(sc.WindowSize),
		scheduler.WithMaxPassesPerCall(sc.MaxPassesPerCall),
		scheduler.WithSeed(sim.seed),
		scheduler.WithLogger(logger),
	}
	return scheduler.New(sim.workload, append(opts, extra...)...)
}

// openStore opens and migrates the telemetry database named by the loaded
// config.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	dbPath, err := cfg.Server.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", dbPath)
	return st, nil
}

// withRunLimit bounds ctx by sc.RunFor when it is set.
func withRunLimit(ctx context.Context, sc config.SimConfig) (context.Context, context.CancelFunc) {
	if sc.RunFor > 0 {
		return context.WithTimeout(ctx, sc.RunFor)
	}
	return context.WithCancel(ctx)
}

// shutdownContext is used for the writes that follow a cancelled run.
func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
