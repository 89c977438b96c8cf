package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/pkg/grid"
	"github.com/me/framestep/pkg/model"
)

// Config holds frame loop configuration.
type Config struct {
	TargetFPS float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TargetFPS: 60}
}

// FrameInterval returns the time available to one frame.
func (c Config) FrameInterval() time.Duration {
	if c.TargetFPS <= 0 {
		return time.Second / 60
	}
	return time.Duration(float64(time.Second) / c.TargetFPS)
}

// Renderer presents the committed generation after each frame.
type Renderer[V any] interface {
	Render(g *grid.Grid[V], stats Stats) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc[V any] func(g *grid.Grid[V], stats Stats) error

// Render calls f(g, stats).
func (f RendererFunc[V]) Render(g *grid.Grid[V], stats Stats) error { return f(g, stats) }

// Stats is the snapshot a FrameLoop publishes after every frame.
type Stats struct {
	Frames              int64           `json:"frames"`
	Generation          int64           `json:"generation"`
	State               model.PassState `json:"state"`
	Strategy            model.Strategy  `json:"strategy"`
	Visited             int             `json:"visited"`
	Total               int             `json:"total"`
	LastPassDuration    time.Duration   `json:"last_pass_ns"`
	AveragePassDuration time.Duration   `json:"average_pass_ns"`
	UpdatesPerSecond    float64         `json:"updates_per_second"`
	FramesPerSecond     float64         `json:"frames_per_second"`
	LastFrame           time.Duration   `json:"last_frame_ns"`
	Overruns            int64           `json:"overruns"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// FrameLoop calls an Orchestrator once per frame at a target rate.
type FrameLoop[V any] struct {
	orch     *Orchestrator[V]
	renderer Renderer[V]
	config   Config
	clk      clock.Source
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	fps        *perf.RateMeter
	lastRender time.Duration

	mu        sync.RWMutex
	stats     Stats
	committed *grid.Grid[V]
}

// NewLoop creates a frame loop around orch. renderer may be nil.
func NewLoop[V any](orch *Orchestrator[V], renderer Renderer[V], cfg Config, logger *slog.Logger) *FrameLoop[V] {
	return &FrameLoop[V]{
		orch:      orch,
		renderer:  renderer,
		config:    cfg,
		clk:       orch.clk,
		logger:    logging.Component(logger, "frameloop"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		fps:       perf.NewRateMeter(orch.clk, time.Second),
		committed: orch.Current(),
	}
}

// Start begins the frame loop. Blocks until ctx is cancelled or Stop is called.
func (l *FrameLoop[V]) Start(ctx context.Context) error {
	interval := l.config.FrameInterval()
	l.logger.Info("frame loop started", "frame_interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("frame loop stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("frame loop stopping (stop called)")
			close(l.doneCh)
			return nil
		case tick := <-ticker.C:
			if err := l.frame(ctx, time.Since(tick)); err != nil {
				l.logger.Error("frame error", "error", err)
			}
		}
	}
}

// Stop shuts down the loop and waits for the current frame to finish.
func (l *FrameLoop[V]) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// RunFrames runs n frames back to back without waiting on a ticker.
func (l *FrameLoop[V]) RunFrames(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Frame(ctx); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
	}
	return nil
}

// Frame runs a single frame starting now: compute within the frame's
// remaining budget, then render the committed generation.
func (l *FrameLoop[V]) Frame(ctx context.Context) error {
	return l.frame(ctx, 0)
}

// frame runs a frame of which late has already passed, e.g. the delay
// between a tick and its delivery.
func (l *FrameLoop[V]) frame(ctx context.Context, late time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if late < 0 {
		late = 0
	}
	interval := l.config.FrameInterval()
	frame := clock.NewStopwatch(l.clk)

	// Reserve what the previous render took.
	hint := clock.Within(interval - l.lastRender - late)
	rep := l.orch.AdvanceBounded(hint)

	stats := l.snapshotStats(rep)
	var renderErr error
	if l.renderer != nil {
		renderStart := clock.NewStopwatch(l.clk)
		renderErr = l.renderer.Render(l.orch.Current(), stats)
		l.lastRender = renderStart.Elapsed()
	}

	l.fps.Tick()
	took := late + frame.Elapsed()
	if took > interval {
		stats.Overruns++
		l.logger.Warn("frame overran", "took", took, "interval", interval, "units", rep.Units)
	}
	stats.LastFrame = took
	if fps, ok := l.fps.Rate(); ok {
		stats.FramesPerSecond = fps
	}
	stats.UpdatedAt = l.clk.Now()

	l.mu.Lock()
	l.stats = stats
	l.committed = l.orch.Current()
	l.mu.Unlock()

	if renderErr != nil {
		return fmt.Errorf("render: %w", renderErr)
	}
	return nil
}

func (l *FrameLoop[V]) snapshotStats(rep Report) Stats {
	l.mu.RLock()
	prev := l.stats
	l.mu.RUnlock()

	visited, total := l.orch.Progress()
	avg, _ := l.orch.AveragePassDuration()
	ups, _ := l.orch.UpdatesPerSecond()
	return Stats{
		Frames:              prev.Frames + 1,
		Generation:          l.orch.Generation(),
		State:               rep.State,
		Strategy:            rep.Strategy,
		Visited:             visited,
		Total:               total,
		LastPassDuration:    rep.Elapsed,
		AveragePassDuration: avg,
		UpdatesPerSecond:    ups,
		FramesPerSecond:     prev.FramesPerSecond,
		Overruns:            prev.Overruns,
	}
}

// Stats returns the snapshot published by the last frame. Safe for
// concurrent use.
func (l *FrameLoop[V]) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Committed returns the generation committed as of the last frame.
// Committed generations are never mutated, so the result may be read from
// any goroutine.
func (l *FrameLoop[V]) Committed() *grid.Grid[V] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.committed
}
