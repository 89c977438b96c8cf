package scheduler

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/cursor"
	"github.com/me/framestep/internal/limiter"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/pkg/grid"
	"github.com/me/framestep/pkg/model"
)

// DefaultWindowSize is the number of pass durations averaged for strategy
// selection, about five seconds of passes at 60 Hz.
const DefaultWindowSize = 300

// Report summarises one AdvanceBounded call.
type Report struct {
	// Elapsed is the duration of the most recently completed pass, the time
	// one full generation step took. It is not the time spent in this call.
	Elapsed  time.Duration
	Spent    time.Duration
	Budget   clock.Budget
	Strategy model.Strategy
	Units    int
	Passes   int
	State    model.PassState
}

type options struct {
	clock     clock.Source
	limiter   *limiter.RateLimiter
	window    int
	rng       *rand.Rand
	logger    *slog.Logger
	maxPasses int
	observers []PassObserver
}

// Option configures an Orchestrator.
type Option func(*options)

// WithClock sets the time source. Defaults to clock.System.
func WithClock(src clock.Source) Option {
	return func(o *options) { o.clock = src }
}

// WithLimiter caps every call at the limiter's ceiling.
func WithLimiter(l *limiter.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithWindowSize sets how many pass durations are averaged.
func WithWindowSize(n int) Option {
	return func(o *options) { o.window = n }
}

// WithRand sets the source used to shuffle each pass.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithSeed shuffles passes from a PCG seeded with seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxPassesPerCall lets a single call commit up to n passes when the
// average pass comfortably fits in the remaining budget.
func WithMaxPassesPerCall(n int) Option {
	return func(o *options) { o.maxPasses = n }
}

// WithObserver registers an observer notified after every commit.
func WithObserver(obs PassObserver) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Orchestrator schedules the passes of one workload. It is not safe for
// concurrent use.
type Orchestrator[V any] struct {
	workload  Workload[V]
	committer Committer[V]
	clk       clock.Source
	limiter   *limiter.RateLimiter
	rng       *rand.Rand
	logger    *slog.Logger
	maxPasses int
	observers []PassObserver

	state      model.PassState
	cursor     *cursor.WorkCursor[V] // non-nil iff state is IN_PROGRESS
	current    *grid.Grid[V]
	passWatch  *clock.Stopwatch
	callWatch  *clock.Stopwatch
	passCalls  int
	average    *perf.RunningAverage[time.Duration]
	lastPass   time.Duration
	strategy   model.Strategy
	generation int64
}

// New creates an Orchestrator for w and takes its first snapshot.
func New[V any](w Workload[V], opts ...Option) (*Orchestrator[V], error) {
	if w == nil {
		return nil, model.NewConfigError("workload", nil, "must not be nil")
	}
	o := options{window: DefaultWindowSize, maxPasses: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.window < 1 {
		return nil, model.NewConfigError("window_size", o.window, "must be at least 1")
	}
	if o.maxPasses < 1 {
		return nil, model.NewConfigError("max_passes_per_call", o.maxPasses, "must be at least 1")
	}
	if o.clock == nil {
		o.clock = clock.System{}
	}
	if o.limiter == nil {
		o.limiter = limiter.Unlimited()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	orch := &Orchestrator[V]{
		workload:  w,
		clk:       o.clock,
		limiter:   o.limiter,
		rng:       o.rng,
		logger:    logging.Component(o.logger, "scheduler"),
		maxPasses: o.maxPasses,
		observers: o.observers,
		state:     model.PassStateIdle,
		current:   w.Snapshot(),
		passWatch: clock.NewStopwatch(o.clock),
		callWatch: clock.NewStopwatch(o.clock),
		average:   perf.NewRunningAverage[time.Duration](o.window),
		strategy:  model.StrategyFull,
	}
	if c, ok := w.(Committer[V]); ok {
		orch.committer = c
	}
	return orch, nil
}

// AdvanceBounded performs work on the workload for at most hint (combined
// with the limiter's ceiling). The deadline is checked after each unit, so a
// call with a zero budget still visits one unit when a pass is pending.
func (o *Orchestrator[V]) AdvanceBounded(hint clock.Budget) Report {
	o.callWatch.Reset()
	budget := o.limiter.EffectiveBudget(hint)
	deadline := clock.NewDeadline(o.clk, budget)
	o.selectStrategy(budget)

	rep := Report{Budget: budget, Strategy: o.strategy}
	for {
		if o.state == model.PassStateIdle {
			o.beginPass()
		}
		o.passCalls++

		units, exhausted := o.drive(deadline)
		rep.Units += units
		if !exhausted {
			break
		}
		o.commit()
		rep.Passes++
		if !o.canStartAnother(deadline, rep.Passes) {
			break
		}
	}

	rep.Spent = o.callWatch.Elapsed()
	o.limiter.RecordDuration(rep.Spent)
	rep.Elapsed = o.lastPass
	rep.State = o.state
	return rep
}

// drive visits units until the cursor is exhausted or the deadline elapses.
func (o *Orchestrator[V]) drive(deadline clock.Deadline) (units int, exhausted bool) {
	for {
		if _, ok := o.cursor.Advance(); !ok {
			return units, true
		}
		units++
		if o.cursor.IsExhausted() {
			return units, true
		}
		if deadline.HasElapsed() {
			return units, false
		}
	}
}

func (o *Orchestrator[V]) beginPass() {
	src := o.current
	if o.committer != nil {
		src = o.workload.Snapshot()
	}
	o.cursor = cursor.New(src, o.workload.Transition, o.rng)
	o.passWatch.Reset()
	o.passCalls = 0
	o.transition(model.PassStateInProgress)
	o.logger.Debug("pass started", "generation", o.generation+1, "units", o.cursor.Total())
}

func (o *Orchestrator[V]) commit() {
	d := o.passWatch.Elapsed()
	o.current = o.cursor.Output()
	units := o.cursor.Total()
	o.cursor = nil
	o.transition(model.PassStateIdle)

	o.generation++
	o.average.Record(d)
	o.lastPass = d
	if o.committer != nil {
		o.committer.Commit(o.current)
	}

	ev := PassEvent{
		Generation:    o.generation,
		Duration:      d,
		FramesSpanned: o.passCalls,
		Units:         units,
		Strategy:      o.strategy,
		CompletedAt:   o.clk.Now(),
	}
	for _, obs := range o.observers {
		obs.ObservePass(ev)
	}
	o.logger.Debug("pass committed",
		"generation", o.generation,
		"duration", d,
		"frames_spanned", o.passCalls,
	)
}

// canStartAnother reports whether the same call may begin a further pass.
func (o *Orchestrator[V]) canStartAnother(deadline clock.Deadline, done int) bool {
	if done >= o.maxPasses || o.strategy != model.StrategyFull || deadline.HasElapsed() {
		return false
	}
	avg, ok := o.average.Average()
	return ok && deadline.Remaining().Covers(avg)
}

func (o *Orchestrator[V]) selectStrategy(budget clock.Budget) {
	next := model.StrategyIncremental
	if avg, ok := o.average.Average(); !ok || budget.Covers(avg) {
		next = model.StrategyFull
	}
	if next != o.strategy {
		avg, _ := o.average.Average()
		o.logger.Debug("strategy changed", "from", o.strategy, "to", next, "average_pass", avg, "budget", budget)
		o.strategy = next
	}
}

func (o *Orchestrator[V]) transition(next model.PassState) {
	if !o.state.CanTransitionTo(next) {
		panic(&model.InvalidTransitionError{Entity: "pass", From: o.state.String(), To: next.String()})
	}
	o.state = next
}

// LastPassDuration returns the duration of the most recently completed pass.
func (o *Orchestrator[V]) LastPassDuration() time.Duration { return o.lastPass }

// AveragePassDuration returns the mean of the retained pass durations.
func (o *Orchestrator[V]) AveragePassDuration() (time.Duration, bool) {
	return o.average.Average()
}

// UpdatesPerSecond converts the average pass duration into generations per
// second.
func (o *Orchestrator[V]) UpdatesPerSecond() (float64, bool) {
	avg, ok := o.average.Average()
	if !ok {
		return 0, false
	}
	return perf.PerSecond(avg)
}

// Current returns the last committed generation. A pass in progress is
// never visible here.
func (o *Orchestrator[V]) Current() *grid.Grid[V] { return o.current }

// State returns whether a pass is in progress.
func (o *Orchestrator[V]) State() model.PassState { return o.state }

// Strategy returns the strategy chosen by the last call.
func (o *Orchestrator[V]) Strategy() model.Strategy { return o.strategy }

// Generation returns the number of committed passes.
func (o *Orchestrator[V]) Generation() int64 { return o.generation }

// Progress returns how many units of the pass in flight have been visited.
// Both values are zero when no pass is in progress.
func (o *Orchestrator[V]) Progress() (visited, total int) {
	if o.cursor == nil {
		return 0, 0
	}
	return o.cursor.Visited(), o.cursor.Total()
}

// Limiter returns the limiter capping each call.
func (o *Orchestrator[V]) Limiter() *limiter.RateLimiter { return o.limiter }
