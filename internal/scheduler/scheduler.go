// Package scheduler drives generation workloads in bounded, resumable
// slices of wall-clock time.
//
// An Orchestrator owns at most one pass in flight. Each AdvanceBounded call
// visits units of that pass until the pass is exhausted or the call's budget
// runs out, and commits the finished generation in the same call that
// exhausts it. A FrameLoop calls AdvanceBounded once per frame.
package scheduler

import (
	"context"
	"time"

	"github.com/me/framestep/pkg/grid"
	"github.com/me/framestep/pkg/model"
)

// Workload supplies the generation to compute from and the per-unit rule.
type Workload[V any] interface {
	// Snapshot returns an immutable view of the current generation.
	Snapshot() *grid.Grid[V]

	// Transition computes the next value of the unit at idx, reading only
	// from snapshot. ok is false when the transition is undefined there.
	Transition(idx grid.Index, snapshot *grid.Grid[V]) (next V, ok bool)
}

// Committer is implemented by workloads that hold their own state. Commit
// receives every completed generation, and Snapshot is called again at the
// start of every pass.
type Committer[V any] interface {
	Commit(next *grid.Grid[V])
}

// PassEvent describes one committed pass.
type PassEvent struct {
	Generation    int64
	Duration      time.Duration
	FramesSpanned int
	Units         int
	Strategy      model.Strategy
	CompletedAt   time.Time
}

// PassObserver is notified after every commit.
type PassObserver interface {
	ObservePass(ev PassEvent)
}

// PassObserverFunc adapts a function to PassObserver.
type PassObserverFunc func(ev PassEvent)

// ObservePass calls f(ev).
func (f PassObserverFunc) ObservePass(ev PassEvent) { f(ev) }

// Driver runs frames until stopped.
type Driver interface {
	// Start begins the frame loop. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the loop down after the current frame.
	Stop() error

	// Frame runs a single frame. Used for testing.
	Frame(ctx context.Context) error
}
