// Package cursor implements the resumable, randomized enumerator that walks
// every unit of a frozen generation exactly once.
package cursor

import (
	"math/rand/v2"

	"github.com/me/framestep/pkg/grid"
)

// Transition computes the next value of the unit at idx from a read-only
// snapshot. ok is false when the transition is undefined at idx.
type Transition[V any] func(idx grid.Index, snapshot *grid.Grid[V]) (next V, ok bool)

// Step is the outcome of one Advance.
type Step[V any] struct {
	Index   grid.Index
	Value   V
	Defined bool
}

// WorkCursor owns the frozen snapshot, the not-yet-visited indices and the
// output buffer of one pass. It is not safe for concurrent use.
type WorkCursor[V any] struct {
	snapshot   *grid.Grid[V]
	output     *grid.Grid[V]
	transition Transition[V]
	pending    []grid.Index
	total      int
}

// New builds a cursor over every index of snapshot in shuffled order. The
// output buffer starts as a copy of snapshot so units whose transition is
// undefined keep their previous value. A nil rng uses a randomly seeded PCG.
func New[V any](snapshot *grid.Grid[V], transition Transition[V], rng *rand.Rand) *WorkCursor[V] {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	pending := snapshot.Indices()
	rng.Shuffle(len(pending), func(i, j int) {
		pending[i], pending[j] = pending[j], pending[i]
	})
	return &WorkCursor[V]{
		snapshot:   snapshot,
		output:     snapshot.Clone(),
		transition: transition,
		pending:    pending,
		total:      len(pending),
	}
}

// Advance visits one pending unit. It returns false once every unit has been
// visited, and keeps returning false on later calls.
func (c *WorkCursor[V]) Advance() (Step[V], bool) {
	n := len(c.pending)
	if n == 0 {
		return Step[V]{}, false
	}
	idx := c.pending[n-1]
	c.pending = c.pending[:n-1]

	next, ok := c.transition(idx, c.snapshot)
	if ok {
		ok = c.output.Set(idx, next)
	}
	return Step[V]{Index: idx, Value: next, Defined: ok}, true
}

// IsExhausted reports whether every unit has been visited.
func (c *WorkCursor[V]) IsExhausted() bool { return len(c.pending) == 0 }

// Remaining returns the number of units still to visit.
func (c *WorkCursor[V]) Remaining() int { return len(c.pending) }

// Total returns the number of units in the pass.
func (c *WorkCursor[V]) Total() int { return c.total }

// Visited returns the number of units already visited.
func (c *WorkCursor[V]) Visited() int { return c.total - len(c.pending) }

// Snapshot returns the frozen generation the pass reads from.
func (c *WorkCursor[V]) Snapshot() *grid.Grid[V] { return c.snapshot }

// Output returns the generation under construction. It is only complete once
// IsExhausted is true.
func (c *WorkCursor[V]) Output() *grid.Grid[V] { return c.output }
