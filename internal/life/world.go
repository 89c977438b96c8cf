package life

import (
	"sync/atomic"

	"github.com/me/framestep/pkg/grid"
)

// World is a Life workload. It implements scheduler.Workload and
// scheduler.Committer over grid.Grid[Cell].
type World struct {
	cells atomic.Pointer[grid.Grid[Cell]]
	rule  Rule
	wrap  bool
}

// Option configures a World.
type Option func(*World)

// WithRule sets the birth/survival rule. Defaults to Conway.
func WithRule(r Rule) Option {
	return func(w *World) { w.rule = r }
}

// WithWrap makes the grid toroidal. By default cells beyond the edge count
// as dead.
func WithWrap(wrap bool) Option {
	return func(w *World) { w.wrap = wrap }
}

// NewWorld creates a World starting from initial. The World takes
// ownership of initial; callers must not modify it afterwards.
func NewWorld(initial *grid.Grid[Cell], opts ...Option) *World {
	w := &World{rule: Conway}
	for _, opt := range opts {
		opt(w)
	}
	w.cells.Store(initial)
	return w
}

// Snapshot returns the current generation.
func (w *World) Snapshot() *grid.Grid[Cell] { return w.cells.Load() }

// Transition applies the rule at idx. It is undefined outside snapshot.
func (w *World) Transition(idx grid.Index, snapshot *grid.Grid[Cell]) (Cell, bool) {
	c, ok := snapshot.Get(idx)
	if !ok {
		return Dead, false
	}
	return w.rule.Next(c, w.Neighbors(idx, snapshot)), true
}

// Commit replaces the current generation.
func (w *World) Commit(next *grid.Grid[Cell]) { w.cells.Store(next) }

// Neighbors counts the live cells around idx in g.
func (w *World) Neighbors(idx grid.Index, g *grid.Grid[Cell]) int {
	rows, cols := g.Rows(), g.Cols()
	if rows == 0 || cols == 0 {
		return 0
	}
	n := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := idx.Row+dr, idx.Col+dc
			if w.wrap {
				r = (r + rows) % rows
				c = (c + cols) % cols
			}
			if v, ok := g.Get(grid.Index{Row: r, Col: c}); ok && v == Alive {
				n++
			}
		}
	}
	return n
}

// Rule returns the world's rule.
func (w *World) Rule() Rule { return w.rule }

// Wraps reports whether the world is toroidal.
func (w *World) Wraps() bool { return w.wrap }

// Population returns the number of live cells in the current generation.
func (w *World) Population() int { return Population(w.Snapshot()) }

// Population counts the live cells of g.
func Population(g *grid.Grid[Cell]) int {
	n := 0
	g.Each(func(_ grid.Index, c Cell) {
		if c == Alive {
			n++
		}
	})
	return n
}
