// Package grid provides the 2-D generation container shared by the scheduler
// and its workloads.
package grid

import "fmt"

// Index addresses one unit of a generation.
type Index struct {
	Row int
	Col int
}

// String returns "(row,col)".
func (i Index) String() string {
	return fmt.Sprintf("(%d,%d)", i.Row, i.Col)
}

// Grid is a row-major 2-D array of unit states. Bounds are fixed at
// construction.
type Grid[V any] struct {
	rows  int
	cols  int
	cells []V
}

// New creates a rows×cols grid with every cell set to fill.
// Negative dimensions are treated as zero.
func New[V any](rows, cols int, fill V) *Grid[V] {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	cells := make([]V, rows*cols)
	for i := range cells {
		cells[i] = fill
	}
	return &Grid[V]{rows: rows, cols: cols, cells: cells}
}

// FromRows builds a grid from a slice of equally sized rows.
func FromRows[V any](rows [][]V) (*Grid[V], error) {
	if len(rows) == 0 {
		return &Grid[V]{}, nil
	}
	cols := len(rows[0])
	g := &Grid[V]{rows: len(rows), cols: cols, cells: make([]V, 0, len(rows)*cols)}
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r, len(row), cols)
		}
		g.cells = append(g.cells, row...)
	}
	return g, nil
}

// Rows returns the number of rows.
func (g *Grid[V]) Rows() int { return g.rows }

// Cols returns the number of columns.
func (g *Grid[V]) Cols() int { return g.cols }

// Len returns the number of cells.
func (g *Grid[V]) Len() int { return len(g.cells) }

// Contains reports whether idx lies inside the grid.
func (g *Grid[V]) Contains(idx Index) bool {
	return idx.Row >= 0 && idx.Row < g.rows && idx.Col >= 0 && idx.Col < g.cols
}

// Get returns the value at idx; ok is false when idx is out of bounds.
func (g *Grid[V]) Get(idx Index) (v V, ok bool) {
	if !g.Contains(idx) {
		return v, false
	}
	return g.cells[idx.Row*g.cols+idx.Col], true
}

// At returns the value at (row, col). It panics when out of bounds.
func (g *Grid[V]) At(row, col int) V {
	if !g.Contains(Index{Row: row, Col: col}) {
		panic(fmt.Sprintf("grid: index (%d,%d) out of bounds %dx%d", row, col, g.rows, g.cols))
	}
	return g.cells[row*g.cols+col]
}

// Set writes v at idx. It returns false and leaves the grid untouched when
// idx is out of bounds.
func (g *Grid[V]) Set(idx Index, v V) bool {
	if !g.Contains(idx) {
		return false
	}
	g.cells[idx.Row*g.cols+idx.Col] = v
	return true
}

// Clone returns an independent copy.
func (g *Grid[V]) Clone() *Grid[V] {
	cells := make([]V, len(g.cells))
	copy(cells, g.cells)
	return &Grid[V]{rows: g.rows, cols: g.cols, cells: cells}
}

// Indices returns every valid index in row-major order.
func (g *Grid[V]) Indices() []Index {
	out := make([]Index, 0, len(g.cells))
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			out = append(out, Index{Row: r, Col: c})
		}
	}
	return out
}

// Each calls fn for every cell in row-major order.
func (g *Grid[V]) Each(fn func(idx Index, v V)) {
	for i, v := range g.cells {
		fn(Index{Row: i / g.cols, Col: i % g.cols}, v)
	}
}

// Equal reports whether a and b have the same bounds and cells.
func Equal[V comparable](a, b *Grid[V]) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	for i := range a.cells {
		if a.cells[i] != b.cells[i] {
			return false
		}
	}
	return true
}
