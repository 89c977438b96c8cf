package life

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/me/framestep/pkg/grid"
)

// Parse reads a plain-text pattern: one line per row, '#' or 'O' for alive
// and '.' for dead. Blank lines and lines starting with '!' are skipped.
// Short rows are padded with dead cells.
func Parse(text string) (*grid.Grid[Cell], error) {
	var rows [][]Cell
	width := 0
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		row := make([]Cell, 0, len(line))
		for _, ch := range line {
			switch ch {
			case '#', 'O':
				row = append(row, Alive)
			case '.':
				row = append(row, Dead)
			default:
				return nil, fmt.Errorf("line %d: unexpected character %q", n+1, ch)
			}
		}
		width = max(width, len(row))
		rows = append(rows, row)
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, Dead)
		}
		rows[i] = row
	}
	return grid.FromRows(rows)
}

// Render writes g in the format Parse reads, using '#' and '.'.
func Render(g *grid.Grid[Cell]) string {
	var b strings.Builder
	b.Grow(g.Len() + g.Rows())
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			b.WriteString(g.At(r, c).String())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Place returns a copy of dst with pattern's live cells stamped at origin.
// Cells that fall outside dst are dropped.
func Place(dst, pattern *grid.Grid[Cell], origin grid.Index) *grid.Grid[Cell] {
	out := dst.Clone()
	pattern.Each(func(idx grid.Index, c Cell) {
		if c == Alive {
			out.Set(grid.Index{Row: origin.Row + idx.Row, Col: origin.Col + idx.Col}, Alive)
		}
	})
	return out
}

// Random returns a rows×cols grid where each cell is alive with
// probability density.
func Random(rows, cols int, density float64, rng *rand.Rand) *grid.Grid[Cell] {
	g := grid.New(rows, cols, Dead)
	for _, idx := range g.Indices() {
		if rng.Float64() < density {
			g.Set(idx, Alive)
		}
	}
	return g
}

// Registry maps names to seed patterns.
type Registry struct {
	patterns map[string]*grid.Grid[Cell]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{patterns: make(map[string]*grid.Grid[Cell])}
}

// DefaultRegistry returns a registry holding glider, blinker, block,
// beacon and r-pentomino.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, text := range builtin {
		if err := r.Register(name, text); err != nil {
			panic(fmt.Sprintf("builtin pattern %s: %v", name, err))
		}
	}
	return r
}

var builtin = map[string]string{
	"glider":      ".#.\n..#\n###",
	"blinker":     "###",
	"block":       "##\n##",
	"beacon":      "##..\n##..\n..##\n..##",
	"r-pentomino": ".##\n##.\n.#.",
}

// Register parses text and stores it under name, replacing any previous
// pattern of that name.
func (r *Registry) Register(name, text string) error {
	if name == "" {
		return fmt.Errorf("pattern name must not be empty")
	}
	g, err := Parse(text)
	if err != nil {
		return fmt.Errorf("pattern %s: %w", name, err)
	}
	r.patterns[name] = g
	return nil
}

// Lookup returns the pattern registered under name.
func (r *Registry) Lookup(name string) (*grid.Grid[Cell], bool) {
	g, ok := r.patterns[name]
	return g, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
