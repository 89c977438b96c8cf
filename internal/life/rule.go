// Package life implements Life-like cellular automata as scheduler
// workloads.
package life

import (
	"fmt"
	"strings"
)

// Cell is the state of one unit.
type Cell uint8

const (
	Dead Cell = iota
	Alive
)

// String returns "." for dead and "#" for alive cells.
func (c Cell) String() string {
	if c == Alive {
		return "#"
	}
	return "."
}

// Rule is a birth/survival rule over the eight-cell Moore neighbourhood.
type Rule struct {
	Birth   [9]bool
	Survive [9]bool
}

// Conway is B3/S23.
var Conway = MustParseRule("B3/S23")

// ParseRule parses a rulestring such as "B3/S23" or "B36/S23". The B and S
// parts may come in either order and are case-insensitive.
func ParseRule(s string) (Rule, error) {
	var r Rule
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return r, fmt.Errorf("rule %q: want B<digits>/S<digits>", s)
	}
	seen := map[byte]bool{}
	for _, p := range parts {
		if p == "" {
			return r, fmt.Errorf("rule %q: empty part", s)
		}
		kind := p[0] | 0x20 // lower-case
		var set *[9]bool
		switch kind {
		case 'b':
			set = &r.Birth
		case 's':
			set = &r.Survive
		default:
			return r, fmt.Errorf("rule %q: part %q must start with B or S", s, p)
		}
		if seen[kind] {
			return r, fmt.Errorf("rule %q: duplicate %c part", s, p[0])
		}
		seen[kind] = true
		for _, ch := range p[1:] {
			if ch < '0' || ch > '8' {
				return r, fmt.Errorf("rule %q: invalid neighbour count %q", s, ch)
			}
			set[ch-'0'] = true
		}
	}
	return r, nil
}

// MustParseRule is ParseRule that panics on error.
func MustParseRule(s string) Rule {
	r, err := ParseRule(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Next returns the state of a cell with the given number of live
// neighbours.
func (r Rule) Next(c Cell, neighbors int) Cell {
	if neighbors < 0 || neighbors > 8 {
		return Dead
	}
	if c == Alive {
		if r.Survive[neighbors] {
			return Alive
		}
		return Dead
	}
	if r.Birth[neighbors] {
		return Alive
	}
	return Dead
}

// String returns the canonical rulestring.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteByte('B')
	for n, on := range r.Birth {
		if on {
			b.WriteByte(byte('0' + n))
		}
	}
	b.WriteString("/S")
	for n, on := range r.Survive {
		if on {
			b.WriteByte(byte('0' + n))
		}
	}
	return b.String()
}
