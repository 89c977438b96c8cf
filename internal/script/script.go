// Package script provides a Life-like workload whose transition rule is a
// JavaScript function evaluated with goja.
//
// The script must define
//
//	function rule(alive, neighbors, row, col) { ... }
//
// returning true when the cell is alive in the next generation.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dop251/goja"

	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/pkg/grid"
)

// FuncName is the function every rule script must define.
const FuncName = "rule"

// DefaultUnitTimeout bounds a single evaluation of the script.
const DefaultUnitTimeout = 100 * time.Millisecond

// ErrTimeout is the interrupt value of a script run stopped by the
// unit timeout.
var ErrTimeout = errors.New("script exceeded unit timeout")

// Option configures a Rule.
type Option func(*Rule)

// WithUnitTimeout sets how long one evaluation may run before it is
// interrupted. Zero or less disables the timeout.
func WithUnitTimeout(d time.Duration) Option {
	return func(r *Rule) { r.timeout = d }
}

// Rule is a scheduler workload backed by a script. Neighbour counting,
// snapshots and commits are delegated to the wrapped life.World.
type Rule struct {
	*life.World
	name    string
	vm      *goja.Runtime
	fn      goja.Callable
	logger  *slog.Logger
	timeout time.Duration
	errors  int
}

// New compiles src, checks that it defines rule() and probes it once.
// name identifies the script in errors and logs. Top-level code and every
// evaluation run under the unit timeout.
func New(name, src string, world *life.World, logger *slog.Logger, opts ...Option) (*Rule, error) {
	r := &Rule{
		World:   world,
		name:    name,
		vm:      goja.New(),
		logger:  logging.Component(logger, "script").With("script", name),
		timeout: DefaultUnitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	err := r.guard(func() error {
		_, err := r.vm.RunString(src)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(r.vm.Get(FuncName))
	if !ok {
		return nil, fmt.Errorf("script %s: %s is not a function", name, FuncName)
	}
	r.fn = fn

	if _, err := r.eval(life.Dead, 3, grid.Index{}); err != nil {
		return nil, fmt.Errorf("script %s: probe: %w", name, err)
	}
	return r, nil
}

// Load reads a script file and calls New with the path as its name.
func Load(path string, world *life.World, logger *slog.Logger, opts ...Option) (*Rule, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return New(path, string(src), world, logger, opts...)
}

// Transition evaluates the script for the unit at idx. A script error
// leaves the unit undefined; only the first error is logged.
func (r *Rule) Transition(idx grid.Index, snapshot *grid.Grid[life.Cell]) (life.Cell, bool) {
	c, ok := snapshot.Get(idx)
	if !ok {
		return life.Dead, false
	}
	next, err := r.eval(c, r.Neighbors(idx, snapshot), idx)
	if err != nil {
		r.errors++
		if r.errors == 1 {
			r.logger.Error("rule failed; unit left unchanged", "index", idx.String(), "error", err)
		}
		return life.Dead, false
	}
	return next, true
}

func (r *Rule) eval(c life.Cell, neighbors int, idx grid.Index) (life.Cell, error) {
	var v goja.Value
	err := r.guard(func() error {
		var err error
		v, err = r.fn(goja.Undefined(),
			r.vm.ToValue(c == life.Alive),
			r.vm.ToValue(neighbors),
			r.vm.ToValue(idx.Row),
			r.vm.ToValue(idx.Col),
		)
		return err
	})
	if err != nil {
		return life.Dead, err
	}
	alive, ok := v.Export().(bool)
	if !ok {
		return life.Dead, fmt.Errorf("%s returned %s, want boolean", FuncName, v.String())
	}
	if alive {
		return life.Alive, nil
	}
	return life.Dead, nil
}

// guard runs fn with a watchdog that interrupts the VM once the unit
// timeout passes. The interrupt flag is cleared before returning so the next
// run starts clean.
func (r *Rule) guard(fn func() error) error {
	if r.timeout <= 0 {
		return fn()
	}
	timer := time.AfterFunc(r.timeout, func() { r.vm.Interrupt(ErrTimeout) })
	err := fn()
	timer.Stop()
	r.vm.ClearInterrupt()
	return err
}

// Name returns the script's name.
func (r *Rule) Name() string { return r.name }

// Errors returns how many units failed to evaluate.
func (r *Rule) Errors() int { return r.errors }
