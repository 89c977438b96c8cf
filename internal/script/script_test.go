package script

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/pkg/grid"
)

const conwayJS = `
function rule(alive, neighbors) {
	if (alive) return neighbors === 2 || neighbors === 3;
	return neighbors === 3;
}`

func TestNew_Errors(t *testing.T) {
	world := life.NewWorld(grid.New(1, 1, life.Dead))
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "function rule( {", "script bad"},
		{"missing", "var x = 1;", "rule is not a function"},
		{"throws", "function rule() { throw new Error('nope'); }", "probe"},
		{"not boolean", "function rule() { return 3; }", "want boolean"},
		{"spins", "function rule() { while (true) {} }", "probe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.src, world, logging.Discard())
			if err == nil {
				t.Fatal("New() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestTransition_MatchesConway(t *testing.T) {
	start, err := life.Parse(".....\n..#..\n..#..\n..#..\n.....")
	if err != nil {
		t.Fatal(err)
	}
	native := life.NewWorld(start)
	scripted, err := New("conway.js", conwayJS, life.NewWorld(start), logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, idx := range start.Indices() {
		want, _ := native.Transition(idx, start)
		got, ok := scripted.Transition(idx, start)
		if !ok || got != want {
			t.Errorf("Transition(%s) = %s,%v, want %s", idx, got, ok, want)
		}
	}
}

func TestTransition_PositionArguments(t *testing.T) {
	src := `function rule(alive, n, row, col) { return row === col; }`
	g := grid.New(3, 3, life.Dead)
	r, err := New("diag", src, life.NewWorld(g), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := r.Transition(grid.Index{Row: 1, Col: 1}, g); c != life.Alive {
		t.Error("diagonal cell not alive")
	}
	if c, _ := r.Transition(grid.Index{Row: 0, Col: 2}, g); c != life.Dead {
		t.Error("off-diagonal cell alive")
	}
	if _, ok := r.Transition(grid.Index{Row: 3, Col: 0}, g); ok {
		t.Error("out-of-bounds transition defined")
	}
}

func TestTransition_RuntimeErrorLoggedOnce(t *testing.T) {
	src := `function rule(alive, n, row) {
		if (row > 0) throw new Error("row " + row);
		return alive;
	}`
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(0, "text", &buf)
	g := grid.New(3, 1, life.Alive)
	r, err := New("flaky", src, life.NewWorld(g), logger)
	if err != nil {
		t.Fatal(err)
	}

	for _, idx := range g.Indices() {
		c, ok := r.Transition(idx, g)
		if idx.Row == 0 && (!ok || c != life.Alive) {
			t.Errorf("row 0: %s,%v", c, ok)
		}
		if idx.Row > 0 && ok {
			t.Errorf("row %d defined despite error", idx.Row)
		}
	}
	if r.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", r.Errors())
	}
	if n := strings.Count(buf.String(), "rule failed"); n != 1 {
		t.Errorf("logged %d errors, want 1:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "component=script") {
		t.Errorf("missing component attribute:\n%s", buf.String())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conway.js")
	if err := os.WriteFile(path, []byte(conwayJS), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path, life.NewWorld(grid.New(2, 2, life.Alive)), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Name() != path {
		t.Errorf("Name() = %q", r.Name())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.js"), nil, nil); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

// spinRow1 never returns for cells in row 1.
const spinRow1 = `function rule(alive, n, row) {
	if (row === 1) { while (true) {} }
	return alive;
}`

func TestTransition_InterruptsSpinningRule(t *testing.T) {
	g := grid.New(2, 1, life.Alive)
	r, err := New("spin", spinRow1, life.NewWorld(g), logging.Discard(), WithUnitTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	type result struct {
		c  life.Cell
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		c, ok := r.Transition(grid.Index{Row: 1, Col: 0}, g)
		done <- result{c, ok}
	}()
	select {
	case res := <-done:
		if res.ok {
			t.Errorf("interrupted unit defined as %s", res.c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("spinning rule still running after 2s")
	}
	if r.Errors() != 1 {
		t.Errorf("Errors() = %d, want 1", r.Errors())
	}

	// The interrupt does not leak into the next evaluation.
	if c, ok := r.Transition(grid.Index{Row: 0, Col: 0}, g); !ok || c != life.Alive {
		t.Errorf("row 0 after interrupt = %s,%v", c, ok)
	}
}

func TestAdvanceBounded_SpinningRuleReturns(t *testing.T) {
	g := grid.New(2, 2, life.Alive)
	r, err := New("spin", spinRow1, life.NewWorld(g), logging.Discard(), WithUnitTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	orch, err := scheduler.New[life.Cell](r, scheduler.WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}

	for call := 1; orch.Generation() == 0; call++ {
		if call > 10 {
			t.Fatal("pass did not commit within 10 calls")
		}
		done := make(chan struct{})
		go func() {
			orch.AdvanceBounded(clock.Within(5 * time.Millisecond))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("call %d with a 5ms budget still running after 2s", call)
		}
	}
	if r.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", r.Errors())
	}
	next := orch.Current()
	if next.At(0, 0) != life.Alive || next.At(0, 1) != life.Alive {
		t.Errorf("row 0 not carried forward: %s", life.Render(next))
	}
}

func TestNew_TopLevelTimeout(t *testing.T) {
	_, err := New("loop", "while (true) {}", life.NewWorld(grid.New(1, 1, life.Dead)), nil,
		WithUnitTimeout(10*time.Millisecond))
	var ie *goja.InterruptedError
	if !errors.As(err, &ie) || ie.Value() != ErrTimeout {
		t.Errorf("err = %v, want interrupted by ErrTimeout", err)
	}
}
