package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/store"
	"github.com/me/framestep/pkg/grid"
	"github.com/me/framestep/pkg/model"
)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func event(gen int64) scheduler.PassEvent {
	return scheduler.PassEvent{
		Generation:    gen,
		Duration:      time.Duration(gen) * time.Millisecond,
		FramesSpanned: 2,
		Units:         16,
		Strategy:      model.StrategyIncremental,
		CompletedAt:   time.Date(2024, 1, 1, 0, 0, int(gen), 0, time.UTC),
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if !strings.HasPrefix(a, "run_") || a == b {
		t.Errorf("NewRunID() = %q, %q", a, b)
	}
}

func TestRecorder_FlushesInBatches(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	rec, err := Start(ctx, st, &model.Run{Workload: "life", Width: 4, Height: 4}, 3, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(rec.RunID(), "run_") {
		t.Errorf("RunID() = %q", rec.RunID())
	}

	for gen := int64(1); gen <= 4; gen++ {
		rec.ObservePass(event(gen))
	}
	if rec.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", rec.Pending())
	}
	stored, err := st.ListPassSamples(ctx, rec.RunID(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Errorf("stored %d samples before Close, want 3", len(stored))
	}

	if err := rec.Close(ctx, 40); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stored, _ = st.ListPassSamples(ctx, rec.RunID(), 10)
	if len(stored) != 4 {
		t.Errorf("stored %d samples after Close, want 4", len(stored))
	}
	if stored[0].Strategy != model.StrategyIncremental || stored[0].FramesSpanned != 2 {
		t.Errorf("newest sample = %+v", stored[0])
	}

	run, err := st.GetRun(ctx, rec.RunID())
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v, %v", run, err)
	}
	if !run.IsFinished() || run.Generations != 4 || run.Frames != 40 {
		t.Errorf("run = %+v", run)
	}

	rec.ObservePass(event(5))
	if rec.Pending() != 0 {
		t.Error("observation accepted after Close")
	}
	if err := rec.Close(ctx, 41); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

type failingStore struct {
	store.Store
	fail     bool
	attempts int
}

func (f *failingStore) RecordPasses(ctx context.Context, s []model.PassSample) error {
	f.attempts++
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.RecordPasses(ctx, s)
}

func TestRecorder_KeepsSamplesOnFailedFlush(t *testing.T) {
	fs := &failingStore{Store: testStore(t), fail: true}
	ctx := context.Background()
	rec, err := Start(ctx, fs, &model.Run{Workload: "life"}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec.ObservePass(event(1))
	rec.ObservePass(event(2))
	if rec.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", rec.Pending())
	}

	fs.fail = false
	if err := rec.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored, _ := fs.ListPassSamples(ctx, rec.RunID(), 10)
	if len(stored) != 2 {
		t.Errorf("stored %d samples, want 2", len(stored))
	}
}

func TestRecorder_ObservesOrchestrator(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	rec, err := Start(ctx, st, &model.Run{Workload: "life", Width: 3, Height: 3}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	orch, err := scheduler.New[life.Cell](life.NewWorld(grid.New(3, 3, life.Alive)),
		scheduler.WithClock(clk), scheduler.WithSeed(1), scheduler.WithObserver(rec))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		orch.AdvanceBounded(clock.Unbounded())
	}
	if err := rec.Close(ctx, 3); err != nil {
		t.Fatal(err)
	}

	sum, err := st.SummarizePasses(ctx, rec.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 3 {
		t.Errorf("Count = %d, want 3", sum.Count)
	}
	stored, _ := st.ListPassSamples(ctx, rec.RunID(), 1)
	if len(stored) != 1 || stored[0].Generation != 3 || stored[0].Units != 9 {
		t.Errorf("newest = %+v", stored)
	}
}

func TestRecorder_BacksOffAndCapsBuffer(t *testing.T) {
	fs := &failingStore{Store: testStore(t), fail: true}
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	rec, err := Start(ctx, fs, &model.Run{Workload: "life"}, 2, nil, WithClock(clk), WithMaxPending(5))
	if err != nil {
		t.Fatal(err)
	}

	// Generation 2 triggers the first failed write; the next waits 1s.
	for gen := int64(1); gen <= 6; gen++ {
		rec.ObservePass(event(gen))
	}
	if fs.attempts != 1 {
		t.Errorf("attempts = %d, want 1", fs.attempts)
	}
	if rec.Pending() != 5 || rec.Dropped() != 1 {
		t.Errorf("pending=%d dropped=%d, want 5 and 1", rec.Pending(), rec.Dropped())
	}

	// Second failure doubles the delay to 2s.
	clk.Advance(time.Second)
	rec.ObservePass(event(7))
	clk.Advance(time.Second)
	rec.ObservePass(event(8))
	if fs.attempts != 2 {
		t.Errorf("attempts = %d, want 2", fs.attempts)
	}

	fs.fail = false
	clk.Advance(time.Second)
	rec.ObservePass(event(9))
	if fs.attempts != 3 || rec.Pending() != 0 || rec.Dropped() != 0 {
		t.Errorf("after recovery: attempts=%d pending=%d dropped=%d", fs.attempts, rec.Pending(), rec.Dropped())
	}

	stored, err := fs.ListPassSamples(ctx, rec.RunID(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 5 || stored[0].Generation != 9 || stored[4].Generation != 5 {
		t.Errorf("stored %d samples, newest %+v", len(stored), stored)
	}
}
