// Package telemetry records run metadata and pass timings into a store.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/store"
	"github.com/me/framestep/pkg/model"
)

const (
	// DefaultFlushEvery is the number of buffered samples that triggers a write.
	DefaultFlushEvery = 64
	// DefaultMaxPending caps the buffer while the store is failing. The
	// oldest samples are dropped first.
	DefaultMaxPending = 4096

	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the time source used for retry backoff.
func WithClock(src clock.Source) Option {
	return func(r *Recorder) { r.clk = src }
}

// WithMaxPending sets how many samples may wait for a failing store.
func WithMaxPending(n int) Option {
	return func(r *Recorder) { r.maxPending = n }
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Recorder buffers pass samples for one run and writes them to a store in
// batches. It implements scheduler.PassObserver.
type Recorder struct {
	store      store.Store
	run        *model.Run
	flushEvery int
	maxPending int
	clk        clock.Source
	logger     *slog.Logger

	mu          sync.Mutex
	buf         []model.PassSample
	generations int64
	closed      bool
	failures    int
	retryAt     time.Time
	dropped     int64 // since the last successful write
}

// Start creates the run in st and returns a recorder for it. An empty
// run.ID is filled with NewRunID.
func Start(ctx context.Context, st store.Store, run *model.Run, flushEvery int, logger *slog.Logger, opts ...Option) (*Recorder, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if flushEvery < 1 {
		flushEvery = DefaultFlushEvery
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	r := &Recorder{
		store:      st,
		run:        run,
		flushEvery: flushEvery,
		maxPending: DefaultMaxPending,
		clk:        clock.System{},
		logger:     logging.Component(logger, "telemetry").With("run_id", run.ID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxPending < r.flushEvery {
		r.maxPending = r.flushEvery
	}
	r.logger.Info("run started", "workload", run.Workload, "width", run.Width, "height", run.Height)
	return r, nil
}

// RunID returns the recorded run's ID.
func (r *Recorder) RunID() string { return r.run.ID }

// ObservePass buffers ev and flushes once FlushEvery samples are pending.
// After a failed write the next attempt waits with exponential backoff, and
// the buffer keeps at most MaxPending samples, dropping the oldest.
func (r *Recorder) ObservePass(ev scheduler.PassEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.generations = ev.Generation
	r.buf = append(r.buf, model.PassSample{
		RunID:         r.run.ID,
		Generation:    ev.Generation,
		Duration:      ev.Duration,
		FramesSpanned: ev.FramesSpanned,
		Units:         ev.Units,
		Strategy:      ev.Strategy,
		RecordedAt:    ev.CompletedAt.UTC(),
	})
	if n := len(r.buf) - r.maxPending; n > 0 {
		if r.dropped == 0 {
			r.logger.Warn("store unavailable, dropping oldest pass samples", "max_pending", r.maxPending)
		}
		r.buf = append(r.buf[:0], r.buf[n:]...)
		r.dropped += int64(n)
	}
	if len(r.buf) < r.flushEvery || r.clk.Now().Before(r.retryAt) {
		return
	}
	if err := r.flushLocked(context.Background()); err != nil {
		delay := r.retryDelay()
		r.retryAt = r.clk.Now().Add(delay)
		r.logger.Error("flush pass samples", "error", err, "pending", len(r.buf), "retry_in", delay)
	}
}

// retryDelay doubles with every consecutive failure, capped at 30 seconds.
func (r *Recorder) retryDelay() time.Duration {
	delay := baseRetryDelay
	for i := 1; i < r.failures && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// Flush writes every buffered sample, ignoring any retry backoff.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.RecordPasses(ctx, r.buf); err != nil {
		r.failures++
		return err
	}
	r.logger.Debug("pass samples flushed", "count", len(r.buf))
	if r.dropped > 0 {
		r.logger.Warn("store recovered", "dropped_samples", r.dropped)
	}
	r.buf = r.buf[:0]
	r.failures = 0
	r.retryAt = time.Time{}
	r.dropped = 0
	return nil
}

// Pending returns the number of buffered samples.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Dropped returns how many samples were discarded since the last
// successful write.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close flushes the buffer and marks the run finished with the given frame
// count. Later observations are dropped.
func (r *Recorder) Close(ctx context.Context, frames int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.flushLocked(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	if err := r.store.FinishRun(ctx, r.run.ID, time.Now().UTC(), r.generations, frames); err != nil {
		return err
	}
	r.logger.Info("run finished", "generations", r.generations, "frames", frames)
	return nil
}
