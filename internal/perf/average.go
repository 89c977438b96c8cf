// Package perf holds the bounded sample windows and rate meters the
// scheduler uses to reason about pass cost.
package perf

import "time"

// Sample is any numeric kind that can be summed and divided by a count.
// time.Duration satisfies it through its int64 underlying type.
type Sample interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64
}

// RunningAverage is a fixed-capacity FIFO of the most recent samples.
// Older samples are unrecoverable once evicted.
type RunningAverage[T Sample] struct {
	buf  []T
	head int // index of the oldest sample
	n    int
}

// NewRunningAverage returns a window holding at most size samples.
// A size below 1 is treated as 1.
func NewRunningAverage[T Sample](size int) *RunningAverage[T] {
	if size < 1 {
		size = 1
	}
	return &RunningAverage[T]{buf: make([]T, size)}
}

// Record appends a sample, evicting the oldest once the window is full.
func (r *RunningAverage[T]) Record(sample T) {
	size := len(r.buf)
	if r.n < size {
		r.buf[(r.head+r.n)%size] = sample
		r.n++
		return
	}
	r.buf[r.head] = sample
	r.head = (r.head + 1) % size
}

// Average returns the mean of the retained samples; ok is false when no
// sample has been recorded.
func (r *RunningAverage[T]) Average() (avg T, ok bool) {
	if r.n == 0 {
		return avg, false
	}
	var sum T
	for i := 0; i < r.n; i++ {
		sum += r.buf[(r.head+i)%len(r.buf)]
	}
	return sum / T(r.n), true
}

// Len returns the number of retained samples.
func (r *RunningAverage[T]) Len() int { return r.n }

// WindowSize returns the capacity fixed at construction.
func (r *RunningAverage[T]) WindowSize() int { return len(r.buf) }

// Samples returns the retained samples, oldest first.
func (r *RunningAverage[T]) Samples() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset drops every sample.
func (r *RunningAverage[T]) Reset() {
	r.head, r.n = 0, 0
}

// PerSecond converts an average duration into a rate. ok is false for a
// zero duration.
func PerSecond(d time.Duration) (rate float64, ok bool) {
	if d <= 0 {
		return 0, false
	}
	return float64(time.Second) / float64(d), true
}
