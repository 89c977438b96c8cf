// Package clock provides the time sources, stopwatches and deadlines used by
// the scheduler.
//
// All scheduler code reads time through a Source so tests can drive time
// explicitly with a Manual clock instead of sleeping.
package clock

import (
	"sync"
	"time"
)

// Source yields the current instant.
type Source interface {
	Now() time.Time
}

// System reads the wall clock. time.Now carries a monotonic reading, so
// differences between two System instants never go backwards.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Manual is a Source that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative d moves it backwards, which
// is how tests simulate a misbehaving source.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set positions the clock at t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// since returns now-ref, clamped to zero.
func since(src Source, ref time.Time) time.Duration {
	d := src.Now().Sub(ref)
	if d < 0 {
		return 0
	}
	return d
}
