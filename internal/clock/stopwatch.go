package clock

import (
	"sync"
	"time"
)

// Stopwatch measures time since its last reset.
type Stopwatch struct {
	src   Source
	mu    sync.Mutex
	since time.Time
}

// NewStopwatch returns a Stopwatch started now. A nil src uses System.
func NewStopwatch(src Source) *Stopwatch {
	if src == nil {
		src = System{}
	}
	return &Stopwatch{src: src, since: src.Now()}
}

// Elapsed returns the time since the last reset without resetting.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return since(s.src, s.since)
}

// ElapsedAndReset returns the time since the last reset and restarts the
// stopwatch from the same instant the measurement was taken at.
func (s *Stopwatch) ElapsedAndReset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.src.Now()
	d := now.Sub(s.since)
	s.since = now
	if d < 0 {
		return 0
	}
	return d
}

// Reset restarts the stopwatch.
func (s *Stopwatch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = s.src.Now()
}

// Started returns the instant of the last reset.
func (s *Stopwatch) Started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}
