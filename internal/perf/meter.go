package perf

import (
	"fmt"
	"time"

	"github.com/me/framestep/internal/clock"
)

// RateMeter counts events and publishes an events-per-second figure once
// per measurement interval.
type RateMeter struct {
	src      clock.Source
	interval time.Duration
	since    time.Time
	count    int
	last     float64
	measured bool
}

// NewRateMeter returns a meter that refreshes its rate every interval.
// A non-positive interval defaults to one second.
func NewRateMeter(src clock.Source, interval time.Duration) *RateMeter {
	if src == nil {
		src = clock.System{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RateMeter{src: src, interval: interval, since: src.Now()}
}

// Tick records one event.
func (m *RateMeter) Tick() {
	now := m.src.Now()
	if elapsed := now.Sub(m.since); elapsed >= m.interval {
		m.last = float64(m.count) / elapsed.Seconds()
		m.measured = true
		m.since = now
		m.count = 0
	}
	m.count++
}

// Rate returns the last published rate; ok is false before the first full
// interval has passed.
func (m *RateMeter) Rate() (rate float64, ok bool) {
	return m.last, m.measured
}

// FormatDuration formats a duration for humans: sub-millisecond values in
// microseconds, sub-second values in milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %02ds", m, s)
}
