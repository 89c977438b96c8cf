// Package limiter derives a per-call time ceiling from a maximum call rate
// and combines it with caller-supplied deadlines.
package limiter

import (
	"math"
	"time"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/pkg/model"
)

// DefaultSampleWindow is the number of recorded durations kept for
// observability.
const DefaultSampleWindow = 60

// RateLimiter caps the time a single call may spend.
type RateLimiter struct {
	maxDuration time.Duration
	limited     bool
	average     *perf.RunningAverage[time.Duration]
}

type settings struct {
	rate     *float64
	duration *time.Duration
	window   int
}

// Option configures a RateLimiter.
type Option func(*settings)

// WithMaximumRate limits calls to perSecond, i.e. a ceiling of 1s/perSecond.
func WithMaximumRate(perSecond float64) Option {
	return func(s *settings) { s.rate = &perSecond }
}

// WithMaximumDuration sets the per-call ceiling directly.
func WithMaximumDuration(d time.Duration) Option {
	return func(s *settings) { s.duration = &d }
}

// WithSampleWindow sets how many recorded durations are averaged.
func WithSampleWindow(n int) Option {
	return func(s *settings) { s.window = n }
}

// New builds a RateLimiter. Without a rate or duration the limiter is
// unlimited. A rate or duration that is not strictly positive and finite is
// rejected with a *model.ConfigError, as is setting both.
func New(opts ...Option) (*RateLimiter, error) {
	s := settings{window: DefaultSampleWindow}
	for _, opt := range opts {
		opt(&s)
	}

	if s.window < 1 {
		return nil, model.NewConfigError("sample_window", s.window, "must be at least 1")
	}
	l := &RateLimiter{average: perf.NewRunningAverage[time.Duration](s.window)}

	switch {
	case s.rate != nil && s.duration != nil:
		return nil, model.NewConfigError("maximum_rate", *s.rate, "cannot be combined with maximum_duration")
	case s.rate != nil:
		r := *s.rate
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return nil, model.NewConfigError("maximum_rate", r, "must be a positive finite number of calls per second")
		}
		ns := float64(time.Second) / r
		if ns >= math.MaxInt64 {
			return nil, model.NewConfigError("maximum_rate", r, "too low to express as a duration")
		}
		d := time.Duration(ns)
		if d <= 0 {
			return nil, model.NewConfigError("maximum_rate", r, "too high to express as a duration")
		}
		l.maxDuration, l.limited = d, true
	case s.duration != nil:
		if *s.duration <= 0 {
			return nil, model.NewConfigError("maximum_duration", *s.duration, "must be positive")
		}
		l.maxDuration, l.limited = *s.duration, true
	}
	return l, nil
}

// Unlimited returns a limiter with no ceiling.
func Unlimited() *RateLimiter {
	l, _ := New()
	return l
}

// EffectiveBudget returns the minimum of the ceiling and external.
func (l *RateLimiter) EffectiveBudget(external clock.Budget) clock.Budget {
	return l.Ceiling().Min(external)
}

// Ceiling returns the configured per-call ceiling.
func (l *RateLimiter) Ceiling() clock.Budget {
	if l == nil || !l.limited {
		return clock.Unbounded()
	}
	return clock.Within(l.maxDuration)
}

// MaximumDuration returns the ceiling and whether one is configured.
func (l *RateLimiter) MaximumDuration() (time.Duration, bool) {
	return l.Ceiling().Limit()
}

// MaximumRate returns the ceiling expressed in calls per second.
func (l *RateLimiter) MaximumRate() (float64, bool) {
	d, ok := l.MaximumDuration()
	if !ok {
		return 0, false
	}
	return perf.PerSecond(d)
}

// RecordDuration feeds an observed call duration into the limiter's window.
func (l *RateLimiter) RecordDuration(d time.Duration) {
	l.average.Record(d)
}

// AverageDuration returns the mean of recorded durations.
func (l *RateLimiter) AverageDuration() (time.Duration, bool) {
	return l.average.Average()
}

// IsOverRate reports whether the observed average is faster than the
// configured rate allows.
func (l *RateLimiter) IsOverRate() bool {
	ceiling, ok := l.MaximumDuration()
	if !ok {
		return false
	}
	avg, ok := l.AverageDuration()
	return ok && avg < ceiling
}
