package limiter

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/me/framestep/internal/clock"
	"github.com/me/framestep/pkg/model"
)

func TestEffectiveBudget(t *testing.T) {
	capped, err := New(WithMaximumDuration(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		limiter  *RateLimiter
		external clock.Budget
		want     clock.Budget
	}{
		{"ceiling and tighter constraint", capped, clock.Within(50 * time.Millisecond), clock.Within(50 * time.Millisecond)},
		{"ceiling and looser constraint", capped, clock.Within(time.Second), clock.Within(100 * time.Millisecond)},
		{"ceiling only", capped, clock.Unbounded(), clock.Within(100 * time.Millisecond)},
		{"constraint only", Unlimited(), clock.Within(5 * time.Millisecond), clock.Within(5 * time.Millisecond)},
		{"neither", Unlimited(), clock.Unbounded(), clock.Unbounded()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limiter.EffectiveBudget(tt.external); got != tt.want {
				t.Errorf("EffectiveBudget(%s) = %s, want %s", tt.external, got, tt.want)
			}
		})
	}
}

func TestWithMaximumRate_DerivesDuration(t *testing.T) {
	l, err := New(WithMaximumRate(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, ok := l.MaximumDuration()
	if !ok || d != 250*time.Millisecond {
		t.Errorf("MaximumDuration() = %v,%v, want 250ms,true", d, ok)
	}
	rate, ok := l.MaximumRate()
	if !ok || rate != 4 {
		t.Errorf("MaximumRate() = %v,%v, want 4,true", rate, ok)
	}
}

func TestNew_RejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero rate", []Option{WithMaximumRate(0)}},
		{"negative rate", []Option{WithMaximumRate(-1)}},
		{"NaN rate", []Option{WithMaximumRate(math.NaN())}},
		{"infinite rate", []Option{WithMaximumRate(math.Inf(1))}},
		{"zero duration", []Option{WithMaximumDuration(0)}},
		{"negative duration", []Option{WithMaximumDuration(-time.Millisecond)}},
		{"rate and duration", []Option{WithMaximumRate(60), WithMaximumDuration(time.Millisecond)}},
		{"empty window", []Option{WithSampleWindow(0)}},
		{"rate too high", []Option{WithMaximumRate(1e10)}},
		{"rate too low", []Option{WithMaximumRate(1e-10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.opts...)
			if err == nil {
				t.Fatalf("New() = %+v, want error", l)
			}
			if !model.IsConfigError(err) {
				t.Errorf("error %v is not a ConfigError", err)
			}
		})
	}
}

func TestNew_RateRangeMessages(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1e10, "too high"},
		{1e-10, "too low"},
	}
	for _, tt := range tests {
		_, err := New(WithMaximumRate(tt.rate))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("New(WithMaximumRate(%g)) error = %v, want %q", tt.rate, err, tt.want)
		}
	}

	// One call every 200 years still fits.
	l, err := New(WithMaximumRate(1.0 / (200 * 365 * 24 * 3600)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d, ok := l.MaximumDuration(); !ok || d < 200*365*24*time.Hour-time.Second {
		t.Errorf("MaximumDuration() = %v,%v", d, ok)
	}
}

func TestRecordDuration(t *testing.T) {
	l, err := New(WithMaximumRate(10), WithSampleWindow(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := l.AverageDuration(); ok {
		t.Error("AverageDuration() ok before any sample")
	}
	l.RecordDuration(10 * time.Millisecond)
	l.RecordDuration(30 * time.Millisecond)
	l.RecordDuration(50 * time.Millisecond)
	avg, ok := l.AverageDuration()
	if !ok || avg != 40*time.Millisecond {
		t.Errorf("AverageDuration() = %v,%v, want 40ms,true", avg, ok)
	}
	if !l.IsOverRate() {
		t.Error("IsOverRate() = false with 40ms average under 100ms ceiling")
	}
}

func TestUnlimited_NeverOverRate(t *testing.T) {
	l := Unlimited()
	l.RecordDuration(time.Nanosecond)
	if l.IsOverRate() {
		t.Error("unlimited limiter reported over rate")
	}
	if _, ok := l.MaximumRate(); ok {
		t.Error("unlimited limiter has a rate")
	}
}
