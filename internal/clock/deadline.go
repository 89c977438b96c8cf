package clock

import (
	"fmt"
	"time"
)

// Budget is an optional duration. The zero value is unbounded.
type Budget struct {
	limit   time.Duration
	bounded bool
}

// Unbounded returns a Budget with no limit.
func Unbounded() Budget { return Budget{} }

// Within returns a Budget limited to d. Negative d is clamped to zero.
func Within(d time.Duration) Budget {
	if d < 0 {
		d = 0
	}
	return Budget{limit: d, bounded: true}
}

// Limit returns the limit and whether one is set.
func (b Budget) Limit() (time.Duration, bool) {
	return b.limit, b.bounded
}

// IsBounded reports whether a limit is set.
func (b Budget) IsBounded() bool { return b.bounded }

// Min returns the tighter of two budgets. An unbounded side never wins.
func (b Budget) Min(o Budget) Budget {
	switch {
	case !b.bounded:
		return o
	case !o.bounded:
		return b
	case o.limit < b.limit:
		return o
	default:
		return b
	}
}

// Covers reports whether d fits strictly inside the budget.
func (b Budget) Covers(d time.Duration) bool {
	return !b.bounded || d < b.limit
}

func (b Budget) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return b.limit.String()
}

// Deadline is a start instant plus a budget.
type Deadline struct {
	src    Source
	start  time.Time
	budget Budget
}

// NewDeadline starts a deadline now. A nil src uses System.
func NewDeadline(src Source, budget Budget) Deadline {
	if src == nil {
		src = System{}
	}
	return Deadline{src: src, start: src.Now(), budget: budget}
}

// HasElapsed reports whether the budget is used up. An unbounded deadline
// never elapses.
func (d Deadline) HasElapsed() bool {
	limit, ok := d.budget.Limit()
	if !ok {
		return false
	}
	return since(d.src, d.start) >= limit
}

// Remaining returns the budget left, clamped at zero.
func (d Deadline) Remaining() Budget {
	limit, ok := d.budget.Limit()
	if !ok {
		return Unbounded()
	}
	return Within(limit - since(d.src, d.start))
}

// Spent returns the time since the deadline started.
func (d Deadline) Spent() time.Duration {
	return since(d.src, d.start)
}

// Budget returns the budget the deadline was started with.
func (d Deadline) Budget() Budget { return d.budget }

func (d Deadline) String() string {
	return fmt.Sprintf("deadline{budget=%s spent=%s}", d.budget, d.Spent())
}
