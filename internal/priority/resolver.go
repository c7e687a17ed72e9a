// Package priority derives a task's priority from how much of its time
// window is left.
//
// The stored priority of a task is only a cache: callers must run the
// resolver before trusting it.
package priority

import (
	"math"
	"time"

	"opsdash/internal/model"
)

const day = 24 * time.Hour

// Resolve computes the priority at instant now for a window [start, due].
// A nil start means the window opens now. now is read on its own calendar
// (its wall clock), so a task is overdue here exactly when
// model.Task.Overdue says so.
func Resolve(start *time.Time, due time.Time, now time.Time) model.Priority {
	now = model.WallUTC(now)
	daysUntil := ceilDays(due.Sub(now))

	from := now
	if start != nil {
		from = *start
	}
	total := ceilDays(due.Sub(from))

	var pct float64
	if total > 0 {
		pct = float64(daysUntil) / float64(total) * 100
	}

	switch {
	case daysUntil < 0:
		return model.PriorityHigh
	case pct <= 25 || daysUntil <= 3:
		return model.PriorityHigh
	case pct <= 50 || daysUntil <= 7:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// ResolveTask applies Resolve to a task. Unscheduled tasks are low.
func ResolveTask(task model.Task, now time.Time) model.Priority {
	if task.DueDate == nil {
		return model.PriorityLow
	}
	return Resolve(task.StartDate, *task.DueDate, now)
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

type Resolver struct {
	clock func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{clock: time.Now}
}

func NewResolverWithClock(clock func() time.Time) *Resolver {
	return &Resolver{clock: clock}
}

// Now is the instant the resolver evaluates against.
func (r *Resolver) Now() time.Time {
	return r.clock()
}

// Apply overwrites task.Priority with the resolved value and reports whether
// it changed.
func (r *Resolver) Apply(task *model.Task) bool {
	resolved := ResolveTask(*task, r.clock())
	if task.Priority == resolved {
		return false
	}
	task.Priority = resolved
	return true
}

// ApplyAll resolves every task in place against a single instant and returns
// the indexes whose priority changed.
func (r *Resolver) ApplyAll(tasks []model.Task) []int {
	now := r.clock()
	var changed []int
	for i := range tasks {
		resolved := ResolveTask(tasks[i], now)
		if tasks[i].Priority != resolved {
			tasks[i].Priority = resolved
			changed = append(changed, i)
		}
	}
	return changed
}
