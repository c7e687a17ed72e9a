// Package taskgen turns planned phases into dated project tasks.
package taskgen

import (
	"fmt"
	"strings"
	"time"

	"opsdash/internal/model"
	"opsdash/internal/planner"
)

// InvalidDateError reports a date that is not an ISO calendar date.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Input)
}

// InvalidCategoryError reports a category outside the fixed taxonomy.
type InvalidCategoryError struct {
	Category string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid task category %q", e.Category)
}

// ParseDate parses YYYY-MM-DD. Nothing else is accepted.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &InvalidDateError{Input: raw}
	}
	return d, nil
}

type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock is used by tests and by callers that need stable ids.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate creates one task per enabled phase, in phase order. Day N of the
// project is projectStart + (N-1) days.
func (g *Generator) Generate(phases []planner.PhaseInstance, projectStart time.Time, projectName string) []model.Task {
	enabled := planner.Enabled(phases)
	tasks := make([]model.Task, 0, len(enabled))
	if len(enabled) == 0 {
		return tasks
	}

	now := g.now()
	stamp := now.UnixMilli()
	for i, phase := range enabled {
		start := model.AddDays(projectStart, phase.StartDay-1)
		due := model.AddDays(projectStart, phase.EndDay-1)

		category := phase.Category
		if category == "" {
			if t, ok := planner.FindTemplate(phase.ID); ok {
				category = t.Category
			} else {
				category = model.CategoryCustom
			}
		}

		tasks = append(tasks, model.Task{
			ID:             fmt.Sprintf("%s-%d-%d", phase.ID, stamp, i),
			PhaseID:        phase.ID,
			Title:          phase.Label,
			Description:    fmt.Sprintf("Project phase: %s (days %d-%d)", phase.Label, phase.StartDay, phase.EndDay),
			Category:       category,
			Labels:         []string{string(category), projectName},
			StartDate:      &start,
			DueDate:        &due,
			Status:         model.TaskTodo,
			Priority:       model.PriorityLow,
			Progress:       0,
			EstimatedHours: model.DefaultEstimatedHours,
			Position:       i,
			CreatedAt:      now,
		})
	}
	return tasks
}

// CustomTaskInput describes an ad hoc task added to an existing project.
type CustomTaskInput struct {
	ProjectName    string
	Title          string
	Description    string
	Category       string
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours float64
	Assignee       string
}

// CreateCustomTask builds a task outside the phase plan. A missing due date
// leaves the task unscheduled.
func (g *Generator) CreateCustomTask(in CustomTaskInput) (model.Task, error) {
	category := model.Category(in.Category)
	if category == "" {
		category = model.CategoryCustom
	}
	if !category.Valid() {
		return model.Task{}, &InvalidCategoryError{Category: in.Category}
	}

	hours := in.EstimatedHours
	if hours <= 0 {
		hours = model.DefaultEstimatedHours
	}

	labels := []string{string(category)}
	if in.ProjectName != "" {
		labels = append(labels, in.ProjectName)
	}

	now := g.now()
	return model.Task{
		ID:             fmt.Sprintf("custom-%d", now.UnixMilli()),
		Title:          in.Title,
		Description:    in.Description,
		Category:       category,
		Labels:         labels,
		StartDate:      dateOnly(in.StartDate),
		DueDate:        dateOnly(in.DueDate),
		Status:         model.TaskTodo,
		Priority:       model.PriorityLow,
		EstimatedHours: hours,
		Assignee:       in.Assignee,
		CreatedAt:      now,
	}, nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.DateOnly(*t)
	return &d
}
