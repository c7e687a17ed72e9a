package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskTodo     TaskStatus = "todo"
	TaskProgress TaskStatus = "progress"
	TaskReview   TaskStatus = "review"
	TaskDone     TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities low < medium < high.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Category is the fixed task taxonomy. Phase tasks inherit the category of
// their template; ad hoc tasks may also use CategoryCustom.
type Category string

const (
	CategoryAdministrative    Category = "Administrative"
	CategoryPlanning          Category = "Planning"
	CategoryConceptualization Category = "Conceptualization"
	CategoryDevelopment       Category = "Development"
	CategoryApproval          Category = "Approval"
	CategoryDelivery          Category = "Delivery"
	CategoryCustom            Category = "Custom"
)

// Categories lists the taxonomy in display order.
func Categories() []Category {
	return []Category{
		CategoryAdministrative,
		CategoryPlanning,
		CategoryConceptualization,
		CategoryDevelopment,
		CategoryApproval,
		CategoryDelivery,
		CategoryCustom,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// DefaultEstimatedHours is assigned to every new task.
const DefaultEstimatedHours = 8

var (
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")
	ErrUnknownTaskStatus  = errors.New("unknown task status")
)

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	PhaseID        string     `json:"phase_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       Category   `json:"category"`
	Labels         []string   `json:"labels"`
	StartDate      *time.Time `json:"-"`
	DueDate        *time.Time `json:"-"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	Progress       int        `json:"progress"`
	EstimatedHours float64    `json:"estimated_hours"`
	ActualHours    float64    `json:"actual_hours"`
	Assignee       string     `json:"assignee,omitempty"`
	Position       int        `json:"position"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MarshalJSON renders dates as ISO calendar dates and adds display labels;
// the labels exist only on the wire.
func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		StartDate  string `json:"start_date,omitempty"`
		DueDate    string `json:"due_date,omitempty"`
		StartLabel string `json:"start_label,omitempty"`
		DueLabel   string `json:"due_label"`
	}{
		plain:      plain(t),
		StartDate:  isoOrEmpty(t.StartDate),
		DueDate:    isoOrEmpty(t.DueDate),
		StartLabel: startLabel(t.StartDate),
		DueLabel:   ShortLabel(t.DueDate),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON so cached tasks
// round-trip.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var aux struct {
		*plain
		StartDate string `json:"start_date"`
		DueDate   string `json:"due_date"`
	}
	aux.plain = (*plain)(t)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if t.StartDate, err = parseOptionalDate(aux.StartDate); err != nil {
		return err
	}
	t.DueDate, err = parseOptionalDate(aux.DueDate)
	return err
}

func startLabel(t *time.Time) string {
	if t == nil {
		return ""
	}
	return ShortLabel(t)
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &d, nil
}

// SetProgress applies slider semantics: the status follows the progress
// value (0 → todo, 100 → done, anything else → progress).
func (t *Task) SetProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return ErrProgressOutOfRange
	}
	t.Progress = progress
	switch {
	case progress == 100:
		t.Status = TaskDone
	case progress > 0:
		t.Status = TaskProgress
	default:
		t.Status = TaskTodo
	}
	return nil
}

// MoveTo is an explicit status change (kanban drag). Progress is pulled to
// keep todo ⟺ 0 and done ⟺ 100; progress and review keep an intermediate
// value in [1, 99].
func (t *Task) MoveTo(status TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTaskStatus, status)
	}
	t.Status = status
	switch status {
	case TaskTodo:
		t.Progress = 0
	case TaskDone:
		t.Progress = 100
	default:
		t.Progress = min(max(t.Progress, 1), 99)
	}
	return nil
}

// Open reports whether the task still counts toward outstanding work.
func (t *Task) Open() bool {
	return t.Status != TaskDone
}

// Overdue reports whether the due date has passed before now and the task
// is not done.
func (t *Task) Overdue(now time.Time) bool {
	return t.Open() && t.DueDate != nil && t.DueDate.Before(DateOnly(now))
}
