package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "Planning"
	ProjectInProgress ProjectStatus = "InProgress"
	ProjectInReview   ProjectStatus = "InReview"
	ProjectCompleted  ProjectStatus = "Completed"
)

// ProjectStatuses lists every status in board column order.
func ProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectPlanning, ProjectInProgress, ProjectInReview, ProjectCompleted}
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectInProgress, ProjectInReview, ProjectCompleted:
		return true
	}
	return false
}

// ProjectFinishedPhase is the current phase of a project with no open tasks.
const ProjectFinishedPhase = "Project finished"

// WorkflowPhase is the post-creation snapshot of an enabled phase.
type WorkflowPhase struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Category Category `json:"category,omitempty"`
	StartDay int      `json:"start_day"`
	EndDay   int      `json:"end_day"`
}

type Project struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Client         string          `json:"client"`
	Description    string          `json:"description"`
	Budget         float64         `json:"budget"`
	Status         ProjectStatus   `json:"status"`
	Progress       int             `json:"progress"`
	StartDate      time.Time       `json:"-"`
	EstimatedDays  string          `json:"estimated_days"`
	CurrentPhase   string          `json:"current_phase"`
	WorkflowPhases []WorkflowPhase `json:"workflow_phases"`
	Tasks          []Task          `json:"tasks"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p Project) MarshalJSON() ([]byte, error) {
	type plain Project
	return json.Marshal(struct {
		plain
		StartDate string `json:"start_date"`
		Duration  int    `json:"duration"`
	}{
		plain:     plain(p),
		StartDate: p.StartDate.Format(DateLayout),
		Duration:  p.Duration(),
	})
}

func (p *Project) UnmarshalJSON(data []byte) error {
	type plain Project
	var aux struct {
		*plain
		StartDate string `json:"start_date"`
	}
	aux.plain = (*plain)(p)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.StartDate == "" {
		return nil
	}
	d, err := time.Parse(DateLayout, aux.StartDate)
	if err != nil {
		return err
	}
	p.StartDate = d
	return nil
}

// Duration is EstimatedDays as an integer; 0 when unset or malformed.
func (p *Project) Duration() int {
	n, err := strconv.Atoi(p.EstimatedDays)
	if err != nil {
		return 0
	}
	return n
}

// SetDuration stores the derived total duration in its string form.
func (p *Project) SetDuration(days int) {
	p.EstimatedDays = strconv.Itoa(days)
}

// RecomputeProgress derives progress from tasks: round(100*done/total).
// Without tasks a Completed project reports 100 and any other keeps its
// stored value.
func (p *Project) RecomputeProgress() {
	if len(p.Tasks) == 0 {
		if p.Status == ProjectCompleted {
			p.Progress = 100
		}
		return
	}
	done := 0
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskDone {
			done++
		}
	}
	p.Progress = int(math.Round(100 * float64(done) / float64(len(p.Tasks))))
}

// RecomputeCurrentPhase picks the first task in progress, else the first
// task still to do.
func (p *Project) RecomputeCurrentPhase() {
	for _, want := range []TaskStatus{TaskProgress, TaskTodo} {
		for i := range p.Tasks {
			if p.Tasks[i].Status == want {
				p.CurrentPhase = p.Tasks[i].Title
				return
			}
		}
	}
	p.CurrentPhase = ProjectFinishedPhase
}

// Refresh recomputes every derived field after the task list changed.
func (p *Project) Refresh() {
	p.RecomputeProgress()
	p.RecomputeCurrentPhase()
}

// FindTask returns a pointer into p.Tasks or nil.
func (p *Project) FindTask(taskID string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return &p.Tasks[i]
		}
	}
	return nil
}
