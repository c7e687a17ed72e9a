package mq

import "time"

// ProjectCreatedPayload project.created 事件
type ProjectCreatedPayload struct {
	ProjectID     string    `json:"project_id"`
	Name          string    `json:"name"`
	Client        string    `json:"client"`
	StartDate     string    `json:"start_date"`
	EstimatedDays int       `json:"estimated_days"`
	PhaseIDs      []string  `json:"phase_ids"`
	TaskCount     int       `json:"task_count"`
	CreatedAt     time.Time `json:"created_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// TaskPriorityChangedPayload task.priority_changed 事件（由优先级巡检发出）
type TaskPriorityChangedPayload struct {
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	DueDate   string    `json:"due_date,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}
