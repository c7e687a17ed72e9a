package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/taskgen"
	"opsdash/pkg/logger"
	"opsdash/pkg/metrics"
)

// TaskInput is the form for an ad hoc task. Dates are ISO strings; an empty
// due date leaves the task unscheduled.
type TaskInput struct {
	Title          string  `json:"title" validate:"required,max=200"`
	Description    string  `json:"description" validate:"max=5000"`
	Category       string  `json:"category"`
	StartDate      string  `json:"start_date"`
	DueDate        string  `json:"due_date"`
	EstimatedHours float64 `json:"estimated_hours" validate:"gte=0"`
	Assignee       string  `json:"assignee" validate:"max=100"`
}

// AddTask appends a custom task to the project.
func (s *Service) AddTask(ctx context.Context, projectID string, in TaskInput) (*model.Task, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	start, err := optionalDate(in.StartDate)
	if err != nil {
		return nil, err
	}
	due, err := optionalDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	var created model.Task
	_, err = s.mutate(ctx, projectID, func(p *model.Project) error {
		task, err := s.generator.CreateCustomTask(taskgen.CustomTaskInput{
			ProjectName:    p.Name,
			Title:          strings.TrimSpace(in.Title),
			Description:    in.Description,
			Category:       in.Category,
			StartDate:      start,
			DueDate:        due,
			EstimatedHours: in.EstimatedHours,
			Assignee:       in.Assignee,
		})
		if err != nil {
			return err
		}
		task.ProjectID = p.ID
		task.Position = len(p.Tasks)
		if p.FindTask(task.ID) != nil {
			// 同一毫秒内的重复 ID
			task.ID = fmt.Sprintf("%s-%d", task.ID, task.Position)
		}
		s.resolver.Apply(&task)
		p.Tasks = append(p.Tasks, task)
		created = task
		return nil
	}, func(ctx context.Context, p *model.Project) error {
		return s.tasks.Insert(ctx, &created)
	})
	if err != nil {
		return nil, err
	}

	metrics.AddTaskGeneration("custom", 1)
	logger.WithTrace(ctx, s.logger).Info("Custom task added",
		zap.String("project_id", projectID),
		zap.String("task_id", created.ID),
	)
	return &created, nil
}

// TaskPatch carries the editable task fields; nil means unchanged. An empty
// due date string clears the due date.
type TaskPatch struct {
	Title          *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string  `json:"description" validate:"omitempty,max=5000"`
	Category       *string  `json:"category"`
	StartDate      *string  `json:"start_date"`
	DueDate        *string  `json:"due_date"`
	EstimatedHours *float64 `json:"estimated_hours" validate:"omitempty,gte=0"`
	ActualHours    *float64 `json:"actual_hours" validate:"omitempty,gte=0"`
	Assignee       *string  `json:"assignee" validate:"omitempty,max=100"`
}

func (s *Service) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) (*model.Task, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, err
	}
	return s.mutateTask(ctx, projectID, taskID, func(t *model.Task) error {
		if patch.Category != nil {
			c := model.Category(*patch.Category)
			if !c.Valid() {
				return &taskgen.InvalidCategoryError{Category: *patch.Category}
			}
			if len(t.Labels) > 0 && t.Labels[0] == string(t.Category) {
				t.Labels[0] = string(c)
			}
			t.Category = c
		}
		if patch.StartDate != nil {
			d, err := optionalDate(*patch.StartDate)
			if err != nil {
				return err
			}
			t.StartDate = d
		}
		if patch.DueDate != nil {
			d, err := optionalDate(*patch.DueDate)
			if err != nil {
				return err
			}
			t.DueDate = d
		}
		if patch.Title != nil {
			t.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.EstimatedHours != nil {
			t.EstimatedHours = *patch.EstimatedHours
		}
		if patch.ActualHours != nil {
			t.ActualHours = *patch.ActualHours
		}
		if patch.Assignee != nil {
			t.Assignee = *patch.Assignee
		}
		return nil
	})
}

// SetTaskProgress applies slider semantics: status follows progress.
func (s *Service) SetTaskProgress(ctx context.Context, projectID, taskID string, progress int) (*model.Task, error) {
	return s.mutateTask(ctx, projectID, taskID, func(t *model.Task) error {
		return t.SetProgress(progress)
	})
}

// MoveTask is an explicit status change from the kanban board.
func (s *Service) MoveTask(ctx context.Context, projectID, taskID string, status model.TaskStatus) (*model.Task, error) {
	return s.mutateTask(ctx, projectID, taskID, func(t *model.Task) error {
		return t.MoveTo(status)
	})
}

func (s *Service) mutateTask(ctx context.Context, projectID, taskID string, change func(t *model.Task) error) (*model.Task, error) {
	var task *model.Task
	_, err := s.mutate(ctx, projectID, func(p *model.Project) error {
		task = p.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		if err := change(task); err != nil {
			return err
		}
		s.resolver.Apply(task)
		return nil
	}, func(ctx context.Context, p *model.Project) error {
		return s.tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	out := *task
	logger.WithTrace(ctx, s.logger).Info("Task updated",
		zap.String("project_id", projectID),
		zap.String("task_id", taskID),
		zap.String("status", string(out.Status)),
		zap.Int("progress", out.Progress),
	)
	return &out, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := taskgen.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
