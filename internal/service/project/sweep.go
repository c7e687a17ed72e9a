package project

import (
	"context"

	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/pkg/metrics"
)

// PriorityChange is one task whose stored priority drifted.
type PriorityChange struct {
	Task model.Task
	From model.Priority
}

// SweepPriorities re-resolves every open scheduled task and persists the
// priorities that changed since they were last written. Projects whose
// tasks changed are evicted from the cache.
func (s *Service) SweepPriorities(ctx context.Context) ([]PriorityChange, error) {
	tasks, err := s.tasks.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	var changes []PriorityChange
	evicted := map[string]bool{}
	for i := range tasks {
		t := &tasks[i]
		from := t.Priority
		if !s.resolver.Apply(t) {
			continue
		}
		if err := s.tasks.UpdatePriority(ctx, t.ProjectID, t.ID, t.Priority); err != nil {
			s.logger.Error("Failed to persist swept priority",
				zap.String("project_id", t.ProjectID),
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncrementPriorityChange(string(t.Priority))
		changes = append(changes, PriorityChange{Task: *t, From: from})

		if !evicted[t.ProjectID] {
			s.cache.InvalidateProject(ctx, t.ProjectID)
			evicted[t.ProjectID] = true
		}
	}

	s.logger.Info("Priority sweep finished",
		zap.Int("scanned", len(tasks)),
		zap.Int("changed", len(changes)),
	)
	return changes, nil
}
