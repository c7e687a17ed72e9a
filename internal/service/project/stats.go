package project

import (
	"context"
	"math"
	"time"

	"opsdash/internal/model"
)

// Stats is the project half of the dashboard.
type Stats struct {
	TotalProjects        int     `json:"total_projects"`
	ActiveProjects       int     `json:"active_projects"`
	CompletedProjects    int     `json:"completed_projects"`
	OverdueTasks         int     `json:"overdue_tasks"`
	HighPriorityTasks    int     `json:"high_priority_tasks"`
	AverageEstimatedDays float64 `json:"average_estimated_days"`
	AverageProgress      float64 `json:"average_progress"`
}

func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	projects, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(projects, s.now()), nil
}

func computeStats(projects []model.Project, now time.Time) *Stats {
	st := &Stats{TotalProjects: len(projects)}
	if len(projects) == 0 {
		return st
	}

	var days, progress int
	for i := range projects {
		p := &projects[i]
		if p.Status == model.ProjectCompleted {
			st.CompletedProjects++
		} else {
			st.ActiveProjects++
		}
		days += p.Duration()
		progress += p.Progress

		for j := range p.Tasks {
			t := &p.Tasks[j]
			if t.Overdue(now) {
				st.OverdueTasks++
			}
			if t.Open() && t.Priority == model.PriorityHigh {
				st.HighPriorityTasks++
			}
		}
	}
	st.AverageEstimatedDays = round1(float64(days) / float64(len(projects)))
	st.AverageProgress = round1(float64(progress) / float64(len(projects)))
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
