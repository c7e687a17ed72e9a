// Package project owns the project aggregate: creation from a phase plan,
// task edits, status changes and the priority refresh that runs before
// every read.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/internal/planner"
	"opsdash/internal/priority"
	"opsdash/internal/taskgen"
	"opsdash/internal/workflow"
	"opsdash/pkg/logger"
	"opsdash/pkg/metrics"
	"opsdash/pkg/mq"
	"opsdash/pkg/trace"
)

type ProjectStore interface {
	// Create persists the project, its tasks and the outbox event atomically.
	Create(ctx context.Context, p *model.Project, routingKey string, payload any) error
	Get(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id string) error
}

type TaskStore interface {
	Insert(ctx context.Context, t *model.Task) error
	Update(ctx context.Context, t *model.Task) error
	UpdatePriority(ctx context.Context, projectID, taskID string, p model.Priority) error
	ListOpen(ctx context.Context) ([]model.Task, error)
}

type ProjectCache interface {
	GetProject(ctx context.Context, id string) (*model.Project, bool)
	SetProject(ctx context.Context, p *model.Project)
	InvalidateProject(ctx context.Context, id string)
}

type Service struct {
	projects  ProjectStore
	tasks     TaskStore
	cache     ProjectCache
	policy    *workflow.Policy
	generator *taskgen.Generator
	resolver  *priority.Resolver
	validate  *validator.Validate
	locks     *keyedMutex
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(projects ProjectStore, tasks TaskStore, cache ProjectCache, policy *workflow.Policy, logger *zap.Logger) *Service {
	s := &Service{
		projects: projects,
		tasks:    tasks,
		cache:    cache,
		policy:   policy,
		validate: validator.New(),
		locks:    newKeyedMutex(),
		logger:   logger,
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.policy == nil {
		s.policy = workflow.AllowAll()
	}
	return s.WithClock(time.Now)
}

// WithClock replaces the clock used for ids, timestamps and priorities.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.generator = taskgen.NewWithClock(now)
	s.resolver = priority.NewResolverWithClock(now)
	return s
}

// CreateInput is the project creation form.
type CreateInput struct {
	Name          string                  `json:"name" validate:"required,max=200"`
	Client        string                  `json:"client" validate:"max=200"`
	Description   string                  `json:"description" validate:"max=5000"`
	Budget        float64                 `json:"budget" validate:"gte=0"`
	StartDate     string                  `json:"start_date" validate:"required"`
	EstimatedDays json.Number             `json:"estimated_days"`
	Phases        []planner.PhaseInstance `json:"phases"`
}

// Create plans the phases, generates one task per enabled phase and stores
// everything together with a project.created event.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Project, error) {
	log := logger.WithTrace(ctx, s.logger)
	log.Debug("Creating project", zap.String("name", in.Name), zap.Int("phases", len(in.Phases)))

	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	start, err := taskgen.ParseDate(in.StartDate)
	if err != nil {
		return nil, err
	}

	phases, err := s.planPhases(in)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	now := s.now()
	p := &model.Project{
		ID:             uuid.NewString(),
		Name:           name,
		Client:         strings.TrimSpace(in.Client),
		Description:    in.Description,
		Budget:         in.Budget,
		Status:         model.ProjectPlanning,
		StartDate:      start,
		WorkflowPhases: planner.Snapshot(phases),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.SetDuration(planner.TotalDuration(phases))

	p.Tasks = s.generator.Generate(phases, start, name)
	for i := range p.Tasks {
		p.Tasks[i].ProjectID = p.ID
	}
	s.resolver.ApplyAll(p.Tasks)
	p.Refresh()

	phaseIDs := make([]string, len(p.WorkflowPhases))
	for i, ph := range p.WorkflowPhases {
		phaseIDs[i] = ph.ID
	}
	payload := mqcontracts.ProjectCreatedPayload{
		ProjectID:     p.ID,
		Name:          p.Name,
		Client:        p.Client,
		StartDate:     start.Format(model.DateLayout),
		EstimatedDays: p.Duration(),
		PhaseIDs:      phaseIDs,
		TaskCount:     len(p.Tasks),
		CreatedAt:     now,
		TraceID:       trace.FromContext(ctx),
	}
	if err := s.projects.Create(ctx, p, mq.RoutingProjectCreated, payload); err != nil {
		log.Error("Failed to create project", zap.Error(err), zap.String("project_id", p.ID))
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	metrics.AddTaskGeneration("phase", len(p.Tasks))
	s.cache.SetProject(ctx, p)

	log.Info("Project created",
		zap.String("project_id", p.ID),
		zap.String("estimated_days", p.EstimatedDays),
		zap.Int("task_count", len(p.Tasks)),
	)
	return p, nil
}

// planPhases uses the submitted plan, or the default templates rescaled to
// the requested duration when none was submitted.
func (s *Service) planPhases(in CreateInput) ([]planner.PhaseInstance, error) {
	if len(in.Phases) == 0 {
		duration := planner.ReferenceDuration
		if raw := in.EstimatedDays.String(); strings.TrimSpace(raw) != "" {
			d, err := planner.ParseDuration(raw)
			if err != nil {
				return nil, err
			}
			duration = d
		}
		return planner.Rescale(planner.DefaultTemplates(), duration)
	}

	phases := make([]planner.PhaseInstance, len(in.Phases))
	copy(phases, in.Phases)
	for i := range phases {
		if phases[i].ID == "" || strings.TrimSpace(phases[i].Label) == "" {
			return nil, &InvalidPhaseError{Index: i, Reason: "id and label are required"}
		}
		if phases[i].Category == "" {
			if t, ok := planner.FindTemplate(phases[i].ID); ok {
				phases[i].Category = t.Category
			}
		}
	}
	if err := planner.Validate(phases, planner.TotalDuration(phases)); err != nil {
		return nil, &InvalidPhaseError{Index: -1, Reason: err.Error()}
	}
	return phases, nil
}

// InvalidPhaseError reports a submitted phase plan that violates
// 1 <= start_day <= end_day.
type InvalidPhaseError struct {
	Index  int
	Reason string
}

func (e *InvalidPhaseError) Error() string {
	if e.Index < 0 {
		return "invalid phase plan: " + e.Reason
	}
	return fmt.Sprintf("invalid phase %d: %s", e.Index, e.Reason)
}

// Get returns the project with freshly resolved task priorities.
func (s *Service) Get(ctx context.Context, id string) (*model.Project, error) {
	p, cached := s.cache.GetProject(ctx, id)
	if !cached {
		var err error
		p, err = s.projects.Get(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	changed := s.refresh(ctx, p)
	if !cached || changed {
		s.cache.SetProject(ctx, p)
	}
	return p, nil
}

// List returns every project, newest first, with priorities resolved.
func (s *Service) List(ctx context.Context) ([]model.Project, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to list projects", zap.Error(err))
		return nil, err
	}
	for i := range projects {
		s.refresh(ctx, &projects[i])
	}
	return projects, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateProject(ctx, id)
	logger.WithTrace(ctx, s.logger).Info("Project deleted", zap.String("project_id", id))
	return nil
}

// UpdateStatus moves the project on the board if the policy allows it.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.ProjectStatus) (*model.Project, error) {
	return s.mutate(ctx, id, func(p *model.Project) error {
		if err := s.policy.Check(p.Status, status); err != nil {
			return err
		}
		p.Status = status
		return nil
	})
}

// BoundaryEdit changes one end of a stored phase.
type BoundaryEdit struct {
	PhaseID string           `json:"phase_id" validate:"required"`
	Field   planner.Boundary `json:"field" validate:"required,oneof=start_day end_day"`
	Value   int              `json:"value" validate:"min=1"`
}

// EditPhases applies boundary edits in order, recomputes the project
// duration and moves the dates of the matching phase tasks.
func (s *Service) EditPhases(ctx context.Context, id string, edits []BoundaryEdit) (*model.Project, error) {
	for i := range edits {
		if err := s.validate.Struct(edits[i]); err != nil {
			return nil, err
		}
	}

	var touched []*model.Task
	p, err := s.mutate(ctx, id, func(p *model.Project) error {
		phases := planner.FromSnapshot(p.WorkflowPhases)
		index := make(map[string]int, len(phases))
		for i, ph := range phases {
			index[ph.ID] = i
		}

		for _, e := range edits {
			i, ok := index[e.PhaseID]
			if !ok {
				return fmt.Errorf("phase %s: %w", e.PhaseID, model.ErrNotFound)
			}
			edited, err := planner.EditBoundary(phases[i], e.Field, e.Value)
			if err != nil {
				return err
			}
			phases[i] = edited
		}

		p.WorkflowPhases = planner.Snapshot(phases)
		p.SetDuration(planner.TotalDuration(phases))

		for _, ph := range phases {
			for i := range p.Tasks {
				t := &p.Tasks[i]
				if t.PhaseID != ph.ID {
					continue
				}
				start := model.AddDays(p.StartDate, ph.StartDay-1)
				due := model.AddDays(p.StartDate, ph.EndDay-1)
				if sameDate(t.StartDate, start) && sameDate(t.DueDate, due) {
					continue
				}
				t.StartDate, t.DueDate = &start, &due
				t.Description = fmt.Sprintf("Project phase: %s (days %d-%d)", ph.Label, ph.StartDay, ph.EndDay)
				touched = append(touched, t)
			}
		}
		return nil
	}, func(ctx context.Context, p *model.Project) error {
		for _, t := range touched {
			s.resolver.Apply(t)
			if err := s.tasks.Update(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func sameDate(t *time.Time, d time.Time) bool {
	return t != nil && t.Equal(d)
}

// mutate runs a read-modify-write on one project under its lock. Derived
// fields are recomputed before the optional after hooks and the final save.
func (s *Service) mutate(ctx context.Context, id string, change func(p *model.Project) error, after ...func(ctx context.Context, p *model.Project) error) (*model.Project, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	log := logger.WithTrace(ctx, s.logger).With(zap.String("project_id", id))

	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := change(p); err != nil {
		log.Debug("Project change rejected", zap.Error(err))
		return nil, err
	}
	for _, fn := range after {
		if err := fn(ctx, p); err != nil {
			log.Error("Failed to persist project tasks", zap.Error(err))
			return nil, err
		}
	}

	s.refresh(ctx, p)
	p.UpdatedAt = s.now()
	if err := s.projects.Update(ctx, p); err != nil {
		log.Error("Failed to update project", zap.Error(err))
		return nil, err
	}
	s.cache.InvalidateProject(ctx, id)

	log.Info("Project updated", zap.String("status", string(p.Status)), zap.Int("progress", p.Progress))
	return p, nil
}

// refresh re-resolves priorities, persists the ones that drifted and
// recomputes progress and current phase. Persist failures are logged only.
func (s *Service) refresh(ctx context.Context, p *model.Project) bool {
	changed := s.resolver.ApplyAll(p.Tasks)
	for _, i := range changed {
		t := p.Tasks[i]
		metrics.IncrementPriorityChange(string(t.Priority))
		if err := s.tasks.UpdatePriority(ctx, p.ID, t.ID, t.Priority); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Failed to persist resolved priority",
				zap.String("project_id", p.ID),
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}
	}
	p.Refresh()
	return len(changed) > 0
}

type noopCache struct{}

func (noopCache) GetProject(context.Context, string) (*model.Project, bool) { return nil, false }
func (noopCache) SetProject(context.Context, *model.Project)                {}
func (noopCache) InvalidateProject(context.Context, string)                 {}
