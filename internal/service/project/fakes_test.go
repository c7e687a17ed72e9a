package project

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"opsdash/internal/model"
)

type recordedEvent struct {
	routingKey string
	payload    any
}

// memStore 内存实现，同时满足 ProjectStore 与 TaskStore
type memStore struct {
	mu       sync.Mutex
	projects map[string]model.Project
	tasks    map[string][]model.Task
	events   []recordedEvent

	priorityWrites int
	failCreate     error
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[string]model.Project{},
		tasks:    map[string][]model.Task{},
	}
}

func cloneTask(t model.Task) model.Task {
	t.Labels = append([]string(nil), t.Labels...)
	if t.StartDate != nil {
		d := *t.StartDate
		t.StartDate = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

func (m *memStore) Create(_ context.Context, p *model.Project, routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	stored := *p
	stored.Tasks = nil
	stored.WorkflowPhases = append([]model.WorkflowPhase(nil), p.WorkflowPhases...)
	m.projects[p.ID] = stored
	for _, t := range p.Tasks {
		m.tasks[p.ID] = append(m.tasks[p.ID], cloneTask(t))
	}
	m.events = append(m.events, recordedEvent{routingKey: routingKey, payload: payload})
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *memStore) getLocked(id string) (*model.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	p.WorkflowPhases = append([]model.WorkflowPhase(nil), p.WorkflowPhases...)
	p.Tasks = []model.Task{}
	for _, t := range m.tasks[id] {
		p.Tasks = append(p.Tasks, cloneTask(t))
	}
	return &p, nil
}

func (m *memStore) List(_ context.Context) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []model.Project{}
	for _, id := range ids {
		p, _ := m.getLocked(id)
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return model.ErrNotFound
	}
	stored := *p
	stored.Tasks = nil
	m.projects[p.ID] = stored
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	delete(m.projects, id)
	delete(m.tasks, id)
	return nil
}

func (m *memStore) Insert(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ProjectID] = append(m.tasks[t.ProjectID], cloneTask(*t))
	return nil
}

func (m *memStore) UpdateTask(t *model.Task) error {
	for i, existing := range m.tasks[t.ProjectID] {
		if existing.ID == t.ID {
			m.tasks[t.ProjectID][i] = cloneTask(*t)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) UpdatePriority(_ context.Context, projectID, taskID string, p model.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks[projectID] {
		if m.tasks[projectID][i].ID == taskID {
			m.tasks[projectID][i].Priority = p
			m.priorityWrites++
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) ListOpen(_ context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Task{}
	for _, tasks := range m.tasks {
		for _, t := range tasks {
			if t.Status != model.TaskDone && t.DueDate != nil {
				out = append(out, cloneTask(t))
			}
		}
	}
	return out, nil
}

// taskStore adapts memStore to TaskStore; Update clashes with the project
// method of the same name.
type taskStore struct{ *memStore }

func (s taskStore) Update(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UpdateTask(t)
}

type spyCache struct {
	mu          sync.Mutex
	items       map[string]model.Project
	invalidated []string
}

func newSpyCache() *spyCache {
	return &spyCache{items: map[string]model.Project{}}
}

func (c *spyCache) GetProject(_ context.Context, id string) (*model.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok {
		return nil, false
	}
	tasks := make([]model.Task, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = cloneTask(t)
	}
	p.Tasks = tasks
	return &p, true
}

func (c *spyCache) SetProject(_ context.Context, p *model.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := *p
	stored.Tasks = make([]model.Task, len(p.Tasks))
	for i, t := range p.Tasks {
		stored.Tasks[i] = cloneTask(t)
	}
	c.items[p.ID] = stored
}

func (c *spyCache) InvalidateProject(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}
