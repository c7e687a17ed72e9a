package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/planner"
	"opsdash/internal/service/project"
	"opsdash/internal/workflow"
)

// stubProjects 只实现测试关心的方法，其余返回 errUnexpected
type stubProjects struct {
	create       func(in project.CreateInput) (*model.Project, error)
	get          func(id string) (*model.Project, error)
	updateStatus func(id string, s model.ProjectStatus) (*model.Project, error)
	editPhases   func(id string, edits []project.BoundaryEdit) (*model.Project, error)
	setProgress  func(pid, tid string, progress int) (*model.Task, error)
	moveTask     func(pid, tid string, s model.TaskStatus) (*model.Task, error)

	calls int
}

var errUnexpected = errors.New("unexpected call")

func (s *stubProjects) Create(_ context.Context, in project.CreateInput) (*model.Project, error) {
	s.calls++
	if s.create == nil {
		return nil, errUnexpected
	}
	return s.create(in)
}

func (s *stubProjects) List(context.Context) ([]model.Project, error) {
	s.calls++
	return []model.Project{}, nil
}

func (s *stubProjects) Get(_ context.Context, id string) (*model.Project, error) {
	s.calls++
	if s.get == nil {
		return nil, errUnexpected
	}
	return s.get(id)
}

func (s *stubProjects) Delete(context.Context, string) error {
	s.calls++
	return nil
}

func (s *stubProjects) UpdateStatus(_ context.Context, id string, status model.ProjectStatus) (*model.Project, error) {
	s.calls++
	if s.updateStatus == nil {
		return nil, errUnexpected
	}
	return s.updateStatus(id, status)
}

func (s *stubProjects) EditPhases(_ context.Context, id string, edits []project.BoundaryEdit) (*model.Project, error) {
	s.calls++
	if s.editPhases == nil {
		return nil, errUnexpected
	}
	return s.editPhases(id, edits)
}

func (s *stubProjects) AddTask(context.Context, string, project.TaskInput) (*model.Task, error) {
	s.calls++
	return nil, errUnexpected
}

func (s *stubProjects) UpdateTask(context.Context, string, string, project.TaskPatch) (*model.Task, error) {
	s.calls++
	return nil, errUnexpected
}

func (s *stubProjects) SetTaskProgress(_ context.Context, pid, tid string, progress int) (*model.Task, error) {
	s.calls++
	if s.setProgress == nil {
		return nil, errUnexpected
	}
	return s.setProgress(pid, tid, progress)
}

func (s *stubProjects) MoveTask(_ context.Context, pid, tid string, status model.TaskStatus) (*model.Task, error) {
	s.calls++
	if s.moveTask == nil {
		return nil, errUnexpected
	}
	return s.moveTask(pid, tid, status)
}

func (s *stubProjects) DashboardStats(context.Context) (*project.Stats, error) {
	s.calls++
	return &project.Stats{TotalProjects: 2, ActiveProjects: 1}, nil
}

func TestProjectHandler_CreateProject(t *testing.T) {
	var got project.CreateInput
	svc := &stubProjects{create: func(in project.CreateInput) (*model.Project, error) {
		got = in
		return &model.Project{
			ID:            "p-1",
			Name:          in.Name,
			StartDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			EstimatedDays: in.EstimatedDays.String(),
			Status:        model.ProjectPlanning,
		}, nil
	}}
	h := NewProjectHandler(svc, zap.NewNop())

	w := serve(http.MethodPost, "/projects", "/projects",
		[]byte(`{"name":"Acme","start_date":"2024-03-01","estimated_days":"30"}`), h.CreateProject)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "30", got.EstimatedDays.String())
	body := decode(t, w)
	assert.Equal(t, "p-1", body["id"])
	assert.Equal(t, "2024-03-01", body["start_date"])
	assert.EqualValues(t, 30, body["duration"])
}

func TestProjectHandler_CreateProjectNumericDuration(t *testing.T) {
	var got project.CreateInput
	svc := &stubProjects{create: func(in project.CreateInput) (*model.Project, error) {
		got = in
		return &model.Project{ID: "p-2", Name: in.Name, EstimatedDays: in.EstimatedDays.String()}, nil
	}}
	h := NewProjectHandler(svc, zap.NewNop())

	w := serve(http.MethodPost, "/projects", "/projects",
		[]byte(`{"name":"Acme","start_date":"2024-03-01","estimated_days":30}`), h.CreateProject)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "30", got.EstimatedDays.String())
	assert.EqualValues(t, 30, decode(t, w)["duration"])
}

func TestProjectHandler_CreateProjectRejectsNonNumericDuration(t *testing.T) {
	svc := &stubProjects{}
	h := NewProjectHandler(svc, zap.NewNop())

	w := serve(http.MethodPost, "/projects", "/projects",
		[]byte(`{"name":"Acme","start_date":"2024-03-01","estimated_days":"soon"}`), h.CreateProject)

	assertError(t, w, http.StatusBadRequest)
	assert.Zero(t, svc.calls)
}

func TestProjectHandler_CreateProjectErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		expose bool
	}{
		{"invalid duration", &planner.InvalidDurationError{Input: "abc"}, http.StatusBadRequest, true},
		{"invalid phase", &project.InvalidPhaseError{Index: 1, Reason: "unknown phase"}, http.StatusBadRequest, true},
		{"storage failure", errors.New("connection reset"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubProjects{create: func(project.CreateInput) (*model.Project, error) { return nil, tc.err }}
			h := NewProjectHandler(svc, zap.NewNop())

			w := serve(http.MethodPost, "/projects", "/projects", []byte(`{"name":"Acme"}`), h.CreateProject)
			msg := assertError(t, w, tc.status)
			if tc.expose {
				assert.Equal(t, tc.err.Error(), msg)
			} else {
				assert.Equal(t, "failed to create project", msg)
			}
		})
	}
}

func TestProjectHandler_GetProjectNotFound(t *testing.T) {
	svc := &stubProjects{get: func(id string) (*model.Project, error) {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}}
	h := NewProjectHandler(svc, zap.NewNop())

	w := serve(http.MethodGet, "/projects/:id", "/projects/missing", nil, h.GetProject)
	msg := assertError(t, w, http.StatusNotFound)
	assert.Contains(t, msg, "missing")
}

func TestProjectHandler_UpdateStatus(t *testing.T) {
	t.Run("unknown status rejected before the service", func(t *testing.T) {
		svc := &stubProjects{}
		h := NewProjectHandler(svc, zap.NewNop())

		w := serve(http.MethodPut, "/projects/:id/status", "/projects/p-1/status",
			[]byte(`{"status":"Archived"}`), h.UpdateStatus)
		assertError(t, w, http.StatusBadRequest)
		assert.Zero(t, svc.calls)
	})

	t.Run("forbidden transition", func(t *testing.T) {
		svc := &stubProjects{updateStatus: func(string, model.ProjectStatus) (*model.Project, error) {
			return nil, &workflow.TransitionError{From: model.ProjectCompleted, To: model.ProjectPlanning}
		}}
		h := NewProjectHandler(svc, zap.NewNop())

		w := serve(http.MethodPut, "/projects/:id/status", "/projects/p-1/status",
			[]byte(`{"status":"Planning"}`), h.UpdateStatus)
		assertError(t, w, http.StatusConflict)
	})

	t.Run("ok", func(t *testing.T) {
		svc := &stubProjects{updateStatus: func(id string, s model.ProjectStatus) (*model.Project, error) {
			return &model.Project{ID: id, Status: s}, nil
		}}
		h := NewProjectHandler(svc, zap.NewNop())

		w := serve(http.MethodPut, "/projects/:id/status", "/projects/p-1/status",
			[]byte(`{"status":"InProgress"}`), h.UpdateStatus)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "InProgress", decode(t, w)["status"])
	})
}

func TestProjectHandler_EditPhases(t *testing.T) {
	var got []project.BoundaryEdit
	svc := &stubProjects{editPhases: func(id string, edits []project.BoundaryEdit) (*model.Project, error) {
		got = edits
		return &model.Project{ID: id}, nil
	}}
	h := NewProjectHandler(svc, zap.NewNop())

	w := serve(http.MethodPut, "/projects/:id/phases", "/projects/p-1/phases",
		[]byte(`{"edits":[{"phase_id":"creation","field":"end_day","value":50}]}`), h.EditPhases)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, got, 1)
	assert.Equal(t, "creation", got[0].PhaseID)
	assert.Equal(t, planner.EndDay, got[0].Field)
	assert.Equal(t, 50, got[0].Value)

	w = serve(http.MethodPut, "/projects/:id/phases", "/projects/p-1/phases",
		[]byte(`{"edits":[]}`), h.EditPhases)
	assertError(t, w, http.StatusBadRequest)
}

func TestProjectHandler_SetTaskProgress(t *testing.T) {
	svc := &stubProjects{setProgress: func(pid, tid string, progress int) (*model.Task, error) {
		if progress > 100 {
			return nil, model.ErrProgressOutOfRange
		}
		return &model.Task{ID: tid, ProjectID: pid, Progress: progress, Status: model.TaskProgress}, nil
	}}
	h := NewProjectHandler(svc, zap.NewNop())
	route := "/projects/:id/tasks/:taskId/progress"

	w := serve(http.MethodPut, route, "/projects/p-1/tasks/t-1/progress", []byte(`{"progress":0}`), h.SetTaskProgress)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["progress"])

	w = serve(http.MethodPut, route, "/projects/p-1/tasks/t-1/progress", []byte(`{"progress":150}`), h.SetTaskProgress)
	assertError(t, w, http.StatusBadRequest)

	w = serve(http.MethodPut, route, "/projects/p-1/tasks/t-1/progress", []byte(`{}`), h.SetTaskProgress)
	assertError(t, w, http.StatusBadRequest)
}

func TestProjectHandler_MoveTask(t *testing.T) {
	svc := &stubProjects{moveTask: func(pid, tid string, s model.TaskStatus) (*model.Task, error) {
		if tid == "gone" {
			return nil, model.ErrNotFound
		}
		return &model.Task{ID: tid, ProjectID: pid, Status: s, Progress: 100}, nil
	}}
	h := NewProjectHandler(svc, zap.NewNop())
	route := "/projects/:id/tasks/:taskId/status"

	w := serve(http.MethodPut, route, "/projects/p-1/tasks/t-1/status", []byte(`{"status":"done"}`), h.MoveTask)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "done", decode(t, w)["status"])

	w = serve(http.MethodPut, route, "/projects/p-1/tasks/gone/status", []byte(`{"status":"done"}`), h.MoveTask)
	assertError(t, w, http.StatusNotFound)
}

func TestProjectHandler_DashboardStats(t *testing.T) {
	h := NewProjectHandler(&stubProjects{}, zap.NewNop())

	w := serve(http.MethodGet, "/dashboard/stats", "/dashboard/stats", nil, h.DashboardStats)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["total_projects"])
	assert.EqualValues(t, 1, body["active_projects"])
}
