package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/service/project"
)

type ProjectService interface {
	Create(ctx context.Context, in project.CreateInput) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status model.ProjectStatus) (*model.Project, error)
	EditPhases(ctx context.Context, id string, edits []project.BoundaryEdit) (*model.Project, error)
	AddTask(ctx context.Context, projectID string, in project.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID string, patch project.TaskPatch) (*model.Task, error)
	SetTaskProgress(ctx context.Context, projectID, taskID string, progress int) (*model.Task, error)
	MoveTask(ctx context.Context, projectID, taskID string, status model.TaskStatus) (*model.Task, error)
	DashboardStats(ctx context.Context) (*project.Stats, error)
}

type ProjectHandler struct {
	svc    ProjectService
	logger *zap.Logger
}

func NewProjectHandler(svc ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var in project.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "CreateProject", err)
		return
	}

	p, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "CreateProject", err, "failed to create project")
		return
	}

	h.logger.Info("CreateProject: success",
		zap.String("project_id", p.ID),
		zap.Int("task_count", len(p.Tasks)),
	)
	c.JSON(http.StatusCreated, p)
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "ListProjects", err, "failed to fetch projects")
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "GetProject", err, "failed to fetch project")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteProject", err, "failed to delete project")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusRequest struct {
	Status model.ProjectStatus `json:"status" binding:"required"`
}

func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "UpdateStatus", err)
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	p, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, "UpdateStatus", err, "failed to update project status")
		return
	}
	c.JSON(http.StatusOK, p)
}

type phasesRequest struct {
	Edits []project.BoundaryEdit `json:"edits" binding:"required,min=1"`
}

func (h *ProjectHandler) EditPhases(c *gin.Context) {
	var req phasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "EditPhases", err)
		return
	}

	p, err := h.svc.EditPhases(c.Request.Context(), c.Param("id"), req.Edits)
	if err != nil {
		respondError(c, h.logger, "EditPhases", err, "failed to edit phases")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) AddTask(c *gin.Context) {
	var in project.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "AddTask", err)
		return
	}

	t, err := h.svc.AddTask(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "AddTask", err, "failed to add task")
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	var patch project.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, h.logger, "UpdateTask", err)
		return
	}

	t, err := h.svc.UpdateTask(c.Request.Context(), c.Param("id"), c.Param("taskId"), patch)
	if err != nil {
		respondError(c, h.logger, "UpdateTask", err, "failed to update task")
		return
	}
	c.JSON(http.StatusOK, t)
}

type progressRequest struct {
	Progress *int `json:"progress" binding:"required"`
}

func (h *ProjectHandler) SetTaskProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "SetTaskProgress", err)
		return
	}

	t, err := h.svc.SetTaskProgress(c.Request.Context(), c.Param("id"), c.Param("taskId"), *req.Progress)
	if err != nil {
		respondError(c, h.logger, "SetTaskProgress", err, "failed to update task progress")
		return
	}
	c.JSON(http.StatusOK, t)
}

type moveRequest struct {
	Status model.TaskStatus `json:"status" binding:"required"`
}

func (h *ProjectHandler) MoveTask(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "MoveTask", err)
		return
	}

	t, err := h.svc.MoveTask(c.Request.Context(), c.Param("id"), c.Param("taskId"), req.Status)
	if err != nil {
		respondError(c, h.logger, "MoveTask", err, "failed to move task")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *ProjectHandler) DashboardStats(c *gin.Context) {
	stats, err := h.svc.DashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "DashboardStats", err, "failed to compute stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
