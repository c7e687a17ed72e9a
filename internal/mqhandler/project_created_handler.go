package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/pkg/logger"
	"opsdash/pkg/trace"
	"opsdash/pkg/util"
)

const projectCreatedHandlerName = "project_created"

// ProjectLoader 读取项目；service 层的 Get 会顺带刷新优先级并写缓存
type ProjectLoader interface {
	Get(ctx context.Context, id string) (*model.Project, error)
}

type ProjectCreatedHandler struct {
	projects ProjectLoader
	dedup    *util.Deduper
	logger   *zap.Logger
}

func NewProjectCreatedHandler(projects ProjectLoader, dedup *util.Deduper, logger *zap.Logger) *ProjectCreatedHandler {
	return &ProjectCreatedHandler{
		projects: projects,
		dedup:    dedup,
		logger:   logger,
	}
}

// HandleProjectCreated 预热新项目的缓存。重复投递会被去重；项目已被删除时直接确认。
func (h *ProjectCreatedHandler) HandleProjectCreated(ctx context.Context, raw json.RawMessage) error {
	var p mq.ProjectCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal project created payload", zap.Error(err))
		return err
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger)

	if h.dedup != nil && !h.dedup.AcquireOnce(ctx, projectCreatedHandlerName, p.ProjectID) {
		return nil
	}

	project, err := h.projects.Get(ctx, p.ProjectID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Info("Project gone before warm-up, skipping", zap.String("project_id", p.ProjectID))
			return nil
		}
		if h.dedup != nil {
			h.dedup.Release(ctx, projectCreatedHandlerName, p.ProjectID)
		}
		log.Error("Failed to load project", zap.String("project_id", p.ProjectID), zap.Error(err))
		return err
	}

	if len(project.Tasks) != p.TaskCount {
		log.Warn("Task count differs from event",
			zap.String("project_id", p.ProjectID),
			zap.Int("event_task_count", p.TaskCount),
			zap.Int("stored_task_count", len(project.Tasks)),
		)
	}

	log.Info("Project cache warmed",
		zap.String("project_id", p.ProjectID),
		zap.String("name", p.Name),
		zap.Int("task_count", len(project.Tasks)),
		zap.Int("estimated_days", p.EstimatedDays),
	)
	return nil
}
