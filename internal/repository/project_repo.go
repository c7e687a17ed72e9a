package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/pkg/outbox"
)

type ProjectRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

const projectColumns = `id, name, client, description, budget, status, progress, start_date,
		estimated_days, current_phase, workflow_phases, created_at, updated_at`

// Create 在同一事务中写入项目、生成的任务以及 outbox 事件
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project, routingKey string, payload any) error {
	r.logger.Debug("Inserting project",
		zap.String("project_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("task_count", len(p.Tasks)),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO projects (id, name, client, description, budget, status, progress, start_date,
                              estimated_days, current_phase, workflow_phases, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err = tx.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Client,
		p.Description,
		p.Budget,
		p.Status,
		p.Progress,
		p.StartDate,
		p.EstimatedDays,
		p.CurrentPhase,
		p.WorkflowPhases,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err), zap.String("project_id", p.ID))
		return err
	}

	for i := range p.Tasks {
		if err := insertTask(ctx, tx, &p.Tasks[i]); err != nil {
			r.logger.Error("Failed to insert generated task",
				zap.Error(err),
				zap.String("project_id", p.ID),
				zap.String("task_id", p.Tasks[i].ID),
			)
			return err
		}
	}

	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "project", p.ID, routingKey, payload); err != nil {
		r.logger.Error("Failed to insert outbox event", zap.Error(err), zap.String("routing_key", routingKey))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit project transaction", zap.Error(err), zap.String("project_id", p.ID))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Project inserted successfully",
		zap.String("project_id", p.ID),
		zap.Int("task_count", len(p.Tasks)),
	)
	return nil
}

// Get 返回项目及其全部任务
func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	r.logger.Debug("Fetching project", zap.String("project_id", id))

	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to fetch project", zap.Error(err), zap.String("project_id", id))
		return nil, err
	}

	tasks, err := r.tasksFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Tasks = tasks[id]
	if p.Tasks == nil {
		p.Tasks = []model.Task{}
	}
	return p, nil
}

// List 返回全部项目（含任务），按创建时间倒序
func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	r.logger.Debug("Listing projects")

	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query projects", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	ids := []string{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			r.logger.Error("Failed to scan project row", zap.Error(err))
			return nil, err
		}
		projects = append(projects, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tasks, err := r.tasksFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].Tasks = tasks[projects[i].ID]
		if projects[i].Tasks == nil {
			projects[i].Tasks = []model.Task{}
		}
	}

	r.logger.Info("Projects listed successfully", zap.Int("count", len(projects)))
	return projects, nil
}

// Update 更新项目自身字段（不含任务）
func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Updating project", zap.String("project_id", p.ID), zap.String("status", string(p.Status)))

	query := `
        UPDATE projects
        SET name = $2, client = $3, description = $4, budget = $5, status = $6, progress = $7,
            start_date = $8, estimated_days = $9, current_phase = $10, workflow_phases = $11,
            updated_at = $12
        WHERE id = $1
    `
	result, err := r.db.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Client,
		p.Description,
		p.Budget,
		p.Status,
		p.Progress,
		p.StartDate,
		p.EstimatedDays,
		p.CurrentPhase,
		p.WorkflowPhases,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update project", zap.Error(err), zap.String("project_id", p.ID))
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", p.ID, model.ErrNotFound)
	}
	return nil
}

// Delete 删除项目，任务通过外键级联删除
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	r.logger.Debug("Deleting project", zap.String("project_id", id))

	result, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.Error(err), zap.String("project_id", id))
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}

	r.logger.Info("Project deleted", zap.String("project_id", id))
	return nil
}

func (r *ProjectRepository) tasksFor(ctx context.Context, projectIDs []string) (map[string][]model.Task, error) {
	out := make(map[string][]model.Task, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ANY($1) ORDER BY position ASC, created_at ASC`
	rows, err := r.db.Query(ctx, query, projectIDs)
	if err != nil {
		r.logger.Error("Failed to query project tasks", zap.Error(err), zap.Int("projects", len(projectIDs)))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		out[t.ProjectID] = append(out[t.ProjectID], *t)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Client,
		&p.Description,
		&p.Budget,
		&p.Status,
		&p.Progress,
		&p.StartDate,
		&p.EstimatedDays,
		&p.CurrentPhase,
		&p.WorkflowPhases,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
