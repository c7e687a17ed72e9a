package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"opsdash/internal/model"
)

const taskColumns = `id, project_id, phase_id, title, description, category, labels, start_date, due_date,
		status, priority, progress, estimated_hours, actual_hours, assignee, position, created_at`

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Inserting task",
		zap.String("task_id", t.ID),
		zap.String("project_id", t.ProjectID),
		zap.String("title", t.Title),
	)
	if err := insertTask(ctx, r.db, t); err != nil {
		r.logger.Error("Failed to insert task",
			zap.Error(err),
			zap.String("task_id", t.ID),
			zap.String("project_id", t.ProjectID),
		)
		return err
	}
	r.logger.Info("Task inserted successfully", zap.String("task_id", t.ID))
	return nil
}

// Update 写回任务的可编辑字段
func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Updating task", zap.String("task_id", t.ID), zap.String("status", string(t.Status)))

	query := `
        UPDATE tasks
        SET title = $2, description = $3, category = $4, labels = $5, start_date = $6, due_date = $7,
            status = $8, priority = $9, progress = $10, estimated_hours = $11, actual_hours = $12,
            assignee = $13, position = $14
        WHERE id = $1 AND project_id = $15
    `
	result, err := r.db.Exec(ctx, query,
		t.ID,
		t.Title,
		t.Description,
		t.Category,
		t.Labels,
		t.StartDate,
		t.DueDate,
		t.Status,
		t.Priority,
		t.Progress,
		t.EstimatedHours,
		t.ActualHours,
		t.Assignee,
		t.Position,
		t.ProjectID,
	)
	if err != nil {
		r.logger.Error("Failed to update task", zap.Error(err), zap.String("task_id", t.ID))
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}
	return nil
}

// UpdatePriority 持久化 resolver 重新计算出的优先级
func (r *TaskRepository) UpdatePriority(ctx context.Context, projectID, taskID string, priority model.Priority) error {
	_, err := r.db.Exec(ctx, `UPDATE tasks SET priority = $3 WHERE project_id = $1 AND id = $2`, projectID, taskID, priority)
	if err != nil {
		r.logger.Error("Failed to update task priority",
			zap.Error(err),
			zap.String("project_id", projectID),
			zap.String("task_id", taskID),
			zap.String("priority", string(priority)),
		)
	}
	return err
}

// ListOpen 返回所有未完成且有截止日期的任务（优先级巡检使用）
func (r *TaskRepository) ListOpen(ctx context.Context) ([]model.Task, error) {
	r.logger.Debug("Listing open tasks")

	query := `SELECT ` + taskColumns + `
        FROM tasks
        WHERE status <> 'done' AND due_date IS NOT NULL
        ORDER BY due_date ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query open tasks", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Info("Open tasks listed", zap.Int("count", len(tasks)))
	return tasks, nil
}

// execer 同时适配 pool 与 tx
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTask(ctx context.Context, db execer, t *model.Task) error {
	query := `
        INSERT INTO tasks (id, project_id, phase_id, title, description, category, labels, start_date,
                           due_date, status, priority, progress, estimated_hours, actual_hours,
                           assignee, position, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `
	_, err := db.Exec(ctx, query,
		t.ID,
		t.ProjectID,
		t.PhaseID,
		t.Title,
		t.Description,
		t.Category,
		t.Labels,
		t.StartDate,
		t.DueDate,
		t.Status,
		t.Priority,
		t.Progress,
		t.EstimatedHours,
		t.ActualHours,
		t.Assignee,
		t.Position,
		t.CreatedAt,
	)
	return err
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.PhaseID,
		&t.Title,
		&t.Description,
		&t.Category,
		&t.Labels,
		&t.StartDate,
		&t.DueDate,
		&t.Status,
		&t.Priority,
		&t.Progress,
		&t.EstimatedHours,
		&t.ActualHours,
		&t.Assignee,
		&t.Position,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
