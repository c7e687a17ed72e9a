package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/pkg/outbox"
)

// EntryFilter 条目查询条件，零值表示不过滤
type EntryFilter struct {
	Type      model.EntryType
	From      *time.Time
	To        *time.Time
	ProjectID string
	Category  string
}

type FinanceRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewFinanceRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *FinanceRepository {
	return &FinanceRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

const entryColumns = `id, type, entry_date, amount, category, description, project_id, import_id, created_at`

func (r *FinanceRepository) InsertEntry(ctx context.Context, e *model.FinancialEntry) error {
	r.logger.Debug("Inserting financial entry",
		zap.String("entry_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Float64("amount", e.Amount),
	)
	if err := insertEntry(ctx, r.db, e); err != nil {
		r.logger.Error("Failed to insert financial entry", zap.Error(err), zap.String("entry_id", e.ID))
		return err
	}
	return nil
}

// ListEntries 按日期倒序返回满足条件的条目
func (r *FinanceRepository) ListEntries(ctx context.Context, f EntryFilter) ([]model.FinancialEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Type != "" {
		add("type = ?", f.Type)
	}
	if f.From != nil {
		add("entry_date >= ?", *f.From)
	}
	if f.To != nil {
		add("entry_date <= ?", *f.To)
	}
	if f.ProjectID != "" {
		add("project_id = ?", f.ProjectID)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}

	query := `SELECT ` + entryColumns + ` FROM finance_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY entry_date DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query financial entries", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	entries := []model.FinancialEntry{}
	for rows.Next() {
		var e model.FinancialEntry
		var projectID, importID *string
		if err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.Date,
			&e.Amount,
			&e.Category,
			&e.Description,
			&projectID,
			&importID,
			&e.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan financial entry", zap.Error(err))
			return nil, err
		}
		if projectID != nil {
			e.ProjectID = *projectID
		}
		if importID != nil {
			e.ImportID = *importID
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Financial entries listed", zap.Int("count", len(entries)))
	return entries, nil
}

func (r *FinanceRepository) DeleteEntry(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM finance_entries WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete financial entry", zap.Error(err), zap.String("entry_id", id))
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}
	r.logger.Info("Financial entry deleted", zap.String("entry_id", id))
	return nil
}

func (r *FinanceRepository) ListCategories(ctx context.Context, typ model.EntryType) ([]model.FinanceCategory, error) {
	query := `SELECT id, name, type, cost_kind, created_at FROM finance_categories`
	args := []any{}
	if typ != "" {
		query += ` WHERE type = $1`
		args = append(args, typ)
	}
	query += ` ORDER BY type, name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query finance categories", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	categories := []model.FinanceCategory{}
	for rows.Next() {
		var c model.FinanceCategory
		var kind *string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &kind, &c.CreatedAt); err != nil {
			r.logger.Error("Failed to scan finance category", zap.Error(err))
			return nil, err
		}
		if kind != nil {
			c.CostKind = model.CostKind(*kind)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// InsertCategory 同名同类型的分类已存在时返回 unique violation（23505）
func (r *FinanceRepository) InsertCategory(ctx context.Context, c *model.FinanceCategory) error {
	query := `
        INSERT INTO finance_categories (id, name, type, cost_kind, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := r.db.Exec(ctx, query, c.ID, c.Name, c.Type, nullable(string(c.CostKind)), c.CreatedAt); err != nil {
		r.logger.Error("Failed to insert finance category", zap.Error(err), zap.String("name", c.Name))
		return err
	}
	r.logger.Info("Finance category created", zap.String("category_id", c.ID), zap.String("name", c.Name))
	return nil
}

func (r *FinanceRepository) DeleteCategory(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM finance_categories WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete finance category", zap.Error(err), zap.String("category_id", id))
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("category %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// CreateImport 写入导入记录，并在同一事务中插入 ofx.imported 事件
func (r *FinanceRepository) CreateImport(ctx context.Context, imp *model.OFXImport, routingKey string, payload any) error {
	r.logger.Debug("Recording OFX import",
		zap.String("import_id", imp.ID),
		zap.String("filename", imp.Filename),
		zap.Int("entries_count", imp.EntriesCount),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO ofx_imports (id, filename, entries_count, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.Exec(ctx, query, imp.ID, imp.Filename, imp.EntriesCount, imp.Status, imp.CreatedAt); err != nil {
		r.logger.Error("Failed to insert OFX import", zap.Error(err), zap.String("import_id", imp.ID))
		return err
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "ofx_import", imp.ID, routingKey, payload); err != nil {
		r.logger.Error("Failed to insert outbox event", zap.Error(err), zap.String("routing_key", routingKey))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("OFX import recorded", zap.String("import_id", imp.ID))
	return nil
}

func (r *FinanceRepository) GetImport(ctx context.Context, id string) (*model.OFXImport, error) {
	var imp model.OFXImport
	err := r.db.QueryRow(ctx,
		`SELECT id, filename, entries_count, status, created_at FROM ofx_imports WHERE id = $1`, id,
	).Scan(&imp.ID, &imp.Filename, &imp.EntriesCount, &imp.Status, &imp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("import %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to fetch OFX import", zap.Error(err), zap.String("import_id", id))
		return nil, err
	}
	return &imp, nil
}

// ConfirmImport 在一个事务中写入全部条目并把导入标记为已确认
func (r *FinanceRepository) ConfirmImport(ctx context.Context, importID string, entries []model.FinancialEntry, routingKey string, payload any) error {
	r.logger.Debug("Confirming OFX import", zap.String("import_id", importID), zap.Int("count", len(entries)))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE ofx_imports SET status = $2 WHERE id = $1 AND status = $3`,
		importID, model.ImportConfirmed, model.ImportPending,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pending import %s: %w", importID, model.ErrNotFound)
	}

	for i := range entries {
		if err := insertEntry(ctx, tx, &entries[i]); err != nil {
			r.logger.Error("Failed to insert imported entry", zap.Error(err), zap.String("import_id", importID))
			return err
		}
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "ofx_import", importID, routingKey, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("OFX import confirmed", zap.String("import_id", importID), zap.Int("count", len(entries)))
	return nil
}

func insertEntry(ctx context.Context, db execer, e *model.FinancialEntry) error {
	query := `
        INSERT INTO finance_entries (` + entryColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := db.Exec(ctx, query,
		e.ID,
		e.Type,
		e.Date,
		e.Amount,
		e.Category,
		e.Description,
		nullable(e.ProjectID),
		nullable(e.ImportID),
		e.CreatedAt,
	)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
