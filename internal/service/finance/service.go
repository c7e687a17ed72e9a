// Package finance manages income/expense entries, their categories and bank
// statement imports, and aggregates them for the dashboard.
package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	mqcontracts "opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/internal/ofx"
	"opsdash/internal/repository"
	"opsdash/internal/taskgen"
	"opsdash/pkg/logger"
	"opsdash/pkg/metrics"
	"opsdash/pkg/mq"
	"opsdash/pkg/trace"
)

// DefaultImportCategory is used for confirmed bank lines without a category.
const DefaultImportCategory = "Bank import"

type Store interface {
	InsertEntry(ctx context.Context, e *model.FinancialEntry) error
	ListEntries(ctx context.Context, f repository.EntryFilter) ([]model.FinancialEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListCategories(ctx context.Context, typ model.EntryType) ([]model.FinanceCategory, error)
	InsertCategory(ctx context.Context, c *model.FinanceCategory) error
	DeleteCategory(ctx context.Context, id string) error
	CreateImport(ctx context.Context, imp *model.OFXImport, routingKey string, payload any) error
	GetImport(ctx context.Context, id string) (*model.OFXImport, error)
	ConfirmImport(ctx context.Context, importID string, entries []model.FinancialEntry, routingKey string, payload any) error
}

type Cache interface {
	SetOFXEntries(ctx context.Context, importID string, entries []ofx.Entry) error
	GetOFXEntries(ctx context.Context, importID string) ([]ofx.Entry, bool)
	DeleteOFXEntries(ctx context.Context, importID string)
	GetDashboard(ctx context.Context, out any) bool
	SetDashboard(ctx context.Context, summary any)
	InvalidateDashboard(ctx context.Context)
}

type Service struct {
	store    Store
	cache    Cache
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(store Store, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type EntryInput struct {
	Type        model.EntryType `json:"type" validate:"required,oneof=income expense"`
	Date        string          `json:"date" validate:"required"`
	Amount      float64         `json:"amount" validate:"gt=0"`
	Category    string          `json:"category" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=1000"`
	ProjectID   string          `json:"project_id"`
}

func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (*model.FinancialEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	date, err := taskgen.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}

	e := &model.FinancialEntry{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Date:        date,
		Amount:      in.Amount,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		ProjectID:   in.ProjectID,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	s.cache.InvalidateDashboard(ctx)

	logger.WithTrace(ctx, s.logger).Info("Financial entry created",
		zap.String("entry_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Float64("amount", e.Amount),
	)
	return e, nil
}

// EntryQuery filters the entry list; dates are ISO and inclusive.
type EntryQuery struct {
	Type      string `form:"type" validate:"omitempty,oneof=income expense"`
	From      string `form:"start_date"`
	To        string `form:"end_date"`
	ProjectID string `form:"project_id"`
	Category  string `form:"category"`
}

func (s *Service) ListEntries(ctx context.Context, q EntryQuery) ([]model.FinancialEntry, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, err
	}
	f := repository.EntryFilter{
		Type:      model.EntryType(q.Type),
		ProjectID: q.ProjectID,
		Category:  q.Category,
	}
	var err error
	if f.From, err = optionalDate(q.From); err != nil {
		return nil, err
	}
	if f.To, err = optionalDate(q.To); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, f)
}

func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateDashboard(ctx)
	return nil
}

func (s *Service) ListCategories(ctx context.Context, typ string) ([]model.FinanceCategory, error) {
	if err := s.validate.Var(typ, "omitempty,oneof=income expense"); err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx, model.EntryType(typ))
}

// InvalidCategoryError reports a category form that passes field validation
// but is inconsistent as a whole.
type InvalidCategoryError struct {
	Name   string
	Reason string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category %q: %s", e.Name, e.Reason)
}

// CategoryInput is the category form. CostKind only applies to expense
// categories.
type CategoryInput struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Type     model.EntryType `json:"type" validate:"required,oneof=income expense"`
	CostKind model.CostKind  `json:"cost_kind" validate:"omitempty,oneof=variable fixed"`
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*model.FinanceCategory, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Type == model.EntryIncome && in.CostKind != "" {
		return nil, &InvalidCategoryError{Name: in.Name, Reason: "cost kind applies to expense categories only"}
	}
	c := &model.FinanceCategory{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Type:      in.Type,
		CostKind:  in.CostKind,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertCategory(ctx, c); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("category %q (%s) already exists: %w", c.Name, c.Type, model.ErrConflict)
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}

// UploadResult is returned after a statement was parsed.
type UploadResult struct {
	ImportID     string      `json:"import_id"`
	Entries      []ofx.Entry `json:"entries"`
	EntriesCount int         `json:"entries_count"`
	Skipped      []ofx.Skip  `json:"skipped,omitempty"`
}

// UploadOFX parses a statement, parks the entries in the cache until they
// are confirmed and records the import.
func (s *Service) UploadOFX(ctx context.Context, filename, content string) (*UploadResult, error) {
	log := logger.WithTrace(ctx, s.logger)

	parsed := ofx.ParseStatement(content)
	entries := parsed.Entries
	metrics.AddOFXEntries(len(entries))
	if len(parsed.Skipped) > 0 {
		metrics.AddOFXSkipped(len(parsed.Skipped))
		log.Warn("OFX blocks skipped",
			zap.String("filename", filename),
			zap.Int("skipped", len(parsed.Skipped)),
			zap.Any("blocks", parsed.Skipped),
		)
	}

	now := s.now()
	imp := &model.OFXImport{
		ID:           uuid.NewString(),
		Filename:     filename,
		EntriesCount: len(entries),
		Status:       model.ImportPending,
		CreatedAt:    now,
	}
	if err := s.cache.SetOFXEntries(ctx, imp.ID, entries); err != nil {
		log.Error("Failed to park parsed OFX entries", zap.Error(err), zap.String("import_id", imp.ID))
		return nil, fmt.Errorf("failed to store parsed entries: %w", err)
	}

	payload := mqcontracts.OFXImportedPayload{
		ImportID:     imp.ID,
		Filename:     filename,
		EntriesCount: len(entries),
		ImportedAt:   now,
		TraceID:      trace.FromContext(ctx),
	}
	if err := s.store.CreateImport(ctx, imp, mq.RoutingOFXImported, payload); err != nil {
		s.cache.DeleteOFXEntries(ctx, imp.ID)
		return nil, fmt.Errorf("failed to record import: %w", err)
	}

	log.Info("OFX file parsed",
		zap.String("import_id", imp.ID),
		zap.String("filename", filename),
		zap.Int("entries_count", len(entries)),
	)
	return &UploadResult{ImportID: imp.ID, Entries: entries, EntriesCount: len(entries), Skipped: parsed.Skipped}, nil
}

// ConfirmInput selects which parsed lines to keep. No ids keeps them all.
type ConfirmInput struct {
	EntryIDs        []string `json:"entry_ids"`
	IncomeCategory  string   `json:"income_category"`
	ExpenseCategory string   `json:"expense_category"`
	ProjectID       string   `json:"project_id"`
}

// ConfirmImport turns the parked entries of an import into financial
// entries. Debits become expenses with a positive amount.
func (s *Service) ConfirmImport(ctx context.Context, importID string, in ConfirmInput) ([]model.FinancialEntry, error) {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status != model.ImportPending {
		return nil, fmt.Errorf("import %s is %s: %w", importID, imp.Status, model.ErrConflict)
	}

	parsed, ok := s.cache.GetOFXEntries(ctx, importID)
	if !ok {
		return nil, fmt.Errorf("parsed entries for import %s expired: %w", importID, model.ErrNotFound)
	}

	keep := map[string]bool{}
	for _, id := range in.EntryIDs {
		keep[id] = true
	}

	now := s.now()
	entries := make([]model.FinancialEntry, 0, len(parsed))
	for _, p := range parsed {
		if len(keep) > 0 && !keep[p.ID] {
			continue
		}
		date, err := taskgen.ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		category := orDefault(in.IncomeCategory, DefaultImportCategory)
		if p.Type() == model.EntryExpense {
			category = orDefault(in.ExpenseCategory, DefaultImportCategory)
		}
		entries = append(entries, model.FinancialEntry{
			ID:          uuid.NewString(),
			Type:        p.Type(),
			Date:        date,
			Amount:      math.Abs(p.Amount),
			Category:    category,
			Description: p.Description,
			ProjectID:   in.ProjectID,
			ImportID:    importID,
			CreatedAt:   now,
		})
	}

	payload := mqcontracts.OFXImportedPayload{
		ImportID:     importID,
		Filename:     imp.Filename,
		EntriesCount: len(entries),
		Confirmed:    true,
		ImportedAt:   now,
		TraceID:      trace.FromContext(ctx),
	}
	if err := s.store.ConfirmImport(ctx, importID, entries, mq.RoutingOFXImported, payload); err != nil {
		return nil, err
	}
	s.cache.DeleteOFXEntries(ctx, importID)
	s.cache.InvalidateDashboard(ctx)

	logger.WithTrace(ctx, s.logger).Info("OFX import confirmed",
		zap.String("import_id", importID),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func optionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := taskgen.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
