package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/service/finance"
)

// maxOFXSize bounds uploaded statements.
const maxOFXSize = 5 << 20

type FinanceService interface {
	CreateEntry(ctx context.Context, in finance.EntryInput) (*model.FinancialEntry, error)
	ListEntries(ctx context.Context, q finance.EntryQuery) ([]model.FinancialEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListCategories(ctx context.Context, typ string) ([]model.FinanceCategory, error)
	CreateCategory(ctx context.Context, in finance.CategoryInput) (*model.FinanceCategory, error)
	DeleteCategory(ctx context.Context, id string) error
	UploadOFX(ctx context.Context, filename, content string) (*finance.UploadResult, error)
	ConfirmImport(ctx context.Context, importID string, in finance.ConfirmInput) ([]model.FinancialEntry, error)
	Dashboard(ctx context.Context) (*finance.Summary, error)
	Cashflow(ctx context.Context, year int) (*finance.CashflowReport, error)
	IncomeStatement(ctx context.Context, month string) (*finance.IncomeStatement, error)
}

type FinanceHandler struct {
	svc    FinanceService
	logger *zap.Logger
}

func NewFinanceHandler(svc FinanceService, logger *zap.Logger) *FinanceHandler {
	return &FinanceHandler{svc: svc, logger: logger}
}

func (h *FinanceHandler) ListEntries(c *gin.Context) {
	var q finance.EntryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, h.logger, "ListEntries", err)
		return
	}
	entries, err := h.svc.ListEntries(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, "ListEntries", err, "failed to fetch entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *FinanceHandler) CreateEntry(c *gin.Context) {
	var in finance.EntryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "CreateEntry", err)
		return
	}
	e, err := h.svc.CreateEntry(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "CreateEntry", err, "failed to create entry")
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *FinanceHandler) DeleteEntry(c *gin.Context) {
	if err := h.svc.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteEntry", err, "failed to delete entry")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *FinanceHandler) ListCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(c.Request.Context(), c.Query("type"))
	if err != nil {
		respondError(c, h.logger, "ListCategories", err, "failed to fetch categories")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *FinanceHandler) CreateCategory(c *gin.Context) {
	var in finance.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "CreateCategory", err)
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "CreateCategory", err, "failed to create category")
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *FinanceHandler) DeleteCategory(c *gin.Context) {
	if err := h.svc.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteCategory", err, "failed to delete category")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UploadOFX accepts a multipart form with a "file" field.
func (h *FinanceHandler) UploadOFX(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > maxOFXSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, "UploadOFX", err, "failed to read file")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxOFXSize))
	if err != nil {
		respondError(c, h.logger, "UploadOFX", err, "failed to read file")
		return
	}

	res, err := h.svc.UploadOFX(c.Request.Context(), fh.Filename, string(content))
	if err != nil {
		respondError(c, h.logger, "UploadOFX", err, "failed to import file")
		return
	}

	h.logger.Info("UploadOFX: success",
		zap.String("import_id", res.ImportID),
		zap.String("filename", fh.Filename),
		zap.Int("entries_count", res.EntriesCount),
	)
	c.JSON(http.StatusOK, res)
}

func (h *FinanceHandler) ConfirmImport(c *gin.Context) {
	var in finance.ConfirmInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, h.logger, "ConfirmImport", err)
			return
		}
	}
	entries, err := h.svc.ConfirmImport(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "ConfirmImport", err, "failed to confirm import")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "entries_count": len(entries)})
}

func (h *FinanceHandler) Dashboard(c *gin.Context) {
	sum, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Dashboard", err, "failed to fetch dashboard data")
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *FinanceHandler) Cashflow(c *gin.Context) {
	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}

	report, err := h.svc.Cashflow(c.Request.Context(), year)
	if err != nil {
		respondError(c, h.logger, "Cashflow", err, "failed to generate cashflow report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// IncomeStatement GET /finance/reports/dre?month=YYYY-MM
func (h *FinanceHandler) IncomeStatement(c *gin.Context) {
	st, err := h.svc.IncomeStatement(c.Request.Context(), c.Query("month"))
	if err != nil {
		respondError(c, h.logger, "IncomeStatement", err, "failed to generate income statement")
		return
	}
	c.JSON(http.StatusOK, st)
}
