package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/ofx"
	"opsdash/internal/service/finance"
)

type stubFinance struct {
	lastQuery    finance.EntryQuery
	lastUpload   string
	lastFilename string
	lastConfirm  finance.ConfirmInput
	lastYear     int
	lastMonth    string

	confirmErr error
}

func (s *stubFinance) CreateEntry(_ context.Context, in finance.EntryInput) (*model.FinancialEntry, error) {
	return &model.FinancialEntry{ID: "e-1", Type: in.Type, Amount: in.Amount, Category: in.Category}, nil
}

func (s *stubFinance) ListEntries(_ context.Context, q finance.EntryQuery) ([]model.FinancialEntry, error) {
	s.lastQuery = q
	return []model.FinancialEntry{}, nil
}

func (s *stubFinance) DeleteEntry(_ context.Context, id string) error {
	if id == "missing" {
		return model.ErrNotFound
	}
	return nil
}

func (s *stubFinance) ListCategories(context.Context, string) ([]model.FinanceCategory, error) {
	return []model.FinanceCategory{}, nil
}

func (s *stubFinance) CreateCategory(context.Context, finance.CategoryInput) (*model.FinanceCategory, error) {
	return nil, model.ErrConflict
}

func (s *stubFinance) DeleteCategory(context.Context, string) error { return nil }

func (s *stubFinance) UploadOFX(_ context.Context, filename, content string) (*finance.UploadResult, error) {
	s.lastFilename = filename
	s.lastUpload = content
	entries := ofx.Parse(content)
	return &finance.UploadResult{ImportID: "imp-1", Entries: entries, EntriesCount: len(entries)}, nil
}

func (s *stubFinance) ConfirmImport(_ context.Context, importID string, in finance.ConfirmInput) ([]model.FinancialEntry, error) {
	s.lastConfirm = in
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return []model.FinancialEntry{{ID: importID + "-e"}}, nil
}

func (s *stubFinance) Dashboard(context.Context) (*finance.Summary, error) {
	return &finance.Summary{Month: "2024-03"}, nil
}

func (s *stubFinance) Cashflow(_ context.Context, year int) (*finance.CashflowReport, error) {
	s.lastYear = year
	return &finance.CashflowReport{Year: year}, nil
}

func (s *stubFinance) IncomeStatement(_ context.Context, month string) (*finance.IncomeStatement, error) {
	s.lastMonth = month
	if month == "2024-13" {
		return nil, &finance.InvalidMonthError{Input: month}
	}
	return &finance.IncomeStatement{Month: month}, nil
}

const statement = `OFXHEADER:100
<OFX><BANKMSGSRSV1><STMTTRNRS><STMTRS><BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305
<TRNAMT>-42.50
<FITID>abc1
<MEMO>Office supplies
</STMTTRN>
</BANKTRANLIST></STMTRS></STMTTRNRS></BANKMSGSRSV1></OFX>
`

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFinanceHandler_UploadOFX(t *testing.T) {
	svc := &stubFinance{}
	h := NewFinanceHandler(svc, zap.NewNop())
	r := gin.New()
	r.POST("/finance/ofx", h.UploadOFX)

	body, ct := multipartBody(t, "file", "march.ofx", statement)
	req := httptest.NewRequest(http.MethodPost, "/finance/ofx", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "march.ofx", svc.lastFilename)
	assert.Equal(t, statement, svc.lastUpload)
	resp := decode(t, w)
	assert.Equal(t, "imp-1", resp["import_id"])
	assert.EqualValues(t, 1, resp["entries_count"])
}

func TestFinanceHandler_UploadOFXMissingFile(t *testing.T) {
	h := NewFinanceHandler(&stubFinance{}, zap.NewNop())
	r := gin.New()
	r.POST("/finance/ofx", h.UploadOFX)

	body, ct := multipartBody(t, "other", "march.ofx", statement)
	req := httptest.NewRequest(http.MethodPost, "/finance/ofx", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	msg := assertError(t, w, http.StatusBadRequest)
	assert.Equal(t, "file is required", msg)
}

func TestFinanceHandler_ListEntriesBindsQuery(t *testing.T) {
	svc := &stubFinance{}
	h := NewFinanceHandler(svc, zap.NewNop())

	w := serve(http.MethodGet, "/finance/entries",
		"/finance/entries?type=expense&start_date=2024-01-01&end_date=2024-01-31&category=Rent", nil, h.ListEntries)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, finance.EntryQuery{Type: "expense", From: "2024-01-01", To: "2024-01-31", Category: "Rent"}, svc.lastQuery)
}

func TestFinanceHandler_CreateEntry(t *testing.T) {
	h := NewFinanceHandler(&stubFinance{}, zap.NewNop())

	w := serve(http.MethodPost, "/finance/entries", "/finance/entries",
		[]byte(`{"type":"income","date":"2024-03-01","amount":100,"category":"Sales"}`), h.CreateEntry)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "e-1", decode(t, w)["id"])
}

func TestFinanceHandler_DeleteEntryNotFound(t *testing.T) {
	h := NewFinanceHandler(&stubFinance{}, zap.NewNop())

	w := serve(http.MethodDelete, "/finance/entries/:id", "/finance/entries/missing", nil, h.DeleteEntry)
	assertError(t, w, http.StatusNotFound)
}

func TestFinanceHandler_CreateCategoryConflict(t *testing.T) {
	h := NewFinanceHandler(&stubFinance{}, zap.NewNop())

	w := serve(http.MethodPost, "/finance/categories", "/finance/categories",
		[]byte(`{"name":"Rent","type":"expense"}`), h.CreateCategory)
	assertError(t, w, http.StatusConflict)
}

func TestFinanceHandler_ConfirmImport(t *testing.T) {
	t.Run("empty body keeps every entry", func(t *testing.T) {
		svc := &stubFinance{}
		h := NewFinanceHandler(svc, zap.NewNop())

		w := serve(http.MethodPost, "/finance/ofx/:id/confirm", "/finance/ofx/imp-1/confirm", nil, h.ConfirmImport)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, svc.lastConfirm.EntryIDs)
		assert.EqualValues(t, 1, decode(t, w)["entries_count"])
	})

	t.Run("selected entries", func(t *testing.T) {
		svc := &stubFinance{}
		h := NewFinanceHandler(svc, zap.NewNop())

		w := serve(http.MethodPost, "/finance/ofx/:id/confirm", "/finance/ofx/imp-1/confirm",
			[]byte(`{"entry_ids":["abc1"],"expense_category":"Office"}`), h.ConfirmImport)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"abc1"}, svc.lastConfirm.EntryIDs)
		assert.Equal(t, "Office", svc.lastConfirm.ExpenseCategory)
	})

	t.Run("already confirmed", func(t *testing.T) {
		svc := &stubFinance{confirmErr: model.ErrConflict}
		h := NewFinanceHandler(svc, zap.NewNop())

		w := serve(http.MethodPost, "/finance/ofx/:id/confirm", "/finance/ofx/imp-1/confirm", nil, h.ConfirmImport)
		assertError(t, w, http.StatusConflict)
	})
}

func TestFinanceHandler_Cashflow(t *testing.T) {
	svc := &stubFinance{}
	h := NewFinanceHandler(svc, zap.NewNop())

	w := serve(http.MethodGet, "/finance/reports/cashflow", "/finance/reports/cashflow?year=2023", nil, h.Cashflow)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2023, svc.lastYear)

	w = serve(http.MethodGet, "/finance/reports/cashflow", "/finance/reports/cashflow", nil, h.Cashflow)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Now().Year(), svc.lastYear)

	w = serve(http.MethodGet, "/finance/reports/cashflow", "/finance/reports/cashflow?year=next", nil, h.Cashflow)
	assertError(t, w, http.StatusBadRequest)
}

func TestFinanceHandler_IncomeStatement(t *testing.T) {
	svc := &stubFinance{}
	h := NewFinanceHandler(svc, zap.NewNop())

	w := serve(http.MethodGet, "/finance/reports/dre", "/finance/reports/dre?month=2024-03", nil, h.IncomeStatement)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2024-03", svc.lastMonth)
	assert.Equal(t, "2024-03", decode(t, w)["month"])

	w = serve(http.MethodGet, "/finance/reports/dre", "/finance/reports/dre?month=2024-13", nil, h.IncomeStatement)
	msg := assertError(t, w, http.StatusBadRequest)
	assert.Contains(t, msg, "YYYY-MM")
}
