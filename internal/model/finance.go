package model

import (
	"encoding/json"
	"time"
)

type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

func (t EntryType) Valid() bool {
	return t == EntryIncome || t == EntryExpense
}

// FinancialEntry is one income or expense line. Amount is always positive;
// Type carries the sign.
type FinancialEntry struct {
	ID          string    `json:"id"`
	Type        EntryType `json:"type"`
	Date        time.Time `json:"-"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	ImportID    string    `json:"import_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e FinancialEntry) MarshalJSON() ([]byte, error) {
	type plain FinancialEntry
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain: plain(e), Date: e.Date.Format(DateLayout)})
}

// Signed returns the amount with expenses negative.
func (e FinancialEntry) Signed() float64 {
	if e.Type == EntryExpense {
		return -e.Amount
	}
	return e.Amount
}

// CostKind splits expense categories in the income statement.
type CostKind string

const (
	CostVariable CostKind = "variable"
	CostFixed    CostKind = "fixed"
)

type FinanceCategory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      EntryType `json:"type"`
	CostKind  CostKind  `json:"cost_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ImportPending   = "pending"
	ImportConfirmed = "confirmed"
)

// OFXImport records one uploaded statement. Parsed entries live in the cache
// until the import is confirmed.
type OFXImport struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	EntriesCount int       `json:"entries_count"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
