package mq

import "time"

// OFXImportedPayload ofx.imported 事件
type OFXImportedPayload struct {
	ImportID     string    `json:"import_id"`
	Filename     string    `json:"filename"`
	EntriesCount int       `json:"entries_count"`
	Confirmed    bool      `json:"confirmed"`
	ImportedAt   time.Time `json:"imported_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
