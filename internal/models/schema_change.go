package models

import (
	"encoding/json"
	"time"
)

// SchemaChange is the immutable audit record of one applied structural
// change. Rows are written by the schema migration manager in the same
// transaction as the change bookkeeping and are never updated afterwards.
type SchemaChange struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TableName     string          `gorm:"index;not null" json:"table_name"`
	ColumnName    string          `gorm:"not null" json:"column_name"`
	Operation     string          `gorm:"not null" json:"operation"`
	OldDefinition json.RawMessage `gorm:"type:text" json:"old_definition,omitempty"`
	NewDefinition json.RawMessage `gorm:"type:text" json:"new_definition,omitempty"`
	Reason        string          `gorm:"type:text" json:"reason"`
	AppliedAt     time.Time       `json:"applied_at"`
}
