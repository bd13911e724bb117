package models

import (
	"encoding/json"
	"time"
)

// Migration run statuses.
const (
	RunPending    = "pending"
	RunRunning    = "running"
	RunCompleted  = "completed"
	RunPartial    = "partial"
	RunFailed     = "failed"
	RunRolledBack = "rolled_back"
)

// MigrationLog is the persisted record of one migration run, kept for
// history queries and rollback. BackupTable is empty for dry runs and for
// runs executed with rollback disabled.
type MigrationLog struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	Name             string          `gorm:"index;not null" json:"name"`
	Description      string          `gorm:"type:text" json:"description"`
	Version          string          `json:"version"`
	ContentHash      string          `json:"content_hash"`
	TableName        string          `gorm:"index;not null" json:"table_name"`
	Status           string          `gorm:"index;not null" json:"status"`
	TotalRecords     int64           `json:"total_records"`
	RecordsProcessed int64           `json:"records_processed"`
	RecordsFailed    int64           `json:"records_failed"`
	TargetColumns    json.RawMessage `gorm:"type:text" json:"target_columns,omitempty"`
	SourceColumns    json.RawMessage `gorm:"type:text" json:"source_columns,omitempty"`
	BackupTable      string          `json:"backup_table,omitempty"`
	ErrorMessage     string          `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	RolledBackAt     *time.Time      `json:"rolled_back_at,omitempty"`
}

// CanRollback reports whether the run still has a usable backup table.
func (m *MigrationLog) CanRollback() bool {
	return m.BackupTable != "" && m.Status != RunRolledBack
}
