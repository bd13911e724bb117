package migration

import (
	"sync"
	"time"

	"github.com/ksred/hoopstats/internal/models"
)

// Batch processing statuses.
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// BatchResult is the outcome of one offset-addressed batch. It is owned by
// its parent Run and aggregated into it once the batch fully completes.
type BatchResult struct {
	BatchID          string        `json:"batch_id"`
	Status           string        `json:"status"`
	RecordsProcessed int64         `json:"records_processed"`
	RecordsFailed    int64         `json:"records_failed"`
	FailedRecordIDs  []interface{} `json:"failed_record_ids,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// Run tracks one migration execution. It is owned exclusively by the
// executor for its duration and archived as a MigrationLog afterwards.
type Run struct {
	ID               string        `json:"id"`
	FunctionName     string        `json:"function_name"`
	TableName        string        `json:"table_name"`
	Status           string        `json:"status"`
	DryRun           bool          `json:"dry_run"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	TotalRecords     int64         `json:"total_records"`
	RecordsProcessed int64         `json:"records_processed"`
	RecordsFailed    int64         `json:"records_failed"`
	BatchesCompleted int           `json:"batches_completed"`
	BatchesFailed    int           `json:"batches_failed"`
	BatchResults     []BatchResult `json:"batch_results"`
	BackupTable      string        `json:"backup_table,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`

	mu sync.Mutex
}

// addBatchResult merges a completed batch into the run's aggregate
// counters. Workers only touch shared state through this method.
func (r *Run) addBatchResult(batch BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.BatchResults = append(r.BatchResults, batch)
	r.RecordsProcessed += batch.RecordsProcessed
	r.RecordsFailed += batch.RecordsFailed

	switch batch.Status {
	case BatchCompleted:
		r.BatchesCompleted++
	case BatchFailed:
		r.BatchesFailed++
	}
}

// finish derives the terminal status from the aggregate counters.
func (r *Run) finish() {
	now := time.Now().UTC()
	r.EndedAt = &now

	switch {
	case r.RecordsFailed == 0 && r.BatchesFailed == 0:
		r.Status = models.RunCompleted
	case r.RecordsProcessed > 0:
		r.Status = models.RunPartial
	default:
		r.Status = models.RunFailed
	}
}

// fail marks the run failed before any batch work happened.
func (r *Run) fail(err error) {
	now := time.Now().UTC()
	r.EndedAt = &now
	r.Status = models.RunFailed
	r.ErrorMessage = err.Error()
}
