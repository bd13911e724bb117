package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/schema"
	"github.com/ksred/hoopstats/internal/storage"
	"github.com/ksred/hoopstats/internal/utils"
)

// Executor defaults.
const (
	DefaultBatchSize  = 1000
	DefaultMaxWorkers = 4
)

// ExecutorConfig tunes batch processing.
type ExecutorConfig struct {
	// BatchSize is the number of rows per transactional batch.
	BatchSize int
	// MaxWorkers is the width of the worker pool in parallel mode.
	MaxWorkers int
	// EnableRollback snapshots the target table before mutation so the
	// run can be rolled back.
	EnableRollback bool
}

// ExecuteOptions select the record space and execution mode for one run.
type ExecuteOptions struct {
	// Filter restricts which rows are migrated; slice values become IN
	// clauses.
	Filter map[string]interface{}
	// DryRun performs every step except row write-back and the persisted
	// log entry.
	DryRun bool
	// Sequential processes batches in ascending offset order instead of
	// on the worker pool.
	Sequential bool
}

// batchSpec addresses one slice of the record space. Specs partition
// [0, totalRecords) exactly, which is what keeps batches from overlapping
// without any locking.
type batchSpec struct {
	id     string
	num    int
	total  int
	offset int
	limit  int
}

// Executor replays a migration function over existing rows in bounded,
// transactionally isolated batches.
type Executor struct {
	store  *storage.Store
	logger zerolog.Logger
	config ExecutorConfig
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store *storage.Store, config ExecutorConfig, logger zerolog.Logger) *Executor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers
	}
	return &Executor{store: store, logger: logger, config: config}
}

// Execute runs a migration function over a table. It never returns an
// error: every failure mode is carried in the returned run's status fields.
func (e *Executor) Execute(ctx context.Context, fn Function, tableName string, opts ExecuteOptions) *Run {
	run := &Run{
		ID:           uuid.NewString(),
		FunctionName: fn.Name,
		TableName:    tableName,
		Status:       models.RunPending,
		DryRun:       opts.DryRun,
		StartedAt:    time.Now().UTC(),
	}

	logger := e.logger.With().
		Str("run_id", run.ID).
		Str("function", fn.Name).
		Str("table", tableName).
		Logger()
	logger.Info().Bool("dry_run", opts.DryRun).Msg("starting migration run")

	total, err := e.store.CountRows(ctx, tableName, opts.Filter)
	if err != nil {
		logger.Error().Err(err).Msg("migration failed before any batch")
		run.fail(err)
		return run
	}
	run.TotalRecords = total
	run.Status = models.RunRunning

	if total == 0 {
		now := time.Now().UTC()
		run.EndedAt = &now
		run.Status = models.RunCompleted
		e.persistRun(ctx, fn, run, logger)
		return run
	}

	// The backup is committed before any row is mutated, so a crash later
	// in the run always leaves a usable rollback target.
	if e.config.EnableRollback && !opts.DryRun {
		backup := fmt.Sprintf("%s_backup_%s", tableName, run.ID[:8])
		if err := e.store.CopyTable(ctx, tableName, backup); err != nil {
			logger.Error().Err(err).Msg("failed to create backup table")
			run.fail(err)
			return run
		}
		run.BackupTable = backup
		logger.Info().Str("backup_table", backup).Msg("created backup table")
	}

	// Single-writer backends would fail whole batches under concurrent
	// write transactions, so parallel mode needs the dialect's consent.
	sequential := opts.Sequential || e.config.MaxWorkers == 1
	if !sequential && !e.store.Dialect().Capabilities().ConcurrentWrites {
		logger.Debug().
			Str("backend", e.store.Dialect().Name()).
			Msg("backend does not support concurrent writes, processing batches in order")
		sequential = true
	}

	specs := partitionBatches(total, e.config.BatchSize)
	if sequential {
		e.runSequential(ctx, fn, tableName, opts, specs, run, logger)
	} else {
		e.runParallel(ctx, fn, tableName, opts, specs, run, logger)
	}

	run.finish()
	e.persistRun(ctx, fn, run, logger)

	logger.Info().
		Str("status", run.Status).
		Int64("processed", run.RecordsProcessed).
		Int64("failed", run.RecordsFailed).
		Msg("migration run finished")
	return run
}

// partitionBatches covers [0, total) with fixed-size offset ranges, no
// gaps and no overlaps.
func partitionBatches(total int64, batchSize int) []batchSpec {
	numBatches := int((total + int64(batchSize) - 1) / int64(batchSize))
	specs := make([]batchSpec, 0, numBatches)
	for i := 0; i < numBatches; i++ {
		offset := i * batchSize
		limit := batchSize
		if remaining := int(total) - offset; remaining < limit {
			limit = remaining
		}
		specs = append(specs, batchSpec{
			id:     fmt.Sprintf("batch_%04d", i),
			num:    i,
			total:  numBatches,
			offset: offset,
			limit:  limit,
		})
	}
	return specs
}

func (e *Executor) runSequential(ctx context.Context, fn Function, tableName string, opts ExecuteOptions, specs []batchSpec, run *Run, logger zerolog.Logger) {
	for _, spec := range specs {
		result := e.processBatch(ctx, fn, tableName, opts, spec)
		run.addBatchResult(result)
		logBatch(logger, spec, result)
	}
}

func (e *Executor) runParallel(ctx context.Context, fn Function, tableName string, opts ExecuteOptions, specs []batchSpec, run *Run, logger zerolog.Logger) {
	workers := e.config.MaxWorkers
	if workers > len(specs) {
		workers = len(specs)
	}

	work := make(chan batchSpec)
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for spec := range work {
				result := e.processBatch(ctx, fn, tableName, opts, spec)
				run.addBatchResult(result)
				logBatch(logger, spec, result)
			}
		}()
	}

	for _, spec := range specs {
		work <- spec
	}
	close(work)
	wg.Wait()
}

// processBatch is the unit of work: fetch rows, transform each, write back
// only the target columns, commit. One bad row never aborts the batch; a
// batch-level error rolls back this batch only.
func (e *Executor) processBatch(ctx context.Context, fn Function, tableName string, opts ExecuteOptions, spec batchSpec) BatchResult {
	result := BatchResult{
		BatchID:   spec.id,
		Status:    BatchProcessing,
		StartedAt: time.Now().UTC(),
	}

	err := e.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := e.store.WithTx(tx)

		rows, err := st.SelectBatch(ctx, tableName, opts.Filter, spec.limit, spec.offset)
		if err != nil {
			return err
		}

		for _, row := range rows {
			id := row["id"]

			transformed, err := fn.Transform(copyRecord(row))
			if err != nil {
				e.logger.Warn().Err(err).
					Str("batch", spec.id).
					Interface("record_id", id).
					Msg("record transform failed")
				result.RecordsFailed++
				result.FailedRecordIDs = append(result.FailedRecordIDs, id)
				continue
			}

			if !opts.DryRun {
				values := targetValues(fn, transformed)
				if err := st.UpdateRowColumns(ctx, tableName, id, values); err != nil {
					return err
				}
			}
			result.RecordsProcessed++
		}
		return nil
	})

	result.EndedAt = time.Now().UTC()
	if err != nil {
		// The transaction rolled back, so nothing from this batch stuck.
		result.Status = BatchFailed
		result.ErrorMessage = err.Error()
		result.RecordsProcessed = 0
		result.RecordsFailed = 0
		result.FailedRecordIDs = nil
		return result
	}

	result.Status = BatchCompleted
	return result
}

// targetValues keeps only the columns the function declares as targets, so
// columns incidentally added by a buggy transform are never written back.
func targetValues(fn Function, record schema.Record) map[string]interface{} {
	values := make(map[string]interface{}, len(fn.TargetColumns))
	for _, column := range fn.TargetColumns {
		if value, ok := record[column]; ok {
			values[column] = value
		}
	}
	return values
}

func copyRecord(row map[string]interface{}) schema.Record {
	record := make(schema.Record, len(row))
	for k, v := range row {
		record[k] = v
	}
	return record
}

func logBatch(logger zerolog.Logger, spec batchSpec, result BatchResult) {
	logger.Info().
		Str("batch", spec.id).
		Int("num", spec.num+1).
		Int("of", spec.total).
		Str("status", result.Status).
		Int64("processed", result.RecordsProcessed).
		Int64("failed", result.RecordsFailed).
		Msg("batch finished")
}

// persistRun archives the run for history and rollback. Dry runs leave no
// persisted trace.
func (e *Executor) persistRun(ctx context.Context, fn Function, run *Run, logger zerolog.Logger) {
	if run.DryRun {
		return
	}

	record := &models.MigrationLog{
		ID:               run.ID,
		Name:             fn.Name,
		Description:      fn.Description,
		Version:          fn.Version,
		ContentHash:      fn.ContentHash,
		TableName:        run.TableName,
		Status:           run.Status,
		TotalRecords:     run.TotalRecords,
		RecordsProcessed: run.RecordsProcessed,
		RecordsFailed:    run.RecordsFailed,
		BackupTable:      run.BackupTable,
		ErrorMessage:     run.ErrorMessage,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.EndedAt,
	}
	if raw, err := json.Marshal(fn.TargetColumns); err == nil {
		record.TargetColumns = raw
	}
	if raw, err := json.Marshal(fn.SourceColumns); err == nil {
		record.SourceColumns = raw
	}

	if err := e.store.DB().WithContext(ctx).Create(record).Error; err != nil {
		logger.Error().Err(err).Msg("failed to persist migration log")
	}
}

// Rollback restores a table from the backup taken for the given run and
// marks the run rolled back. The backup is consumed by the swap, so only
// one rollback is possible per run.
func (e *Executor) Rollback(ctx context.Context, runID string) error {
	var record models.MigrationLog
	err := e.store.DB().WithContext(ctx).First(&record, "id = ?", runID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.WrapNotFoundError("migration run", runID)
		}
		return utils.WrapDatabaseError("rollback lookup", err)
	}

	if !record.CanRollback() {
		return utils.WrapRollbackUnavailableError(runID)
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("table", record.TableName).
		Str("backup_table", record.BackupTable).
		Msg("rolling back migration run")

	if err := e.store.DropTable(ctx, record.TableName); err != nil {
		return err
	}
	if err := e.store.RenameTable(ctx, record.BackupTable, record.TableName); err != nil {
		return err
	}

	now := time.Now().UTC()
	err = e.store.DB().WithContext(ctx).Model(&record).Updates(map[string]interface{}{
		"status":         models.RunRolledBack,
		"backup_table":   "",
		"rolled_back_at": now,
	}).Error
	if err != nil {
		return utils.WrapDatabaseError("rollback bookkeeping", err)
	}

	e.logger.Info().Str("run_id", runID).Msg("rollback completed")
	return nil
}

// History returns persisted runs, newest first, optionally filtered by
// table.
func (e *Executor) History(ctx context.Context, tableName string) ([]models.MigrationLog, error) {
	var records []models.MigrationLog
	query := e.store.DB().WithContext(ctx).Order("started_at DESC")
	if tableName != "" {
		query = query.Where("table_name = ?", tableName)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, utils.WrapDatabaseError("migration history", err)
	}
	return records, nil
}
