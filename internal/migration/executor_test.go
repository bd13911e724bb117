package migration

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/schema"
	"github.com/ksred/hoopstats/internal/storage"
	"github.com/ksred/hoopstats/internal/utils"
)

func setupExecutor(t *testing.T, config ExecutorConfig) (*Executor, *storage.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "executor_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MigrationLog{}))

	store := storage.NewStore(db)
	return NewExecutor(store, config, zerolog.Nop()), store
}

func seedPlayers(t *testing.T, store *storage.Store, count int) {
	t.Helper()
	err := store.DB().Exec(`CREATE TABLE players (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, player_url TEXT, player_id TEXT)`).Error
	require.NoError(t, err)
	for i := 0; i < count; i++ {
		err := store.DB().Exec(
			`INSERT INTO players (name, player_url) VALUES (?, ?)`,
			fmt.Sprintf("player_%03d", i),
			fmt.Sprintf("/players/j/jamesle%02d.html", i),
		).Error
		require.NoError(t, err)
	}
}

func upperNameFunc() Function {
	return Function{
		Name:        "upper_name",
		Description: "Uppercase the name column",
		Transform: func(record schema.Record) (schema.Record, error) {
			if name, ok := record["name"].(string); ok {
				record["name"] = strings.ToUpper(name)
			}
			return record, nil
		},
		TargetColumns: []string{"name"},
		SourceColumns: []string{"name"},
		Version:       "1.0",
		ContentHash:   "upper-name-v1",
	}
}

func TestPartitionBatches(t *testing.T) {
	tests := []struct {
		total     int64
		batchSize int
		offsets   []int
		limits    []int
	}{
		{2500, 1000, []int{0, 1000, 2000}, []int{1000, 1000, 500}},
		{1000, 1000, []int{0}, []int{1000}},
		{1, 1000, []int{0}, []int{1}},
		{10, 3, []int{0, 3, 6, 9}, []int{3, 3, 3, 1}},
	}

	for _, tt := range tests {
		specs := partitionBatches(tt.total, tt.batchSize)
		require.Len(t, specs, len(tt.offsets), "total=%d batchSize=%d", tt.total, tt.batchSize)

		var covered int64
		for i, spec := range specs {
			assert.Equal(t, tt.offsets[i], spec.offset)
			assert.Equal(t, tt.limits[i], spec.limit)
			assert.Equal(t, i, spec.num)
			assert.Equal(t, len(specs), spec.total)
			covered += int64(spec.limit)
		}
		assert.Equal(t, tt.total, covered, "batches must exactly cover the record space")
	}
}

func TestExecutor_ZeroRecords(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{EnableRollback: true})
	seedPlayers(t, store, 0)

	run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{})

	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Zero(t, run.TotalRecords)
	assert.Empty(t, run.BatchResults)
	assert.Empty(t, run.BackupTable, "no backup needed with nothing to mutate")
	require.NotNil(t, run.EndedAt)

	history, err := executor.History(context.Background(), "players")
	require.NoError(t, err)
	require.Len(t, history, 1, "even empty runs are persisted")
}

func TestExecutor_ExecuteSequential(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{BatchSize: 3, EnableRollback: true})
	seedPlayers(t, store, 10)

	run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{Sequential: true})

	assert.Equal(t, models.RunCompleted, run.Status)
	assert.EqualValues(t, 10, run.TotalRecords)
	assert.EqualValues(t, 10, run.RecordsProcessed)
	assert.Zero(t, run.RecordsFailed)
	assert.Equal(t, 4, run.BatchesCompleted)
	assert.NotEmpty(t, run.BackupTable)

	rows, err := store.SelectBatch(context.Background(), "players", nil, 10, 0)
	require.NoError(t, err)
	for _, row := range rows {
		name := row["name"].(string)
		assert.Equal(t, strings.ToUpper(name), name)
	}

	assert.True(t, store.HasTable(run.BackupTable))
}

func TestExecutor_ParallelSequentialEquivalence(t *testing.T) {
	flaky := Function{
		Name: "flaky",
		Transform: func(record schema.Record) (schema.Record, error) {
			if name, ok := record["name"].(string); ok && strings.HasSuffix(name, "3") {
				return nil, fmt.Errorf("bad row %s", name)
			}
			record["player_id"] = "x"
			return record, nil
		},
		TargetColumns: []string{"player_id"},
		Version:       "1.0",
		ContentHash:   "flaky-v1",
	}

	var runs []*Run
	for _, sequential := range []bool{true, false} {
		executor, store := setupExecutor(t, ExecutorConfig{BatchSize: 4, MaxWorkers: 3})
		seedPlayers(t, store, 20)
		run := executor.Execute(context.Background(), flaky, "players", ExecuteOptions{Sequential: sequential})
		runs = append(runs, run)
	}

	assert.Equal(t, runs[0].RecordsProcessed, runs[1].RecordsProcessed)
	assert.Equal(t, runs[0].RecordsFailed, runs[1].RecordsFailed)
	assert.Equal(t, runs[0].Status, runs[1].Status)
	assert.EqualValues(t, 2, runs[0].RecordsFailed, "player_003 and player_013 fail")
	assert.Equal(t, models.RunPartial, runs[0].Status)
}

// A parallel request against a single-writer backend must not lose batches
// to writer-lock contention: the executor processes them in order instead,
// and an all-success input always finishes completed.
func TestExecutor_ParallelRequestOnSingleWriterBackend(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{BatchSize: 7, MaxWorkers: 4})
	seedPlayers(t, store, 53)

	for i := 0; i < 5; i++ {
		run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{})

		require.Equal(t, models.RunCompleted, run.Status)
		assert.EqualValues(t, 53, run.RecordsProcessed)
		assert.Zero(t, run.RecordsFailed)
		assert.Equal(t, 8, run.BatchesCompleted)
		assert.Zero(t, run.BatchesFailed)
	}
}

func TestExecutor_PerRowFailureDoesNotAbortBatch(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{BatchSize: 100})
	seedPlayers(t, store, 5)

	fn := Function{
		Name: "fail_second",
		Transform: func(record schema.Record) (schema.Record, error) {
			if record["name"] == "player_001" {
				return nil, fmt.Errorf("boom")
			}
			record["player_id"] = "ok"
			return record, nil
		},
		TargetColumns: []string{"player_id"},
		Version:       "1.0",
		ContentHash:   "fail-second-v1",
	}

	run := executor.Execute(context.Background(), fn, "players", ExecuteOptions{Sequential: true})

	assert.Equal(t, models.RunPartial, run.Status)
	assert.EqualValues(t, 4, run.RecordsProcessed)
	assert.EqualValues(t, 1, run.RecordsFailed)
	require.Len(t, run.BatchResults, 1)
	assert.Len(t, run.BatchResults[0].FailedRecordIDs, 1)

	// The four good rows committed despite the bad one.
	count, err := store.CountRows(context.Background(), "players", map[string]interface{}{"player_id": "ok"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)
}

func TestExecutor_TargetColumnsOnly(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{})
	seedPlayers(t, store, 2)

	fn := Function{
		Name: "stray_writer",
		Transform: func(record schema.Record) (schema.Record, error) {
			record["player_id"] = "good"
			record["no_such_column"] = "would break the update if written"
			return record, nil
		},
		TargetColumns: []string{"player_id"},
		Version:       "1.0",
		ContentHash:   "stray-writer-v1",
	}

	run := executor.Execute(context.Background(), fn, "players", ExecuteOptions{Sequential: true})

	assert.Equal(t, models.RunCompleted, run.Status)
	count, err := store.CountRows(context.Background(), "players", map[string]interface{}{"player_id": "good"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestExecutor_DryRun(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{EnableRollback: true})
	seedPlayers(t, store, 5)

	run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{DryRun: true, Sequential: true})

	assert.Equal(t, models.RunCompleted, run.Status)
	assert.True(t, run.DryRun)
	assert.EqualValues(t, 5, run.RecordsProcessed)
	assert.Empty(t, run.BackupTable, "dry runs take no backup")

	rows, err := store.SelectBatch(context.Background(), "players", nil, 5, 0)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, strings.ToLower(row["name"].(string)), row["name"], "dry run must not mutate rows")
	}

	history, err := executor.History(context.Background(), "players")
	require.NoError(t, err)
	assert.Empty(t, history, "dry runs leave no persisted trace")
}

func TestExecutor_CountFailureFailsRun(t *testing.T) {
	executor, _ := setupExecutor(t, ExecutorConfig{})

	run := executor.Execute(context.Background(), upperNameFunc(), "no_such_table", ExecuteOptions{})

	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
	require.NotNil(t, run.EndedAt)
}

func TestExecutor_Rollback(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{EnableRollback: true})
	seedPlayers(t, store, 5)

	run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{Sequential: true})
	require.Equal(t, models.RunCompleted, run.Status)
	require.NotEmpty(t, run.BackupTable)

	require.NoError(t, executor.Rollback(context.Background(), run.ID))

	rows, err := store.SelectBatch(context.Background(), "players", nil, 5, 0)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, strings.ToLower(row["name"].(string)), row["name"], "rollback must restore original rows")
	}
	assert.False(t, store.HasTable(run.BackupTable), "the backup is consumed by the swap")

	history, err := executor.History(context.Background(), "players")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RunRolledBack, history[0].Status)
	assert.NotNil(t, history[0].RolledBackAt)

	err = executor.Rollback(context.Background(), run.ID)
	assert.True(t, utils.IsRollbackUnavailableError(err), "only one rollback per run")
}

func TestExecutor_RollbackUnavailable(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{EnableRollback: false})
	seedPlayers(t, store, 3)

	t.Run("unknown run", func(t *testing.T) {
		err := executor.Rollback(context.Background(), "no-such-run")
		assert.True(t, utils.IsNotFoundError(err))
	})

	t.Run("rollback disabled run has no backup", func(t *testing.T) {
		run := executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{Sequential: true})
		require.Equal(t, models.RunCompleted, run.Status)
		require.Empty(t, run.BackupTable)

		err := executor.Rollback(context.Background(), run.ID)
		assert.True(t, utils.IsRollbackUnavailableError(err))
	})
}

func TestExecutor_History(t *testing.T) {
	executor, store := setupExecutor(t, ExecutorConfig{})
	seedPlayers(t, store, 2)
	require.NoError(t, store.DB().Exec(`CREATE TABLE games (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`).Error)
	require.NoError(t, store.DB().Exec(`INSERT INTO games (name) VALUES ('g1')`).Error)

	executor.Execute(context.Background(), upperNameFunc(), "players", ExecuteOptions{Sequential: true})
	executor.Execute(context.Background(), upperNameFunc(), "games", ExecuteOptions{Sequential: true})

	all, err := executor.History(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	players, err := executor.History(context.Background(), "players")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "players", players[0].TableName)
}
