package schema

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/hoopstats/internal/storage"
)

func newTestSystem(t *testing.T, opts Options) (*System, *storage.Store) {
	t.Helper()
	db := setupTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE players (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`).Error)
	store := storage.NewStore(db)
	return NewSystem(store, opts, zerolog.Nop()), store
}

func TestSystem_NoChanges(t *testing.T) {
	system, _ := newTestSystem(t, Options{PauseOnChanges: true})

	result := system.Process(context.Background(), "players", []Record{{"name": "A"}}, "per_game")

	assert.Zero(t, result.ChangesDetected)
	assert.True(t, result.ContinueIngestion)
	assert.False(t, result.MigrationApplied)
}

func TestSystem_PauseHaltsWithoutMigrating(t *testing.T) {
	system, store := newTestSystem(t, Options{PauseOnChanges: true, AutoMigrate: true})

	records := []Record{{"name": "A", "pts": 10}}
	result := system.Process(context.Background(), "players", records, "per_game")

	assert.Equal(t, 1, result.ChangesDetected)
	assert.False(t, result.ContinueIngestion)
	assert.False(t, result.MigrationApplied, "halted batch must not auto-migrate")

	columns, err := store.ListColumns(context.Background(), "players")
	require.NoError(t, err)
	for _, col := range columns {
		assert.NotEqual(t, "pts", col.Name)
	}
}

func TestSystem_AutoMigrateApplies(t *testing.T) {
	system, store := newTestSystem(t, Options{AutoMigrate: true})

	records := []Record{{"name": "A", "pts": 10}}
	result := system.Process(context.Background(), "players", records, "per_game")

	assert.Equal(t, 1, result.ChangesDetected)
	assert.True(t, result.ContinueIngestion)
	assert.True(t, result.MigrationApplied)
	require.NotNil(t, result.MigrationResult)
	assert.Len(t, result.MigrationResult.Applied, 1)

	columns, err := store.ListColumns(context.Background(), "players")
	require.NoError(t, err)
	found := false
	for _, col := range columns {
		if col.Name == "pts" {
			found = true
		}
	}
	assert.True(t, found, "pts column should exist after auto-migration")

	// A second pass over the same records converges to a no-op.
	again := system.Process(context.Background(), "players", records, "per_game")
	assert.Zero(t, again.ChangesDetected)
	assert.True(t, again.ContinueIngestion)
}

func TestSystem_FailedMigrationHaltsPipeline(t *testing.T) {
	// No table at all, so detection degrades to adds; force a DDL failure
	// by pointing the change at a table that cannot be altered.
	db := setupTestDB(t)
	store := storage.NewStore(db)
	system := NewSystem(store, Options{AutoMigrate: true}, zerolog.Nop())

	// Table is missing entirely: every add fails at DDL time.
	result := system.Process(context.Background(), "missing_table", []Record{{"pts": 1}}, "per_game")

	assert.Equal(t, 1, result.ChangesDetected)
	require.NotNil(t, result.MigrationResult)
	assert.NotEmpty(t, result.MigrationResult.Failed)
	assert.False(t, result.ContinueIngestion, "structural failure must halt the pipeline")
}
