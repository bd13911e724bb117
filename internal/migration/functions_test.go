package migration

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/hoopstats/internal/schema"
)

func TestExtractPlayerID(t *testing.T) {
	t.Run("player_url", func(t *testing.T) {
		record, err := ExtractPlayerID(schema.Record{"player_url": "/players/j/jamesle01.html"})
		require.NoError(t, err)
		assert.Equal(t, "jamesle01", record["player_id"])
	})

	t.Run("falls back to url", func(t *testing.T) {
		record, err := ExtractPlayerID(schema.Record{"url": "https://example.com/players/c/curryst01.html"})
		require.NoError(t, err)
		assert.Equal(t, "curryst01", record["player_id"])
	})

	t.Run("no url is a no-op", func(t *testing.T) {
		record, err := ExtractPlayerID(schema.Record{"name": "LeBron"})
		require.NoError(t, err)
		assert.NotContains(t, record, "player_id")
	})

	t.Run("non-matching url is a no-op", func(t *testing.T) {
		record, err := ExtractPlayerID(schema.Record{"player_url": "/teams/LAL/2024.html"})
		require.NoError(t, err)
		assert.NotContains(t, record, "player_id")
	})
}

func TestParseGameDate(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		parsed     string
		seasonYear int
	}{
		{"iso late season", "2024-03-15", "2024-03-15", 2023},
		{"iso season opener", "2023-10-24", "2023-10-24", 2023},
		{"us slash format", "12/25/2023", "2023-12-25", 2023},
		{"long format", "Jan 2, 2024", "2024-01-02", 2023},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseGameDate(schema.Record{"date": tt.raw})
			require.NoError(t, err)
			assert.Equal(t, tt.parsed, record["parsed_date"])
			assert.Equal(t, tt.seasonYear, record["season_year"])
		})
	}

	t.Run("game_date key", func(t *testing.T) {
		record, err := ParseGameDate(schema.Record{"game_date": "2024-11-01"})
		require.NoError(t, err)
		assert.Equal(t, 2024, record["season_year"])
	})

	t.Run("missing date is a no-op", func(t *testing.T) {
		record, err := ParseGameDate(schema.Record{"pts": 30})
		require.NoError(t, err)
		assert.NotContains(t, record, "parsed_date")
	})

	t.Run("unparseable date errors", func(t *testing.T) {
		_, err := ParseGameDate(schema.Record{"date": "sometime last week"})
		assert.Error(t, err)
	})
}

func TestCalculateAgeOnDate(t *testing.T) {
	t.Run("computes fractional years", func(t *testing.T) {
		record, err := CalculateAgeOnDate(schema.Record{
			"birth_date": "1984-12-30",
			"game_date":  "2024-12-30",
		})
		require.NoError(t, err)
		age := record["age_on_date"].(float64)
		assert.InDelta(t, 40.0, age, 0.05)
	})

	t.Run("uses parsed_date fallback", func(t *testing.T) {
		record, err := CalculateAgeOnDate(schema.Record{
			"birth_date":  "2000-01-01",
			"parsed_date": "2020-01-01",
		})
		require.NoError(t, err)
		assert.InDelta(t, 20.0, record["age_on_date"].(float64), 0.05)
	})

	t.Run("missing inputs are a no-op", func(t *testing.T) {
		record, err := CalculateAgeOnDate(schema.Record{"birth_date": "2000-01-01"})
		require.NoError(t, err)
		assert.NotContains(t, record, "age_on_date")
	})

	t.Run("invalid birth date errors", func(t *testing.T) {
		_, err := CalculateAgeOnDate(schema.Record{
			"birth_date": "not a date",
			"game_date":  "2024-01-01",
		})
		assert.Error(t, err)
	})
}

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(registry, zerolog.Nop()))

	functions := registry.List()
	require.Len(t, functions, 3)

	names := make([]string, 0, len(functions))
	for _, fn := range functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"calculate_age_on_date", "extract_player_id", "parse_game_dates"}, names)

	// Registering the same set twice is idempotent.
	assert.NoError(t, RegisterBuiltins(registry, zerolog.Nop()))
}
