package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/hoopstats/internal/utils"
)

func TestParseFilters(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		filter, err := parseFilters(nil)
		require.NoError(t, err)
		assert.Nil(t, filter)
	})

	t.Run("column=value pairs", func(t *testing.T) {
		filter, err := parseFilters([]string{"season_year=2023", "team=LAL"})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"season_year": "2023", "team": "LAL"}, filter)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		filter, err := parseFilters([]string{"note=a=b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"note": "a=b"}, filter)
	})

	t.Run("malformed entries rejected", func(t *testing.T) {
		for _, entry := range []string{"season_year", "=2023"} {
			_, err := parseFilters([]string{entry})
			require.Error(t, err, entry)
			assert.True(t, utils.IsValidationError(err))
		}
	})
}
