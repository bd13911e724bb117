package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON output with info level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(LoggerConfig{Level: "info"}).Output(buf)

		logger.Info().Msg("test message")

		var entry map[string]interface{}
		err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry)
		require.NoError(t, err)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "test message", entry["message"])
		assert.Contains(t, entry, "time")
	})

	t.Run("Debug suppressed at info level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(LoggerConfig{Level: "info"}).Output(buf)

		logger.Debug().Msg("hidden")

		assert.Empty(t, buf.String())
	})

	t.Run("With caller info", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(LoggerConfig{Level: "info", CallerInfo: true}).Output(buf)

		logger.Info().Msg("test message")

		var entry map[string]interface{}
		err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry)
		require.NoError(t, err)
		assert.Contains(t, entry, "caller")
	})

	t.Run("Invalid level falls back to info", func(t *testing.T) {
		logger := NewLogger(LoggerConfig{Level: "nope"})
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestLoggerContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).With().Timestamp().Logger()

	ctx := WithContext(context.Background(), logger)
	fromCtx := FromContext(ctx)
	require.NotNil(t, fromCtx)

	fromCtx.Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}

func TestLoggerConfigs(t *testing.T) {
	assert.Equal(t, "info", DefaultConfig().Level)
	assert.False(t, DefaultConfig().Pretty)

	assert.Equal(t, "debug", DevelopmentConfig().Level)
	assert.True(t, DevelopmentConfig().Pretty)
}
