package utils

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger := NewLogger(LoggerOptions{Level: "warn", Format: "json", Output: "file", FilePath: path, MaxSize: 1})

	logger.Info("dropped")
	logger.Warn("account suspended", "account_number", "ACC-001")

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"account suspended"`)
	assert.Contains(t, string(raw), `"account_number":"ACC-001"`)
	assert.NotContains(t, string(raw), "dropped")
}
