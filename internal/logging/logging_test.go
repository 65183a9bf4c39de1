package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLoggerWritesFileAndStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	var stdout bytes.Buffer
	log, closer, err := newLogger(&stdout, "info", path)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("bot started", "workers", 4)
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	file := string(b)

	assert.Contains(t, file, "previous run\n", "file is appended to")
	assert.Contains(t, file, "level=INFO msg=\"bot started\" workers=4")
	assert.Contains(t, file, "time=")
	assert.NotContains(t, file, "hidden")
	assert.Contains(t, stdout.String(), "bot started")
}

func TestLoggerWithoutFile(t *testing.T) {
	var stdout bytes.Buffer
	log, closer, err := newLogger(&stdout, "debug", "")
	require.NoError(t, err)
	log.Debug("shown")
	assert.NoError(t, closer.Close())
	assert.Contains(t, stdout.String(), "shown")
}

func TestLoggerBadPath(t *testing.T) {
	_, _, err := newLogger(&bytes.Buffer{}, "info", filepath.Join(t.TempDir(), "missing", "bot.log"))
	assert.Error(t, err)
}
