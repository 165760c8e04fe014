package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFileName(t *testing.T) {
	day := time.Date(2024, 7, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "2024-07-01.txt"), FileName("logs", day))
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	l, err = parseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesRunLog(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	logger, err := New(Config{Level: "error", Dir: dir}, now)
	require.NoError(t, err)

	logger.WithField("run_id", "run-1").Info("sync started")
	logger.Debug("not written to the file")
	logger.Sync()

	content, err := os.ReadFile(FileName(dir, now))
	require.NoError(t, err)
	assert.Contains(t, string(content), "sync started")
	assert.NotContains(t, string(content), "not written to the file")
}
