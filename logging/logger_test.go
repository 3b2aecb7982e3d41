package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_FileSink(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Options{Name: "test", Dir: dir, Quiet: true})
	require.NoError(t, err)

	WithRank(logger, 0).Info("eval type: widerface")
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "eval type: widerface")
	assert.Contains(t, string(data), `"rank":0`)
	assert.Contains(t, string(data), `"logger":"test"`)
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	WithOperation(logger, "segment", "req-1").Info("done")
	WithOperation(logger, "health", "").Info("ok")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	_, hasID := entries[1].ContextMap()["request_id"]
	assert.False(t, hasID)
}
