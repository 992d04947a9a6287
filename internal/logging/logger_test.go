package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"alignrun/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultLevelIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{}, zapcore.AddSync(&buf))

	logger.Info("hidden")
	logger.Warn("shown")
	Sync(logger)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, ServiceName+".")
}

func TestNewDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))

	logger.Debug("launch", zap.String("exe", "align"))
	Sync(logger)

	assert.Contains(t, buf.String(), "launch")
	assert.Contains(t, buf.String(), `"exe": "align"`)
}

func TestNewInvalidLevelFallsBackToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "chatty"}, zapcore.AddSync(&buf))

	logger.Info("hidden")
	Sync(logger)

	assert.Empty(t, buf.String())
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))

	logger.Info("run finished", zap.Int("exit_code", 3))
	Sync(logger)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, ServiceName, entry["logger"])
	assert.EqualValues(t, 3, entry["exit_code"])
}

func TestSyncNil(t *testing.T) {
	assert.NotPanics(t, func() { Sync(nil) })
}
