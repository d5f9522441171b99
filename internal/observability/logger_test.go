// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer for capture.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format produces readable single lines", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "debug", Format: "console"}, &buf)

		logger := GetLogger().Named("extractor")
		logger.Info("perception pass finished", zap.Int("elements", 12))

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "percept.extractor.")
		assert.Contains(t, out, "perception pass finished")
	})

	t.Run("json format emits parseable objects", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &buf)

		GetLogger().Warn("selector rejected", zap.String("selector", "#a b["))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "selector rejected", entry["msg"])
		assert.Equal(t, "#a b[", entry["selector"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "extremely-verbose", Format: "json"}, &buf)

		GetLogger().Debug("should be filtered")
		GetLogger().Info("should appear")

		out := buf.String()
		assert.NotContains(t, out, "should be filtered")
		assert.Contains(t, out, "should appear")
	})

	t.Run("file core writes rotated json log", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logFile := filepath.Join(t.TempDir(), "percept.log")
		var buf syncBuffer
		Initialize(config.LoggerConfig{
			Level:   "info",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, &buf)

		GetLogger().Info("written to both cores")
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "written to both cores", entry["msg"])
	})

	t.Run("second initialize is a no-op", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var first, second syncBuffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &second)

		GetLogger().Info("only the first writer sees this")
		assert.Contains(t, first.String(), "only the first writer sees this")
		assert.Empty(t, second.String())
	})
}

func TestGetLogger_BeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic; the fallback is a usable development logger.
	logger.Debug("fallback logger in use")
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)
