package adapter

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hangar.log")
	logger, closer, err := SetupLogger(&LoggingConfig{File: path, Level: "debug"})
	require.NoError(t, err)

	logger.Debug("timeline refreshed", "posts", 25)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"timeline refreshed"`)
	assert.Contains(t, string(data), `"posts":25`)
}

func TestSetupLoggerWithoutFile(t *testing.T) {
	logger, closer, err := SetupLogger(&LoggingConfig{})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("chatty"))
}

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	quiet := ConsoleLogger(&buf, false)
	quiet.Info("hidden")
	quiet.Warn("cache degraded")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "cache degraded")
	assert.NotContains(t, buf.String(), "\x1b[", "non-terminal output is uncolored")

	buf.Reset()
	ConsoleLogger(&buf, true).Debug("polling")
	assert.Contains(t, buf.String(), "polling")
}
