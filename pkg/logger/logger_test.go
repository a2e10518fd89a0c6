package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_StampsServiceField(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "out.log")

	err := Init(&Config{
		Service:  "notification-service",
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)

	Info("service starting")
	require.NoError(t, Sync())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"service":"notification-service"`)
	assert.Contains(t, string(content), "service starting")
}

func TestInit_LevelFiltersDebug(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "out.log")

	err := Init(&Config{
		Service:  "call-service",
		Level:    "warn",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)

	Debug("noise")
	Warn("signal")
	require.NoError(t, Sync())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "noise")
	assert.Contains(t, string(content), "signal")
}

func TestInitDefault(t *testing.T) {
	InitDefault("call-service")

	assert.NotNil(t, Log)
	assert.NotNil(t, Sugar)
}
