package logging

import (
	"os"
	"path/filepath"
	"testing"

	"ridesync/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "test-app",
		Environment: "test",
		Version:     "1.0.0",
	}

	t.Run("DefaultStdout", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "info", Output: "stdout"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Console", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "warn", Output: "stderr", Format: "console"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
		assert.Nil(t, closer)
	})

	t.Run("RotatedFile", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "sync.log")
		cfg := config.LoggingConfig{Level: "info", Output: "file", FilePath: logPath, MaxSizeMB: 1}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)

		logger.Info().Msg("queue drained")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "queue drained")
		assert.Contains(t, string(data), `"app":"test-app"`)
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		cfg := config.LoggingConfig{Output: "file", FilePath: ""}
		_, _, err := New(cfg, appCfg)
		assert.Error(t, err)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "invalid"}
		logger, _, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestComponent(t *testing.T) {
	nop := Component(nil, "engine")
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())

	base := zerolog.New(os.Stderr)
	child := Component(&base, "engine")
	assert.NotEqual(t, zerolog.Disabled, child.GetLevel())
}
