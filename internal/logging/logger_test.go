package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"hookrunner/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "hookrunner-test",
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

	t.Run("Stderr", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "debug", Output: "stderr"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Console", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "warn", Output: "stdout", Format: "console"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("File", func(t *testing.T) {
		tmpDir := t.TempDir()
		logPath := filepath.Join(tmpDir, "test.log")
		cfg := config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NotNil(t, closer)
		closer.Close()

		_, err = os.Stat(logPath)
		assert.NoError(t, err)
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		cfg := config.LoggingConfig{Output: "file", FilePath: ""}
		_, _, err := New(cfg, appCfg)
		assert.Error(t, err)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "invalid"}
		logger, _, err := New(cfg, appCfg)
		require.NoError(t, err) // Should default to info
		assert.NotNil(t, logger)
	})
}

func TestComponent(t *testing.T) {
	t.Run("NilParent", func(t *testing.T) {
		l := Component(nil, "x")
		require.NotNil(t, l)
		assert.Equal(t, zerolog.Disabled, l.GetLevel())
	})

	t.Run("TaggedChild", func(t *testing.T) {
		var buf bytes.Buffer
		parent := zerolog.New(&buf)
		l := Component(&parent, "execution")
		l.Info().Msg("hello")
		assert.Contains(t, buf.String(), `"component":"execution"`)
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, OrNop(nil).GetLevel())

	parent := zerolog.New(&bytes.Buffer{})
	assert.Same(t, &parent, OrNop(&parent))
}

func TestTask(t *testing.T) {
	var buf bytes.Buffer
	parent := zerolog.New(&buf)

	Task(&parent, "task-1", "conn-1", "issues").Info().Msg("run")

	out := buf.String()
	assert.Contains(t, out, `"task_id":"task-1"`)
	assert.Contains(t, out, `"connection_id":"conn-1"`)
	assert.Contains(t, out, `"sync":"issues"`)

	assert.NotPanics(t, func() { Task(nil, "t", "c", "s").Info().Msg("dropped") })
}
