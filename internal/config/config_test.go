package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("RUNNER_URL", "http://runner:3006")

	yamlContent := `
app:
  name: "hookrunner-test"
database:
  path: "test.db"
runner:
  url: "${RUNNER_URL}"
  request_timeout: 5s
webhooks:
  retry:
    max_retries: 7
api:
  enabled: true
  auth:
    api_keys:
      - key: "secret"
        name: "scheduler"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "hookrunner-test", cfg.App.Name)
	assert.Equal(t, "http://runner:3006", cfg.Runner.URL)
	assert.Equal(t, 5*time.Second, cfg.Runner.RequestTimeout)
	assert.Equal(t, 7, cfg.Webhooks.Retry.MaxRetries)
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "webhooks:tasks", cfg.Worker.QueueKey)
	assert.Equal(t, "hookrunner-test", cfg.Tracing.ServiceName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Runner:   RunnerConfig{URL: "http://runner"},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Runner: RunnerConfig{URL: "http://runner"},
			},
			wantErr: true,
		},
		{
			name: "missing runner url",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "analytics without table",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Runner:    RunnerConfig{URL: "http://runner"},
				Analytics: AnalyticsConfig{Enabled: true, ProjectID: "p", DatasetID: "d"},
			},
			wantErr: true,
		},
		{
			name: "duplicate api key",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Runner:   RunnerConfig{URL: "http://runner"},
				API: APIConfig{Auth: APIAuthConfig{APIKeys: []APIClientKey{
					{Key: "k", Name: "a"},
					{Key: "k", Name: "b"},
				}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
