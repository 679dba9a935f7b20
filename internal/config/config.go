package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	API        APIConfig        `yaml:"api"`
	Runner     RunnerConfig     `yaml:"runner"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// ServerConfig describes how scripts reach the public API.
type ServerConfig struct {
	PublicURL string `yaml:"public_url"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// RunnerConfig points at the external script runner.
type RunnerConfig struct {
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WebhooksConfig struct {
	DeliveryTimeout time.Duration     `yaml:"delivery_timeout"`
	SignatureHeader string            `yaml:"signature_header"`
	Retry           RetryPolicyConfig `yaml:"retry"`
}

type RetryPolicyConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type AnalyticsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ProjectID       string        `yaml:"project_id"`
	DatasetID       string        `yaml:"dataset_id"`
	TableID         string        `yaml:"table_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	InsertTimeout   time.Duration `yaml:"insert_timeout"`
}

type WorkerConfig struct {
	QueueKey      string        `yaml:"queue_key"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	TaskStateTTL  time.Duration `yaml:"task_state_ttl"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Runner.URL) == "" {
		return errors.New("runner url is required")
	}

	if c.Analytics.Enabled {
		if c.Analytics.ProjectID == "" || c.Analytics.DatasetID == "" || c.Analytics.TableID == "" {
			return errors.New("analytics requires project_id, dataset_id and table_id")
		}
	}

	keys := make(map[string]bool, len(c.API.Auth.APIKeys))
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if keys[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		keys[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hookrunner"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 3005
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}

	if c.Runner.RequestTimeout == 0 {
		c.Runner.RequestTimeout = 30 * time.Second
	}

	if c.Webhooks.DeliveryTimeout == 0 {
		c.Webhooks.DeliveryTimeout = 20 * time.Second
	}
	if c.Webhooks.SignatureHeader == "" {
		c.Webhooks.SignatureHeader = "X-Nango-Signature"
	}
	if c.Webhooks.Retry.MaxRetries == 0 {
		c.Webhooks.Retry.MaxRetries = 3
	}
	if c.Webhooks.Retry.InitialDelay == 0 {
		c.Webhooks.Retry.InitialDelay = time.Second
	}
	if c.Webhooks.Retry.MaxDelay == 0 {
		c.Webhooks.Retry.MaxDelay = 10 * time.Second
	}
	if c.Webhooks.Retry.BackoffFactor == 0 {
		c.Webhooks.Retry.BackoffFactor = 2
	}

	if c.Analytics.InsertTimeout == 0 {
		c.Analytics.InsertTimeout = 10 * time.Second
	}

	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = "webhooks:tasks"
	}
	if c.Worker.DeadLetterKey == "" {
		c.Worker.DeadLetterKey = "webhooks:deadletter"
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.TaskStateTTL == 0 {
		c.Worker.TaskStateTTL = 24 * time.Hour
	}
}
