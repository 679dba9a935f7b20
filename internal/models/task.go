package models

import "time"

// ConnectionRef identifies the connection a task runs against.
type ConnectionRef struct {
	ID                int64  `json:"id"`
	ConnectionID      string `json:"connection_id"`
	EnvironmentID     int64  `json:"environment_id"`
	ProviderConfigKey string `json:"provider_config_key"`
}

// Task is a single webhook script run handed over by the scheduler.
type Task struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	WebhookName          string         `json:"webhook_name"`
	ParentSyncName       string         `json:"parent_sync_name"`
	Connection           ConnectionRef  `json:"connection"`
	Input                map[string]any `json:"input,omitempty"`
	ActivityLogID        string         `json:"activity_log_id"`
	HeartbeatTimeoutSecs int            `json:"heartbeat_timeout_secs"`
	CreatedAt            time.Time      `json:"created_at"`
}

// TaskState is the recorded outcome of a task.
type TaskState struct {
	TaskID    string         `json:"task_id"`
	State     string         `json:"state"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StartRequest is what the script runner receives to start a run.
type StartRequest struct {
	TaskID string          `json:"taskId"`
	Props  *ExecutionProps `json:"nangoProps"`
	Input  map[string]any  `json:"input,omitempty"`
}
