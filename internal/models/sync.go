package models

import "time"

type Sync struct {
	ID           string    `json:"id"`
	ConnectionID int64     `json:"connection_id"`
	Name         string    `json:"name"`
	Variant      string    `json:"variant"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncConfig is the deployed definition of a sync or webhook script.
type SyncConfig struct {
	ID            int64          `json:"id"`
	EnvironmentID int64          `json:"environment_id"`
	ConfigID      int64          `json:"nango_config_id"`
	SyncName      string         `json:"sync_name"`
	Type          string         `json:"type"`
	Models        []string       `json:"models"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Enabled       bool           `json:"enabled"`
	IsAction      bool           `json:"is_action"`
}

// SyncResult holds per-model record counters.
type SyncResult struct {
	Added   int64 `json:"added"`
	Updated int64 `json:"updated"`
	Deleted int64 `json:"deleted"`
}

// SyncJob is one persisted execution attempt.
type SyncJob struct {
	ID           int64                 `json:"id"`
	SyncID       string                `json:"sync_id"`
	Type         string                `json:"type"`
	Status       JobStatus             `json:"status"`
	JobID        string                `json:"job_id"`
	SyncConfigID int64                 `json:"sync_config_id"`
	RunID        string                `json:"run_id"`
	LogID        string                `json:"log_id"`
	Result       map[string]SyncResult `json:"result,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ResultFor returns the counters recorded for model, zero when absent.
func (j *SyncJob) ResultFor(model string) SyncResult {
	if j == nil || j.Result == nil {
		return SyncResult{}
	}
	return j.Result[model]
}
