package models

import "time"

// ExecutionProps is the full execution context handed to the script runner.
// The runner echoes it back when it reports completion.
type ExecutionProps struct {
	ScriptType           string         `json:"scriptType"`
	Host                 string         `json:"host"`
	Team                 Team           `json:"team"`
	ConnectionID         string         `json:"connectionId"`
	EnvironmentID        int64          `json:"environmentId"`
	EnvironmentName      string         `json:"environmentName"`
	ProviderConfigKey    string         `json:"providerConfigKey"`
	Provider             string         `json:"provider"`
	ActivityLogID        string         `json:"activityLogId"`
	SecretKey            string         `json:"secretKey"`
	NangoConnectionID    int64          `json:"nangoConnectionId"`
	Attributes           map[string]any `json:"attributes,omitempty"`
	SyncConfig           SyncConfig     `json:"syncConfig"`
	SyncID               string         `json:"syncId"`
	SyncVariant          string         `json:"syncVariant"`
	SyncJobID            int64          `json:"syncJobId"`
	Debug                bool           `json:"debug"`
	RunnerFlags          map[string]any `json:"runnerFlags,omitempty"`
	StartedAt            time.Time      `json:"startedAt"`
	EndUser              *EndUser       `json:"endUser"`
	HeartbeatTimeoutSecs int            `json:"heartbeatTimeoutSecs"`
}

// Connection returns the connection reference carried by the props.
func (p *ExecutionProps) Connection() ConnectionRef {
	return ConnectionRef{
		ID:                p.NangoConnectionID,
		ConnectionID:      p.ConnectionID,
		EnvironmentID:     p.EnvironmentID,
		ProviderConfigKey: p.ProviderConfigKey,
	}
}

// ExecutionContext holds the entities resolved for one task. Fields are filled
// in resolution order and stay nil past the step that failed.
type ExecutionContext struct {
	Team           *Team
	Environment    *Environment
	ProviderConfig *ProviderConfig
	Sync           *Sync
	SyncConfig     *SyncConfig
	EndUser        *EndUser
	Job            *SyncJob
}

// Models returns the models declared by the sync config, nil when unresolved.
func (c *ExecutionContext) Models() []string {
	if c == nil || c.SyncConfig == nil {
		return nil
	}
	return c.SyncConfig.Models
}
