package models

import "time"

// Team is the tenant account owning environments.
type Team struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Environment struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	SecretKey string `json:"-"`
}

// ProviderConfig is an integration configured in an environment.
type ProviderConfig struct {
	ID            int64  `json:"id"`
	EnvironmentID int64  `json:"environment_id"`
	UniqueKey     string `json:"unique_key"`
	Provider      string `json:"provider"`
}

// EndUser is the downstream identity a connection was created for.
type EndUser struct {
	ID        int64   `json:"id"`
	EndUserID string  `json:"end_user_id"`
	OrgID     *string `json:"org_id"`
}

// WebhookSettings are the outbound webhook preferences of an environment.
type WebhookSettings struct {
	EnvironmentID          int64     `json:"environment_id"`
	PrimaryURL             string    `json:"primary_url"`
	SecondaryURL           string    `json:"secondary_url"`
	OnSyncCompletionAlways bool      `json:"on_sync_completion_always"`
	OnSyncError            bool      `json:"on_sync_error"`
	UpdatedAt              time.Time `json:"updated_at"`
}
