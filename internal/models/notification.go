package models

import "time"

type NotificationError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// NotificationPayload describes one outbound webhook send.
type NotificationPayload struct {
	Account         Team               `json:"account"`
	Connection      ConnectionRef      `json:"connection"`
	Environment     Environment        `json:"environment"`
	WebhookSettings *WebhookSettings   `json:"webhook_settings"`
	SyncConfig      SyncConfig         `json:"sync_config"`
	SyncVariant     string             `json:"sync_variant"`
	ProviderConfig  ProviderConfig     `json:"provider_config"`
	Model           string             `json:"model"`
	Success         bool               `json:"success"`
	Error           *NotificationError `json:"error,omitempty"`
	ResponseResults *SyncResult        `json:"response_results,omitempty"`
	Now             time.Time          `json:"now"`
	Operation       string             `json:"operation"`
}

// TelemetryRecord is one analytics row.
type TelemetryRecord struct {
	ExecutionType         string   `json:"executionType"`
	ConnectionID          string   `json:"connectionId"`
	InternalConnectionID  int64    `json:"internalConnectionId"`
	AccountID             int64    `json:"accountId"`
	AccountName           string   `json:"accountName"`
	ScriptName            string   `json:"scriptName"`
	ScriptType            string   `json:"scriptType"`
	EnvironmentID         int64    `json:"environmentId"`
	EnvironmentName       string   `json:"environmentName"`
	ProviderConfigKey     string   `json:"providerConfigKey"`
	Status                string   `json:"status"`
	SyncID                string   `json:"syncId"`
	SyncVariant           string   `json:"syncVariant"`
	Content               string   `json:"content"`
	RunTimeInSeconds      float64  `json:"runTimeInSeconds"`
	CreatedAt             int64    `json:"createdAt"`
	InternalIntegrationID *int64   `json:"internalIntegrationId"`
	EndUser               *EndUser `json:"endUser"`
}
