package domain

import (
	"context"

	"hookrunner/internal/models"
)

// ContextStore is the lookup surface used to resolve a task's execution context.
type ContextStore interface {
	GetAccountAndEnvironment(ctx context.Context, environmentID int64) (*models.Team, *models.Environment, error)
	GetProviderConfig(ctx context.Context, providerConfigKey string, environmentID int64) (*models.ProviderConfig, error)
	GetSync(ctx context.Context, connectionID int64, name, variant string) (*models.Sync, error)
	GetSyncConfig(ctx context.Context, environmentID, configID int64, name string, isAction bool) (*models.SyncConfig, error)
	GetEndUserByConnectionID(ctx context.Context, connectionID int64) (*models.EndUser, error)
}

type JobStore interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	UpdateSyncJobStatus(ctx context.Context, id int64, status models.JobStatus) (*models.SyncJob, error)
}

type WebhookSettingsStore interface {
	GetWebhookSettings(ctx context.Context, environmentID int64) (*models.WebhookSettings, error)
}

// OperationStore persists operation log entries.
type OperationStore interface {
	EnsureOperation(ctx context.Context, id string, accountID int64) error
	AppendOperationMessage(ctx context.Context, operationID, level, message string, meta map[string]any) error
	SetOperationState(ctx context.Context, id, state string) error
	SetOperationError(ctx context.Context, id, errMsg string) error
}

type TaskStateRepository interface {
	Save(ctx context.Context, state *models.TaskState) error
	Get(ctx context.Context, taskID string) (*models.TaskState, error)
}

// NotificationSender delivers one outcome to the tenant's webhook endpoints.
type NotificationSender interface {
	SendSync(ctx context.Context, payload *models.NotificationPayload) error
}

// ScriptRunner hands a fully built execution context to the script engine.
type ScriptRunner interface {
	Start(ctx context.Context, req models.StartRequest) error
}

// TelemetryRecorder writes analytics rows without blocking the caller.
type TelemetryRecorder interface {
	Record(ctx context.Context, record *models.TelemetryRecord)
}

type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) error
}

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *models.Task) error
}
