package models

// JobStatus is the lifecycle status of a sync job.
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusStopped JobStatus = "STOPPED"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusStopped
}

const (
	JobTypeIncremental = "INCREMENTAL"

	// VariantBase is the only variant webhook tasks run against.
	VariantBase = "base"

	ScriptTypeWebhook = "webhook"
	OperationWebhook  = "WEBHOOK"

	ErrorTypeScript = "script_error"

	TelemetryStatusSuccess = "success"
	TelemetryStatusFailed  = "failed"
)

const (
	TaskStateSucceeded = "succeeded"
	TaskStateFailed    = "failed"
)
