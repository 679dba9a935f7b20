package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hookrunner/internal/database"
	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/metrics"
	"hookrunner/internal/models"
	"hookrunner/internal/oplog"

	"github.com/rs/zerolog"
)

// TaskStateWriter records the final outcome of a task for its scheduler.
type TaskStateWriter interface {
	SetSuccess(ctx context.Context, taskID string, output map[string]any) error
	SetFailed(ctx context.Context, taskID string, taskErr error) error
}

type Deps struct {
	Store      domain.ContextStore
	Jobs       *Jobs
	Dispatcher *Dispatcher
	Runner     domain.ScriptRunner
	Telemetry  domain.TelemetryRecorder
	Logs       *oplog.Getter
	States     TaskStateWriter
	Metrics    metrics.Recorder
	// Host is the public API URL handed to scripts.
	Host   string
	Logger *zerolog.Logger
}

// Orchestrator drives a webhook task from context resolution to its terminal
// outcome. Every outcome, including failures during resolution, ends with a
// job transition (when a job exists), a notification attempt, telemetry, an
// operation log update and metrics.
type Orchestrator struct {
	store      domain.ContextStore
	resolver   *Resolver
	jobs       *Jobs
	dispatcher *Dispatcher
	runner     domain.ScriptRunner
	telemetry  domain.TelemetryRecorder
	logs       *oplog.Getter
	states     TaskStateWriter
	metrics    metrics.Recorder
	host       string
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	logger := logging.Component(d.Logger, "orchestrator")
	return &Orchestrator{
		store:      d.Store,
		resolver:   NewResolver(d.Store, d.Logger),
		jobs:       d.Jobs,
		dispatcher: d.Dispatcher,
		runner:     d.Runner,
		telemetry:  d.Telemetry,
		logs:       d.Logs,
		states:     d.States,
		metrics:    d.Metrics,
		host:       d.Host,
		logger:     logger,
		now:        time.Now,
	}
}

// Execute resolves the task's context, records a job and starts the script.
// Any failure on the way is reported through the failure path and returned as
// a webhook_script_failure.
func (o *Orchestrator) Execute(ctx context.Context, task *models.Task) error {
	startedAt := o.now()
	ec := &models.ExecutionContext{}

	logID, err := o.start(ctx, task, ec, startedAt)
	if err == nil {
		return nil
	}

	// Compensation must finish even when the worker is shutting down.
	ctx = context.WithoutCancel(ctx)
	failure := scriptFailure(err)
	var jobID int64
	if ec.Job != nil {
		jobID = ec.Job.ID
		if _, err := o.jobs.Transition(ctx, jobID, models.JobStatusStopped); err != nil {
			o.logger.Error().Err(err).Int64("sync_job_id", jobID).Msg("stop sync job")
		}
	}
	if err := o.states.SetFailed(ctx, task.ID, failure); err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("record task failure")
	}

	f := failureReport{
		team:              ec.Team,
		environment:       ec.Environment,
		connection:        task.Connection,
		syncName:          task.ParentSyncName,
		jobID:             jobID,
		providerConfig:    ec.ProviderConfig,
		providerConfigKey: task.Connection.ProviderConfigKey,
		syncConfig:        ec.SyncConfig,
		activityLogID:     logID,
		models:            ec.Models(),
		err:               failure,
		endUser:           ec.EndUser,
		startedAt:         startedAt,
	}
	if ec.Sync != nil {
		f.syncID = ec.Sync.ID
		f.syncVariant = ec.Sync.Variant
	}
	o.onFailure(ctx, f)

	return failure
}

// start runs everything up to handing the script to the runner. It returns the
// operation log id in use, which may be empty when resolution failed early.
func (o *Orchestrator) start(ctx context.Context, task *models.Task, ec *models.ExecutionContext, startedAt time.Time) (string, error) {
	logID := task.ActivityLogID

	if err := o.resolver.Resolve(ctx, task, ec); err != nil {
		return logID, err
	}

	logCtx := o.logs.Get(task.ActivityLogID, ec.Team.ID)
	logID = logCtx.ID
	if err := logCtx.Info(ctx, fmt.Sprintf("Starting webhook '%s'", task.WebhookName), map[string]any{
		"input":       task.Input,
		"webhook":     task.WebhookName,
		"connection":  task.Connection.ConnectionID,
		"integration": task.Connection.ProviderConfigKey,
	}); err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("write operation log")
	}

	job, err := o.jobs.Create(ctx, ec, task, logID)
	if err != nil {
		return logID, err
	}

	props := &models.ExecutionProps{
		ScriptType:           models.ScriptTypeWebhook,
		Host:                 o.host,
		Team:                 *ec.Team,
		ConnectionID:         task.Connection.ConnectionID,
		EnvironmentID:        task.Connection.EnvironmentID,
		EnvironmentName:      ec.Environment.Name,
		ProviderConfigKey:    task.Connection.ProviderConfigKey,
		Provider:             ec.ProviderConfig.Provider,
		ActivityLogID:        logID,
		SecretKey:            ec.Environment.SecretKey,
		NangoConnectionID:    task.Connection.ID,
		Attributes:           ec.SyncConfig.Attributes,
		SyncConfig:           *ec.SyncConfig,
		SyncID:               ec.Sync.ID,
		SyncVariant:          ec.Sync.Variant,
		SyncJobID:            job.ID,
		Debug:                false,
		RunnerFlags:          map[string]any{},
		StartedAt:            startedAt,
		EndUser:              ec.EndUser,
		HeartbeatTimeoutSecs: task.HeartbeatTimeoutSecs,
	}

	o.metrics.WebhookStarted(strconv.FormatInt(ec.Team.ID, 10))

	if err := o.runner.Start(ctx, models.StartRequest{TaskID: task.ID, Props: props, Input: task.Input}); err != nil {
		return logID, err
	}
	return logID, nil
}

// HandleSuccess finalizes a run the script runner reported as successful.
func (o *Orchestrator) HandleSuccess(ctx context.Context, taskID string, props *models.ExecutionProps) error {
	if props == nil {
		return errors.New("execution props are required")
	}
	ctx = context.WithoutCancel(ctx)
	logCtx := o.logs.Get(props.ActivityLogID, props.Team.ID)

	job, err := o.jobs.Transition(ctx, props.SyncJobID, models.JobStatusSuccess)
	if err != nil {
		return err
	}
	if err := o.states.SetSuccess(ctx, taskID, nil); err != nil {
		o.logger.Error().Err(err).Str("task_id", taskID).Msg("record task success")
	}
	if job == nil {
		return fmt.Errorf("%w to %s for sync job: %d", ErrJobNotUpdated, models.JobStatusSuccess, props.SyncJobID)
	}

	finishedAt := o.now()
	runTime := nonNegative(finishedAt.Sub(props.StartedAt))
	internalIntegrationID := props.SyncConfig.ConfigID
	o.telemetry.Record(ctx, &models.TelemetryRecord{
		ExecutionType:         models.ScriptTypeWebhook,
		ConnectionID:          props.ConnectionID,
		InternalConnectionID:  props.NangoConnectionID,
		AccountID:             props.Team.ID,
		AccountName:           orUnknown(props.Team.Name),
		ScriptName:            props.SyncConfig.SyncName,
		ScriptType:            props.SyncConfig.Type,
		EnvironmentID:         props.EnvironmentID,
		EnvironmentName:       orUnknown(props.EnvironmentName),
		ProviderConfigKey:     props.ProviderConfigKey,
		Status:                models.TelemetryStatusSuccess,
		SyncID:                props.SyncID,
		SyncVariant:           props.SyncVariant,
		Content:               fmt.Sprintf(`The webhook "%s" has been run successfully.`, props.SyncConfig.SyncName),
		RunTimeInSeconds:      runTime.Seconds(),
		CreatedAt:             finishedAt.UnixMilli(),
		InternalIntegrationID: &internalIntegrationID,
		EndUser:               props.EndUser,
	})

	providerConfig, err := o.store.GetProviderConfig(ctx, props.ProviderConfigKey, props.EnvironmentID)
	if missing(err, providerConfig != nil) {
		return fmt.Errorf("%w for connection: %s", ErrProviderConfigNotFound, props.ConnectionID)
	}
	if err != nil {
		return fmt.Errorf("get provider config: %w", err)
	}

	team, env, err := o.store.GetAccountAndEnvironment(ctx, props.EnvironmentID)
	if missing(err, team != nil && env != nil) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("get account and environment: %w", err)
	}

	o.dispatcher.NotifySuccess(ctx, SuccessOutcome{
		Team:           *team,
		Environment:    *env,
		Connection:     props.Connection(),
		ProviderConfig: *providerConfig,
		SyncConfig:     props.SyncConfig,
		SyncID:         props.SyncID,
		SyncVariant:    props.SyncVariant,
		Job:            job,
		StartedAt:      props.StartedAt,
	})

	if err := logCtx.Success(ctx); err != nil {
		o.logger.Warn().Err(err).Str("task_id", taskID).Msg("finalize operation log")
	}

	o.metrics.WebhookSucceeded()
	o.metrics.WebhookRuntime(runTime)
	return nil
}

// HandleFailure finalizes a run the script runner reported as failed.
func (o *Orchestrator) HandleFailure(ctx context.Context, taskID string, props *models.ExecutionProps, taskErr error) error {
	if props == nil {
		return errors.New("execution props are required")
	}
	ctx = context.WithoutCancel(ctx)
	failure := scriptFailure(taskErr)

	var (
		team *models.Team
		env  *models.Environment
	)
	t, e, err := o.store.GetAccountAndEnvironment(ctx, props.EnvironmentID)
	switch {
	case err == nil:
		team, env = t, e
	case !errors.Is(err, database.ErrNotFound):
		o.logger.Error().Err(err).Int64("environment_id", props.EnvironmentID).Msg("get account and environment")
	}

	if _, err := o.jobs.Transition(ctx, props.SyncJobID, models.JobStatusStopped); err != nil {
		// Already reported by the first terminal callback.
		if errors.Is(err, database.ErrJobFinalized) {
			return err
		}
		o.logger.Error().Err(err).Int64("sync_job_id", props.SyncJobID).Msg("stop sync job")
	}
	if err := o.states.SetFailed(ctx, taskID, failure); err != nil {
		o.logger.Error().Err(err).Str("task_id", taskID).Msg("record task failure")
	}

	var lookupErr error
	providerConfig, err := o.store.GetProviderConfig(ctx, props.ProviderConfigKey, props.EnvironmentID)
	if missing(err, providerConfig != nil) {
		lookupErr = fmt.Errorf("%w for connection: %s", ErrProviderConfigNotFound, props.ConnectionID)
		providerConfig = nil
	} else if err != nil {
		lookupErr = fmt.Errorf("get provider config: %w", err)
		providerConfig = nil
	}

	syncConfig := props.SyncConfig
	o.onFailure(ctx, failureReport{
		team:              team,
		environment:       env,
		connection:        props.Connection(),
		syncID:            props.SyncID,
		syncVariant:       props.SyncVariant,
		syncName:          props.SyncConfig.SyncName,
		jobID:             props.SyncJobID,
		providerConfig:    providerConfig,
		providerConfigKey: props.ProviderConfigKey,
		syncConfig:        &syncConfig,
		activityLogID:     props.ActivityLogID,
		models:            props.SyncConfig.Models,
		err:               failure,
		endUser:           props.EndUser,
		startedAt:         props.StartedAt,
	})

	return lookupErr
}

type failureReport struct {
	team              *models.Team
	environment       *models.Environment
	connection        models.ConnectionRef
	syncID            string
	syncVariant       string
	syncName          string
	jobID             int64
	providerConfig    *models.ProviderConfig
	providerConfigKey string
	syncConfig        *models.SyncConfig
	activityLogID     string
	models            []string
	err               *Error
	endUser           *models.EndUser
	startedAt         time.Time
}

// onFailure runs the compensation steps with whatever context is known.
// Telemetry needs both team and environment; the operation log only needs the
// account id.
func (o *Orchestrator) onFailure(ctx context.Context, f failureReport) {
	finishedAt := o.now()
	runTime := nonNegative(finishedAt.Sub(f.startedAt))

	o.dispatcher.NotifyFailure(ctx, FailureOutcome{
		Team:           f.team,
		Environment:    f.environment,
		Connection:     f.connection,
		ProviderConfig: f.providerConfig,
		SyncConfig:     f.syncConfig,
		SyncID:         f.syncID,
		SyncVariant:    f.syncVariant,
		SyncName:       f.syncName,
		JobID:          f.jobID,
		Models:         f.models,
		Err:            f.err,
	})

	if f.team != nil && f.environment != nil {
		var integrationID *int64
		if f.syncConfig != nil && f.syncConfig.ConfigID != 0 {
			id := f.syncConfig.ConfigID
			integrationID = &id
		}
		o.telemetry.Record(ctx, &models.TelemetryRecord{
			ExecutionType:         models.ScriptTypeWebhook,
			ConnectionID:          f.connection.ConnectionID,
			InternalConnectionID:  f.connection.ID,
			AccountID:             f.team.ID,
			AccountName:           f.team.Name,
			ScriptName:            f.syncName,
			ScriptType:            models.ScriptTypeWebhook,
			EnvironmentID:         f.environment.ID,
			EnvironmentName:       f.environment.Name,
			ProviderConfigKey:     f.providerConfigKey,
			Status:                models.TelemetryStatusFailed,
			SyncID:                f.syncID,
			SyncVariant:           f.syncVariant,
			Content:               f.err.Message,
			RunTimeInSeconds:      runTime.Seconds(),
			CreatedAt:             finishedAt.UnixMilli(),
			InternalIntegrationID: integrationID,
			EndUser:               f.endUser,
		})
	}

	if f.activityLogID != "" && f.team != nil {
		logCtx := o.logs.Get(f.activityLogID, f.team.ID)
		if err := logCtx.Error(ctx, f.err.Message, f.err); err != nil {
			o.logger.Warn().Err(err).Msg("write operation log")
		}
		if err := logCtx.EnrichOperation(ctx, f.err); err != nil {
			o.logger.Warn().Err(err).Msg("enrich operation")
		}
		if err := logCtx.Failed(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("finalize operation log")
		}
	}

	o.metrics.WebhookFailed()
	o.metrics.WebhookRuntime(runTime)

	o.logger.Warn().
		Str("connection_id", f.connection.ConnectionID).
		Str("sync", f.syncName).
		Int64("sync_job_id", f.jobID).
		Str("error", f.err.Message).
		Msg("webhook failed")
}

// Wait blocks until background notification and telemetry writes finish.
func (o *Orchestrator) Wait() {
	o.dispatcher.Wait()
	if w, ok := o.telemetry.(interface{ Wait() }); ok {
		w.Wait()
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
