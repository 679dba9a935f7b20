package execution

import (
	"context"
	"fmt"

	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

// Jobs owns the sync job record of a task run.
type Jobs struct {
	store  domain.JobStore
	logger *zerolog.Logger
}

func NewJobs(store domain.JobStore, logger *zerolog.Logger) *Jobs {
	return &Jobs{
		store:  store,
		logger: logging.Component(logger, "jobs"),
	}
}

// Create records a RUNNING job for the resolved sync and stores it in ec.Job.
func (j *Jobs) Create(ctx context.Context, ec *models.ExecutionContext, task *models.Task, logID string) (*models.SyncJob, error) {
	if ec.Sync == nil || ec.Sync.ID == "" {
		return nil, fmt.Errorf("%w: sync is not resolved. TaskId: %s", ErrJobNotCreated, task.ID)
	}

	job := &models.SyncJob{
		SyncID: ec.Sync.ID,
		Type:   models.JobTypeIncremental,
		Status: models.JobStatusRunning,
		JobID:  task.Name,
		RunID:  task.ID,
		LogID:  logID,
	}
	if ec.SyncConfig != nil {
		job.SyncConfigID = ec.SyncConfig.ID
	}

	if err := j.store.CreateSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w for sync: %s. TaskId: %s: %w", ErrJobNotCreated, ec.Sync.ID, task.ID, err)
	}
	ec.Job = job

	j.logger.Debug().Int64("sync_job_id", job.ID).Str("task_id", task.ID).Msg("sync job created")
	return job, nil
}

// Transition moves a job to a terminal status. A zero jobID means no job was
// ever created and nothing is attempted.
func (j *Jobs) Transition(ctx context.Context, jobID int64, status models.JobStatus) (*models.SyncJob, error) {
	if jobID == 0 {
		return nil, nil
	}
	if !status.IsTerminal() {
		return nil, fmt.Errorf("sync job %d: %s is not a terminal status", jobID, status)
	}

	job, err := j.store.UpdateSyncJobStatus(ctx, jobID, status)
	if err != nil {
		return job, fmt.Errorf("%w to %s for sync job: %d: %w", ErrJobNotUpdated, status, jobID, err)
	}
	j.logger.Debug().Int64("sync_job_id", jobID).Str("status", string(status)).Msg("sync job finished")
	return job, nil
}
