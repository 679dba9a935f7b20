package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hookrunner/internal/models"
)

// ErrJobFinalized is returned when a job already left RUNNING.
var ErrJobFinalized = errors.New("sync job already in terminal status")

func (db *DB) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	if job.SyncID == "" {
		return errors.New("sync id is required")
	}
	if job.Status == "" {
		job.Status = models.JobStatusRunning
	}

	result, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	if job.Result == nil {
		result = []byte("{}")
	}

	query := `INSERT INTO sync_jobs (sync_id, type, status, job_id, sync_config_id, run_id, log_id, result, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	res, err := db.ExecContext(ctx, query,
		job.SyncID,
		job.Type,
		string(job.Status),
		job.JobID,
		job.SyncConfigID,
		job.RunID,
		job.LogID,
		string(result),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (db *DB) GetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	query := `SELECT id, sync_id, type, status, job_id, sync_config_id, run_id, log_id, result, created_at, updated_at
              FROM sync_jobs WHERE id = ?`

	var (
		job    models.SyncJob
		status string
		result string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.SyncID, &job.Type, &status, &job.JobID, &job.SyncConfigID,
		&job.RunID, &job.LogID, &result, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "sync job")
	}
	job.Status = models.JobStatus(status)
	if result != "" {
		if err := json.Unmarshal([]byte(result), &job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return &job, nil
}

// UpdateSyncJobStatus moves a RUNNING job to status and returns the updated row.
// A job that already reached a terminal status is left untouched.
func (db *DB) UpdateSyncJobStatus(ctx context.Context, id int64, status models.JobStatus) (*models.SyncJob, error) {
	query := `UPDATE sync_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, string(status), time.Now(), id, string(models.JobStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to update sync job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	job, err := db.GetSyncJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return job, fmt.Errorf("sync job %d is %s: %w", id, job.Status, ErrJobFinalized)
	}
	return job, nil
}

// UpdateSyncJobResult merges per-model counters reported by the runner.
// Counters of a finished job are left untouched.
func (db *DB) UpdateSyncJobResult(ctx context.Context, id int64, result map[string]models.SyncResult) error {
	job, err := db.GetSyncJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("sync job %d is %s: %w", id, job.Status, ErrJobFinalized)
	}
	merged := job.Result
	if merged == nil {
		merged = make(map[string]models.SyncResult, len(result))
	}
	for model, r := range result {
		merged[model] = r
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}

	query := `UPDATE sync_jobs SET result = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, string(raw), time.Now(), id, string(models.JobStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to update sync job result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync job %d finished before result update: %w", id, ErrJobFinalized)
	}
	return nil
}
