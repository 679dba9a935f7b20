package database

import (
	"context"
	"testing"

	"hookrunner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := &models.SyncJob{
		SyncID:       "sync-1",
		Type:         models.JobTypeIncremental,
		JobID:        "task-name",
		SyncConfigID: 3,
		RunID:        "run-1",
		LogID:        "log-1",
	}
	require.NoError(t, db.CreateSyncJob(ctx, job))
	require.NotZero(t, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	require.NoError(t, db.UpdateSyncJobResult(ctx, job.ID, map[string]models.SyncResult{
		"Issue": {Added: 3, Updated: 1},
	}))

	updated, err := db.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, updated.Status)
	assert.Equal(t, int64(3), updated.ResultFor("Issue").Added)
	assert.Equal(t, models.SyncResult{}, updated.ResultFor("Comment"))

	// A terminal job is never transitioned again.
	again, err := db.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusStopped)
	assert.ErrorIs(t, err, ErrJobFinalized)
	require.NotNil(t, again)
	assert.Equal(t, models.JobStatusSuccess, again.Status)
}

func TestSyncJobResultFrozenAfterFinish(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := &models.SyncJob{SyncID: "sync-1", Type: models.JobTypeIncremental, RunID: "run-1"}
	require.NoError(t, db.CreateSyncJob(ctx, job))
	require.NoError(t, db.UpdateSyncJobResult(ctx, job.ID, map[string]models.SyncResult{"Issue": {Added: 2}}))

	_, err := db.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusStopped)
	require.NoError(t, err)

	err = db.UpdateSyncJobResult(ctx, job.ID, map[string]models.SyncResult{"Issue": {Added: 99}})
	assert.ErrorIs(t, err, ErrJobFinalized)

	stored, err := db.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.ResultFor("Issue").Added)
}

func TestSyncJobRequiresSyncID(t *testing.T) {
	db := setupTestDB(t)
	err := db.CreateSyncJob(context.Background(), &models.SyncJob{Type: models.JobTypeIncremental})
	assert.Error(t, err)
}

func TestUpdateMissingSyncJob(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.UpdateSyncJobStatus(context.Background(), 404, models.JobStatusStopped)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnsureOperation(ctx, "op-1", 1))
	require.NoError(t, db.EnsureOperation(ctx, "op-1", 1))
	require.NoError(t, db.AppendOperationMessage(ctx, "op-1", "info", "Starting webhook", map[string]any{"webhook": "w"}))
	require.NoError(t, db.SetOperationError(ctx, "op-1", "boom"))
	require.NoError(t, db.SetOperationState(ctx, "op-1", "failed"))

	op, err := db.GetOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", op.State)
	require.NotNil(t, op.Error)
	assert.Equal(t, "boom", *op.Error)

	msgs, err := db.GetOperationMessages(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "w", msgs[0].Meta["webhook"])
}
