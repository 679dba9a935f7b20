package oplog

import (
	"context"
	"errors"
	"testing"

	"hookrunner/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGetter(t *testing.T) (*Getter, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewGetter(db, &logger), db
}

func TestContextLifecycle(t *testing.T) {
	getter, db := setupGetter(t)
	ctx := context.Background()

	logCtx := getter.Get("act-1", 42)
	require.NoError(t, logCtx.Info(ctx, "Starting webhook 'hook'", map[string]any{"webhook": "hook"}))
	require.NoError(t, logCtx.Success(ctx))

	op, err := db.GetOperation(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), op.AccountID)
	assert.Equal(t, StateSuccess, op.State)
	assert.Nil(t, op.Error)

	msgs, err := db.GetOperationMessages(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "info", msgs[0].Level)
	assert.Equal(t, "hook", msgs[0].Meta["webhook"])
}

func TestContextFailure(t *testing.T) {
	getter, db := setupGetter(t)
	ctx := context.Background()
	cause := errors.New("script crashed")

	logCtx := getter.Get("act-2", 1)
	require.NoError(t, logCtx.Error(ctx, cause.Error(), cause))
	require.NoError(t, logCtx.EnrichOperation(ctx, cause))
	require.NoError(t, logCtx.Failed(ctx))

	op, err := db.GetOperation(ctx, "act-2")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, op.State)
	require.NotNil(t, op.Error)
	assert.Equal(t, "script crashed", *op.Error)

	msgs, err := db.GetOperationMessages(ctx, "act-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0].Level)
	assert.Equal(t, "script crashed", msgs[0].Meta["error"])
}

func TestGetGeneratesID(t *testing.T) {
	getter, _ := setupGetter(t)
	a := getter.Get("", 1)
	b := getter.Get("", 1)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnrichOperationNilError(t *testing.T) {
	getter, db := setupGetter(t)
	ctx := context.Background()

	require.NoError(t, getter.Get("act-3", 1).EnrichOperation(ctx, nil))
	_, err := db.GetOperation(ctx, "act-3")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
