package repository

import (
	"context"
	"testing"
	"time"

	"hookrunner/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTaskStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisTaskStateRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		state := &models.TaskState{
			TaskID: "task-1",
			State:  models.TaskStateFailed,
			Error:  "boom",
		}

		require.NoError(t, repo.Save(ctx, state))

		got, err := repo.Get(ctx, "task-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.TaskStateFailed, got.State)
		assert.Equal(t, "boom", got.Error)
		assert.True(t, s.Exists("task_state:task-1"))
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.Get(ctx, "task-404")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.TaskState{TaskID: "task-ttl"}))
		s.FastForward(time.Hour + time.Second)

		got, err := repo.Get(ctx, "task-ttl")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisTaskStateRepository(nil, time.Hour)
		_, err := repo.Get(ctx, "task-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, Close(client))
	})
}
