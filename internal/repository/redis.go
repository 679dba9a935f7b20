package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/models"

	"github.com/redis/go-redis/v9"
)

const taskStateKeyPrefix = "task_state:"

type RedisTaskStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisTaskStateRepository(client *redis.Client, ttl time.Duration) *RedisTaskStateRepository {
	return &RedisTaskStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisTaskStateRepository) Get(ctx context.Context, taskID string) (*models.TaskState, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, taskStateKeyPrefix+taskID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task state from redis: %w", err)
	}

	var state models.TaskState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task state: %w", err)
	}
	return &state, nil
}

func (r *RedisTaskStateRepository) Save(ctx context.Context, state *models.TaskState) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal task state: %w", err)
	}

	if err := r.client.Set(ctx, taskStateKeyPrefix+state.TaskID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set task state in redis: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
