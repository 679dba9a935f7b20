package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskWorker pulls webhook tasks from redis, or from an in-memory queue when
// redis is unavailable, and hands them to the executor one at a time.
type TaskWorker struct {
	executor      domain.TaskExecutor
	redis         *redis.Client
	queue         chan []byte
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
	done          chan struct{}
	stopOnce      sync.Once
}

func NewTaskWorker(executor domain.TaskExecutor, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *TaskWorker {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "webhooks:tasks"
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = "webhooks:deadletter"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &TaskWorker{
		executor:      executor,
		redis:         redisClient,
		queue:         make(chan []byte, 128),
		redisQueueKey: cfg.QueueKey,
		deadLetterKey: cfg.DeadLetterKey,
		pollInterval:  cfg.PollInterval,
		logger:        logging.Component(logger, "task_worker"),
		done:          make(chan struct{}),
	}
}

// Enqueue schedules task via redis or the in-memory queue.
func (w *TaskWorker) Enqueue(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	if task.ParentSyncName == "" {
		return errors.New("parent sync name is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.redisQueueKey, data).Err(); err != nil {
			w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- data:
		return nil
	default:
		return fmt.Errorf("task %s dropped: in-memory queue full", task.ID)
	}
}

// Start runs the consume loop until ctx is done. Done is closed once the
// task in flight, if any, has returned.
func (w *TaskWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("task worker started")
	defer w.stopOnce.Do(func() { close(w.done) })
	defer w.logger.Info().Msg("task worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if raw, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, raw)
			continue
		}

		if raw, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, raw)
			continue
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case raw := <-w.queue:
				w.processTask(ctx, raw)
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// Done is closed when Start returns.
func (w *TaskWorker) Done() <-chan struct{} {
	return w.done
}

func (w *TaskWorker) tryLocalQueue() ([]byte, bool) {
	select {
	case raw := <-w.queue:
		return raw, true
	default:
		return nil, false
	}
}

func (w *TaskWorker) tryRedis(ctx context.Context) ([]byte, bool) {
	if w.redis == nil {
		return nil, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
		return nil, false
	}
	if len(res) != 2 {
		return nil, false
	}
	return []byte(res[1]), true
}

func (w *TaskWorker) processTask(ctx context.Context, raw []byte) {
	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		w.logger.Error().Err(err).Msg("decode task")
		w.pushDeadLetter(ctx, raw)
		return
	}

	log := logging.Task(w.logger, task.ID, task.Connection.ConnectionID, task.ParentSyncName)
	log.Debug().Str("webhook", task.WebhookName).Msg("executing task")

	// Outcome side effects are owned by the executor, the worker only reports.
	if err := w.executor.Execute(ctx, &task); err != nil {
		log.Warn().Err(err).Msg("task failed")
		return
	}
	log.Info().Msg("task started")
}

func (w *TaskWorker) pushDeadLetter(ctx context.Context, raw []byte) {
	if w.redis == nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, raw).Err(); err != nil {
		w.logger.Error().Err(err).Msg("deadletter push failed")
	}
}
