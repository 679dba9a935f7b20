package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

type FailoverTaskStateRepository struct {
	primary  domain.TaskStateRepository
	fallback domain.TaskStateRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverTaskStateRepository(primary, fallback domain.TaskStateRepository, logger *zerolog.Logger) *FailoverTaskStateRepository {
	logger = logging.OrNop(logger)
	return &FailoverTaskStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverTaskStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary task state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverTaskStateRepository) shouldRetryPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverTaskStateRepository) Get(ctx context.Context, taskID string) (*models.TaskState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.Get(ctx, taskID)
		if err == nil {
			return state, nil
		}
		r.markDown(err)
	}

	if r.isDown.Load() && r.shouldRetryPrimary() {
		state, err := r.primary.Get(ctx, taskID)
		if err == nil {
			r.isDown.Store(false)
			return state, nil
		}
		r.mu.Lock()
		r.lastCheck = time.Now()
		r.mu.Unlock()
	}

	return r.fallback.Get(ctx, taskID)
}

func (r *FailoverTaskStateRepository) Save(ctx context.Context, state *models.TaskState) error {
	if !r.isDown.Load() {
		err := r.primary.Save(ctx, state)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Save(ctx, state)
}
