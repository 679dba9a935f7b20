package repository

import (
	"context"
	"sync"
	"time"

	"hookrunner/internal/models"
)

type memoryEntry struct {
	state     models.TaskState
	expiresAt time.Time
}

type MemoryTaskStateRepository struct {
	states sync.Map
	ttl    time.Duration
}

func NewMemoryTaskStateRepository(ttl time.Duration) *MemoryTaskStateRepository {
	return &MemoryTaskStateRepository{
		ttl: ttl,
	}
}

func (r *MemoryTaskStateRepository) Get(ctx context.Context, taskID string) (*models.TaskState, error) {
	val, ok := r.states.Load(taskID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		r.states.Delete(taskID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemoryTaskStateRepository) Save(ctx context.Context, state *models.TaskState) error {
	entry := &memoryEntry{state: *state}
	if r.ttl > 0 {
		entry.expiresAt = time.Now().Add(r.ttl)
	}
	r.states.Store(state.TaskID, entry)
	return nil
}
