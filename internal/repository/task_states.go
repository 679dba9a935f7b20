package repository

import (
	"context"
	"errors"
	"time"

	"hookrunner/internal/domain"
	"hookrunner/internal/models"
)

// TaskStates records the final outcome of tasks.
type TaskStates struct {
	repo domain.TaskStateRepository
}

func NewTaskStates(repo domain.TaskStateRepository) *TaskStates {
	return &TaskStates{repo: repo}
}

func (s *TaskStates) SetSuccess(ctx context.Context, taskID string, output map[string]any) error {
	if taskID == "" {
		return errors.New("task id is required")
	}
	return s.repo.Save(ctx, &models.TaskState{
		TaskID:    taskID,
		State:     models.TaskStateSucceeded,
		Output:    output,
		UpdatedAt: time.Now(),
	})
}

func (s *TaskStates) SetFailed(ctx context.Context, taskID string, taskErr error) error {
	if taskID == "" {
		return errors.New("task id is required")
	}
	state := &models.TaskState{
		TaskID:    taskID,
		State:     models.TaskStateFailed,
		UpdatedAt: time.Now(),
	}
	if taskErr != nil {
		state.Error = taskErr.Error()
	}
	return s.repo.Save(ctx, state)
}

// Get returns nil when the task has no recorded outcome.
func (s *TaskStates) Get(ctx context.Context, taskID string) (*models.TaskState, error) {
	return s.repo.Get(ctx, taskID)
}
