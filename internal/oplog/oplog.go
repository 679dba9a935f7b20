// Package oplog records the per-task operation log that tenants see in their
// activity feed. Every message is mirrored to the process logger.
package oplog

import (
	"context"
	"fmt"
	"sync/atomic"

	"hookrunner/internal/domain"
	"hookrunner/internal/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	StateRunning = "running"
	StateSuccess = "success"
	StateFailed  = "failed"

	levelInfo  = "info"
	levelError = "error"
)

type Getter struct {
	store  domain.OperationStore
	logger *zerolog.Logger
}

func NewGetter(store domain.OperationStore, logger *zerolog.Logger) *Getter {
	return &Getter{
		store:  store,
		logger: logging.Component(logger, "oplog"),
	}
}

// Get returns the log context of an operation. An empty id starts a new operation.
func (g *Getter) Get(id string, accountID int64) *Context {
	if id == "" {
		id = uuid.NewString()
	}
	l := g.logger.With().Str("operation_id", id).Int64("account_id", accountID).Logger()
	return &Context{
		ID:        id,
		AccountID: accountID,
		store:     g.store,
		logger:    &l,
	}
}

type Context struct {
	ID        string
	AccountID int64

	store   domain.OperationStore
	logger  *zerolog.Logger
	ensured atomic.Bool
}

func (c *Context) ensure(ctx context.Context) error {
	if c.ensured.Load() {
		return nil
	}
	if err := c.store.EnsureOperation(ctx, c.ID, c.AccountID); err != nil {
		return err
	}
	c.ensured.Store(true)
	return nil
}

func (c *Context) Info(ctx context.Context, msg string, fields map[string]any) error {
	c.logger.Info().Fields(fields).Msg(msg)
	if err := c.ensure(ctx); err != nil {
		return err
	}
	return c.store.AppendOperationMessage(ctx, c.ID, levelInfo, msg, fields)
}

func (c *Context) Error(ctx context.Context, msg string, err error) error {
	c.logger.Error().Err(err).Msg(msg)
	if ensureErr := c.ensure(ctx); ensureErr != nil {
		return ensureErr
	}
	var meta map[string]any
	if err != nil {
		meta = map[string]any{"error": err.Error()}
	}
	return c.store.AppendOperationMessage(ctx, c.ID, levelError, msg, meta)
}

// EnrichOperation attaches err to the operation itself.
func (c *Context) EnrichOperation(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ensureErr := c.ensure(ctx); ensureErr != nil {
		return ensureErr
	}
	return c.store.SetOperationError(ctx, c.ID, err.Error())
}

func (c *Context) Success(ctx context.Context) error {
	return c.setState(ctx, StateSuccess)
}

func (c *Context) Failed(ctx context.Context) error {
	return c.setState(ctx, StateFailed)
}

func (c *Context) setState(ctx context.Context, state string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	if err := c.store.SetOperationState(ctx, c.ID, state); err != nil {
		return fmt.Errorf("operation %s: %w", c.ID, err)
	}
	c.logger.Info().Str("state", state).Msg("operation finished")
	return nil
}
