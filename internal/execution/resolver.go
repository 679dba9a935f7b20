package execution

import (
	"context"
	"errors"
	"fmt"

	"hookrunner/internal/database"
	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

// Resolver loads everything a webhook task needs before it can run.
type Resolver struct {
	store  domain.ContextStore
	logger *zerolog.Logger
}

func NewResolver(store domain.ContextStore, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logging.Component(logger, "resolver"),
	}
}

func missing(err error, found bool) bool {
	return errors.Is(err, database.ErrNotFound) || (err == nil && !found)
}

// Resolve fills ec step by step. On error, ec keeps every entity resolved
// before the failing step and nothing after it.
func (r *Resolver) Resolve(ctx context.Context, task *models.Task, ec *models.ExecutionContext) error {
	conn := task.Connection

	team, env, err := r.store.GetAccountAndEnvironment(ctx, conn.EnvironmentID)
	if missing(err, team != nil && env != nil) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("get account and environment: %w", err)
	}
	ec.Team, ec.Environment = team, env

	providerConfig, err := r.store.GetProviderConfig(ctx, conn.ProviderConfigKey, conn.EnvironmentID)
	if missing(err, providerConfig != nil) {
		return fmt.Errorf("%w for connection: %s", ErrProviderConfigNotFound, conn.ConnectionID)
	}
	if err != nil {
		return fmt.Errorf("get provider config: %w", err)
	}
	ec.ProviderConfig = providerConfig

	sync, err := r.store.GetSync(ctx, conn.ID, task.ParentSyncName, models.VariantBase)
	if missing(err, sync != nil) {
		return fmt.Errorf("%w for connection: %s", ErrSyncNotFound, conn.ConnectionID)
	}
	if err != nil {
		return fmt.Errorf("get sync: %w", err)
	}
	ec.Sync = sync

	syncConfig, err := r.store.GetSyncConfig(ctx, providerConfig.EnvironmentID, providerConfig.ID, task.ParentSyncName, false)
	if missing(err, syncConfig != nil) {
		return fmt.Errorf("%w: %s", ErrSyncConfigNotFound, task.ID)
	}
	if err != nil {
		return fmt.Errorf("get sync config: %w", err)
	}
	ec.SyncConfig = syncConfig
	if !syncConfig.Enabled {
		return fmt.Errorf("%w: %s", ErrSyncConfigDisabled, task.ID)
	}

	endUser, err := r.store.GetEndUserByConnectionID(ctx, conn.ID)
	switch {
	case err == nil:
		ec.EndUser = endUser
	case errors.Is(err, database.ErrNotFound):
		ec.EndUser = nil
	default:
		r.logger.Warn().Err(err).Int64("connection_id", conn.ID).Msg("end user lookup failed, continuing without one")
		ec.EndUser = nil
	}
	return nil
}
