package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"hookrunner/internal/models"
)

// GetAccountAndEnvironment loads an environment together with its owning account.
func (db *DB) GetAccountAndEnvironment(ctx context.Context, environmentID int64) (*models.Team, *models.Environment, error) {
	query := `
        SELECT a.id, a.name, e.id, e.account_id, e.name, e.secret_key
        FROM environments e
        JOIN accounts a ON a.id = e.account_id
        WHERE e.id = ?
    `

	var team models.Team
	var env models.Environment
	err := db.QueryRowContext(ctx, query, environmentID).Scan(
		&team.ID, &team.Name,
		&env.ID, &env.AccountID, &env.Name, &env.SecretKey,
	)
	if err != nil {
		return nil, nil, notFound(err, "account and environment")
	}
	return &team, &env, nil
}

// GetProviderConfig returns the live provider config for a unique key.
func (db *DB) GetProviderConfig(ctx context.Context, providerConfigKey string, environmentID int64) (*models.ProviderConfig, error) {
	query := `
        SELECT id, environment_id, unique_key, provider
        FROM provider_configs
        WHERE unique_key = ? AND environment_id = ? AND deleted = 0
    `

	var cfg models.ProviderConfig
	err := db.QueryRowContext(ctx, query, providerConfigKey, environmentID).Scan(
		&cfg.ID, &cfg.EnvironmentID, &cfg.UniqueKey, &cfg.Provider,
	)
	if err != nil {
		return nil, notFound(err, "provider config")
	}
	return &cfg, nil
}

// GetSync returns the sync registered for a connection under name and variant.
func (db *DB) GetSync(ctx context.Context, connectionID int64, name, variant string) (*models.Sync, error) {
	query := `
        SELECT id, connection_id, name, variant, created_at
        FROM syncs
        WHERE connection_id = ? AND name = ? AND variant = ? AND deleted = 0
        ORDER BY created_at DESC LIMIT 1
    `

	var s models.Sync
	err := db.QueryRowContext(ctx, query, connectionID, name, variant).Scan(
		&s.ID, &s.ConnectionID, &s.Name, &s.Variant, &s.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "sync")
	}
	return &s, nil
}

// GetSyncConfig returns the active sync config for a provider config and name.
func (db *DB) GetSyncConfig(ctx context.Context, environmentID, configID int64, name string, isAction bool) (*models.SyncConfig, error) {
	query := `
        SELECT id, environment_id, config_id, sync_name, type, models, attributes, enabled, is_action
        FROM sync_configs
        WHERE environment_id = ? AND config_id = ? AND sync_name = ? AND is_action = ?
          AND active = 1 AND deleted = 0
        ORDER BY id DESC LIMIT 1
    `

	var (
		cfg           models.SyncConfig
		rawModels     string
		rawAttributes string
	)
	err := db.QueryRowContext(ctx, query, environmentID, configID, name, isAction).Scan(
		&cfg.ID, &cfg.EnvironmentID, &cfg.ConfigID, &cfg.SyncName, &cfg.Type,
		&rawModels, &rawAttributes, &cfg.Enabled, &cfg.IsAction,
	)
	if err != nil {
		return nil, notFound(err, "sync config")
	}

	if err := json.Unmarshal([]byte(rawModels), &cfg.Models); err != nil {
		return nil, fmt.Errorf("decode sync config models: %w", err)
	}
	if rawAttributes != "" {
		if err := json.Unmarshal([]byte(rawAttributes), &cfg.Attributes); err != nil {
			return nil, fmt.Errorf("decode sync config attributes: %w", err)
		}
	}
	return &cfg, nil
}

// GetEndUserByConnectionID returns the end user a connection belongs to.
func (db *DB) GetEndUserByConnectionID(ctx context.Context, connectionID int64) (*models.EndUser, error) {
	query := `SELECT id, end_user_id, organization_id FROM end_users WHERE connection_id = ?`

	var (
		user  models.EndUser
		orgID sql.NullString
	)
	err := db.QueryRowContext(ctx, query, connectionID).Scan(&user.ID, &user.EndUserID, &orgID)
	if err != nil {
		return nil, notFound(err, "end user")
	}
	if orgID.Valid {
		user.OrgID = &orgID.String
	}
	return &user, nil
}

// GetWebhookSettings returns the outbound webhook settings of an environment.
func (db *DB) GetWebhookSettings(ctx context.Context, environmentID int64) (*models.WebhookSettings, error) {
	query := `
        SELECT environment_id, primary_url, secondary_url, on_sync_completion_always, on_sync_error, updated_at
        FROM webhook_settings WHERE environment_id = ?
    `

	var s models.WebhookSettings
	err := db.QueryRowContext(ctx, query, environmentID).Scan(
		&s.EnvironmentID, &s.PrimaryURL, &s.SecondaryURL, &s.OnSyncCompletionAlways, &s.OnSyncError, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "webhook settings")
	}
	return &s, nil
}
