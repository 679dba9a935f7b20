package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hookrunner/internal/models"

	"github.com/google/uuid"
)

func (db *DB) CreateAccount(ctx context.Context, team *models.Team) error {
	res, err := db.ExecContext(ctx, `INSERT INTO accounts (name) VALUES (?)`, team.Name)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	team.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateEnvironment(ctx context.Context, env *models.Environment) error {
	if env.SecretKey == "" {
		env.SecretKey = uuid.NewString()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO environments (account_id, name, secret_key) VALUES (?, ?, ?)`,
		env.AccountID, env.Name, env.SecretKey,
	)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}
	env.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateProviderConfig(ctx context.Context, cfg *models.ProviderConfig) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO provider_configs (environment_id, unique_key, provider) VALUES (?, ?, ?)`,
		cfg.EnvironmentID, cfg.UniqueKey, cfg.Provider,
	)
	if err != nil {
		return fmt.Errorf("failed to create provider config: %w", err)
	}
	cfg.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateSync(ctx context.Context, s *models.Sync) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Variant == "" {
		s.Variant = models.VariantBase
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO syncs (id, connection_id, name, variant, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ConnectionID, s.Name, s.Variant, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync: %w", err)
	}
	return nil
}

func (db *DB) CreateSyncConfig(ctx context.Context, cfg *models.SyncConfig) error {
	modelsJSON, err := json.Marshal(cfg.Models)
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}
	if cfg.Models == nil {
		modelsJSON = []byte("[]")
	}
	attrs, err := json.Marshal(cfg.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if cfg.Attributes == nil {
		attrs = []byte("{}")
	}
	if cfg.Type == "" {
		cfg.Type = "sync"
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO sync_configs (environment_id, config_id, sync_name, type, models, attributes, enabled, is_action)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.EnvironmentID, cfg.ConfigID, cfg.SyncName, cfg.Type, string(modelsJSON), string(attrs), cfg.Enabled, cfg.IsAction,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync config: %w", err)
	}
	cfg.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateEndUser(ctx context.Context, connectionID int64, user *models.EndUser) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO end_users (connection_id, end_user_id, organization_id) VALUES (?, ?, ?)`,
		connectionID, user.EndUserID, user.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create end user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return err
}

func (db *DB) UpsertWebhookSettings(ctx context.Context, s *models.WebhookSettings) error {
	s.UpdatedAt = time.Now()
	query := `
        INSERT INTO webhook_settings (environment_id, primary_url, secondary_url, on_sync_completion_always, on_sync_error, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(environment_id) DO UPDATE SET
            primary_url = excluded.primary_url,
            secondary_url = excluded.secondary_url,
            on_sync_completion_always = excluded.on_sync_completion_always,
            on_sync_error = excluded.on_sync_error,
            updated_at = excluded.updated_at
    `
	_, err := db.ExecContext(ctx, query,
		s.EnvironmentID, s.PrimaryURL, s.SecondaryURL, s.OnSyncCompletionAlways, s.OnSyncError, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert webhook settings: %w", err)
	}
	return nil
}
