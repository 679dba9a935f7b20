package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hookrunner/internal/logging"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	logger = logging.OrNop(logger)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS environments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            account_id INTEGER NOT NULL REFERENCES accounts(id),
            name TEXT NOT NULL,
            secret_key TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS provider_configs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            environment_id INTEGER NOT NULL REFERENCES environments(id),
            unique_key TEXT NOT NULL,
            provider TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS syncs (
            id TEXT PRIMARY KEY,
            connection_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            variant TEXT NOT NULL DEFAULT 'base',
            deleted BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_configs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            environment_id INTEGER NOT NULL,
            config_id INTEGER NOT NULL,
            sync_name TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'sync',
            models TEXT NOT NULL DEFAULT '[]',
            attributes TEXT NOT NULL DEFAULT '{}',
            enabled BOOLEAN NOT NULL DEFAULT 1,
            is_action BOOLEAN NOT NULL DEFAULT 0,
            active BOOLEAN NOT NULL DEFAULT 1,
            deleted BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS end_users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            connection_id INTEGER NOT NULL UNIQUE,
            end_user_id TEXT NOT NULL,
            organization_id TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS webhook_settings (
            environment_id INTEGER PRIMARY KEY,
            primary_url TEXT NOT NULL DEFAULT '',
            secondary_url TEXT NOT NULL DEFAULT '',
            on_sync_completion_always BOOLEAN NOT NULL DEFAULT 0,
            on_sync_error BOOLEAN NOT NULL DEFAULT 1,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sync_id TEXT NOT NULL,
            type TEXT NOT NULL,
            status TEXT NOT NULL,
            job_id TEXT NOT NULL,
            sync_config_id INTEGER NOT NULL,
            run_id TEXT NOT NULL,
            log_id TEXT NOT NULL,
            result TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS operations (
            id TEXT PRIMARY KEY,
            account_id INTEGER NOT NULL,
            state TEXT NOT NULL DEFAULT 'running',
            error TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS operation_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            operation_id TEXT NOT NULL,
            level TEXT NOT NULL,
            message TEXT NOT NULL,
            meta TEXT,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_provider_configs_key ON provider_configs(environment_id, unique_key)`,
		`CREATE INDEX IF NOT EXISTS idx_syncs_connection ON syncs(connection_id, name, variant)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_configs_name ON sync_configs(environment_id, config_id, sync_name)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_sync_id ON sync_jobs(sync_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operation_messages_op ON operation_messages(operation_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.DB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
