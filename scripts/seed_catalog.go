package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hookrunner/internal/database"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalog is the fixture file layout: one account with its environments.
type Catalog struct {
	Account      string               `yaml:"account"`
	Environments []EnvironmentFixture `yaml:"environments"`
}

type EnvironmentFixture struct {
	Name      string                `yaml:"name"`
	Providers []ProviderFixture     `yaml:"providers"`
	Webhooks  *WebhookSettingsInput `yaml:"webhooks"`
}

type ProviderFixture struct {
	Key      string          `yaml:"key"`
	Provider string          `yaml:"provider"`
	Scripts  []ScriptFixture `yaml:"scripts"`
}

type ScriptFixture struct {
	Name         string         `yaml:"name"`
	ConfigID     int64          `yaml:"config_id"`
	Type         string         `yaml:"type"`
	Models       []string       `yaml:"models"`
	Attributes   map[string]any `yaml:"attributes"`
	Disabled     bool           `yaml:"disabled"`
	ConnectionID int64          `yaml:"connection_id"`
}

type WebhookSettingsInput struct {
	PrimaryURL         string `yaml:"primary_url"`
	SecondaryURL       string `yaml:"secondary_url"`
	OnCompletionAlways bool   `yaml:"on_sync_completion_always"`
	OnError            bool   `yaml:"on_sync_error"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/hookrunner.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var catalog Catalog
	if err = yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if catalog.Account == "" || len(catalog.Environments) == 0 {
		return fmt.Errorf("catalog needs an account and at least one environment")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	team := &models.Team{Name: catalog.Account}
	if err = db.CreateAccount(ctx, team); err != nil {
		return err
	}

	scripts := 0
	for _, envFixture := range catalog.Environments {
		env := &models.Environment{AccountID: team.ID, Name: envFixture.Name}
		if err = db.CreateEnvironment(ctx, env); err != nil {
			return fmt.Errorf("environment %s: %w", envFixture.Name, err)
		}

		if w := envFixture.Webhooks; w != nil {
			err = db.UpsertWebhookSettings(ctx, &models.WebhookSettings{
				EnvironmentID:          env.ID,
				PrimaryURL:             w.PrimaryURL,
				SecondaryURL:           w.SecondaryURL,
				OnSyncCompletionAlways: w.OnCompletionAlways,
				OnSyncError:            w.OnError,
			})
			if err != nil {
				return fmt.Errorf("webhooks for %s: %w", envFixture.Name, err)
			}
		}

		for _, p := range envFixture.Providers {
			if err = db.CreateProviderConfig(ctx, &models.ProviderConfig{
				EnvironmentID: env.ID,
				UniqueKey:     p.Key,
				Provider:      p.Provider,
			}); err != nil {
				return fmt.Errorf("provider %s: %w", p.Key, err)
			}

			for _, s := range p.Scripts {
				if err = seedScript(ctx, db, env.ID, s); err != nil {
					return fmt.Errorf("script %s: %w", s.Name, err)
				}
				scripts++
			}
		}
	}

	logger.Info().
		Int64("account_id", team.ID).
		Int("environments", len(catalog.Environments)).
		Int("scripts", scripts).
		Msg("catalog seeded")
	return nil
}

func seedScript(ctx context.Context, db *database.DB, environmentID int64, s ScriptFixture) error {
	cfg := &models.SyncConfig{
		EnvironmentID: environmentID,
		ConfigID:      s.ConfigID,
		SyncName:      s.Name,
		Type:          s.Type,
		Models:        s.Models,
		Attributes:    s.Attributes,
		Enabled:       !s.Disabled,
	}
	if err := db.CreateSyncConfig(ctx, cfg); err != nil {
		return err
	}
	if s.ConnectionID == 0 {
		return nil
	}
	return db.CreateSync(ctx, &models.Sync{ConnectionID: s.ConnectionID, Name: s.Name})
}
