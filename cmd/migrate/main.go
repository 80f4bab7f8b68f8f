// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		steps  = flag.Int("steps", 1, "Number of migrations to roll back with -action=down")
		path   = flag.String("path", "", "Migrations directory (defaults to MIGRATIONS_PATH)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load config")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if err := cfg.ValidateDatabase(); err != nil {
		logger.WithError(err).Fatal("Missing database configuration")
	}

	migrationsPath := cfg.Database.Postgres.MigrationsPath
	if *path != "" {
		migrationsPath = *path
	}

	migrator := storage.NewMigrator(cfg.Database.Postgres.URL(), migrationsPath, logger)
	if err := run(migrator, *action, *steps, logger); err != nil {
		logger.WithError(err).Fatal("Postgres migration failed")
	}
}

func run(m *storage.Migrator, action string, steps int, logger *logging.Logger) error {
	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.WithField("steps", steps).Info("Rolling back Postgres migrations...")
		if err := m.Down(steps); err != nil {
			return err
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
