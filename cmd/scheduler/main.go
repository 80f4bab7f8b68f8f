// Package main runs the daily portfolio snapshot scheduler and its HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/circuitbreaker"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/retry"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
)

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "Do not apply schema migrations on startup")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("service", api.SchedulerServiceName)
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateScheduler(); err != nil {
		logger.WithError(err).Fatal("Missing required configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The database may still be starting alongside us.
	connectRetry := retry.DefaultRetryConfig()
	connectRetry.Retryable = nil

	var db *storage.PostgresDB
	err = retry.Do(logging.WithLogger(ctx, logger), connectRetry, func(ctx context.Context, attempt int) error {
		var err error
		db, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer db.Close()

	if !*skipMigrations {
		migrator := storage.NewMigrator(cfg.Database.Postgres.URL(), cfg.Database.Postgres.MigrationsPath, logger)
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	repo := storage.NewSnapshotRepository(db.Pool(), logger)
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("portfolio-bot"), logger)
	client := adapter.NewTotalClient(cfg.Scheduler.BotURL, cfg.Scheduler.PeerTimeout, breaker, logger)

	scheduler, err := service.NewSnapshotScheduler(client, repo, cfg.Scheduler.CronSpec, logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid snapshot schedule")
	}
	scheduler.Start()

	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Scheduler.Port, cfg.RateLimit.RequestsPerMinute)
	server := api.NewServer(serverConfig, logger, api.NewSchedulerHandlers(scheduler))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.WithFields(map[string]interface{}{
		"addr":     server.Addr(),
		"schedule": cfg.Scheduler.CronSpec,
		"bot_url":  cfg.Scheduler.BotURL,
	}).Info("Snapshot scheduler started")

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down snapshot scheduler")
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
		exitCode = 1
	}

	scheduler.Stop()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Snapshot scheduler exited")
	if exitCode != 0 {
		db.Close()
		os.Exit(exitCode)
	}
}
