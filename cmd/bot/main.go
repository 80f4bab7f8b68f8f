// Package main runs the portfolio bot: Telegram commands plus the total-value HTTP query.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/chat"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/ratelimit"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("service", api.BotServiceName)
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateBot(); err != nil {
		logger.WithError(err).Fatal("Missing required configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := adapter.NewBinanceSource(cfg.Binance, logger)

	// Redis is optional: it backs the total cache and the shared weight budget.
	var cache service.Cache
	if cfg.Database.Redis.Host != "" {
		redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache and weight budget")
		} else {
			defer redis.Close()
			cache = storage.NewCacheService(redis, cfg.Cache.TTL)

			if cfg.Binance.WeightBudget > 0 {
				budget, err := ratelimit.NewWeightBudget(&ratelimit.WeightBudgetConfig{
					Redis:  redis.Client(),
					Budget: cfg.Binance.WeightBudget,
				})
				if err != nil {
					logger.WithError(err).Fatal("Invalid weight budget configuration")
				}
				source.WithWeightBudget(budget)
			}
			logger.WithField("cache_ttl", cfg.Cache.TTL.String()).Info("Redis cache enabled")
		}
	}

	portfolio := service.NewPortfolioService(source, cfg.Valuation, cache, logger)

	bot, err := chat.NewBot(cfg.Telegram, portfolio, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Telegram")
	}

	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port, cfg.RateLimit.RequestsPerMinute)
	server := api.NewServer(serverConfig, logger, api.NewBotHandlers(portfolio, source))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})

	logger.WithField("addr", server.Addr()).Info("Portfolio bot started")

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Portfolio bot stopped with error")
		os.Exit(1)
	}
	logger.Info("Portfolio bot exited")
}
