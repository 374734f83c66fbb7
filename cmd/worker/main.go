package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"templatedev/api/internal/cache"
	"templatedev/api/internal/config"
	"templatedev/api/internal/database"
	"templatedev/api/internal/log"
	"templatedev/api/internal/queue"
	"templatedev/api/internal/repository"
	"templatedev/api/internal/security"
	"templatedev/api/internal/service"
	"templatedev/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "worker", cfg.Logging.Level)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.Fatal().Str("driver", cfg.Store.Driver).Msg("worker needs the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	if client == nil {
		logger.Fatal().Msg("redis.addr is required for the worker")
	}
	defer client.Close()

	authService := service.NewAuthService(
		repository.NewUserRepository(dbPool),
		repository.NewRefreshTokenRepository(dbPool),
		security.NewTokenSigner(cfg.Security.JWTAccessSecret, cfg.Security.JWTAccessTTL, nil),
		security.NewTokenSigner(cfg.Security.JWTRefreshSecret, cfg.Security.JWTRefreshTTL, nil),
		security.NewPasswordHasher(cfg.Security.BcryptCost),
		logger,
	)

	processor := tasks.NewProcessor(authService, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Jobs.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
