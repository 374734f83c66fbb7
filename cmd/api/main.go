package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"templatedev/api/internal/cache"
	"templatedev/api/internal/config"
	"templatedev/api/internal/database"
	"templatedev/api/internal/handlers"
	"templatedev/api/internal/jobs"
	"templatedev/api/internal/log"
	"templatedev/api/internal/middleware"
	"templatedev/api/internal/queue"
	"templatedev/api/internal/repository"
	"templatedev/api/internal/rpc"
	"templatedev/api/internal/security"
	"templatedev/api/internal/server"
	"templatedev/api/internal/service"
	"templatedev/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api", cfg.Logging.Level)

	ctx := context.Background()

	var (
		dbPool    *pgxpool.Pool
		userStore userRepository
		tokens    service.RefreshTokenStore
	)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		dbPool, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		if cfg.Store.Migrate {
			if err := database.Migrate(ctx, dbPool); err != nil {
				logger.Fatal().Err(err).Msg("failed to run migrations")
			}
		}
		userStore = repository.NewUserRepository(dbPool)
		tokens = repository.NewRefreshTokenRepository(dbPool)
	default:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		memory := repository.NewMemoryStore()
		userStore = memory.Users()
		tokens = memory.RefreshTokens()
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	authService := service.NewAuthService(
		userStore,
		tokens,
		security.NewTokenSigner(cfg.Security.JWTAccessSecret, cfg.Security.JWTAccessTTL, nil),
		security.NewTokenSigner(cfg.Security.JWTRefreshSecret, cfg.Security.JWTRefreshTTL, nil),
		security.NewPasswordHasher(cfg.Security.BcryptCost),
		logger,
	)
	userService := service.NewUserService(userStore, logger)

	if cfg.Security.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Security.AdminEmail, cfg.Security.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed admin account")
		}
	}

	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, logger)
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, userService, limiter, healthChecks(dbPool, redisClient))
	rpcRouter := rpc.NewRouter(logger, authService, limiter, cfg.RateLimit, rpc.Procedures(authService, userService))
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, rpcRouter)

	scheduler := newScheduler(cfg, logger, authService, redisClient)
	if scheduler != nil {
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

type userRepository interface {
	service.UserStore
	service.UserDirectory
}

func healthChecks(db *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := make(map[string]handlers.HealthCheck, 2)
	if db != nil {
		checks["database"] = db.Ping
	}
	if redisClient != nil {
		checks["cache"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

// newScheduler wires the sweep either to the worker stream or to an
// in-process processor. Queue mode without Redis falls back to inline.
func newScheduler(cfg *config.AppConfig, logger zerolog.Logger, sweeper tasks.Sweeper, redisClient *redis.Client) *jobs.Scheduler {
	var dispatcher jobs.Dispatcher
	switch cfg.Jobs.Mode {
	case config.JobsModeDisabled:
		return nil
	case config.JobsModeQueue:
		if redisClient != nil {
			dispatcher = queue.NewProducer(redisClient, cfg.Jobs.Stream)
			break
		}
		logger.Warn().Msg("jobs.mode=queue needs redis; running sweep inline")
		fallthrough
	default:
		dispatcher = tasks.NewProcessor(sweeper, logger)
	}
	return jobs.NewScheduler(dispatcher, cfg.Jobs.SweepSchedule, logger)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		wait := scheduler.Stop()
		wait()
	}

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
