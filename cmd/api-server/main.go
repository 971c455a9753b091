package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiny-steps/schedule-service/internal/api"
	"github.com/tiny-steps/schedule-service/internal/appointment"
	"github.com/tiny-steps/schedule-service/internal/config"
	"github.com/tiny-steps/schedule-service/internal/db"
	"github.com/tiny-steps/schedule-service/internal/integration"
	"github.com/tiny-steps/schedule-service/internal/logging"
	redisclient "github.com/tiny-steps/schedule-service/internal/redis"
	"github.com/tiny-steps/schedule-service/internal/transfer"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Getenv("APP_ENV"), "info").Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	opts := []appointment.Option{appointment.WithLogger(logger)}

	// Connect Redis. The slot lock only rejects contention early, the unique
	// index still decides, so the server runs without it.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, slot lock disabled")
		} else {
			rdb = client
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Error().Err(err).Msg("error closing redis")
				}
			}()
			opts = append(opts, appointment.WithLocker(redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)))
			logger.Info().Msg("connected to Redis")
		}
	}

	var dir *integration.Directory
	if cfg.IntegrationsEnabled() {
		dir, err = integration.NewDirectory(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("collaborator client setup error")
		}
		opts = append(opts, appointment.WithDirectory(dir))
	} else {
		logger.Warn().Msg("collaborator URLs not configured, existence checks and transfers disabled")
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, cfg, opts...)

	routerCfg := api.RouterConfig{
		Service: svc,
		Logger:  logger,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	}
	if dir != nil {
		routerCfg.Transfer = transfer.NewService(svc, dir, dir, logger)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
