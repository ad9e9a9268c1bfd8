package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/captures-backend/api/routes"
	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/internal/controls"
	"github.com/angelmondragon/captures-backend/internal/downloads"
	"github.com/angelmondragon/captures-backend/internal/likes"
	"github.com/angelmondragon/captures-backend/internal/moderation"
	"github.com/angelmondragon/captures-backend/internal/requests"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/instance"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/metrics"
	"github.com/angelmondragon/captures-backend/pkg/migrate"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
	"github.com/angelmondragon/captures-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "invalid jwt config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	captureRepo := captures.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}
	moderationSvc, err := moderation.NewService(moderation.ServiceParams{
		Captures: captureRepo,
		Audit:    auditSvc,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Logger:   logg,
		Metrics:  metrics.NewModerationMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create moderation service", err)
		os.Exit(1)
	}
	likesSvc, err := likes.NewService(likes.ServiceParams{
		Likes:    likes.NewRepository(conn),
		Captures: captureRepo,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create likes service", err)
		os.Exit(1)
	}
	downloadsSvc, err := downloads.NewService(downloads.ServiceParams{
		Downloads: downloads.NewRepository(conn),
		Captures:  captureRepo,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create downloads service", err)
		os.Exit(1)
	}
	captureSvc, err := captures.NewService(captureRepo, captures.WithDownloadCounter(downloadsSvc))
	if err != nil {
		logg.Error(context.Background(), "failed to create captures service", err)
		os.Exit(1)
	}
	controlsSvc, err := controls.NewService(controls.ServiceParams{
		Repo:   controls.NewRepository(conn),
		Audit:  auditSvc,
		Tx:     dbClient,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create controls service", err)
		os.Exit(1)
	}
	requestsSvc, err := requests.NewService(requests.ServiceParams{
		Requests:   requests.NewRepository(conn),
		Captures:   captureRepo,
		Moderation: moderationSvc,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create removal requests service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Gatherer:    prometheus.DefaultGatherer,
			Verifier:    verifier,
			DB:          dbClient,
			Redis:       redisClient,
			Idempotency: redisClient,
			RateLimits:  redisClient,
			Captures:    captureSvc,
			Moderation:  moderationSvc,
			Audit:       auditSvc,
			Likes:       likesSvc,
			Downloads:   downloadsSvc,
			Controls:    controlsSvc,
			Requests:    requestsSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
