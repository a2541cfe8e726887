package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leagueledger/backend/internal/cron"
	"github.com/leagueledger/backend/internal/staging"
	"github.com/leagueledger/backend/internal/syncer"
	"github.com/leagueledger/backend/pkg/config"
	"github.com/leagueledger/backend/pkg/db"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/metrics"
	"github.com/leagueledger/backend/pkg/migrate"
	"github.com/leagueledger/backend/pkg/redis"
	"github.com/leagueledger/backend/pkg/xero"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	xeroClient, err := xero.NewClient(cfg.Xero)
	if err != nil {
		logg.Error(context.Background(), "failed to create xero client", err)
		os.Exit(1)
	}

	stagingRepo := staging.NewRepository(dbClient.DB())
	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)

	syncService, err := syncer.NewService(syncer.ServiceParams{
		Logger:   logg,
		Repo:     stagingRepo,
		Xero:     xeroClient,
		Metrics:  syncMetrics,
		TenantID: cfg.Xero.TenantID,
		Config:   cfg.Sync,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync service", err)
		os.Exit(1)
	}

	syncJob, err := cron.NewSyncJob(cron.SyncJobParams{
		Logger: logg,
		Syncer: syncService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync job", err)
		os.Exit(1)
	}

	stuckResetJob, err := cron.NewStuckResetJob(cron.StuckResetJobParams{
		Logger:     logg,
		Repository: stagingRepo,
		OlderThan:  cfg.Sync.StuckSyncingTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stuck-reset job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Sync.LockKey, cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(syncJob, stuckResetJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
