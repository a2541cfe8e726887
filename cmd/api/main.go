package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leagueledger/backend/api/routes"
	"github.com/leagueledger/backend/internal/records"
	"github.com/leagueledger/backend/internal/staging"
	stripewebhook "github.com/leagueledger/backend/internal/webhooks/stripe"
	"github.com/leagueledger/backend/pkg/config"
	"github.com/leagueledger/backend/pkg/db"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/migrate"
	"github.com/leagueledger/backend/pkg/redis"
)

const webhookIdempotencyTTL = 24 * time.Hour

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stagingRepo := staging.NewRepository(dbClient.DB())

	recordsService, err := records.NewService(records.ServiceParams{
		Repo: records.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create records service", err)
		os.Exit(1)
	}

	salesCode, err := recordsService.SalesAccountCode(context.Background(), cfg.Xero.SalesAccountCode)
	if err != nil {
		logg.Error(context.Background(), "failed to resolve sales account code", err)
		os.Exit(1)
	}
	bankCode, err := recordsService.SettlementAccountCode(context.Background(), cfg.Xero.BankAccountCode)
	if err != nil {
		logg.Error(context.Background(), "failed to resolve settlement account code", err)
		os.Exit(1)
	}

	stagingService, err := staging.NewService(staging.ServiceParams{
		Repo:             stagingRepo,
		Records:          recordsService,
		Logger:           logg,
		SalesAccountCode: salesCode,
		BankAccountCode:  bankCode,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create staging service", err)
		os.Exit(1)
	}

	stripeService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Staging: stagingService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	stripeGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Limiter:        redisClient,
			Metrics:        prometheus.DefaultGatherer,
			StagingRepo:    stagingRepo,
			StagingService: stagingService,
			StripeService:  stripeService,
			StripeGuard:    stripeGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
