package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leagueledger/backend/api/controllers"
	webhookcontrollers "github.com/leagueledger/backend/api/controllers/webhooks"
	"github.com/leagueledger/backend/api/middleware"
	"github.com/leagueledger/backend/internal/staging"
	stripewebhook "github.com/leagueledger/backend/internal/webhooks/stripe"
	"github.com/leagueledger/backend/pkg/config"
	"github.com/leagueledger/backend/pkg/db"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/redis"
)

// RouterParams carry everything the API routes depend on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          redis.Pinger
	Metrics        prometheus.Gatherer
	Limiter        middleware.RateLimiter
	StagingRepo    staging.Repository
	StagingService *staging.Service
	StripeService  *stripewebhook.Service
	StripeGuard    *stripewebhook.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(params.Limiter, "stripe-webhook", cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindow, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeService, cfg.Stripe.WebhookSecret, params.StripeGuard, logg))
	})

	// In-band staging for the checkout service: purchases stage their
	// accounting rows before the purchase is acknowledged to the member.
	var stagingSvc controllers.PurchaseStagingService
	if params.StagingService != nil {
		stagingSvc = params.StagingService
	}
	r.Route("/api/internal/v1/staging", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("service", logg))
		r.Post("/purchase", controllers.StagePurchase(stagingSvc, logg))
		r.Post("/free", controllers.StageFreePurchase(stagingSvc, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Route("/v1/staging", func(r chi.Router) {
			r.Get("/", controllers.AdminStagingList(params.StagingRepo, logg))
			r.Get("/{invoiceId}", controllers.AdminStagingDetail(params.StagingRepo, logg))
			r.Post("/requeue", controllers.AdminStagingRequeue(params.StagingRepo, logg))
		})
	})

	return r
}
