package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendorisland/vendorisland-backend/api/controllers"
	catalogcontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/catalog"
	depositcontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/deposits"
	ordercontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/orders"
	rulecontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/pricingrules"
	storecontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/stores"
	walletcontrollers "github.com/vendorisland/vendorisland-backend/api/controllers/wallet"
	"github.com/vendorisland/vendorisland-backend/api/middleware"
	"github.com/vendorisland/vendorisland-backend/internal/catalog"
	"github.com/vendorisland/vendorisland-backend/internal/deposits"
	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/internal/pricingrules"
	"github.com/vendorisland/vendorisland-backend/internal/stores"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/config"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/metrics"
	"github.com/vendorisland/vendorisland-backend/pkg/redis"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Wallets      wallet.Service
	Deposits     deposits.Service
	Orders       orders.Service
	Catalog      catalog.Service
	PricingRules pricingrules.Service
	Stores       stores.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.CORS),
	)

	// A nil client must reach the middleware as a nil interface.
	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     middleware.RateLimiterStore
	)
	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["postgres"] = dbP
	}
	if redisClient != nil {
		idempotencyStore = redisClient
		limiterStore = redisClient
		readiness["redis"] = redisClient
	}

	vendorPolicy := middleware.NewRateLimitPolicy("vendor", cfg.RateLimit.Window, cfg.RateLimit.VendorLimit)
	adminPolicy := middleware.NewRateLimitPolicy("admin", cfg.RateLimit.Window, cfg.RateLimit.AdminLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/vendor", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleVendor, logg))
		r.Use(middleware.RateLimit(vendorPolicy, limiterStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletcontrollers.Mine(svc.Wallets, logg))
			r.Post("/", walletcontrollers.Provision(svc.Wallets, logg))
			r.Get("/transactions", walletcontrollers.Transactions(svc.Wallets, logg))
			r.Post("/withdrawals", walletcontrollers.Withdraw(svc.Wallets, logg))
		})

		r.Route("/deposits", func(r chi.Router) {
			r.Post("/", depositcontrollers.Submit(svc.Deposits, logg))
			r.Get("/", depositcontrollers.VendorList(svc.Deposits, logg))
			r.Get("/{depositID}", depositcontrollers.VendorDetail(svc.Deposits, logg))
		})

		r.Route("/stores", func(r chi.Router) {
			r.Post("/", storecontrollers.Create(svc.Stores, logg))
			r.Get("/", storecontrollers.List(svc.Stores, logg))
			r.Route("/{storeID}", func(r chi.Router) {
				r.Get("/", storecontrollers.Detail(svc.Stores, logg))
				r.Patch("/", storecontrollers.Update(svc.Stores, logg))
				r.Delete("/", storecontrollers.Delete(svc.Stores, logg))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Post("/retry-topup", ordercontrollers.RetryTopup(svc.Orders, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(svc.Orders, logg))
				r.Post("/transitions", ordercontrollers.Transition(svc.Orders, logg))
				r.Post("/settle", ordercontrollers.Settle(svc.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(svc.Orders, logg))
				r.Post("/refund", ordercontrollers.Refund(svc.Orders, logg))
			})
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/reprice", catalogcontrollers.RepriceAll(svc.Catalog, logg))
			r.Route("/products", func(r chi.Router) {
				r.Post("/", catalogcontrollers.Import(svc.Catalog, logg))
				r.Get("/", catalogcontrollers.List(svc.Catalog, logg))
				r.Route("/{productID}", func(r chi.Router) {
					r.Get("/", catalogcontrollers.Detail(svc.Catalog, logg))
					r.Delete("/", catalogcontrollers.Delete(svc.Catalog, logg))
					r.Post("/reprice", catalogcontrollers.Reprice(svc.Catalog, logg))
					r.Post("/publish", catalogcontrollers.Publish(svc.Catalog, logg))
					r.Post("/unpublish", catalogcontrollers.Unpublish(svc.Catalog, logg))
					r.Post("/archive", catalogcontrollers.Archive(svc.Catalog, logg))
					r.Post("/price-checks", catalogcontrollers.PriceCheck(svc.Catalog, logg))
				})
			})
		})

		r.Route("/pricing-rules", func(r chi.Router) {
			r.Post("/", rulecontrollers.Create(svc.PricingRules, logg))
			r.Get("/", rulecontrollers.List(svc.PricingRules, logg))
			r.Get("/{ruleID}", rulecontrollers.Detail(svc.PricingRules, logg))
			r.Patch("/{ruleID}", rulecontrollers.Update(svc.PricingRules, logg))
			r.Post("/{ruleID}/deactivate", rulecontrollers.Deactivate(svc.PricingRules, logg))
		})
		r.Post("/pricing/quote", rulecontrollers.Quote(svc.PricingRules, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.RateLimit(adminPolicy, limiterStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/deposits", func(r chi.Router) {
			r.Get("/", depositcontrollers.AdminList(svc.Deposits, logg))
			r.Get("/{depositID}", depositcontrollers.AdminDetail(svc.Deposits, logg))
			r.Post("/{depositID}/approve", depositcontrollers.Approve(svc.Deposits, logg))
			r.Post("/{depositID}/reject", depositcontrollers.Reject(svc.Deposits, logg))
		})

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(svc.Orders, logg))
			r.Post("/mark-paid", ordercontrollers.MarkPaid(svc.Orders, logg))
			r.Post("/transitions", ordercontrollers.Transition(svc.Orders, logg))
		})

		r.Route("/wallets/{walletID}", func(r chi.Router) {
			r.Get("/", walletcontrollers.Detail(svc.Wallets, logg))
			r.Get("/reconciliation", walletcontrollers.Reconcile(svc.Wallets, logg))
		})

		r.Post("/vendors/{vendorID}/retry-topup", ordercontrollers.AdminRetryTopup(svc.Orders, logg))
	})

	return r
}
