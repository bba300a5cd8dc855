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

	"github.com/vendorisland/vendorisland-backend/api/routes"
	"github.com/vendorisland/vendorisland-backend/internal/catalog"
	"github.com/vendorisland/vendorisland-backend/internal/deposits"
	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/internal/pricingrules"
	"github.com/vendorisland/vendorisland-backend/internal/stores"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/config"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/metrics"
	"github.com/vendorisland/vendorisland-backend/pkg/migrate"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/redis"
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

	cfg.Service.Kind = "api"

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

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			prometheus.DefaultGatherer,
			services,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	retry := db.RetryPolicy{MaxAttempts: cfg.Wallet.RetryMaxAttempts, BaseDelay: cfg.Wallet.RetryBaseDelay}

	walletService, err := wallet.NewService(
		wallet.NewRepository(dbClient.DB()),
		dbClient,
		emitter,
		wallet.PolicyFromConfig(cfg.Wallet),
		wallet.WithLogger(logg),
		wallet.WithRetryPolicy(retry),
		wallet.WithMetrics(metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return routes.Services{}, err
	}

	storeService, err := stores.NewService(stores.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return routes.Services{}, err
	}

	numbers, err := orders.NewDailyNumberGenerator(redisClient)
	if err != nil {
		return routes.Services{}, err
	}
	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		emitter,
		walletService,
		storeService,
		numbers,
		orders.WithLogger(logg),
		orders.WithRetryPolicy(retry),
	)
	if err != nil {
		return routes.Services{}, err
	}

	depositService, err := deposits.NewService(
		deposits.NewRepository(dbClient.DB()),
		dbClient,
		emitter,
		walletService,
		orderService,
		deposits.WithLogger(logg),
		deposits.WithRetryPolicy(retry),
	)
	if err != nil {
		return routes.Services{}, err
	}

	ruleService, err := pricingrules.NewService(pricingrules.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return routes.Services{}, err
	}

	catalogService, err := catalog.NewService(
		catalog.NewRepository(dbClient.DB()),
		dbClient,
		emitter,
		ruleService,
		catalog.WithLogger(logg),
		catalog.WithWorkers(cfg.Pricing.Workers),
	)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Wallets:      walletService,
		Deposits:     depositService,
		Orders:       orderService,
		Catalog:      catalogService,
		PricingRules: ruleService,
		Stores:       storeService,
	}, nil
}
