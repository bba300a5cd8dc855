package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vendorisland/vendorisland-backend/internal/analytics/router"
	"github.com/vendorisland/vendorisland-backend/internal/analytics/worker"
	"github.com/vendorisland/vendorisland-backend/internal/analytics/writer"
	"github.com/vendorisland/vendorisland-backend/pkg/bigquery"
	"github.com/vendorisland/vendorisland-backend/pkg/config"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/idempotency"
	"github.com/vendorisland/vendorisland-backend/pkg/pubsub"
	"github.com/vendorisland/vendorisland-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run wires the Pub/Sub -> BigQuery pipeline and blocks until ctx ends.
// Deferred closes run in reverse order so the subscription drains first.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.AnalyticsSubscription)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeLogged(ctx, logg, "pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeLogged(ctx, logg, "bigquery", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}
	// Bounded so BigQuery inserts cannot pile up while a backlog drains.
	subscription.ReceiveSettings.MaxOutstandingMessages = cfg.Eventing.MaxOutstanding

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL, cfg.Eventing.ClaimTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}

	factWriter, err := writer.New(bqClient, writer.Config{
		LedgerFactTable: bqClient.LedgerTable(),
		MaxAttempts:     cfg.BigQuery.InsertAttempts,
		BaseBackoff:     cfg.BigQuery.InsertBackoff,
	})
	if err != nil {
		return fmt.Errorf("ledger fact writer: %w", err)
	}

	routes, err := router.NewRouter(factWriter, logg)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}

	service, err := worker.NewService(subscription, routes, manager, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
