package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tmorales/waresync-backend/internal/cron"
	"github.com/tmorales/waresync-backend/internal/events"
	"github.com/tmorales/waresync-backend/internal/ledger"
	"github.com/tmorales/waresync-backend/internal/ops"
	"github.com/tmorales/waresync-backend/internal/snapshot"
	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db"
	"github.com/tmorales/waresync-backend/pkg/enums"
	"github.com/tmorales/waresync-backend/pkg/logger"
	"github.com/tmorales/waresync-backend/pkg/marketplace"
	"github.com/tmorales/waresync-backend/pkg/metrics"
	"github.com/tmorales/waresync-backend/pkg/migrate"
	"github.com/tmorales/waresync-backend/pkg/pubsub"
	"github.com/tmorales/waresync-backend/pkg/redis"
)

const lockKeyFormat = "ws:event-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "event-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "event-worker"

	logg = logger.New(logger.Options{
		ServiceName: "event-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "event worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "event worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	marketClient, err := marketplace.NewClient(cfg.Marketplace, logg)
	if err != nil {
		return fmt.Errorf("bootstrap marketplace client: %w", err)
	}

	alerts, err := pubsub.NewAlertPublisher(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap alert publisher: %w", err)
	}
	if alerts != nil {
		defer func() {
			if err := alerts.Close(); err != nil {
				logg.Error(ctx, "error closing alert publisher", err)
			}
		}()
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sweepMetrics := metrics.NewSweepMetrics(promRegistry)

	snapshots, err := snapshot.NewService(snapshot.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return fmt.Errorf("bootstrap snapshot service: %w", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:   ledger.NewRepository(dbClient.DB()),
		DB:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return fmt.Errorf("bootstrap ledger service: %w", err)
	}

	queueRepo := events.NewRepository(dbClient.DB())
	sweeper, err := events.NewSweeper(events.SweeperParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Repo:   queueRepo,
		Handlers: map[enums.QueueEventType]events.Handler{
			enums.EventStockThenOrder: events.NewStockThenOrderHandler(marketClient, snapshots, ledgerSvc, logg),
			enums.EventStockUpdate:    events.NewStockUpdateHandler(marketClient, ledgerSvc),
			enums.EventProductUpdate:  events.NewProductUpdateHandler(marketClient, ledgerSvc, logg),
		},
		Metrics: sweepMetrics,
		Alerts:  alerts,
	})
	if err != nil {
		return fmt.Errorf("bootstrap sweeper: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 5*time.Minute)
	if err != nil {
		return fmt.Errorf("create sweep lock: %w", err)
	}

	worker, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logg,
		Sweeper: sweeper,
		DB:      dbClient,
		Lock:    lock,
	})
	if err != nil {
		return fmt.Errorf("bootstrap worker: %w", err)
	}

	opsServer, err := ops.NewServer(ops.ServerParams{
		Config:   cfg,
		Logger:   logg,
		Registry: promRegistry,
		Checks: map[string]ops.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		DLQ: queueRepo,
	})
	if err != nil {
		return fmt.Errorf("bootstrap ops server: %w", err)
	}

	logg.Info(ctx, "starting event worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return worker.Run(groupCtx) })
	group.Go(func() error { return opsServer.Run(groupCtx) })
	return group.Wait()
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
