package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tmorales/waresync-backend/internal/cron"
	"github.com/tmorales/waresync-backend/internal/events"
	"github.com/tmorales/waresync-backend/internal/ledger"
	"github.com/tmorales/waresync-backend/internal/ops"
	"github.com/tmorales/waresync-backend/internal/reconcile"
	"github.com/tmorales/waresync-backend/internal/reports"
	"github.com/tmorales/waresync-backend/internal/snapshot"
	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db"
	"github.com/tmorales/waresync-backend/pkg/logger"
	"github.com/tmorales/waresync-backend/pkg/marketplace"
	"github.com/tmorales/waresync-backend/pkg/metrics"
	"github.com/tmorales/waresync-backend/pkg/migrate"
	"github.com/tmorales/waresync-backend/pkg/pubsub"
	"github.com/tmorales/waresync-backend/pkg/redis"
	"github.com/tmorales/waresync-backend/pkg/warehouse"
)

const lockKeyFormat = "ws:reconciler-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconciler-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "reconciler-worker"

	logg = logger.New(logger.Options{
		ServiceName: "reconciler-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "reconciler worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "reconciler worker shutting down gracefully")
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

	warehouseClient, err := warehouse.NewClient(cfg.Warehouse, logg)
	if err != nil {
		return fmt.Errorf("bootstrap warehouse client: %w", err)
	}
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
	jobMetrics := metrics.NewJobMetrics(promRegistry)

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
	reportsSvc, err := reports.NewService(reports.ServiceParams{
		Repo:   reports.NewRepository(dbClient.DB()),
		DB:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return fmt.Errorf("bootstrap reports service: %w", err)
	}
	queueRepo := events.NewRepository(dbClient.DB())
	queueSvc, err := events.NewService(queueRepo, logg)
	if err != nil {
		return fmt.Errorf("bootstrap queue service: %w", err)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Config:      cfg,
		Logger:      logg,
		Warehouse:   warehouseClient,
		Marketplace: marketClient,
		Snapshots:   snapshots,
		Ledger:      ledgerSvc,
		Reports:     reportsSvc,
		Events:      queueSvc,
		DB:          dbClient,
		Alerts:      alerts,
	})
	if err != nil {
		return fmt.Errorf("bootstrap reconcile service: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Reconcile.Interval*2)
	if err != nil {
		return fmt.Errorf("create reconcile lock: %w", err)
	}

	reconcileJob, err := cron.NewReconcileJob(reconciler)
	if err != nil {
		return err
	}
	reportRetentionJob, err := cron.NewReportRetentionJob(reportsSvc, cfg.Reconcile.ReportRetentionDays)
	if err != nil {
		return err
	}
	queueRetentionJob, err := cron.NewQueueRetentionJob(queueRepo, logg, cfg.Queue.RetentionDays)
	if err != nil {
		return err
	}

	cronSvc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob, reportRetentionJob, queueRetentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		return fmt.Errorf("bootstrap cron service: %w", err)
	}

	opsServer, err := ops.NewServer(ops.ServerParams{
		Config:   cfg,
		Logger:   logg,
		Registry: promRegistry,
		Checks: map[string]ops.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Reports: reportsSvc,
		DLQ:     queueRepo,
	})
	if err != nil {
		return fmt.Errorf("bootstrap ops server: %w", err)
	}

	logg.Info(ctx, "starting reconciler worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return cronSvc.Run(groupCtx) })
	group.Go(func() error { return opsServer.Run(groupCtx) })
	return group.Wait()
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
