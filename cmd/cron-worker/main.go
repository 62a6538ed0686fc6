package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderportal/internal/cron"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/internal/notifications"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/migrate"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	boot := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOn(logg, "load config", err)
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Env:         cfg.App.Env,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	exitOn(logg, "bootstrap database", err)
	defer closeQuietly(logg, "database", dbClient.Close)
	exitOn(logg, "run dev migrations", migrate.MaybeRunDev(boot, cfg, logg, dbClient))

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	exitOn(logg, "bootstrap redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), 0)
	exitOn(logg, "create cron lock", err)

	conn := dbClient.DB()
	reconcile, err := cron.NewBalanceReconcileJob(cron.BalanceReconcileJobParams{
		Logger: logg,
		Ledger: ledger.NewRepository(conn),
	})
	exitOn(logg, "create balance reconcile job", err)
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(conn),
		Retention:  cfg.Cron.NotificationRetention,
	})
	exitOn(logg, "create notification cleanup job", err)
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(conn),
		Retention:  cfg.Outbox.Retention,
	})
	exitOn(logg, "create outbox retention job", err)

	// A zero cadence runs the job on every wake-up.
	registry := cron.NewRegistry()
	for _, entry := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{reconcile, 0},
		{notificationCleanup, cfg.Cron.CleanupEvery},
		{outboxRetention, cfg.Cron.CleanupEvery},
	} {
		exitOn(logg, "register "+entry.job.Name(), registry.Register(entry.job, entry.every))
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	exitOn(logg, "create cron service", err)

	ctx, stop := signal.NotifyContext(boot, os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": serviceKind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
}

func exitOn(logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to "+step, err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
