package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/migrate"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/registry"
	"github.com/angelmondragon/orderportal/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	requeue := flag.String("requeue", "", "move a dead-lettered event id back onto the outbox and exit")
	flag.Parse()

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

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if *requeue != "" {
		exitOn(logg, "requeue "+*requeue, requeueDeadLetter(logg, dlq, *requeue))
		return
	}

	broker, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	exitOn(logg, "bootstrap pubsub", err)
	defer closeQuietly(logg, "pubsub client", broker.Close)

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	exitOn(logg, "build event registry", err)

	service, err := NewService(ServiceParams{
		Config:   cfg.Outbox,
		Logger:   logg,
		DB:       dbClient,
		Broker:   broker,
		Sink:     pubsubSink{source: broker},
		Outbox:   outbox.NewRepository(dbClient.DB()),
		DLQ:      dlq,
		Registry: routes,
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	exitOn(logg, "create outbox publisher", err)

	ctx, stop := signal.NotifyContext(boot, os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": serviceKind,
		"topics":      routes.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func requeueDeadLetter(logg *logger.Logger, dlq *outbox.DLQRepository, rawID string) error {
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return err
	}
	ctx := logg.WithField(context.Background(), "event_id", eventID.String())
	if err := dlq.Requeue(ctx, eventID); err != nil {
		return err
	}
	logg.Info(ctx, "outbox.requeued")
	return nil
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
