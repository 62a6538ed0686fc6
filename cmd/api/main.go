package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderportal/api/controllers"
	"github.com/angelmondragon/orderportal/api/routes"
	"github.com/angelmondragon/orderportal/internal/balancerequests"
	"github.com/angelmondragon/orderportal/internal/cart"
	"github.com/angelmondragon/orderportal/internal/checkout"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/internal/notifications"
	"github.com/angelmondragon/orderportal/internal/orderhours"
	"github.com/angelmondragon/orderportal/internal/orders"
	"github.com/angelmondragon/orderportal/internal/stats"
	product "github.com/angelmondragon/orderportal/internal/products"
	"github.com/angelmondragon/orderportal/internal/users"
	"github.com/angelmondragon/orderportal/pkg/auth"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/env"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/migrate"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/pubsub"
	"github.com/angelmondragon/orderportal/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Env:         cfg.App.Env,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(context.Background(), logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(context.Background(), logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(context.Background(), logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	mailer := notifications.Mailer(notifications.NewLogMailer(logg))
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		requireResource(context.Background(), logg, "pubsub", err)
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		pubsubMailer, err := notifications.NewPubSubMailer(pubsubClient.MailPublisher())
		requireResource(context.Background(), logg, "mail publisher", err)
		mailer = pubsubMailer
		readiness["pubsub"] = pubsubClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	notificationsRepo := notifications.NewRepository(conn)
	userRepo := users.NewRepository(conn)

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repository: notificationsRepo,
		Users:      userRepo,
		Mailer:     mailer,
		Config:     cfg.Mail,
		Logger:     logg,
	})
	requireResource(context.Background(), logg, "notification dispatcher", err)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(conn),
		TxRunner:   dbClient,
		Outbox:     emitter,
		Config:     cfg.Ledger,
		Metrics:    metrics.NewLedgerMetrics(registry),
		Notifier:   dispatcher,
		Logger:     logg,
	})
	requireResource(context.Background(), logg, "ledger service", err)

	ordersRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository: ordersRepo,
		TxRunner:   dbClient,
		Ledger:     ledgerService,
		Outbox:     emitter,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	requireResource(context.Background(), logg, "orders service", err)

	hours, err := orderhours.NewService(orderhours.NewRepository(conn), cfg.Orders)
	requireResource(context.Background(), logg, "order hours service", err)

	productRepo := product.NewRepository(conn)
	productService, err := product.NewService(productRepo)
	requireResource(context.Background(), logg, "product service", err)

	cartRepo := cart.NewCartItemRepository(conn)
	cartService, err := cart.NewService(cartRepo, productRepo)
	requireResource(context.Background(), logg, "cart service", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		TxRunner: dbClient,
		Cart:     cartRepo,
		Products: productRepo,
		Orders:   ordersRepo,
		Ledger:   ledgerService,
		Hours:    hours,
		Outbox:   emitter,
		Notifier: dispatcher,
		Metrics:  metrics.NewCheckoutMetrics(registry),
		Logger:   logg,
	})
	requireResource(context.Background(), logg, "checkout service", err)

	balanceRequestsService, err := balancerequests.NewService(balancerequests.ServiceParams{
		Repository: balancerequests.NewRepository(conn),
		TxRunner:   dbClient,
		Ledger:     ledgerService,
		Outbox:     emitter,
		Config:     cfg.Ledger,
		Limiter:    redisClient,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	requireResource(context.Background(), logg, "balance request service", err)

	notificationsService, err := notifications.NewService(notificationsRepo)
	requireResource(context.Background(), logg, "notifications service", err)

	statsService, err := stats.NewService(stats.ServiceParams{
		Repository: stats.NewRepository(conn),
		Ledger:     ledgerService,
		Config:     cfg.Orders,
	})
	requireResource(context.Background(), logg, "stats service", err)

	tokens, err := auth.NewTokens(cfg.JWT)
	requireResource(context.Background(), logg, "jwt", err)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	id := env.InstanceID()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			Readiness:       readiness,
			Tokens:          tokens,
			Idempotency:     redisClient,
			Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Products:        productService,
			Checkout:        checkoutService,
			Cart:            cartService,
			Orders:          ordersService,
			Ledger:          ledgerService,
			BalanceRequests: balanceRequestsService,
			Notifications:   notificationsService,
			Stats:           statsService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

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
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
