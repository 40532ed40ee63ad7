package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Stefan-migo/opticore-backend/api/routes"
	"github.com/Stefan-migo/opticore-backend/internal/fulfillment"
	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	flowgw "github.com/Stefan-migo/opticore-backend/internal/gateways/flow"
	mercadopagogw "github.com/Stefan-migo/opticore-backend/internal/gateways/mercadopago"
	nowpaymentsgw "github.com/Stefan-migo/opticore-backend/internal/gateways/nowpayments"
	paypalgw "github.com/Stefan-migo/opticore-backend/internal/gateways/paypal"
	"github.com/Stefan-migo/opticore-backend/internal/payments"
	"github.com/Stefan-migo/opticore-backend/internal/webhooks"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	"github.com/Stefan-migo/opticore-backend/pkg/db"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
	"github.com/Stefan-migo/opticore-backend/pkg/migrate"
	"github.com/Stefan-migo/opticore-backend/pkg/redis"
)

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

	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	fulfillmentService, err := fulfillment.NewService(dbClient.DB(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	reconciler, err := webhooks.NewService(webhooks.ServiceParams{
		Ledger:            webhooks.NewLedgerRepository(dbClient.DB()),
		Payments:          payments.NewRepository(dbClient.DB()),
		Fulfillment:       fulfillmentService,
		Guard:             guard,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	production := cfg.App.IsProd()
	registry, err := gateways.NewRegistry(
		flowgw.NewAdapter(cfg.Gateways.Flow, production),
		mercadopagogw.NewAdapter(cfg.Gateways.MercadoPago, production),
		paypalgw.NewAdapter(cfg.Gateways.PayPal, production),
		nowpaymentsgw.NewAdapter(cfg.Gateways.NOWPayments, production),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting webhook api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry, reconciler, webhookMetrics, promRegistry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "webhook api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
