package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Stefan-migo/opticore-backend/api/controllers"
	webhookcontrollers "github.com/Stefan-migo/opticore-backend/api/controllers/webhooks"
	"github.com/Stefan-migo/opticore-backend/api/middleware"
	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	"github.com/Stefan-migo/opticore-backend/pkg/db"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
	"github.com/Stefan-migo/opticore-backend/pkg/redis"
)

// NewRouter wires the webhook ingestion surface. Every gateway gets a POST
// endpoint for deliveries and a GET sibling so operators and gateway
// dashboards can confirm the URL is reachable without crafting a signed
// payload.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	registry *gateways.Registry,
	reconciler webhookcontrollers.ReconcilerService,
	webhookMetrics *metrics.WebhookMetrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	adapterFor := func(gw enums.PaymentGateway) gateways.Adapter {
		if registry == nil {
			return nil
		}
		adapter, _ := registry.Adapter(gw)
		return adapter
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/flow", webhookcontrollers.Flow(adapterFor(enums.PaymentGatewayFlow), reconciler, webhookMetrics, logg))
		r.Post("/mercadopago", webhookcontrollers.MercadoPago(adapterFor(enums.PaymentGatewayMercadoPago), reconciler, webhookMetrics, logg))
		r.Post("/paypal", webhookcontrollers.PayPal(adapterFor(enums.PaymentGatewayPayPal), reconciler, webhookMetrics, logg))
		r.Post("/nowpayments", webhookcontrollers.NOWPayments(adapterFor(enums.PaymentGatewayNOWPayments), reconciler, webhookMetrics, logg))

		for _, gw := range enums.PaymentGateways() {
			r.Get("/"+gw.String(), webhookcontrollers.Health(gw.String()))
		}
	})

	return r
}
