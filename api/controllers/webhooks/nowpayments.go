package webhooks

import (
	"net/http"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/webhooks"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
)

// NOWPayments handles NOWPayments IPN callbacks.
//
// Response policy: always HTTP 200. NOWPayments retries aggressively on
// non-2xx, and every internal failure here is recoverable only by human
// review, so retry pressure buys nothing; failures signal through the body's
// error status and the logs.
func NOWPayments(adapter gateways.Adapter, svc ReconcilerService, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil || svc == nil {
			writeJSON(w, http.StatusOK, statusBody{Status: "error", Message: "webhook service unavailable"})
			return
		}

		res := handleDelivery(ctx, r, adapter, svc, m, logg)
		switch res.disp {
		case dispProcessed:
			if res.outcome == webhooks.OutcomePaymentNotFound {
				writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Payment not found internally"})
				return
			}
			writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
		case dispBadSignature:
			writeJSON(w, http.StatusOK, statusBody{Status: "error", Message: res.reason})
		case dispMalformed:
			writeJSON(w, http.StatusOK, statusBody{Status: "error", Message: "invalid payload"})
		default:
			writeJSON(w, http.StatusOK, statusBody{Status: "error", Message: "internal error"})
		}
	}
}
