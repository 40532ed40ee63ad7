package webhooks

import (
	"net/http"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/webhooks"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
)

// PayPal handles PayPal webhook event deliveries.
//
// Response policy mirrors Mercado Pago: gateway-data problems are
// acknowledged with HTTP 200 so PayPal stops redelivering an event we will
// never accept, and 500 is kept for internal failures where redelivery can
// actually succeed later.
func PayPal(adapter gateways.Adapter, svc ReconcilerService, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil || svc == nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "webhook service unavailable"})
			return
		}

		res := handleDelivery(ctx, r, adapter, svc, m, logg)
		switch res.disp {
		case dispProcessed:
			if res.outcome == webhooks.OutcomePaymentNotFound {
				writeJSON(w, http.StatusOK, receivedBody{Received: true, Message: "Payment not found internally"})
				return
			}
			writeJSON(w, http.StatusOK, receivedBody{Received: true})
		case dispBadSignature:
			writeJSON(w, http.StatusOK, receivedBody{Received: true, Message: res.reason})
		case dispMalformed:
			writeJSON(w, http.StatusOK, receivedBody{Received: true, Message: "invalid payload"})
		default:
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		}
	}
}
