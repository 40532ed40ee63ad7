package webhooks

import (
	"net/http"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
)

// Flow handles Flow payment confirmations.
//
// Response policy: always HTTP 200, like NOWPayments. Flow re-posts the
// confirmation on non-2xx until it gives up, and the ledger already makes
// redelivery safe.
func Flow(adapter gateways.Adapter, svc ReconcilerService, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil || svc == nil {
			writeJSON(w, http.StatusOK, statusBody{Status: "error", Message: "webhook service unavailable"})
			return
		}

		res := handleDelivery(ctx, r, adapter, svc, m, logg)
		switch res.disp {
		case dispProcessed:
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
