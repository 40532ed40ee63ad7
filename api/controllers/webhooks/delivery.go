// Package webhooks holds the per-gateway HTTP endpoints. Each handler is the
// single catch boundary for its gateway: whatever happens inside, the gateway
// receives a structured response shaped to its documented retry semantics.
package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/webhooks"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/metrics"
)

// ReconcilerService is the webhook reconciler surface the endpoints consume.
type ReconcilerService interface {
	ProcessEvent(ctx context.Context, event *gateways.Event, rawPayload []byte) (webhooks.Result, error)
}

type disposition int

const (
	dispProcessed disposition = iota
	dispBadSignature
	dispMalformed
	dispInternalError
)

type deliveryResult struct {
	disp    disposition
	reason  string
	outcome webhooks.Outcome
	err     error
}

// handleDelivery runs the uniform verify, normalize, reconcile pipeline and
// reports a disposition for the gateway-specific response policy to
// translate. It never panics through and never lets an error escape.
func handleDelivery(
	ctx context.Context,
	r *http.Request,
	adapter gateways.Adapter,
	svc ReconcilerService,
	m *metrics.WebhookMetrics,
	logg *logger.Logger,
) deliveryResult {
	gateway := adapter.Gateway().String()
	start := time.Now()
	defer func() {
		m.ObserveDuration(gateway, time.Since(start))
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		m.IncDelivery(gateway, "read_error")
		if logg != nil {
			logg.Error(ctx, "failed to read webhook body", err)
		}
		return deliveryResult{disp: dispInternalError, err: err}
	}

	verdict := adapter.VerifySignature(gateways.Request{Body: body, Header: r.Header})
	if !verdict.Valid {
		m.IncDelivery(gateway, "invalid_signature")
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "reason", verdict.Reason), "webhook signature rejected")
		}
		return deliveryResult{disp: dispBadSignature, reason: verdict.Reason}
	}
	if verdict.Skipped && logg != nil {
		logg.Warn(ctx, "webhook signature verification skipped: "+verdict.Reason)
	}

	event, err := adapter.Normalize(gateways.Request{Body: body, Header: r.Header})
	if err != nil {
		m.IncDelivery(gateway, "malformed_payload")
		if logg != nil {
			logg.Error(logg.WithField(ctx, "body_size", len(body)), "webhook payload rejected", err)
		}
		return deliveryResult{disp: dispMalformed, err: err}
	}

	result, err := svc.ProcessEvent(ctx, event, body)
	if err != nil {
		m.IncDelivery(gateway, "error")
		if logg != nil {
			logg.Error(ctx, "webhook reconciliation failed", err)
		}
		return deliveryResult{disp: dispInternalError, err: err}
	}

	m.IncDelivery(gateway, string(result.Outcome))
	return deliveryResult{disp: dispProcessed, outcome: result.Outcome}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode webhook response","err":"%v"}`, err)
	}
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type receivedBody struct {
	Received bool   `json:"received"`
	Message  string `json:"message,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Health returns the static liveness payload served on each webhook route's
// GET sibling. Unauthenticated by design: gateways and humans both probe it.
func Health(gateway string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusBody{
			Status:  "ok",
			Message: gateway + " webhook endpoint is reachable",
		})
	}
}
