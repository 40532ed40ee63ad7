package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/webhooks"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

type fakeAdapter struct {
	gateway enums.PaymentGateway
	verdict gateways.SignatureResult
	event   *gateways.Event
	normErr error
}

func (f *fakeAdapter) Gateway() enums.PaymentGateway { return f.gateway }

func (f *fakeAdapter) VerifySignature(req gateways.Request) gateways.SignatureResult {
	return f.verdict
}

func (f *fakeAdapter) Normalize(req gateways.Request) (*gateways.Event, error) {
	if f.normErr != nil {
		return nil, f.normErr
	}
	return f.event, nil
}

type fakeReconciler struct {
	calls  int
	result webhooks.Result
	err    error
}

func (f *fakeReconciler) ProcessEvent(ctx context.Context, event *gateways.Event, rawPayload []byte) (webhooks.Result, error) {
	f.calls++
	return f.result, f.err
}

func acceptedEvent(gateway enums.PaymentGateway) *gateways.Event {
	return &gateways.Event{
		Gateway:                gateway,
		GatewayEventID:         "evt-1",
		Type:                   "payment.updated",
		Status:                 enums.PaymentStatusSucceeded,
		GatewayPaymentIntentID: "order-1",
	}
}

func postDelivery(t *testing.T, handler http.HandlerFunc, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestNOWPayments_ProcessedDelivery(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayNOWPayments,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayNOWPayments),
	}
	service := &fakeReconciler{result: webhooks.Result{Outcome: webhooks.OutcomeProcessed}}
	handler := NOWPayments(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/nowpayments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body)
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
}

func TestNOWPayments_PaymentNotFoundStillOK(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayNOWPayments,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayNOWPayments),
	}
	service := &fakeReconciler{result: webhooks.Result{Outcome: webhooks.OutcomePaymentNotFound}}
	handler := NOWPayments(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/nowpayments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" || body["message"] != "Payment not found internally" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestNOWPayments_BadSignatureStaysHTTP200(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayNOWPayments,
		verdict: gateways.SignatureResult{Reason: gateways.ReasonSignatureMismatch},
	}
	service := &fakeReconciler{}
	handler := NOWPayments(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/nowpayments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "error" {
		t.Fatalf("expected error status, got %v", body)
	}
	if service.calls != 0 {
		t.Fatalf("service must not run on invalid signature")
	}
}

func TestNOWPayments_InternalErrorStaysHTTP200(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayNOWPayments,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayNOWPayments),
	}
	service := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := NOWPayments(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/nowpayments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "error" {
		t.Fatalf("expected error status, got %v", body)
	}
}

func TestFlow_ProcessedDelivery(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayFlow,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayFlow),
	}
	service := &fakeReconciler{result: webhooks.Result{Outcome: webhooks.OutcomeProcessed}}
	handler := Flow(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/flow")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body)
	}
}

func TestMercadoPago_ProcessedDelivery(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayMercadoPago,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayMercadoPago),
	}
	service := &fakeReconciler{result: webhooks.Result{Outcome: webhooks.OutcomeProcessed}}
	handler := MercadoPago(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/mercadopago")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["received"] != true {
		t.Fatalf("expected received true, got %v", body)
	}
}

func TestMercadoPago_PaymentNotFoundMessage(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayMercadoPago,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayMercadoPago),
	}
	service := &fakeReconciler{result: webhooks.Result{Outcome: webhooks.OutcomePaymentNotFound}}
	handler := MercadoPago(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/mercadopago")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["received"] != true || body["message"] != "Payment not found internally" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMercadoPago_InternalErrorIs500(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayMercadoPago,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayMercadoPago),
	}
	service := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := MercadoPago(adapter, service, nil, nil)

	rec, _ := postDelivery(t, handler, "/api/v1/webhooks/mercadopago")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for internal failure, got %d", rec.Code)
	}
}

func TestPayPal_MalformedPayloadAcknowledged(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayPayPal,
		verdict: gateways.SignatureResult{Valid: true},
		normErr: pkgerrors.New(pkgerrors.CodeValidation, "decode paypal event"),
	}
	service := &fakeReconciler{}
	handler := PayPal(adapter, service, nil, nil)

	rec, body := postDelivery(t, handler, "/api/v1/webhooks/paypal")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 so paypal stops redelivering, got %d", rec.Code)
	}
	if body["received"] != true {
		t.Fatalf("expected received true, got %v", body)
	}
	if service.calls != 0 {
		t.Fatalf("service must not run on malformed payload")
	}
}

func TestPayPal_InternalErrorIs500(t *testing.T) {
	adapter := &fakeAdapter{
		gateway: enums.PaymentGatewayPayPal,
		verdict: gateways.SignatureResult{Valid: true},
		event:   acceptedEvent(enums.PaymentGatewayPayPal),
	}
	service := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := PayPal(adapter, service, nil, nil)

	rec, _ := postDelivery(t, handler, "/api/v1/webhooks/paypal")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for internal failure, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := Health("flow")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/flow", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body)
	}
}
