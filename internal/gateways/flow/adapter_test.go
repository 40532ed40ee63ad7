package flow

import (
	"net/url"
	"testing"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

func signedConfirmation(secret string, params url.Values) []byte {
	params.Set(SignatureParam, gateways.HMACSHA256Hex(secret, []byte(signableString(params))))
	return []byte(params.Encode())
}

func confirmationParams() url.Values {
	return url.Values{
		"token":         {"C1D2E3F4A5B6"},
		"commerceOrder": {"order-5501"},
		"flowOrder":     {"987654"},
		"status":        {"2"},
		"amount":        {"48000"},
		"currency":      {"CLP"},
		"payer":         {"cliente@example.cl"},
	}
}

func TestAdapter_VerifySignature(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{SecretKey: "flow-secret"}, true)

	body := signedConfirmation("flow-secret", confirmationParams())
	result := adapter.VerifySignature(gateways.Request{Body: body})
	if !result.Valid {
		t.Fatalf("expected valid signature, got reason %q", result.Reason)
	}
}

func TestAdapter_VerifySignatureRejectsTamperedParam(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{SecretKey: "flow-secret"}, true)

	params := confirmationParams()
	body := signedConfirmation("flow-secret", params)
	tampered, err := url.ParseQuery(string(body))
	if err != nil {
		t.Fatalf("reparse body: %v", err)
	}
	tampered.Set("amount", "1")

	result := adapter.VerifySignature(gateways.Request{Body: []byte(tampered.Encode())})
	if result.Valid {
		t.Fatalf("expected tampered confirmation rejected")
	}
	if result.Reason != gateways.ReasonSignatureMismatch {
		t.Fatalf("expected signature mismatch, got %q", result.Reason)
	}
}

func TestAdapter_VerifySignatureMissingParam(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{SecretKey: "flow-secret"}, true)

	result := adapter.VerifySignature(gateways.Request{Body: []byte(confirmationParams().Encode())})
	if result.Valid {
		t.Fatalf("expected unsigned confirmation rejected")
	}
	if result.Reason != gateways.ReasonMissingSignature {
		t.Fatalf("expected missing signature reason, got %q", result.Reason)
	}
}

func TestAdapter_VerifySignatureNoSecret(t *testing.T) {
	prod := NewAdapter(config.FlowConfig{}, true)
	if result := prod.VerifySignature(gateways.Request{Body: []byte("token=x")}); result.Valid {
		t.Fatalf("expected production without secret to reject")
	}

	dev := NewAdapter(config.FlowConfig{}, false)
	result := dev.VerifySignature(gateways.Request{Body: []byte("token=x")})
	if !result.Valid || !result.Skipped {
		t.Fatalf("expected dev without secret to skip verification, got %+v", result)
	}
}

func TestAdapter_Normalize(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{SecretKey: "flow-secret"}, true)

	event, err := adapter.Normalize(gateways.Request{Body: []byte(confirmationParams().Encode())})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Gateway != enums.PaymentGatewayFlow {
		t.Fatalf("unexpected gateway %s", event.Gateway)
	}
	if event.GatewayEventID != "C1D2E3F4A5B6:2" {
		t.Fatalf("unexpected event id %q", event.GatewayEventID)
	}
	if event.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", event.Status)
	}
	if event.GatewayPaymentIntentID != "order-5501" {
		t.Fatalf("unexpected intent id %q", event.GatewayPaymentIntentID)
	}
	if event.GatewayTransactionID != "987654" {
		t.Fatalf("unexpected transaction id %q", event.GatewayTransactionID)
	}
	if event.Amount.String() != "48000" || event.Currency != "CLP" {
		t.Fatalf("unexpected amount %s %s", event.Amount, event.Currency)
	}
}

func TestAdapter_NormalizeTokenFallbackAndDefaults(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{}, false)

	event, err := adapter.Normalize(gateways.Request{Body: []byte("token=TOK99&status=3")})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.GatewayPaymentIntentID != "TOK99" {
		t.Fatalf("expected token fallback, got %q", event.GatewayPaymentIntentID)
	}
	if event.Currency != "CLP" {
		t.Fatalf("expected CLP default, got %q", event.Currency)
	}
	if event.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed for status 3, got %s", event.Status)
	}
}

func TestAdapter_NormalizeRequiresToken(t *testing.T) {
	adapter := NewAdapter(config.FlowConfig{}, false)

	if _, err := adapter.Normalize(gateways.Request{Body: []byte("status=2&amount=100")}); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]enums.PaymentStatus{
		"1": enums.PaymentStatusPending,
		"2": enums.PaymentStatusSucceeded,
		"3": enums.PaymentStatusFailed,
		"4": enums.PaymentStatusFailed,
		"9": enums.PaymentStatusPending,
		"":  enums.PaymentStatusPending,
	}
	for raw, want := range cases {
		if got := mapStatus(raw); got != want {
			t.Fatalf("mapStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}
