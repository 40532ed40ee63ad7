// Package mercadopago adapts Mercado Pago payment notifications.
package mercadopago

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

const (
	SignatureHeader = "x-signature"
	RequestIDHeader = "x-request-id"

	// timestampTolerance bounds how old a signed notification may be before
	// it is treated as a replay.
	timestampTolerance = 5 * time.Minute
)

var alphanumeric = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

type Adapter struct {
	webhookSecret string
	production    bool
	now           func() time.Time
}

func NewAdapter(cfg config.MercadoPagoConfig, production bool) *Adapter {
	return &Adapter{
		webhookSecret: cfg.WebhookSecret,
		production:    production,
		now:           time.Now,
	}
}

func (a *Adapter) Gateway() enums.PaymentGateway {
	return enums.PaymentGatewayMercadoPago
}

// VerifySignature implements Mercado Pago's manifest scheme: HMAC-SHA256 over
// `id:<id>;request-id:<reqId>;ts:<ts>;` compared against the v1 component of
// the `ts=<ts>,v1=<hex>` signature header. The id is lower-cased only when it
// is purely alphanumeric, matching the gateway's documented canonicalization.
// Signatures older than five minutes are rejected even when the hash matches.
func (a *Adapter) VerifySignature(req gateways.Request) gateways.SignatureResult {
	if a.webhookSecret == "" {
		if a.production {
			return gateways.SignatureResult{Reason: gateways.ReasonNoSecret}
		}
		return gateways.SignatureResult{Valid: true, Skipped: true, Reason: gateways.ReasonNoSecret}
	}

	sigHeader := strings.TrimSpace(req.Header.Get(SignatureHeader))
	if sigHeader == "" {
		return gateways.SignatureResult{Reason: gateways.ReasonMissingSignature}
	}
	requestID := strings.TrimSpace(req.Header.Get(RequestIDHeader))
	if requestID == "" {
		return gateways.SignatureResult{Reason: gateways.ReasonMissingRequestID}
	}

	ts, v1, ok := parseSignatureHeader(sigHeader)
	if !ok {
		return gateways.SignatureResult{Reason: gateways.ReasonMalformedHeader}
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return gateways.SignatureResult{Reason: gateways.ReasonMalformedHeader}
	}
	age := a.now().Sub(time.Unix(tsUnix, 0))
	if age > timestampTolerance || age < -timestampTolerance {
		return gateways.SignatureResult{Reason: gateways.ReasonTimestampTooOld}
	}

	dataID := extractDataID(req)
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", canonicalID(dataID), requestID, ts)
	expected := gateways.HMACSHA256Hex(a.webhookSecret, []byte(manifest))
	if !gateways.DigestsEqual(expected, strings.ToLower(v1)) {
		return gateways.SignatureResult{Reason: gateways.ReasonSignatureMismatch}
	}
	return gateways.SignatureResult{Valid: true}
}

func parseSignatureHeader(header string) (ts string, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", false
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", false
	}
	return ts, v1, true
}

func canonicalID(id string) string {
	if alphanumeric.MatchString(id) {
		return strings.ToLower(id)
	}
	return id
}

func extractDataID(req gateways.Request) string {
	var probe struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(req.Body, &probe)
	return probe.Data.ID
}

type notification struct {
	ID       json.Number `json:"id"`
	Type     string      `json:"type"`
	Action   string      `json:"action"`
	LiveMode bool        `json:"live_mode"`
	Data     struct {
		ID                string          `json:"id" validate:"required"`
		Status            string          `json:"status"`
		StatusDetail      string          `json:"status_detail"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
		CurrencyID        string          `json:"currency_id"`
		ExternalReference string          `json:"external_reference"`
	} `json:"data"`
}

// Normalize converts a Mercado Pago notification into the internal event
// shape.
//
// The idempotency key is the top-level notification id, falling back to the
// `<data.id>:<action>` composite for the occasional delivery that omits it.
// The join key is external_reference (the merchant reference the checkout
// supplied when creating the preference) when present, else data.id. Status
// fields appear only in enriched notification modes; a bare notification
// normalizes to pending and resolution is finished by a later delivery.
func (a *Adapter) Normalize(req gateways.Request) (*gateways.Event, error) {
	var payload notification
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode mercadopago notification")
	}
	if err := gateways.ValidatePayload(payload); err != nil {
		return nil, err
	}

	eventID := payload.ID.String()
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s", payload.Data.ID, payload.Action)
	}

	eventType := payload.Action
	if eventType == "" {
		eventType = payload.Type
	}

	intentID := strings.TrimSpace(payload.Data.ExternalReference)
	if intentID == "" {
		intentID = payload.Data.ID
	}

	event := &gateways.Event{
		Gateway:                enums.PaymentGatewayMercadoPago,
		GatewayEventID:         eventID,
		Type:                   eventType,
		Status:                 mapStatus(payload.Data.Status),
		GatewayTransactionID:   payload.Data.ID,
		GatewayPaymentIntentID: intentID,
		Amount:                 payload.Data.TransactionAmount,
		Currency:               strings.ToUpper(payload.Data.CurrencyID),
		Metadata: map[string]any{
			"status_detail": payload.Data.StatusDetail,
			"live_mode":     payload.LiveMode,
		},
	}
	return event, nil
}

// mapStatus is total over Mercado Pago's payment status vocabulary; unknown
// or missing values stay pending.
func mapStatus(status string) enums.PaymentStatus {
	switch strings.ToLower(status) {
	case "approved":
		return enums.PaymentStatusSucceeded
	case "rejected", "cancelled":
		return enums.PaymentStatusFailed
	case "refunded", "charged_back":
		return enums.PaymentStatusRefunded
	case "pending", "in_process", "in_mediation", "authorized":
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusPending
	}
}
