// Package nowpayments adapts NOWPayments cryptocurrency IPN callbacks.
package nowpayments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

const SignatureHeader = "x-nowpayments-sig"

type Adapter struct {
	ipnSecret  string
	production bool
}

func NewAdapter(cfg config.NOWPaymentsConfig, production bool) *Adapter {
	return &Adapter{ipnSecret: cfg.IPNSecret, production: production}
}

func (a *Adapter) Gateway() enums.PaymentGateway {
	return enums.PaymentGatewayNOWPayments
}

// VerifySignature checks the HMAC-SHA512 hex digest of the exact raw body
// bytes against the x-nowpayments-sig header.
func (a *Adapter) VerifySignature(req gateways.Request) gateways.SignatureResult {
	if a.ipnSecret == "" {
		if a.production {
			return gateways.SignatureResult{Reason: gateways.ReasonNoSecret}
		}
		return gateways.SignatureResult{Valid: true, Skipped: true, Reason: gateways.ReasonNoSecret}
	}

	received := strings.TrimSpace(req.Header.Get(SignatureHeader))
	if received == "" {
		return gateways.SignatureResult{Reason: gateways.ReasonMissingSignature}
	}

	expected := gateways.HMACSHA512Hex(a.ipnSecret, req.Body)
	if !gateways.DigestsEqual(expected, strings.ToLower(received)) {
		return gateways.SignatureResult{Reason: gateways.ReasonSignatureMismatch}
	}
	return gateways.SignatureResult{Valid: true}
}

type ipnPayload struct {
	PaymentID        int64           `json:"payment_id" validate:"required"`
	InvoiceID        json.Number     `json:"invoice_id"`
	PaymentStatus    string          `json:"payment_status" validate:"required"`
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayAmount        decimal.Decimal `json:"pay_amount"`
	ActuallyPaid     decimal.Decimal `json:"actually_paid"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
	PurchaseID       json.Number     `json:"purchase_id"`
	OutcomeAmount    decimal.Decimal `json:"outcome_amount"`
	OutcomeCurrency  string          `json:"outcome_currency"`
	UpdatedAt        string          `json:"updated_at"`
}

// Normalize converts an IPN callback into the internal event shape.
//
// NOWPayments does not assign per-delivery ids, so the idempotency key is the
// `<payment_id>:<payment_status>` composite: stable across redeliveries of
// the same logical event, distinct across status changes. The join key for
// payment lookup is order_id (the merchant reference supplied at invoice
// creation), falling back to invoice_id.
func (a *Adapter) Normalize(req gateways.Request) (*gateways.Event, error) {
	var payload ipnPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode nowpayments ipn")
	}
	if err := gateways.ValidatePayload(payload); err != nil {
		return nil, err
	}

	intentID := strings.TrimSpace(payload.OrderID)
	if intentID == "" {
		intentID = payload.InvoiceID.String()
	}

	event := &gateways.Event{
		Gateway:                enums.PaymentGatewayNOWPayments,
		GatewayEventID:         fmt.Sprintf("%d:%s", payload.PaymentID, payload.PaymentStatus),
		Type:                   "payment." + payload.PaymentStatus,
		Status:                 mapStatus(payload.PaymentStatus),
		GatewayTransactionID:   strconv.FormatInt(payload.PaymentID, 10),
		GatewayPaymentIntentID: intentID,
		Amount:                 payload.PriceAmount,
		Currency:               strings.ToUpper(payload.PriceCurrency),
		Metadata: map[string]any{
			"pay_currency":     payload.PayCurrency,
			"pay_amount":       payload.PayAmount.String(),
			"actually_paid":    payload.ActuallyPaid.String(),
			"outcome_amount":   payload.OutcomeAmount.String(),
			"outcome_currency": payload.OutcomeCurrency,
			"purchase_id":      payload.PurchaseID.String(),
		},
	}

	if orderID, err := uuid.Parse(strings.TrimSpace(payload.OrderID)); err == nil {
		event.OrderID = &orderID
	}

	return event, nil
}

// mapStatus is total over NOWPayments' published payment_status vocabulary.
// Unknown values fall back to pending so a new gateway status never crashes a
// delivery; the reconciler logs the raw type alongside.
func mapStatus(status string) enums.PaymentStatus {
	switch strings.ToLower(status) {
	case "finished":
		return enums.PaymentStatusSucceeded
	case "failed", "expired":
		return enums.PaymentStatusFailed
	case "refunded":
		return enums.PaymentStatusRefunded
	case "waiting", "confirming", "confirmed", "sending", "partially_paid":
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusPending
	}
}
