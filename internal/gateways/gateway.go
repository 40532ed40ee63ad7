// Package gateways defines the closed set of payment-gateway adapters. Each
// adapter owns one gateway's signature scheme, payload shape, and status
// vocabulary; everything downstream of Normalize is gateway-agnostic.
package gateways

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// Request carries the parts of one webhook delivery an adapter may inspect.
// Body is the exact raw bytes received: body-digest signatures break on
// re-serialized JSON, so nothing upstream may re-encode it.
type Request struct {
	Body   []byte
	Header http.Header
}

// SignatureResult is a structured verdict, never an error: invalid signatures
// are expected traffic (attacks, misconfiguration, redeliveries after key
// rotation) and the caller decides how to respond.
type SignatureResult struct {
	Valid bool
	// Reason identifies the failure cause, or the reason verification was
	// skipped when Valid and Skipped are both set.
	Reason string
	// Skipped marks a fail-open verdict issued because no secret is
	// configured in a non-production environment.
	Skipped bool
}

// Distinct signature failure reasons. Tests assert on these, so each cause
// keeps its own string.
const (
	ReasonMissingSignature  = "Missing signature header"
	ReasonMissingRequestID  = "Missing request id header"
	ReasonMalformedHeader   = "Malformed signature header"
	ReasonTimestampTooOld   = "Timestamp too old"
	ReasonSignatureMismatch = "Signature mismatch"
	ReasonNoSecret          = "No signature secret configured"
)

// Event is the normalized, gateway-agnostic form of one webhook delivery. It
// lives only between the normalizer and the reconciler; the idempotency
// ledger keeps its durable projection.
type Event struct {
	Gateway enums.PaymentGateway

	// GatewayEventID is the idempotency key: stable across retried
	// deliveries of the same logical event.
	GatewayEventID string

	// Type is the gateway's event-type string, preserved verbatim.
	Type string

	Status enums.PaymentStatus

	GatewayTransactionID   string
	GatewayPaymentIntentID string

	// Amount and Currency are as reported by the gateway; the stored
	// payment's original amount stays authoritative.
	Amount   decimal.Decimal
	Currency string

	// OrderID and OrganizationID are best-effort extractions from gateway
	// metadata and may be absent.
	OrderID        *uuid.UUID
	OrganizationID *uuid.UUID

	// Metadata is an opaque passthrough of gateway-specific extras, kept for
	// audit only.
	Metadata map[string]any
}

// Adapter is the per-gateway capability set: verify the delivery, then turn
// it into an Event. Adapters are pure; secrets are injected at construction.
type Adapter interface {
	Gateway() enums.PaymentGateway
	VerifySignature(req Request) SignatureResult
	Normalize(req Request) (*Event, error)
}

// Registry selects an adapter by gateway tag. Adding a gateway means adding
// one adapter, never touching the reconciler.
type Registry struct {
	adapters map[enums.PaymentGateway]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byGateway := make(map[enums.PaymentGateway]Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "nil gateway adapter")
		}
		gateway := adapter.Gateway()
		if !gateway.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "adapter reports unknown gateway "+gateway.String())
		}
		if _, dup := byGateway[gateway]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "duplicate adapter for gateway "+gateway.String())
		}
		byGateway[gateway] = adapter
	}
	return &Registry{adapters: byGateway}, nil
}

// Adapter returns the adapter registered for the gateway, if any.
func (r *Registry) Adapter(gateway enums.PaymentGateway) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[gateway]
	return adapter, ok
}
