package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// Payment is the internal record of a monetary transaction. Rows are created
// when checkout initiates a payment intent and only the webhook reconciler
// mutates them afterwards; rows are never deleted.
type Payment struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID  `gorm:"column:organization_id;type:uuid;not null;index"`
	OrderID        *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid"`

	AmountCents int64  `gorm:"column:amount_cents;not null"`
	Currency    string `gorm:"column:currency;not null;default:'CLP'"`

	Status  enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Gateway enums.PaymentGateway `gorm:"column:gateway;type:payment_gateway;not null;uniqueIndex:idx_payments_gateway_intent,priority:1"`

	// GatewayPaymentIntentID is the join key from webhook deliveries back to
	// this row: the gateway's order/invoice/token identifier.
	GatewayPaymentIntentID string  `gorm:"column:gateway_payment_intent_id;uniqueIndex:idx_payments_gateway_intent,priority:2"`
	GatewayTransactionID   *string `gorm:"column:gateway_transaction_id"`
	GatewayChargeID        *string `gorm:"column:gateway_charge_id"`

	// Metadata is an opaque gateway-specific bag kept for audit and support.
	// Core logic never branches on its contents.
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
