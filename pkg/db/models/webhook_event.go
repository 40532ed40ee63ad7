package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// WebhookEvent is the durable idempotency ledger: one row per gateway
// delivery ever accepted. The unique index on (gateway, gateway_event_id) is
// the race-resolution point for concurrent redeliveries; inserting against it
// is how a duplicate is detected. Rows are never deleted.
type WebhookEvent struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway        enums.PaymentGateway `gorm:"column:gateway;type:payment_gateway;not null;uniqueIndex:idx_webhook_events_gateway_event,priority:1"`
	GatewayEventID string               `gorm:"column:gateway_event_id;not null;uniqueIndex:idx_webhook_events_gateway_event,priority:2"`
	EventType      string               `gorm:"column:event_type;not null"`

	Payload  json.RawMessage `gorm:"column:payload;type:jsonb"`
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`

	// ProcessedAt is set only after reconciliation side effects completed. A
	// row without it marks a delivery interrupted mid-processing; redelivery
	// of that event is replayed instead of dropped.
	ProcessedAt *time.Time `gorm:"column:processed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
