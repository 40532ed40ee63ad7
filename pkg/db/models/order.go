package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// Order carries the minimal surface the fulfillment trigger needs. The rest
// of order management lives outside this service.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID         `gorm:"column:organization_id;type:uuid;not null;index"`
	OrderNumber    string            `gorm:"column:order_number;not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_payment'"`
	TotalCents     int64             `gorm:"column:total_cents;not null"`
	Currency       string            `gorm:"column:currency;not null;default:'CLP'"`
	PaidAt         *time.Time        `gorm:"column:paid_at"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
