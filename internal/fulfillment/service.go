// Package fulfillment marks orders paid when their payment succeeds. The
// rest of order fulfillment (stock, notifications, invoicing) lives outside
// this service and hangs off the order's paid transition.
package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
)

// Service marks orders paid. FulfillOrder is idempotent: an order that is
// already paid is left untouched, which is what makes webhook replay safe.
type Service interface {
	FulfillOrder(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewService wires a fulfillment service against the provided DB.
func NewService(db *gorm.DB, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db required")
	}
	return &service{db: db, logg: logg}, nil
}

func (s *service) FulfillOrder(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	// Conditional update so concurrent callers racing for the same order
	// resolve at the database: exactly one stamps paid_at, the rest no-op.
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid_at IS NULL", orderID).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": &now,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark order paid")
	}

	if res.RowsAffected == 0 {
		var order models.Order
		err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if s.logg != nil {
			s.logg.Info(ctx, "order already paid, fulfillment skipped: "+orderID.String())
		}
		return nil
	}

	if s.logg != nil {
		s.logg.Info(ctx, "order marked paid: "+orderID.String())
	}
	return nil
}
