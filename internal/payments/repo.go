package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Stefan-migo/opticore-backend/pkg/db"
	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// Repository manages persistence for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	// FindByGatewayIntentID looks a payment up by the (gateway, intent id)
	// join key. A miss returns (nil, nil): the payment may have been created
	// outside this request's visibility, so absence is recoverable, not an
	// error.
	FindByGatewayIntentID(ctx context.Context, gateway enums.PaymentGateway, intentID string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if db.IsUniqueViolation(err, "idx_payments_gateway_intent") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already exists for gateway intent")
	}
	return err
}

func (r *repository) FindByGatewayIntentID(ctx context.Context, gateway enums.PaymentGateway, intentID string) (*models.Payment, error) {
	if intentID == "" {
		return nil, nil
	}
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_payment_intent_id = ?", gateway, intentID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}
