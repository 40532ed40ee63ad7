package webhooks

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// LedgerRepository manages the durable idempotency ledger. The insert against
// the (gateway, gateway_event_id) unique index is the single source of truth
// for "have I seen this exact delivery before"; there is no read-then-write
// window across concurrent deliveries.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	// InsertIfAbsent atomically records the entry. When a row for the same
	// (gateway, gateway_event_id) already exists, it is returned with
	// inserted=false instead of an error; a duplicate is the expected
	// outcome of gateway redelivery, not a failure.
	InsertIfAbsent(ctx context.Context, entry *models.WebhookEvent) (existing *models.WebhookEvent, inserted bool, err error)
	// MarkProcessed stamps processed_at once reconciliation side effects
	// completed. Entries are never deleted.
	MarkProcessed(ctx context.Context, gateway enums.PaymentGateway, gatewayEventID string) error
	Find(ctx context.Context, gateway enums.PaymentGateway, gatewayEventID string) (*models.WebhookEvent, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository builds a ledger repository bound to the provided DB.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) InsertIfAbsent(ctx context.Context, entry *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "gateway_event_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return entry, true, nil
	}

	existing, err := r.Find(ctx, entry.Gateway, entry.GatewayEventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ledgerRepository) MarkProcessed(ctx context.Context, gateway enums.PaymentGateway, gatewayEventID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("gateway = ? AND gateway_event_id = ?", gateway, gatewayEventID).
		Update("processed_at", now).Error
}

func (r *ledgerRepository) Find(ctx context.Context, gateway enums.PaymentGateway, gatewayEventID string) (*models.WebhookEvent, error) {
	var entry models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_event_id = ?", gateway, gatewayEventID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
