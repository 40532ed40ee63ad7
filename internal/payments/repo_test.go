package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  order_id TEXT,
  user_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'CLP',
  status TEXT NOT NULL DEFAULT 'pending',
  gateway TEXT NOT NULL,
  gateway_payment_intent_id TEXT,
  gateway_transaction_id TEXT,
  gateway_charge_id TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_intent ON payments (gateway, gateway_payment_intent_id);
`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedPayment(t *testing.T, repo Repository, gateway enums.PaymentGateway, intentID string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:                     uuid.New(),
		OrganizationID:         uuid.New(),
		AmountCents:            48000,
		Currency:               "CLP",
		Status:                 enums.PaymentStatusPending,
		Gateway:                gateway,
		GatewayPaymentIntentID: intentID,
	}
	require.NoError(t, repo.Create(context.Background(), payment))
	return payment
}

func TestRepository_FindByGatewayIntentID(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	seeded := seedPayment(t, repo, enums.PaymentGatewayFlow, "tok-abc123")

	found, err := repo.FindByGatewayIntentID(context.Background(), enums.PaymentGatewayFlow, "tok-abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, seeded.ID, found.ID)
	assert.Equal(t, enums.PaymentStatusPending, found.Status)
}

func TestRepository_FindByGatewayIntentIDMissIsNotAnError(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))

	found, err := repo.FindByGatewayIntentID(context.Background(), enums.PaymentGatewayPayPal, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_FindByGatewayIntentIDScopedToGateway(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	seedPayment(t, repo, enums.PaymentGatewayFlow, "order-9")

	found, err := repo.FindByGatewayIntentID(context.Background(), enums.PaymentGatewayNOWPayments, "order-9")
	require.NoError(t, err)
	assert.Nil(t, found, "intent ids only join within their own gateway")
}

func TestRepository_FindByGatewayIntentIDEmptyKey(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))

	found, err := repo.FindByGatewayIntentID(context.Background(), enums.PaymentGatewayFlow, "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_CreateDuplicateIntentRejected(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	seedPayment(t, repo, enums.PaymentGatewayFlow, "tok-dup")

	dup := &models.Payment{
		ID:                     uuid.New(),
		OrganizationID:         uuid.New(),
		AmountCents:            100,
		Currency:               "CLP",
		Status:                 enums.PaymentStatusPending,
		Gateway:                enums.PaymentGatewayFlow,
		GatewayPaymentIntentID: "tok-dup",
	}
	assert.Error(t, repo.Create(context.Background(), dup))
}

func TestRepository_Update(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	payment := seedPayment(t, repo, enums.PaymentGatewayMercadoPago, "110864587511")

	txnID := "charge-9981"
	payment.Status = enums.PaymentStatusSucceeded
	payment.GatewayTransactionID = &txnID
	require.NoError(t, repo.Update(context.Background(), payment))

	found, err := repo.FindByGatewayIntentID(context.Background(), enums.PaymentGatewayMercadoPago, "110864587511")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.PaymentStatusSucceeded, found.Status)
	require.NotNil(t, found.GatewayTransactionID)
	assert.Equal(t, "charge-9981", *found.GatewayTransactionID)
}
