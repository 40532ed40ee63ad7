package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/payments"
	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

type stubLedger struct {
	mu      sync.Mutex
	entries map[string]*models.WebhookEvent
}

func newStubLedger() *stubLedger {
	return &stubLedger{entries: map[string]*models.WebhookEvent{}}
}

func ledgerKey(gateway enums.PaymentGateway, eventID string) string {
	return gateway.String() + "|" + eventID
}

func (s *stubLedger) WithTx(tx *gorm.DB) LedgerRepository { return s }

func (s *stubLedger) InsertIfAbsent(ctx context.Context, entry *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey(entry.Gateway, entry.GatewayEventID)
	if existing, ok := s.entries[key]; ok {
		return existing, false, nil
	}
	entry.ID = uuid.New()
	s.entries[key] = entry
	return entry, true, nil
}

func (s *stubLedger) MarkProcessed(ctx context.Context, gateway enums.PaymentGateway, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[ledgerKey(gateway, eventID)]; ok {
		now := time.Now().UTC()
		entry.ProcessedAt = &now
	}
	return nil
}

func (s *stubLedger) Find(ctx context.Context, gateway enums.PaymentGateway, eventID string) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[ledgerKey(gateway, eventID)]; ok {
		return entry, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubPayments struct {
	mu      sync.Mutex
	payment *models.Payment
	updates int
}

func (s *stubPayments) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubPayments) Create(ctx context.Context, payment *models.Payment) error { return nil }

// FindByGatewayIntentID hands out a copy, the way a real repository scans a
// fresh row, so callers mutating the result never share memory.
func (s *stubPayments) FindByGatewayIntentID(ctx context.Context, gateway enums.PaymentGateway, intentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment != nil && s.payment.Gateway == gateway && s.payment.GatewayPaymentIntentID == intentID {
		found := *s.payment
		return &found, nil
	}
	return nil, nil
}

func (s *stubPayments) Update(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	saved := *payment
	s.payment = &saved
	return nil
}

type stubFulfillment struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (s *stubFulfillment) FulfillOrder(ctx context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, orderID)
	return nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, ledger *stubLedger, repo *stubPayments, fulfillment *stubFulfillment) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Ledger:            ledger,
		Payments:          repo,
		Fulfillment:       fulfillment,
		TransactionRunner: &stubTxRunner{},
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func pendingPayment(orderID *uuid.UUID) *models.Payment {
	return &models.Payment{
		ID:                     uuid.New(),
		OrganizationID:         uuid.New(),
		OrderID:                orderID,
		AmountCents:            125000,
		Currency:               "CLP",
		Status:                 enums.PaymentStatusPending,
		Gateway:                enums.PaymentGatewayNOWPayments,
		GatewayPaymentIntentID: "order-7781",
	}
}

func succeededEvent() *gateways.Event {
	return &gateways.Event{
		Gateway:                enums.PaymentGatewayNOWPayments,
		GatewayEventID:         "5524759814:finished",
		Type:                   "payment.finished",
		Status:                 enums.PaymentStatusSucceeded,
		GatewayTransactionID:   "5524759814",
		GatewayPaymentIntentID: "order-7781",
	}
}

func TestService_ProcessEventTransitionsAndFulfills(t *testing.T) {
	orderID := uuid.New()
	repo := &stubPayments{payment: pendingPayment(&orderID)}
	ledger := newStubLedger()
	fulfillment := &stubFulfillment{}
	svc := newTestService(t, ledger, repo, fulfillment)

	result, err := svc.ProcessEvent(context.Background(), succeededEvent(), []byte(`{"payment_status":"finished"}`))
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}
	if repo.payment.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("expected payment succeeded, got %s", repo.payment.Status)
	}
	if repo.payment.GatewayTransactionID == nil || *repo.payment.GatewayTransactionID != "5524759814" {
		t.Fatalf("expected transaction id captured")
	}
	if len(fulfillment.calls) != 1 || fulfillment.calls[0] != orderID {
		t.Fatalf("expected exactly one fulfillment call, got %v", fulfillment.calls)
	}

	entry, err := ledger.Find(context.Background(), enums.PaymentGatewayNOWPayments, "5524759814:finished")
	if err != nil {
		t.Fatalf("find ledger entry: %v", err)
	}
	if entry.ProcessedAt == nil {
		t.Fatalf("expected ledger entry stamped processed")
	}
}

func TestService_ProcessEventDuplicateIsNoOp(t *testing.T) {
	orderID := uuid.New()
	repo := &stubPayments{payment: pendingPayment(&orderID)}
	ledger := newStubLedger()
	fulfillment := &stubFulfillment{}
	svc := newTestService(t, ledger, repo, fulfillment)

	if _, err := svc.ProcessEvent(context.Background(), succeededEvent(), nil); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	updatesAfterFirst := repo.updates

	result, err := svc.ProcessEvent(context.Background(), succeededEvent(), nil)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}
	if repo.updates != updatesAfterFirst {
		t.Fatalf("expected no second mutation")
	}
	if len(fulfillment.calls) != 1 {
		t.Fatalf("expected fulfillment untouched by duplicate, got %d calls", len(fulfillment.calls))
	}
}

func TestService_ProcessEventConcurrentDuplicates(t *testing.T) {
	orderID := uuid.New()
	repo := &stubPayments{payment: pendingPayment(&orderID)}
	ledger := newStubLedger()
	fulfillment := &stubFulfillment{}
	svc := newTestService(t, ledger, repo, fulfillment)

	const deliveries = 8
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ProcessEvent(context.Background(), succeededEvent(), nil)
		}()
	}
	wg.Wait()

	if repo.payment.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("expected payment succeeded, got %s", repo.payment.Status)
	}
	// Redeliveries racing the winner before it stamps processed_at replay
	// through the idempotent fulfillment trigger, so the call count may
	// exceed one; what must hold is that every delivery converges on the
	// same terminal state without error.
	if len(fulfillment.calls) == 0 {
		t.Fatalf("expected fulfillment triggered")
	}
	for _, call := range fulfillment.calls {
		if call != orderID {
			t.Fatalf("unexpected order fulfilled: %s", call)
		}
	}
}

func TestService_ProcessEventStaleTransitionSkipped(t *testing.T) {
	orderID := uuid.New()
	payment := pendingPayment(&orderID)
	payment.Status = enums.PaymentStatusRefunded
	repo := &stubPayments{payment: payment}
	ledger := newStubLedger()
	fulfillment := &stubFulfillment{}
	svc := newTestService(t, ledger, repo, fulfillment)

	result, err := svc.ProcessEvent(context.Background(), succeededEvent(), nil)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
	if repo.payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected payment untouched, got %s", repo.payment.Status)
	}
	if repo.updates != 0 {
		t.Fatalf("expected no mutation")
	}

	entry, err := ledger.Find(context.Background(), enums.PaymentGatewayNOWPayments, "5524759814:finished")
	if err != nil {
		t.Fatalf("find ledger entry: %v", err)
	}
	if entry.ProcessedAt == nil {
		t.Fatalf("expected stale event stamped processed so redelivery stops")
	}
}

func TestService_ProcessEventOutOfOrderRefund(t *testing.T) {
	orderID := uuid.New()
	payment := pendingPayment(&orderID)
	payment.Status = enums.PaymentStatusSucceeded
	repo := &stubPayments{payment: payment}
	svc := newTestService(t, newStubLedger(), repo, &stubFulfillment{})

	event := succeededEvent()
	event.GatewayEventID = "5524759814:refunded"
	event.Type = "payment.refunded"
	event.Status = enums.PaymentStatusRefunded

	result, err := svc.ProcessEvent(context.Background(), event, nil)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}
	if repo.payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", repo.payment.Status)
	}
}

func TestService_ProcessEventUnknownPayment(t *testing.T) {
	repo := &stubPayments{}
	ledger := newStubLedger()
	svc := newTestService(t, ledger, repo, &stubFulfillment{})

	result, err := svc.ProcessEvent(context.Background(), succeededEvent(), nil)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != OutcomePaymentNotFound {
		t.Fatalf("expected payment_not_found, got %s", result.Outcome)
	}

	entry, err := ledger.Find(context.Background(), enums.PaymentGatewayNOWPayments, "5524759814:finished")
	if err != nil {
		t.Fatalf("find ledger entry: %v", err)
	}
	if entry.ProcessedAt == nil {
		t.Fatalf("expected orphan event stamped processed")
	}
}

func TestService_ProcessEventReplaysInterruptedDelivery(t *testing.T) {
	orderID := uuid.New()
	payment := pendingPayment(&orderID)
	payment.Status = enums.PaymentStatusSucceeded
	repo := &stubPayments{payment: payment}
	ledger := newStubLedger()
	fulfillment := &stubFulfillment{}
	svc := newTestService(t, ledger, repo, fulfillment)

	// A previous delivery recorded the entry and mutated the payment, then
	// crashed before fulfillment and the processed stamp.
	_, _, err := ledger.InsertIfAbsent(context.Background(), &models.WebhookEvent{
		Gateway:        enums.PaymentGatewayNOWPayments,
		GatewayEventID: "5524759814:finished",
		EventType:      "payment.finished",
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	result, err := svc.ProcessEvent(context.Background(), succeededEvent(), nil)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}
	if len(fulfillment.calls) != 1 {
		t.Fatalf("expected fulfillment replayed, got %d calls", len(fulfillment.calls))
	}
	if repo.updates != 0 {
		t.Fatalf("expected no second mutation on replay")
	}

	entry, err := ledger.Find(context.Background(), enums.PaymentGatewayNOWPayments, "5524759814:finished")
	if err != nil {
		t.Fatalf("find ledger entry: %v", err)
	}
	if entry.ProcessedAt == nil {
		t.Fatalf("expected replayed entry stamped processed")
	}
}

func TestService_ProcessEventRejectsEmptyEventID(t *testing.T) {
	svc := newTestService(t, newStubLedger(), &stubPayments{}, &stubFulfillment{})

	event := succeededEvent()
	event.GatewayEventID = ""
	if _, err := svc.ProcessEvent(context.Background(), event, nil); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}
