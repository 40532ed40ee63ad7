// Package webhooks reconciles normalized gateway events onto internally
// tracked payments: exactly one status mutation and at most one fulfillment
// hand-off per logical event, under at-least-once delivery.
package webhooks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/internal/payments"
	"github.com/Stefan-migo/opticore-backend/pkg/db/models"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
)

// Outcome summarizes how one delivery was resolved.
type Outcome string

const (
	// OutcomeProcessed: the payment transitioned (or a crash-interrupted
	// delivery finished its side effects).
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate: the ledger already holds a processed entry for this
	// delivery; nothing ran.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomePaymentNotFound: no payment matches the event's join key.
	OutcomePaymentNotFound Outcome = "payment_not_found"
	// OutcomeSkipped: the requested transition is stale or illegal; the
	// payment was left untouched.
	OutcomeSkipped Outcome = "skipped"
)

// Result reports the resolution of one delivery.
type Result struct {
	Outcome   Outcome
	PaymentID uuid.UUID
}

type fulfillmentTrigger interface {
	FulfillOrder(ctx context.Context, orderID uuid.UUID) error
}

type duplicateGuard interface {
	CheckAndMark(ctx context.Context, gateway enums.PaymentGateway, eventID string) (bool, error)
	Delete(ctx context.Context, gateway enums.PaymentGateway, eventID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Ledger            LedgerRepository
	Payments          payments.Repository
	Fulfillment       fulfillmentTrigger
	Guard             duplicateGuard
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type Service struct {
	ledger      LedgerRepository
	payments    payments.Repository
	fulfillment fulfillmentTrigger
	guard       duplicateGuard
	txRunner    txRunner
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		ledger:      params.Ledger,
		payments:    params.Payments,
		fulfillment: params.Fulfillment,
		guard:       params.Guard,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

// ProcessEvent drives one normalized delivery through the reconciliation
// sequence: ledger insert-if-absent, payment lookup, transition guard,
// mutation, ledger mark-processed, conditional fulfillment. rawPayload is the
// delivery's original body, archived on the ledger entry for audit.
func (s *Service) ProcessEvent(ctx context.Context, event *gateways.Event, rawPayload []byte) (Result, error) {
	if event == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	if event.GatewayEventID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "gateway event id required")
	}

	if s.logg != nil {
		ctx = s.logg.WithGateway(ctx, event.Gateway.String())
		ctx = s.logg.WithEventID(ctx, event.GatewayEventID)
	}

	// Fast path: the redis mark intercepts redelivery bursts. It is
	// advisory; a guard failure or miss falls through to the ledger.
	if s.guard != nil {
		marked, err := s.guard.CheckAndMark(ctx, event.Gateway, event.GatewayEventID)
		switch {
		case err != nil:
			s.warn(ctx, "idempotency guard unavailable, deferring to ledger")
		case marked:
			entry, findErr := s.ledger.Find(ctx, event.Gateway, event.GatewayEventID)
			if findErr == nil && entry.ProcessedAt != nil {
				return Result{Outcome: OutcomeDuplicate}, nil
			}
			// Not in the ledger or not yet processed: a crash interrupted a
			// previous attempt. Continue and let the ledger decide.
		}
	}

	entry := &models.WebhookEvent{
		Gateway:        event.Gateway,
		GatewayEventID: event.GatewayEventID,
		EventType:      event.Type,
		Payload:        json.RawMessage(rawPayload),
		Metadata:       marshalMetadata(event.Metadata),
	}
	existing, inserted, err := s.ledger.InsertIfAbsent(ctx, entry)
	if err != nil {
		s.releaseGuard(ctx, event)
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if !inserted && existing.ProcessedAt != nil {
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	// !inserted with a nil ProcessedAt means a previous delivery crashed
	// between recording and finishing; replay its side effects.
	replay := !inserted

	payment, err := s.payments.FindByGatewayIntentID(ctx, event.Gateway, event.GatewayPaymentIntentID)
	if err != nil {
		s.releaseGuard(ctx, event)
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment")
	}
	if payment == nil {
		s.warn(ctx, "no internal payment matches gateway intent id "+event.GatewayPaymentIntentID)
		s.markProcessed(ctx, event)
		return Result{Outcome: OutcomePaymentNotFound}, nil
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"payment_id":  payment.ID.String(),
			"from_status": payment.Status.String(),
			"to_status":   event.Status.String(),
		})
	}

	switch {
	case payment.Status.CanTransitionTo(event.Status):
		if err := s.applyTransition(ctx, payment, event); err != nil {
			s.releaseGuard(ctx, event)
			return Result{}, err
		}
		s.triggerFulfillment(ctx, payment, event.Status)
		s.markProcessed(ctx, event)
		s.info(ctx, "payment reconciled from webhook event "+event.Type)
		return Result{Outcome: OutcomeProcessed, PaymentID: payment.ID}, nil

	case replay && payment.Status == event.Status:
		// The mutation landed before the crash but fulfillment may not
		// have run. The fulfillment trigger is a no-op on paid orders.
		s.triggerFulfillment(ctx, payment, event.Status)
		s.markProcessed(ctx, event)
		s.info(ctx, "replayed interrupted webhook event "+event.Type)
		return Result{Outcome: OutcomeProcessed, PaymentID: payment.ID}, nil

	default:
		s.warn(ctx, "stale webhook event ignored: illegal status transition")
		s.markProcessed(ctx, event)
		return Result{Outcome: OutcomeSkipped, PaymentID: payment.ID}, nil
	}
}

func (s *Service) applyTransition(ctx context.Context, payment *models.Payment, event *gateways.Event) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		payment.Status = event.Status
		if event.GatewayTransactionID != "" {
			txnID := event.GatewayTransactionID
			payment.GatewayTransactionID = &txnID
		}
		payment.Metadata = mergeMetadata(payment.Metadata, event.Metadata)
		if err := repo.Update(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		return nil
	})
}

// triggerFulfillment hands a succeeded payment's order off for fulfillment.
// Failure is logged, never propagated: the gateway still gets its success
// acknowledgment and the entry is stamped processed, leaving remediation to
// the ops alerting on the error log.
func (s *Service) triggerFulfillment(ctx context.Context, payment *models.Payment, status enums.PaymentStatus) {
	if status != enums.PaymentStatusSucceeded || payment.OrderID == nil || s.fulfillment == nil {
		return
	}
	if err := s.fulfillment.FulfillOrder(ctx, *payment.OrderID); err != nil {
		s.error(ctx, "order fulfillment failed for order "+payment.OrderID.String(), err)
	}
}

func (s *Service) markProcessed(ctx context.Context, event *gateways.Event) {
	if err := s.ledger.MarkProcessed(ctx, event.Gateway, event.GatewayEventID); err != nil {
		// Redelivery of this event replays through the transition guard, so
		// a failed stamp loses nothing.
		s.error(ctx, "failed to mark webhook event processed", err)
	}
}

func (s *Service) releaseGuard(ctx context.Context, event *gateways.Event) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Delete(ctx, event.Gateway, event.GatewayEventID); err != nil {
		s.warn(ctx, "failed to release idempotency guard mark")
	}
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) error(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func marshalMetadata(metadata map[string]any) json.RawMessage {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return raw
}

// mergeMetadata overlays the event's opaque extras onto the payment's
// existing metadata bag. Both sides are audit-only; on any decode trouble the
// event's view wins rather than failing the delivery.
func mergeMetadata(existing json.RawMessage, extra map[string]any) json.RawMessage {
	if len(extra) == 0 {
		return existing
	}
	merged := make(map[string]any)
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return raw
}
