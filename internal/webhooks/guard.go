package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Stefan-migo/opticore-backend/pkg/enums"
	"github.com/Stefan-migo/opticore-backend/pkg/redis"
)

// IdempotencyGuard is the redis fast path in front of the durable ledger: a
// SetNX per (gateway, event id) short-circuits the common redelivery burst
// without a database round trip. It is advisory only; the ledger stays
// authoritative, so losing redis state never double-processes an event.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when the event was already marked, and otherwise
// marks it for the configured TTL.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, gateway enums.PaymentGateway, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey("webhook:"+gateway.String(), eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed delivery can be retried promptly.
func (g *IdempotencyGuard) Delete(ctx context.Context, gateway enums.PaymentGateway, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey("webhook:"+gateway.String(), eventID)
	return g.store.Del(ctx, key)
}
