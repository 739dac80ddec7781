package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/learnpay-backend/pkg/redis"
)

// DefaultEventRetention covers Stripe's three-day retry schedule with margin.
const DefaultEventRetention = 7 * 24 * time.Hour

// ProcessedEvents records provider event ids in Redis so replays and
// concurrent deliveries of the same event are applied once.
type ProcessedEvents struct {
	store     redis.IdempotencyStore
	retention time.Duration
	scope     string
}

// NewProcessedEvents keeps markers for retention (DefaultEventRetention when zero)
// under the given key scope.
func NewProcessedEvents(store redis.IdempotencyStore, retention time.Duration, scope string) (*ProcessedEvents, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case retention < 0:
		return nil, errors.New("retention must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	if retention == 0 {
		retention = DefaultEventRetention
	}
	return &ProcessedEvents{store: store, retention: retention, scope: scope}, nil
}

// Claim returns true when the caller is the first to see eventID and should
// apply it. A false result means another delivery already claimed it.
func (p *ProcessedEvents) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := p.store.SetNX(ctx, p.store.IdempotencyKey(p.scope, eventID), time.Now().UTC().Format(time.RFC3339), p.retention)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Forget drops the claim so a later delivery of eventID is applied again.
func (p *ProcessedEvents) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := p.store.Del(ctx, p.store.IdempotencyKey(p.scope, eventID)); err != nil {
		return fmt.Errorf("forget event %s: %w", eventID, err)
	}
	return nil
}
