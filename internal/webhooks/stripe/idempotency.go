package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leagueledger/backend/pkg/redis"
)

// IdempotencyGuard deduplicates webhook deliveries by claiming a scoped
// Redis marker per event ID. Markers expire after the TTL, so the window
// only needs to outlive the provider's retry schedule.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark claims the marker for eventID. It reports true when the
// event was already claimed by an earlier delivery.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.markerKey(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !claimed, nil
}

// Delete releases the marker so a retried delivery can be processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.markerKey(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) markerKey(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
