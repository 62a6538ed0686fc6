// Package idempotency guards pub/sub consumers against redelivered events.
//
// Each (consumer, event) pair moves through two markers in redis:
// "processing" with a short lease while the handler runs, then "done" for
// the retention TTL. A handler that crashes mid-flight leaves only the lease,
// so the event is retried once the lease lapses.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	// DefaultLease bounds how long an in-flight marker blocks redelivery.
	DefaultLease = 2 * time.Minute
)

// ErrInFlight means another delivery of the same event is being handled.
var ErrInFlight = errors.New("event is being processed by another delivery")

// Store is the redis surface the manager needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keys markers as op:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := DefaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Begin claims the event for this delivery. It returns false with a nil error
// when the event was already handled, and ErrInFlight when another delivery
// holds the lease.
func (m *Manager) Begin(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil || claimed {
		return claimed, err
	}

	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// lease lapsed between SETNX and GET
		return m.store.SetNX(ctx, key, markerProcessing, m.lease)
	case err != nil:
		return false, err
	case state == markerDone:
		return false, nil
	default:
		return false, ErrInFlight
	}
}

// Complete records the event as handled for the retention TTL.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release drops the lease so a redelivery can retry the handler.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", consumer), eventID.String()), nil
}
