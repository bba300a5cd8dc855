// Package idempotency guards Pub/Sub consumers against redelivery. A consumer
// claims an event before handling it and completes the claim afterwards, so
// a crash mid-handle lets the claim expire instead of marking the event done.
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
	stateProcessing = "processing"
	stateDone       = "done"

	defaultClaimTTL = 2 * time.Minute
)

// Outcome is the result of a Claim.
type Outcome int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// AlreadyDone means a previous delivery finished the event; ack it.
	AlreadyDone
	// InFlight means another consumer holds the claim; nack for redelivery.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case AlreadyDone:
		return "already_done"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type store interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager tracks event claims per consumer under
// `vi:idempotency:evt:<consumer>:<event_id>`.
type Manager struct {
	store    store
	doneTTL  time.Duration
	claimTTL time.Duration
}

// NewManager builds a guard. doneTTL is how long completed events are
// remembered and should exceed the subscription's retention.
func NewManager(s store, doneTTL, claimTTL time.Duration) (*Manager, error) {
	switch {
	case s == nil:
		return nil, errors.New("idempotency store is required")
	case doneTTL < 0 || claimTTL < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	if claimTTL == 0 {
		claimTTL = defaultClaimTTL
	}
	return &Manager{store: s, doneTTL: doneTTL, claimTTL: claimTTL}, nil
}

// Claim tries to take ownership of eventID for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	ok, err := m.store.SetNX(ctx, key, stateProcessing, m.claimTTL)
	if err != nil {
		return 0, fmt.Errorf("claim event: %w", err)
	}
	if ok {
		return Claimed, nil
	}
	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The claim expired between SETNX and GET; let redelivery retry.
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read event claim: %w", err)
	case state == stateDone:
		return AlreadyDone, nil
	default:
		return InFlight, nil
	}
}

// Complete marks a claimed event as handled for the done TTL.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, stateDone, m.doneTTL); err != nil {
		return fmt.Errorf("complete event: %w", err)
	}
	return nil
}

// Release drops a claim after a failed handle so the next delivery can retry at once.
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
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
