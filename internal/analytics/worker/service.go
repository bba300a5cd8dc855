package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/internal/analytics/router"
	"github.com/vendorisland/vendorisland-backend/internal/analytics/types"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/idempotency"
)

const consumerName = "analytics"

// Handler turns a domain event into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes domain events from the analytics subscription. Each event
// is claimed in Redis before it is handled so redeliveries never double-write
// a ledger fact. Events with no ledger fact are acknowledged and dropped.
type Service struct {
	subscription receiver
	handler      Handler
	claims       claimer
	logg         *logger.Logger
}

func NewService(subscription receiver, handler Handler, claims claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, claims: claims, logg: logg}, nil
}

// Run blocks until ctx is canceled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type verdict bool

const (
	ack  verdict = false
	nack verdict = true
)

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeEnvelope(msg)
	if err != nil {
		// Poison messages are dropped; redelivery would fail the same way.
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid analytics envelope")
		return ack
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
		"request_id":     envelope.CorrelationID,
	})
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return ack
	}

	outcome, err := s.claims.Claim(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return nack
	}
	switch outcome {
	case idempotency.AlreadyDone:
		s.logg.Info(logCtx, "event already processed")
		return ack
	case idempotency.InFlight:
		s.logg.Info(logCtx, "event claimed by another delivery")
		return nack
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil && !errors.Is(err, router.ErrUnsupportedEventType) {
		s.logg.Error(logCtx, "handler error", err)
		if relErr := s.claims.Release(logCtx, consumerName, eventID); relErr != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", relErr.Error()), "failed to release claim")
		}
		return nack
	} else if err != nil {
		s.logg.Debug(logCtx, "event has no ledger fact")
	}

	if err := s.claims.Complete(logCtx, consumerName, eventID); err != nil {
		// The rows are written with the event id as insert id, so a redelivery
		// after this failure is deduplicated by BigQuery instead.
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "failed to mark event processed")
	}
	s.logg.Info(logCtx, "analytics event handled")
	return ack
}

// decodeEnvelope prefers the event_id attribute set by the publisher (the
// outbox row id) and falls back to the id stored in the payload.
func decodeEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := attr("event_id")
	if eventID == "" {
		eventID = strings.TrimSpace(stored.EventID)
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}

	correlationID := attr("correlation_id")
	if correlationID == "" {
		correlationID = stored.CorrelationID
	}

	return &types.Envelope{
		EventID:       eventID,
		CorrelationID: correlationID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
