package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
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

func TestDecodeEnvelopePrefersAttributeEventID(t *testing.T) {
	rowID := uuid.NewString()
	payload := outbox.PayloadEnvelope{
		EventID:       "payload-id",
		CorrelationID: "payload-corr",
		OccurredAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:          json.RawMessage(`{"order_id":"ord-1"}`),
	}
	msg := buildMessage(payload, map[string]string{
		"correlation_id": "req-7",
		"event_id":       rowID,
		"event_type":     "order_settled",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})

	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != enums.EventOrderSettled || env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected types %v/%v", env.EventType, env.AggregateType)
	}
	if env.EventID != rowID || env.CorrelationID != "req-7" {
		t.Fatalf("expected attribute ids, got %s/%s", env.EventID, env.CorrelationID)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
}

func TestDecodeEnvelopeFallsBackToPayloadIDAndCreatedAt(t *testing.T) {
	id := uuid.NewString()
	msg := buildMessage(outbox.PayloadEnvelope{EventID: id, CorrelationID: "req-9", Data: json.RawMessage(`{}`)}, map[string]string{
		"event_type":     "ledger_entry_appended",
		"aggregate_type": "wallet",
		"aggregate_id":   "w-1",
		"created_at":     "2025-04-02T10:00:00Z",
	})
	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != id || env.CorrelationID != "req-9" || env.OccurredAt.Day() != 2 {
		t.Fatalf("unexpected fallback values %+v", env)
	}
}

func TestDecodeEnvelopeRejectsUnknownEventType(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: json.RawMessage(`{}`)}, map[string]string{
		"event_type":     "coupon_redeemed",
		"aggregate_type": "order",
		"aggregate_id":   "abc",
	})
	if _, err := decodeEnvelope(msg); err == nil {
		t.Fatal("expected unknown event type error")
	}
}

func TestProcessCompletesHandledEvent(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, claims)

	if svc.process(context.Background(), buildAnalyticsMessage()) != ack {
		t.Fatal("expected ack")
	}
	if !handler.called || len(claims.completed) != 1 || len(claims.released) != 0 {
		t.Fatalf("unexpected claim calls %+v", claims)
	}
}

func TestProcessAlreadyDoneSkipsHandler(t *testing.T) {
	claims := &stubClaims{outcome: idempotency.AlreadyDone}
	handler := &stubHandler{}
	svc := newTestService(t, handler, claims)

	if svc.process(context.Background(), buildAnalyticsMessage()) != ack {
		t.Fatal("expected ack")
	}
	if handler.called {
		t.Fatal("handler should not run for completed events")
	}
}

func TestProcessInFlightNacks(t *testing.T) {
	claims := &stubClaims{outcome: idempotency.InFlight}
	handler := &stubHandler{}
	svc := newTestService(t, handler, claims)

	if svc.process(context.Background(), buildAnalyticsMessage()) != nack {
		t.Fatal("expected nack while another delivery holds the claim")
	}
	if handler.called {
		t.Fatal("handler should not run")
	}
}

func TestProcessHandlerErrorReleasesClaim(t *testing.T) {
	claims := &stubClaims{}
	svc := newTestService(t, &stubHandler{err: errors.New("bigquery 503")}, claims)

	if svc.process(context.Background(), buildAnalyticsMessage()) != nack {
		t.Fatal("expected nack on handler error")
	}
	if len(claims.released) != 1 || len(claims.completed) != 0 {
		t.Fatalf("expected release only, got %+v", claims)
	}
}

func TestProcessUnsupportedEventCompletes(t *testing.T) {
	claims := &stubClaims{}
	svc := newTestService(t, &stubHandler{err: router.ErrUnsupportedEventType}, claims)

	if svc.process(context.Background(), buildAnalyticsMessage()) != ack {
		t.Fatal("unsupported event should ack")
	}
	if len(claims.completed) != 1 {
		t.Fatalf("unsupported events should still be marked done")
	}
}

func TestProcessInvalidEnvelopeAcksWithoutClaim(t *testing.T) {
	claims := &stubClaims{}
	svc := newTestService(t, &stubHandler{}, claims)

	if svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}) != ack {
		t.Fatal("invalid envelope should ack")
	}
	if len(claims.claimed) != 0 {
		t.Fatal("claims should not be touched")
	}
}

func TestProcessClaimFailureNacks(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(t, handler, &stubClaims{claimErr: errors.New("redis down")})

	if svc.process(context.Background(), buildAnalyticsMessage()) != nack {
		t.Fatal("expected nack when the claim store is unavailable")
	}
	if handler.called {
		t.Fatal("handler should not run without a claim")
	}
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
	if _, err := NewService(nil, &stubHandler{}, &stubClaims{}, logg); err == nil {
		t.Fatal("expected subscription error")
	}
	if _, err := NewService(stubReceiver{}, nil, &stubClaims{}, logg); err == nil {
		t.Fatal("expected handler error")
	}
	if _, err := NewService(stubReceiver{}, &stubHandler{}, &stubClaims{}, logg); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func buildAnalyticsMessage() *gcppubsub.Message {
	return buildMessage(outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"foo":"bar"}`),
	}, map[string]string{
		"event_type":     "order_settled",
		"aggregate_type": "order",
		"aggregate_id":   "abc-123",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func newTestService(t *testing.T, handler Handler, claims *stubClaims) *Service {
	t.Helper()
	svc, err := NewService(stubReceiver{}, handler, claims, logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type stubReceiver struct{}

func (stubReceiver) Receive(context.Context, func(context.Context, *gcppubsub.Message)) error {
	return nil
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubClaims struct {
	outcome   idempotency.Outcome
	claimErr  error
	claimed   []uuid.UUID
	completed []uuid.UUID
	released  []uuid.UUID
}

func (s *stubClaims) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error) {
	s.claimed = append(s.claimed, eventID)
	return s.outcome, s.claimErr
}

func (s *stubClaims) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.completed = append(s.completed, eventID)
	return nil
}

func (s *stubClaims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.released = append(s.released, eventID)
	return nil
}
