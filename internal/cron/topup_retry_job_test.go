package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

type fakeTopupOrders struct {
	vendors []uuid.UUID
	listErr error
	failFor map[uuid.UUID]error
	retried []uuid.UUID
}

func (f *fakeTopupOrders) ListBlockedVendors(context.Context) ([]uuid.UUID, error) {
	return f.vendors, f.listErr
}

func (f *fakeTopupOrders) RetryTopup(_ context.Context, vendorID uuid.UUID) (*orders.TopupRetryResult, error) {
	f.retried = append(f.retried, vendorID)
	if err := f.failFor[vendorID]; err != nil {
		return nil, err
	}
	return &orders.TopupRetryResult{VendorID: vendorID, Attempted: 1, Reserved: []uuid.UUID{uuid.New()}}, nil
}

func newTopupJob(t *testing.T, fake *fakeTopupOrders) Job {
	t.Helper()
	job, err := NewTopupRetryJob(TopupRetryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: fake,
	})
	if err != nil {
		t.Fatalf("NewTopupRetryJob: %v", err)
	}
	return job
}

func TestTopupRetryJobVisitsEveryVendor(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	fake := &fakeTopupOrders{
		vendors: []uuid.UUID{a, b, c},
		failFor: map[uuid.UUID]error{b: errors.New("lock timeout")},
	}
	err := newTopupJob(t, fake).Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 vendor failure, got %d", got)
	}
	if len(fake.retried) != 3 {
		t.Fatalf("expected 3 vendors retried, got %d", len(fake.retried))
	}
}

func TestTopupRetryJobNoBlockedVendors(t *testing.T) {
	fake := &fakeTopupOrders{}
	if err := newTopupJob(t, fake).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.retried) != 0 {
		t.Fatalf("expected no retries, got %d", len(fake.retried))
	}
}

func TestTopupRetryJobListFailure(t *testing.T) {
	fake := &fakeTopupOrders{listErr: errors.New("db down")}
	if err := newTopupJob(t, fake).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestTopupRetryJobRequiresOrders(t *testing.T) {
	if _, err := NewTopupRetryJob(TopupRetryJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})}); err == nil {
		t.Fatal("expected constructor error")
	}
}
