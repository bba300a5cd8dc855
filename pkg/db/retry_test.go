package db

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := pkgerrors.New(pkgerrors.CodeInvariant, "double release")
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection refused"), "append entry")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || err.Error() != "database is locked" {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}
