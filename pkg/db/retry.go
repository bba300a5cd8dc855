package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

// RetryPolicy bounds retries of transient storage failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// policy is exhausted. fn must be safe to repeat: each attempt is expected to
// run inside its own transaction.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) || pkgerrors.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
