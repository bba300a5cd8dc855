package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

type fakeOutboxRetentionRepo struct {
	cutoffs []time.Time
	err     error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 7, f.err
}

type fakeDeadLetters struct {
	cutoff   time.Time
	backlog  int64
	countErr error
}

func (f *fakeDeadLetters) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func (f *fakeDeadLetters) Count(context.Context) (int64, error) {
	return f.backlog, f.countErr
}

func retentionJobAt(t *testing.T, now time.Time, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	job, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	concrete := job.(*outboxRetentionJob)
	concrete.now = func() time.Time { return now }
	return concrete
}

func TestOutboxRetentionCutoffs(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		retention time.Duration
		want      time.Time
	}{
		{"default window", 0, now.Add(-defaultOutboxRetention)},
		{"configured window", 48 * time.Hour, time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		repo := &fakeOutboxRetentionRepo{}
		job := retentionJobAt(t, now, OutboxRetentionJobParams{Repository: repo, Retention: tt.retention})
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%s: Run: %v", tt.name, err)
		}
		if len(repo.cutoffs) != 1 || !repo.cutoffs[0].Equal(tt.want) {
			t.Fatalf("%s: expected one cutoff at %s, got %v", tt.name, tt.want, repo.cutoffs)
		}
	}
}

func TestOutboxRetentionPrunesDeadLetters(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	dlq := &fakeDeadLetters{backlog: 3}
	job := retentionJobAt(t, now, OutboxRetentionJobParams{
		Repository:   &fakeOutboxRetentionRepo{},
		DeadLetters:  dlq,
		DLQRetention: 24 * time.Hour,
	})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !dlq.cutoff.Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, dlq.cutoff)
	}
}

func TestOutboxRetentionPropagatesErrors(t *testing.T) {
	now := time.Now()
	failing := retentionJobAt(t, now, OutboxRetentionJobParams{Repository: &fakeOutboxRetentionRepo{err: errors.New("boom")}})
	if err := failing.Run(context.Background()); err == nil {
		t.Fatal("expected outbox delete error")
	}

	countFails := retentionJobAt(t, now, OutboxRetentionJobParams{
		Repository:  &fakeOutboxRetentionRepo{},
		DeadLetters: &fakeDeadLetters{countErr: errors.New("down")},
	})
	if err := countFails.Run(context.Background()); err == nil {
		t.Fatal("expected dlq count error")
	}
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Repository: &fakeOutboxRetentionRepo{}}); err == nil {
		t.Fatal("expected logger to be required")
	}
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{Output: io.Discard})}); err == nil {
		t.Fatal("expected repository to be required")
	}
}
