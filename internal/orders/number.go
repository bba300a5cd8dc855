package orders

import (
	"context"
	"fmt"
	"time"
)

// NumberGenerator issues human-readable order numbers.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

type sequenceCounter interface {
	NextOrderSequence(ctx context.Context, day time.Time) (int64, error)
}

// DailyNumberGenerator formats VI-YYYYMMDD-NNNNNN from a per-day counter.
type DailyNumberGenerator struct {
	counter sequenceCounter
	now     func() time.Time
}

func NewDailyNumberGenerator(counter sequenceCounter) (*DailyNumberGenerator, error) {
	if counter == nil {
		return nil, fmt.Errorf("order sequence counter required")
	}
	return &DailyNumberGenerator{counter: counter, now: time.Now}, nil
}

func (g *DailyNumberGenerator) Next(ctx context.Context) (string, error) {
	day := g.now().UTC()
	seq, err := g.counter.NextOrderSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("next order sequence: %w", err)
	}
	return fmt.Sprintf("VI-%s-%06d", day.Format("20060102"), seq), nil
}
