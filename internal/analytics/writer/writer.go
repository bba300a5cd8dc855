// Package writer streams ledger facts into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vendorisland/vendorisland-backend/internal/analytics/types"
	pkgbigquery "github.com/vendorisland/vendorisland-backend/pkg/bigquery"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

type Config struct {
	LedgerFactTable string
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// LedgerFactWriter inserts one row per event. The insert is synchronous so
// the consumer only acks once BigQuery accepted the row; the event ID is the
// insert ID, which collapses redeliveries server side.
type LedgerFactWriter struct {
	client  tableInserter
	table   string
	backoff func() retry.Backoff
}

func New(client *pkgbigquery.Client, cfg Config) (*LedgerFactWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.LedgerFactTable)
	if table == "" {
		return nil, errors.New("ledger fact table is required")
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	ceiling := cfg.MaxBackoff
	if ceiling < base {
		ceiling = max(base, defaultMaxBackoff)
	}

	return &LedgerFactWriter{
		client: client,
		table:  table,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(base)
			b = retry.WithCappedDuration(ceiling, b)
			return retry.WithMaxRetries(uint64(attempts-1), b)
		},
	}, nil
}

func (w *LedgerFactWriter) InsertLedgerFact(ctx context.Context, row types.LedgerFactRow) error {
	rows := []any{&cbigquery.StructSaver{Struct: &row, InsertID: row.EventID}}
	err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s row %s: %w", w.table, row.EventID, err)
	}
	return nil
}

// isRetryable reports whether every failure inside err is transient. A
// partial insert with one permanent row error is not retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		multi    cbigquery.MultiError
		putMulti cbigquery.PutMultiError
		rowErr   *cbigquery.RowInsertionError
		apiErr   *googleapi.Error
		grpcErr  interface{ GRPCStatus() *status.Status }
	)
	switch {
	case errors.As(err, &putMulti):
		if len(putMulti) == 0 {
			return false
		}
		for i := range putMulti {
			if !allRetryable(putMulti[i].Errors) {
				return false
			}
		}
		return true
	case errors.As(err, &rowErr):
		return allRetryable(rowErr.Errors)
	case errors.As(err, &multi):
		return allRetryable(multi)
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	case errors.As(err, &grpcErr):
		switch grpcErr.GRPCStatus().Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
		return false
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !isRetryable(e) {
			return false
		}
	}
	return true
}
