package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySweepJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("low stock query: %w", context.DeadlineExceeded),
			want: SweepJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SweepJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SweepJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SweepJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SweepJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySweepJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySweepErrorType(t *testing.T) {
	if got := ClassifySweepErrorType(gorm.ErrInvalidTransaction); got != SweepErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
	if got := ClassifySweepErrorType(gorm.ErrRecordNotFound); got != SweepErrorTypeBusinessRule {
		t.Fatalf("expected business_rule, got %q", got)
	}
	if !IsSweepErrorRetryable(context.Canceled) {
		t.Fatalf("expected canceled to be retryable")
	}
	if IsSweepErrorRetryable(errors.New("bad config")) {
		t.Fatalf("expected plain error to be terminal")
	}
}

func TestSweepGaugesAndCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{
		ServiceName: "stockledger",
		Environment: "test",
	})

	metrics.AddBatchProcessed("low_stock_sweep", "items", 3)
	metrics.SetLowStockItems("manual", 3)
	metrics.SetLowStockItems("manual", 1)
	metrics.IncBatchDeferred("low_stock_sweep", SweepDeferredReasonLockHeld)

	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("low_stock_sweep", "items")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.lowStockItems.WithLabelValues("manual")); got != 1 {
		t.Fatalf("expected gauge to hold latest value 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.batchDeferred.WithLabelValues("low_stock_sweep", SweepDeferredReasonLockHeld)); got != 1 {
		t.Fatalf("expected deferred count 1, got %v", got)
	}
}
