package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/clock"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type reconcilerFunc func(ctx context.Context) ([]changelogdomain.Discrepancy, error)

func (f reconcilerFunc) Reconcile(ctx context.Context) ([]changelogdomain.Discrepancy, error) {
	return f(ctx)
}

func newTestScheduler(t *testing.T, cfg Config, sweeper *Sweeper, reconciler Reconciler, log *zap.Logger) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:        log,
		Config:     cfg,
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Sweeper:    sweeper,
		Reconciler: reconciler,
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnceRunsSweepAndReconcile(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	source := &mockSource{}
	source.On("LowStockItems", mock.Anything).Return(lowItems(3), nil).Once()
	notifier := &mockNotifier{}
	notifier.On("NotifyLowStockBatch", mock.Anything, mock.Anything).Return(nil).Once()

	logged := 7
	reconciler := reconcilerFunc(func(ctx context.Context) ([]changelogdomain.Discrepancy, error) {
		return []changelogdomain.Discrepancy{{ItemID: 1, SKU: "A", Kind: changelogdomain.DiscrepancyQuantityMismatch, Quantity: 5, LoggedQuantity: &logged}}, nil
	})

	core, logs := observer.New(zap.InfoLevel)
	sched := newTestScheduler(t, Config{}, newTestSweeper(source, notifier, nil), reconciler, zap.New(core))

	require.NoError(t, sched.RunOnce(context.Background()))

	notifier.AssertNumberOfCalls(t, "NotifyLowStockBatch", 1)
	assert.Equal(t, 1.0, metricValue(t, registry, "stockledger_sweep_job_runs_total", map[string]string{"job": JobLowStockSweep}))
	assert.Equal(t, 1.0, metricValue(t, registry, "stockledger_sweep_job_runs_total", map[string]string{"job": JobChangelogReconcile}))
	assert.Equal(t, 1.0, metricValue(t, registry, "stockledger_reconcile_discrepancies", nil))

	finished := logs.FilterMessage("sweep.job.finish").All()
	require.Len(t, finished, 2)
	for _, entry := range finished {
		fields := entry.ContextMap()
		assert.NotEmpty(t, fields["run_id"])
		if fields["job"] == JobLowStockSweep {
			assert.EqualValues(t, 3, fields["processed_count"])
		}
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	source := &mockSource{}
	called := false
	reconciler := reconcilerFunc(func(ctx context.Context) ([]changelogdomain.Discrepancy, error) {
		called = true
		return nil, nil
	})

	sched := newTestScheduler(t, Config{EnabledJobs: []string{"CHANGELOG_RECONCILE"}}, newTestSweeper(source, &mockNotifier{}, nil), reconciler, zap.NewNop())
	require.NoError(t, sched.RunOnce(context.Background()))

	assert.True(t, called)
	source.AssertNotCalled(t, "LowStockItems", mock.Anything)
}

func TestRunOnceReturnsReconcileError(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	reconciler := reconcilerFunc(func(ctx context.Context) ([]changelogdomain.Discrepancy, error) {
		return nil, errors.New("relation does not exist")
	})
	sched := newTestScheduler(t, Config{EnabledJobs: []string{JobChangelogReconcile}}, newTestSweeper(&mockSource{}, &mockNotifier{}, nil), reconciler, zap.NewNop())

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobChangelogReconcile)
}

func TestRunJobTreatsTimeoutAsSoft(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	sched := newTestScheduler(t, Config{}, newTestSweeper(&mockSource{}, &mockNotifier{}, nil), nil, zap.NewNop())
	err := sched.runJob(context.Background(), "slow", time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, err)
	assert.Equal(t, 1.0, metricValue(t, registry, "stockledger_sweep_job_timeouts_total", map[string]string{"job": "slow"}))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	ran := make(chan struct{}, 1)
	source := &mockSource{}
	source.On("LowStockItems", mock.Anything).Return([]inventorydomain.Item{}, nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	sched := newTestScheduler(t, Config{Interval: time.Hour, EnabledJobs: []string{JobLowStockSweep}}, newTestSweeper(source, &mockNotifier{}, nil), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("first sweep did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunForever did not stop after cancel")
	}
}
