package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/clock"
	obsmetrics "github.com/smallbiznis/stockledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_sweep_config")

// Reconciler reports items whose quantity drifted from their change log.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]changelogdomain.Discrepancy, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     Config
	Clock      clock.Clock
	Sweeper    *Sweeper
	Reconciler Reconciler `optional:"true"`
}

// Scheduler fires the scheduled trigger on a fixed interval and runs the
// reconciliation check alongside it.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	sweeper    *Sweeper
	reconciler Reconciler
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Sweeper == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("sweep.scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		sweeper:    p.Sweeper,
		reconciler: p.Reconciler,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	m := obsmetrics.Sweep()
	m.IncJobRun(name)

	err := fn(ctx)
	m.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		m.MarkSuccess(name, s.clock.Now())
		return nil
	}

	// deadlines are soft: the next tick retries
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		m.IncJobTimeout(name)
	}
	m.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobLowStockSweep, s.isJobEnabled(JobLowStockSweep), func(ctx context.Context) error {
			return s.runJob(ctx, JobLowStockSweep, s.cfg.Timeout, s.LowStockSweepJob)
		}},
		{JobChangelogReconcile, s.isJobEnabled(JobChangelogReconcile) && s.reconciler != nil, func(ctx context.Context) error {
			return s.runJob(ctx, JobChangelogReconcile, s.cfg.Timeout, s.ReconcileJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

// RunForever runs every enabled job immediately and then once per interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	m := obsmetrics.Sweep()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			m.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) LowStockSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	res := s.sweeper.Run(ctx, TriggerScheduled)
	run.AddProcessed(len(res.Items))
	return nil
}

func (s *Scheduler) ReconcileJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	found, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(len(found))
	obsmetrics.Sweep().SetReconcileDiscrepancies(len(found))
	if len(found) > 0 {
		s.logger(ctx).Warn("change log discrepancies found", zap.Int("count", len(found)))
	}
	return nil
}
