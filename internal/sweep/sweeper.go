package sweep

import (
	"context"
	"time"

	"github.com/smallbiznis/stockledger/internal/clock"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	obscontext "github.com/smallbiznis/stockledger/internal/observability/context"
	obslogger "github.com/smallbiznis/stockledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stockledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// LowStockSource is the ledger query both triggers share.
type LowStockSource interface {
	LowStockItems(ctx context.Context) ([]inventorydomain.Item, error)
}

type Result struct {
	RunID      string                 `json:"run_id"`
	Trigger    Trigger                `json:"trigger"`
	Items      []inventorydomain.Item `json:"items"`
	Notified   bool                   `json:"notified"`
	Shared     bool                   `json:"shared"`
	Skipped    bool                   `json:"skipped"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

type SweeperParams struct {
	fx.In

	Log      *zap.Logger
	Config   Config
	Clock    clock.Clock
	Source   LowStockSource
	Notifier inventorydomain.Notifier
	Lock     Lock `optional:"true"`
}

// Sweeper finds every low-stock item and reports them in one batch. Concurrent
// callers of the same trigger share a single run.
type Sweeper struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	source   LowStockSource
	notifier inventorydomain.Notifier
	lock     Lock
	group    singleflight.Group
}

func NewSweeper(p SweeperParams) *Sweeper {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Sweeper{
		log:      p.Log.Named("sweep"),
		cfg:      p.Config.withDefaults(),
		clock:    c,
		source:   p.Source,
		notifier: p.Notifier,
		lock:     p.Lock,
	}
}

// Run never fails: a failed query ends the run with no items and the next trigger
// starts fresh.
func (s *Sweeper) Run(ctx context.Context, trigger Trigger) Result {
	v, _, shared := s.group.Do(string(trigger), func() (any, error) {
		return s.sweep(ctx, trigger), nil
	})
	res := v.(Result)
	if shared {
		res.Shared = true
		obsmetrics.Sweep().IncBatchDeferred(JobLowStockSweep, obsmetrics.SweepDeferredReasonInFlight)
	}
	return res
}

func (s *Sweeper) sweep(parent context.Context, trigger Trigger) Result {
	started := s.clock.Now()
	res := Result{
		RunID:     newRunID(started),
		Trigger:   trigger,
		Items:     []inventorydomain.Item{},
		StartedAt: started,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.Timeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeSystem, "sweep")
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("run_id", res.RunID),
		zap.String("trigger", string(trigger)),
	)
	m := obsmetrics.Sweep()

	if trigger == TriggerScheduled && s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, scheduledLockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn("sweep lock unavailable, continuing without it", zap.Error(err))
		case !ok:
			log.Info("scheduled sweep already running on another replica")
			m.IncBatchDeferred(JobLowStockSweep, obsmetrics.SweepDeferredReasonLockHeld)
			res.Skipped = true
			res.FinishedAt = s.clock.Now()
			return res
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release sweep lock failed", zap.Error(err))
				}
			}()
		}
	}

	items, err := s.source.LowStockItems(ctx)
	if err != nil {
		m.IncJobError(JobLowStockSweep, err)
		log.Error("low stock query failed",
			zap.String("error_type", obsmetrics.ClassifySweepErrorType(err)),
			zap.Error(err),
		)
		items = nil
	}
	m.SetLowStockItems(string(trigger), len(items))
	res.FinishedAt = s.clock.Now()

	if len(items) == 0 {
		log.Info("no low stock items")
		return res
	}

	res.Items = items
	m.AddBatchProcessed(JobLowStockSweep, "item", len(items))
	log.Info("low stock items found", zap.Int("item_count", len(items)))

	notifyCtx, notifyCancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer notifyCancel()
	if err := s.notifier.NotifyLowStockBatch(notifyCtx, items); err != nil {
		m.IncNotifyFailure(string(trigger))
		log.Warn("low stock batch alert failed", zap.Error(err))
	} else {
		res.Notified = true
	}
	res.FinishedAt = s.clock.Now()
	return res
}
