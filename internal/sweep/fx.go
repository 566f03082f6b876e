package sweep

import (
	"context"

	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"go.uber.org/fx"
)

// Module provides the sweeper used by the manual trigger.
var Module = fx.Module("sweep",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLock),
	fx.Provide(func(svc inventorydomain.Service) LowStockSource { return svc }),
	fx.Provide(NewSweeper),
)

// SchedulerModule adds the interval loop on top of Module.
var SchedulerModule = fx.Module("sweep.scheduler",
	fx.Provide(func(svc changelogdomain.Service) Reconciler { return svc }),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
