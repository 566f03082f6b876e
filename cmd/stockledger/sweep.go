package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/smallbiznis/stockledger/internal/app"
	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newSweepCmd() *cobra.Command {
	var scheduled bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one low stock sweep and exit",
		Long: "Runs one low stock sweep. By default it behaves like the dashboard check. " +
			"With --scheduled it takes the scheduled trigger and its cross replica lock, for use from cron.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				sweeper *sweep.Sweeper
				cfg     config.Config
				log     *zap.Logger
			)
			trigger := sweep.TriggerManual
			if scheduled {
				trigger = sweep.TriggerScheduled
			}

			return runOneShot(cmd.Context(), []fx.Option{app.Core, fx.Populate(&sweeper, &cfg, &log)}, func(ctx context.Context) error {
				res := sweeper.Run(ctx, trigger)
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d low stock items, notified=%t skipped=%t\n",
					res.RunID, len(res.Items), res.Notified, res.Skipped)

				if err := pushMetrics(ctx, cfg, trigger); err != nil {
					log.Warn("push sweep metrics failed", zap.Error(err))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "use the scheduled trigger and honour the redis lock")
	return cmd
}

// pushMetrics ships the one-shot run's gauges to the pushgateway, since no
// scrape will ever see this process.
func pushMetrics(ctx context.Context, cfg config.Config, trigger sweep.Trigger) error {
	url := strings.TrimSpace(cfg.PushgatewayURL)
	if url == "" {
		return nil
	}
	return push.New(url, "stockledger_sweep").
		Gatherer(prometheus.DefaultGatherer).
		Grouping("trigger", string(trigger)).
		PushContext(ctx)
}
