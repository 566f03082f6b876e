package main

import (
	"github.com/smallbiznis/stockledger/internal/app"
	"github.com/smallbiznis/stockledger/internal/server"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Runs the HTTP API. With --scheduler the daily low stock sweep runs in the same process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []fx.Option{app.Core, server.Module}
			if withScheduler {
				opts = append(opts, sweep.SchedulerModule)
			}
			fxApp := fx.New(opts...)
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run the sweep scheduler alongside the API")
	return cmd
}
