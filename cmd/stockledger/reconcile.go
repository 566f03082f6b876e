package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/stockledger/internal/app"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	obsmetrics "github.com/smallbiznis/stockledger/internal/observability/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newReconcileCmd() *cobra.Command {
	var failOnDrift bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare item quantities with their change log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc changelogdomain.Service

			return runOneShot(cmd.Context(), []fx.Option{app.Core, fx.Populate(&svc)}, func(ctx context.Context) error {
				found, err := svc.Reconcile(ctx)
				if err != nil {
					return err
				}
				obsmetrics.Sweep().SetReconcileDiscrepancies(len(found))
				if found == nil {
					found = []changelogdomain.Discrepancy{}
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(found); err != nil {
					return err
				}
				if failOnDrift && len(found) > 0 {
					return fmt.Errorf("%d items drifted from their change log", len(found))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "exit non-zero when any discrepancy is found")
	return cmd
}
