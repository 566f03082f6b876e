package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/internal/migration"
	"github.com/smallbiznis/stockledger/internal/observability"
	"github.com/smallbiznis/stockledger/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(newMigrateUpCmd(), newMigrateVersionCmd())
	return cmd
}

func migrationGraph(targets ...any) []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(targets...),
	}
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
				log  *zap.Logger
			)
			return runOneShot(cmd.Context(), migrationGraph(&conn, &cfg, &log), func(ctx context.Context) error {
				// explicit request: run even when startup auto migrate is off
				cfg.DBAutoMigrate = true
				return migration.Apply(conn, cfg, log)
			})
		},
	}
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version (postgres only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
			)
			return runOneShot(cmd.Context(), migrationGraph(&conn, &cfg), func(ctx context.Context) error {
				if cfg.DBType != db.TypePostgres {
					return fmt.Errorf("versioned migrations are only used on postgres, got %q", cfg.DBType)
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				version, dirty, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
}
