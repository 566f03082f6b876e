// Package app holds the fx graph shared by the api, scheduler and CLI binaries.
package app

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stockledger/internal/changelog"
	"github.com/smallbiznis/stockledger/internal/clock"
	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/internal/inventory"
	"github.com/smallbiznis/stockledger/internal/migration"
	"github.com/smallbiznis/stockledger/internal/notification"
	"github.com/smallbiznis/stockledger/internal/observability"
	"github.com/smallbiznis/stockledger/internal/providers"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"github.com/smallbiznis/stockledger/pkg/db"
	"go.uber.org/fx"
)

// Core wires infrastructure, the ledger and the manual sweep. Callers add the
// HTTP server or the scheduler loop on top.
var Core = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	clock.Module,
	migration.Module,

	providers.Module,
	notification.Module,
	inventory.Module,
	changelog.Module,
	sweep.Module,
)

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}
