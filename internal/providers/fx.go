package providers

import (
	"github.com/smallbiznis/stockledger/internal/providers/email"
	"github.com/smallbiznis/stockledger/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
