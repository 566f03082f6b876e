package slack

import (
	"github.com/smallbiznis/stockledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Slack.WebhookURL == "" {
		log.Named("providers.slack").Info("slack webhook not configured, slack alerts disabled")
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Slack.WebhookURL, nil)
}
