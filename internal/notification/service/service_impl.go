package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/stockledger/internal/config"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/smallbiznis/stockledger/internal/notification/domain"
	"github.com/smallbiznis/stockledger/internal/observability/logger"
	"github.com/smallbiznis/stockledger/internal/observability/metrics"
	"github.com/smallbiznis/stockledger/internal/observability/tracing"
	"github.com/smallbiznis/stockledger/internal/providers/email"
	"github.com/smallbiznis/stockledger/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultChannelTimeout = 10 * time.Second

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Routing *config.AlertRoutingHolder
	Email   email.Provider
	Slack   slack.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

// Notifier fans low-stock alerts out to every enabled channel. One channel failing
// never stops the others.
type Notifier struct {
	log     *zap.Logger
	routing *config.AlertRoutingHolder
	email   email.Provider
	slack   slack.Provider
	metrics *metrics.Metrics
	timeout time.Duration
}

func New(p Params) inventorydomain.Notifier {
	return NewNotifier(p)
}

func NewNotifier(p Params) *Notifier {
	m := p.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	timeout := p.Cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &Notifier{
		log:     p.Log.Named("notification.service"),
		routing: p.Routing,
		email:   p.Email,
		slack:   p.Slack,
		metrics: m,
		timeout: timeout,
	}
}

func (n *Notifier) NotifyLowStock(ctx context.Context, item inventorydomain.Item) error {
	return n.deliver(ctx, domain.SingleAlert(item))
}

func (n *Notifier) NotifyLowStockBatch(ctx context.Context, items []inventorydomain.Item) error {
	if len(items) == 0 {
		return nil
	}
	return n.deliver(ctx, domain.BatchAlert(items))
}

func (n *Notifier) deliver(ctx context.Context, alert domain.Alert) error {
	routing := config.DefaultAlertRouting()
	if n.routing != nil {
		routing = n.routing.Get()
	}
	log := logger.WithContext(ctx, n.log).With(
		zap.String("kind", string(alert.Kind)),
		zap.Int("item_count", len(alert.Items)),
	)

	var errs []error
	if routing.Email.Enabled && len(routing.Email.Recipients) > 0 && n.email != nil {
		err := n.send(ctx, log, domain.ChannelEmail, alert, func(ctx context.Context) error {
			return n.sendEmail(ctx, routing.Email.Recipients, alert)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if routing.Slack.Enabled && n.slack != nil {
		err := n.send(ctx, log, domain.ChannelSlack, alert, func(ctx context.Context) error {
			return n.slack.PostMessage(ctx, routing.Slack.Channel, alert.Text())
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, errors.Join(errs...))
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, log *zap.Logger, channel domain.Channel, alert domain.Alert, fn func(context.Context) error) error {
	channelCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	err := fn(channelCtx)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(channelCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		n.metrics.RecordAlertFailed(ctx, string(channel), string(alert.Kind), reason)
		log.Warn("low stock alert delivery failed",
			zap.String("channel", string(channel)),
			zap.String("reason", reason),
			zap.Error(tracing.SafeError(err)),
		)
		return fmt.Errorf("%s: %w", channel, err)
	}

	n.metrics.RecordAlertDelivered(ctx, string(channel), string(alert.Kind))
	log.Info("low stock alert delivered",
		zap.String("channel", string(channel)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, to []string, alert domain.Alert) error {
	if alert.Kind == domain.KindSingle && len(alert.Items) == 1 {
		return n.email.SendTemplate(ctx, to, alert.Subject, domain.TemplateSingle, alert.Items[0])
	}
	return n.email.SendTemplate(ctx, to, alert.Subject, domain.TemplateBatch, alert)
}
