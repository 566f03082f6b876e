package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultAlertRecipient = "warehouse@company.com"

// AlertRouting decides where low stock alerts are delivered.
type AlertRouting struct {
	Email EmailRoute `mapstructure:"email"`
	Slack SlackRoute `mapstructure:"slack"`
}

type EmailRoute struct {
	Enabled    bool     `mapstructure:"enabled"`
	Recipients []string `mapstructure:"recipients"`
}

type SlackRoute struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

type alertsFile struct {
	Alerts AlertRouting `mapstructure:"alerts"`
}

func DefaultAlertRouting() AlertRouting {
	return AlertRouting{
		Email: EmailRoute{Enabled: true, Recipients: []string{defaultAlertRecipient}},
		Slack: SlackRoute{Enabled: true, Channel: "#inventory-alerts"},
	}
}

type AlertRoutingHolder struct {
	current atomic.Value // holds AlertRouting
	log     *zap.Logger
}

// NewAlertRoutingHolder loads alerts.yml and keeps it current while the process runs.
func NewAlertRoutingHolder(cfg Config, log *zap.Logger) (*AlertRoutingHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if path := strings.TrimSpace(cfg.AlertsConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("alerts")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/stockledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STOCKLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAlertRouting()
	v.SetDefault("alerts.email.enabled", defaults.Email.Enabled)
	v.SetDefault("alerts.email.recipients", defaults.Email.Recipients)
	v.SetDefault("alerts.slack.enabled", defaults.Slack.Enabled)
	v.SetDefault("alerts.slack.channel", defaults.Slack.Channel)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	holder := &AlertRoutingHolder{log: log.Named("config.alerts")}
	routing, err := decodeAlertRouting(v)
	if err != nil {
		return nil, err
	}
	if err := holder.apply(routing); err != nil {
		return nil, err
	}

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeAlertRouting(v)
			if err != nil {
				holder.log.Warn("alert routing reload failed", zap.String("file", e.Name), zap.Error(err))
				return
			}
			if err := holder.apply(updated); err != nil {
				holder.log.Warn("invalid alert routing ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.log.Info("alert routing reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticAlertRoutingHolder returns a holder that never reloads.
func NewStaticAlertRoutingHolder(routing AlertRouting) (*AlertRoutingHolder, error) {
	holder := &AlertRoutingHolder{log: zap.NewNop()}
	if err := holder.apply(routing); err != nil {
		return nil, err
	}
	return holder, nil
}

func (h *AlertRoutingHolder) Get() AlertRouting {
	return h.current.Load().(AlertRouting)
}

func (h *AlertRoutingHolder) apply(routing AlertRouting) error {
	routing.Email.Recipients = normalizeRecipients(routing.Email.Recipients)
	routing.Slack.Channel = strings.TrimSpace(routing.Slack.Channel)
	if err := validateAlertRouting(routing); err != nil {
		return err
	}
	h.current.Store(routing)
	return nil
}

func decodeAlertRouting(v *viper.Viper) (AlertRouting, error) {
	var file alertsFile
	if err := v.Unmarshal(&file); err != nil {
		return AlertRouting{}, err
	}
	return file.Alerts, nil
}

func validateAlertRouting(routing AlertRouting) error {
	if routing.Email.Enabled && len(routing.Email.Recipients) == 0 {
		return errors.New("alerts.email.recipients cannot be empty when email is enabled")
	}
	for _, r := range routing.Email.Recipients {
		if !strings.Contains(r, "@") {
			return errors.New("alerts.email.recipients contains an invalid address")
		}
	}
	return nil
}

func normalizeRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
