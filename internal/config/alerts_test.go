package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAlertRoutingDefaultsWhenFileMissing(t *testing.T) {
	holder, err := NewAlertRoutingHolder(Config{AlertsConfigPath: ""}, zap.NewNop())
	require.NoError(t, err)

	routing := holder.Get()
	assert.True(t, routing.Email.Enabled)
	assert.Equal(t, []string{defaultAlertRecipient}, routing.Email.Recipients)
	assert.Equal(t, "#inventory-alerts", routing.Slack.Channel)
}

func TestAlertRoutingFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yml")
	content := []byte(`alerts:
  email:
    enabled: true
    recipients:
      - " Buyer@Example.com "
      - buyer@example.com
      - ops@example.com
  slack:
    enabled: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewAlertRoutingHolder(Config{AlertsConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	routing := holder.Get()
	assert.Equal(t, []string{"buyer@example.com", "ops@example.com"}, routing.Email.Recipients)
	assert.False(t, routing.Slack.Enabled)
	// channel falls back to the default when the file omits it
	assert.Equal(t, "#inventory-alerts", routing.Slack.Channel)
}

func TestAlertRoutingRejectsInvalidUpdate(t *testing.T) {
	holder, err := NewStaticAlertRoutingHolder(DefaultAlertRouting())
	require.NoError(t, err)

	err = holder.apply(AlertRouting{Email: EmailRoute{Enabled: true}})
	require.Error(t, err)
	assert.Equal(t, []string{defaultAlertRecipient}, holder.Get().Email.Recipients)

	err = holder.apply(AlertRouting{Email: EmailRoute{Enabled: true, Recipients: []string{"not-an-address"}}})
	require.Error(t, err)

	require.NoError(t, holder.apply(AlertRouting{Email: EmailRoute{Enabled: false}}))
	assert.False(t, holder.Get().Email.Enabled)
}

func TestLoadReadsSweepSettings(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("SWEEP_ENABLED_JOBS", "low_stock_sweep, ,changelog_reconcile")
	t.Setenv("NOTIFY_TIMEOUT", "bogus")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, []string{"low_stock_sweep", "changelog_reconcile"}, cfg.Sweep.EnabledJobs)
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
}
