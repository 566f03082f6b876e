package sweep

import (
	"time"

	"github.com/smallbiznis/stockledger/internal/config"
)

const (
	JobLowStockSweep      = "low_stock_sweep"
	JobChangelogReconcile = "changelog_reconcile"

	scheduledLockKey = "stockledger:sweep:scheduled"
)

// Config controls the sweep interval, job deadline and cross-replica lock.
type Config struct {
	Interval      time.Duration
	Timeout       time.Duration
	LockTTL       time.Duration
	NotifyTimeout time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		Interval:      24 * time.Hour,
		Timeout:       2 * time.Minute,
		LockTTL:       5 * time.Minute,
		NotifyTimeout: 10 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Interval:      cfg.Sweep.Interval,
		Timeout:       cfg.Sweep.Timeout,
		LockTTL:       cfg.Sweep.LockTTL,
		NotifyTimeout: cfg.NotifyTimeout,
		EnabledJobs:   cfg.Sweep.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = defaults.NotifyTimeout
	}
	return c
}
