package scheduler

import (
	"time"

	"github.com/intellispire/commercestore/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval      time.Duration
	BatchSize        int
	JobTimeout       time.Duration
	AbandonThreshold time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      24 * time.Hour,
		BatchSize:        50,
		JobTimeout:       5 * time.Minute,
		AbandonThreshold: 7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.AbandonThreshold <= 0 {
		c.AbandonThreshold = defaults.AbandonThreshold
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:      time.Duration(cfg.SweepRunIntervalHours) * time.Hour,
		BatchSize:        cfg.SweepBatchSize,
		AbandonThreshold: time.Duration(cfg.SweepAbandonAfterDays) * 24 * time.Hour,
	}.withDefaults()
}
