package scheduler

import (
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
)

type Config struct {
	// Sync
	Interval  time.Duration
	SyncType  string
	BatchSize int

	// Leader Election
	LeaderKey string
	LeaderTTL time.Duration

	// Retention
	CleanupSpec            string
	ExecutionRetentionDays int
	SyncLogRetentionDays   int

	// Shutdown
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Interval:               15 * time.Minute,
		SyncType:               models.SyncTypeFull,
		LeaderKey:              "flowmirror:scheduler:leader",
		LeaderTTL:              30 * time.Second,
		CleanupSpec:            "@daily",
		ExecutionRetentionDays: 30,
		SyncLogRetentionDays:   30,
		ShutdownTimeout:        30 * time.Second,
	}
}

// FromAppConfig builds the scheduler settings from loaded configuration.
func FromAppConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Interval = cfg.Sync.Interval()
	c.BatchSize = cfg.Sync.ExecutionBatchSize
	c.LeaderKey = cfg.Sync.LeaderKey
	c.LeaderTTL = cfg.Sync.LeaderTTL
	c.ExecutionRetentionDays = cfg.App.ExecutionRetentionDays
	c.SyncLogRetentionDays = cfg.App.SyncLogRetentionDays
	c.Validate()
	return c
}

func (c *Config) Validate() {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Interval < time.Second {
		c.Interval = time.Second
	}
	if !models.IsValidSyncType(c.SyncType) {
		c.SyncType = defaults.SyncType
	}
	if c.BatchSize < 0 {
		c.BatchSize = 0
	}
	if c.LeaderKey == "" {
		c.LeaderKey = defaults.LeaderKey
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = defaults.LeaderTTL
	}
	if c.CleanupSpec == "" {
		c.CleanupSpec = defaults.CleanupSpec
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}
