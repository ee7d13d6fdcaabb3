package syncworker

import (
	"time"

	appconfig "github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

// Config controls worker intervals, batch sizes and job selection.
type Config struct {
	RunInterval        time.Duration
	BatchSize          int
	FetchTimeout       time.Duration
	CallDelay          time.Duration
	StuckThreshold     time.Duration
	SweepPageSize      int
	DiscoveredPriority int
	Platforms          []identitydomain.Platform
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        5 * time.Minute,
		BatchSize:          25,
		FetchTimeout:       10 * time.Second,
		CallDelay:          500 * time.Millisecond,
		StuckThreshold:     30 * time.Minute,
		SweepPageSize:      500,
		DiscoveredPriority: 10,
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
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	if c.CallDelay < 0 {
		c.CallDelay = defaults.CallDelay
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = defaults.StuckThreshold
	}
	if c.SweepPageSize <= 0 {
		c.SweepPageSize = defaults.SweepPageSize
	}
	if c.DiscoveredPriority <= 0 {
		c.DiscoveredPriority = defaults.DiscoveredPriority
	}
	return c
}

// ProvideConfig maps application configuration onto the worker config.
func ProvideConfig(cfg appconfig.Config) Config {
	platforms := make([]identitydomain.Platform, 0, len(cfg.Platforms))
	for _, name := range cfg.Platforms {
		platforms = append(platforms, identitydomain.NormalizePlatform(name))
	}
	return Config{
		RunInterval:        cfg.Worker.RunInterval,
		BatchSize:          cfg.Worker.BatchSize,
		FetchTimeout:       cfg.Worker.FetchTimeout,
		CallDelay:          cfg.Worker.CallDelay,
		StuckThreshold:     cfg.Worker.StuckThreshold,
		SweepPageSize:      cfg.Worker.SweepPageSize,
		DiscoveredPriority: cfg.Worker.DiscoveredPriority,
		Platforms:          platforms,
		EnabledJobs:        cfg.Worker.EnabledJobs,
	}
}
