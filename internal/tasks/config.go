package tasks

import (
	"time"

	"github.com/mrlokans/libmanage/internal/config"
)

// Config tunes the worker pool.
type Config struct {
	Workers         int
	ReleaseAfter    time.Duration // stuck tasks go back to the queue after this
	CleanupInterval time.Duration // how often expired task rows are purged
}

func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// FromAppConfig fills zero values from DefaultConfig.
func FromAppConfig(cfg config.Tasks) Config {
	out := DefaultConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.ReleaseAfter > 0 {
		out.ReleaseAfter = cfg.ReleaseAfter
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	return out
}
