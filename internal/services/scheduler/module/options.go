package module

import (
	"time"

	"dropwatch/internal/platform/config"
)

// Options holds configuration options for the scheduler
type Options struct {
	Tick          time.Duration
	Cooldown      time.Duration
	MaxConcurrent int
	DailySpec     string
}

// FromConfig reads the scheduler options from config with CORE_SCHEDULER_ prefix
func FromConfig(cfg config.Conf) Options {
	s := cfg.Prefix("CORE_SCHEDULER_")
	return Options{
		Tick:          s.MayDuration("TICK", 30*time.Second),
		Cooldown:      s.MayDuration("COOLDOWN", 45*time.Second),
		MaxConcurrent: s.MayInt("MAX_CONCURRENT", 8),
		DailySpec:     s.MayString("DAILY_SPEC", "5 2 * * *"),
	}
}
