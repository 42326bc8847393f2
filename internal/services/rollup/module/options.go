package module

import (
	"dropwatch/internal/platform/config"
)

// Options holds configuration options for the rollup service
type Options struct {
	WindowDays           int
	EventRetentionDays   int
	SessionRetentionDays int
	MetricsRetentionDays int
	BatchLimit           int
}

// FromConfig reads the rollup options from config with CORE_ROLLUP_ prefix
func FromConfig(cfg config.Conf) Options {
	r := cfg.Prefix("CORE_ROLLUP_")
	return Options{
		WindowDays:           r.MayInt("WINDOW_DAYS", 14),
		EventRetentionDays:   r.MayInt("EVENT_RETENTION_DAYS", 14),
		SessionRetentionDays: r.MayInt("SESSION_RETENTION_DAYS", 90),
		MetricsRetentionDays: r.MayInt("METRICS_RETENTION_DAYS", 90),
		BatchLimit:           r.MayInt("BATCH_LIMIT", 5000),
	}
}
