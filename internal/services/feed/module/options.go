package module

import (
	"time"

	"dropwatch/internal/platform/config"
)

// Options holds configuration options for the feed service
type Options struct {
	DefaultLimit        int
	MaxLimit            int
	DefaultOpenedWithin time.Duration
	StaleAfter          time.Duration
	TickInterval        time.Duration
}

// FromConfig reads the feed options under the caller's FEED_ prefix; the
// stale horizon and tick default match the poller's
func FromConfig(cfg config.Conf) Options {
	f := cfg.Prefix("FEED_")
	return Options{
		DefaultLimit:        f.MayInt("LIMIT", 100),
		MaxLimit:            f.MayInt("MAX_LIMIT", 500),
		DefaultOpenedWithin: f.MayDuration("OPENED_WITHIN", 2*time.Hour),
		StaleAfter:          f.MayDuration("STALE_AFTER", 4*time.Hour),
		TickInterval:        f.MayDuration("TICK", 30*time.Second),
	}
}
