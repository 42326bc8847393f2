package module

import (
	"strconv"
	"time"

	"dropwatch/internal/adapters/provider/resy"
	"dropwatch/internal/platform/config"
)

// Options holds configuration options for the discovery service
type Options struct {
	Provider    string
	WindowDays  int
	TimeSlots   []string
	PartySizes  []int
	WindowHours int

	DedupeTTL  time.Duration
	StaleAfter time.Duration

	EnableLeases bool
	LeaseTTL     time.Duration

	SinkTable string

	Resy resy.Options
}

// FromConfig reads the discovery options from config with CORE_DISCOVERY_
// prefix, plus the provider credentials under PROVIDER_RESY_
func FromConfig(cfg config.Conf) Options {
	d := cfg.Prefix("CORE_DISCOVERY_")
	r := cfg.Prefix("PROVIDER_RESY_")
	return Options{
		Provider:     d.MayString("PROVIDER", resy.ProviderID),
		WindowDays:   d.MayInt("WINDOW_DAYS", 14),
		TimeSlots:    d.MayCSV("TIME_SLOTS", []string{"15:00", "19:00"}),
		PartySizes:   csvInts(d.MayCSV("PARTY_SIZES", []string{"2", "4"})),
		WindowHours:  d.MayInt("WINDOW_HOURS", 2),
		DedupeTTL:    d.MayDuration("DEDUPE_TTL", 30*time.Minute),
		StaleAfter:   d.MayDuration("STALE_AFTER", 4*time.Hour),
		EnableLeases: d.MayBool("LEASES", true),
		LeaseTTL:     d.MayDuration("LEASE_TTL", 5*time.Minute),
		SinkTable:    d.MayString("SINK_TABLE", ""),
		Resy: resy.Options{
			BaseURL:    r.MayString("BASE_URL", ""),
			UserAgent:  r.MayString("USER_AGENT", ""),
			Timeout:    r.MayDuration("TIMEOUT", 0),
			APIKey:     r.MayString("API_KEY", ""),
			AuthToken:  r.MayString("AUTH_TOKEN", ""),
			Lat:        r.MayFloat64("LAT", 40.7128),
			Lng:        r.MayFloat64("LNG", -74.0060),
			RadiusM:    r.MayInt("RADIUS_M", 5000),
			PerPage:    r.MayInt("PER_PAGE", 0),
			MaxPages:   r.MayInt("MAX_PAGES", 0),
			MaxRetries: r.MayInt("RETRIES", 0),
			RetryBase:  r.MayDuration("RETRY_BASE", 0),
		},
	}
}

// csvInts drops tokens that do not parse rather than failing boot
func csvInts(xs []string) []int {
	out := make([]int, 0, len(xs))
	for _, x := range xs {
		if n, err := strconv.Atoi(x); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
