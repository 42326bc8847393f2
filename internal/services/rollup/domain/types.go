// Package domain holds rollup record types and ports
package domain

import "time"

// MetricTypeDailySummary keys the per-day market metrics row
const MetricTypeDailySummary = "daily_summary"

// Trend labels for rolling venue metrics
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// SessionRow is one closed, not yet aggregated availability session
type SessionRow struct {
	ID              int64
	BucketID        string
	SlotID          string
	VenueID         string
	OpenedAt        time.Time
	ClosedAt        time.Time
	DurationSeconds int
	TimeBucket      string
}

// VenueDayMetrics is one upsert into venue_metrics, keyed on
// (venue_id, window_date, time_bucket)
type VenueDayMetrics struct {
	VenueID            string
	WindowDate         string
	TimeBucket         string
	NewDrops           int
	ClosedCount        int
	AvgDurationSeconds float64
	ScarcityScore      float64
}

// MarketDayValue is the JSONB value of the daily_summary market metrics row
type MarketDayValue struct {
	TotalNewDrops          int            `json:"total_new_drops"`
	TotalClosed            int            `json:"total_closed"`
	AvgDropDurationSeconds float64        `json:"avg_drop_duration_seconds"`
	EventCount             int            `json:"event_count"`
	Weekday                string         `json:"weekday"`
	ByHour                 map[string]int `json:"by_hour"`
}

// VenueRollingMetrics is one upsert into venue_rolling_metrics, keyed on
// (venue_id, as_of_date)
type VenueRollingMetrics struct {
	VenueID            string
	AsOfDate           string
	NewDropCount       int
	PrimeTimeDrops     int
	AvgDurationSeconds float64
	RarityScore        float64
	AvailabilityRate   float64
	Trend              string
}

// VenueDropDay is one (venue, day) count row read from the drop log, the
// input to rolling metrics
type VenueDropDay struct {
	VenueID            string
	Day                string
	NewDrops           int
	PrimeDrops         int
	AvgDurationSeconds float64
}

// Stats carries per-run counters for logging and the run record
type Stats struct {
	SessionsAggregated int
	VenueRows          int
	MarketRows         int
	RollingRows        int

	PrunedBuckets    int64
	PrunedEvents     int64
	PrunedSessions   int64
	PrunedMetrics    int64
	PrunedProjection int64
}

// FinishInfo is written to rollup_runs when a run completes
type FinishInfo struct {
	Status  string
	Stats   Stats
	TotalMS int
	ErrText string
}
