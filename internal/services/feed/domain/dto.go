// Package domain holds DTOs for the feed http surface and service contracts
package domain

import "time"

// FeedQuery filters both feed reads. Zero values mean "no filter"; the
// service applies defaults and caps before the repo sees it
type FeedQuery struct {
	Dates               []string `json:"dates,omitempty" validate:"omitempty,dive,datetime=2006-01-02" example:"2026-02-18"`
	TimeSlots           []string `json:"time_slots,omitempty" validate:"omitempty,dive,len=5" example:"19:00"`
	MinTime             string   `json:"min_time,omitempty" validate:"omitempty,len=5" example:"17:30"`
	MaxTime             string   `json:"max_time,omitempty" validate:"omitempty,len=5" example:"21:00"`
	OpenedWithinMinutes int      `json:"opened_within_minutes,omitempty" validate:"omitempty,min=1,max=10080" example:"120"`
	Limit               int      `json:"limit,omitempty" validate:"omitempty,min=1,max=500" example:"100"`
}

// JustOpenedRow is one recent drop that is still open
type JustOpenedRow struct {
	SlotID       string    `json:"slot_id"`
	BucketID     string    `json:"bucket_id"`
	DateStr      string    `json:"date_str"`
	TimeSlot     string    `json:"time_slot"`
	VenueID      string    `json:"venue_id"`
	VenueName    string    `json:"venue_name"`
	SlotDate     string    `json:"slot_date"`
	SlotTime     string    `json:"slot_time"`
	TimeBucket   string    `json:"time_bucket"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	PriceRange   string    `json:"price_range,omitempty"`
	OpenedAt     time.Time `json:"opened_at"`
}

// StillOpenRow is one currently open slot from the projection
type StillOpenRow struct {
	SlotID     string    `json:"slot_id"`
	BucketID   string    `json:"bucket_id"`
	DateStr    string    `json:"date_str"`
	TimeSlot   string    `json:"time_slot"`
	VenueID    string    `json:"venue_id"`
	VenueName  string    `json:"venue_name"`
	OpenedAt   time.Time `json:"opened_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// JustOpenedDay groups just-opened rows under their window date
type JustOpenedDay struct {
	Date  string          `json:"date"`
	Items []JustOpenedRow `json:"items"`
}

// StillOpenDay groups still-open rows under their window date
type StillOpenDay struct {
	Date  string         `json:"date"`
	Items []StillOpenRow `json:"items"`
}

// Snapshot is the combined feed payload
type Snapshot struct {
	JustOpened []JustOpenedDay `json:"just_opened"`
	StillOpen  []StillOpenDay  `json:"still_open"`
}

// CalendarDay carries per-date venue counts for the calendar bar
type CalendarDay struct {
	Date       string `json:"date"`
	JustOpened int    `json:"just_opened"`
	StillOpen  int    `json:"still_open"`
}

// HeartbeatRow is the poller heartbeat as read by the feed
type HeartbeatRow struct {
	LastTickAt        time.Time
	NextTickAt        time.Time
	LastError         string
	BaselineEchoTotal int
	PrevEchoTotal     int
}

// InvariantTotals are the running echo counters from the poller heartbeat;
// either being nonzero means a poll emitted something it should not have
type InvariantTotals struct {
	BaselineEchoTotal int `json:"baseline_echo_total"`
	PrevEchoTotal     int `json:"prev_echo_total"`
}

// HealthView is the fast-check view derived from heartbeat and scan times
type HealthView struct {
	JobAlive     bool            `json:"job_alive"`
	FeedUpdating bool            `json:"feed_updating"`
	LastTickAt   *time.Time      `json:"last_tick_at,omitempty"`
	NextTickAt   *time.Time      `json:"next_tick_at,omitempty"`
	LastScanAt   *time.Time      `json:"last_scan_at,omitempty"`
	LastError    string          `json:"error,omitempty"`
	Invariants   InvariantTotals `json:"invariants"`
	Now          time.Time       `json:"now"`
}

// BucketStatusRow is the debug view of one window bucket
type BucketStatusRow struct {
	BucketID      string     `json:"bucket_id"`
	DateStr       string     `json:"date_str"`
	TimeSlot      string     `json:"time_slot"`
	ScannedAt     *time.Time `json:"last_scan_at"`
	BaselineCount int        `json:"baseline_count"`
	PrevCount     int        `json:"prev_count"`
	Stale         bool       `json:"stale"`
}

// BaselineRow is the debug view of one bucket's baseline
type BaselineRow struct {
	BucketID          string     `json:"bucket_id"`
	BaselineCount     int        `json:"baseline_count"`
	BaselineSlotIDs   []string   `json:"baseline_slot_ids"`
	BaselineScannedAt *time.Time `json:"baseline_scanned_at"`
}

// EventDebugRow explains why an event is (or is not) in the feed
type EventDebugRow struct {
	EventID    int64     `json:"event_id"`
	SlotID     string    `json:"slot_id"`
	BucketID   string    `json:"bucket_id"`
	VenueID    string    `json:"venue_id"`
	VenueName  string    `json:"venue_name"`
	InBaseline bool      `json:"in_baseline"`
	InPrev     bool      `json:"in_prev"`
	EmittedAt  time.Time `json:"emitted_at"`
	Reason     string    `json:"reason"`
}
