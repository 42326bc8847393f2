// Package domain holds discovery record types and ports
package domain

import "time"

// Event types for the append-only drop log
const (
	EventTypeNewDrop = "NEW_DROP"
	EventTypeClosed  = "CLOSED"
)

// Time buckets stamped on events and sessions
const (
	TimeBucketPrime   = "prime"
	TimeBucketOffPeak = "off_peak"
)

// Projection states
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// BucketRef identifies one query key of the rolling window
type BucketRef struct {
	BucketID string // "YYYY-MM-DD_HH:MM"
	DateStr  string // "YYYY-MM-DD"
	TimeSlot string // "15:00" or "19:00"
}

// Bucket is the persisted per-bucket diff state.
// Baseline nil means the bucket exists but was never baselined; an empty
// non-nil slice is a valid (initialized) baseline
type Bucket struct {
	BucketID          string
	DateStr           string
	TimeSlot          string
	Baseline          []string
	Prev              []string
	ScannedAt         *time.Time
	BaselineScannedAt *time.Time
}

// Initialized reports whether the bucket has a baseline
func (b Bucket) Initialized() bool { return b.Baseline != nil }

// DropEvent is one append-only row in the drop log
type DropEvent struct {
	ID              int64
	BucketID        string
	SlotID          string
	VenueID         string
	VenueName       string
	EventType       string
	OpenedAt        time.Time
	ClosedAt        *time.Time
	DurationSeconds *int
	TimeBucket      string
	SlotDate        string
	SlotTime        string
	Provider        string
	Neighborhood    string
	PriceRange      string
	Payload         []byte
	DedupeKey       string
}

// OpenSlot is one projection upsert input
type OpenSlot struct {
	SlotID  string
	VenueID string
}

// LastDrop is the latest NEW_DROP for a (bucket, slot), used to build CLOSED
// events with a known duration
type LastDrop struct {
	SlotID     string
	VenueID    string
	VenueName  string
	OpenedAt   time.Time
	TimeBucket string
	SlotDate   string
	SlotTime   string
	Provider   string
}

// VenueRef is upserted into the venue catalog when a venue shows up in drops.
// NameKey is the canonical form of VenueName used to match the same venue
// across providers and renames
type VenueRef struct {
	VenueID   string
	VenueName string
	NameKey   string
}

// PollStats carries per-poll counters and the logged invariants
type PollStats struct {
	B, P, C int

	OpenedVsPrev     int
	OpenedVsBaseline int
	DropsComputed    int
	Emitted          int
	Deduped          int
	ClosedEmitted    int

	BaselineReady        bool
	BaselineBootstrapped bool

	// Must both be zero on every committed poll
	BaselineEcho int
	PrevEcho     int
}

// BucketHealth is the per-bucket view returned by health queries
type BucketHealth struct {
	BucketID      string     `json:"bucket_id"`
	DateStr       string     `json:"date_str"`
	TimeSlot      string     `json:"time_slot"`
	ScannedAt     *time.Time `json:"last_scan_at"`
	BaselineCount int        `json:"baseline_count"`
	Stale         bool       `json:"stale"`
}

// BaselineSnapshot is the debug view of one bucket's baseline
type BaselineSnapshot struct {
	BucketID          string     `json:"bucket_id"`
	DateStr           string     `json:"date_str"`
	TimeSlot          string     `json:"time_slot"`
	BaselineCount     int        `json:"baseline_count"`
	BaselineSlotIDs   []string   `json:"baseline_slot_ids"`
	BaselineScannedAt *time.Time `json:"baseline_scanned_at"`
}

// EventDebug explains why a drop event is (or is not) in the feed
type EventDebug struct {
	EventID    int64      `json:"event_id"`
	SlotID     string     `json:"slot_id"`
	BucketID   string     `json:"bucket_id"`
	VenueID    string     `json:"venue_id"`
	VenueName  string     `json:"venue_name"`
	InBaseline bool       `json:"in_baseline"`
	InPrev     bool       `json:"in_prev"`
	EmittedAt  *time.Time `json:"emitted_at"`
	Reason     string     `json:"reason"`
}
