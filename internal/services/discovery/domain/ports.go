package domain

import (
	"context"
	"time"
)

// PollerPort is the public port exposed by the discovery module
type PollerPort interface {
	// PollBucket runs one full poll cycle for a bucket under its lease
	PollBucket(ctx context.Context, ref BucketRef) (PollStats, error)

	// EnsureWindow creates any missing bucket rows for the window anchored
	// at start; one read plus one bulk insert
	EnsureWindow(ctx context.Context, start time.Time) (created int, err error)

	// EligibleBuckets returns window buckets whose scanned_at is older than
	// the cooldown (or never scanned)
	EligibleBuckets(ctx context.Context, start time.Time, cooldown time.Duration) ([]BucketRef, error)

	// RefreshBaselines re-baselines every window bucket in place; no events
	RefreshBaselines(ctx context.Context, start time.Time) (refreshed int, errs []string, err error)

	// ResetBuckets deletes all buckets, events, projection rows and open
	// sessions; the next tick rebuilds from scratch
	ResetBuckets(ctx context.Context) error

	// BucketHealth reports scanned_at / baseline_count / stale per bucket
	BucketHealth(ctx context.Context, start time.Time) ([]BucketHealth, error)
}

// StorageRepo is the storage surface for discovery writes and state reads.
// Bound to a Queryer so the same queries run inside or outside a transaction
type StorageRepo interface {
	// Bucket state
	GetBucket(ctx context.Context, bucketID string) (Bucket, bool, error)
	EnsureBuckets(ctx context.Context, refs []BucketRef) (created int, err error)
	InitBaseline(ctx context.Context, ref BucketRef, slotIDs []string, now time.Time) error
	SetPrev(ctx context.Context, bucketID string, slotIDs []string, now time.Time) error

	// Drop log
	InsertDropEvents(ctx context.Context, evs []DropEvent) (inserted, deduped int, err error)
	RecentNewDropSlots(ctx context.Context, bucketID string, slotIDs []string, since time.Time) (map[string]bool, error)
	LatestNewDrops(ctx context.Context, bucketID string, slotIDs []string) (map[string]LastDrop, error)
	GetEventDebug(ctx context.Context, eventID int64) (EventDebug, bool, error)

	// Projection
	UpsertOpenSlots(ctx context.Context, bucketID string, slots []OpenSlot, now time.Time) error
	CloseSlots(ctx context.Context, bucketID string, slotIDs []string, now time.Time) error

	// Sessions
	OpenSessions(ctx context.Context, bucketID, timeBucket string, slots []OpenSlot, now time.Time) (opened int, err error)
	CloseSessions(ctx context.Context, bucketID string, slotIDs []string, now time.Time) (closed int, err error)

	// Venue catalog
	UpsertVenues(ctx context.Context, vs []VenueRef, now time.Time) error

	// Health / debug reads
	BucketHealth(ctx context.Context, refs []BucketRef, staleAfter time.Duration) ([]BucketHealth, error)
	BaselineSnapshots(ctx context.Context, refs []BucketRef) ([]BaselineSnapshot, error)
	EligibleBuckets(ctx context.Context, ids []string, scannedBefore time.Time) ([]string, error)

	// Admin
	DeleteAllBuckets(ctx context.Context) (int64, error)
	DeleteAllEvents(ctx context.Context) (int64, error)
	DeleteAllProjection(ctx context.Context) (int64, error)
	DeleteOpenSessions(ctx context.Context) (int64, error)
}

// EventSink receives committed drop events post-commit, best effort.
// The ClickHouse sink implements this; a nil sink disables it
type EventSink interface {
	AppendDropEvents(ctx context.Context, evs []DropEvent) error
}
