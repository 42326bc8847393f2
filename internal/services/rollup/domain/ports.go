package domain

import (
	"context"
	"time"
)

// RollupPort is the public port exposed by the rollup module
type RollupPort interface {
	// RunDaily aggregates closed sessions into metrics, rolls venue metrics
	// forward, then applies retention. Prune failures are logged, not fatal
	RunDaily(ctx context.Context, today time.Time) (Stats, error)
}

// StorageRepo is the storage surface for aggregation and retention
type StorageRepo interface {
	// Run bookkeeping
	StartRun(ctx context.Context, day string, now time.Time) (int64, error)
	FinishRun(ctx context.Context, runID int64, fin FinishInfo) error

	// Aggregation inputs
	ClosedSessionsPending(ctx context.Context, cutoffDate string, limit int) ([]SessionRow, error)
	VenueDropDays(ctx context.Context, sinceDate string) ([]VenueDropDay, error)

	// Metrics writes, idempotent upserts
	UpsertVenueMetrics(ctx context.Context, rows []VenueDayMetrics, now time.Time) error
	UpsertMarketMetrics(ctx context.Context, windowDate, metricType string, value []byte, now time.Time) error
	UpsertVenueRollingMetrics(ctx context.Context, rows []VenueRollingMetrics, now time.Time) error

	// StampAggregated marks consumed sessions in the same transaction as the
	// metric upserts so a session is counted at most once
	StampAggregated(ctx context.Context, ids []int64, now time.Time) (int64, error)

	// DeleteClosedProjection drops projection rows whose sessions were
	// aggregated, keeping the projection "currently open only"
	DeleteClosedProjection(ctx context.Context) (int64, error)

	// Retention
	PruneBuckets(ctx context.Context, beforeDate string) (int64, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
	PruneSessions(ctx context.Context, before time.Time) (int64, error)
	PruneMetrics(ctx context.Context, beforeDate string) (int64, error)

	// PruneProjection removes projection rows for buckets dated before
	// beforeDate, matching the bucket retention horizon
	PruneProjection(ctx context.Context, beforeDate string) (int64, error)

	// PruneOpenSessions removes never-closed sessions of buckets dated
	// before beforeDate; with the bucket gone they can never close, so
	// they carry no duration to aggregate
	PruneOpenSessions(ctx context.Context, beforeDate string) (int64, error)
}
