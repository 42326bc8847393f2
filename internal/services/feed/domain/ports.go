package domain

import "context"

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	JustOpened(ctx context.Context, q FeedQuery) ([]JustOpenedDay, error)
	StillOpen(ctx context.Context, q FeedQuery) ([]StillOpenDay, error)
	Query(ctx context.Context, q FeedQuery) (Snapshot, error)
	Calendar(ctx context.Context) ([]CalendarDay, error)
	Health(ctx context.Context) (HealthView, error)

	BucketStatus(ctx context.Context) ([]BucketStatusRow, error)
	Baselines(ctx context.Context) ([]BaselineRow, error)
	EventDebug(ctx context.Context, eventID int64) (EventDebugRow, bool, error)
}
