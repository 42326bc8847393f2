package domain

import "context"

// SchedulerPort is the public port exposed by the scheduler module
type SchedulerPort interface {
	// Run drives the tick loop and the daily job until ctx is done
	Run(ctx context.Context) error

	// TickOnce runs exactly one tick, for tests and manual runs
	TickOnce(ctx context.Context) (TickStats, error)

	// RunDailyOnce runs the daily sliding-window job immediately
	RunDailyOnce(ctx context.Context) error
}

// StorageRepo persists the scheduler heartbeat
type StorageRepo interface {
	UpsertHeartbeat(ctx context.Context, hb Heartbeat) error
}
