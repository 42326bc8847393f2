// Package repo persists the scheduler heartbeat
package repo

import (
	"context"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/services/scheduler/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

func (r *queries) UpsertHeartbeat(ctx context.Context, hb domain.Heartbeat) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO job_heartbeat (
			name, last_tick_at, next_tick_at, last_error,
			emitted, closed, baseline_echo_total, prev_echo_total
		)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			last_tick_at = EXCLUDED.last_tick_at,
			next_tick_at = EXCLUDED.next_tick_at,
			last_error = EXCLUDED.last_error,
			emitted = job_heartbeat.emitted + EXCLUDED.emitted,
			closed = job_heartbeat.closed + EXCLUDED.closed,
			baseline_echo_total = job_heartbeat.baseline_echo_total + EXCLUDED.baseline_echo_total,
			prev_echo_total = job_heartbeat.prev_echo_total + EXCLUDED.prev_echo_total
	`, hb.Name, hb.LastTickAt.UTC(), hb.NextTickAt.UTC(), hb.LastError,
		hb.Emitted, hb.Closed, hb.BaselineEchoTotal, hb.PrevEchoTotal)
	return err
}
