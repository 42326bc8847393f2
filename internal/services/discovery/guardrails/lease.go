// Package guardrails provides the per-bucket poll lease
package guardrails

import (
	"context"
	"errors"
	"time"

	"dropwatch/internal/modkit"
	"dropwatch/internal/platform/store"

	"github.com/google/uuid"
)

// ErrLeaseHeld signals another worker owns the bucket already
var ErrLeaseHeld = errors.New("discovery: bucket lease already held")

// LeaseFunc runs do while holding the per-bucket lease
type LeaseFunc func(ctx context.Context, bucketID string, do func(context.Context) error) error

// MakeBucketLease returns a LeaseFunc backed by the discovery_bucket_leases
// table. A claim succeeds when no row exists or the existing claim is older
// than ttl (a crashed worker's lease expires instead of wedging the bucket).
// The lease is released on completion; expiry is only the crash fallback
func MakeBucketLease(deps modkit.Deps, ttl time.Duration) LeaseFunc {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	owner := uuid.NewString()
	return func(ctx context.Context, bucketID string, do func(context.Context) error) error {
		var claimed bool
		err := deps.PG.Tx(ctx, func(q store.RowQuerier) error {
			rows, err := q.Query(ctx, `
				INSERT INTO discovery_bucket_leases (bucket_id, leased_by, claimed_at)
				VALUES ($1, $2, now())
				ON CONFLICT (bucket_id) DO UPDATE SET leased_by = $2, claimed_at = now()
				WHERE discovery_bucket_leases.claimed_at < now() - $3::interval
				RETURNING true
			`, bucketID, owner, ttl.String())
			if err != nil {
				return err
			}
			defer rows.Close()
			if rows.Next() {
				claimed = true
			}
			return rows.Err()
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld // clean skip
		}
		defer func() {
			// best effort release of our own claim only; expiry covers the rest
			rctx := context.WithoutCancel(ctx)
			_ = deps.PG.Tx(rctx, func(q store.RowQuerier) error {
				_, err := q.Exec(rctx, `
					DELETE FROM discovery_bucket_leases
					WHERE bucket_id = $1 AND leased_by = $2
				`, bucketID, owner)
				return err
			})
		}()
		return do(ctx)
	}
}
