// Package repo provides read-only postgres access for the feed
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/platform/store"
	"dropwatch/internal/services/feed/domain"
)

// Filters are resolved query bounds; the service fills defaults before
// calling the repo
type Filters struct {
	Dates       []string
	TimeSlots   []string
	MinTime     string // "HH:MM:SS" or empty
	MaxTime     string
	OpenedAfter time.Time
	StaleCutoff time.Time
	Limit       int
}

// Repo is the read surface for the feed
type Repo interface {
	JustOpened(ctx context.Context, f Filters) ([]domain.JustOpenedRow, error)
	StillOpen(ctx context.Context, f Filters) ([]domain.StillOpenRow, error)
	CalendarCounts(ctx context.Context, openedAfter time.Time) ([]domain.CalendarDay, error)

	Heartbeat(ctx context.Context) (*domain.HeartbeatRow, error)
	LastScan(ctx context.Context) (*time.Time, error)

	BucketStatus(ctx context.Context, staleCutoff time.Time) ([]domain.BucketStatusRow, error)
	Baselines(ctx context.Context) ([]domain.BaselineRow, error)
	EventDebug(ctx context.Context, eventID int64) (domain.EventDebugRow, bool, error)
}

type (
	// PG is a binder that can bind the repo to a Queryer or TxRunner
	PG struct{}
	// queries implements the Repo interface
	queries struct{ q repokit.Queryer }
)

// NewPG returns a binder that can bind the repo to a Queryer or TxRunner
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind wires a Queryer to the repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

// JustOpened returns recent NEW_DROP events whose slot is still open,
// excluding stale buckets so the feed never shows data the poller stopped
// refreshing
func (r *queries) JustOpened(ctx context.Context, f Filters) ([]domain.JustOpenedRow, error) {
	const sql = `
SELECT e.slot_id, e.bucket_id, b.date_str, b.time_slot,
	COALESCE(e.venue_id,''), COALESCE(e.venue_name,''),
	COALESCE(e.slot_date,''), COALESCE(e.slot_time,''), e.time_bucket,
	COALESCE(e.neighborhood,''), COALESCE(e.price_range,''), e.opened_at
FROM drop_events e
JOIN discovery_buckets b ON b.bucket_id = e.bucket_id
WHERE e.event_type = 'NEW_DROP'
	AND e.opened_at >= $1
	AND b.scanned_at IS NOT NULL AND b.scanned_at >= $2
	AND (cardinality($3::text[]) = 0 OR b.date_str = ANY($3))
	AND (cardinality($4::text[]) = 0 OR b.time_slot = ANY($4))
	AND ($5 = '' OR e.slot_time >= $5)
	AND ($6 = '' OR e.slot_time <= $6)
	AND EXISTS (
		SELECT 1 FROM slot_availability sa
		WHERE sa.bucket_id = e.bucket_id AND sa.slot_id = e.slot_id AND sa.state = 'open'
	)
ORDER BY e.opened_at DESC
LIMIT $7
`
	return store.Many(ctx, r.q, func(row store.Row) (domain.JustOpenedRow, error) {
		var jr domain.JustOpenedRow
		err := row.Scan(&jr.SlotID, &jr.BucketID, &jr.DateStr, &jr.TimeSlot,
			&jr.VenueID, &jr.VenueName, &jr.SlotDate, &jr.SlotTime, &jr.TimeBucket,
			&jr.Neighborhood, &jr.PriceRange, &jr.OpenedAt)
		return jr, err
	}, sql,
		f.OpenedAfter.UTC(), f.StaleCutoff.UTC(),
		emptyOK(f.Dates), emptyOK(f.TimeSlots), f.MinTime, f.MaxTime, f.Limit)
}

// StillOpen returns open projection rows, excluding slots in the bucket's
// baseline: a slot that was open at baseline is ambient availability, not a
// drop, even when a flap put a projection row behind it
func (r *queries) StillOpen(ctx context.Context, f Filters) ([]domain.StillOpenRow, error) {
	const sql = `
SELECT sa.slot_id, sa.bucket_id, b.date_str, b.time_slot,
	COALESCE(sa.venue_id,''), COALESCE(v.venue_name,''),
	sa.opened_at, sa.last_seen_at
FROM slot_availability sa
JOIN discovery_buckets b ON b.bucket_id = sa.bucket_id
LEFT JOIN venues v ON v.venue_id = sa.venue_id
WHERE sa.state = 'open'
	AND NOT (sa.slot_id = ANY(COALESCE(b.baseline_slot_ids, '{}')))
	AND b.scanned_at IS NOT NULL AND b.scanned_at >= $1
	AND (cardinality($2::text[]) = 0 OR b.date_str = ANY($2))
	AND (cardinality($3::text[]) = 0 OR b.time_slot = ANY($3))
ORDER BY sa.opened_at DESC
LIMIT $4
`
	return store.Many(ctx, r.q, func(row store.Row) (domain.StillOpenRow, error) {
		var sr domain.StillOpenRow
		err := row.Scan(&sr.SlotID, &sr.BucketID, &sr.DateStr, &sr.TimeSlot,
			&sr.VenueID, &sr.VenueName, &sr.OpenedAt, &sr.LastSeenAt)
		return sr, err
	}, sql, f.StaleCutoff.UTC(), emptyOK(f.Dates), emptyOK(f.TimeSlots), f.Limit)
}

// CalendarCounts returns distinct venue counts per window date in one query
func (r *queries) CalendarCounts(ctx context.Context, openedAfter time.Time) ([]domain.CalendarDay, error) {
	const sql = `
SELECT d.date_str, COALESCE(j.n, 0), COALESCE(o.n, 0)
FROM (SELECT DISTINCT date_str FROM discovery_buckets) d
LEFT JOIN (
	SELECT b.date_str, COUNT(DISTINCT e.venue_id) AS n
	FROM drop_events e
	JOIN discovery_buckets b ON b.bucket_id = e.bucket_id
	WHERE e.event_type = 'NEW_DROP' AND e.opened_at >= $1
	GROUP BY b.date_str
) j ON j.date_str = d.date_str
LEFT JOIN (
	SELECT b.date_str, COUNT(DISTINCT sa.venue_id) AS n
	FROM slot_availability sa
	JOIN discovery_buckets b ON b.bucket_id = sa.bucket_id
	WHERE sa.state = 'open'
	GROUP BY b.date_str
) o ON o.date_str = d.date_str
ORDER BY d.date_str
`
	return store.Many(ctx, r.q, func(row store.Row) (domain.CalendarDay, error) {
		var cd domain.CalendarDay
		err := row.Scan(&cd.Date, &cd.JustOpened, &cd.StillOpen)
		return cd, err
	}, sql, openedAfter.UTC())
}

// Heartbeat returns the poller heartbeat, nil before the first tick
func (r *queries) Heartbeat(ctx context.Context) (*domain.HeartbeatRow, error) {
	row := r.q.QueryRow(ctx, `
		SELECT last_tick_at, next_tick_at, COALESCE(last_error, ''),
			baseline_echo_total, prev_echo_total
		FROM job_heartbeat
		WHERE name = 'poller'
	`)
	var hb domain.HeartbeatRow
	if err := row.Scan(&hb.LastTickAt, &hb.NextTickAt, &hb.LastError,
		&hb.BaselineEchoTotal, &hb.PrevEchoTotal); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &hb, nil
}

func (r *queries) LastScan(ctx context.Context) (*time.Time, error) {
	t, err := store.Scalar[*time.Time](ctx, r.q, `SELECT MAX(scanned_at) FROM discovery_buckets`)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *queries) BucketStatus(ctx context.Context, staleCutoff time.Time) ([]domain.BucketStatusRow, error) {
	const sql = `
SELECT bucket_id, date_str, time_slot, scanned_at,
	COALESCE(cardinality(baseline_slot_ids), 0),
	COALESCE(cardinality(prev_slot_ids), 0),
	(scanned_at IS NULL OR scanned_at < $1)
FROM discovery_buckets
ORDER BY bucket_id
`
	return store.Many(ctx, r.q, func(row store.Row) (domain.BucketStatusRow, error) {
		var br domain.BucketStatusRow
		err := row.Scan(&br.BucketID, &br.DateStr, &br.TimeSlot, &br.ScannedAt,
			&br.BaselineCount, &br.PrevCount, &br.Stale)
		return br, err
	}, sql, staleCutoff.UTC())
}

func (r *queries) Baselines(ctx context.Context) ([]domain.BaselineRow, error) {
	const sql = `
SELECT bucket_id,
	COALESCE(cardinality(baseline_slot_ids), 0),
	COALESCE(baseline_slot_ids, '{}'),
	baseline_scanned_at
FROM discovery_buckets
ORDER BY bucket_id
`
	return store.Many(ctx, r.q, func(row store.Row) (domain.BaselineRow, error) {
		var br domain.BaselineRow
		err := row.Scan(&br.BucketID, &br.BaselineCount, &br.BaselineSlotIDs, &br.BaselineScannedAt)
		return br, err
	}, sql)
}

func (r *queries) EventDebug(ctx context.Context, eventID int64) (domain.EventDebugRow, bool, error) {
	const sql = `
SELECT e.id, e.slot_id, e.bucket_id, COALESCE(e.venue_id,''), COALESCE(e.venue_name,''), e.opened_at,
	COALESCE(e.slot_id = ANY(b.baseline_slot_ids), false),
	COALESCE(e.slot_id = ANY(b.prev_slot_ids), false)
FROM drop_events e
LEFT JOIN discovery_buckets b ON b.bucket_id = e.bucket_id
WHERE e.id = $1
`
	var d domain.EventDebugRow
	row := r.q.QueryRow(ctx, sql, eventID)
	if err := row.Scan(&d.EventID, &d.SlotID, &d.BucketID, &d.VenueID, &d.VenueName,
		&d.EmittedAt, &d.InBaseline, &d.InPrev); err != nil {
		if isNoRows(err) {
			return domain.EventDebugRow{}, false, nil
		}
		return domain.EventDebugRow{}, false, err
	}
	switch {
	case d.InBaseline:
		d.Reason = "slot is in baseline now; a NEW_DROP here is a baseline echo"
	case d.InPrev:
		d.Reason = "in prev now; emitted as opened vs prev and new vs baseline, may have stayed open"
	default:
		d.Reason = "opened vs prev and new vs baseline; not in baseline or prev now"
	}
	return d, true, nil
}

// emptyOK keeps pgx from sending a nil array where the SQL expects text[]
func emptyOK(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
