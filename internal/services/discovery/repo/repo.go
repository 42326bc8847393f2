// Package repo provides postgres access for discovery state and writes
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/services/discovery/domain"
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

func (r *queries) GetBucket(ctx context.Context, bucketID string) (domain.Bucket, bool, error) {
	var b domain.Bucket
	row := r.q.QueryRow(ctx, `
		SELECT bucket_id, date_str, time_slot, baseline_slot_ids, prev_slot_ids, scanned_at, baseline_scanned_at
		FROM discovery_buckets
		WHERE bucket_id = $1
	`, bucketID)
	err := row.Scan(&b.BucketID, &b.DateStr, &b.TimeSlot, &b.Baseline, &b.Prev, &b.ScannedAt, &b.BaselineScannedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.Bucket{}, false, nil
		}
		return domain.Bucket{}, false, err
	}
	return b, true, nil
}

// EnsureBuckets adds only the missing rows: one read, one bulk insert
func (r *queries) EnsureBuckets(ctx context.Context, refs []domain.BucketRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(refs))
	dates := make([]string, 0, len(refs))
	slots := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.BucketID)
		dates = append(dates, ref.DateStr)
		slots = append(slots, ref.TimeSlot)
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO discovery_buckets (bucket_id, date_str, time_slot)
		SELECT * FROM UNNEST($1::text[], $2::text[], $3::text[])
		ON CONFLICT (bucket_id) DO NOTHING
	`, ids, dates, slots)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// InitBaseline sets baseline = prev = slotIDs. Used both for bootstrap and
// for in-place baseline refresh; any previous baseline is replaced
func (r *queries) InitBaseline(ctx context.Context, ref domain.BucketRef, slotIDs []string, now time.Time) error {
	if slotIDs == nil {
		slotIDs = []string{} // empty baseline is still initialized
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO discovery_buckets (bucket_id, date_str, time_slot, baseline_slot_ids, prev_slot_ids, scanned_at, baseline_scanned_at)
		VALUES ($1, $2, $3, $4, $4, $5, $5)
		ON CONFLICT (bucket_id) DO UPDATE SET
			baseline_slot_ids = EXCLUDED.baseline_slot_ids,
			prev_slot_ids = EXCLUDED.prev_slot_ids,
			scanned_at = EXCLUDED.scanned_at,
			baseline_scanned_at = EXCLUDED.baseline_scanned_at
	`, ref.BucketID, ref.DateStr, ref.TimeSlot, slotIDs, now.UTC())
	return err
}

func (r *queries) SetPrev(ctx context.Context, bucketID string, slotIDs []string, now time.Time) error {
	if slotIDs == nil {
		slotIDs = []string{}
	}
	_, err := r.q.Exec(ctx, `
		UPDATE discovery_buckets SET prev_slot_ids = $2, scanned_at = $3
		WHERE bucket_id = $1
	`, bucketID, slotIDs, now.UTC())
	return err
}

// InsertDropEvents appends events; the unique dedupe_key makes retried polls
// write each event exactly once
func (r *queries) InsertDropEvents(ctx context.Context, evs []domain.DropEvent) (int, int, error) {
	const insertSQL = `
		INSERT INTO drop_events (
			bucket_id, slot_id, venue_id, venue_name, event_type,
			opened_at, closed_at, duration_seconds,
			time_bucket, slot_date, slot_time, provider,
			neighborhood, price_range, payload, dedupe_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (dedupe_key) DO NOTHING
	`
	inserted := 0
	for _, e := range evs {
		tag, err := r.q.Exec(ctx, insertSQL,
			e.BucketID, e.SlotID, nullStr(e.VenueID), nullStr(e.VenueName), e.EventType,
			e.OpenedAt.UTC(), tsPtr(e.ClosedAt), e.DurationSeconds,
			e.TimeBucket, nullStr(e.SlotDate), nullStr(e.SlotTime), e.Provider,
			nullStr(e.Neighborhood), nullStr(e.PriceRange), e.Payload, e.DedupeKey,
		)
		if err != nil {
			return inserted, len(evs) - inserted, err
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, len(evs) - inserted, nil
}

// RecentNewDropSlots reports which of slotIDs already have a NEW_DROP in the
// bucket since the TTL cutoff; those are suppressed (flap dedupe)
func (r *queries) RecentNewDropSlots(ctx context.Context, bucketID string, slotIDs []string, since time.Time) (map[string]bool, error) {
	out := make(map[string]bool, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT slot_id
		FROM drop_events
		WHERE bucket_id = $1 AND event_type = 'NEW_DROP' AND slot_id = ANY($2) AND opened_at >= $3
	`, bucketID, slotIDs, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out[sid] = true
	}
	return out, rows.Err()
}

// LatestNewDrops returns the most recent NEW_DROP per slot in one round-trip
func (r *queries) LatestNewDrops(ctx context.Context, bucketID string, slotIDs []string) (map[string]domain.LastDrop, error) {
	out := make(map[string]domain.LastDrop, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT ON (slot_id)
			slot_id, COALESCE(venue_id,''), COALESCE(venue_name,''), opened_at,
			time_bucket, COALESCE(slot_date,''), COALESCE(slot_time,''), provider
		FROM drop_events
		WHERE bucket_id = $1 AND event_type = 'NEW_DROP' AND slot_id = ANY($2)
		ORDER BY slot_id, opened_at DESC
	`, bucketID, slotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.LastDrop
		if err := rows.Scan(&d.SlotID, &d.VenueID, &d.VenueName, &d.OpenedAt,
			&d.TimeBucket, &d.SlotDate, &d.SlotTime, &d.Provider); err != nil {
			return nil, err
		}
		out[d.SlotID] = d
	}
	return out, rows.Err()
}

func (r *queries) GetEventDebug(ctx context.Context, eventID int64) (domain.EventDebug, bool, error) {
	var d domain.EventDebug
	row := r.q.QueryRow(ctx, `
		SELECT e.id, e.slot_id, e.bucket_id, COALESCE(e.venue_id,''), COALESCE(e.venue_name,''), e.opened_at,
			COALESCE(e.slot_id = ANY(b.baseline_slot_ids), false),
			COALESCE(e.slot_id = ANY(b.prev_slot_ids), false)
		FROM drop_events e
		LEFT JOIN discovery_buckets b ON b.bucket_id = e.bucket_id
		WHERE e.id = $1
	`, eventID)
	var emitted time.Time
	if err := row.Scan(&d.EventID, &d.SlotID, &d.BucketID, &d.VenueID, &d.VenueName, &emitted, &d.InBaseline, &d.InPrev); err != nil {
		if isNoRows(err) {
			return domain.EventDebug{}, false, nil
		}
		return domain.EventDebug{}, false, err
	}
	d.EmittedAt = &emitted
	switch {
	case d.InBaseline:
		d.Reason = "slot is in baseline now; a NEW_DROP here is a baseline echo"
	case d.InPrev:
		d.Reason = "in prev now; opened vs prev and new vs baseline when emitted, may have stayed open"
	default:
		d.Reason = "opened vs prev and new vs baseline; not in baseline or prev now"
	}
	return d, true, nil
}

// UpsertOpenSlots applies the projection writes with an apply-if-newer guard
// so reordered or replayed writes cannot move a row backwards
func (r *queries) UpsertOpenSlots(ctx context.Context, bucketID string, slots []domain.OpenSlot, now time.Time) error {
	if len(slots) == 0 {
		return nil
	}
	ids := make([]string, 0, len(slots))
	venues := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.SlotID)
		venues = append(venues, s.VenueID)
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO slot_availability (bucket_id, slot_id, venue_id, state, opened_at, last_seen_at, updated_at)
		SELECT $1, t.slot_id, t.venue_id, 'open', $2, $2, $2
		FROM UNNEST($3::text[], $4::text[]) AS t(slot_id, venue_id)
		ON CONFLICT (bucket_id, slot_id) DO UPDATE SET
			state = 'open',
			opened_at = CASE WHEN slot_availability.state = 'closed' THEN EXCLUDED.opened_at ELSE slot_availability.opened_at END,
			closed_at = NULL,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at
		WHERE slot_availability.updated_at < EXCLUDED.updated_at
	`, bucketID, now.UTC(), ids, venues)
	return err
}

func (r *queries) CloseSlots(ctx context.Context, bucketID string, slotIDs []string, now time.Time) error {
	if len(slotIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		UPDATE slot_availability
		SET state = 'closed', closed_at = $3, updated_at = $3
		WHERE bucket_id = $1 AND slot_id = ANY($2) AND state = 'open' AND updated_at < $3
	`, bucketID, slotIDs, now.UTC())
	return err
}

// OpenSessions inserts a session per slot unless one is already open for the
// (bucket, slot); the NOT EXISTS pre-check keeps at most one open session
func (r *queries) OpenSessions(ctx context.Context, bucketID, timeBucket string, slots []domain.OpenSlot, now time.Time) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(slots))
	venues := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.SlotID)
		venues = append(venues, s.VenueID)
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO availability_sessions (bucket_id, slot_id, venue_id, time_bucket, opened_at)
		SELECT $1, t.slot_id, t.venue_id, $2, $3
		FROM UNNEST($4::text[], $5::text[]) AS t(slot_id, venue_id)
		WHERE NOT EXISTS (
			SELECT 1 FROM availability_sessions s
			WHERE s.bucket_id = $1 AND s.slot_id = t.slot_id AND s.closed_at IS NULL
		)
	`, bucketID, timeBucket, now.UTC(), ids, venues)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *queries) CloseSessions(ctx context.Context, bucketID string, slotIDs []string, now time.Time) (int, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE availability_sessions
		SET closed_at = $3,
			duration_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - opened_at)))::int
		WHERE bucket_id = $1 AND slot_id = ANY($2) AND closed_at IS NULL
	`, bucketID, slotIDs, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *queries) UpsertVenues(ctx context.Context, vs []domain.VenueRef, now time.Time) error {
	if len(vs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(vs))
	names := make([]string, 0, len(vs))
	keys := make([]string, 0, len(vs))
	for _, v := range vs {
		if v.VenueID == "" {
			continue
		}
		ids = append(ids, v.VenueID)
		names = append(names, v.VenueName)
		keys = append(keys, v.NameKey)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO venues (venue_id, venue_name, name_key, last_seen_at)
		SELECT t.venue_id, NULLIF(t.venue_name,''), NULLIF(t.name_key,''), $1
		FROM UNNEST($2::text[], $3::text[], $4::text[]) AS t(venue_id, venue_name, name_key)
		ON CONFLICT (venue_id) DO UPDATE SET
			venue_name = COALESCE(NULLIF(EXCLUDED.venue_name,''), venues.venue_name),
			name_key = COALESCE(NULLIF(EXCLUDED.name_key,''), venues.name_key),
			last_seen_at = EXCLUDED.last_seen_at
	`, now.UTC(), ids, names, keys)
	return err
}

// BucketHealth returns one row per expected ref, even for rows that do not
// exist yet, in a single query
func (r *queries) BucketHealth(ctx context.Context, refs []domain.BucketRef, staleAfter time.Duration) ([]domain.BucketHealth, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(refs))
	dates := make([]string, 0, len(refs))
	slots := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.BucketID)
		dates = append(dates, ref.DateStr)
		slots = append(slots, ref.TimeSlot)
	}
	cutoff := time.Now().UTC().Add(-staleAfter)
	rows, err := r.q.Query(ctx, `
		SELECT t.bucket_id, t.date_str, t.time_slot,
			b.scanned_at,
			COALESCE(cardinality(b.baseline_slot_ids), 0),
			(b.scanned_at IS NULL OR b.scanned_at < $4)
		FROM UNNEST($1::text[], $2::text[], $3::text[]) AS t(bucket_id, date_str, time_slot)
		LEFT JOIN discovery_buckets b ON b.bucket_id = t.bucket_id
		ORDER BY t.bucket_id
	`, ids, dates, slots, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BucketHealth
	for rows.Next() {
		var h domain.BucketHealth
		if err := rows.Scan(&h.BucketID, &h.DateStr, &h.TimeSlot, &h.ScannedAt, &h.BaselineCount, &h.Stale); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *queries) BaselineSnapshots(ctx context.Context, refs []domain.BucketRef) ([]domain.BaselineSnapshot, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.BucketID)
	}
	rows, err := r.q.Query(ctx, `
		SELECT bucket_id, date_str, time_slot,
			COALESCE(cardinality(baseline_slot_ids), 0),
			COALESCE(baseline_slot_ids, '{}'),
			baseline_scanned_at
		FROM discovery_buckets
		WHERE bucket_id = ANY($1)
		ORDER BY bucket_id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BaselineSnapshot
	for rows.Next() {
		var s domain.BaselineSnapshot
		if err := rows.Scan(&s.BucketID, &s.DateStr, &s.TimeSlot, &s.BaselineCount, &s.BaselineSlotIDs, &s.BaselineScannedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *queries) EligibleBuckets(ctx context.Context, ids []string, scannedBefore time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT t.bucket_id
		FROM UNNEST($1::text[]) AS t(bucket_id)
		LEFT JOIN discovery_buckets b ON b.bucket_id = t.bucket_id
		WHERE b.bucket_id IS NULL OR b.scanned_at IS NULL OR b.scanned_at < $2
		ORDER BY b.scanned_at NULLS FIRST
	`, ids, scannedBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *queries) DeleteAllBuckets(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM discovery_buckets`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) DeleteAllEvents(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM drop_events`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) DeleteAllProjection(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM slot_availability`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) DeleteOpenSessions(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_sessions WHERE closed_at IS NULL`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
