// Package repo provides postgres access for aggregation and retention
package repo

import (
	"context"
	"time"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/services/rollup/domain"
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

func (r *queries) StartRun(ctx context.Context, day string, now time.Time) (int64, error) {
	var id int64
	row := r.q.QueryRow(ctx, `
		INSERT INTO rollup_runs (run_day, started_at, status)
		VALUES ($1, $2, 'running')
		RETURNING id
	`, day, now.UTC())
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *queries) FinishRun(ctx context.Context, runID int64, fin domain.FinishInfo) error {
	_, err := r.q.Exec(ctx, `
		UPDATE rollup_runs SET
			finished_at = now(),
			status = $2,
			sessions_aggregated = $3,
			venue_rows = $4,
			market_rows = $5,
			rolling_rows = $6,
			pruned_buckets = $7,
			pruned_events = $8,
			pruned_sessions = $9,
			pruned_metrics = $10,
			pruned_projection = $11,
			total_ms = $12,
			error = NULLIF($13, '')
		WHERE id = $1
	`, runID, fin.Status,
		fin.Stats.SessionsAggregated, fin.Stats.VenueRows, fin.Stats.MarketRows, fin.Stats.RollingRows,
		fin.Stats.PrunedBuckets, fin.Stats.PrunedEvents, fin.Stats.PrunedSessions,
		fin.Stats.PrunedMetrics, fin.Stats.PrunedProjection,
		fin.TotalMS, fin.ErrText)
	return err
}

// ClosedSessionsPending returns closed, unaggregated sessions for buckets
// strictly before cutoffDate; the date prefix of bucket_id sorts correctly
func (r *queries) ClosedSessionsPending(ctx context.Context, cutoffDate string, limit int) ([]domain.SessionRow, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, bucket_id, slot_id, COALESCE(venue_id,''), opened_at, closed_at,
			COALESCE(duration_seconds, 0), COALESCE(time_bucket,'')
		FROM availability_sessions
		WHERE closed_at IS NOT NULL
		  AND aggregated_at IS NULL
		  AND bucket_id < $1
		ORDER BY bucket_id, id
		LIMIT $2
	`, cutoffDate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SessionRow
	for rows.Next() {
		var s domain.SessionRow
		if err := rows.Scan(&s.ID, &s.BucketID, &s.SlotID, &s.VenueID,
			&s.OpenedAt, &s.ClosedAt, &s.DurationSeconds, &s.TimeBucket); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// VenueDropDays returns per-venue per-day NEW_DROP counts from the drop log
// since sinceDate, the input to rolling metrics
func (r *queries) VenueDropDays(ctx context.Context, sinceDate string) ([]domain.VenueDropDay, error) {
	rows, err := r.q.Query(ctx, `
		SELECT venue_id,
			COALESCE(slot_date, substring(bucket_id from 1 for 10)) AS day,
			COUNT(*) FILTER (WHERE event_type = 'NEW_DROP'),
			COUNT(*) FILTER (WHERE event_type = 'NEW_DROP' AND time_bucket = 'prime'),
			COALESCE(AVG(duration_seconds) FILTER (WHERE event_type = 'CLOSED'), 0)
		FROM drop_events
		WHERE venue_id IS NOT NULL
		  AND COALESCE(slot_date, substring(bucket_id from 1 for 10)) >= $1
		GROUP BY venue_id, day
		ORDER BY venue_id, day
	`, sinceDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.VenueDropDay
	for rows.Next() {
		var d domain.VenueDropDay
		if err := rows.Scan(&d.VenueID, &d.Day, &d.NewDrops, &d.PrimeDrops, &d.AvgDurationSeconds); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *queries) UpsertVenueMetrics(ctx context.Context, rows []domain.VenueDayMetrics, now time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	venues := make([]string, 0, len(rows))
	dates := make([]string, 0, len(rows))
	buckets := make([]string, 0, len(rows))
	drops := make([]int, 0, len(rows))
	closes := make([]int, 0, len(rows))
	avgs := make([]float64, 0, len(rows))
	scores := make([]float64, 0, len(rows))
	for _, m := range rows {
		venues = append(venues, m.VenueID)
		dates = append(dates, m.WindowDate)
		buckets = append(buckets, m.TimeBucket)
		drops = append(drops, m.NewDrops)
		closes = append(closes, m.ClosedCount)
		avgs = append(avgs, m.AvgDurationSeconds)
		scores = append(scores, m.ScarcityScore)
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO venue_metrics (venue_id, window_date, time_bucket, new_drops, closed_count, avg_duration_seconds, scarcity_score, updated_at)
		SELECT t.venue_id, t.window_date, t.time_bucket, t.new_drops, t.closed_count, t.avg_dur, t.score, $1
		FROM UNNEST($2::text[], $3::text[], $4::text[], $5::int[], $6::int[], $7::float8[], $8::float8[])
			AS t(venue_id, window_date, time_bucket, new_drops, closed_count, avg_dur, score)
		ON CONFLICT (venue_id, window_date, time_bucket) DO UPDATE SET
			new_drops = venue_metrics.new_drops + EXCLUDED.new_drops,
			closed_count = venue_metrics.closed_count + EXCLUDED.closed_count,
			avg_duration_seconds = EXCLUDED.avg_duration_seconds,
			scarcity_score = EXCLUDED.scarcity_score,
			updated_at = EXCLUDED.updated_at
	`, now.UTC(), venues, dates, buckets, drops, closes, avgs, scores)
	return err
}

func (r *queries) UpsertMarketMetrics(ctx context.Context, windowDate, metricType string, value []byte, now time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO market_metrics (window_date, metric_type, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (window_date, metric_type) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, windowDate, metricType, value, now.UTC())
	return err
}

func (r *queries) UpsertVenueRollingMetrics(ctx context.Context, rows []domain.VenueRollingMetrics, now time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	venues := make([]string, 0, len(rows))
	dates := make([]string, 0, len(rows))
	drops := make([]int, 0, len(rows))
	primes := make([]int, 0, len(rows))
	avgs := make([]float64, 0, len(rows))
	rarities := make([]float64, 0, len(rows))
	rates := make([]float64, 0, len(rows))
	trends := make([]string, 0, len(rows))
	for _, m := range rows {
		venues = append(venues, m.VenueID)
		dates = append(dates, m.AsOfDate)
		drops = append(drops, m.NewDropCount)
		primes = append(primes, m.PrimeTimeDrops)
		avgs = append(avgs, m.AvgDurationSeconds)
		rarities = append(rarities, m.RarityScore)
		rates = append(rates, m.AvailabilityRate)
		trends = append(trends, m.Trend)
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO venue_rolling_metrics (venue_id, as_of_date, new_drop_count, prime_time_drops, avg_duration_seconds, rarity_score, availability_rate, trend, updated_at)
		SELECT t.venue_id, t.as_of_date, t.new_drops, t.prime_drops, t.avg_dur, t.rarity, t.rate, t.trend, $1
		FROM UNNEST($2::text[], $3::text[], $4::int[], $5::int[], $6::float8[], $7::float8[], $8::float8[], $9::text[])
			AS t(venue_id, as_of_date, new_drops, prime_drops, avg_dur, rarity, rate, trend)
		ON CONFLICT (venue_id, as_of_date) DO UPDATE SET
			new_drop_count = EXCLUDED.new_drop_count,
			prime_time_drops = EXCLUDED.prime_time_drops,
			avg_duration_seconds = EXCLUDED.avg_duration_seconds,
			rarity_score = EXCLUDED.rarity_score,
			availability_rate = EXCLUDED.availability_rate,
			trend = EXCLUDED.trend,
			updated_at = EXCLUDED.updated_at
	`, now.UTC(), venues, dates, drops, primes, avgs, rarities, rates, trends)
	return err
}

// StampAggregated marks sessions consumed; aggregated_at never moves once set
func (r *queries) StampAggregated(ctx context.Context, ids []int64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE availability_sessions
		SET aggregated_at = $2
		WHERE id = ANY($1) AND aggregated_at IS NULL
	`, ids, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteClosedProjection keeps the projection currently-open only; closed rows
// are only deleted once every closed session has been stamped
func (r *queries) DeleteClosedProjection(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM slot_availability sa
		WHERE sa.state = 'closed'
		  AND NOT EXISTS (
			SELECT 1 FROM availability_sessions s
			WHERE s.bucket_id = sa.bucket_id AND s.slot_id = sa.slot_id
			  AND s.closed_at IS NOT NULL AND s.aggregated_at IS NULL
		  )
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) PruneBuckets(ctx context.Context, beforeDate string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM discovery_buckets WHERE date_str < $1`, beforeDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM drop_events WHERE opened_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneSessions never deletes unaggregated sessions, whatever their age
func (r *queries) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM availability_sessions
		WHERE aggregated_at IS NOT NULL AND closed_at < $1
	`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneProjection drops projection rows for buckets dated before beforeDate;
// the date prefix of bucket_id sorts correctly
func (r *queries) PruneProjection(ctx context.Context, beforeDate string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM slot_availability WHERE bucket_id < $1`, beforeDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneOpenSessions drops never-closed sessions of buckets dated before
// beforeDate. Closed unaggregated sessions are untouched, whatever their age
func (r *queries) PruneOpenSessions(ctx context.Context, beforeDate string) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM availability_sessions
		WHERE closed_at IS NULL AND bucket_id < $1
	`, beforeDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queries) PruneMetrics(ctx context.Context, beforeDate string) (int64, error) {
	var total int64
	tag, err := r.q.Exec(ctx, `DELETE FROM venue_metrics WHERE window_date < $1`, beforeDate)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	tag, err = r.q.Exec(ctx, `DELETE FROM market_metrics WHERE window_date < $1`, beforeDate)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	tag, err = r.q.Exec(ctx, `DELETE FROM venue_rolling_metrics WHERE as_of_date < $1`, beforeDate)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	return total, nil
}
