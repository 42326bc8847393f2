// Package service implements the daily aggregation and retention run
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/platform/logger"
	"dropwatch/internal/services/rollup/domain"
)

// Config controls the rollup window and retention policies
type Config struct {
	WindowDays int

	EventRetentionDays   int
	SessionRetentionDays int
	MetricsRetentionDays int

	// BatchLimit bounds how many sessions one transaction consumes
	BatchLimit int
}

func (c *Config) defaults() {
	if c.WindowDays <= 0 {
		c.WindowDays = 14
	}
	if c.EventRetentionDays <= 0 {
		c.EventRetentionDays = 14
	}
	if c.SessionRetentionDays <= 0 {
		c.SessionRetentionDays = 90
	}
	if c.MetricsRetentionDays <= 0 {
		c.MetricsRetentionDays = 90
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 5000
	}
}

// Service implements domain.RollupPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]
	Cfg    Config

	now func() time.Time
}

// New constructs the rollup service
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], cfg Config) *Service {
	if db == nil {
		panic("rollup.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("rollup.Service requires a non nil Repo binder")
	}
	cfg.defaults()
	return &Service{DB: db, Binder: binder, Cfg: cfg, now: time.Now}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RunDaily aggregates closed sessions into venue and market metrics, rolls
// venue metrics forward over the window, then applies retention. The metric
// upserts and the aggregated_at stamp share one transaction per batch, so a
// session is counted at most once. Prune failures are logged and retried the
// next day
func (s *Service) RunDaily(ctx context.Context, today time.Time) (stats domain.Stats, retErr error) {
	day := today.Format("2006-01-02")
	l := logger.C(ctx).With().Str("mod", "rollup").Str("day", day).Logger()
	l.Info().Msg("rollup: daily run start")
	start := time.Now()

	var runID int64
	if err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		id, e := s.Binder.Bind(q).StartRun(ctx, day, s.now().UTC())
		runID = id
		return e
	}); err != nil {
		return stats, err
	}

	// Always record the run outcome, even on error
	defer func() {
		rctx := context.WithoutCancel(ctx)
		_ = s.DB.Tx(rctx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).FinishRun(rctx, runID, domain.FinishInfo{
				Status:  map[bool]string{true: "error", false: "done"}[retErr != nil],
				Stats:   stats,
				TotalMS: int(time.Since(start).Milliseconds()),
				ErrText: errText(retErr),
			})
		})
	}()

	if err := s.aggregate(ctx, day, &stats); err != nil {
		retErr = err
		return stats, err
	}

	if err := s.rollForward(ctx, today, &stats); err != nil {
		retErr = err
		return stats, err
	}

	s.prune(ctx, today, &stats)

	l.Info().
		Int("sessions", stats.SessionsAggregated).
		Int("venue_rows", stats.VenueRows).
		Int("market_rows", stats.MarketRows).
		Int("rolling_rows", stats.RollingRows).
		Int64("pruned_buckets", stats.PrunedBuckets).
		Int64("pruned_events", stats.PrunedEvents).
		Int64("pruned_sessions", stats.PrunedSessions).
		Int64("pruned_metrics", stats.PrunedMetrics).
		Int64("pruned_projection", stats.PrunedProjection).
		Msg("rollup: daily run complete")
	return stats, nil
}

// aggregate consumes closed sessions in bounded batches until none remain
func (s *Service) aggregate(ctx context.Context, cutoffDate string, stats *domain.Stats) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var consumed int
		err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
			repo := s.Binder.Bind(q)
			sessions, e := repo.ClosedSessionsPending(ctx, cutoffDate, s.Cfg.BatchLimit)
			if e != nil {
				return e
			}
			if len(sessions) == 0 {
				return nil
			}
			now := s.now().UTC()

			venueRows := venueMetricsFrom(sessions)
			if e := repo.UpsertVenueMetrics(ctx, venueRows, now); e != nil {
				return e
			}

			marketDays := marketMetricsFrom(sessions)
			for date, value := range marketDays {
				payload, me := json.Marshal(value)
				if me != nil {
					return me
				}
				if e := repo.UpsertMarketMetrics(ctx, date, domain.MetricTypeDailySummary, payload, now); e != nil {
					return e
				}
				stats.MarketRows++
			}

			ids := make([]int64, 0, len(sessions))
			for _, sr := range sessions {
				ids = append(ids, sr.ID)
			}
			stamped, e := repo.StampAggregated(ctx, ids, now)
			if e != nil {
				return e
			}

			consumed = len(sessions)
			stats.SessionsAggregated += int(stamped)
			stats.VenueRows += len(venueRows)
			return nil
		})
		if err != nil {
			return err
		}
		if consumed == 0 {
			break
		}
	}

	// Projection cleanup runs after every pending session is stamped
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		n, e := s.Binder.Bind(q).DeleteClosedProjection(ctx)
		stats.PrunedProjection += n
		return e
	})
}

// rollForward recomputes rolling venue metrics over the window from the drop
// log; a full recompute every day keeps the row correct under event retention
func (s *Service) rollForward(ctx context.Context, today time.Time, stats *domain.Stats) error {
	since := today.AddDate(0, 0, -s.Cfg.WindowDays).Format("2006-01-02")
	asOf := today.Format("2006-01-02")

	var days []domain.VenueDropDay
	if err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		d, e := s.Binder.Bind(q).VenueDropDays(ctx, since)
		days = d
		return e
	}); err != nil {
		return err
	}

	rows := RollingMetrics(days, today, s.Cfg.WindowDays)
	for i := range rows {
		rows[i].AsOfDate = asOf
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).UpsertVenueRollingMetrics(ctx, rows, s.now().UTC())
	})
	if err == nil {
		stats.RollingRows += len(rows)
	}
	return err
}

// prune applies retention; each policy runs in its own transaction and a
// failure only skips that policy until the next run
func (s *Service) prune(ctx context.Context, today time.Time, stats *domain.Stats) {
	day := today.Format("2006-01-02")
	eventCutoff := today.AddDate(0, 0, -s.Cfg.EventRetentionDays)
	sessionCutoff := today.AddDate(0, 0, -s.Cfg.SessionRetentionDays)
	metricsCutoff := today.AddDate(0, 0, -s.Cfg.MetricsRetentionDays).Format("2006-01-02")

	run := func(name string, f func(domain.StorageRepo) (int64, error), into *int64) {
		err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
			n, e := f(s.Binder.Bind(q))
			*into += n
			return e
		})
		if err != nil {
			logger.C(ctx).Error().Err(err).Str("prune", name).Msg("rollup: prune failed, will retry next run")
		}
	}

	run("buckets", func(r domain.StorageRepo) (int64, error) { return r.PruneBuckets(ctx, day) }, &stats.PrunedBuckets)
	run("events", func(r domain.StorageRepo) (int64, error) { return r.PruneEvents(ctx, eventCutoff) }, &stats.PrunedEvents)
	run("sessions", func(r domain.StorageRepo) (int64, error) { return r.PruneSessions(ctx, sessionCutoff) }, &stats.PrunedSessions)
	// projection and open sessions age out with their bucket: once the bucket
	// row is pruned nothing will ever scan or close them again
	run("projection", func(r domain.StorageRepo) (int64, error) { return r.PruneProjection(ctx, day) }, &stats.PrunedProjection)
	run("open_sessions", func(r domain.StorageRepo) (int64, error) { return r.PruneOpenSessions(ctx, day) }, &stats.PrunedSessions)
	run("metrics", func(r domain.StorageRepo) (int64, error) { return r.PruneMetrics(ctx, metricsCutoff) }, &stats.PrunedMetrics)
}

// venueMetricsFrom groups sessions by (venue, window date, time bucket)
func venueMetricsFrom(sessions []domain.SessionRow) []domain.VenueDayMetrics {
	type key struct{ venue, date, bucket string }
	type acc struct {
		count  int
		durSum float64
	}
	byKey := map[key]*acc{}
	for _, s := range sessions {
		if s.VenueID == "" {
			continue
		}
		k := key{s.VenueID, windowDateOf(s.BucketID), s.TimeBucket}
		a := byKey[k]
		if a == nil {
			a = &acc{}
			byKey[k] = a
		}
		a.count++
		a.durSum += float64(s.DurationSeconds)
	}
	keys := make([]key, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].venue != keys[j].venue {
			return keys[i].venue < keys[j].venue
		}
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].bucket < keys[j].bucket
	})
	out := make([]domain.VenueDayMetrics, 0, len(keys))
	for _, k := range keys {
		a := byKey[k]
		avg := a.durSum / float64(a.count)
		out = append(out, domain.VenueDayMetrics{
			VenueID:            k.venue,
			WindowDate:         k.date,
			TimeBucket:         k.bucket,
			NewDrops:           a.count,
			ClosedCount:        a.count,
			AvgDurationSeconds: round2(avg),
			ScarcityScore:      ScarcityScore(a.count, a.count, avg),
		})
	}
	return out
}

// marketMetricsFrom builds one daily_summary value per window date
func marketMetricsFrom(sessions []domain.SessionRow) map[string]domain.MarketDayValue {
	type acc struct {
		count  int
		durSum float64
		byHour map[string]int
	}
	byDate := map[string]*acc{}
	for _, s := range sessions {
		date := windowDateOf(s.BucketID)
		a := byDate[date]
		if a == nil {
			a = &acc{byHour: map[string]int{}}
			byDate[date] = a
		}
		a.count++
		a.durSum += float64(s.DurationSeconds)
		a.byHour[fmt.Sprintf("%02d", s.OpenedAt.UTC().Hour())]++
	}
	out := make(map[string]domain.MarketDayValue, len(byDate))
	for date, a := range byDate {
		weekday := ""
		if t, err := time.Parse("2006-01-02", date); err == nil {
			weekday = t.Weekday().String()
		}
		out[date] = domain.MarketDayValue{
			TotalNewDrops:          a.count,
			TotalClosed:            a.count,
			AvgDropDurationSeconds: round2(a.durSum / float64(a.count)),
			EventCount:             a.count * 2,
			Weekday:                weekday,
			ByHour:                 a.byHour,
		}
	}
	return out
}

// ScarcityScore blends close speed, churn and rarity into a 0..100 score.
// Faster closes, more churn and fewer drops all read as scarcer
func ScarcityScore(newDrops, closedCount int, avgDurationSeconds float64) float64 {
	speed := 100.0 / (1.0 + avgDurationSeconds/60.0) * 0.33
	churn := math.Min(float64(closedCount)/10.0, 1.0) * 50.0 * 0.66
	rarity := 34.0 / (1.0 + float64(newDrops))
	return round2(math.Min(speed+churn+rarity, 100.0))
}

// RollingMetrics folds per-day drop counts into one row per venue
func RollingMetrics(days []domain.VenueDropDay, today time.Time, windowDays int) []domain.VenueRollingMetrics {
	if windowDays <= 0 {
		windowDays = 14
	}
	weekAgo := today.AddDate(0, 0, -7).Format("2006-01-02")
	type acc struct {
		drops, primes int
		durSum        float64
		durDays       int
		daysWith      int
		last7, prev7  int
	}
	byVenue := map[string]*acc{}
	for _, d := range days {
		a := byVenue[d.VenueID]
		if a == nil {
			a = &acc{}
			byVenue[d.VenueID] = a
		}
		a.drops += d.NewDrops
		a.primes += d.PrimeDrops
		if d.AvgDurationSeconds > 0 {
			a.durSum += d.AvgDurationSeconds
			a.durDays++
		}
		if d.NewDrops > 0 {
			a.daysWith++
			if d.Day >= weekAgo {
				a.last7 += d.NewDrops
			} else {
				a.prev7 += d.NewDrops
			}
		}
	}
	venues := make([]string, 0, len(byVenue))
	for v := range byVenue {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	out := make([]domain.VenueRollingMetrics, 0, len(venues))
	for _, v := range venues {
		a := byVenue[v]
		dropsPerDay := float64(a.drops) / float64(windowDays)
		avgDur := 0.0
		if a.durDays > 0 {
			avgDur = a.durSum / float64(a.durDays)
		}
		out = append(out, domain.VenueRollingMetrics{
			VenueID:            v,
			NewDropCount:       a.drops,
			PrimeTimeDrops:     a.primes,
			AvgDurationSeconds: round2(avgDur),
			RarityScore:        round2(100.0 / (1.0 + dropsPerDay)),
			AvailabilityRate:   round2(float64(a.daysWith) / float64(windowDays)),
			Trend:              trendOf(a.last7, a.prev7),
		})
	}
	return out
}

func trendOf(last7, prev7 int) string {
	switch {
	case last7 > prev7:
		return domain.TrendRising
	case last7 < prev7:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// windowDateOf reads the date prefix of "YYYY-MM-DD_HH:MM"
func windowDateOf(bucketID string) string {
	if len(bucketID) >= 10 {
		return bucketID[:10]
	}
	return bucketID
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
