// Package service contains feed read workflows
package service

import (
	"context"
	"time"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/services/feed/domain"
	"dropwatch/internal/services/feed/repo"
)

// Service defines the feed service contract
type Service interface {
	domain.ServicePort
}

// Config bounds feed reads and drives the fast health checks
type Config struct {
	DefaultLimit        int
	MaxLimit            int
	DefaultOpenedWithin time.Duration

	// Buckets not scanned within this horizon are excluded from reads
	StaleAfter time.Duration

	// TickInterval is the poller's tick; job_alive allows three missed ticks
	TickInterval time.Duration
}

func (c *Config) defaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 100
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 500
	}
	if c.DefaultOpenedWithin <= 0 {
		c.DefaultOpenedWithin = 2 * time.Hour
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 4 * time.Hour
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
}

// Svc implements the feed service
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	cfg    Config

	now func() time.Time
}

// New constructs a feed service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], cfg Config) *Svc {
	if db == nil {
		panic("feed.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("feed.Service requires a non nil Repo binder")
	}
	cfg.defaults()
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock, for tests
func (s *Svc) WithClock(now func() time.Time) *Svc {
	s.now = now
	return s
}

// JustOpened returns recent, still-open drops grouped by window date
func (s *Svc) JustOpened(ctx context.Context, q domain.FeedQuery) ([]domain.JustOpenedDay, error) {
	rows, err := s.Repo.JustOpened(ctx, s.filters(q))
	if err != nil {
		return nil, err
	}
	return groupJustOpened(rows), nil
}

// StillOpen returns currently open slots grouped by window date
func (s *Svc) StillOpen(ctx context.Context, q domain.FeedQuery) ([]domain.StillOpenDay, error) {
	rows, err := s.Repo.StillOpen(ctx, s.filters(q))
	if err != nil {
		return nil, err
	}
	return groupStillOpen(rows), nil
}

// Query returns both feed halves in one payload
func (s *Svc) Query(ctx context.Context, q domain.FeedQuery) (domain.Snapshot, error) {
	jo, err := s.JustOpened(ctx, q)
	if err != nil {
		return domain.Snapshot{}, err
	}
	so, err := s.StillOpen(ctx, q)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{JustOpened: jo, StillOpen: so}, nil
}

// Calendar returns per-date distinct venue counts
func (s *Svc) Calendar(ctx context.Context) ([]domain.CalendarDay, error) {
	return s.Repo.CalendarCounts(ctx, s.now().Add(-s.cfg.DefaultOpenedWithin))
}

// Health derives job_alive and feed_updating from the scheduler heartbeat and
// the freshest bucket scan, and surfaces the heartbeat's last error and the
// running echo invariant totals
func (s *Svc) Health(ctx context.Context) (domain.HealthView, error) {
	now := s.now().UTC()
	hb, err := s.Repo.Heartbeat(ctx)
	if err != nil {
		return domain.HealthView{}, err
	}
	lastScan, err := s.Repo.LastScan(ctx)
	if err != nil {
		return domain.HealthView{}, err
	}
	hv := domain.HealthView{
		FeedUpdating: lastScan != nil && now.Sub(*lastScan) <= s.cfg.StaleAfter,
		LastScanAt:   lastScan,
		Now:          now,
	}
	if hb != nil {
		lastTick, nextTick := hb.LastTickAt, hb.NextTickAt
		hv.JobAlive = now.Sub(lastTick) <= 3*s.cfg.TickInterval
		hv.LastTickAt = &lastTick
		hv.NextTickAt = &nextTick
		hv.LastError = hb.LastError
		hv.Invariants = domain.InvariantTotals{
			BaselineEchoTotal: hb.BaselineEchoTotal,
			PrevEchoTotal:     hb.PrevEchoTotal,
		}
	}
	return hv, nil
}

// BucketStatus is the per-bucket debug view
func (s *Svc) BucketStatus(ctx context.Context) ([]domain.BucketStatusRow, error) {
	return s.Repo.BucketStatus(ctx, s.now().Add(-s.cfg.StaleAfter))
}

// Baselines is the per-bucket baseline debug view
func (s *Svc) Baselines(ctx context.Context) ([]domain.BaselineRow, error) {
	return s.Repo.Baselines(ctx)
}

// EventDebug explains one event's membership against current bucket state
func (s *Svc) EventDebug(ctx context.Context, eventID int64) (domain.EventDebugRow, bool, error) {
	return s.Repo.EventDebug(ctx, eventID)
}

// filters resolves defaults and caps into repo bounds
func (s *Svc) filters(q domain.FeedQuery) repo.Filters {
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	within := s.cfg.DefaultOpenedWithin
	if q.OpenedWithinMinutes > 0 {
		within = time.Duration(q.OpenedWithinMinutes) * time.Minute
	}
	now := s.now().UTC()
	return repo.Filters{
		Dates:       q.Dates,
		TimeSlots:   q.TimeSlots,
		MinTime:     clockSuffix(q.MinTime),
		MaxTime:     clockSuffix(q.MaxTime),
		OpenedAfter: now.Add(-within),
		StaleCutoff: now.Add(-s.cfg.StaleAfter),
		Limit:       limit,
	}
}

// clockSuffix widens "HH:MM" to "HH:MM:SS" to compare against slot_time
func clockSuffix(hhmm string) string {
	if len(hhmm) == 5 {
		return hhmm + ":00"
	}
	return hhmm
}

func groupJustOpened(rows []domain.JustOpenedRow) []domain.JustOpenedDay {
	var out []domain.JustOpenedDay
	idx := map[string]int{}
	for _, r := range rows {
		i, ok := idx[r.DateStr]
		if !ok {
			i = len(out)
			idx[r.DateStr] = i
			out = append(out, domain.JustOpenedDay{Date: r.DateStr})
		}
		out[i].Items = append(out[i].Items, r)
	}
	return out
}

func groupStillOpen(rows []domain.StillOpenRow) []domain.StillOpenDay {
	var out []domain.StillOpenDay
	idx := map[string]int{}
	for _, r := range rows {
		i, ok := idx[r.DateStr]
		if !ok {
			i = len(out)
			idx[r.DateStr] = i
			out = append(out, domain.StillOpenDay{Date: r.DateStr})
		}
		out[i].Items = append(out[i].Items, r)
	}
	return out
}
