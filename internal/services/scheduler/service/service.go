// Package service implements the poll scheduler and the daily window job
package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dropwatch/internal/modkit/repokit"
	"dropwatch/internal/platform/logger"
	discdom "dropwatch/internal/services/discovery/domain"
	rolldom "dropwatch/internal/services/rollup/domain"
	"dropwatch/internal/services/scheduler/domain"
)

// Config controls tick cadence, dispatch width and the daily job
type Config struct {
	Tick          time.Duration
	Cooldown      time.Duration
	MaxConcurrent int

	// DailySpec is a cron expression in the scheduler's local time
	DailySpec string
}

func (c *Config) defaults() {
	if c.Tick <= 0 {
		c.Tick = 30 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 45 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.DailySpec == "" {
		c.DailySpec = "5 2 * * *"
	}
}

// Service implements domain.SchedulerPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]
	Poller discdom.PollerPort
	Rollup rolldom.RollupPort
	Cfg    Config

	now func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	lastErr  string

	// counters accumulated by finished polls, flushed into the heartbeat
	emitted, closed, baselineEcho, prevEcho int
}

// New constructs the scheduler service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	poller discdom.PollerPort,
	rollup rolldom.RollupPort,
	cfg Config,
) *Service {
	if db == nil {
		panic("scheduler.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("scheduler.Service requires a non nil Repo binder")
	}
	if poller == nil {
		panic("scheduler.Service requires the discovery poller port")
	}
	cfg.defaults()
	return &Service{
		DB:       db,
		Binder:   binder,
		Poller:   poller,
		Rollup:   rollup,
		Cfg:      cfg,
		now:      time.Now,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		inflight: make(map[string]struct{}),
	}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run drives the tick loop until ctx is done. No tick error is fatal: a bad
// tick logs, the loop keeps going. In-flight polls are drained on shutdown
func (s *Service) Run(ctx context.Context) error {
	l := logger.C(ctx).With().Str("mod", "scheduler").Logger()
	l.Info().
		Dur("tick", s.Cfg.Tick).
		Int("max_concurrent", s.Cfg.MaxConcurrent).
		Str("daily", s.Cfg.DailySpec).
		Msg("scheduler: starting")

	cr := cron.New()
	if _, err := cr.AddFunc(s.Cfg.DailySpec, func() {
		if err := s.RunDailyOnce(ctx); err != nil {
			l.Error().Err(err).Msg("scheduler: daily job failed")
		}
	}); err != nil {
		return err
	}
	cr.Start()
	defer func() {
		<-cr.Stop().Done()
		s.wg.Wait()
		l.Info().Msg("scheduler: drained, stopped")
	}()

	ticker := time.NewTicker(s.Cfg.Tick)
	defer ticker.Stop()

	for {
		if stats, err := s.TickOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.Error().Err(err).Msg("scheduler: tick failed")
		} else {
			l.Debug().
				Int("eligible", stats.Eligible).
				Int("dispatched", stats.Dispatch).
				Int("inflight_skips", stats.InFlight).
				Msg("scheduler: tick")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// TickOnce ensures the window exists, dispatches eligible buckets up to the
// concurrency cap and writes the heartbeat. Buckets already in flight or past
// the cap wait for a later tick
func (s *Service) TickOnce(ctx context.Context) (domain.TickStats, error) {
	var stats domain.TickStats
	now := s.now()

	if _, err := s.Poller.EnsureWindow(ctx, now); err != nil {
		s.setLastErr(err)
		return stats, err
	}

	eligible, err := s.Poller.EligibleBuckets(ctx, now, s.Cfg.Cooldown)
	if err != nil {
		s.setLastErr(err)
		return stats, err
	}
	stats.Eligible = len(eligible)

	for _, ref := range eligible {
		if !s.claim(ref.BucketID) {
			stats.InFlight++
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			s.release(ref.BucketID)
			continue // pool full, next tick retries
		}
		stats.Dispatch++
		s.wg.Add(1)
		// detached from ctx so shutdown drains in-flight polls instead of
		// aborting their write transactions mid-commit
		go s.poll(context.WithoutCancel(ctx), ref)
	}

	s.heartbeat(ctx, now, &stats)
	return stats, nil
}

func (s *Service) poll(ctx context.Context, ref discdom.BucketRef) {
	defer s.wg.Done()
	defer func() { <-s.sem }()
	defer s.release(ref.BucketID)

	st, err := s.Poller.PollBucket(ctx, ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err.Error()
		logger.C(ctx).Error().Err(err).Str("bucket", ref.BucketID).Msg("scheduler: poll failed")
		return
	}
	s.emitted += st.Emitted
	s.closed += st.ClosedEmitted
	s.baselineEcho += st.BaselineEcho
	s.prevEcho += st.PrevEcho
}

// RunDailyOnce rotates the window: add the new day's buckets, baseline them
// immediately, aggregate closed sessions, then prune
func (s *Service) RunDailyOnce(ctx context.Context) error {
	l := logger.C(ctx).With().Str("mod", "scheduler").Logger()
	now := s.now()

	created, err := s.Poller.EnsureWindow(ctx, now)
	if err != nil {
		s.setLastErr(err)
		return err
	}
	l.Info().Int("created", created).Msg("scheduler: daily window ensured")

	// New-day buckets poll as baseline bootstrap on their first touch; kick
	// that off now instead of waiting out the cooldown
	if created > 0 {
		refs, err := s.Poller.EligibleBuckets(ctx, now, s.Cfg.Cooldown)
		if err != nil {
			s.setLastErr(err)
		} else {
			for _, ref := range refs {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !s.claim(ref.BucketID) {
					continue
				}
				if _, err := s.Poller.PollBucket(ctx, ref); err != nil {
					l.Error().Err(err).Str("bucket", ref.BucketID).Msg("scheduler: new-day baseline poll failed")
				}
				s.release(ref.BucketID)
			}
		}
	}

	if s.Rollup != nil {
		if _, err := s.Rollup.RunDaily(ctx, now); err != nil {
			s.setLastErr(err)
			return err
		}
	}
	return nil
}

// heartbeat writes liveness plus counters accumulated since the last flush
func (s *Service) heartbeat(ctx context.Context, now time.Time, stats *domain.TickStats) {
	s.mu.Lock()
	hb := domain.Heartbeat{
		Name:              domain.HeartbeatName,
		LastTickAt:        now.UTC(),
		NextTickAt:        now.Add(s.Cfg.Tick).UTC(),
		LastError:         s.lastErr,
		Emitted:           s.emitted,
		Closed:            s.closed,
		BaselineEchoTotal: s.baselineEcho,
		PrevEchoTotal:     s.prevEcho,
	}
	stats.Emitted, stats.Closed = s.emitted, s.closed
	stats.BaselineEcho, stats.PrevEcho = s.baselineEcho, s.prevEcho
	s.emitted, s.closed, s.baselineEcho, s.prevEcho = 0, 0, 0, 0
	s.mu.Unlock()

	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).UpsertHeartbeat(ctx, hb)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("scheduler: heartbeat write failed")
	}
}

func (s *Service) claim(bucketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[bucketID]; busy {
		return false
	}
	s.inflight[bucketID] = struct{}{}
	return true
}

func (s *Service) release(bucketID string) {
	s.mu.Lock()
	delete(s.inflight, bucketID)
	s.mu.Unlock()
}

func (s *Service) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
