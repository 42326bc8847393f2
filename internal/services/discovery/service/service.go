// Package service implements the discovery poll worker
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"dropwatch/internal/adapters/provider"
	"dropwatch/internal/core/normalize"
	"dropwatch/internal/modkit/repokit"
	perr "dropwatch/internal/platform/errors"
	"dropwatch/internal/platform/logger"
	"dropwatch/internal/services/discovery/domain"
	"dropwatch/internal/services/discovery/guardrails"
)

// Config holds poll behavior knobs
type Config struct {
	Provider    string
	WindowDays  int
	TimeSlots   []string
	PartySizes  []int
	WindowHours int

	// TTL dedupe for NEW_DROP flapping
	DedupeTTL time.Duration

	// Buckets not scanned within this horizon are stale
	StaleAfter time.Duration

	// Per-bucket lease
	EnableLeases bool
	LeaseTTL     time.Duration
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = "resy"
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 14
	}
	if len(c.TimeSlots) == 0 {
		c.TimeSlots = []string{"15:00", "19:00"}
	}
	if len(c.PartySizes) == 0 {
		c.PartySizes = []int{2, 4}
	}
	if c.WindowHours <= 0 {
		c.WindowHours = 2
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = 30 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 4 * time.Hour
	}
}

// Service implements domain.PollerPort
type Service struct {
	DB        repokit.TxRunner
	Binder    repokit.Binder[domain.StorageRepo]
	Providers *provider.Registry
	Sink      domain.EventSink
	Cfg       Config

	// Lease(ctx, bucketID, do) runs do under the per-bucket lease
	Lease guardrails.LeaseFunc

	now func() time.Time
}

// New constructs the discovery service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	providers *provider.Registry,
	sink domain.EventSink,
	cfg Config,
	lease guardrails.LeaseFunc,
) *Service {
	if db == nil {
		panic("discovery.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("discovery.Service requires a non nil Repo binder")
	}
	if providers == nil {
		panic("discovery.Service requires a provider registry")
	}
	cfg.defaults()
	return &Service{DB: db, Binder: binder, Providers: providers, Sink: sink, Cfg: cfg, Lease: lease, now: time.Now}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PollBucket runs one poll cycle for a bucket. Lease contention is a clean
// skip, not an error
func (s *Service) PollBucket(ctx context.Context, ref domain.BucketRef) (domain.PollStats, error) {
	if s.Lease != nil && s.Cfg.EnableLeases {
		var stats domain.PollStats
		err := s.Lease(ctx, ref.BucketID, func(ctx context.Context) error {
			st, e := s.pollUnlocked(ctx, ref)
			stats = st
			return e
		})
		if errors.Is(err, guardrails.ErrLeaseHeld) {
			logger.C(ctx).Debug().Str("bucket", ref.BucketID).Msg("discovery: lease held, skipping")
			return domain.PollStats{}, nil
		}
		return stats, err
	}
	return s.pollUnlocked(ctx, ref)
}

func (s *Service) pollUnlocked(ctx context.Context, ref domain.BucketRef) (domain.PollStats, error) {
	// Network fetch first, never inside a write transaction
	slots, err := s.fetchBucket(ctx, ref)
	if err != nil {
		return domain.PollStats{}, err
	}

	now := s.now().UTC()
	currSet := make(map[string]struct{}, len(slots))
	bySlot := make(map[string]provider.Slot, len(slots))
	for _, sl := range slots {
		currSet[sl.SlotID] = struct{}{}
		bySlot[sl.SlotID] = sl
	}

	// Read bucket state
	var bucket domain.Bucket
	var found bool
	if err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		b, ok, e := s.Binder.Bind(q).GetBucket(ctx, ref.BucketID)
		bucket, found = b, ok
		return e
	}); err != nil {
		return domain.PollStats{}, err
	}

	// Baseline bootstrap: first successful poll writes baseline = prev = curr
	// and emits nothing
	if !found || !bucket.Initialized() {
		ids := setToSorted(currSet)
		if err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).InitBaseline(ctx, ref, ids, now)
		}); err != nil {
			return domain.PollStats{}, err
		}
		logger.C(ctx).Info().Str("bucket", ref.BucketID).Int("slots", len(ids)).Msg("discovery: baseline initialized")
		n := len(ids)
		return domain.PollStats{B: n, P: n, C: n, BaselineReady: true, BaselineBootstrapped: true}, nil
	}

	baselineSet := sliceToSet(bucket.Baseline)
	prevSet := sliceToSet(bucket.Prev)

	stats := domain.PollStats{B: len(baselineSet), P: len(prevSet), C: len(currSet), BaselineReady: true}

	// added/closed drive projection and sessions; the emit set additionally
	// requires "new vs baseline" so an existing venue gaining one more time
	// does not surface as a drop
	added := diff(currSet, prevSet)
	closed := diff(prevSet, currSet)
	newVsBaseline := diff(currSet, baselineSet)
	emit := intersect(added, newVsBaseline)

	stats.OpenedVsPrev = len(added)
	stats.OpenedVsBaseline = len(newVsBaseline)
	stats.DropsComputed = len(emit)
	stats.BaselineEcho = countIn(emit, baselineSet)
	stats.PrevEcho = countIn(emit, prevSet)
	if stats.BaselineEcho > 0 || stats.PrevEcho > 0 {
		logger.C(ctx).Error().
			Str("bucket", ref.BucketID).
			Int("baseline_echo", stats.BaselineEcho).
			Int("prev_echo", stats.PrevEcho).
			Msg("discovery: invariant violation, emit set must not overlap baseline or prev")
	}

	timeBucket := domain.TimeBucketOf(ref.TimeSlot)
	var committed []domain.DropEvent

	err = s.DB.Tx(ctx, func(q repokit.Queryer) error {
		repo := s.Binder.Bind(q)

		// TTL dedupe: a slot that flapped within the TTL gets no second event
		recent, e := repo.RecentNewDropSlots(ctx, ref.BucketID, setToSorted(emit), now.Add(-s.Cfg.DedupeTTL))
		if e != nil {
			return e
		}
		var newEvents []domain.DropEvent
		for sid := range emit {
			if recent[sid] {
				stats.Deduped++
				continue
			}
			newEvents = append(newEvents, s.newDropEvent(ref, bySlot[sid], sid, timeBucket, now))
		}

		// CLOSED events need the latest NEW_DROP per slot, one round-trip
		last, e := repo.LatestNewDrops(ctx, ref.BucketID, setToSorted(closed))
		if e != nil {
			return e
		}
		var closedEvents []domain.DropEvent
		for sid := range closed {
			ld, ok := last[sid]
			if !ok {
				continue // closed outside this pipeline's memory, skip
			}
			dur := int(now.Sub(ld.OpenedAt).Seconds())
			if dur < 0 {
				continue
			}
			closedAt := now
			closedEvents = append(closedEvents, domain.DropEvent{
				BucketID:        ref.BucketID,
				SlotID:          sid,
				VenueID:         ld.VenueID,
				VenueName:       ld.VenueName,
				EventType:       domain.EventTypeClosed,
				OpenedAt:        ld.OpenedAt,
				ClosedAt:        &closedAt,
				DurationSeconds: &dur,
				TimeBucket:      coalesce(ld.TimeBucket, timeBucket),
				SlotDate:        coalesce(ld.SlotDate, ref.DateStr),
				SlotTime:        ld.SlotTime,
				Provider:        coalesce(ld.Provider, s.Cfg.Provider),
				DedupeKey:       domain.DedupeKeyClosed(ref.BucketID, sid, now),
			})
		}

		ins, _, e := repo.InsertDropEvents(ctx, append(newEvents, closedEvents...))
		if e != nil {
			return e
		}
		stats.Emitted = min(ins, len(newEvents))
		stats.ClosedEmitted = len(closedEvents)

		// Projection: every added slot opens, every closed slot closes,
		// regardless of the emit rule
		e = repo.UpsertOpenSlots(ctx, ref.BucketID, openSlots(added, bySlot), now)
		if e != nil {
			return e
		}
		e = repo.CloseSlots(ctx, ref.BucketID, setToSorted(closed), now)
		if e != nil {
			return e
		}

		// Sessions: idempotent open and close
		if _, e = repo.OpenSessions(ctx, ref.BucketID, timeBucket, openSlots(added, bySlot), now); e != nil {
			return e
		}
		if _, e = repo.CloseSessions(ctx, ref.BucketID, setToSorted(closed), now); e != nil {
			return e
		}

		// Venue catalog from emitted drops
		if e = repo.UpsertVenues(ctx, venueRefs(newEvents), now); e != nil {
			return e
		}

		// Advance prev last so a crash before this point replays cleanly
		if e = repo.SetPrev(ctx, ref.BucketID, setToSorted(currSet), now); e != nil {
			return e
		}

		committed = append(newEvents, closedEvents...)
		return nil
	})
	if err != nil {
		return stats, err
	}

	// Post-commit analytics sink, best effort
	if s.Sink != nil && len(committed) > 0 {
		if serr := s.Sink.AppendDropEvents(context.WithoutCancel(ctx), committed); serr != nil {
			logger.C(ctx).Warn().Err(serr).Str("bucket", ref.BucketID).Msg("discovery: event sink append failed")
		}
	}

	logger.C(ctx).Info().
		Str("bucket", ref.BucketID).
		Int("b", stats.B).Int("p", stats.P).Int("c", stats.C).
		Int("opened_vs_prev", stats.OpenedVsPrev).
		Int("opened_vs_baseline", stats.OpenedVsBaseline).
		Int("drops", stats.DropsComputed).
		Int("emitted", stats.Emitted).
		Int("closed", stats.ClosedEmitted).
		Int("baseline_echo", stats.BaselineEcho).
		Int("prev_echo", stats.PrevEcho).
		Msg("discovery: poll complete")
	return stats, nil
}

// fetchBucket calls the provider with one immediate retry on transient
// failures; a second failure defers the bucket to the next tick
func (s *Service) fetchBucket(ctx context.Context, ref domain.BucketRef) ([]provider.Slot, error) {
	p, ok := s.Providers.Get(s.Cfg.Provider)
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "discovery: unknown provider %q", s.Cfg.Provider)
	}
	q := provider.Query{
		DateStr:     ref.DateStr,
		TimeAnchor:  ref.TimeSlot,
		WindowHours: s.Cfg.WindowHours,
		PartySizes:  s.Cfg.PartySizes,
	}
	slots, err := p.Fetch(ctx, q)
	if err == nil {
		return slots, nil
	}
	if ctx.Err() != nil || !transientFetch(err) {
		return nil, err
	}
	logger.C(ctx).Warn().Err(err).Str("bucket", ref.BucketID).Msg("discovery: fetch failed, retrying once")
	return p.Fetch(ctx, q)
}

func transientFetch(err error) bool {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeUnavailable, perr.ErrorCodeTooManyRequests:
		return true
	default:
		return false
	}
}

func (s *Service) newDropEvent(ref domain.BucketRef, sl provider.Slot, sid, timeBucket string, now time.Time) domain.DropEvent {
	payload, _ := json.Marshal(sl.Payload)
	slotDate, slotTime := splitActualTime(sl.ActualTime, ref.DateStr)
	return domain.DropEvent{
		BucketID:     ref.BucketID,
		SlotID:       sid,
		VenueID:      sl.VenueID,
		VenueName:    sl.VenueName,
		EventType:    domain.EventTypeNewDrop,
		OpenedAt:     now,
		TimeBucket:   timeBucket,
		SlotDate:     slotDate,
		SlotTime:     slotTime,
		Provider:     s.Cfg.Provider,
		Neighborhood: sl.Payload.Neighborhood,
		PriceRange:   sl.Payload.PriceRange,
		Payload:      payload,
		DedupeKey:    domain.DedupeKeyNewDrop(ref.BucketID, sid, now),
	}
}

// EnsureWindow creates any missing bucket rows for the rolling window
func (s *Service) EnsureWindow(ctx context.Context, start time.Time) (int, error) {
	refs := domain.WindowBuckets(domain.WindowStartDate(start), s.Cfg.WindowDays, s.Cfg.TimeSlots)
	var created int
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		n, e := s.Binder.Bind(q).EnsureBuckets(ctx, refs)
		created = n
		return e
	})
	return created, err
}

// EligibleBuckets returns window buckets past their cooldown, oldest first
func (s *Service) EligibleBuckets(ctx context.Context, start time.Time, cooldown time.Duration) ([]domain.BucketRef, error) {
	refs := domain.WindowBuckets(domain.WindowStartDate(start), s.Cfg.WindowDays, s.Cfg.TimeSlots)
	byID := make(map[string]domain.BucketRef, len(refs))
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		byID[ref.BucketID] = ref
		ids = append(ids, ref.BucketID)
	}
	var eligible []string
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		e, err := s.Binder.Bind(q).EligibleBuckets(ctx, ids, s.now().Add(-cooldown))
		eligible = e
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.BucketRef, 0, len(eligible))
	for _, id := range eligible {
		out = append(out, byID[id])
	}
	return out, nil
}

// RefreshBaselines re-baselines every window bucket in place. Used after the
// provider search region changes, so the new region does not read as a wall
// of false drops. Drop history is preserved
func (s *Service) RefreshBaselines(ctx context.Context, start time.Time) (int, []string, error) {
	if _, err := s.EnsureWindow(ctx, start); err != nil {
		return 0, nil, err
	}
	refs := domain.WindowBuckets(domain.WindowStartDate(start), s.Cfg.WindowDays, s.Cfg.TimeSlots)
	refreshed := 0
	var failed []string
	for _, ref := range refs {
		if ctx.Err() != nil {
			return refreshed, failed, ctx.Err()
		}
		slots, err := s.fetchBucket(ctx, ref)
		if err != nil {
			logger.C(ctx).Error().Err(err).Str("bucket", ref.BucketID).Msg("discovery: baseline refresh fetch failed")
			failed = append(failed, ref.BucketID)
			continue
		}
		ids := make([]string, 0, len(slots))
		for _, sl := range slots {
			ids = append(ids, sl.SlotID)
		}
		now := s.now().UTC()
		if err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).InitBaseline(ctx, ref, ids, now)
		}); err != nil {
			logger.C(ctx).Error().Err(err).Str("bucket", ref.BucketID).Msg("discovery: baseline refresh write failed")
			failed = append(failed, ref.BucketID)
			continue
		}
		refreshed++
	}
	return refreshed, failed, nil
}

// ResetBuckets wipes buckets, events, projection rows and open sessions in
// one transaction; the next tick rebuilds everything
func (s *Service) ResetBuckets(ctx context.Context) error {
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		repo := s.Binder.Bind(q)
		if _, err := repo.DeleteOpenSessions(ctx); err != nil {
			return err
		}
		if _, err := repo.DeleteAllProjection(ctx); err != nil {
			return err
		}
		if _, err := repo.DeleteAllEvents(ctx); err != nil {
			return err
		}
		_, err := repo.DeleteAllBuckets(ctx)
		return err
	})
}

// BucketHealth reports per-bucket scan freshness for the health surface
func (s *Service) BucketHealth(ctx context.Context, start time.Time) ([]domain.BucketHealth, error) {
	refs := domain.WindowBuckets(domain.WindowStartDate(start), s.Cfg.WindowDays, s.Cfg.TimeSlots)
	var out []domain.BucketHealth
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		h, e := s.Binder.Bind(q).BucketHealth(ctx, refs, s.Cfg.StaleAfter)
		out = h
		return e
	})
	return out, err
}

// set helpers

func sliceToSet(xs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}

func setToSorted(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func diff(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func countIn(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func openSlots(set map[string]struct{}, bySlot map[string]provider.Slot) []domain.OpenSlot {
	out := make([]domain.OpenSlot, 0, len(set))
	for _, sid := range setToSorted(set) {
		out = append(out, domain.OpenSlot{SlotID: sid, VenueID: bySlot[sid].VenueID})
	}
	return out
}

func venueRefs(evs []domain.DropEvent) []domain.VenueRef {
	seen := map[string]struct{}{}
	var out []domain.VenueRef
	for _, e := range evs {
		if e.VenueID == "" {
			continue
		}
		if _, ok := seen[e.VenueID]; ok {
			continue
		}
		seen[e.VenueID] = struct{}{}
		out = append(out, domain.VenueRef{
			VenueID:   e.VenueID,
			VenueName: e.VenueName,
			NameKey:   normalize.Key(e.VenueName),
		})
	}
	return out
}

// splitActualTime splits "YYYY-MM-DD HH:MM:SS" into date and time parts,
// falling back to the bucket date
func splitActualTime(at, fallbackDate string) (string, string) {
	if len(at) >= 19 {
		return at[:10], at[11:19]
	}
	return fallbackDate, ""
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

