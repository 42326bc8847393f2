// Package sink streams committed drop events into ClickHouse
package sink

import (
	"context"
	"time"

	"dropwatch/internal/platform/store"
	"dropwatch/internal/services/discovery/domain"
)

// DefaultTable is the analytics table drop events land in
const DefaultTable = "dropwatch.drop_events_stream"

// CH appends drop events to a ClickHouse table post-commit.
// Postgres stays the source of truth; this stream only feeds analytics
type CH struct {
	ch    store.Clickhouse
	table string
}

// New returns a CH sink writing to table (DefaultTable when empty).
// A nil client yields a nil sink, which callers treat as disabled
func New(ch store.Clickhouse, table string) *CH {
	if ch == nil {
		return nil
	}
	if table == "" {
		table = DefaultTable
	}
	return &CH{ch: ch, table: table}
}

var _ domain.EventSink = (*CH)(nil)

// AppendDropEvents inserts one row per event in a single batch
func (s *CH) AppendDropEvents(ctx context.Context, evs []domain.DropEvent) error {
	if s == nil || len(evs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(evs))
	for _, e := range evs {
		rows = append(rows, []any{
			e.BucketID,
			e.SlotID,
			e.VenueID,
			e.VenueName,
			e.EventType,
			e.OpenedAt,
			tsOrZero(e.ClosedAt),
			int32(durOrZero(e.DurationSeconds)),
			e.TimeBucket,
			e.SlotDate,
			e.SlotTime,
			e.Provider,
			e.Neighborhood,
			e.PriceRange,
			e.DedupeKey,
		})
	}
	return s.ch.Insert(ctx, s.table, rows)
}

func tsOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func durOrZero(d *int) int {
	if d == nil {
		return 0
	}
	return *d
}
