// Package http provides http transport for the feed
package http

import (
	stdhttp "net/http"
	"strconv"
	"strings"

	"dropwatch/internal/modkit/httpkit"
	perr "dropwatch/internal/platform/errors"
	"dropwatch/internal/services/feed/domain"
	svc "dropwatch/internal/services/feed/service"
)

// Register mounts feed endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	// read side
	httpkit.Get(r, "/just-opened", h.justOpened)
	httpkit.Get(r, "/still-open", h.stillOpen)
	httpkit.Get(r, "/calendar", h.calendar)
	httpkit.Get(r, "/health", h.health)

	// combined snapshot with a validated body
	httpkit.PostJSON[domain.FeedQuery](r, "/query", h.query)

	// debug surface
	httpkit.Get(r, "/debug/buckets", h.buckets)
	httpkit.Get(r, "/debug/baselines", h.baselines)
	httpkit.Get(r, "/debug/event", h.eventDebug)
}

type handlers struct{ svc svc.Service }

func (h *handlers) justOpened(r *stdhttp.Request) (any, error) {
	return h.svc.JustOpened(r.Context(), queryFrom(r))
}

func (h *handlers) stillOpen(r *stdhttp.Request) (any, error) {
	return h.svc.StillOpen(r.Context(), queryFrom(r))
}

func (h *handlers) query(r *stdhttp.Request, in domain.FeedQuery) (any, error) {
	return h.svc.Query(r.Context(), in)
}

func (h *handlers) calendar(r *stdhttp.Request) (any, error) {
	return h.svc.Calendar(r.Context())
}

func (h *handlers) health(r *stdhttp.Request) (any, error) {
	return h.svc.Health(r.Context())
}

func (h *handlers) buckets(r *stdhttp.Request) (any, error) {
	return h.svc.BucketStatus(r.Context())
}

func (h *handlers) baselines(r *stdhttp.Request) (any, error) {
	return h.svc.Baselines(r.Context())
}

func (h *handlers) eventDebug(r *stdhttp.Request) (any, error) {
	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "feed: bad event id %q", raw)
	}
	row, found, err := h.svc.EventDebug(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, perr.Newf(perr.ErrorCodeNotFound, "feed: event %d not found", id)
	}
	return row, nil
}

// queryFrom reads GET filters; bad numbers fall back to defaults rather than
// erroring a read endpoint
func queryFrom(r *stdhttp.Request) domain.FeedQuery {
	v := r.URL.Query()
	q := domain.FeedQuery{
		Dates:     csv(v.Get("dates")),
		TimeSlots: csv(v.Get("time_slots")),
		MinTime:   v.Get("min_time"),
		MaxTime:   v.Get("max_time"),
	}
	if n, err := strconv.Atoi(v.Get("opened_within_minutes")); err == nil && n > 0 {
		q.OpenedWithinMinutes = n
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	return q
}

func csv(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
