// Package resy implements the availability provider port against the Resy
// search API. One Fetch expands the bucket's time anchor into a +-N hour
// window, runs one paged search per party size, and merges the results into
// one row per (venue, reservation time)
package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dropwatch/internal/adapters/provider"
	"dropwatch/internal/core/slotid"
	perr "dropwatch/internal/platform/errors"
	"dropwatch/internal/platform/logger"
)

// ProviderID is stamped into fingerprints and events
const ProviderID = "resy"

const (
	baseURLDefault   = "https://api.resy.com"
	defaultTimeout   = 15 * time.Second
	defaultUA        = "dropwatch-poller"
	defaultPerPage   = 200
	defaultMaxPages  = 2
	defaultMaxRetry  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// API credentials; APIKey is required
	APIKey    string
	AuthToken string

	// Search bounding box center and radius
	Lat, Lng float64
	RadiusM  int

	// Page bounds per search call
	PerPage  int
	MaxPages int

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client is a minimal Resy search client with retry and page bounds
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

// New creates a Client with sane defaults
func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PerPage <= 0 {
		o.PerPage = defaultPerPage
	}
	if o.MaxPages <= 0 {
		o.MaxPages = defaultMaxPages
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("resy"),
	}
}

// ID implements provider.Port
func (c *Client) ID() string { return ProviderID }

// Fetch implements provider.Port. One row per (venue, actual_time); party
// sizes seen across the per-size searches are merged into the payload
func (c *Client) Fetch(ctx context.Context, q provider.Query) ([]provider.Slot, error) {
	if _, err := time.Parse("2006-01-02", q.DateStr); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "resy: bad date %q", q.DateStr)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout*time.Duration(c.opts.MaxPages*max(len(q.PartySizes), 1)))
	defer cancel()

	bySlot := map[string]*provider.Slot{}
	for _, size := range q.PartySizes {
		hits, err := c.searchAllPages(ctx, q, size)
		if err != nil {
			return nil, err
		}
		c.mergeHits(bySlot, hits, q, size)
	}

	out := make([]provider.Slot, 0, len(bySlot))
	for _, s := range bySlot {
		sort.Ints(s.Payload.PartySizes)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out, nil
}

func (c *Client) searchAllPages(ctx context.Context, q provider.Query, partySize int) ([]searchHit, error) {
	var all []searchHit
	for page := 1; page <= c.opts.MaxPages; page++ {
		resp, err := c.search(ctx, searchRequest{
			Day:       q.DateStr,
			PartySize: partySize,
			Page:      page,
			PerPage:   c.opts.PerPage,
			Time:      q.TimeAnchor,
			Lat:       c.opts.Lat,
			Lng:       c.opts.Lng,
			RadiusM:   c.opts.RadiusM,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Search.Hits...)
		if len(resp.Search.Hits) < c.opts.PerPage || page >= resp.Meta.TotalPages {
			break
		}
	}
	return all, nil
}

func (c *Client) mergeHits(bySlot map[string]*provider.Slot, hits []searchHit, q provider.Query, partySize int) {
	loMin, hiMin := anchorWindow(q.TimeAnchor, q.WindowHours)
	for _, h := range hits {
		vid := strings.TrimSpace(h.venueID())
		name := strings.TrimSpace(h.Name)
		if vid == "" {
			vid = name
		}
		for _, sl := range h.Availability.Slots {
			at := normalizeStart(sl.Date.Start)
			if at == "" || !startInWindow(at, loMin, hiMin) {
				continue
			}
			sid := slotid.Make(ProviderID, vid, at)
			if cur, ok := bySlot[sid]; ok {
				cur.Payload.PartySizes = mergeSizes(cur.Payload.PartySizes, partySize)
				continue
			}
			bySlot[sid] = &provider.Slot{
				SlotID:     sid,
				VenueID:    vid,
				VenueName:  name,
				ActualTime: at,
				Payload: provider.Payload{
					VenueID:           vid,
					Name:              name,
					AvailabilityTimes: []string{at},
					PartySizes:        []int{partySize},
					BookingURL:        h.bookingURL(),
					Neighborhood:      h.Neighborhood,
					ImageURL:          h.firstImage(),
					PriceRange:        priceRange(h.PriceRangeID),
					Rating:            h.Rating,
				},
			}
		}
	}
}

type searchRequest struct {
	Day       string
	PartySize int
	Page      int
	PerPage   int
	Time      string
	Lat, Lng  float64
	RadiusM   int
}

type searchHit struct {
	ObjectID     string  `json:"objectID"`
	ID           resyID  `json:"id"`
	Name         string  `json:"name"`
	Neighborhood string  `json:"neighborhood"`
	PriceRangeID int     `json:"price_range_id"`
	Rating       float64 `json:"rating"`
	URLSlug      string  `json:"url_slug"`
	Images       []string `json:"images"`
	Availability struct {
		Slots []struct {
			Date struct {
				Start string `json:"start"`
			} `json:"date"`
		} `json:"slots"`
	} `json:"availability"`
}

// resyID carries the numeric venue id nested under "id"
type resyID struct {
	Resy int64 `json:"resy"`
}

type searchResponse struct {
	Search struct {
		Hits []searchHit `json:"hits"`
	} `json:"search"`
	Meta struct {
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

func (h searchHit) venueID() string {
	if h.ID.Resy != 0 {
		return strconv.FormatInt(h.ID.Resy, 10)
	}
	return h.ObjectID
}

func (h searchHit) firstImage() string {
	if len(h.Images) > 0 {
		return h.Images[0]
	}
	return ""
}

// bookingURL points at the public site, not the API host the client talks to
func (h searchHit) bookingURL() string {
	if h.URLSlug == "" {
		return ""
	}
	return "https://resy.com/cities/" + h.URLSlug
}

// search issues one POST with retry on transient failures. Auth failures are
// permanent; the scheduler surfaces them on the heartbeat instead of retrying
func (c *Client) search(ctx context.Context, req searchRequest) (*searchResponse, error) {
	body := map[string]any{
		"availability": true,
		"page":         req.Page,
		"per_page":     req.PerPage,
		"slot_filter": map[string]any{
			"day":        req.Day,
			"party_size": req.PartySize,
			"time":       req.Time,
		},
		"geo": map[string]any{
			"latitude":  req.Lat,
			"longitude": req.Lng,
			"radius":    req.RadiusM,
		},
		"types": []string{"venue"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "resy: marshal search request")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryBase
	bo.MaxInterval = 10 * time.Second

	var out searchResponse
	op := func() error {
		hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/3/venuesearch/search", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(perr.Wrap(err, perr.ErrorCodeUnknown, "resy: new request"))
		}
		hreq.Header.Set("User-Agent", c.opts.UserAgent)
		hreq.Header.Set("Content-Type", "application/json")
		hreq.Header.Set("Authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.opts.APIKey))
		if c.opts.AuthToken != "" {
			hreq.Header.Set("X-Resy-Auth-Token", c.opts.AuthToken)
		}

		start := time.Now()
		resp, err := c.http.Do(hreq)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "resy: transport error")
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}()

		c.log.Debug().
			Int("status", resp.StatusCode).
			Int("page", req.Page).
			Int("party_size", req.PartySize).
			Dur("latency", time.Since(start)).
			Msg("resy search response")

		switch {
		case resp.StatusCode == http.StatusOK:
			out = searchResponse{}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				// treat unexpected payload shape as transient; log and let the
				// poll skip this bucket
				return perr.Wrap(err, perr.ErrorCodeUnavailable, "resy: decode search response")
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(perr.Newf(perr.ErrorCodeForbidden, "resy: auth rejected (%d)", resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			return perr.Newf(perr.ErrorCodeTooManyRequests, "resy: rate limited")
		case resp.StatusCode >= 500:
			return perr.Newf(perr.ErrorCodeUnavailable, "resy: server error %d", resp.StatusCode)
		default:
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(perr.Newf(perr.ErrorCodeUnknown, "resy: unexpected status %d body %s", resp.StatusCode, string(tail)))
		}
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.MaxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// normalizeStart trims a provider start datetime to "YYYY-MM-DD HH:MM:SS"
func normalizeStart(s string) string {
	s = strings.TrimSpace(strings.Replace(s, "T", " ", 1))
	if len(s) < 16 {
		return ""
	}
	if len(s) == 16 { // minute precision, add seconds
		s += ":00"
	}
	if len(s) > 19 {
		s = s[:19]
	}
	if _, err := time.Parse("2006-01-02 15:04:05", s); err != nil {
		return ""
	}
	return s
}

// anchorWindow returns the [lo, hi] minutes-since-midnight window for an
// anchor like "19:00" with a +-h hour spread
func anchorWindow(anchor string, h int) (int, int) {
	parts := strings.SplitN(anchor, ":", 2)
	hh, _ := strconv.Atoi(parts[0])
	mm := 0
	if len(parts) > 1 {
		mm, _ = strconv.Atoi(parts[1])
	}
	mid := hh*60 + mm
	return max(mid-h*60, 0), min(mid+h*60, 23*60+59)
}

func startInWindow(at string, loMin, hiMin int) bool {
	// "YYYY-MM-DD HH:MM:SS"
	if len(at) < 16 {
		return false
	}
	hh, err1 := strconv.Atoi(at[11:13])
	mm, err2 := strconv.Atoi(at[14:16])
	if err1 != nil || err2 != nil {
		return false
	}
	m := hh*60 + mm
	return m >= loMin && m <= hiMin
}

func mergeSizes(sizes []int, add int) []int {
	for _, s := range sizes {
		if s == add {
			return sizes
		}
	}
	return append(sizes, add)
}

func priceRange(id int) string {
	if id <= 0 {
		return ""
	}
	if id > 4 {
		id = 4
	}
	return strings.Repeat("$", id)
}
