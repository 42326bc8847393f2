// Package provider defines the availability provider port and registry.
//
// A provider answers one question: for a given date, time anchor, and set of
// party sizes, which concrete reservation slots are open right now. Results
// are normalized into Slot rows keyed by a stable fingerprint so the poll
// pipeline can diff snapshots without caring which provider produced them
package provider

import (
	"context"
	"sort"
	"sync"
)

// Query is one availability lookup: a date plus a time-of-day anchor that the
// provider expands into a +-WindowHours search window
type Query struct {
	DateStr     string // "YYYY-MM-DD"
	TimeAnchor  string // "15:00" or "19:00"
	WindowHours int    // search half-window around the anchor
	PartySizes  []int
}

// Payload is the loose per-slot blob persisted with drop events.
// Only the well-known fields are typed; the provider may leave any of the
// optional ones empty
type Payload struct {
	VenueID           string   `json:"venue_id,omitempty"`
	Name              string   `json:"name,omitempty"`
	AvailabilityTimes []string `json:"availability_times"`
	PartySizes        []int    `json:"party_sizes_available,omitempty"`
	BookingURL        string   `json:"booking_url,omitempty"`
	Neighborhood      string   `json:"neighborhood,omitempty"`
	ImageURL          string   `json:"image_url,omitempty"`
	PriceRange        string   `json:"price_range,omitempty"`
	Rating            float64  `json:"rating,omitempty"`
}

// Slot is one normalized reservation slot: a venue plus one actual start time
type Slot struct {
	SlotID     string
	VenueID    string
	VenueName  string
	ActualTime string // reservation start, "YYYY-MM-DD HH:MM:SS"
	Payload    Payload
}

// Port is implemented by each provider adapter. Fetch must apply its own hard
// timeout, bound its page count, and must never be called inside a write
// transaction by callers
type Port interface {
	ID() string
	Fetch(ctx context.Context, q Query) ([]Slot, error)
}

// Registry maps provider ids to implementations
type Registry struct {
	mu sync.RWMutex
	m  map[string]Port
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry { return &Registry{m: map[string]Port{}} }

// Register adds a provider; last registration for an id wins
func (r *Registry) Register(p Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID()] = p
}

// Get returns the provider for id
func (r *Registry) Get(id string) (Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[id]
	return p, ok
}

// IDs returns the registered provider ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for id := range r.m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
