package connector

import (
	"sort"
	"sync"
)

// Constructor builds a connector for one venue.
type Constructor func() (Connector, error)

// Registry maps venue identifiers to connector constructors. Selection of a
// missing venue is a typed error, not a control-flow exception, and a
// declared default covers generic centralized venues.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	defaultVenue string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for a venue.
func (r *Registry) Register(venue string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[venue] = c
}

// SetDefault declares the venue used when New is called with an empty id.
func (r *Registry) SetDefault(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultVenue = venue
}

// New constructs the connector for venue, falling back to the declared
// default for an empty id.
func (r *Registry) New(venue string) (Connector, error) {
	r.mu.RLock()
	if venue == "" {
		venue = r.defaultVenue
	}
	c, ok := r.constructors[venue]
	r.mu.RUnlock()

	if !ok {
		return nil, &ErrUnknownVenue{Venue: venue}
	}
	return c()
}

// Venues lists registered venue identifiers, sorted.
func (r *Registry) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for v := range r.constructors {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
