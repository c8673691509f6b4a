// Package store keeps the events loaded for one session and serves filtered,
// paginated views of them.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/beekhof/event-sync/internal/event"
)

// PageSize is the number of events materialized per page.
const PageSize = 30

// AllCategories matches every tag in a Query.
const AllCategories = "all"

// State describes whether the store has been populated.
type State int

const (
	// StateNotLoaded means no load has been attempted yet.
	StateNotLoaded State = iota
	// StateEmpty means a load finished with nothing to show, either because
	// the source was empty or because the fetch failed.
	StateEmpty
	// StateLoaded means at least one upcoming event is available.
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source provides raw events. The realtime database client implements it.
type Source interface {
	FetchEvents(ctx context.Context) ([]event.RawEvent, error)
}

// Store is the in-memory event collection for one session.
type Store struct {
	mu sync.RWMutex

	normalizer *event.Normalizer
	now        func() time.Time

	events  []event.DisplayEvent
	state   State
	lastErr error

	view *View
}

// New creates an empty Store. now is consulted at load time to drop past
// events; nil means time.Now.
func New(normalizer *event.Normalizer, now func() time.Time) *Store {
	if normalizer == nil {
		normalizer = event.NewNormalizer(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Store{normalizer: normalizer, now: now}
}

// Load replaces the collection with raws: each record is normalized, past
// events and repeated ids are dropped, and the rest are sorted by start.
func (s *Store) Load(raws []event.RawEvent) {
	loc := s.normalizer.Location()
	now := s.now()

	seen := make(map[string]bool, len(raws))
	events := make([]event.DisplayEvent, 0, len(raws))
	for _, raw := range raws {
		if raw.ID != "" {
			if seen[raw.ID] {
				continue
			}
			seen[raw.ID] = true
		}
		ev := s.normalizer.Normalize(raw)
		if event.IsPast(ev, now, loc) {
			continue
		}
		events = append(events, ev)
	}
	event.Sort(events, loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.lastErr = nil
	s.view = nil
	if len(events) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateLoaded
	}
}

// LoadFrom fetches from src and loads the result. A fetch error leaves the
// store empty rather than unloaded; the error is returned and kept for Err.
func (s *Store) LoadFrom(ctx context.Context, src Source) error {
	raws, err := src.FetchEvents(ctx)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = nil
		s.view = nil
		s.state = StateEmpty
		s.lastErr = err
		return fmt.Errorf("failed to load events: %w", err)
	}

	s.Load(raws)
	return nil
}

// State returns the load state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error of the last failed load, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Len returns the number of loaded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// All returns a copy of the full sorted collection.
func (s *Store) All() []event.DisplayEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Find returns the event with the given id.
func (s *Store) Find(id string) (event.DisplayEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return event.DisplayEvent{}, false
}

// Categories returns the distinct tags of the loaded events, sorted.
// Events without a tag contribute nothing.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, ev := range s.events {
		if ev.Tag == "" || seen[ev.Tag] {
			continue
		}
		seen[ev.Tag] = true
		categories = append(categories, ev.Tag)
	}
	slices.Sort(categories)
	return categories
}

// Filter returns the events matching q in store order.
func (s *Store) Filter(q Query) []event.DisplayEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.events, q)
}

func filter(events []event.DisplayEvent, q Query) []event.DisplayEvent {
	text := strings.ToLower(q.Text)
	out := make([]event.DisplayEvent, 0, len(events))
	for _, ev := range events {
		if q.matchesCategory(ev) && matchesText(ev, text) {
			out = append(out, ev)
		}
	}
	return out
}

func matchesText(ev event.DisplayEvent, lowered string) bool {
	if lowered == "" {
		return true
	}
	return strings.Contains(strings.ToLower(ev.Summary), lowered) ||
		strings.Contains(strings.ToLower(ev.Description), lowered) ||
		strings.Contains(strings.ToLower(ev.Location), lowered)
}
