package store

import (
	"slices"

	"github.com/beekhof/event-sync/internal/event"
)

// Query selects events by free text and category.
type Query struct {
	// Text is matched case-insensitively against summary, description and
	// location. Empty matches everything.
	Text string
	// Category is a tag or AllCategories. Empty is treated as AllCategories.
	Category string
}

func (q Query) matchesCategory(ev event.DisplayEvent) bool {
	if q.Category == "" || q.Category == AllCategories {
		return true
	}
	return ev.Tag == q.Category
}

// Cursor tracks how many events of a filtered set have been handed out.
type Cursor struct {
	Shown int
}

// Page returns the next batch of up to PageSize events after c and the
// advanced cursor. An exhausted set yields an empty batch.
func Page(filtered []event.DisplayEvent, c Cursor) ([]event.DisplayEvent, Cursor) {
	start := min(max(c.Shown, 0), len(filtered))
	end := min(start+PageSize, len(filtered))
	return filtered[start:end], Cursor{Shown: end}
}

// View is the one active filtered view of a Store.
type View struct {
	Query  Query
	events []event.DisplayEvent
	cursor Cursor
}

// Apply makes q the active view, dropping whatever the previous view had
// rendered. It returns the full filtered set; call NextPage to render.
func (s *Store) Apply(q Query) []event.DisplayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := filter(s.events, q)
	s.view = &View{Query: q, events: filtered}
	return slices.Clone(filtered)
}

// NextPage renders the next batch of the active view. With no active view it
// applies the match-all query first.
func (s *Store) NextPage() []event.DisplayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view == nil {
		s.view = &View{Query: Query{Category: AllCategories}, events: filter(s.events, Query{})}
	}
	batch, next := Page(s.view.events, s.view.cursor)
	s.view.cursor = next
	return slices.Clone(batch)
}

// Shown returns how many events of the active view have been rendered.
func (s *Store) Shown() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return 0
	}
	return s.view.cursor.Shown
}

// Rendered returns every event rendered so far in the active view.
func (s *Store) Rendered() []event.DisplayEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return nil
	}
	return slices.Clone(s.view.events[:s.view.cursor.Shown])
}

// Remaining returns how many events of the active view are not yet rendered.
func (s *Store) Remaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return len(s.events)
	}
	return len(s.view.events) - s.view.cursor.Shown
}

// HasMore reports whether a "load more" affordance should be offered.
func (s *Store) HasMore() bool {
	return s.Remaining() > 0
}

// ExportSet returns the events an export should cover: the active view when
// it matched anything, otherwise the whole collection.
func (s *Store) ExportSet() []event.DisplayEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view != nil && len(s.view.events) > 0 {
		return slices.Clone(s.view.events)
	}
	return slices.Clone(s.events)
}
