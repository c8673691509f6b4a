// Package calendar wraps the Google Calendar API calls the session needs:
// listing the user's calendars and inserting events built from drafts.
package calendar

import (
	"context"

	"google.golang.org/api/calendar/v3"
)

// CalendarClient is the provider API used once a token is available.
type CalendarClient interface {
	ListCalendars(ctx context.Context) ([]*calendar.CalendarListEntry, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
}

// PrimaryCalendar returns the entry flagged primary, or the first entry.
// It returns nil for an empty list.
func PrimaryCalendar(entries []*calendar.CalendarListEntry) *calendar.CalendarListEntry {
	for _, entry := range entries {
		if entry.Primary {
			return entry
		}
	}
	if len(entries) > 0 {
		return entries[0]
	}
	return nil
}
