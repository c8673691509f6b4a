package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/event-sync/internal/event"
)

// DefaultTimeZone is the zone attached to drafts when none is configured.
const DefaultTimeZone = "America/Chicago"

// ValidationError reports a draft missing a required field. Drafts that
// fail validation are never sent to the provider.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid event: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// DateTime is a draft start or end.
type DateTime struct {
	DateTime string
	TimeZone string
}

// Draft is an event the user wants to add, not yet accepted by the provider.
type Draft struct {
	Summary     string
	Location    string
	Description string
	Start       DateTime
	End         DateTime
}

// DraftFromEvent builds a draft from a display event using its raw
// timestamps. An empty timeZone means DefaultTimeZone.
func DraftFromEvent(ev event.DisplayEvent, timeZone string) Draft {
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	return Draft{
		Summary:     ev.Title(),
		Location:    ev.Location,
		Description: ev.Description,
		Start:       DateTime{DateTime: ev.Start, TimeZone: timeZone},
		End:         DateTime{DateTime: ev.End, TimeZone: timeZone},
	}
}

// Validate checks the fields the provider requires. A date-time without
// a UTC offset is accepted when the draft names its time zone.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Summary) == "" {
		return &ValidationError{Field: "summary"}
	}
	if d.Start.DateTime == "" {
		return &ValidationError{Field: "start"}
	}
	start, err := d.Start.parse()
	if err != nil {
		return &ValidationError{Field: "start", Reason: err.Error()}
	}
	if d.End.DateTime != "" {
		end, err := d.End.parse()
		if err != nil {
			return &ValidationError{Field: "end", Reason: err.Error()}
		}
		if end.Before(start) {
			return &ValidationError{Field: "end", Reason: "must not be before start"}
		}
	}
	return nil
}

func (dt DateTime) parse() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
		return t, nil
	}
	if dt.TimeZone == "" {
		return time.Time{}, errors.New("must be an RFC 3339 date-time")
	}
	loc, err := time.LoadLocation(dt.TimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("has unknown time zone %q", dt.TimeZone)
	}
	t, ok := event.ParseTimestamp(dt.DateTime, loc)
	if !ok {
		return time.Time{}, errors.New("must be an RFC 3339 or local ISO 8601 date-time")
	}
	return t, nil
}

// ToEvent converts the draft into the API representation. A draft without
// an end ends when it starts.
func (d Draft) ToEvent() *calendar.Event {
	end := d.End
	if end.DateTime == "" {
		end = d.Start
	}
	return &calendar.Event{
		Summary:     d.Summary,
		Location:    d.Location,
		Description: d.Description,
		Start: &calendar.EventDateTime{
			DateTime: d.Start.DateTime,
			TimeZone: d.Start.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: end.DateTime,
			TimeZone: end.TimeZone,
		},
	}
}
