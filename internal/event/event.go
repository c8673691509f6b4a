// Package event holds the scraped event model and the rules that turn raw
// records into display-ready, ordered events.
package event

// RawEvent is a scraped event record as stored in the realtime database.
// Start and End are ISO 8601 timestamps; an empty string means the source
// had no value.
type RawEvent struct {
	ID          string `json:"id,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Tag         string `json:"tag,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	HTMLLink    string `json:"htmlLink,omitempty"`
}

// DisplayEvent is a RawEvent plus the human-readable date and time strings
// derived from its timestamps. A derived field is empty when the matching
// timestamp had no time component.
type DisplayEvent struct {
	RawEvent

	StartDate string `json:"start_date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// Fallback labels used when a field is missing.
const (
	DateTBA         = "Date TBA"
	TimeTBA         = "Time TBA"
	LocationTBA     = "Location TBA"
	AllDay          = "All Day"
	UntitledEvent   = "Untitled Event"
	DefaultCategory = "General"
)

const (
	allDayStart = "12:00 AM"
	allDayEnd   = "11:59 PM"
)

// IsAllDay reports whether the event spans a whole day, which the scraper
// encodes as 12:00 AM to 11:59 PM.
func (e DisplayEvent) IsAllDay() bool {
	return e.StartTime == allDayStart && e.EndTime == allDayEnd
}

// Title returns the summary or "Untitled Event".
func (e DisplayEvent) Title() string {
	if e.Summary == "" {
		return UntitledEvent
	}
	return e.Summary
}

// DateLabel returns the start date or "Date TBA".
func (e DisplayEvent) DateLabel() string {
	if e.StartDate == "" {
		return DateTBA
	}
	return e.StartDate
}

// CardTimeLabel is the time shown on an event card.
func (e DisplayEvent) CardTimeLabel() string {
	if e.IsAllDay() {
		return AllDay
	}
	if e.StartTime == "" {
		return TimeTBA
	}
	return e.StartTime
}

// DetailTimeLabel is the time range shown in the detail view.
func (e DisplayEvent) DetailTimeLabel() string {
	if e.IsAllDay() {
		return AllDay
	}
	return e.StartTime + " - " + e.EndTime
}

// LocationLabel returns the location or "Location TBA".
func (e DisplayEvent) LocationLabel() string {
	if e.Location == "" {
		return LocationTBA
	}
	return e.Location
}

// CategoryLabel returns the tag or "General".
func (e DisplayEvent) CategoryLabel() string {
	if e.Tag == "" {
		return DefaultCategory
	}
	return e.Tag
}
