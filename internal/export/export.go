// Package export encodes event lists as downloadable iCalendar and CSV
// artifacts.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beekhof/event-sync/internal/event"
)

// ErrNoEvents is returned instead of producing an artifact with no events.
var ErrNoEvents = errors.New("no events available to export")

// Format selects an artifact encoding.
type Format string

const (
	FormatICal Format = "ical"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "ical", "ics" and "csv".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "ical", "ics":
		return FormatICal, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want ical or csv)", s)
	}
}

// Defaults for the calendar header and artifact names.
const (
	DefaultCalendarName = "UIUC Events Export"
	ProductID           = "-//Project Helix//UIUC Events//EN"
	UIDDomain           = "projecthelix.uiuc"
	BaseFileName        = "uiuc-events"
)

// Artifact is an encoded export ready to be written or offered for download.
type Artifact struct {
	FileName string
	MIMEType string
	Body     []byte
	Count    int
}

// Encoder turns display events into export artifacts.
type Encoder struct {
	// CalendarName is written as X-WR-CALNAME.
	CalendarName string
	// Location is used for timestamps without an offset and written as
	// X-WR-TIMEZONE.
	Location *time.Location

	now    func() time.Time
	newUID func() string
}

// NewEncoder returns an Encoder for the given zone. A nil loc means
// time.Local.
func NewEncoder(loc *time.Location) *Encoder {
	if loc == nil {
		loc = time.Local
	}
	return &Encoder{
		CalendarName: DefaultCalendarName,
		Location:     loc,
		now:          time.Now,
		newUID:       uuid.NewString,
	}
}

// Encode produces the artifact for format.
func (e *Encoder) Encode(format Format, events []event.DisplayEvent) (*Artifact, error) {
	switch format {
	case FormatICal:
		body, count, err := e.encodeICal(events)
		if err != nil {
			return nil, err
		}
		return &Artifact{FileName: BaseFileName + ".ics", MIMEType: "text/calendar", Body: body, Count: count}, nil
	case FormatCSV:
		body, err := e.ToCSV(events)
		if err != nil {
			return nil, err
		}
		return &Artifact{FileName: BaseFileName + ".csv", MIMEType: "text/csv", Body: body, Count: len(events)}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
