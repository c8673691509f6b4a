package export

import (
	"strings"

	"github.com/beekhof/event-sync/internal/event"
)

var csvHeader = []string{
	"Title",
	"Start Date",
	"Start Time",
	"End Date",
	"End Time",
	"Location",
	"Category",
	"Description",
	"Event Link",
}

// quoteCSV always quotes, including empty values.
func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ToCSV encodes events as a header line followed by one row per event.
// Every value is quoted. A missing end date falls back to the start date.
func (e *Encoder) ToCSV(events []event.DisplayEvent) ([]byte, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	lines := make([]string, 0, len(events)+1)
	lines = append(lines, strings.Join(csvHeader, ","))

	for _, ev := range events {
		endDate := ev.EndDate
		if endDate == "" {
			endDate = ev.StartDate
		}
		row := []string{
			ev.Summary,
			ev.StartDate,
			ev.StartTime,
			endDate,
			ev.EndTime,
			ev.Location,
			ev.Tag,
			ev.Description,
			ev.HTMLLink,
		}
		for i, value := range row {
			row[i] = quoteCSV(value)
		}
		lines = append(lines, strings.Join(row, ","))
	}

	return []byte(strings.Join(lines, "\n")), nil
}
