package event

import (
	"strings"
	"time"
)

const (
	dateLayout = "January 2, 2006"
	timeLayout = "3:04 PM"
)

// isoLayouts are tried in order. Timestamps without an offset are read in
// the normalizer's location.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Normalizer converts raw records into display events in a fixed location.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer that formats dates in loc.
// A nil loc means time.Local.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone the normalizer formats in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize derives the display date and time fields of raw. Timestamps
// that are missing, have no time designator, or do not parse leave the
// derived fields empty.
func (n *Normalizer) Normalize(raw RawEvent) DisplayEvent {
	ev := DisplayEvent{RawEvent: raw}

	if t, ok := n.parse(raw.Start); ok {
		ev.StartDate = t.Format(dateLayout)
		ev.StartTime = t.Format(timeLayout)
	}
	if t, ok := n.parse(raw.End); ok {
		ev.EndDate = t.Format(dateLayout)
		ev.EndTime = t.Format(timeLayout)
	}

	return ev
}

// NormalizeAll normalizes a batch, preserving order.
func (n *Normalizer) NormalizeAll(raws []RawEvent) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

func (n *Normalizer) parse(value string) (time.Time, bool) {
	t, ok := ParseTimestamp(value, n.loc)
	if !ok {
		return time.Time{}, false
	}
	return t.In(n.loc), true
}

// ParseTimestamp parses an ISO 8601 date-time. Values without a 'T' time
// designator are rejected. Offset-less values are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "T") {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
