package export

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/beekhof/event-sync/internal/event"
)

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\n", `\n`,
	"\r", "",
)

// escapeText applies iCalendar TEXT escaping. Carriage returns are dropped.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// rawProp builds a property whose value is written exactly as given.
func rawProp(name, value string) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = value
	return prop
}

// ToICal encodes events as one VCALENDAR with a VEVENT per event. PUBLISH
// requires DTSTART, so events whose start cannot be parsed are skipped
// with a warning.
func (e *Encoder) ToICal(events []event.DisplayEvent) ([]byte, error) {
	body, _, err := e.encodeICal(events)
	return body, err
}

func (e *Encoder) encodeICal(events []event.DisplayEvent) ([]byte, int, error) {
	if len(events) == 0 {
		return nil, 0, ErrNoEvents
	}

	cal := ical.NewCalendar()
	cal.Props.Set(rawProp(ical.PropVersion, "2.0"))
	cal.Props.Set(rawProp(ical.PropProductID, ProductID))
	cal.Props.Set(rawProp("CALSCALE", "GREGORIAN"))
	cal.Props.Set(rawProp("METHOD", "PUBLISH"))
	cal.Props.Set(rawProp("X-WR-CALNAME", escapeText(e.CalendarName)))
	cal.Props.Set(rawProp("X-WR-TIMEZONE", e.Location.String()))

	stamp := e.now().UTC()
	for _, ev := range events {
		start, ok := event.ParseTimestamp(ev.Start, e.Location)
		if !ok {
			log.Printf("Warning: skipping undated event %q in iCal export", ev.Title())
			continue
		}
		cal.Children = append(cal.Children, e.vevent(ev, start, stamp))
	}
	if len(cal.Children) == 0 {
		return nil, 0, ErrNoEvents
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, 0, fmt.Errorf("failed to encode iCalendar: %w", err)
	}
	return buf.Bytes(), len(cal.Children), nil
}

func (e *Encoder) vevent(ev event.DisplayEvent, start, stamp time.Time) *ical.Component {
	vevent := ical.NewComponent(ical.CompEvent)

	id := ev.ID
	if id == "" {
		id = e.newUID()
	}
	vevent.Props.Set(rawProp(ical.PropUID, id+"@"+UIDDomain))
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)

	vevent.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	// An unparseable end is left out rather than written empty.
	if end, ok := event.ParseTimestamp(ev.End, e.Location); ok {
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	vevent.Props.Set(rawProp(ical.PropSummary, escapeText(ev.Title())))
	if ev.Description != "" {
		vevent.Props.Set(rawProp(ical.PropDescription, escapeText(ev.Description)))
	}
	if ev.Location != "" {
		vevent.Props.Set(rawProp(ical.PropLocation, escapeText(ev.Location)))
	}
	if ev.HTMLLink != "" {
		vevent.Props.Set(rawProp("URL", ev.HTMLLink))
	}
	if ev.Tag != "" {
		vevent.Props.Set(rawProp("CATEGORIES", escapeText(ev.Tag)))
	}
	vevent.Props.Set(rawProp("STATUS", "CONFIRMED"))
	vevent.Props.Set(rawProp("SEQUENCE", "0"))

	return vevent
}
