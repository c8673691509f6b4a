package event

import (
	"slices"
	"time"
)

// FarFuture is the effective instant of events without a usable start date.
var FarFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// EffectiveInstant is the instant used to order events and to decide whether
// they are in the past. It is read back from the display fields so that
// records arriving with pre-formatted dates order the same way.
func EffectiveInstant(e DisplayEvent, loc *time.Location) time.Time {
	if e.StartDate == "" || e.StartDate == DateTBA {
		return FarFuture
	}
	if loc == nil {
		loc = time.Local
	}

	if e.StartTime != "" {
		if t, err := time.ParseInLocation(dateLayout+" "+timeLayout, e.StartDate+" "+e.StartTime, loc); err == nil {
			return t
		}
		return FarFuture
	}

	t, err := time.ParseInLocation(dateLayout, e.StartDate, loc)
	if err != nil {
		return FarFuture
	}
	return t
}

// StartOfDay returns local midnight of the day containing now.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// IsPast reports whether the event starts before local midnight of today.
func IsPast(e DisplayEvent, now time.Time, loc *time.Location) bool {
	return EffectiveInstant(e, loc).Before(StartOfDay(now, loc))
}

// Sort orders events by effective instant. Ties keep their input order.
func Sort(events []DisplayEvent, loc *time.Location) {
	keyed := make([]keyedEvent, len(events))
	for i := range events {
		keyed[i] = keyedEvent{at: EffectiveInstant(events[i], loc), ev: events[i]}
	}
	slices.SortStableFunc(keyed, func(a, b keyedEvent) int {
		return a.at.Compare(b.at)
	})
	for i := range keyed {
		events[i] = keyed[i].ev
	}
}

type keyedEvent struct {
	at time.Time
	ev DisplayEvent
}
