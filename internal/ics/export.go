package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "calmate/internal/log"
	"calmate/internal/model"
)

const productID = "-//calmate//schedule//EN"

// defaultEventLength is used for timed events, which carry only a start.
const defaultEventLength = time.Hour

// uidNamespace scopes the name-based UUIDs generated for exported events.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("calmate.local"))

// clockLayouts are the free-text time forms recognized as a clock time.
var clockLayouts = []string{
	"15:04",
	"15.04",
	"3:04pm",
	"3:04 pm",
	"3pm",
	"3 pm",
}

// ParseClock extracts an hour and minute from free-text event times such
// as "09:30", "3pm" or "3:30 PM - 4:30 PM". ok is false for text like
// "morning".
func ParseClock(s string) (hour, minute int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	candidates := []string{s}
	for _, sep := range []string{"-", " to ", "–"} {
		if head, _, found := strings.Cut(s, sep); found {
			candidates = append(candidates, strings.TrimSpace(head))
		}
	}
	for _, c := range candidates {
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t.Hour(), t.Minute(), true
			}
		}
	}
	return 0, 0, false
}

// EventUID returns the stable UID used for the event at index i.
func EventUID(i int, ev model.Event) string {
	name := fmt.Sprintf("%d|%s|%s|%s", i, ev.Description, ev.Date, ev.Time)
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@calmate"
}

// Export renders the schedule as an iCalendar document. Events whose time
// parses as a clock time become one-hour timed events in loc; the others
// become all-day events with the free-text time in the description.
// Events with an unparseable date are skipped.
func Export(sched model.Schedule, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	skipped := 0
	for i, ev := range sched.Events {
		day, err := time.ParseInLocation(DateLayout, ev.Date, loc)
		if err != nil {
			skipped++
			continue
		}

		vev := cal.AddEvent(EventUID(i, ev))
		vev.SetDtStampTime(now.UTC())
		vev.SetSummary(ev.Description)

		if h, m, ok := ParseClock(ev.Time); ok {
			start := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			vev.SetStartAt(start)
			vev.SetEndAt(start.Add(defaultEventLength))
			continue
		}

		vev.SetAllDayStartAt(day)
		vev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		if ev.Time != "" {
			vev.SetDescription("Time: " + ev.Time)
		}
	}

	if skipped > 0 {
		appLog.Warn("ics export skipped events with invalid dates", "skipped", skipped)
	}
	return cal.Serialize()
}
