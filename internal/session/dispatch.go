package session

import (
	"fmt"
	"slices"
	"strings"

	"calmate/internal/ics"
	appLog "calmate/internal/log"
	"calmate/internal/model"
	"calmate/internal/tools"
)

// dispatcher applies tool calls to its session.
type dispatcher struct {
	s *Session
}

var _ tools.Handler = dispatcher{}

func (d dispatcher) saveSchedule() error {
	return d.s.store.SaveSchedule(d.s.schedule)
}

func (d dispatcher) AddEvent(c tools.AddEvent) (string, error) {
	switch {
	case c.Description == "":
		return "Description is required.", nil
	case c.Time == "":
		return "Time is required for all events.", nil
	case c.Recurring != nil:
		return d.addRecurring(c)
	case c.Date == "":
		return "Date is required for single events.", nil
	}

	d.s.schedule.Events = append(d.s.schedule.Events, model.Event{
		Description: c.Description,
		Date:        c.Date,
		Time:        c.Time,
	})
	return fmt.Sprintf("Added event: %s on %s at %s", c.Description, c.Date, c.Time), d.saveSchedule()
}

// addRecurring appends count weekly entries per named weekday, starting
// after today. Only weekly series exist; other frequencies are treated as
// weekly.
func (d dispatcher) addRecurring(c tools.AddEvent) (string, error) {
	r := c.Recurring
	if len(r.Days) == 0 {
		return "Days are required for recurring events.", nil
	}
	if r.Frequency != "" && !strings.EqualFold(r.Frequency, "weekly") {
		appLog.Debug("session: non-weekly frequency treated as weekly", "frequency", r.Frequency)
	}

	count := r.Count
	if count <= 0 {
		count = d.s.opts.DefaultCount
	}
	count = min(count, d.s.opts.MaxCount)

	today := d.s.now()
	var added []string
	for _, name := range r.Days {
		wd, ok := ics.ParseWeekday(name)
		if !ok {
			appLog.Debug("session: skipping unrecognized weekday", "day", name)
			continue
		}
		for _, t := range ics.ExpandWeekly(wd, count, today) {
			date := t.Format(ics.DateLayout)
			d.s.schedule.Events = append(d.s.schedule.Events, model.Event{
				Description: c.Description,
				Date:        date,
				Time:        c.Time,
			})
			added = append(added, name+" "+date)
		}
	}
	if len(added) == 0 {
		return "No recognized days for recurring event.", nil
	}

	return fmt.Sprintf("Added recurring events: %s on %s", c.Description, strings.Join(added, ", ")), d.saveSchedule()
}

func (d dispatcher) ListEvents(c tools.ListEvents) (string, error) {
	var lines []string
	for _, ev := range d.s.schedule.Events {
		if c.Date != "" && ev.Date != c.Date {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s on %s at %s", len(lines), ev.Description, ev.Date, ev.Time))
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n"), nil
	}
	if c.Date != "" {
		return "No events scheduled on " + c.Date + ".", nil
	}
	return "No events scheduled.", nil
}

func (d dispatcher) RemoveEvent(c tools.RemoveEvent) (string, error) {
	events := d.s.schedule.Events
	if c.Index == nil || *c.Index < 0 || *c.Index >= len(events) {
		return "Invalid index.", nil
	}
	i := *c.Index
	removed := events[i]
	d.s.schedule.Events = slices.Delete(events, i, i+1)
	return "Removed event: " + removed.Description, d.saveSchedule()
}

func (d dispatcher) GetCurrentDate(tools.GetCurrentDate) (string, error) {
	return d.s.Today(), nil
}

func (d dispatcher) UpdateUserProfile(c tools.UpdateUserProfile) (string, error) {
	d.s.profile.Merge(model.ProfileFromAny(c.Updates))
	return "Profile updated", d.s.store.SaveProfile(d.s.profile)
}

func (d dispatcher) GetUserProfile(tools.GetUserProfile) (string, error) {
	if len(d.s.profile) == 0 {
		return "No profile information available.", nil
	}
	return d.s.profile.JSON(), nil
}
