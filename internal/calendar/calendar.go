// Package calendar writes time entries as an iCalendar feed.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
)

const productID = "-//togglsync//togglsync//EN"

// Event is one exported time entry.
type Event struct {
	UID         string
	Summary     string
	Description string
	Categories  []string
	StartTime   time.Time
	EndTime     time.Time
}

// Write encodes events as a single VCALENDAR. Times are written in UTC.
func Write(w io.Writer, events []Event) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := time.Now().UTC()
	for _, e := range events {
		if e.UID == "" {
			return fmt.Errorf("event %q has no UID", e.Summary)
		}
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, e.UID)
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		ev.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.UTC())
		ev.Props.SetText(ical.PropSummary, e.Summary)
		if e.Description != "" && e.Description != e.Summary {
			ev.Props.SetText(ical.PropDescription, e.Description)
		}
		if len(e.Categories) > 0 {
			prop := ical.NewProp(ical.PropCategories)
			prop.Value = strings.Join(e.Categories, ",")
			ev.Props.Set(prop)
		}
		cal.Children = append(cal.Children, ev.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}
