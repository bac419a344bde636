package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

// CalendarContainers are the containers holding calendar buckets.
type CalendarContainers struct {
	Year  string
	Month string
	Week  string
	Day   string
	All   string
}

// CalendarIDs are the bucket documents a timestamp falls into.
type CalendarIDs struct {
	Year  string
	Month string
	Week  string
	Day   string
	All   string
}

// CalendarResolver links records to Year/Month/Week/Day buckets computed in a fixed zone, plus
// the "All" root.
type CalendarResolver struct {
	entities   *EntityResolver
	containers CalendarContainers
	loc        *time.Location
	icon       *docstore.Icon
}

func NewCalendarResolver(entities *EntityResolver, containers CalendarContainers, loc *time.Location, icon *docstore.Icon) *CalendarResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarResolver{entities: entities, containers: containers, loc: loc, icon: icon}
}

func YearLabel(t time.Time) string { return t.Format("2006") }

func MonthLabel(t time.Time) string { return fmt.Sprintf("%d年%d月", t.Year(), int(t.Month())) }

// WeekLabel uses the ISO year and week number.
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d年第%d周", year, week)
}

func DayLabel(t time.Time) string { return t.Format("2006年01月02日") }

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of t's ISO week.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Attach sets the five calendar relations on props for ts.
func (c *CalendarResolver) Attach(ctx context.Context, props docstore.Properties, ts time.Time) error {
	ids, err := c.Resolve(ctx, ts)
	if err != nil {
		return err
	}
	props[PropYear] = docstore.Relation(ids.Year)
	props[PropMonth] = docstore.Relation(ids.Month)
	props[PropWeek] = docstore.Relation(ids.Week)
	props[PropDay] = docstore.Relation(ids.Day)
	props[PropAll] = docstore.Relation(ids.All)
	return nil
}

// Resolve returns the bucket ids for ts, creating missing buckets coarsest first so every
// finer bucket can be stamped with its parents.
func (c *CalendarResolver) Resolve(ctx context.Context, ts time.Time) (CalendarIDs, error) {
	var ids CalendarIDs
	day := startOfDay(ts.In(c.loc))

	year, err := c.year(ctx, day)
	if err != nil {
		return ids, err
	}
	month, err := c.month(ctx, day, year)
	if err != nil {
		return ids, err
	}

	// A week belongs to the month and year of its Thursday, like its ISO number.
	monday := startOfWeek(day)
	thursday := monday.AddDate(0, 0, 3)
	weekYear, weekMonth := year, month
	if thursday.Year() != day.Year() {
		if weekYear, err = c.year(ctx, thursday); err != nil {
			return ids, err
		}
	}
	if thursday.Year() != day.Year() || thursday.Month() != day.Month() {
		if weekMonth, err = c.month(ctx, thursday, weekYear); err != nil {
			return ids, err
		}
	}
	week, err := c.entities.Resolve(ctx, Lookup{
		Name:      WeekLabel(day),
		Container: c.containers.Week,
		Icon:      c.icon,
		Properties: docstore.Properties{
			PropDate:  docstore.DayRange(monday, monday.AddDate(0, 0, 6)),
			PropMonth: docstore.Relation(weekMonth),
			PropYear:  docstore.Relation(weekYear),
		},
	})
	if err != nil {
		return ids, fmt.Errorf("resolving week: %w", err)
	}

	dayID, err := c.entities.Resolve(ctx, Lookup{
		Name:      DayLabel(day),
		Container: c.containers.Day,
		Icon:      c.icon,
		Properties: docstore.Properties{
			PropDate:  docstore.Day(day),
			PropYear:  docstore.Relation(year),
			PropMonth: docstore.Relation(month),
			PropWeek:  docstore.Relation(week),
		},
	})
	if err != nil {
		return ids, fmt.Errorf("resolving day: %w", err)
	}

	all, err := c.entities.Resolve(ctx, Lookup{
		Name:      AllLabel,
		Container: c.containers.All,
		Icon:      c.icon,
	})
	if err != nil {
		return ids, fmt.Errorf("resolving all: %w", err)
	}

	return CalendarIDs{Year: year, Month: month, Week: week, Day: dayID, All: all}, nil
}

func (c *CalendarResolver) year(ctx context.Context, day time.Time) (string, error) {
	first := time.Date(day.Year(), 1, 1, 0, 0, 0, 0, day.Location())
	id, err := c.entities.Resolve(ctx, Lookup{
		Name:      YearLabel(day),
		Container: c.containers.Year,
		Icon:      c.icon,
		Properties: docstore.Properties{
			PropDate: docstore.DayRange(first, first.AddDate(1, 0, -1)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("resolving year: %w", err)
	}
	return id, nil
}

func (c *CalendarResolver) month(ctx context.Context, day time.Time, yearID string) (string, error) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	id, err := c.entities.Resolve(ctx, Lookup{
		Name:      MonthLabel(day),
		Container: c.containers.Month,
		Icon:      c.icon,
		Properties: docstore.Properties{
			PropDate: docstore.DayRange(first, first.AddDate(0, 1, -1)),
			PropYear: docstore.Relation(yearID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("resolving month: %w", err)
	}
	return id, nil
}
