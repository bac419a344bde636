package resolve_test

import (
	"context"
	"testing"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var calendarContainers = resolve.CalendarContainers{
	Year:  "years",
	Month: "months",
	Week:  "weeks",
	Day:   "days",
	All:   "all",
}

func calendarStore(t *testing.T) (*resolve.CalendarResolver, func(string) int, func(string) *docstore.Document) {
	t.Helper()
	db := openStore(t, map[string]docstore.Schema{
		"years":  resolve.YearSchema,
		"months": resolve.MonthSchema,
		"weeks":  resolve.WeekSchema,
		"days":   resolve.DaySchema,
		"all":    resolve.AllSchema,
	})
	loc := time.FixedZone("CST", 8*3600)
	c := resolve.NewCalendarResolver(resolve.NewEntityResolver(db, nil), calendarContainers, loc, nil)

	count := func(container string) int {
		n, err := db.Count(context.Background(), container)
		require.NoError(t, err)
		return n
	}
	get := func(id string) *docstore.Document {
		doc, err := db.GetDocument(context.Background(), id)
		require.NoError(t, err)
		return doc
	}
	return c, count, get
}

func TestLabels(t *testing.T) {
	ts := time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2023", resolve.YearLabel(ts))
	assert.Equal(t, "2023年4月", resolve.MonthLabel(ts))
	assert.Equal(t, "2023年第13周", resolve.WeekLabel(ts))
	assert.Equal(t, "2023年04月01日", resolve.DayLabel(ts))

	// ISO week belongs to the previous year
	assert.Equal(t, "2022年第52周", resolve.WeekLabel(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCalendarResolve(t *testing.T) {
	ctx := context.Background()
	c, count, get := calendarStore(t)

	// 2023-03-31 20:00 UTC is already April 1st in UTC+8
	ids, err := c.Resolve(ctx, time.Date(2023, 3, 31, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	day := get(ids.Day)
	assert.Equal(t, "2023年04月01日", day.Properties.Title(resolve.PropTitle))
	start, _, ok := day.Properties.Date(resolve.PropDate)
	require.True(t, ok)
	assert.Equal(t, "2023-04-01", start.Format(time.DateOnly))
	assert.Equal(t, []string{ids.Week}, day.Properties.Relation(resolve.PropWeek))
	assert.Equal(t, []string{ids.Month}, day.Properties.Relation(resolve.PropMonth))
	assert.Equal(t, []string{ids.Year}, day.Properties.Relation(resolve.PropYear))

	assert.Equal(t, "2023年4月", get(ids.Month).Properties.Title(resolve.PropTitle))
	assert.Equal(t, "2023", get(ids.Year).Properties.Title(resolve.PropTitle))
	assert.Equal(t, resolve.AllLabel, get(ids.All).Properties.Title(resolve.PropTitle))

	// week 13 runs Mar 27 - Apr 2, its Thursday is in March
	week := get(ids.Week)
	assert.Equal(t, "2023年第13周", week.Properties.Title(resolve.PropTitle))
	weekMonth := week.Properties.Relation(resolve.PropMonth)
	require.Len(t, weekMonth, 1)
	assert.Equal(t, "2023年3月", get(weekMonth[0]).Properties.Title(resolve.PropTitle))

	again, err := c.Resolve(ctx, time.Date(2023, 4, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, ids, again)

	assert.Equal(t, 1, count("years"))
	assert.Equal(t, 2, count("months"))
	assert.Equal(t, 1, count("weeks"))
	assert.Equal(t, 1, count("days"))
	assert.Equal(t, 1, count("all"))
}

func TestCalendarWeekAcrossYears(t *testing.T) {
	ctx := context.Background()
	c, count, get := calendarStore(t)

	ids, err := c.Resolve(ctx, time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	week := get(ids.Week)
	assert.Equal(t, "2022年第52周", week.Properties.Title(resolve.PropTitle))
	weekYear := week.Properties.Relation(resolve.PropYear)
	require.Len(t, weekYear, 1)
	assert.Equal(t, "2022", get(weekYear[0]).Properties.Title(resolve.PropTitle))
	assert.Equal(t, "2023", get(ids.Year).Properties.Title(resolve.PropTitle))

	assert.Equal(t, 2, count("years"))
	assert.Equal(t, 2, count("months"))
}

func TestCalendarAttach(t *testing.T) {
	c, _, _ := calendarStore(t)
	props := docstore.Properties{}
	require.NoError(t, c.Attach(context.Background(), props, time.Date(2023, 6, 15, 3, 0, 0, 0, time.UTC)))
	for _, name := range []string{resolve.PropYear, resolve.PropMonth, resolve.PropWeek, resolve.PropDay, resolve.PropAll} {
		assert.Len(t, props.Relation(name), 1, name)
	}
}
