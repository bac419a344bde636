package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/christopherklint97/togglsync/internal/calendar"
	"github.com/christopherklint97/togglsync/internal/syncer"
	"github.com/christopherklint97/togglsync/internal/toggl"
	"github.com/tj/go-naturaldate"
)

// parseWhen accepts RFC 3339, a plain date or natural language like "3 months ago".
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}
	t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// toEvents maps entries to calendar events, newest first as fetched.
func toEvents(entries []syncer.RawEntry) []calendar.Event {
	events := make([]calendar.Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, calendar.Event{
			UID:         fmt.Sprintf("%d@togglsync", e.ID),
			Summary:     e.Title(),
			Description: e.Description,
			Categories:  e.Tags,
			StartTime:   e.Start,
			EndTime:     e.Stop,
		})
	}
	return events
}

func exportCalendar(ctx context.Context, a *app, client *toggl.Client, loc *time.Location, r syncer.Range, out string) error {
	s := syncer.NewSession(nil, client, a.containers(), loc, a.logger)
	runner := syncer.NewRunner(s)
	runner.WorkspaceID = a.cfg.Toggl.WorkspaceID
	workspaceID, _ := runner.Account(ctx)

	entries, err := syncer.NewExecutor(s).Collect(ctx, r, workspaceID)
	if err != nil {
		return fmt.Errorf("fetching entries: %w", err)
	}

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	if err := calendar.Write(w, toEvents(entries)); err != nil {
		return err
	}
	if out != "-" {
		fmt.Printf("Wrote %d entries to %s\n", len(entries), out)
	}
	return nil
}
