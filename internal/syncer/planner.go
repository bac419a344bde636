package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

const (
	// cursorOverlap re-fetches the last day so entries still running at the previous sync
	// get their final stop time.
	cursorOverlap = 24 * time.Hour
	// gapThreshold is how far the earliest stored entry may trail account creation before
	// the history is considered incomplete.
	gapThreshold = 7 * 24 * time.Hour
)

// Range is a closed time interval.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// SyncPlan is what a run fetches: the incremental range first, then the gap if any.
type SyncPlan struct {
	Incremental Range
	Gap         *Range
	// Full is set when the store was empty and Incremental covers the whole history.
	Full bool
}

// Plan computes the ranges to fetch from the store's latest record end (or start), its
// earliest record start and the account creation time.
func Plan(latest, earliest *time.Time, accountCreated, now time.Time) SyncPlan {
	if latest == nil {
		return SyncPlan{Incremental: Range{Start: accountCreated, End: now}, Full: true}
	}

	plan := SyncPlan{Incremental: Range{Start: latest.Add(-cursorOverlap), End: now}}
	if earliest != nil && earliest.Sub(accountCreated) > gapThreshold {
		plan.Gap = &Range{Start: accountCreated, End: earliest.Add(-time.Second)}
	}
	return plan
}

// StoreBounds returns the cursor (latest record's end, or its start when it has none) and the
// earliest record's start. Both are nil for an empty store.
func (s *Session) StoreBounds(ctx context.Context) (latest, earliest *time.Time, err error) {
	newest, err := docstore.First(ctx, s.Store, s.Containers.Entries, docstore.Query{
		Sorts: []docstore.Sort{{Property: PropTime, Descending: true}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("finding latest entry: %w", err)
	}
	if newest == nil {
		return nil, nil, nil
	}
	if start, end, ok := newest.Properties.Date(PropTime); ok {
		t := end
		if t.IsZero() {
			t = start
		}
		t = t.In(s.Location)
		latest = &t
	}

	oldest, err := docstore.First(ctx, s.Store, s.Containers.Entries, docstore.Query{
		Sorts: []docstore.Sort{{Property: PropTime}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("finding earliest entry: %w", err)
	}
	if oldest != nil {
		if start, _, ok := oldest.Properties.Date(PropTime); ok {
			t := start.In(s.Location)
			earliest = &t
		}
	}
	return latest, earliest, nil
}
