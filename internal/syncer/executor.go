package syncer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/christopherklint97/togglsync/internal/toggl"
)

const (
	liveWindow = 10 * 24 * time.Hour
	// liveMaxAge is how old a window may be before it goes to the report API; the live API
	// stops serving at about 90 days.
	liveMaxAge = 85 * 24 * time.Hour
)

// AbortKind says how far a quota failure reaches.
type AbortKind int

const (
	NotAborted AbortKind = iota
	// AbortPhase stops the current range; later phases still run.
	AbortPhase
	// AbortRun stops the whole run.
	AbortRun
)

// Result summarizes one Execute call.
type Result struct {
	Success bool
	Abort   AbortKind
	Err     error

	Windows       int
	ReportWindows int
	Created       int
	Updated       int
	Skipped       int
	Failed        int
}

// Executor walks a range backward, newest window first.
type Executor struct {
	s *Session
}

func NewExecutor(s *Session) *Executor {
	return &Executor{s: s}
}

func windowStart(end, floor time.Time, report bool) time.Time {
	var start time.Time
	if report {
		start = end.AddDate(-1, 0, 0)
	} else {
		start = end.Add(-liveWindow)
	}
	if start.Before(floor) {
		return floor
	}
	return start
}

// Execute fetches and writes every entry in r. Writes made before a failure are kept.
func (x *Executor) Execute(ctx context.Context, r Range, workspaceID int64) Result {
	var res Result
	res.Abort, res.Err = x.walk(ctx, r, workspaceID, func(w window) {
		if len(w.entries) > 0 {
			x.s.Logger.Info("processing window", "start", w.start.Format(time.DateOnly), "end", w.end.Format(time.DateOnly), "entries", len(w.entries), "report", w.report)
		}
		x.processWindow(ctx, w.entries, &res)
		res.Windows++
		if w.report {
			res.ReportWindows++
		}
	})
	res.Success = res.Err == nil
	return res
}

// Collect fetches every entry in r without writing anything, newest window first.
func (x *Executor) Collect(ctx context.Context, r Range, workspaceID int64) ([]RawEntry, error) {
	var all []RawEntry
	_, err := x.walk(ctx, r, workspaceID, func(w window) {
		for _, e := range w.entries {
			if !e.Deleted {
				all = append(all, e)
			}
		}
	})
	return all, err
}

type window struct {
	start, end time.Time
	report     bool
	entries    []RawEntry
}

// walk fetches r backward one window at a time and hands each window to fn. Windows use the
// live API until they are older than liveMaxAge or the live API rejects a range as too old;
// from then on the remaining older windows use the report API.
func (x *Executor) walk(ctx context.Context, r Range, workspaceID int64, fn func(window)) (AbortKind, error) {
	log := x.s.Logger
	now := x.s.now()

	useReport := false
	end := r.End

	for end.After(r.Start) {
		if err := ctx.Err(); err != nil {
			return NotAborted, err
		}

		start := windowStart(end, r.Start, useReport)
		if !useReport && now.Sub(start) > liveMaxAge {
			useReport = true
			log.Info("switching to report API for older windows", "before", end.Format(time.DateOnly))
			start = windowStart(end, r.Start, true)
		}

		w := window{start: start, end: end, report: useReport}
		if !useReport {
			live, err := x.s.Source.RecentEntries(ctx, start, end)
			switch {
			case errors.Is(err, toggl.ErrRangeTooOld):
				log.Info("live API rejected range as too old, switching to report API", "start", start.Format(time.DateOnly), "error", err)
				useReport = true
				continue
			case errors.Is(err, toggl.ErrQuotaExceeded):
				log.Error("live API quota exhausted, stopping sync", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
				return AbortRun, err
			case err != nil:
				log.Error("fetching entries failed", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "error", err)
				return NotAborted, err
			}
			for _, e := range live {
				w.entries = append(w.entries, x.s.fromLive(e))
			}
		} else {
			report, err := x.s.Source.Report(ctx, workspaceID, start, end)
			switch {
			case errors.Is(err, toggl.ErrQuotaExceeded):
				log.Warn("reached the historical data ceiling of the report API", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
				return AbortPhase, err
			case err != nil:
				log.Error("fetching report failed", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "error", err)
				return NotAborted, err
			}
			for _, e := range report {
				w.entries = append(w.entries, x.s.fromReport(e))
			}
		}

		fn(w)

		if !start.After(r.Start) {
			break
		}
		end = start.Add(-time.Second)
	}
	return NotAborted, nil
}

// processWindow writes entries newest first. A failing entry is logged and skipped.
func (x *Executor) processWindow(ctx context.Context, entries []RawEntry, res *Result) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Start.After(entries[j].Start)
	})

	for _, e := range entries {
		if e.Deleted {
			res.Skipped++
			continue
		}
		created, err := x.s.SyncEntry(ctx, e)
		if err != nil {
			x.s.Logger.Error("failed to sync entry", "entry_id", e.ID, "description", e.Description, "error", err)
			res.Failed++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
}
