// Package syncer reconciles Toggl time entries with a document store: it plans which ranges to
// fetch, walks them backward window by window, upserts one document per entry and finally
// pushes store-only entries back to Toggl.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/toggl"
)

const calendarIconURL = "https://www.notion.so/icons/target_red.svg"

// Source is the time-tracking API. *toggl.Client implements it.
type Source interface {
	Me(ctx context.Context) (*toggl.Me, error)
	Workspaces(ctx context.Context) ([]toggl.Workspace, error)
	LoadDirectory(ctx context.Context, workspaces []toggl.Workspace) (*toggl.Directory, error)
	RecentEntries(ctx context.Context, start, end time.Time) ([]toggl.TimeEntry, error)
	Report(ctx context.Context, workspaceID int64, since, until time.Time) ([]toggl.ReportEntry, error)
	CreateTimeEntry(ctx context.Context, workspaceID int64, entry toggl.TimeEntryRequest) (*toggl.TimeEntry, error)
}

// Session holds everything one run shares: clients, the resolver cache and the project and
// client directory. It is built at the start of a run and discarded at its end.
type Session struct {
	Store      docstore.Store
	Source     Source
	Containers Containers
	Location   *time.Location
	Logger     *slog.Logger
	// Now is the run's clock; tests pin it.
	Now func() time.Time

	Entities  *resolve.EntityResolver
	Calendar  *resolve.CalendarResolver
	Directory *toggl.Directory

	entryIDWarned bool
}

func NewSession(store docstore.Store, source Source, containers Containers, loc *time.Location, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.UTC
	}
	entities := resolve.NewEntityResolver(store, logger)
	return &Session{
		Store:      store,
		Source:     source,
		Containers: containers,
		Location:   loc,
		Logger:     logger,
		Now:        time.Now,
		Entities:   entities,
		Calendar:   resolve.NewCalendarResolver(entities, containers.Calendar, loc, docstore.URLIcon(calendarIconURL)),
		Directory:  toggl.NewDirectory(),
	}
}

func (s *Session) now() time.Time {
	return s.Now().In(s.Location)
}

// SyncEntry writes one entry, updating the document that already carries its id or creating
// a new one. It reports whether a document was created.
func (s *Session) SyncEntry(ctx context.Context, e RawEntry) (bool, error) {
	props, icon, err := s.buildRecord(ctx, e)
	if err != nil {
		return false, err
	}

	existing, err := s.findEntry(ctx, e.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		clearAbsent(props)
		if _, err := resolve.UpdateWithFallback(ctx, s.Store, s.Logger, existing.ID, props, icon); err != nil {
			return false, fmt.Errorf("updating entry document: %w", err)
		}
		return false, nil
	}

	if _, err := resolve.CreateWithFallback(ctx, s.Store, s.Logger, s.Containers.Entries, props, icon); err != nil {
		return false, fmt.Errorf("creating entry document: %w", err)
	}
	return true, nil
}

// clearAbsent sets the optional entry fields the source no longer has to empty values, so an
// update removes what an earlier write linked.
func clearAbsent(props docstore.Properties) {
	for name, empty := range map[string]docstore.Value{
		PropNotes:          docstore.Text(""),
		PropTags:           docstore.Relation(),
		PropProject:        docstore.Relation(),
		resolve.PropClient: docstore.Relation(),
	} {
		if _, ok := props[name]; !ok {
			props[name] = empty
		}
	}
}

// findEntry returns nil when the entry is not stored yet or the container cannot be searched
// by id.
func (s *Session) findEntry(ctx context.Context, id int64) (*docstore.Document, error) {
	doc, err := docstore.First(ctx, s.Store, s.Containers.Entries, docstore.Query{
		Filter: docstore.NumberEquals(resolve.PropRemoteID, id),
	})
	if docstore.IsSchemaFieldMissing(err, resolve.PropRemoteID) {
		if !s.entryIDWarned {
			s.entryIDWarned = true
			s.Logger.Warn("entry container has no Id property, entries cannot be updated in place", "container", s.Containers.Entries)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up entry %d: %w", id, err)
	}
	return doc, nil
}
