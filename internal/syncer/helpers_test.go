package syncer

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/store"
	"github.com/christopherklint97/togglsync/internal/toggl"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, cst)
}

func int64p(n int64) *int64 { return &n }

func timep(t time.Time) *time.Time { return &t }

var testContainers = Containers{
	Entries:  "entries",
	Projects: "projects",
	Clients:  "clients",
	Tags:     "tags",
	Calendar: resolve.CalendarContainers{
		Year:  "years",
		Month: "months",
		Week:  "weeks",
		Day:   "days",
		All:   "all",
	},
}

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "togglsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// declare sets up every container, optionally leaving properties out of some of them.
func declare(t *testing.T, db *store.DB, omit map[string][]string) {
	t.Helper()
	for container, schema := range testContainers.Schemas() {
		s := docstore.Schema{}
		for name, kind := range schema {
			s[name] = kind
		}
		for _, name := range omit[container] {
			delete(s, name)
		}
		require.NoError(t, db.DeclareContainer(context.Background(), container, s))
	}
}

type call struct {
	api   string
	start time.Time
	end   time.Time
}

// fakeSource serves canned entries, filtered by start time like the real APIs.
type fakeSource struct {
	me      *toggl.Me
	meErr   error
	dir     *toggl.Directory
	live    []toggl.TimeEntry
	report  []toggl.ReportEntry
	liveErr func(start, end time.Time) error
	repErr  func(start, end time.Time) error

	createErr error
	nextID    int64
	created   []toggl.TimeEntryRequest

	calls []call
}

func (f *fakeSource) Me(ctx context.Context) (*toggl.Me, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.me, nil
}

func (f *fakeSource) Workspaces(ctx context.Context) ([]toggl.Workspace, error) {
	return []toggl.Workspace{{ID: 1, Name: "Personal"}}, nil
}

func (f *fakeSource) LoadDirectory(ctx context.Context, workspaces []toggl.Workspace) (*toggl.Directory, error) {
	if f.dir == nil {
		return toggl.NewDirectory(), nil
	}
	return f.dir, nil
}

func (f *fakeSource) RecentEntries(ctx context.Context, start, end time.Time) ([]toggl.TimeEntry, error) {
	f.calls = append(f.calls, call{api: "live", start: start, end: end})
	if f.liveErr != nil {
		if err := f.liveErr(start, end); err != nil {
			return nil, err
		}
	}
	var out []toggl.TimeEntry
	for _, e := range f.live {
		if !e.Start.Before(start) && !e.Start.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) Report(ctx context.Context, workspaceID int64, since, until time.Time) ([]toggl.ReportEntry, error) {
	f.calls = append(f.calls, call{api: "report", start: since, end: until})
	if f.repErr != nil {
		if err := f.repErr(since, until); err != nil {
			return nil, err
		}
	}
	var out []toggl.ReportEntry
	for _, e := range f.report {
		if !e.Start.Before(since) && !e.Start.After(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) CreateTimeEntry(ctx context.Context, workspaceID int64, entry toggl.TimeEntryRequest) (*toggl.TimeEntry, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, entry)
	return &toggl.TimeEntry{ID: 9000 + f.nextID, WorkspaceID: workspaceID, Description: entry.Description}, nil
}

func (f *fakeSource) apis() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.api)
	}
	return out
}

func newSession(t *testing.T, st docstore.Store, src Source, now time.Time) *Session {
	t.Helper()
	s := NewSession(st, src, testContainers, cst, nil)
	s.Now = func() time.Time { return now }
	return s
}

// entryIDs returns the Id of every stored entry, sorted.
func entryIDs(t *testing.T, st docstore.Store) []int64 {
	t.Helper()
	docs, err := docstore.QueryAll(context.Background(), st, testContainers.Entries, docstore.Query{})
	require.NoError(t, err)
	var ids []int64
	for _, d := range docs {
		if id, ok := d.Properties.Number(resolve.PropRemoteID); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func findEntryDoc(t *testing.T, st docstore.Store, id int64) *docstore.Document {
	t.Helper()
	doc, err := docstore.First(context.Background(), st, testContainers.Entries, docstore.Query{
		Filter: docstore.NumberEquals(resolve.PropRemoteID, id),
	})
	require.NoError(t, err)
	require.NotNil(t, doc, "entry %d not stored", id)
	return doc
}

func titleOf(t *testing.T, st docstore.Store, docID string) string {
	t.Helper()
	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	return doc.Properties.Title(resolve.PropTitle)
}
