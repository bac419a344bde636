package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/toggl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historySource() *fakeSource {
	dir := toggl.NewDirectory()
	dir.AddClients([]toggl.TogglClient{{ID: 20, Name: "Acme"}})
	dir.AddProjects([]toggl.Project{{ID: 10, WorkspaceID: 1, Name: "🚀 Launch", ClientID: int64p(20)}})

	return &fakeSource{
		me:  &toggl.Me{ID: 1, DefaultWorkspaceID: 1, CreatedAt: at(2023, 1, 1, 0)},
		dir: dir,
		live: []toggl.TimeEntry{
			{
				ID:          1,
				WorkspaceID: 1,
				ProjectID:   int64p(10),
				Description: "ship it",
				Start:       at(2023, 4, 1, 9),
				Stop:        timep(at(2023, 4, 1, 10)),
				Duration:    3600,
				Tags:        []string{"deep"},
			},
			{
				ID:          2,
				WorkspaceID: 1,
				Start:       at(2023, 3, 1, 14),
				Stop:        timep(at(2023, 3, 1, 15)),
				Duration:    3600,
				Tags:        []string{"deep", "admin"},
			},
		},
		report: []toggl.ReportEntry{
			{
				ID:          3,
				ProjectID:   int64p(10),
				Project:     "🚀 Launch",
				Client:      "Acme",
				Description: "kickoff",
				Start:       at(2023, 1, 5, 9),
				End:         timep(at(2023, 1, 5, 11)),
				Dur:         7200000,
			},
		},
	}
}

func TestRunEmptyStore(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, nil)
	src := historySource()
	now := at(2023, 4, 5, 0)

	report, err := NewRunner(newSession(t, db, src, now)).Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Success())
	assert.True(t, report.Plan.Full)
	assert.Equal(t, 3, report.Incremental.Created)
	assert.Nil(t, report.Gap)

	require.NotEmpty(t, src.calls)
	first := src.calls[0]
	assert.Equal(t, "live", first.api)
	assert.True(t, first.end.Equal(now), "first window ends at now")
	for i := 1; i < len(src.calls); i++ {
		assert.True(t, src.calls[i].end.Before(src.calls[i-1].start), "windows walk backward without overlap")
	}
	last := src.calls[len(src.calls)-1]
	assert.Equal(t, "report", last.api)
	assert.True(t, last.start.Equal(at(2023, 1, 1, 0)), "oldest window starts at account creation")

	assert.Equal(t, []int64{1, 2, 3}, entryIDs(t, db))

	launch := findEntryDoc(t, db, 1)
	assert.Equal(t, "Launch", launch.Properties.Title(resolve.PropTitle))
	assert.Equal(t, "ship it", launch.Properties.Text(PropNotes))
	require.NotNil(t, launch.Icon)
	assert.Equal(t, "🚀", launch.Icon.Emoji)
	start, end, ok := launch.Properties.Date(PropTime)
	require.True(t, ok)
	assert.True(t, start.Equal(at(2023, 4, 1, 9)))
	assert.True(t, end.Equal(at(2023, 4, 1, 10)))

	projects := launch.Properties.Relation(PropProject)
	require.Len(t, projects, 1)
	project, err := db.GetDocument(ctx, projects[0])
	require.NoError(t, err)
	assert.Equal(t, "Launch", project.Properties.Title(resolve.PropTitle))
	id, _ := project.Properties.Number(resolve.PropRemoteID)
	assert.Equal(t, int64(10), id)
	require.Len(t, project.Properties.Relation(resolve.PropClient), 1)
	assert.Equal(t, "Acme", titleOf(t, db, project.Properties.Relation(resolve.PropClient)[0]))

	days := launch.Properties.Relation(resolve.PropDay)
	require.Len(t, days, 1)
	assert.Equal(t, "2023年04月01日", titleOf(t, db, days[0]))

	untitledDoc := findEntryDoc(t, db, 2)
	assert.Equal(t, untitled, untitledDoc.Properties.Title(resolve.PropTitle))
	assert.Len(t, untitledDoc.Properties.Relation(PropTags), 2)

	// the report entry names the project and reuses the document created from the live one
	kickoff := findEntryDoc(t, db, 3)
	assert.Equal(t, projects, kickoff.Properties.Relation(PropProject))

	n, err := db.Count(ctx, testContainers.Tags)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, nil)
	now := at(2023, 4, 5, 0)

	_, err := NewRunner(newSession(t, db, historySource(), now)).Run(ctx)
	require.NoError(t, err)

	counts := map[string]int{}
	for container := range testContainers.Schemas() {
		n, err := db.Count(ctx, container)
		require.NoError(t, err)
		counts[container] = n
	}
	firstDoc := findEntryDoc(t, db, 1)

	src := historySource()
	report, err := NewRunner(newSession(t, db, src, now.Add(time.Hour))).Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Success())
	assert.False(t, report.Plan.Full)
	assert.Nil(t, report.Plan.Gap)
	assert.Equal(t, 0, report.Incremental.Created)
	assert.Equal(t, 1, report.Incremental.Updated)
	for _, c := range src.calls {
		assert.Equal(t, "live", c.api)
	}

	for container, want := range counts {
		n, err := db.Count(ctx, container)
		require.NoError(t, err)
		assert.Equal(t, want, n, "documents in %s", container)
	}
	assert.Equal(t, firstDoc.ID, findEntryDoc(t, db, 1).ID)
	assert.Equal(t, []int64{1, 2, 3}, entryIDs(t, db))
}

func TestExecuteSwitchesToReportWhenLiveRejectsRange(t *testing.T) {
	db := openStore(t)
	declare(t, db, nil)
	src := historySource()
	cutoff := at(2023, 3, 15, 0)
	src.liveErr = func(start, end time.Time) error {
		if start.Before(cutoff) {
			return fmt.Errorf("listing entries: %w", toggl.ErrRangeTooOld)
		}
		return nil
	}
	src.report = append(src.report, toggl.ReportEntry{
		ID:    2,
		Start: at(2023, 3, 1, 14),
		End:   timep(at(2023, 3, 1, 15)),
		Dur:   3600000,
	})

	s := newSession(t, db, src, at(2023, 4, 5, 0))
	res := NewExecutor(s).Execute(context.Background(), Range{Start: at(2023, 1, 1, 0), End: at(2023, 4, 5, 0)}, 1)
	require.True(t, res.Success, "err: %v", res.Err)

	apis := src.apis()
	seenReport := false
	for _, api := range apis {
		if api == "report" {
			seenReport = true
			continue
		}
		assert.False(t, seenReport, "live API used after switching to report: %v", apis)
	}
	assert.True(t, seenReport)
	assert.Equal(t, []int64{1, 2, 3}, entryIDs(t, db))
}

func TestExecuteQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("live quota aborts the run", func(t *testing.T) {
		db := openStore(t)
		declare(t, db, nil)
		src := historySource()
		src.liveErr = func(start, end time.Time) error {
			return &toggl.APIError{Status: 402, Body: "payment required"}
		}

		report, err := NewRunner(newSession(t, db, src, at(2023, 4, 5, 0))).Run(ctx)
		require.NoError(t, err)
		assert.True(t, report.Aborted)
		assert.False(t, report.Success())
		assert.Equal(t, AbortRun, report.Incremental.Abort)
		assert.Nil(t, report.Reverse)
		assert.True(t, errors.Is(report.Incremental.Err, toggl.ErrQuotaExceeded))
	})

	t.Run("report quota stops only the phase", func(t *testing.T) {
		db := openStore(t)
		declare(t, db, nil)
		src := historySource()
		src.repErr = func(start, end time.Time) error {
			return fmt.Errorf("getting report page 1: %w", &toggl.APIError{Status: 402})
		}

		report, err := NewRunner(newSession(t, db, src, at(2023, 4, 5, 0))).Run(ctx)
		require.NoError(t, err)
		assert.False(t, report.Aborted)
		assert.Equal(t, AbortPhase, report.Incremental.Abort)
		assert.False(t, report.Incremental.Success)
		assert.NotNil(t, report.Reverse, "reverse sync still runs")
		// entries from the live windows were written before the failure
		assert.Equal(t, []int64{1, 2}, entryIDs(t, db))
	})
}

// failingStore rejects entry documents with a given title.
type failingStore struct {
	docstore.Store
	title string
}

func (f *failingStore) CreateDocument(ctx context.Context, container string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	if container == testContainers.Entries && props.Title(resolve.PropTitle) == f.title {
		return nil, errors.New("simulated write failure")
	}
	return f.Store.CreateDocument(ctx, container, props, icon)
}

func TestExecuteIsolatesEntryFailures(t *testing.T) {
	db := openStore(t)
	declare(t, db, nil)
	src := historySource()

	s := newSession(t, &failingStore{Store: db, title: untitled}, src, at(2023, 4, 5, 0))
	res := NewExecutor(s).Execute(context.Background(), Range{Start: at(2023, 1, 1, 0), End: at(2023, 4, 5, 0)}, 1)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []int64{1, 3}, entryIDs(t, db))
}

func TestExecuteSkipsDeletedEntries(t *testing.T) {
	db := openStore(t)
	declare(t, db, nil)
	src := historySource()
	src.live[1].ServerDeletedAt = timep(at(2023, 3, 2, 0))

	s := newSession(t, db, src, at(2023, 4, 5, 0))
	res := NewExecutor(s).Execute(context.Background(), Range{Start: at(2023, 3, 1, 0), End: at(2023, 4, 5, 0)}, 1)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int64{1}, entryIDs(t, db))
}

func TestSyncEntryWithoutIDProperty(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, map[string][]string{testContainers.Entries: {resolve.PropRemoteID}})

	s := newSession(t, db, historySource(), at(2023, 4, 5, 0))
	created, err := s.SyncEntry(ctx, RawEntry{
		ID:          42,
		Start:       at(2023, 4, 1, 9),
		Stop:        at(2023, 4, 1, 10),
		Description: "notes only",
	})
	require.NoError(t, err)
	assert.True(t, created)

	n, err := db.Count(ctx, testContainers.Entries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, nil)
	src := historySource()
	src.live[1].ServerDeletedAt = timep(at(2023, 3, 2, 0))

	s := newSession(t, db, src, at(2023, 4, 5, 0))
	entries, err := NewExecutor(s).Collect(ctx, Range{Start: at(2023, 1, 1, 0), End: at(2023, 4, 5, 0)}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(3), entries[1].ID)
	assert.Equal(t, int64(7200), entries[1].Duration)

	n, err := db.Count(ctx, testContainers.Entries)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRerunClearsRemovedFields(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, nil)
	now := at(2023, 4, 5, 0)
	src := historySource()

	_, err := NewRunner(newSession(t, db, src, now)).Run(ctx)
	require.NoError(t, err)
	before := findEntryDoc(t, db, 1)
	require.NotEmpty(t, before.Properties.Relation(PropProject))

	src.live[0].ProjectID = nil
	src.live[0].Tags = nil
	src.live[0].Description = ""

	report, err := NewRunner(newSession(t, db, src, now)).Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Success())

	after := findEntryDoc(t, db, 1)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, untitled, after.Properties.Title(resolve.PropTitle))
	assert.Empty(t, after.Properties.Text(PropNotes))
	assert.Empty(t, after.Properties.Relation(PropTags))
	assert.Empty(t, after.Properties.Relation(PropProject))
	assert.Empty(t, after.Properties.Relation(resolve.PropClient))
	assert.Len(t, after.Properties.Relation(resolve.PropDay), 1)
}

func TestRerunWithMissingOptionalProperties(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, map[string][]string{
		testContainers.Entries:  {resolve.PropClient, PropNotes},
		testContainers.Projects: {PropCoins},
	})
	now := at(2023, 4, 5, 0)

	for range 2 {
		report, err := NewRunner(newSession(t, db, historySource(), now)).Run(ctx)
		require.NoError(t, err)
		require.True(t, report.Success())
		assert.Zero(t, report.Incremental.Failed)
	}
	assert.Equal(t, []int64{1, 2, 3}, entryIDs(t, db))
}

func TestNewProjectGetsCoins(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	declare(t, db, nil)

	_, err := NewRunner(newSession(t, db, historySource(), at(2023, 4, 5, 0))).Run(ctx)
	require.NoError(t, err)

	projects, err := docstore.QueryAll(ctx, db, testContainers.Projects, docstore.Query{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	coins, ok := projects[0].Properties.Number(PropCoins)
	require.True(t, ok)
	assert.Equal(t, int64(1), coins)
}
