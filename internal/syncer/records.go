package syncer

import (
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
)

// Entry container properties beyond the shared ones in package resolve.
const (
	PropTime    = "时间"
	PropNotes   = "备注"
	PropTags    = "标签"
	PropProject = "Project"
)

// PropCoins is a counter set on new project documents and left alone afterwards.
const PropCoins = "金币"

// untitled is the entry title used when an entry has neither project nor description.
const untitled = "无描述"

const tagIconURL = "https://www.notion.so/icons/tag_gray.svg"

// EntrySchema is the fixed layout of an entry document.
var EntrySchema = docstore.Schema{
	resolve.PropTitle:    docstore.KindTitle,
	PropTime:             docstore.KindDate,
	resolve.PropRemoteID: docstore.KindNumber,
	PropNotes:            docstore.KindRichText,
	PropTags:             docstore.KindRelation,
	PropProject:          docstore.KindRelation,
	resolve.PropClient:   docstore.KindRelation,
	resolve.PropYear:     docstore.KindRelation,
	resolve.PropMonth:    docstore.KindRelation,
	resolve.PropWeek:     docstore.KindRelation,
	resolve.PropDay:      docstore.KindRelation,
	resolve.PropAll:      docstore.KindRelation,
}

// ProjectSchema is the project node layout plus the fields entries add to new projects.
var ProjectSchema = func() docstore.Schema {
	s := docstore.Schema{PropCoins: docstore.KindNumber}
	for name, kind := range resolve.ProjectSchema {
		s[name] = kind
	}
	return s
}()

// Containers are the store containers a run writes to.
type Containers struct {
	Entries  string
	Projects string
	Clients  string
	Tags     string
	Calendar resolve.CalendarContainers
}

// Schemas returns every container with the schema it is expected to carry.
func (c Containers) Schemas() map[string]docstore.Schema {
	return map[string]docstore.Schema{
		c.Entries:        EntrySchema,
		c.Projects:       ProjectSchema,
		c.Clients:        resolve.ClientSchema,
		c.Tags:           resolve.TagSchema,
		c.Calendar.Year:  resolve.YearSchema,
		c.Calendar.Month: resolve.MonthSchema,
		c.Calendar.Week:  resolve.WeekSchema,
		c.Calendar.Day:   resolve.DaySchema,
		c.Calendar.All:   resolve.AllSchema,
	}
}

// RawEntry is a time entry from either source API in one shape. Duration is in seconds.
type RawEntry struct {
	ID          int64
	WorkspaceID int64
	Start       time.Time
	Stop        time.Time
	Description string
	Tags        []string
	ProjectID   *int64
	ProjectName string
	ClientID    *int64
	ClientName  string
	Deleted     bool
	Duration    int64
}
