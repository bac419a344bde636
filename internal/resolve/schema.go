package resolve

import "github.com/christopherklint97/togglsync/internal/docstore"

// Property names shared by every container the sync writes to.
const (
	PropTitle    = "标题"
	PropRemoteID = "Id"
	PropDate     = "日期"
	PropClient   = "Client"

	PropYear  = "年"
	PropMonth = "月"
	PropWeek  = "周"
	PropDay   = "日"
	PropAll   = "全部"
)

// AllLabel is the title of the singleton root calendar node.
const AllLabel = "全部"

// Node schemas. Containers may lack any property but the title; writes drop missing ones.
var (
	TagSchema = docstore.Schema{
		PropTitle:    docstore.KindTitle,
		PropRemoteID: docstore.KindNumber,
	}
	ClientSchema = docstore.Schema{
		PropTitle:    docstore.KindTitle,
		PropRemoteID: docstore.KindNumber,
	}
	ProjectSchema = docstore.Schema{
		PropTitle:    docstore.KindTitle,
		PropRemoteID: docstore.KindNumber,
		PropClient:   docstore.KindRelation,
	}
	YearSchema = docstore.Schema{
		PropTitle: docstore.KindTitle,
		PropDate:  docstore.KindDate,
	}
	MonthSchema = docstore.Schema{
		PropTitle: docstore.KindTitle,
		PropDate:  docstore.KindDate,
		PropYear:  docstore.KindRelation,
	}
	WeekSchema = docstore.Schema{
		PropTitle: docstore.KindTitle,
		PropDate:  docstore.KindDate,
		PropMonth: docstore.KindRelation,
		PropYear:  docstore.KindRelation,
	}
	DaySchema = docstore.Schema{
		PropTitle: docstore.KindTitle,
		PropDate:  docstore.KindDate,
		PropWeek:  docstore.KindRelation,
		PropMonth: docstore.KindRelation,
		PropYear:  docstore.KindRelation,
	}
	AllSchema = docstore.Schema{
		PropTitle: docstore.KindTitle,
	}
)
