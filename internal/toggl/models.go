package toggl

import "time"

// Me is the authenticated account.
type Me struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Fullname           string    `json:"fullname"`
	Timezone           string    `json:"timezone"`
	DefaultWorkspaceID int64     `json:"default_workspace_id"`
	CreatedAt          time.Time `json:"created_at"`
}

type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	ClientID    *int64 `json:"client_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
}

type TogglClient struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"wid"`
	Name        string `json:"name"`
}

// TimeEntry is an entry from the live entries API. Duration is in seconds and negative while
// the entry is running.
type TimeEntry struct {
	ID              int64      `json:"id"`
	WorkspaceID     int64      `json:"workspace_id"`
	ProjectID       *int64     `json:"project_id"`
	Description     string     `json:"description"`
	Start           time.Time  `json:"start"`
	Stop            *time.Time `json:"stop"`
	Duration        int64      `json:"duration"`
	Tags            []string   `json:"tags"`
	ServerDeletedAt *time.Time `json:"server_deleted_at"`
}

// ReportEntry is an entry from the detailed report API. It names its project and client
// instead of referencing them, calls the stop time "end", and reports Dur in milliseconds.
type ReportEntry struct {
	ID          int64      `json:"id"`
	ProjectID   *int64     `json:"pid"`
	Project     string     `json:"project"`
	Client      string     `json:"client"`
	Description string     `json:"description"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	Dur         int64      `json:"dur"`
	Tags        []string   `json:"tags"`
}

// ReportPage is one page of the detailed report.
type ReportPage struct {
	TotalCount int           `json:"total_count"`
	PerPage    int           `json:"per_page"`
	Data       []ReportEntry `json:"data"`
}

type TimeEntryRequest struct {
	CreatedWith string   `json:"created_with"`
	WorkspaceID int64    `json:"workspace_id"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	Duration    int64    `json:"duration"`
	ProjectID   *int64   `json:"project_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
