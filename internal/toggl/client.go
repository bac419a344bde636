// Package toggl talks to the Toggl Track API: the live v9 entries API, which only serves recent
// ranges, and the paginated v2 detailed report API used for older history.
package toggl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.track.toggl.com"
	userAgent      = "togglsync"
	reportPageSize = 50
)

var (
	// ErrQuotaExceeded is returned when the plan does not allow the requested history
	// (HTTP 402 Payment Required).
	ErrQuotaExceeded = errors.New("toggl plan quota exceeded")
	// ErrRangeTooOld is returned when the live API rejects a range as too far in the past.
	ErrRangeTooOld = errors.New("range too old for the live API")
)

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toggl API error (status %d): %s", e.Status, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.Status == http.StatusPaymentRequired
}

type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// MaxAttempts and RetryDelay bound the fixed retry on transport errors, 5xx and 429.
	MaxAttempts int
	RetryDelay  time.Duration
	// RateLimitWait is slept before retrying a report page answered with 429.
	RateLimitWait time.Duration
	// PageDelay is slept between successful report pages.
	PageDelay time.Duration
}

func NewClient(apiToken string, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiToken: apiToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:        logger,
		MaxAttempts:   3,
		RetryDelay:    5 * time.Second,
		RateLimitWait: 60 * time.Second,
		PageDelay:     time.Second,
	}
}

// doRequest sends one API call. Transport errors and 5xx responses are retried; 429 is retried
// only when retryRateLimit is set, otherwise it is returned to the caller as an *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, retryRateLimit bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	c.logger.Debug("toggl API request", "method", method, "path", path)

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	requestStart := time.Now()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.SetBasicAuth(c.apiToken, "api_token")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("sending request: %w", err)
			c.logger.Debug("toggl API transport error, retrying", "method", method, "path", path, "attempt", attempt, "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		c.logger.Debug("toggl API response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(requestStart))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 200)}
		if resp.StatusCode >= 500 || (resp.StatusCode == http.StatusTooManyRequests && retryRateLimit) {
			lastErr = apiErr
			c.logger.Debug("toggl API retryable error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		return nil, apiErr
	}

	c.logger.Error("toggl API request failed after retries", "method", method, "path", path, "attempts", attempts, "error", lastErr, "elapsed", time.Since(requestStart))
	return nil, lastErr
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.doRequest(ctx, http.MethodGet, path, query, nil, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Me returns the authenticated account, including its creation time.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.get(ctx, "/api/v9/me", nil, &me); err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &me, nil
}

func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var ws []Workspace
	if err := c.get(ctx, "/api/v9/me/workspaces", nil, &ws); err != nil {
		return nil, fmt.Errorf("getting workspaces: %w", err)
	}
	return ws, nil
}

func (c *Client) Projects(ctx context.Context, workspaceID int64) ([]Project, error) {
	var projects []Project
	path := fmt.Sprintf("/api/v9/workspaces/%d/projects", workspaceID)
	if err := c.get(ctx, path, nil, &projects); err != nil {
		return nil, fmt.Errorf("getting projects: %w", err)
	}
	return projects, nil
}

func (c *Client) Clients(ctx context.Context, workspaceID int64) ([]TogglClient, error) {
	var clients []TogglClient
	path := fmt.Sprintf("/api/v9/workspaces/%d/clients", workspaceID)
	if err := c.get(ctx, path, nil, &clients); err != nil {
		return nil, fmt.Errorf("getting clients: %w", err)
	}
	return clients, nil
}

// LoadDirectory fetches the projects and clients of every workspace.
func (c *Client) LoadDirectory(ctx context.Context, workspaces []Workspace) (*Directory, error) {
	dir := NewDirectory()
	for _, ws := range workspaces {
		clients, err := c.Clients(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("workspace %d: %w", ws.ID, err)
		}
		dir.AddClients(clients)

		projects, err := c.Projects(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("workspace %d: %w", ws.ID, err)
		}
		dir.AddProjects(projects)
	}
	return dir, nil
}

// RecentEntries lists entries from the live API. The API only serves roughly the last 90 days;
// older ranges fail with ErrRangeTooOld.
func (c *Client) RecentEntries(ctx context.Context, start, end time.Time) ([]TimeEntry, error) {
	query := url.Values{
		"start_date": {start.UTC().Format(time.RFC3339)},
		"end_date":   {end.UTC().Format(time.RFC3339)},
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v9/me/time_entries", query, nil, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return nil, fmt.Errorf("listing entries: %w: %s", ErrRangeTooOld, apiErr.Body)
		}
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	var entries []TimeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing entries response: %w", err)
	}
	return entries, nil
}

// ReportPage fetches one page (1-based) of the detailed report. A 429 is returned as an
// *APIError so the caller can pace itself.
func (c *Client) ReportPage(ctx context.Context, workspaceID int64, since, until time.Time, page int) (*ReportPage, error) {
	query := url.Values{
		"workspace_id": {strconv.FormatInt(workspaceID, 10)},
		"since":        {since.Format("2006-01-02")},
		"until":        {until.Format("2006-01-02")},
		"page":         {strconv.Itoa(page)},
		"user_agent":   {userAgent},
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/reports/api/v2/details", query, nil, false)
	if err != nil {
		return nil, fmt.Errorf("getting report page %d: %w", page, err)
	}

	var rp ReportPage
	if err := json.Unmarshal(data, &rp); err != nil {
		return nil, fmt.Errorf("parsing report page %d: %w", page, err)
	}
	return &rp, nil
}

// Report collects every page of the detailed report for [since, until]. A rate-limited page
// is retried after RateLimitWait until it succeeds or ctx is cancelled.
func (c *Client) Report(ctx context.Context, workspaceID int64, since, until time.Time) ([]ReportEntry, error) {
	var all []ReportEntry
	page := 1
	for {
		rp, err := c.ReportPage(ctx, workspaceID, since, until, page)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
				c.logger.Info("report API rate limited, waiting", "page", page, "wait", c.RateLimitWait)
				if err := sleep(ctx, c.RateLimitWait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		all = append(all, rp.Data...)

		perPage := rp.PerPage
		if perPage <= 0 {
			perPage = reportPageSize
		}
		if len(rp.Data) < perPage || (rp.TotalCount > 0 && len(all) >= rp.TotalCount) {
			return all, nil
		}

		page++
		if err := sleep(ctx, c.PageDelay); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *Client) CreateTimeEntry(ctx context.Context, workspaceID int64, entry TimeEntryRequest) (*TimeEntry, error) {
	if entry.CreatedWith == "" {
		entry.CreatedWith = userAgent
	}
	entry.WorkspaceID = workspaceID

	path := fmt.Sprintf("/api/v9/workspaces/%d/time_entries", workspaceID)
	data, err := c.doRequest(ctx, http.MethodPost, path, nil, entry, true)
	if err != nil {
		return nil, fmt.Errorf("creating time entry: %w", err)
	}

	var created TimeEntry
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("parsing time entry response: %w", err)
	}
	return &created, nil
}
