// Package notion is the Notion API implementation of docstore.Store.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

var _ docstore.Store = (*Client)(nil)

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// MaxAttempts and RetryDelay bound the fixed retry applied to transient failures.
	MaxAttempts int
	RetryDelay  time.Duration

	// database id -> property name -> property type
	schemas map[string]map[string]string
}

func NewClient(token, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      logger,
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
		schemas:     make(map[string]map[string]string),
	}
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error (status %d, %s): %s", e.Status, e.Code, e.Message)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	c.logger.Debug("notion API request", "method", method, "path", path)

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
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", apiVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("sending request: %w", err)
			c.logger.Debug("notion API transport error, retrying", "method", method, "path", path, "attempt", attempt, "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.logger.Debug("notion API response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(requestStart))
			return respBody, nil
		}

		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = truncate(string(respBody), 200)
		}
		if !retryable(resp.StatusCode) {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Debug("notion API retryable error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt)
	}

	c.logger.Error("notion API request failed after retries", "method", method, "path", path, "attempts", attempts, "error", lastErr, "elapsed", time.Since(requestStart))
	return nil, lastErr
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

type queryResponse struct {
	Results    []pageJSON `json:"results"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

func (c *Client) Query(ctx context.Context, container string, q docstore.Query) (*docstore.Page, error) {
	body := map[string]any{}
	if q.Filter != nil {
		body["filter"] = encodeFilter(q.Filter)
	}
	if len(q.Sorts) > 0 {
		sorts := make([]map[string]string, 0, len(q.Sorts))
		for _, s := range q.Sorts {
			dir := "ascending"
			if s.Descending {
				dir = "descending"
			}
			sorts = append(sorts, map[string]string{"property": s.Property, "direction": dir})
		}
		body["sorts"] = sorts
	}
	if q.Cursor != "" {
		body["start_cursor"] = q.Cursor
	}
	if q.PageSize > 0 {
		body["page_size"] = q.PageSize
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/databases/"+container+"/query", body)
	if err != nil {
		return nil, c.classify(ctx, container, err, queryProperties(q))
	}

	var resp queryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}

	page := &docstore.Page{NextCursor: resp.NextCursor, HasMore: resp.HasMore}
	for _, p := range resp.Results {
		page.Documents = append(page.Documents, p.document())
	}
	return page, nil
}

func (c *Client) CreateDocument(ctx context.Context, container string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	body := map[string]any{
		"parent":     map[string]string{"type": "database_id", "database_id": container},
		"properties": encodeProperties(props),
	}
	if icon != nil {
		body["icon"] = encodeIcon(icon)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/pages", body)
	if err != nil {
		return nil, c.classify(ctx, container, fmt.Errorf("creating page: %w", err), props.Names())
	}

	var page pageJSON
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parsing page response: %w", err)
	}
	doc := page.document()
	return &doc, nil
}

func (c *Client) UpdateDocument(ctx context.Context, id string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	body := map[string]any{"properties": encodeProperties(props)}
	if icon != nil {
		body["icon"] = encodeIcon(icon)
	}

	data, err := c.doRequest(ctx, http.MethodPatch, "/pages/"+id, body)
	if err != nil {
		container := ""
		if isValidationError(err) {
			if doc, getErr := c.GetDocument(ctx, id); getErr == nil {
				container = doc.Container
			}
		}
		return nil, c.classify(ctx, container, fmt.Errorf("updating page %s: %w", id, err), props.Names())
	}

	var page pageJSON
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parsing page response: %w", err)
	}
	doc := page.document()
	return &doc, nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*docstore.Document, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/pages/"+id, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("getting page %s: %w", id, docstore.ErrNotFound)
		}
		return nil, fmt.Errorf("getting page %s: %w", id, err)
	}

	var page pageJSON
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parsing page response: %w", err)
	}
	doc := page.document()
	return &doc, nil
}

// UpdateEmbedBlock points an embed block at url.
func (c *Client) UpdateEmbedBlock(ctx context.Context, blockID, url string) error {
	body := map[string]any{"embed": map[string]string{"url": url}}
	if _, err := c.doRequest(ctx, http.MethodPatch, "/blocks/"+blockID, body); err != nil {
		return fmt.Errorf("updating embed block %s: %w", blockID, err)
	}
	return nil
}

type databaseJSON struct {
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
}

// DatabaseSchema returns the property name -> type map of a database. Results are cached for
// the lifetime of the client.
func (c *Client) DatabaseSchema(ctx context.Context, databaseID string) (map[string]string, error) {
	if s, ok := c.schemas[databaseID]; ok {
		return s, nil
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/databases/"+databaseID, nil)
	if err != nil {
		return nil, fmt.Errorf("getting database %s: %w", databaseID, err)
	}

	var db databaseJSON
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("parsing database response: %w", err)
	}

	schema := make(map[string]string, len(db.Properties))
	for name, p := range db.Properties {
		schema[name] = p.Type
	}
	c.schemas[databaseID] = schema
	return schema, nil
}

func queryProperties(q docstore.Query) []string {
	var names []string
	if q.Filter != nil {
		names = append(names, q.Filter.Property)
	}
	for _, s := range q.Sorts {
		names = append(names, s.Property)
	}
	return names
}
