package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("secret", srv.URL, nil)
	c.RetryDelay = 0
	return c
}

func validationError(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"object":  "error",
		"status":  400,
		"code":    "validation_error",
		"message": message,
	})
}

const pageBody = `{
	"id": "page-1",
	"parent": {"type": "database_id", "database_id": "db-1"},
	"icon": {"type": "emoji", "emoji": "🚀"},
	"properties": {
		"标题": {"type": "title", "title": [{"plain_text": "Launch"}]},
		"Id": {"type": "number", "number": 10},
		"时间": {"type": "date", "date": {"start": "2023-04-01T09:00:00.000+08:00", "end": "2023-04-01T10:00:00.000+08:00"}},
		"日期": {"type": "date", "date": {"start": "2023-04-01", "end": null}},
		"备注": {"type": "rich_text", "rich_text": [{"plain_text": "ship "}, {"plain_text": "it"}]},
		"标签": {"type": "relation", "relation": [{"id": "tag-1"}, {"id": "tag-2"}]},
		"Formula": {"type": "formula", "formula": {}}
	}
}`

func TestHeaders(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Notion-Version"))
		assert.Equal(t, "/pages/page-1", r.URL.Path)
		fmt.Fprint(w, pageBody)
	})

	doc, err := c.GetDocument(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "db-1", doc.Container)
	assert.Equal(t, "Launch", doc.Properties.Title("标题"))
	assert.Equal(t, "ship it", doc.Properties.Text("备注"))
	id, ok := doc.Properties.Number("Id")
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
	start, end, ok := doc.Properties.Date("时间")
	require.True(t, ok)
	assert.True(t, start.Equal(time.Date(2023, 4, 1, 1, 0, 0, 0, time.UTC)))
	assert.True(t, end.Equal(time.Date(2023, 4, 1, 2, 0, 0, 0, time.UTC)))
	assert.True(t, doc.Properties["日期"].DateOnly)
	assert.Equal(t, []string{"tag-1", "tag-2"}, doc.Properties.Relation("标签"))
	assert.NotContains(t, doc.Properties, "Formula")
	require.NotNil(t, doc.Icon)
	assert.Equal(t, "🚀", doc.Icon.Emoji)
}

func TestGetDocumentNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code": "object_not_found", "message": "Could not find page"}`)
	})
	_, err := c.GetDocument(context.Background(), "missing")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}

func TestQueryEncoding(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/db-1/query", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		filter := body["filter"].(map[string]any)
		assert.Equal(t, "Id", filter["property"])
		assert.Equal(t, map[string]any{"equals": float64(10)}, filter["number"])
		assert.Equal(t, []any{map[string]any{"property": "时间", "direction": "descending"}}, body["sorts"])
		assert.Equal(t, float64(1), body["page_size"])

		fmt.Fprintf(w, `{"results": [%s], "next_cursor": null, "has_more": false}`, pageBody)
	})

	doc, err := docstore.First(context.Background(), c, "db-1", docstore.Query{
		Filter: docstore.NumberEquals("Id", 10),
		Sorts:  []docstore.Sort{{Property: "时间", Descending: true}},
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "page-1", doc.ID)
}

func TestQueryFollowsCursor(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			assert.NotContains(t, body, "start_cursor")
			fmt.Fprintf(w, `{"results": [%s], "next_cursor": "abc", "has_more": true}`, pageBody)
			return
		}
		assert.Equal(t, "abc", body["start_cursor"])
		fmt.Fprintf(w, `{"results": [%s], "next_cursor": null, "has_more": false}`, pageBody)
	})

	docs, err := docstore.QueryAll(context.Background(), c, "db-1", docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCreateEncoding(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pages", r.URL.Path)
		data, _ := io.ReadAll(r.Body)

		var body struct {
			Parent     map[string]string         `json:"parent"`
			Icon       map[string]any            `json:"icon"`
			Properties map[string]map[string]any `json:"properties"`
		}
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "db-1", body.Parent["database_id"])
		assert.Equal(t, "external", body.Icon["type"])

		date := body.Properties["日期"]["date"].(map[string]any)
		assert.Equal(t, "2023-04-01", date["start"])
		assert.Equal(t, "2023-04-07", date["end"])

		when := body.Properties["时间"]["date"].(map[string]any)
		assert.Equal(t, "2023-04-01T09:00:00+08:00", when["start"])
		assert.NotContains(t, when, "end")

		assert.Equal(t, float64(3), body.Properties["Id"]["number"])
		fmt.Fprint(w, pageBody)
	})

	cst := time.FixedZone("CST", 8*3600)
	day := time.Date(2023, 4, 1, 0, 0, 0, 0, cst)
	_, err := c.CreateDocument(context.Background(), "db-1", docstore.Properties{
		"标题": docstore.Title("x"),
		"日期": docstore.DayRange(day, day.AddDate(0, 0, 6)),
		"时间": docstore.DateRange(time.Date(2023, 4, 1, 9, 0, 0, 0, cst), time.Time{}),
		"Id": docstore.Number(3),
	}, docstore.URLIcon("https://www.notion.so/icons/tag_gray.svg"))
	require.NoError(t, err)
}

func TestMissingPropertyFromMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		validationError(w, "Id is not a property that exists.")
	})

	_, err := c.CreateDocument(context.Background(), "db-1", docstore.Properties{
		"标题": docstore.Title("x"),
		"Id": docstore.Number(1),
	}, nil)
	assert.True(t, docstore.IsSchemaFieldMissing(err, "Id"), "got %v", err)

	_, err = c.Query(context.Background(), "db-1", docstore.Query{Sorts: []docstore.Sort{{Property: "Id"}}})
	assert.True(t, docstore.IsSchemaFieldMissing(err, "Id"))
}

func TestMissingPropertyFromSchema(t *testing.T) {
	var schemaCalls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/databases/db-1" {
			schemaCalls.Add(1)
			fmt.Fprint(w, `{"properties": {"标题": {"type": "title"}, "时间": {"type": "date"}}}`)
			return
		}
		validationError(w, "body failed validation: body.properties.Id should be defined")
	})

	props := docstore.Properties{"标题": docstore.Title("x"), "Id": docstore.Number(1)}
	_, err := c.CreateDocument(context.Background(), "db-1", props, nil)
	assert.True(t, docstore.IsSchemaFieldMissing(err, "Id"), "got %v", err)

	_, err = c.CreateDocument(context.Background(), "db-1", props, nil)
	assert.True(t, docstore.IsSchemaFieldMissing(err, "Id"))
	assert.Equal(t, int32(1), schemaCalls.Load(), "schema is cached")
}

func TestOtherValidationErrorsPassThrough(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/databases/db-1" {
			fmt.Fprint(w, `{"properties": {"标题": {"type": "title"}}}`)
			return
		}
		validationError(w, "Title is too long.")
	})

	_, err := c.CreateDocument(context.Background(), "db-1", docstore.Properties{"标题": docstore.Title("x")}, nil)
	require.Error(t, err)
	assert.False(t, docstore.IsSchemaFieldMissing(err, ""))
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestUpdateClassifiesAgainstParent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch:
			validationError(w, "body failed validation")
		case r.URL.Path == "/pages/page-1":
			fmt.Fprint(w, pageBody)
		case r.URL.Path == "/databases/db-1":
			fmt.Fprint(w, `{"properties": {"标题": {"type": "title"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	_, err := c.UpdateDocument(context.Background(), "page-1", docstore.Properties{"Id": docstore.Number(4)}, nil)
	assert.True(t, docstore.IsSchemaFieldMissing(err, "Id"), "got %v", err)
}

func TestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code": "rate_limited", "message": "slow down"}`)
			return
		}
		fmt.Fprint(w, pageBody)
	})

	_, err := c.GetDocument(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.GetDocument(context.Background(), "page-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpdateEmbedBlock(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/blocks/block-1", r.URL.Path)
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/heatmap.svg", body["embed"]["url"])
		fmt.Fprint(w, `{}`)
	})
	require.NoError(t, c.UpdateEmbedBlock(context.Background(), "block-1", "https://example.com/heatmap.svg"))
}
