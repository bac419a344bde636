package docstore

import (
	"context"
	"fmt"
)

// Op is a filter comparison.
type Op string

const (
	OpEquals  Op = "equals"
	OpIsEmpty Op = "is_empty"
)

// Filter restricts a query to documents whose property matches.
type Filter struct {
	Property string
	Kind     Kind // KindNumber or KindTitle
	Op       Op
	Number   int64
	Text     string
}

func NumberEquals(property string, n int64) *Filter {
	return &Filter{Property: property, Kind: KindNumber, Op: OpEquals, Number: n}
}

func NumberIsEmpty(property string) *Filter {
	return &Filter{Property: property, Kind: KindNumber, Op: OpIsEmpty}
}

func TitleEquals(property, text string) *Filter {
	return &Filter{Property: property, Kind: KindTitle, Op: OpEquals, Text: text}
}

// Sort orders query results by a date, number or title property.
type Sort struct {
	Property   string
	Descending bool
}

type Query struct {
	Filter   *Filter
	Sorts    []Sort
	Cursor   string
	PageSize int
}

// Page is one page of query results.
type Page struct {
	Documents  []Document
	NextCursor string
	HasMore    bool
}

// Store is a document store made of containers. Implementations perform their own bounded
// retries on transient failures and report unsupported properties as *SchemaFieldMissingError.
type Store interface {
	Query(ctx context.Context, container string, q Query) (*Page, error)
	CreateDocument(ctx context.Context, container string, props Properties, icon *Icon) (*Document, error)
	UpdateDocument(ctx context.Context, id string, props Properties, icon *Icon) (*Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
}

const defaultPageSize = 100

// QueryAll follows cursors until the store reports no more results.
func QueryAll(ctx context.Context, s Store, container string, q Query) ([]Document, error) {
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	var all []Document
	for {
		page, err := s.Query(ctx, container, q)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", container, err)
		}
		all = append(all, page.Documents...)
		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		q.Cursor = page.NextCursor
	}
}

// First returns the first matching document, or nil when there is none.
func First(ctx context.Context, s Store, container string, q Query) (*Document, error) {
	q.PageSize = 1
	q.Cursor = ""
	page, err := s.Query(ctx, container, q)
	if err != nil {
		return nil, err
	}
	if len(page.Documents) == 0 {
		return nil, nil
	}
	return &page.Documents[0], nil
}
