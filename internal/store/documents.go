package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/google/uuid"
)

var _ docstore.Store = (*DB)(nil)

// storedValue is the JSON form of a property inside the properties column.
type storedValue struct {
	Kind     docstore.Kind `json:"kind"`
	Text     string        `json:"text,omitempty"`
	Number   *int64        `json:"number,omitempty"`
	Start    string        `json:"start,omitempty"`
	End      string        `json:"end,omitempty"`
	DateOnly bool          `json:"date_only,omitempty"`
	IDs      []string      `json:"ids,omitempty"`
}

// formatTime keeps date-only values as plain dates so they do not shift with the zone.
func formatTime(t time.Time, dateOnly bool) string {
	switch {
	case t.IsZero():
		return ""
	case dateOnly:
		return t.Format(time.DateOnly)
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	layout := time.RFC3339
	if len(s) == len(time.DateOnly) {
		layout = time.DateOnly
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeProperties(props docstore.Properties) (string, error) {
	out := make(map[string]storedValue, len(props))
	for name, v := range props {
		out[name] = storedValue{
			Kind:     v.Kind,
			Text:     v.Text,
			Number:   v.Number,
			Start:    formatTime(v.Start, v.DateOnly),
			End:      formatTime(v.End, v.DateOnly),
			DateOnly: v.DateOnly,
			IDs:      v.IDs,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshaling properties: %w", err)
	}
	return string(data), nil
}

func decodeProperties(data string) (docstore.Properties, error) {
	var in map[string]storedValue
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("parsing properties: %w", err)
	}
	props := make(docstore.Properties, len(in))
	for name, sv := range in {
		props[name] = docstore.Value{
			Kind:     sv.Kind,
			Text:     sv.Text,
			Number:   sv.Number,
			Start:    parseTime(sv.Start),
			End:      parseTime(sv.End),
			DateOnly: sv.DateOnly,
			IDs:      sv.IDs,
		}
	}
	return props, nil
}

// sortPath returns the JSON path a property of the given kind sorts on.
func sortPath(name string, kind docstore.Kind) string {
	field := "text"
	switch kind {
	case docstore.KindNumber:
		field = "number"
	case docstore.KindDate:
		field = "start"
	}
	return fmt.Sprintf("$.%s.%s", strconv.Quote(name), field)
}

func (db *DB) Query(ctx context.Context, container string, q docstore.Query) (*docstore.Page, error) {
	schema, err := db.containerSchema(ctx, container)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, container, properties, icon_emoji, icon_url FROM documents WHERE container = ?"
	args := []any{container}

	if f := q.Filter; f != nil {
		kind, ok := schema[f.Property]
		if !ok {
			return nil, &docstore.SchemaFieldMissingError{Container: container, Field: f.Property}
		}
		path := sortPath(f.Property, kind)
		switch {
		case f.Op == docstore.OpIsEmpty:
			query += " AND json_extract(properties, ?) IS NULL"
			args = append(args, path)
		case f.Kind == docstore.KindNumber:
			query += " AND json_extract(properties, ?) = ?"
			args = append(args, path, f.Number)
		default:
			query += " AND json_extract(properties, ?) = ?"
			args = append(args, path, f.Text)
		}
	}

	order := " ORDER BY"
	for _, s := range q.Sorts {
		kind, ok := schema[s.Property]
		if !ok {
			return nil, &docstore.SchemaFieldMissingError{Container: container, Field: s.Property}
		}
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		// Empty values sort last in either direction.
		path := sortPath(s.Property, kind)
		query += order + " json_extract(properties, ?) IS NULL, json_extract(properties, ?) " + dir
		args = append(args, path, path)
		order = ","
	}
	query += order + " created_at ASC, rowid ASC"

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := 0
	if q.Cursor != "" {
		offset, err = strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", q.Cursor)
		}
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, offset)

	docs, err := db.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	page := &docstore.Page{Documents: docs}
	if len(docs) > pageSize {
		page.Documents = docs[:pageSize]
		page.HasMore = true
		page.NextCursor = strconv.Itoa(offset + pageSize)
	}
	return page, nil
}

func (db *DB) CreateDocument(ctx context.Context, container string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	schema, err := db.containerSchema(ctx, container)
	if err != nil {
		return nil, err
	}
	if err := checkProperties(container, schema, props); err != nil {
		return nil, err
	}

	data, err := encodeProperties(props)
	if err != nil {
		return nil, err
	}

	var emoji, url sql.NullString
	if icon != nil {
		emoji = sql.NullString{String: icon.Emoji, Valid: icon.Emoji != ""}
		url = sql.NullString{String: icon.URL, Valid: icon.URL != ""}
	}

	id := uuid.NewString()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO documents (id, container, properties, icon_emoji, icon_url) VALUES (?, ?, ?, ?, ?)`,
		id, container, data, emoji, url,
	); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	return &docstore.Document{ID: id, Container: container, Properties: props.Clone(), Icon: icon}, nil
}

// UpdateDocument merges props into the stored properties and replaces the icon when one is given.
func (db *DB) UpdateDocument(ctx context.Context, id string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	doc, err := db.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	schema, err := db.containerSchema(ctx, doc.Container)
	if err != nil {
		return nil, err
	}
	if err := checkProperties(doc.Container, schema, props); err != nil {
		return nil, err
	}

	for name, v := range props {
		doc.Properties[name] = v
	}
	if icon != nil {
		doc.Icon = icon
	}

	data, err := encodeProperties(doc.Properties)
	if err != nil {
		return nil, err
	}

	var emoji, url sql.NullString
	if doc.Icon != nil {
		emoji = sql.NullString{String: doc.Icon.Emoji, Valid: doc.Icon.Emoji != ""}
		url = sql.NullString{String: doc.Icon.URL, Valid: doc.Icon.URL != ""}
	}

	if _, err := db.ExecContext(ctx,
		`UPDATE documents SET properties = ?, icon_emoji = ?, icon_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		data, emoji, url, id,
	); err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}

	return doc, nil
}

func (db *DB) GetDocument(ctx context.Context, id string) (*docstore.Document, error) {
	docs, err := db.queryDocuments(ctx,
		"SELECT id, container, properties, icon_emoji, icon_url FROM documents WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("getting %s: %w", id, docstore.ErrNotFound)
	}
	return &docs[0], nil
}

// Count returns the number of documents in container.
func (db *DB) Count(ctx context.Context, container string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE container = ?", container).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (db *DB) queryDocuments(ctx context.Context, query string, args ...any) ([]docstore.Document, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var d docstore.Document
		var data string
		var emoji, url sql.NullString

		if err := rows.Scan(&d.ID, &d.Container, &data, &emoji, &url); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		props, err := decodeProperties(data)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		d.Properties = props

		if emoji.Valid || url.Valid {
			d.Icon = &docstore.Icon{Emoji: emoji.String, URL: url.String}
		}

		docs = append(docs, d)
	}

	return docs, rows.Err()
}
