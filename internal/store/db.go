// Package store is a local document store backed by sqlite. Containers declare their property
// schema up front, so writes naming an undeclared property fail the same way a remote store
// with a drifted schema does.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/christopherklint97/togglsync/internal/docstore"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// DefaultPath is ~/.config/togglsync/togglsync.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "togglsync", "togglsync.db"), nil
}

// Open opens (and migrates) the database at path. An empty path uses DefaultPath.
func Open(path string) (*DB, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer, no interleaving
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	store := &DB{db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS container_fields (
			container TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (container, name)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			container TEXT NOT NULL,
			properties TEXT NOT NULL,
			icon_emoji TEXT,
			icon_url TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_container ON documents (container)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	return nil
}

// DeclareContainer adds the schema's properties to container, creating it if needed.
// Properties already declared are left alone.
func (db *DB) DeclareContainer(ctx context.Context, container string, schema docstore.Schema) error {
	for name, kind := range schema {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO container_fields (container, name, kind) VALUES (?, ?, ?) ON CONFLICT(container, name) DO NOTHING",
			container, name, string(kind),
		); err != nil {
			return fmt.Errorf("declaring %s.%s: %w", container, name, err)
		}
	}
	return nil
}

// containerSchema loads the declared properties of container.
func (db *DB) containerSchema(ctx context.Context, container string) (docstore.Schema, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, kind FROM container_fields WHERE container = ?", container)
	if err != nil {
		return nil, fmt.Errorf("loading schema of %s: %w", container, err)
	}
	defer rows.Close()

	schema := docstore.Schema{}
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		schema[name] = docstore.Kind(kind)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("container %s is not declared", container)
	}
	return schema, nil
}

// checkProperties fails with a SchemaFieldMissingError for the first undeclared property.
func checkProperties(container string, schema docstore.Schema, props docstore.Properties) error {
	for _, name := range props.Names() {
		kind, ok := schema[name]
		if !ok {
			return &docstore.SchemaFieldMissingError{Container: container, Field: name}
		}
		if props[name].Kind != kind {
			return fmt.Errorf("property %q of %s is %s, got %s", name, container, kind, props[name].Kind)
		}
	}
	return nil
}
