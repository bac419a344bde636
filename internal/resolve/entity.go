// Package resolve maps named entities (tags, clients, projects, calendar buckets) to document
// ids, creating documents on first sight and never twice for the same key within a run.
package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

// Lookup describes the entity to resolve.
type Lookup struct {
	Name      string
	Container string
	Icon      *docstore.Icon
	// Properties are written on creation and on rename, in addition to the title.
	Properties docstore.Properties
	// Defaults are written only when the document is created.
	Defaults docstore.Properties
	// RemoteID is the entity's numeric id in the time source, when it has one.
	RemoteID *int64
}

type cacheKey struct {
	container string
	byID      bool
	key       string
}

// EntityResolver is a get-or-create over a docstore. It is not safe for concurrent use: two
// lookups racing past a miss would both create the document.
type EntityResolver struct {
	store  docstore.Store
	logger *slog.Logger

	cache       map[cacheKey]string
	driftWarned map[string]bool
}

func NewEntityResolver(store docstore.Store, logger *slog.Logger) *EntityResolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EntityResolver{
		store:       store,
		logger:      logger,
		cache:       make(map[cacheKey]string),
		driftWarned: make(map[string]bool),
	}
}

func keyFor(l Lookup) cacheKey {
	if l.RemoteID != nil {
		return cacheKey{container: l.Container, byID: true, key: fmt.Sprint(*l.RemoteID)}
	}
	return cacheKey{container: l.Container, key: l.Name}
}

// Resolve returns the id of the document for l, looking it up by remote id, then by exact
// title, and creating it when neither matches.
func (r *EntityResolver) Resolve(ctx context.Context, l Lookup) (string, error) {
	key := keyFor(l)
	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	if l.RemoteID != nil {
		id, err := r.findByRemoteID(ctx, l)
		if err != nil {
			return "", err
		}
		if id != "" {
			r.cache[key] = id
			return id, nil
		}
	}

	doc, err := docstore.First(ctx, r.store, l.Container, docstore.Query{
		Filter: docstore.TitleEquals(PropTitle, l.Name),
	})
	if err != nil {
		return "", fmt.Errorf("looking up %q in %s: %w", l.Name, l.Container, err)
	}
	if doc != nil {
		if l.RemoteID != nil {
			r.backfillRemoteID(ctx, doc, *l.RemoteID)
		}
		r.cache[key] = doc.ID
		return doc.ID, nil
	}

	props := l.Defaults.Clone()
	for name, v := range l.Properties {
		props[name] = v
	}
	props[PropTitle] = docstore.Title(l.Name)
	if l.RemoteID != nil {
		props[PropRemoteID] = docstore.Number(*l.RemoteID)
	}

	created, err := CreateWithFallback(ctx, r.store, r.logger, l.Container, props, l.Icon)
	if err != nil {
		return "", fmt.Errorf("creating %q in %s: %w", l.Name, l.Container, err)
	}
	r.logger.Debug("created entity", "container", l.Container, "name", l.Name, "id", created.ID)

	r.cache[key] = created.ID
	return created.ID, nil
}

// findByRemoteID returns "" when no document carries the id or the container has no id field.
func (r *EntityResolver) findByRemoteID(ctx context.Context, l Lookup) (string, error) {
	doc, err := docstore.First(ctx, r.store, l.Container, docstore.Query{
		Filter: docstore.NumberEquals(PropRemoteID, *l.RemoteID),
	})
	if docstore.IsSchemaFieldMissing(err, PropRemoteID) {
		if !r.driftWarned[l.Container] {
			r.driftWarned[l.Container] = true
			r.logger.Warn("container has no Id property, falling back to name lookup", "container", l.Container, "name", l.Name)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up id %d in %s: %w", *l.RemoteID, l.Container, err)
	}
	if doc == nil {
		return "", nil
	}

	if existing := doc.Properties.Title(PropTitle); existing != l.Name {
		r.logger.Info("renaming entity", "container", l.Container, "id", *l.RemoteID, "from", existing, "to", l.Name)
		props := l.Properties.Clone()
		props[PropTitle] = docstore.Title(l.Name)
		if _, err := UpdateWithFallback(ctx, r.store, r.logger, doc.ID, props, l.Icon); err != nil {
			return "", fmt.Errorf("renaming %s: %w", doc.ID, err)
		}
	}
	return doc.ID, nil
}

// backfillRemoteID links a document found by name to its remote id. Failure is not fatal.
func (r *EntityResolver) backfillRemoteID(ctx context.Context, doc *docstore.Document, remoteID int64) {
	if _, ok := doc.Properties.Number(PropRemoteID); ok {
		return
	}
	_, err := r.store.UpdateDocument(ctx, doc.ID, docstore.Properties{PropRemoteID: docstore.Number(remoteID)}, nil)
	switch {
	case docstore.IsSchemaFieldMissing(err, PropRemoteID):
		r.logger.Warn("could not write Id, property missing", "document", doc.ID, "container", doc.Container)
	case err != nil:
		r.logger.Warn("could not write Id", "document", doc.ID, "error", err)
	}
}

// Len is the number of cached keys.
func (r *EntityResolver) Len() int {
	return len(r.cache)
}

// CreateWithFallback creates a document. Each property the container rejects as missing from
// its schema is dropped and the create retried, once per property. The title is never dropped.
func CreateWithFallback(ctx context.Context, store docstore.Store, logger *slog.Logger, container string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	for {
		doc, err := store.CreateDocument(ctx, container, props, icon)
		field, ok := droppable(err, props)
		if !ok {
			return doc, err
		}
		logger.Warn("property missing in container, retrying create without it", "container", container, "property", field)
		props = props.Without(field)
	}
}

// UpdateWithFallback is CreateWithFallback for updates.
func UpdateWithFallback(ctx context.Context, store docstore.Store, logger *slog.Logger, id string, props docstore.Properties, icon *docstore.Icon) (*docstore.Document, error) {
	for {
		doc, err := store.UpdateDocument(ctx, id, props, icon)
		field, ok := droppable(err, props)
		if !ok {
			return doc, err
		}
		logger.Warn("property missing in container, retrying update without it", "document", id, "property", field)
		props = props.Without(field)
	}
}

func droppable(err error, props docstore.Properties) (string, bool) {
	if err == nil {
		return "", false
	}
	for _, name := range props.Names() {
		if name != PropTitle && docstore.IsSchemaFieldMissing(err, name) {
			return name, true
		}
	}
	return "", false
}
