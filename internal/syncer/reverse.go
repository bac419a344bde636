package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/toggl"
)

// ReverseResult counts what a reconcile pass did.
type ReverseResult struct {
	Created  int
	Skipped  int
	Failed   int
	Unlinked int
}

// ReverseSyncer creates Toggl entries for documents that were added to the store directly.
type ReverseSyncer struct {
	s *Session
}

func NewReverseSyncer(s *Session) *ReverseSyncer {
	return &ReverseSyncer{s: s}
}

// Reconcile pushes every entry document without an Id to Toggl and writes the new id back.
// A document whose write-back fails stays unlinked and is picked up again by the next run.
func (r *ReverseSyncer) Reconcile(ctx context.Context, workspaceID int64) (ReverseResult, error) {
	var res ReverseResult
	log := r.s.Logger

	docs, err := docstore.QueryAll(ctx, r.s.Store, r.s.Containers.Entries, docstore.Query{
		Filter: docstore.NumberIsEmpty(resolve.PropRemoteID),
	})
	if docstore.IsSchemaFieldMissing(err, resolve.PropRemoteID) {
		log.Warn("entry container has no Id property, skipping reverse sync", "container", r.s.Containers.Entries)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("finding unlinked entries: %w", err)
	}
	if len(docs) > 0 {
		log.Info("reverse syncing entries", "count", len(docs))
	}

	for _, doc := range docs {
		req, ok := r.request(ctx, doc)
		if !ok {
			res.Skipped++
			continue
		}

		created, err := r.s.Source.CreateTimeEntry(ctx, workspaceID, req)
		if err != nil {
			log.Error("failed to create toggl entry", "document", doc.ID, "description", req.Description, "error", err)
			res.Failed++
			continue
		}

		if _, err := r.s.Store.UpdateDocument(ctx, doc.ID, docstore.Properties{
			resolve.PropRemoteID: docstore.Number(created.ID),
		}, nil); err != nil {
			log.Error("created toggl entry but could not link it", "document", doc.ID, "entry_id", created.ID, "error", err)
			res.Unlinked++
			continue
		}
		log.Info("created toggl entry", "document", doc.ID, "entry_id", created.ID, "description", req.Description)
		res.Created++
	}

	return res, nil
}

// request builds the Toggl entry for doc. ok is false when doc has no start time.
func (r *ReverseSyncer) request(ctx context.Context, doc docstore.Document) (toggl.TimeEntryRequest, bool) {
	log := r.s.Logger
	start, stop, ok := doc.Properties.Date(PropTime)
	if !ok {
		log.Warn("skipping entry without start time", "document", doc.ID, "title", doc.Properties.Title(resolve.PropTitle))
		return toggl.TimeEntryRequest{}, false
	}
	if stop.Before(start) {
		stop = start
	}

	description := doc.Properties.Text(PropNotes)
	if description == "" {
		description = doc.Properties.Title(resolve.PropTitle)
	}

	req := toggl.TimeEntryRequest{
		Description: description,
		Start:       start.UTC().Format(time.RFC3339),
		Duration:    int64(stop.Sub(start).Seconds()),
	}

	if projects := doc.Properties.Relation(PropProject); len(projects) > 0 {
		if id, ok := r.remoteID(ctx, projects[0]); ok {
			req.ProjectID = &id
		} else {
			log.Warn("linked project has no Id, creating entry without project", "document", doc.ID, "project", projects[0])
		}
	}

	for _, tagID := range doc.Properties.Relation(PropTags) {
		tag, err := r.s.Store.GetDocument(ctx, tagID)
		if err != nil {
			log.Warn("could not read tag", "document", doc.ID, "tag", tagID, "error", err)
			continue
		}
		if name := tag.Properties.Title(resolve.PropTitle); name != "" {
			req.Tags = append(req.Tags, name)
		}
	}

	return req, true
}

func (r *ReverseSyncer) remoteID(ctx context.Context, docID string) (int64, bool) {
	doc, err := r.s.Store.GetDocument(ctx, docID)
	if err != nil {
		r.s.Logger.Warn("could not read linked document", "document", docID, "error", err)
		return 0, false
	}
	return doc.Properties.Number(resolve.PropRemoteID)
}
