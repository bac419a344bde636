package syncer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/toggl"
	"github.com/rivo/uniseg"
)

// fromLive normalizes a live API entry. Running entries are closed at now.
func (s *Session) fromLive(e toggl.TimeEntry) RawEntry {
	now := s.now()
	raw := RawEntry{
		ID:          e.ID,
		WorkspaceID: e.WorkspaceID,
		Start:       e.Start,
		Description: e.Description,
		Tags:        e.Tags,
		ProjectID:   e.ProjectID,
		Deleted:     e.ServerDeletedAt != nil,
		Duration:    e.Duration,
	}
	if e.Stop != nil {
		raw.Stop = *e.Stop
	} else {
		raw.Stop = now
	}
	if raw.Duration < 0 {
		raw.Duration = int64(raw.Stop.Sub(raw.Start).Seconds())
	}
	if e.ProjectID != nil {
		if p, ok := s.Directory.Project(*e.ProjectID); ok {
			raw.ProjectName = p.Name
			if p.ClientID != nil {
				raw.ClientID = p.ClientID
				if c, ok := s.Directory.Client(*p.ClientID); ok {
					raw.ClientName = c.Name
				}
			}
		}
	}
	return raw
}

// fromReport normalizes a report API entry: "end" becomes the stop time and the
// millisecond duration becomes seconds.
func (s *Session) fromReport(e toggl.ReportEntry) RawEntry {
	raw := RawEntry{
		ID:          e.ID,
		Start:       e.Start,
		Description: e.Description,
		Tags:        e.Tags,
		ProjectID:   e.ProjectID,
		ProjectName: e.Project,
		ClientName:  e.Client,
		Duration:    e.Dur / 1000,
	}
	if e.End != nil {
		raw.Stop = *e.End
	} else {
		raw.Stop = s.now()
	}
	if e.ProjectID != nil {
		if p, ok := s.Directory.Project(*e.ProjectID); ok {
			raw.WorkspaceID = p.WorkspaceID
			raw.ClientID = p.ClientID
		}
	}
	return raw
}

// splitEmoji separates a leading emoji from a name, e.g. "🚀 Launch" -> ("🚀", "Launch").
// A name that is only an emoji keeps it as the name.
func splitEmoji(name string) (emoji, rest string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	cluster, remainder, _, _ := uniseg.FirstGraphemeClusterInString(name, -1)
	r, _ := utf8.DecodeRuneInString(cluster)
	if !isEmoji(r) {
		return "", name
	}
	rest = strings.TrimSpace(remainder)
	if rest == "" {
		return cluster, name
	}
	return cluster, rest
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2300 && r <= 0x23FF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	switch r {
	case 0x00A9, 0x00AE, 0x203C, 0x2049, 0x2122, 0x2139, 0x3030, 0x303D, 0x3297, 0x3299:
		return true
	}
	return false
}

// Title is the document title: the project name without its emoji, else the description.
func (e RawEntry) Title() string {
	if e.ProjectName != "" {
		if _, name := splitEmoji(e.ProjectName); name != "" {
			return name
		}
	}
	if e.Description != "" {
		return e.Description
	}
	return untitled
}

// buildRecord turns an entry into entry document properties, resolving every relation target.
func (s *Session) buildRecord(ctx context.Context, e RawEntry) (docstore.Properties, *docstore.Icon, error) {
	props := docstore.Properties{
		resolve.PropRemoteID: docstore.Number(e.ID),
		PropTime:             docstore.DateRange(e.Start.In(s.Location), e.Stop.In(s.Location)),
	}

	if len(e.Tags) > 0 {
		ids := make([]string, 0, len(e.Tags))
		for _, tag := range e.Tags {
			id, err := s.Entities.Resolve(ctx, resolve.Lookup{
				Name:      tag,
				Container: s.Containers.Tags,
				Icon:      docstore.URLIcon(tagIconURL),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("resolving tag %q: %w", tag, err)
			}
			ids = append(ids, id)
		}
		props[PropTags] = docstore.Relation(ids...)
	}

	var icon *docstore.Icon
	if e.ProjectName != "" {
		emoji, name := splitEmoji(e.ProjectName)
		icon = docstore.EmojiIcon(emoji)

		projectProps := docstore.Properties{}
		if e.ClientName != "" {
			clientEmoji, clientName := splitEmoji(e.ClientName)
			clientID, err := s.Entities.Resolve(ctx, resolve.Lookup{
				Name:      clientName,
				Container: s.Containers.Clients,
				Icon:      docstore.EmojiIcon(clientEmoji),
				RemoteID:  e.ClientID,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("resolving client %q: %w", clientName, err)
			}
			props[resolve.PropClient] = docstore.Relation(clientID)
			projectProps[resolve.PropClient] = docstore.Relation(clientID)
		}

		projectID, err := s.Entities.Resolve(ctx, resolve.Lookup{
			Name:       name,
			Container:  s.Containers.Projects,
			Icon:       icon,
			Properties: projectProps,
			Defaults:   docstore.Properties{PropCoins: docstore.Number(1)},
			RemoteID:   e.ProjectID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("resolving project %q: %w", name, err)
		}
		props[PropProject] = docstore.Relation(projectID)
	}
	props[resolve.PropTitle] = docstore.Title(e.Title())

	if e.Description != "" {
		props[PropNotes] = docstore.Text(e.Description)
	}

	if err := s.Calendar.Attach(ctx, props, e.Stop); err != nil {
		return nil, nil, fmt.Errorf("resolving calendar: %w", err)
	}

	if err := props.Validate(EntrySchema); err != nil {
		return nil, nil, err
	}
	return props, icon, nil
}
