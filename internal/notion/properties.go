package notion

import (
	"time"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

const dateLayout = "2006-01-02"

type richTextJSON struct {
	PlainText string `json:"plain_text"`
}

type dateJSON struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

type propertyJSON struct {
	Type     string         `json:"type"`
	Title    []richTextJSON `json:"title"`
	RichText []richTextJSON `json:"rich_text"`
	Number   *float64       `json:"number"`
	Date     *dateJSON      `json:"date"`
	Relation []struct {
		ID string `json:"id"`
	} `json:"relation"`
}

type iconJSON struct {
	Type     string `json:"type"`
	Emoji    string `json:"emoji"`
	External *struct {
		URL string `json:"url"`
	} `json:"external"`
}

type pageJSON struct {
	ID     string `json:"id"`
	Parent struct {
		DatabaseID string `json:"database_id"`
	} `json:"parent"`
	Properties map[string]propertyJSON `json:"properties"`
	Icon       *iconJSON               `json:"icon"`
}

func (p pageJSON) document() docstore.Document {
	doc := docstore.Document{
		ID:         p.ID,
		Container:  p.Parent.DatabaseID,
		Properties: make(docstore.Properties, len(p.Properties)),
	}
	for name, prop := range p.Properties {
		if v, ok := decodeValue(prop); ok {
			doc.Properties[name] = v
		}
	}
	if p.Icon != nil {
		switch p.Icon.Type {
		case "emoji":
			doc.Icon = &docstore.Icon{Emoji: p.Icon.Emoji}
		case "external":
			if p.Icon.External != nil {
				doc.Icon = &docstore.Icon{URL: p.Icon.External.URL}
			}
		}
	}
	return doc
}

func joinPlain(parts []richTextJSON) string {
	s := ""
	for _, p := range parts {
		s += p.PlainText
	}
	return s
}

func parseDate(s string) (time.Time, bool, error) {
	if len(s) == len(dateLayout) {
		t, err := time.Parse(dateLayout, s)
		return t, true, err
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func decodeValue(p propertyJSON) (docstore.Value, bool) {
	switch p.Type {
	case "title":
		return docstore.Title(joinPlain(p.Title)), true
	case "rich_text":
		return docstore.Text(joinPlain(p.RichText)), true
	case "number":
		if p.Number == nil {
			return docstore.EmptyNumber(), true
		}
		return docstore.Number(int64(*p.Number)), true
	case "date":
		v := docstore.Value{Kind: docstore.KindDate}
		if p.Date == nil {
			return v, true
		}
		start, dateOnly, err := parseDate(p.Date.Start)
		if err != nil {
			return v, true
		}
		v.Start, v.DateOnly = start, dateOnly
		if p.Date.End != nil {
			if end, _, err := parseDate(*p.Date.End); err == nil {
				v.End = end
			}
		}
		return v, true
	case "relation":
		ids := make([]string, 0, len(p.Relation))
		for _, r := range p.Relation {
			ids = append(ids, r.ID)
		}
		return docstore.Relation(ids...), true
	}
	return docstore.Value{}, false
}

// maxTextLen is the most characters Notion accepts in one rich text segment.
const maxTextLen = 2000

// textContent splits s into segments Notion accepts. An empty string clears the property.
func textContent(s string) []map[string]any {
	segments := []map[string]any{}
	runes := []rune(s)
	for len(runes) > 0 {
		n := min(len(runes), maxTextLen)
		segments = append(segments, map[string]any{"type": "text", "text": map[string]string{"content": string(runes[:n])}})
		runes = runes[n:]
	}
	return segments
}

func formatDate(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

func encodeValue(v docstore.Value) map[string]any {
	switch v.Kind {
	case docstore.KindTitle:
		return map[string]any{"title": textContent(v.Text)}
	case docstore.KindRichText:
		return map[string]any{"rich_text": textContent(v.Text)}
	case docstore.KindNumber:
		if v.Number == nil {
			return map[string]any{"number": nil}
		}
		return map[string]any{"number": *v.Number}
	case docstore.KindDate:
		if v.Start.IsZero() {
			return map[string]any{"date": nil}
		}
		date := map[string]any{"start": formatDate(v.Start, v.DateOnly)}
		if !v.End.IsZero() {
			date["end"] = formatDate(v.End, v.DateOnly)
		}
		return map[string]any{"date": date}
	case docstore.KindRelation:
		refs := make([]map[string]string, 0, len(v.IDs))
		for _, id := range v.IDs {
			refs = append(refs, map[string]string{"id": id})
		}
		return map[string]any{"relation": refs}
	}
	return nil
}

func encodeProperties(props docstore.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for name, v := range props {
		if enc := encodeValue(v); enc != nil {
			out[name] = enc
		}
	}
	return out
}

func encodeIcon(icon *docstore.Icon) map[string]any {
	if icon.Emoji != "" {
		return map[string]any{"type": "emoji", "emoji": icon.Emoji}
	}
	return map[string]any{"type": "external", "external": map[string]string{"url": icon.URL}}
}

func encodeFilter(f *docstore.Filter) map[string]any {
	cond := map[string]any{}
	if f.Op == docstore.OpIsEmpty {
		cond["is_empty"] = true
	} else if f.Kind == docstore.KindNumber {
		cond["equals"] = f.Number
	} else {
		cond["equals"] = f.Text
	}
	return map[string]any{"property": f.Property, string(f.Kind): cond}
}
