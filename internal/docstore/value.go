// Package docstore defines the document store the sync engine writes to: containers of documents
// whose properties follow a fixed, typed schema per record kind.
package docstore

import (
	"fmt"
	"sort"
	"time"
)

// Kind is the type of a document property.
type Kind string

const (
	KindTitle    Kind = "title"
	KindRichText Kind = "rich_text"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindRelation Kind = "relation"
)

// Value is a single typed property value. Only the fields matching Kind are meaningful.
type Value struct {
	Kind     Kind
	Text     string
	Number   *int64
	Start    time.Time
	End      time.Time // zero when the date has no end
	DateOnly bool
	IDs      []string
}

func Title(s string) Value { return Value{Kind: KindTitle, Text: s} }

func Text(s string) Value { return Value{Kind: KindRichText, Text: s} }

func Number(n int64) Value { return Value{Kind: KindNumber, Number: &n} }

// EmptyNumber clears a number property.
func EmptyNumber() Value { return Value{Kind: KindNumber} }

// DateRange is a timestamped interval. A zero end yields a single instant.
func DateRange(start, end time.Time) Value {
	return Value{Kind: KindDate, Start: start, End: end}
}

// Day is a calendar date without a time component.
func Day(t time.Time) Value {
	return Value{Kind: KindDate, Start: t, DateOnly: true}
}

// DayRange is an inclusive range of calendar dates.
func DayRange(start, end time.Time) Value {
	return Value{Kind: KindDate, Start: start, End: end, DateOnly: true}
}

func Relation(ids ...string) Value {
	return Value{Kind: KindRelation, IDs: append([]string(nil), ids...)}
}

// Properties maps property names to values.
type Properties map[string]Value

// Title returns the text of the named title property, or "".
func (p Properties) Title(name string) string {
	v, ok := p[name]
	if !ok || v.Kind != KindTitle {
		return ""
	}
	return v.Text
}

// Text returns the text of the named rich text property, or "".
func (p Properties) Text(name string) string {
	v, ok := p[name]
	if !ok || v.Kind != KindRichText {
		return ""
	}
	return v.Text
}

// Number reports the named number property and whether it is set.
func (p Properties) Number(name string) (int64, bool) {
	v, ok := p[name]
	if !ok || v.Kind != KindNumber || v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// Date returns the start and end of the named date property. ok is false when the
// property is missing or has no start.
func (p Properties) Date(name string) (start, end time.Time, ok bool) {
	v, found := p[name]
	if !found || v.Kind != KindDate || v.Start.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return v.Start, v.End, true
}

func (p Properties) Relation(name string) []string {
	v, ok := p[name]
	if !ok || v.Kind != KindRelation {
		return nil
	}
	return v.IDs
}

// Clone returns a shallow copy that can be modified without touching p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy of p minus the named properties.
func (p Properties) Without(names ...string) Properties {
	out := p.Clone()
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Names returns the property names in sorted order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Schema is the fixed set of properties a record kind may carry.
type Schema map[string]Kind

// Validate checks that every property is declared by schema with a matching kind.
func (p Properties) Validate(schema Schema) error {
	for _, name := range p.Names() {
		want, ok := schema[name]
		if !ok {
			return fmt.Errorf("property %q is not part of the record schema", name)
		}
		if got := p[name].Kind; got != want {
			return fmt.Errorf("property %q has kind %s, want %s", name, got, want)
		}
	}
	return nil
}

// Icon is a document icon: either an emoji or an external image URL.
type Icon struct {
	Emoji string
	URL   string
}

// EmojiIcon returns nil for an empty emoji so callers can pass the result straight through.
func EmojiIcon(emoji string) *Icon {
	if emoji == "" {
		return nil
	}
	return &Icon{Emoji: emoji}
}

func URLIcon(url string) *Icon {
	if url == "" {
		return nil
	}
	return &Icon{URL: url}
}

// Document is a stored record.
type Document struct {
	ID         string
	Container  string
	Properties Properties
	Icon       *Icon
}
