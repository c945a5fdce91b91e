// Package filter parses free-text item filters and evaluates them against cached items.
package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Field is one searchable item attribute
type Field int

const (
	FieldName Field = iota
	FieldHistoryContentType
	FieldType
	FieldFormat
	FieldExtension
	FieldState
	FieldHID
	FieldTags
)

var fieldNames = map[Field]string{
	FieldName:               "name",
	FieldHistoryContentType: "history_content_type",
	FieldType:               "type",
	FieldFormat:             "format",
	FieldExtension:          "extension",
	FieldState:              "state",
	FieldHID:                "hid",
	FieldTags:               "tags",
}

// accessors stringify each field the way the server compares it
var accessors = map[Field]func(types.Item) string{
	FieldName:               func(i types.Item) string { return i.Name },
	FieldHistoryContentType: func(i types.Item) string { return i.HistoryContentType },
	FieldType:               func(i types.Item) string { return i.Type },
	FieldFormat:             func(i types.Item) string { return i.Format },
	FieldExtension:          func(i types.Item) string { return i.Extension },
	FieldState:              func(i types.Item) string { return i.State },
	FieldHID:                func(i types.Item) string { return strconv.Itoa(i.HID) },
	FieldTags:               func(i types.Item) string { return strings.Join(i.Tags, ",") },
}

// String returns the wire name of the field
func (f Field) String() string {
	return fieldNames[f]
}

// Value returns the stringified value of the field on item
func (f Field) Value(item types.Item) string {
	if accessor, ok := accessors[f]; ok {
		return accessor(item)
	}
	return ""
}

// LookupField resolves a field by wire name, case-insensitively
func LookupField(name string) (Field, bool) {
	name = strings.ToLower(name)
	for f, n := range fieldNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// FieldSet is an allow-list of fields
type FieldSet map[Field]bool

// NewFieldSet builds an allow-list
func NewFieldSet(fields ...Field) FieldSet {
	set := make(FieldSet, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// AllFields is every searchable item field
var AllFields = NewFieldSet(FieldName, FieldHistoryContentType, FieldType, FieldFormat, FieldExtension, FieldState, FieldHID, FieldTags)

// Filters maps a field to the substring it must contain
type Filters map[Field]string

// Fields returns the constrained fields in canonical order
func (f Filters) Fields() []Field {
	fields := make([]Field, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// ParseFilterText turns "name:foo state:ok" into field constraints.
// Tokens naming a field outside allowed are dropped. Text without any
// field:value token filters on name.
func ParseFilterText(text string, allowed FieldSet) Filters {
	result := Filters{}
	text = strings.TrimSpace(text)
	if text == "" {
		return result
	}

	hasPairs := false
	for _, token := range tokenize(text) {
		key, value, ok := splitPair(token)
		if !ok {
			continue
		}
		hasPairs = true
		field, known := LookupField(key)
		if !known || !allowed[field] {
			continue
		}
		result[field] = value
	}

	if !hasPairs && allowed[FieldName] {
		result[FieldName] = text
	}
	return result
}

// splitPair splits "key:value" or "key=value"
func splitPair(token string) (string, string, bool) {
	idx := strings.IndexAny(token, ":=")
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	return token[:idx], token[idx+1:], true
}

// tokenize splits on whitespace outside quotes and strips the quotes
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Matches reports whether item belongs in the view.
// Hidden-item semantics are inverted relative to the visible flag.
func Matches(item types.Item, filters Filters, showDeleted, showHidden bool) bool {
	if item.Deleted != showDeleted {
		return false
	}
	if item.Visible == showHidden {
		return false
	}
	for field, value := range filters {
		if !containsFold(field.Value(item), value) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// BoolParam renders a flag the way the server's query filters expect it
func BoolParam(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// QueryValues renders the constraints as q/qv pairs followed by the
// deleted and visible flags.
func (f Filters) QueryValues(showDeleted, showHidden bool) url.Values {
	values := url.Values{}
	for _, field := range f.Fields() {
		values.Add("q", field.String())
		values.Add("qv", f[field])
	}
	values.Add("q", "deleted")
	values.Add("qv", BoolParam(showDeleted))
	values.Add("q", "visible")
	values.Add("qv", BoolParam(!showHidden))
	return values
}
