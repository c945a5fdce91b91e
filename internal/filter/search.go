package filter

import (
	"strings"
)

// Search matches entities against free-text search terms.
// Attributes maps a searchable attribute to its values; Aliases maps
// alternative keys onto attribute names.
type Search[E any] struct {
	Attributes map[string]func(E) []string
	Aliases    map[string]string
}

// resolve maps a user-supplied key onto an attribute name
func (s Search[E]) resolve(key string) (string, bool) {
	key = strings.ToLower(key)
	if alias, ok := s.Aliases[key]; ok {
		key = alias
	}
	_, ok := s.Attributes[key]
	return key, ok
}

// MatchesAttribute reports whether any value of attribute contains term
func (s Search[E]) MatchesAttribute(entity E, attribute, term string) bool {
	accessor, ok := s.Attributes[attribute]
	if !ok {
		return false
	}
	for _, value := range accessor(entity) {
		if containsFold(value, term) {
			return true
		}
	}
	return false
}

// MatchedAttributes returns the attributes whose value contains term
func (s Search[E]) MatchedAttributes(entity E, term string) []string {
	var matched []string
	for attribute := range s.Attributes {
		if s.MatchesAttribute(entity, attribute, term) {
			matched = append(matched, attribute)
		}
	}
	return matched
}

// Matches checks one term: "key:value" or "key=value" against that
// attribute, anything else against every attribute.
func (s Search[E]) Matches(entity E, term string) bool {
	if key, value, ok := splitPair(term); ok {
		if attribute, known := s.resolve(key); known {
			return s.MatchesAttribute(entity, attribute, value)
		}
	}
	return len(s.MatchedAttributes(entity, term)) > 0
}

// MatchesAll requires every whitespace-separated term to match
func (s Search[E]) MatchesAll(entity E, text string) bool {
	for _, term := range tokenize(text) {
		if !s.Matches(entity, term) {
			return false
		}
	}
	return true
}
