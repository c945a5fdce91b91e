package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type record struct {
	name       string
	annotation string
	tags       []string
}

var recordSearch = Search[record]{
	Attributes: map[string]func(record) []string{
		"name":       func(r record) []string { return []string{r.name} },
		"annotation": func(r record) []string { return []string{r.annotation} },
		"tags":       func(r record) []string { return r.tags },
	},
	Aliases: map[string]string{"title": "name", "tag": "tags"},
}

func TestSearchMatches(t *testing.T) {
	r := record{name: "RNA-seq run", annotation: "mouse liver", tags: []string{"qc", "group:b"}}

	tests := []struct {
		text     string
		expected bool
	}{
		{"rna", true},
		{"liver", true},
		{"name:rna", true},
		{"title=seq", true},
		{"tag:qc", true},
		{"tags:group", true},
		{"name:liver", false},
		{"rna mouse", true},
		{"rna human", false},
		{`title:"seq run"`, true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, recordSearch.MatchesAll(r, tt.text))
		})
	}
}

func TestSearchMatchedAttributes(t *testing.T) {
	r := record{name: "qc report", annotation: "", tags: []string{"qc"}}
	assert.ElementsMatch(t, []string{"name", "tags"}, recordSearch.MatchedAttributes(r, "QC"))
}
