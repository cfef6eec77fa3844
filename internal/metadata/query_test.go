package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var note = map[string]any{
	"status":   "draft",
	"priority": 5,
	"score":    "2.5",
	"pinned":   true,
	"summary":  "an important task",
	"tags":     []any{"project", "go"},
	"author":   map[string]any{"name": "Ada", "links": 3},
}

func TestParseConditions(t *testing.T) {
	tests := []struct {
		query string
		want  Condition
	}{
		{`status: "draft"`, Condition{Key: "status", Op: OpEquals, Text: "draft"}},
		{`priority > 3`, Condition{Key: "priority", Op: OpGreater, Number: 3}},
		{`priority < 5.5`, Condition{Key: "priority", Op: OpLess, Number: 5.5}},
		{`tags: contains("go")`, Condition{Key: "tags", Op: OpContains, Text: "go"}},
		{`  author.name : "Ada" `, Condition{Key: "author.name", Op: OpEquals, Text: "Ada"}},
	}
	for _, tt := range tests {
		f, err := Parse(tt.query)
		require.NoError(t, err, tt.query)
		require.Len(t, f.any, 1)
		require.Len(t, f.any[0], 1)
		assert.Equal(t, tt.want, f.any[0][0], tt.query)
	}
}

func TestParseRejectsMalformedQueries(t *testing.T) {
	for _, q := range []string{"", "status", "status: draft", "priority > high", `: "x"`, `tags: contains(go)`} {
		_, err := Parse(q)
		assert.Error(t, err, q)
	}
}

func TestMatch(t *testing.T) {
	tests := map[string]bool{
		`status: "draft"`:                true,
		`status: "active"`:               false,
		`priority: "5"`:                  true,
		`priority > 3`:                   true,
		`priority > 5`:                   false,
		`priority < 6`:                   true,
		`score > 2`:                      true,
		`pinned > 0`:                     false,
		`summary: contains("important")`: true,
		`summary: contains("urgent")`:    false,
		`tags: contains("go")`:           true,
		`tags: "project"`:                true,
		`tags: contains("rust")`:         false,
		`author.name: "Ada"`:             true,
		`author.links > 2`:               true,
		`author.missing: "x"`:            false,
		`missing > 0`:                    false,

		`status: "draft" AND priority > 3`:                    true,
		`status: "draft" AND priority > 9`:                    false,
		`status: "active" OR priority > 3`:                    true,
		`status: "active" OR priority > 9`:                    false,
		`status: "active" AND pinned: "true" OR priority < 9`: true,
	}
	for q, want := range tests {
		f, err := Parse(q)
		require.NoError(t, err, q)
		assert.Equal(t, want, f.Match(note), q)
	}
}

func TestMatchWithoutFrontmatter(t *testing.T) {
	f, err := Parse(`status: "draft"`)
	require.NoError(t, err)
	assert.False(t, f.Match(nil))
	assert.False(t, f.Match(map[string]any{}))
}

func TestLookup(t *testing.T) {
	v, ok := Lookup(note, "author.name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	v, ok = Lookup(map[string]any{"a": map[any]any{"b": 1}}, "a.b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(note, "status.inner")
	assert.False(t, ok)
	_, ok = Lookup(note, "nope")
	assert.False(t, ok)
}
