package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplatesAreValid(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	ids := []string{}
	for _, tpl := range r.List() {
		require.NoError(t, tpl.Validate(), tpl.ID)
		ids = append(ids, tpl.ID)
	}
	assert.Equal(t, []string{"doc", "research", "task"}, ids)
}

func TestRenderFillsFieldsAndFrontmatter(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	doc, ok := r.Get("doc")
	require.True(t, ok)

	content, fm, err := doc.Render(map[string]string{
		"title":   "Auth: Overview",
		"summary": "How login works",
		"tags":    "security, guide",
	})
	require.NoError(t, err)
	assert.Contains(t, content, "# Auth: Overview\n\nHow login works\n")
	assert.NotContains(t, content, "{")
	assert.Equal(t, "doc", fm[TemplateKey])
	assert.Equal(t, "Auth: Overview", fm["title"])
	assert.Equal(t, "draft", fm["status"])
	assert.Equal(t, []string{"security", "guide"}, fm["tags"])
}

func TestRenderAppliesDefaults(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	task, _ := r.Get("task")

	content, _, err := task.Render(map[string]string{"title": "Ship it"})
	require.NoError(t, err)
	assert.Contains(t, content, "## Priority: medium")
	assert.Contains(t, content, "Due: \n")
}

func TestRenderReportsEveryBadField(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	task, _ := r.Get("task")

	_, _, err = task.Render(map[string]string{"priority": "urgent", "due_date": "31/12/2025"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title: required")
	assert.Contains(t, err.Error(), `priority: "urgent" is not one of`)
	assert.Contains(t, err.Error(), "due_date")
}

func TestFieldCheck(t *testing.T) {
	tests := []struct {
		field Field
		value string
		ok    bool
	}{
		{Field{Name: "d", Type: FieldDate}, "2025-12-31", true},
		{Field{Name: "d", Type: FieldDate}, "2025-13-01", false},
		{Field{Name: "n", Type: FieldNumber}, "3.5", true},
		{Field{Name: "n", Type: FieldNumber}, "three", false},
		{Field{Name: "b", Type: FieldBoolean}, "Yes", true},
		{Field{Name: "b", Type: FieldBoolean}, "maybe", false},
		{Field{Name: "s", Type: FieldSelect, Options: []string{"a"}}, "a", true},
		{Field{Name: "m", Type: FieldMultiSelect, Options: []string{"a", "b"}}, "a,b", true},
		{Field{Name: "m", Type: FieldMultiSelect, Options: []string{"a", "b"}}, "a, c", false},
		{Field{Name: "t", Type: FieldText}, "anything", true},
	}
	for _, tt := range tests {
		err := tt.field.Check(tt.value)
		assert.Equal(t, tt.ok, err == nil, "%s %q: %v", tt.field.Type, tt.value, err)
	}
}

func TestRegisterValidatesAndReplaces(t *testing.T) {
	r, err := NewRegistry(Template{
		ID:      "doc",
		Name:    "Short doc",
		Fields:  []Field{{Name: "title", Type: FieldText, Required: true}},
		Content: "# {title}\n",
	})
	require.NoError(t, err)
	doc, _ := r.Get("doc")
	assert.Equal(t, "Short doc", doc.Name)

	assert.Error(t, r.Register(Template{ID: "x", Name: "X", Fields: []Field{{Name: "f", Type: FieldSelect}}}))
	assert.Error(t, r.Register(Template{ID: "x", Name: "X", Fields: []Field{{Name: "f", Type: "colour"}}}))
	assert.Error(t, r.Register(Template{ID: "x", Name: "X", Fields: []Field{
		{Name: "f", Type: FieldText}, {Name: "f", Type: FieldText},
	}}))
	assert.Error(t, r.Register(Template{Name: "no id"}))
	_, ok := r.Get("x")
	assert.False(t, ok)
}
