// Package templates renders new vault notes from named templates.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FieldType constrains the value of a field.
type FieldType string

// Field types.
const (
	FieldText        FieldType = "text"
	FieldLongText    FieldType = "long_text"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multi_select"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
)

// TemplateKey is the frontmatter key recording which template made a note.
const TemplateKey = "template"

// Field is one value the caller fills in. Options lists the allowed values
// of select and multi_select fields.
type Field struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Type        FieldType `yaml:"type" json:"type"`
	Options     []string  `yaml:"options" json:"options,omitempty"`
	Required    bool      `yaml:"required" json:"required"`
	Default     string    `yaml:"default" json:"default,omitempty"`
	Example     string    `yaml:"example" json:"example,omitempty"`
}

// Validate checks the field definition.
func (f Field) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Type, validation.Required, validation.In(
			FieldText, FieldLongText, FieldDate, FieldSelect, FieldMultiSelect, FieldNumber, FieldBoolean)),
		validation.Field(&f.Options, validation.When(f.Type == FieldSelect || f.Type == FieldMultiSelect, validation.Required)),
	)
}

// Check validates value against the field type.
func (f Field) Check(value string) error {
	switch f.Type {
	case FieldDate:
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return fmt.Errorf("%s: %q is not a YYYY-MM-DD date", f.Name, value)
		}
	case FieldSelect:
		if !contains(f.Options, value) {
			return fmt.Errorf("%s: %q is not one of %s", f.Name, value, strings.Join(f.Options, ", "))
		}
	case FieldMultiSelect:
		for _, v := range splitList(value) {
			if !contains(f.Options, v) {
				return fmt.Errorf("%s: %q is not one of %s", f.Name, v, strings.Join(f.Options, ", "))
			}
		}
	case FieldNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s: %q is not a number", f.Name, value)
		}
	case FieldBoolean:
		switch strings.ToLower(value) {
		case "true", "false", "yes", "no", "1", "0":
		default:
			return fmt.Errorf("%s: %q is not a boolean", f.Name, value)
		}
	}
	return nil
}

// Template describes a kind of note. Content may reference fields as
// {name}; Frontmatter is copied into every note made from it.
type Template struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description,omitempty"`
	Category    string            `yaml:"category" json:"category,omitempty"`
	Frontmatter map[string]string `yaml:"frontmatter" json:"frontmatter,omitempty"`
	Fields      []Field           `yaml:"fields" json:"fields"`
	Content     string            `yaml:"content" json:"content"`
	Example     string            `yaml:"example" json:"example,omitempty"`
}

// Validate checks the template definition.
func (t Template) Validate() error {
	if err := validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.Fields),
	); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, f := range t.Fields {
		if seen[f.Name] {
			return fmt.Errorf("fields: %s is declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Render fills the template with values. Missing fields take their default;
// a required field that is still empty, or any value of the wrong type, is
// an error. Values for undeclared fields are substituted but not checked.
// The returned frontmatter records the template id and, when given, the
// title.
func (t Template) Render(values map[string]string) (string, map[string]any, error) {
	filled := make(map[string]string, len(values)+len(t.Fields))
	for k, v := range values {
		filled[k] = v
	}

	var errs []string
	for _, f := range t.Fields {
		v, ok := filled[f.Name]
		if !ok || v == "" {
			v = f.Default
			filled[f.Name] = v
		}
		if v == "" {
			if f.Required {
				errs = append(errs, fmt.Sprintf("%s: required", f.Name))
			}
			continue
		}
		if err := f.Check(v); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return "", nil, errors.New(strings.Join(errs, "; "))
	}

	pairs := make([]string, 0, 2*len(filled))
	for k, v := range filled {
		pairs = append(pairs, "{"+k+"}", v)
	}
	content := strings.NewReplacer(pairs...).Replace(t.Content)

	fm := make(map[string]any, len(t.Frontmatter)+2)
	for k, v := range t.Frontmatter {
		fm[k] = v
	}
	fm[TemplateKey] = t.ID
	if title := filled["title"]; title != "" {
		fm["title"] = title
	}
	for _, f := range t.Fields {
		if f.Type == FieldMultiSelect && filled[f.Name] != "" {
			fm[f.Name] = splitList(filled[f.Name])
		}
	}
	return content, fm, nil
}

// Registry holds templates by id.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry returns a registry holding the built-in templates followed by
// extra, which replace built-ins with the same id.
func NewRegistry(extra ...Template) (*Registry, error) {
	r := &Registry{templates: map[string]Template{}}
	for _, t := range Builtin() {
		r.templates[t.ID] = t
	}
	for _, t := range extra {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t, replacing any template with the same id.
func (r *Registry) Register(t Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("template %q: %w", t.ID, err)
	}
	r.mu.Lock()
	r.templates[t.ID] = t
	r.mu.Unlock()
	return nil
}

// Get returns the template with id.
func (r *Registry) Get(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// List returns every template ordered by id.
func (r *Registry) List() []Template {
	r.mu.RLock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
