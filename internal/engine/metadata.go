package engine

import (
	"context"
	"sort"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/metadata"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/templates"
)

// MetadataMatch is a file whose frontmatter satisfied a query.
type MetadataMatch struct {
	Path        string         `json:"path"`
	Frontmatter map[string]any `json:"frontmatter"`
}

// QueryMetadata returns the files whose frontmatter matches query, sorted by
// path. See package metadata for the query syntax.
func (e *Engine) QueryMetadata(query string) ([]MetadataMatch, error) {
	f, err := metadata.Parse(query)
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, "query_metadata", "", err)
	}
	e.mu.RLock()
	out := []MetadataMatch{}
	for _, r := range e.records {
		if f.Match(r.Frontmatter) {
			out = append(out, MetadataMatch{Path: r.Path, Frontmatter: r.Frontmatter})
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// MetadataValue returns the frontmatter value of p at key. Dots in key
// descend into nested maps.
func (e *Engine) MetadataValue(p, key string) (any, error) {
	rec, err := e.Record(p)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "metadata_value", rec.Path, "key is required")
	}
	v, ok := metadata.Lookup(rec.Frontmatter, key)
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "metadata_value", rec.Path, "no frontmatter key %q", key)
	}
	return v, nil
}

// Templates lists the note templates ordered by id.
func (e *Engine) Templates() []templates.Template { return e.tmpl.List() }

// CreateFromTemplate renders template id with values and creates the note at
// p. The note's frontmatter records the template id.
func (e *Engine) CreateFromTemplate(ctx context.Context, id, p string, values map[string]string) (*models.FileRecord, error) {
	t, ok := e.tmpl.Get(id)
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "create_from_template", p, "no template %q", id)
	}
	content, fm, err := t.Render(values)
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, "create_from_template", p, err)
	}
	return e.Create(ctx, p, []byte(content), fm)
}

// NotesFromTemplate returns the files created from template id, sorted by
// path.
func (e *Engine) NotesFromTemplate(id string) []string {
	e.mu.RLock()
	out := []string{}
	for _, r := range e.records {
		if v, ok := r.Frontmatter[templates.TemplateKey].(string); ok && v == id {
			out = append(out, r.Path)
		}
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}
