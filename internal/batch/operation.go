package batch

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultkeep/internal/linkedit"
)

// Kind identifies an operation type.
type Kind string

// Operation kinds.
const (
	KindCreate      Kind = "create_file"
	KindWrite       Kind = "write_file"
	KindDelete      Kind = "delete_file"
	KindMove        Kind = "move_file"
	KindUpdateLinks Kind = "update_links"
)

// Operation is one unit of a batch.
//
// For KindWrite an empty Content with a non-empty Frontmatter merges the
// fields into the existing file and keeps its body. Otherwise Frontmatter is
// merged onto the frontmatter of Content.
type Operation struct {
	Kind             Kind                   `json:"kind"`
	Path             string                 `json:"path"`
	To               string                 `json:"to,omitempty"`
	Content          string                 `json:"content,omitempty"`
	Frontmatter      map[string]any         `json:"frontmatter,omitempty"`
	UpdateReferences bool                   `json:"update_references,omitempty"`
	Replacements     []linkedit.Replacement `json:"replacements,omitempty"`

	// Derived marks link updates added for a reference-updating move or delete.
	Derived bool `json:"derived,omitempty"`
}

// CreateFile returns an operation creating path. It fails if path exists.
func CreateFile(path, content string, frontmatter map[string]any) Operation {
	return Operation{Kind: KindCreate, Path: path, Content: content, Frontmatter: frontmatter}
}

// WriteFile returns an operation replacing the content of an existing file.
func WriteFile(path, content string, frontmatter map[string]any) Operation {
	return Operation{Kind: KindWrite, Path: path, Content: content, Frontmatter: frontmatter}
}

// DeleteFile returns an operation removing path. With updateReferences every
// link to it elsewhere is replaced by its display text.
func DeleteFile(path string, updateReferences bool) Operation {
	return Operation{Kind: KindDelete, Path: path, UpdateReferences: updateReferences}
}

// MoveFile returns an operation renaming from to to. With updateReferences
// every link to from elsewhere is retargeted.
func MoveFile(from, to string, updateReferences bool) Operation {
	return Operation{Kind: KindMove, Path: from, To: to, UpdateReferences: updateReferences}
}

// UpdateLinks returns an operation rewriting link targets inside path.
func UpdateLinks(path string, replacements []linkedit.Replacement) Operation {
	return Operation{Kind: KindUpdateLinks, Path: path, Replacements: replacements}
}

// Validate checks the operation shape.
func (o Operation) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Kind, validation.Required,
			validation.In(KindCreate, KindWrite, KindDelete, KindMove, KindUpdateLinks)),
		validation.Field(&o.Path, validation.Required),
		validation.Field(&o.To, validation.When(o.Kind == KindMove, validation.Required)),
		validation.Field(&o.Replacements, validation.When(o.Kind == KindUpdateLinks, validation.Required),
			validation.Each(validation.By(validReplacement))),
	)
}

func validReplacement(v any) error {
	r, _ := v.(linkedit.Replacement)
	return validation.Validate(r.Old, validation.Required)
}

// targets returns the paths the operation creates, changes or removes.
func (o Operation) targets() []string {
	if o.Kind == KindMove {
		return []string{o.Path, o.To}
	}
	return []string{o.Path}
}
