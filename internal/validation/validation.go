// Package validation checks parsed vault files against content rules.
package validation

import (
	"fmt"
	"strings"

	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/models"
)

// Severity ranks an issue. Error and Critical fail a report.
type Severity string

// Severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Failure reports whether s fails validation.
func (s Severity) Failure() bool {
	return s == SeverityError || s == SeverityCritical
}

// Issue is one problem found in a file.
type Issue struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Line       int      `json:"line,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Summary counts issues by severity.
type Summary struct {
	Info     int `json:"info"`
	Warning  int `json:"warning"`
	Error    int `json:"error"`
	Critical int `json:"critical"`
}

// Report is the outcome of validating one file.
type Report struct {
	Path    string  `json:"path"`
	Passed  bool    `json:"passed"`
	Issues  []Issue `json:"issues"`
	Summary Summary `json:"summary"`
}

// NewReport returns an empty passing report.
func NewReport(path string) *Report {
	return &Report{Path: path, Passed: true, Issues: []Issue{}}
}

// Add records an issue and updates the summary.
func (r *Report) Add(i Issue) {
	switch i.Severity {
	case SeverityInfo:
		r.Summary.Info++
	case SeverityWarning:
		r.Summary.Warning++
	case SeverityError:
		r.Summary.Error++
	case SeverityCritical:
		r.Summary.Critical++
	}
	if i.Severity.Failure() {
		r.Passed = false
	}
	r.Issues = append(r.Issues, i)
}

// Merge adds every issue of o to r.
func (r *Report) Merge(o *Report) {
	for _, i := range o.Issues {
		r.Add(i)
	}
}

// Validator inspects a parsed file.
type Validator interface {
	Name() string
	Validate(rec *models.FileRecord) *Report
}

// Validators runs each validator in order and merges their reports.
type Validators []Validator

// Name implements Validator.
func (Validators) Name() string { return "composite" }

// Validate implements Validator.
func (vs Validators) Validate(rec *models.FileRecord) *Report {
	r := NewReport(rec.Path)
	for _, v := range vs {
		r.Merge(v.Validate(rec))
	}
	return r
}

// FrontmatterValidator checks required fields and the shape of tags.
type FrontmatterValidator struct {
	Required []string
	// TagsMustBeList reports a scalar tags field as a warning.
	TagsMustBeList bool
}

// Name implements Validator.
func (FrontmatterValidator) Name() string { return "frontmatter" }

// Validate implements Validator.
func (v FrontmatterValidator) Validate(rec *models.FileRecord) *Report {
	r := NewReport(rec.Path)
	if len(rec.Frontmatter) == 0 {
		if len(v.Required) > 0 {
			r.Add(Issue{
				Severity:   SeverityError,
				Category:   "frontmatter",
				Message:    "file has no frontmatter but fields are required: " + strings.Join(v.Required, ", "),
				Suggestion: "add a --- delimited YAML block at the top of the file",
			})
		}
		return r
	}

	for _, f := range v.Required {
		if _, ok := rec.Frontmatter[f]; !ok {
			r.Add(Issue{
				Severity:   SeverityError,
				Category:   "frontmatter",
				Message:    "missing required field: " + f,
				Suggestion: fmt.Sprintf("add '%s:' to frontmatter", f),
			})
		}
	}

	tags, ok := rec.Frontmatter["tags"]
	if !ok {
		return r
	}
	switch t := tags.(type) {
	case []any:
		for i, tag := range t {
			if _, isString := tag.(string); !isString {
				r.Add(Issue{
					Severity: SeverityWarning,
					Category: "frontmatter",
					Message:  fmt.Sprintf("tag at index %d is not a string", i),
				})
			}
		}
	case string:
		if v.TagsMustBeList {
			r.Add(Issue{
				Severity:   SeverityWarning,
				Category:   "frontmatter",
				Message:    "tags should be a list",
				Suggestion: fmt.Sprintf("tags: [%s]", t),
			})
		}
	case nil:
	default:
		r.Add(Issue{
			Severity: SeverityWarning,
			Category: "frontmatter",
			Message:  "tags should be a list of strings or a single string",
		})
	}
	return r
}

// BrokenLinks reports the unresolved links of a file. *graph.Graph
// implements it.
type BrokenLinks interface {
	BrokenLinksFrom(p string) ([]graph.BrokenLink, error)
}

// LinkValidator checks link syntax and, with a Graph, link targets.
type LinkValidator struct {
	Graph BrokenLinks
}

// Name implements Validator.
func (LinkValidator) Name() string { return "links" }

// Validate implements Validator.
func (v LinkValidator) Validate(rec *models.FileRecord) *Report {
	r := NewReport(rec.Path)
	for _, l := range rec.Links {
		if l.Kind == models.KindExternalLink {
			continue
		}
		if strings.TrimSpace(l.Target) == "" {
			r.Add(Issue{
				Severity:   SeverityError,
				Category:   "link",
				Message:    "empty link target: " + l.Raw,
				Line:       l.Line,
				Suggestion: "provide a target for the link or remove it",
			})
			continue
		}
		if !l.Markdown() && (strings.Contains(l.Target, "http://") || strings.Contains(l.Target, "https://")) {
			r.Add(Issue{
				Severity:   SeverityWarning,
				Category:   "link",
				Message:    "URL in wikilink syntax: " + l.Target,
				Line:       l.Line,
				Suggestion: "use [text](url) for external links",
			})
		}
	}

	if v.Graph == nil {
		return r
	}
	broken, err := v.Graph.BrokenLinksFrom(rec.Path)
	if err != nil {
		return r
	}
	for _, b := range broken {
		i := Issue{
			Severity: SeverityError,
			Category: "link",
			Message:  "broken link: " + b.Target,
			Line:     b.Line,
		}
		if len(b.Suggestions) > 0 {
			i.Suggestion = "did you mean " + strings.Join(b.Suggestions, ", ") + "?"
		}
		r.Add(i)
	}
	return r
}

// ContentValidator checks size bounds and heading presence. Zero bounds are
// not enforced.
type ContentValidator struct {
	MinLength      int
	MaxLength      int
	RequireHeading bool
}

// Name implements Validator.
func (ContentValidator) Name() string { return "content" }

// Validate implements Validator.
func (v ContentValidator) Validate(rec *models.FileRecord) *Report {
	r := NewReport(rec.Path)
	n := int(rec.Size)
	if v.MinLength > 0 && n < v.MinLength {
		r.Add(Issue{
			Severity:   SeverityWarning,
			Category:   "content",
			Message:    fmt.Sprintf("content too short: %d bytes (minimum %d)", n, v.MinLength),
			Suggestion: "add more content to the note",
		})
	}
	if v.MaxLength > 0 && n > v.MaxLength {
		r.Add(Issue{
			Severity:   SeverityWarning,
			Category:   "content",
			Message:    fmt.Sprintf("content too long: %d bytes (maximum %d)", n, v.MaxLength),
			Suggestion: "consider splitting into multiple notes",
		})
	}
	if v.RequireHeading && len(rec.Headings) == 0 {
		r.Add(Issue{
			Severity:   SeverityWarning,
			Category:   "content",
			Message:    "no headings found",
			Suggestion: "add at least one heading (# Title)",
		})
	}
	return r
}
