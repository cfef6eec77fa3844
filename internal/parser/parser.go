// Package parser turns raw Markdown bytes into structured file records:
// frontmatter, typed links with byte positions, tags and headings.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/checksum"
	"github.com/starford/vaultkeep/internal/models"
)

var (
	tagRe     = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	headingRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*#*[ \t]*$`)
)

// Parse extracts frontmatter, links, tags and headings from the raw content
// of the vault file at path. The returned record carries the content hash
// and size; timestamps are left for the caller.
func Parse(path string, data []byte) (*models.FileRecord, error) {
	if !utf8.Valid(data) {
		return nil, apperr.Errorf(apperr.KindParse, "parse", path, "content is not valid UTF-8")
	}
	fm, err := splitFrontmatter(data)
	if err != nil {
		return nil, apperr.E(apperr.KindParse, "parse", path, err)
	}

	src := string(data)
	body := src[fm.bodyOffset:]
	masked := MaskCode(src)
	lines := newLineIndex(src)

	rec := &models.FileRecord{
		Path:        path,
		Hash:        checksum.Sum(data),
		Size:        int64(len(data)),
		Frontmatter: fm.fields,
		Body:        body,
		Links:       extractLinks(path, src, lines),
		Headings:    extractHeadings(masked, src, fm.bodyOffset, lines),
		Tags:        extractTags(masked[fm.bodyOffset:], fm.fields),
		Aliases:     stringList(fm.fields["aliases"]),
	}
	rec.Title = deriveTitle(fm.fields, rec.Headings)
	return rec, nil
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range stringList(fm["tags"]) {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

func extractHeadings(masked, src string, from int, lines *lineIndex) []models.Heading {
	var out []models.Heading
	for _, m := range headingRe.FindAllStringSubmatchIndex(masked[from:], -1) {
		level := m[3] - m[2]
		text := src[m[4]+from : m[5]+from]
		out = append(out, models.Heading{
			Level: level,
			Text:  strings.TrimSpace(text),
			Line:  lines.line(m[0] + from),
		})
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, headings []models.Heading) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}
