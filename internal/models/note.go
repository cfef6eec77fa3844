// Package models defines the domain types shared across the vault packages.
package models

import (
	"path"
	"strings"
	"time"
)

// LinkKind classifies a reference found in a file.
type LinkKind string

// Link kinds.
const (
	KindWikiLink     LinkKind = "wikilink"
	KindEmbed        LinkKind = "embed"
	KindBlockRef     LinkKind = "block_ref"
	KindHeadingRef   LinkKind = "heading_ref"
	KindAnchor       LinkKind = "anchor"
	KindMarkdownLink LinkKind = "markdown_link"
	KindExternalLink LinkKind = "external_link"
)

// Link is a reference from one file toward a target.
type Link struct {
	Kind    LinkKind `json:"kind"`
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Display string   `json:"display,omitempty"`
	Raw     string   `json:"raw"`
	Offset  int      `json:"offset"`
	Line    int      `json:"line"`
}

// FileTarget returns the file part of an internal link target, with any
// #heading or #^block suffix removed. Anchors, same-file block references and
// external links have no file part.
func (l Link) FileTarget() (string, bool) {
	if l.Kind == KindExternalLink || l.Kind == KindAnchor {
		return "", false
	}
	t := l.Target
	if i := strings.IndexByte(t, '#'); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)
	return t, t != ""
}

// Markdown reports whether the link was written as [text](url) rather than
// [[target]].
func (l Link) Markdown() bool {
	return !strings.HasPrefix(strings.TrimPrefix(l.Raw, "!"), "[[")
}

// Heading is a Markdown ATX heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Line  int    `json:"line"`
}

// FileRecord is a parsed vault document.
type FileRecord struct {
	Path        string         `json:"path"`
	Hash        string         `json:"hash"`
	Size        int64          `json:"size"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
	Title       string         `json:"title,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Headings    []Heading      `json:"headings,omitempty"`
	Links       []Link         `json:"links,omitempty"`
	Body        string         `json:"-"`
}

// Stem returns the file name without directory and extension.
func (r *FileRecord) Stem() string {
	return Stem(r.Path)
}

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// FileInfo is the lightweight metadata returned by listings.
type FileInfo struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}
