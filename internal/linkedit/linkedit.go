// Package linkedit rewrites link targets inside raw Markdown content.
//
// Only the target portion of a link changes. Aliases, display text,
// #heading and #^block suffixes and every byte outside the link are kept.
// Links inside code and frontmatter are never touched.
package linkedit

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/vaultkeep/internal/parser"
)

// Replacement maps a link target, as written, to a new vault path. An empty
// New removes the link and leaves its display text in place.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Strip reports whether r removes links instead of retargeting them.
func (r Replacement) Strip() bool { return r.New == "" }

var noteExts = []string{".md", ".markdown"}

// Update applies repls to every wikilink, embed and markdown link in content.
// source is the vault path of the file being edited; markdown link targets
// are rendered relative to its directory. It returns the new content and the
// number of links changed.
func Update(source string, content []byte, repls []Replacement) ([]byte, int) {
	if len(repls) == 0 {
		return content, 0
	}
	src := string(content)
	spans := parser.FindSpans(src)

	var b strings.Builder
	b.Grow(len(src))
	last, changed := 0, 0
	for _, s := range spans {
		out, ok := rewrite(source, src, s, repls)
		if !ok {
			continue
		}
		b.WriteString(src[last:s.Start])
		b.WriteString(out)
		last = s.End
		changed++
	}
	if changed == 0 {
		return content, 0
	}
	b.WriteString(src[last:])
	return []byte(b.String()), changed
}

// rewrite returns the replacement text for the whole span.
func rewrite(source, src string, s parser.Span, repls []Replacement) (string, bool) {
	raw := s.Target(src)
	target := raw
	if s.Markdown {
		target = parser.DecodeTarget(raw)
	}
	file, suffix := splitSuffix(target)
	if strings.TrimSpace(file) == "" {
		return "", false
	}

	for _, r := range repls {
		if !Matches(file, r.Old) {
			continue
		}
		if r.Strip() {
			return stripped(s, file), true
		}
		var nt string
		if s.Markdown {
			nt = markdownTarget(source, file, r.New) + suffix
			nt = strings.ReplaceAll(nt, " ", "%20")
		} else {
			nt = wikiTarget(strings.TrimSpace(file), r.New) + suffix
		}
		return src[s.Start:s.TargetFrom] + nt + src[s.TargetTo:s.End], true
	}
	return "", false
}

// stripped is what remains of a link once it is removed.
func stripped(s parser.Span, file string) string {
	if label := strings.TrimSpace(s.Label); label != "" {
		return label
	}
	if s.Embed {
		return ""
	}
	return strings.TrimSpace(file)
}

// Matches reports whether the written link target refers to want. Targets
// compare equal ignoring case, a leading "./" or "/" and a note extension.
func Matches(written, want string) bool {
	written, want = strings.TrimSpace(written), strings.TrimSpace(want)
	if written == want {
		return true
	}
	return normalize(written) == normalize(want)
}

func normalize(t string) string {
	t = strings.ToLower(t)
	t = strings.TrimPrefix(t, "./")
	t = strings.TrimPrefix(t, "/")
	return trimNoteExt(t)
}

func splitSuffix(t string) (file, suffix string) {
	if i := strings.IndexByte(t, '#'); i >= 0 {
		return t[:i], t[i:]
	}
	return t, ""
}

func trimNoteExt(p string) string {
	lower := strings.ToLower(p)
	for _, ext := range noteExts {
		if strings.HasSuffix(lower, ext) {
			return p[:len(p)-len(ext)]
		}
	}
	return p
}

// keepExt matches the extension style of the original target: an
// extensionless original drops a note extension from next, an original with
// an extension keeps (or gains) it.
func keepExt(orig, next string) string {
	origExt := path.Ext(orig)
	if origExt == "" {
		return trimNoteExt(next)
	}
	if path.Ext(next) == "" {
		return next + origExt
	}
	return next
}

func wikiTarget(orig, next string) string {
	return keepExt(orig, strings.TrimPrefix(next, "/"))
}

func markdownTarget(source, orig, next string) string {
	next = strings.TrimPrefix(next, "/")
	if strings.HasPrefix(orig, "/") {
		return "/" + keepExt(orig, next)
	}
	return keepExt(orig, RelativeTo(source, next))
}

// RelativeTo renders the vault path target relative to the directory of
// source, as a markdown link inside source would reference it.
func RelativeTo(source, target string) string {
	dir := path.Dir(source)
	if dir == "." {
		return target
	}
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
