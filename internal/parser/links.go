package parser

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/vaultkeep/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[([^\[\]\n]+?)\]\]`)
	mdLinkRe   = regexp.MustCompile(`(!?)\[([^\[\]\n]*)\]\(([^()\s]+)(?:\s+"[^"\n]*")?\)`)
)

// Span locates one link in raw content. Offsets index the original bytes.
type Span struct {
	Start, End int
	Markdown   bool   // [text](url) form rather than [[target]]
	Embed      bool   // leading "!"
	TargetFrom int    // raw target bounds: before "|" for wikilinks, the URL for markdown links
	TargetTo   int
	Label      string // wikilink alias or markdown link text
}

// Target returns the raw target text of the span within src.
func (s Span) Target(src string) string {
	return src[s.TargetFrom:s.TargetTo]
}

// FindSpans returns every wikilink, embed and markdown link in the body of
// src, ordered by position. Code blocks, inline code and frontmatter are skipped.
func FindSpans(src string) []Span {
	from := BodyOffset([]byte(src))
	masked := MaskCode(src)[from:]
	var out []Span

	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(masked, -1) {
		inner := src[m[4]+from : m[5]+from]
		targetLen := len(inner)
		label := ""
		if i := strings.IndexByte(inner, '|'); i >= 0 {
			targetLen = i
			label = inner[i+1:]
		}
		out = append(out, Span{
			Start:      m[0] + from,
			End:        m[1] + from,
			Embed:      m[3] > m[2],
			TargetFrom: m[4] + from,
			TargetTo:   m[4] + from + targetLen,
			Label:      label,
		})
	}
	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(masked, -1) {
		out = append(out, Span{
			Start:      m[0] + from,
			End:        m[1] + from,
			Markdown:   true,
			Embed:      m[3] > m[2],
			TargetFrom: m[6] + from,
			TargetTo:   m[7] + from,
			Label:      src[m[4]+from : m[5]+from],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// DecodeTarget undoes percent-encoding in a markdown link target.
func DecodeTarget(raw string) string {
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// ClassifyWikilink returns the kind of a [[target]] reference.
func ClassifyWikilink(target string) models.LinkKind {
	hash := strings.IndexByte(target, '#')
	switch {
	case hash < 0:
		return models.KindWikiLink
	case strings.HasPrefix(target[hash:], "#^"):
		return models.KindBlockRef
	case hash == 0:
		return models.KindAnchor
	default:
		return models.KindHeadingRef
	}
}

// ClassifyURL returns the kind of a [text](url) reference.
func ClassifyURL(u string) models.LinkKind {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
		return models.KindExternalLink
	}
	hash := strings.IndexByte(u, '#')
	switch {
	case hash < 0:
		return models.KindMarkdownLink
	case strings.HasPrefix(u[hash:], "#^"):
		return models.KindBlockRef
	case hash == 0:
		return models.KindAnchor
	default:
		return models.KindHeadingRef
	}
}

func extractLinks(source, src string, lines *lineIndex) []models.Link {
	spans := FindSpans(src)
	out := make([]models.Link, 0, len(spans))
	for _, s := range spans {
		raw := s.Target(src)
		l := models.Link{
			Source:  source,
			Display: strings.TrimSpace(s.Label),
			Raw:     src[s.Start:s.End],
			Offset:  s.Start,
			Line:    lines.line(s.Start),
		}
		if s.Markdown {
			l.Target = DecodeTarget(raw)
			l.Kind = ClassifyURL(l.Target)
			l.Display = s.Label
		} else {
			l.Target = strings.TrimSpace(raw)
			if l.Target == "" && l.Display == "" {
				continue
			}
			l.Kind = ClassifyWikilink(l.Target)
			if s.Embed {
				l.Kind = models.KindEmbed
			}
		}
		out = append(out, l)
	}
	return out
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(s string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (l *lineIndex) line(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
}
