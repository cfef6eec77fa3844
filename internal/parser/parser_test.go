package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - vault\naliases: [hi, greeting]\n---\n# Hello\nBody text.\n")
	r, err := Parse("hello.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "vault" {
		t.Errorf("tags = %v, want [go vault]", r.Tags)
	}
	if len(r.Aliases) != 2 || r.Aliases[0] != "hi" {
		t.Errorf("aliases = %v", r.Aliases)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Size != int64(len(input)) || len(r.Hash) != 64 {
		t.Errorf("size/hash not populated: %d %q", r.Size, r.Hash)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse("a.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLIsParseError(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	_, err := Parse("bad.md", input)
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestParse_UnclosedFrontmatterIsBody(t *testing.T) {
	input := []byte("---\ntitle: open\nno closing fence [[Target]]\n")
	r, err := Parse("open.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
	if len(r.Links) != 1 || r.Links[0].Target != "Target" {
		t.Errorf("links = %+v", r.Links)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := Parse("bin.md", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestParse_LinkKinds(t *testing.T) {
	input := "See [[Note]], [[Note#Heading|the heading]], [[Note#^abc]], [[#Local]], [[#^blk]].\n" +
		"Embed ![[diagram.png]] and [md](other.md) and [web](https://example.com) and [sec](#part) and [h](doc.md#intro).\n"
	r, err := Parse("src.md", []byte(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		kind    models.LinkKind
		target  string
		display string
	}{
		{models.KindWikiLink, "Note", ""},
		{models.KindHeadingRef, "Note#Heading", "the heading"},
		{models.KindBlockRef, "Note#^abc", ""},
		{models.KindAnchor, "#Local", ""},
		{models.KindBlockRef, "#^blk", ""},
		{models.KindEmbed, "diagram.png", ""},
		{models.KindMarkdownLink, "other.md", "md"},
		{models.KindExternalLink, "https://example.com", "web"},
		{models.KindAnchor, "#part", "sec"},
		{models.KindHeadingRef, "doc.md#intro", "h"},
	}
	if len(r.Links) != len(want) {
		t.Fatalf("got %d links: %+v", len(r.Links), r.Links)
	}
	for i, w := range want {
		l := r.Links[i]
		if l.Kind != w.kind || l.Target != w.target || l.Display != w.display {
			t.Errorf("link %d = {%s %q %q}, want {%s %q %q}", i, l.Kind, l.Target, l.Display, w.kind, w.target, w.display)
		}
		if l.Source != "src.md" {
			t.Errorf("link %d source = %q", i, l.Source)
		}
		if input[l.Offset:l.Offset+len(l.Raw)] != l.Raw {
			t.Errorf("link %d offset %d does not point at %q", i, l.Offset, l.Raw)
		}
	}
	if r.Links[0].Line != 1 || r.Links[5].Line != 2 {
		t.Errorf("line numbers = %d, %d", r.Links[0].Line, r.Links[5].Line)
	}
}

func TestParse_OffsetsAccountForFrontmatter(t *testing.T) {
	input := "---\ntitle: T\n---\nLink to [[B]]\n"
	r, err := Parse("a.md", []byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Links) != 1 {
		t.Fatalf("links = %+v", r.Links)
	}
	l := r.Links[0]
	if !strings.HasPrefix(input[l.Offset:], "[[B]]") || l.Line != 4 {
		t.Errorf("offset=%d line=%d", l.Offset, l.Line)
	}
}

func TestParse_LinksInCodeIgnored(t *testing.T) {
	input := "Real [[A]]\n```\n[[NotALink]]\n```\nInline `[[Nope]]` and [[B]]\n~~~md\n[x](y.md)\n~~~\n"
	r, err := Parse("c.md", []byte(input))
	if err != nil {
		t.Fatal(err)
	}
	var targets []string
	for _, l := range r.Links {
		targets = append(targets, l.Target)
	}
	if strings.Join(targets, ",") != "A,B" {
		t.Errorf("targets = %v, want [A B]", targets)
	}
}

func TestParse_Tags(t *testing.T) {
	input := []byte("---\ntags: \"project, #meta\"\n---\nText #golang and #project again.\n# Heading is not a tag\n")
	r, err := Parse("t.md", input)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"project", "meta", "golang"}
	if strings.Join(r.Tags, ",") != strings.Join(want, ",") {
		t.Errorf("tags = %v, want %v", r.Tags, want)
	}
}

func TestParse_Headings(t *testing.T) {
	r, err := Parse("h.md", []byte("# One\ntext\n## Two ##\n```\n# not heading\n```\n###### Six\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Headings) != 3 {
		t.Fatalf("headings = %+v", r.Headings)
	}
	if r.Headings[1].Text != "Two" || r.Headings[1].Level != 2 || r.Headings[1].Line != 3 {
		t.Errorf("heading[1] = %+v", r.Headings[1])
	}
	if r.Headings[2].Level != 6 {
		t.Errorf("heading[2] = %+v", r.Headings[2])
	}
}

func TestMergeFrontmatter(t *testing.T) {
	in := []byte("---\ntitle: Old\nkeep: yes\n---\nBody [[x]]\n")
	out, err := MergeFrontmatter(in, map[string]any{"title": "New", "status": "done", "keep": nil})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Parse("m.md", out)
	if err != nil {
		t.Fatal(err)
	}
	if r.Frontmatter["title"] != "New" || r.Frontmatter["status"] != "done" {
		t.Errorf("frontmatter = %v", r.Frontmatter)
	}
	if _, ok := r.Frontmatter["keep"]; ok {
		t.Error("nil value should remove key")
	}
	if r.Body != "Body [[x]]\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestMergeFrontmatter_NoExistingBlock(t *testing.T) {
	out, err := MergeFrontmatter([]byte("plain body\n"), map[string]any{"title": "T"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "---\ntitle: T\n---\nplain body\n" {
		t.Errorf("out = %q", out)
	}
}

func TestCompose_Empty(t *testing.T) {
	out, err := Compose(nil, "body")
	if err != nil || string(out) != "body" {
		t.Errorf("Compose(nil) = %q, %v", out, err)
	}
}
