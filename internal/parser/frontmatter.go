package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// frontmatter is the located YAML block of a document.
type frontmatter struct {
	fields     map[string]any
	present    bool
	bodyOffset int // byte offset of the body in the original data
}

// locateFrontmatter finds a leading frontmatter block without parsing it.
// It returns the YAML block bounds and the body offset.
func locateFrontmatter(data []byte) (blockStart, blockEnd, bodyOffset int, ok bool) {
	lead := len(data) - len(bytes.TrimLeft(data, "\n\r"))
	rest := data[lead:]
	if !bytes.HasPrefix(rest, []byte(delim)) {
		return 0, 0, 0, false
	}
	firstNL := bytes.IndexByte(rest, '\n')
	if firstNL < 0 || strings.TrimSpace(string(rest[:firstNL])) != delim {
		return 0, 0, 0, false
	}

	// Find the closing delimiter line.
	pos := firstNL + 1
	for pos < len(rest) {
		end := bytes.IndexByte(rest[pos:], '\n')
		line, next := rest[pos:], len(rest)
		if end >= 0 {
			line, next = rest[pos:pos+end], pos+end+1
		}
		if strings.TrimRight(string(line), " \t\r") == delim {
			return lead + firstNL + 1, lead + pos, lead + next, true
		}
		pos = next
	}
	return 0, 0, 0, false
}

// BodyOffset returns the byte offset where the Markdown body starts, skipping
// a leading frontmatter block when one is closed.
func BodyOffset(data []byte) int {
	_, _, off, ok := locateFrontmatter(data)
	if !ok {
		return 0
	}
	return off
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no closed frontmatter block is found the entire
// content is body. A closed block that is not a valid YAML mapping is an error.
func splitFrontmatter(data []byte) (frontmatter, error) {
	start, end, off, ok := locateFrontmatter(data)
	if !ok {
		return frontmatter{}, nil
	}
	fm := frontmatter{present: true, bodyOffset: off}
	var fields map[string]any
	if err := yaml.Unmarshal(data[start:end], &fields); err != nil {
		return fm, fmt.Errorf("frontmatter: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fm.fields = fields
	return fm, nil
}

// Compose renders fields as a frontmatter block followed by body.
func Compose(fields map[string]any, body string) ([]byte, error) {
	if len(fields) == 0 {
		return []byte(body), nil
	}
	out, err := yaml.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(out)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// MergeFrontmatter overlays fields onto the frontmatter of content (creating
// the block if absent) and keeps the body byte-for-byte. A nil value removes
// the key. When content is replaced as well, pass the new content here.
func MergeFrontmatter(content []byte, fields map[string]any) ([]byte, error) {
	fm, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(fm.fields)+len(fields))
	for k, v := range fm.fields {
		merged[k] = v
	}
	for k, v := range fields {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	body := string(content)
	if fm.present {
		body = string(content[fm.bodyOffset:])
	}
	return Compose(merged, body)
}

// stringList reads a frontmatter value that may be a YAML list or a single
// comma-separated string.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
