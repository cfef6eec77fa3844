package pathresolver

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcluded lists the names skipped by vault scans.
var DefaultExcluded = []string{".obsidian", ".git", ".trash", "node_modules", ".DS_Store"}

// Matcher decides which vault paths are excluded from scans and events.
// A pattern excludes a path when it matches the whole relative path or any
// single component of it.
type Matcher struct {
	patterns []glob.Glob
}

// NewMatcher compiles the exclusion patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("pathresolver: invalid exclusion pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Excluded reports whether rel (slash-separated) is excluded.
func (m *Matcher) Excluded(rel string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	rel = path.Clean(rel)
	parts := strings.Split(rel, "/")
	for _, g := range m.patterns {
		if g.Match(rel) {
			return true
		}
		for _, part := range parts {
			if g.Match(part) {
				return true
			}
		}
	}
	return false
}

// Hidden reports whether any component of rel starts with a dot.
func Hidden(rel string) bool {
	for _, part := range strings.Split(path.Clean(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
