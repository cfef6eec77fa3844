// Package metadata filters vault files by their frontmatter.
//
// A query is one or more conditions joined by AND or OR, AND binding
// tighter:
//
//	status: "draft"
//	priority > 3
//	tags: contains("project")
//	status: "draft" AND priority > 3 OR pinned: "true"
//
// Keys may use dots to reach into nested maps (author.name).
package metadata

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Op is a comparison.
type Op string

// Comparisons.
const (
	OpEquals   Op = "equals"
	OpGreater  Op = "greater_than"
	OpLess     Op = "less_than"
	OpContains Op = "contains"
)

// Condition compares one frontmatter value.
type Condition struct {
	Key    string
	Op     Op
	Text   string
	Number float64
}

// Filter is a parsed query: a disjunction of conjunctions.
type Filter struct {
	any [][]Condition
}

// Parse compiles a query string.
func Parse(query string) (*Filter, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	f := &Filter{}
	for _, alt := range strings.Split(query, " OR ") {
		var all []Condition
		for _, part := range strings.Split(alt, " AND ") {
			c, err := parseCondition(part)
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
		f.any = append(f.any, all)
	}
	return f, nil
}

func parseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)

	if key, rest, ok := strings.Cut(s, ":"); ok {
		key, rest = strings.TrimSpace(key), strings.TrimSpace(rest)
		if inner, ok := trimCall(rest, "contains"); ok {
			if text, ok := unquote(inner); ok && key != "" {
				return Condition{Key: key, Op: OpContains, Text: text}, nil
			}
		}
		if text, ok := unquote(rest); ok && key != "" {
			return Condition{Key: key, Op: OpEquals, Text: text}, nil
		}
	}
	for _, cmp := range []struct {
		sep string
		op  Op
	}{{" > ", OpGreater}, {" < ", OpLess}} {
		key, rest, ok := strings.Cut(s, cmp.sep)
		if !ok {
			continue
		}
		n, err := cast.ToFloat64E(strings.TrimSpace(rest))
		if err != nil || strings.TrimSpace(key) == "" {
			break
		}
		return Condition{Key: strings.TrimSpace(key), Op: cmp.op, Number: n}, nil
	}
	return Condition{}, fmt.Errorf("cannot parse condition %q", s)
}

func trimCall(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return strings.TrimSpace(s[len(name)+1 : len(s)-1]), true
}

func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// Match reports whether fm satisfies the filter.
func (f *Filter) Match(fm map[string]any) bool {
	if len(fm) == 0 {
		return false
	}
	for _, all := range f.any {
		ok := true
		for _, c := range all {
			if !c.Match(fm) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Match reports whether fm satisfies c. Missing keys never match.
func (c Condition) Match(fm map[string]any) bool {
	v, ok := Lookup(fm, c.Key)
	if !ok || v == nil {
		return false
	}
	switch c.Op {
	case OpEquals:
		if list, ok := v.([]any); ok {
			return containsElem(list, c.Text)
		}
		s, err := cast.ToStringE(v)
		return err == nil && s == c.Text
	case OpContains:
		if s, ok := v.(string); ok {
			return strings.Contains(s, c.Text)
		}
		if list, ok := v.([]any); ok {
			return containsElem(list, c.Text)
		}
		return false
	case OpGreater, OpLess:
		if _, isBool := v.(bool); isBool {
			return false
		}
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return false
		}
		if c.Op == OpGreater {
			return n > c.Number
		}
		return n < c.Number
	}
	return false
}

func containsElem(list []any, want string) bool {
	for _, e := range list {
		if s, err := cast.ToStringE(e); err == nil && s == want {
			return true
		}
	}
	return false
}

// Lookup returns the value at a dotted key, descending through nested maps.
func Lookup(fm map[string]any, key string) (any, bool) {
	var cur any = fm
	for _, part := range strings.Split(key, ".") {
		var m map[string]any
		switch v := cur.(type) {
		case map[string]any:
			m = v
		case map[any]any:
			m = cast.ToStringMap(v)
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
