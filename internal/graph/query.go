package graph

import (
	"sort"
	"strings"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/models"
)

// DefaultHops bounds RelatedNotes when maxHops is not positive.
const DefaultHops = 2

const maxSuggestions = 5

// Related is a file reachable from an origin within some number of hops.
type Related struct {
	Path     string `json:"path"`
	Distance int    `json:"distance"`
}

// Hub is a file ranked by total degree.
type Hub struct {
	Path      string `json:"path"`
	Degree    int    `json:"degree"`
	Backlinks int    `json:"backlinks"`
	Forward   int    `json:"forward_links"`
}

// Backlinks returns the edges pointing at p, ordered by source.
func (g *Graph) Backlinks(p string) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.node("backlinks", p)
	if err != nil {
		return nil, err
	}
	return sortedEdges(n.in, func(e Edge) string { return e.Source }), nil
}

// ForwardLinks returns the edges leaving p, ordered by target.
func (g *Graph) ForwardLinks(p string) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.node("forward_links", p)
	if err != nil {
		return nil, err
	}
	return sortedEdges(n.out, func(e Edge) string { return e.Target }), nil
}

// RelatedNotes walks links in both directions breadth first and returns every
// file within maxHops of p, nearest first. Files at equal distance keep their
// discovery order; neighbours are visited in lexical order.
func (g *Graph) RelatedNotes(p string, maxHops int) ([]Related, error) {
	if maxHops <= 0 {
		maxHops = DefaultHops
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, err := g.node("related_notes", p); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{p: {}}
	frontier := []string{p}
	var out []Related
	for dist := 1; dist <= maxHops && len(frontier) > 0; dist++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range g.neighbours(cur) {
				if _, ok := seen[nb]; ok {
					continue
				}
				seen[nb] = struct{}{}
				out = append(out, Related{Path: nb, Distance: dist})
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return out, nil
}

// Reference lists the link targets, as written in Source, that resolve to a
// given file.
type Reference struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// References returns, for every file linking to p, the distinct written
// targets of those links, ordered by source.
func (g *Graph) References(p string) ([]Reference, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.node("references", p)
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(n.in))
	for src := range n.in {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	out := make([]Reference, 0, len(sources))
	for _, src := range sources {
		ref := Reference{Source: src}
		seen := map[string]struct{}{}
		for _, l := range g.nodes[src].links {
			if t, ok := g.resolve(l); !ok || t != p {
				continue
			}
			file, _ := l.FileTarget()
			if _, dup := seen[file]; dup {
				continue
			}
			seen[file] = struct{}{}
			ref.Targets = append(ref.Targets, file)
		}
		out = append(out, ref)
	}
	return out, nil
}

// Orphans returns files with no resolved links in or out.
func (g *Graph) Orphans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filter(isOrphan)
}

// DeadEnds returns files that are linked to but link nowhere.
func (g *Graph) DeadEnds() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filter(isDeadEnd)
}

func isOrphan(n *node) bool  { return len(n.in) == 0 && len(n.out) == 0 }
func isDeadEnd(n *node) bool { return len(n.in) > 0 && len(n.out) == 0 }

// HubNotes returns the n files with the highest total degree, ties broken by
// path. A non-positive n returns every file.
func (g *Graph) HubNotes(n int) []Hub {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hubs(n)
}

func (g *Graph) hubs(n int) []Hub {
	hubs := make([]Hub, 0, len(g.nodes))
	for p, nd := range g.nodes {
		hubs = append(hubs, Hub{Path: p, Degree: len(nd.in) + len(nd.out), Backlinks: len(nd.in), Forward: len(nd.out)})
	}
	sort.Slice(hubs, func(i, j int) bool {
		if hubs[i].Degree != hubs[j].Degree {
			return hubs[i].Degree > hubs[j].Degree
		}
		return hubs[i].Path < hubs[j].Path
	})
	if n > 0 && n < len(hubs) {
		hubs = hubs[:n]
	}
	return hubs
}

// BrokenLinks returns every unresolved link ordered by source and line, each
// with up to five files whose names resemble the target.
func (g *Graph) BrokenLinks() []BrokenLink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.brokenLinks()
}

func (g *Graph) brokenLinks() []BrokenLink {
	var out []BrokenLink
	for _, p := range g.sortedPaths() {
		for _, b := range g.nodes[p].broken {
			b.Suggestions = g.suggest(b)
			out = append(out, b)
		}
	}
	return out
}

// BrokenLinksFrom returns the unresolved links in p.
func (g *Graph) BrokenLinksFrom(p string) ([]BrokenLink, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.node("broken_links", p)
	if err != nil {
		return nil, err
	}
	out := make([]BrokenLink, len(n.broken))
	for i, b := range n.broken {
		b.Suggestions = g.suggest(b)
		out[i] = b
	}
	return out, nil
}

// suggest lists files whose stem contains, or is contained in, the stem of
// the broken target.
func (g *Graph) suggest(b BrokenLink) []string {
	l := models.Link{Target: b.Target, Kind: b.Kind}
	file, ok := l.FileTarget()
	if !ok {
		return nil
	}
	want := strings.ToLower(models.Stem(file))
	if want == "" {
		return nil
	}
	var out []string
	for _, p := range g.sortedPaths() {
		stem := strings.ToLower(models.Stem(p))
		if strings.Contains(stem, want) || strings.Contains(want, stem) {
			out = append(out, p)
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out
}

func (g *Graph) node(op, p string) (*node, error) {
	n, ok := g.nodes[p]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, op, p, "not in link graph")
	}
	return n, nil
}

// neighbours returns the sorted union of p's forward and backlink files.
func (g *Graph) neighbours(p string) []string {
	n := g.nodes[p]
	set := make(map[string]struct{}, len(n.in)+len(n.out))
	for t := range n.out {
		set[t] = struct{}{}
	}
	for s := range n.in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) filter(keep func(*node) bool) []string {
	var out []string
	for _, p := range g.sortedPaths() {
		if keep(g.nodes[p]) {
			out = append(out, p)
		}
	}
	return out
}

func sortedEdges(m map[string]*Edge, key func(Edge) string) []Edge {
	out := make([]Edge, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}
