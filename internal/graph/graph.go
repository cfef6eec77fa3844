// Package graph maintains the in-memory directed link graph of a vault.
//
// Nodes are vault files; edges are resolved links between them. Links whose
// target does not resolve are kept in a broken-link index keyed by source.
// The graph is rebuilt with Build and patched with Upsert, Remove and Rename.
// Queries hold a read lock and may run concurrently; patches are exclusive.
package graph

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/vaultkeep/internal/metrics"
	"github.com/starford/vaultkeep/internal/models"
)

// DefaultNoteExtensions are the extensions of files that links may target
// without writing the extension.
var DefaultNoteExtensions = []string{".md", ".markdown", ".txt", ".canvas"}

// Edge is a resolved link between two files. Repeated links between the same
// pair collapse into one edge with a count.
type Edge struct {
	Source string          `json:"source"`
	Target string          `json:"target"`
	Kind   models.LinkKind `json:"kind"`
	Count  int             `json:"count"`
	Line   int             `json:"line"`
}

// BrokenLink is a link whose target matches no file.
type BrokenLink struct {
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Kind        models.LinkKind `json:"kind"`
	Line        int             `json:"line"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

type node struct {
	path    string
	aliases []string
	links   []models.Link
	out     map[string]*Edge // by target
	in      map[string]*Edge // by source
	broken  []BrokenLink
	refKeys []string
}

// Graph is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node

	byPath  map[string][]string // lowercased path
	byNoExt map[string][]string // lowercased path without note extension
	byName  map[string][]string // lowercased base name
	byStem  map[string][]string // lowercased base name without extension
	byAlias map[string][]string
	refs    map[string]map[string]struct{} // lookup key -> sources using it

	noteExts map[string]struct{}
	metrics  *metrics.Metrics
}

// Option configures a Graph.
type Option func(*Graph)

// WithMetrics publishes node, edge and broken-link gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

// WithNoteExtensions overrides DefaultNoteExtensions.
func WithNoteExtensions(exts []string) Option {
	return func(g *Graph) { g.noteExts = extSet(exts) }
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{noteExts: extSet(DefaultNoteExtensions)}
	for _, opt := range opts {
		opt(g)
	}
	g.metrics = metrics.OrNop(g.metrics)
	g.reset()
	return g
}

func extSet(exts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = struct{}{}
	}
	return m
}

func (g *Graph) reset() {
	g.nodes = make(map[string]*node)
	g.byPath = make(map[string][]string)
	g.byNoExt = make(map[string][]string)
	g.byName = make(map[string][]string)
	g.byStem = make(map[string][]string)
	g.byAlias = make(map[string][]string)
	g.refs = make(map[string]map[string]struct{})
}

// Build replaces the graph contents with one node per record.
func (g *Graph) Build(records []*models.FileRecord) {
	start := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	for _, r := range records {
		n := &node{path: r.Path, out: map[string]*Edge{}, in: map[string]*Edge{}}
		n.aliases, n.links = r.Aliases, linkable(r.Links)
		g.nodes[r.Path] = n
		g.index(n)
	}
	for _, p := range g.sortedPaths() {
		g.relink(g.nodes[p])
	}
	g.metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds())
	g.publish()
}

// Upsert adds or replaces the node for rec and re-resolves every link whose
// outcome may have changed.
func (g *Graph) Upsert(rec *models.FileRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsert(rec.Path, rec.Aliases, linkable(rec.Links))
	g.publish()
}

// Remove deletes the node at p. Links that pointed at it become broken
// unless they now resolve elsewhere. It reports whether the node existed.
func (g *Graph) Remove(p string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok := g.remove(p)
	g.publish()
	return ok
}

// Rename moves the node at from to to, keeping its links. Links elsewhere
// that named the old path are re-resolved and typically become broken until
// their files are rewritten. It reports whether from existed.
func (g *Graph) Rename(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[from]
	if !ok {
		return false
	}
	aliases, links := n.aliases, make([]models.Link, len(n.links))
	for i, l := range n.links {
		l.Source = to
		links[i] = l
	}
	g.remove(from)
	g.upsert(to, aliases, links)
	g.publish()
	return true
}

// Has reports whether p is a node.
func (g *Graph) Has(p string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[p]
	return ok
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Paths returns every node path in lexical order.
func (g *Graph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedPaths()
}

// Resolve returns the file a link target written in source refers to.
func (g *Graph) Resolve(source, target string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l := models.Link{Kind: models.KindWikiLink, Source: source, Target: target, Raw: "[[" + target + "]]"}
	return g.resolve(l)
}

func (g *Graph) upsert(p string, aliases []string, links []models.Link) {
	affected := map[string]struct{}{p: {}}
	n, ok := g.nodes[p]
	if ok {
		g.collectAffected(n, affected)
		g.unindex(n)
		g.unlinkOut(n)
	} else {
		n = &node{path: p, out: map[string]*Edge{}, in: map[string]*Edge{}}
		g.nodes[p] = n
	}
	n.aliases, n.links = aliases, links
	g.index(n)
	g.collectAffected(n, affected)
	g.relinkAll(affected)
}

func (g *Graph) remove(p string) bool {
	n, ok := g.nodes[p]
	if !ok {
		return false
	}
	affected := map[string]struct{}{}
	g.collectAffected(n, affected)
	delete(affected, p)
	g.unlinkOut(n)
	g.unindex(n)
	delete(g.nodes, p)
	g.relinkAll(affected)
	return true
}

// collectAffected adds every source whose links could resolve differently
// once n's names change: current backlinks and any source whose lookup keys
// match one of n's names.
func (g *Graph) collectAffected(n *node, into map[string]struct{}) {
	for src := range n.in {
		into[src] = struct{}{}
	}
	for _, k := range g.nameKeys(n) {
		for src := range g.refs[k] {
			into[src] = struct{}{}
		}
	}
}

func (g *Graph) relinkAll(set map[string]struct{}) {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if n, ok := g.nodes[p]; ok {
			g.relink(n)
		}
	}
}

// relink recomputes the outgoing edges and broken links of n.
func (g *Graph) relink(n *node) {
	g.unlinkOut(n)
	keys := map[string]struct{}{}
	for _, l := range n.links {
		for _, k := range g.lookupKeys(l) {
			keys[k] = struct{}{}
		}
		target, ok := g.resolve(l)
		if !ok {
			if g.attachment(l) {
				continue
			}
			n.broken = append(n.broken, BrokenLink{Source: n.path, Target: l.Target, Kind: l.Kind, Line: l.Line})
			continue
		}
		if target == n.path {
			continue
		}
		if e, dup := n.out[target]; dup {
			e.Count++
			continue
		}
		e := &Edge{Source: n.path, Target: target, Kind: l.Kind, Count: 1, Line: l.Line}
		n.out[target] = e
		g.nodes[target].in[n.path] = e
	}
	for k := range keys {
		n.refKeys = append(n.refKeys, k)
		set, ok := g.refs[k]
		if !ok {
			set = map[string]struct{}{}
			g.refs[k] = set
		}
		set[n.path] = struct{}{}
	}
}

func (g *Graph) unlinkOut(n *node) {
	for target := range n.out {
		if t, ok := g.nodes[target]; ok {
			delete(t.in, n.path)
		}
	}
	n.out = map[string]*Edge{}
	n.broken = nil
	for _, k := range n.refKeys {
		if set, ok := g.refs[k]; ok {
			delete(set, n.path)
			if len(set) == 0 {
				delete(g.refs, k)
			}
		}
	}
	n.refKeys = nil
}

func (g *Graph) index(n *node) {
	lower := strings.ToLower(n.path)
	base := path.Base(lower)
	add(g.byPath, lower, n.path)
	add(g.byNoExt, g.trimNoteExt(lower), n.path)
	add(g.byName, base, n.path)
	add(g.byStem, strings.TrimSuffix(base, path.Ext(base)), n.path)
	for _, a := range n.aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			add(g.byAlias, a, n.path)
		}
	}
}

func (g *Graph) unindex(n *node) {
	lower := strings.ToLower(n.path)
	base := path.Base(lower)
	drop(g.byPath, lower, n.path)
	drop(g.byNoExt, g.trimNoteExt(lower), n.path)
	drop(g.byName, base, n.path)
	drop(g.byStem, strings.TrimSuffix(base, path.Ext(base)), n.path)
	for _, a := range n.aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			drop(g.byAlias, a, n.path)
		}
	}
}

func add(m map[string][]string, k, p string) {
	for _, q := range m[k] {
		if q == p {
			return
		}
	}
	m[k] = append(m[k], p)
}

func drop(m map[string][]string, k, p string) {
	list := m[k]
	for i, q := range list {
		if q == p {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m, k)
		return
	}
	m[k] = list
}

// nameKeys are the lookup keys under which links may find n: every slash
// suffix of its extensionless path, its stem and its aliases.
func (g *Graph) nameKeys(n *node) []string {
	p := g.trimNoteExt(strings.ToLower(n.path))
	keys := []string{p}
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			keys = append(keys, p[i+1:])
		}
	}
	base := path.Base(strings.ToLower(n.path))
	keys = append(keys, strings.TrimSuffix(base, path.Ext(base)))
	for _, a := range n.aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			keys = append(keys, g.trimNoteExt(a))
		}
	}
	return keys
}

// lookupKeys are the keys a link is registered under in refs.
func (g *Graph) lookupKeys(l models.Link) []string {
	file, ok := l.FileTarget()
	if !ok {
		return nil
	}
	keys := []string{g.trimNoteExt(normalizeKey(file))}
	if l.Markdown() && !strings.HasPrefix(file, "/") {
		joined := path.Clean(path.Join(path.Dir(l.Source), file))
		keys = append(keys, g.trimNoteExt(strings.ToLower(joined)))
	}
	return keys
}

// resolve finds the node a link refers to. Markdown links are tried relative
// to the source directory first. Then, in order: exact path with or without
// extension, base name or stem, alias, unique path suffix. Collisions pick the
// shortest path, then the lexically smallest.
func (g *Graph) resolve(l models.Link) (string, bool) {
	file, ok := l.FileTarget()
	if !ok {
		return "", false
	}
	if l.Markdown() {
		t := strings.TrimPrefix(file, "/")
		if !strings.HasPrefix(file, "/") {
			t = path.Join(path.Dir(l.Source), file)
		}
		t = strings.ToLower(path.Clean(t))
		if p, ok := pick(g.byPath[t]); ok {
			return p, true
		}
		if p, ok := pick(g.byNoExt[g.trimNoteExt(t)]); ok {
			return p, true
		}
	}

	key := normalizeKey(file)
	noExt := g.trimNoteExt(key)
	if p, ok := pick(g.byPath[key]); ok {
		return p, true
	}
	if p, ok := pick(g.byNoExt[noExt]); ok {
		return p, true
	}
	if !strings.Contains(key, "/") {
		if p, ok := pick(g.byName[key]); ok {
			return p, true
		}
		if p, ok := pick(g.byStem[noExt]); ok {
			return p, true
		}
	}
	if p, ok := pick(g.byAlias[key]); ok {
		return p, true
	}
	if strings.Contains(key, "/") {
		var found []string
		suffix := "/" + noExt
		for k, paths := range g.byNoExt {
			if strings.HasSuffix(k, suffix) {
				found = append(found, paths...)
			}
		}
		if len(found) == 1 {
			return found[0], true
		}
	}
	return "", false
}

// attachment reports whether an unresolved link names a file that is not a
// note, such as an image. Those are not graph nodes and are not broken.
func (g *Graph) attachment(l models.Link) bool {
	file, _ := l.FileTarget()
	ext := strings.ToLower(path.Ext(file))
	if ext == "" {
		return false
	}
	_, note := g.noteExts[ext]
	return !note
}

func (g *Graph) trimNoteExt(p string) string {
	ext := path.Ext(p)
	if _, ok := g.noteExts[strings.ToLower(ext)]; ok {
		return p[:len(p)-len(ext)]
	}
	return p
}

func normalizeKey(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimPrefix(t, "./")
	return strings.TrimPrefix(t, "/")
}

func pick(paths []string) (string, bool) {
	if len(paths) == 0 {
		return "", false
	}
	best := paths[0]
	for _, p := range paths[1:] {
		if len(p) < len(best) || (len(p) == len(best) && p < best) {
			best = p
		}
	}
	return best, true
}

// linkable keeps the links that can point at another file.
func linkable(links []models.Link) []models.Link {
	out := make([]models.Link, 0, len(links))
	for _, l := range links {
		if _, ok := l.FileTarget(); ok {
			out = append(out, l)
		}
	}
	return out
}

func (g *Graph) sortedPaths() []string {
	out := make([]string, 0, len(g.nodes))
	for p := range g.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) publish() {
	edges, broken := 0, 0
	for _, n := range g.nodes {
		edges += len(n.out)
		broken += len(n.broken)
	}
	g.metrics.GraphNodes.Set(float64(len(g.nodes)))
	g.metrics.GraphEdges.Set(float64(edges))
	g.metrics.GraphBrokenLinks.Set(float64(broken))
}
