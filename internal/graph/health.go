package graph

import (
	"fmt"
	"math"
	"sort"
)

// Health score weights. A vault loses up to 30 points for broken links and 20
// for orphans in proportion to their share, 5 points per cycle up to 20, and
// the remainder scales with the share of files in the largest component.
const (
	brokenWeight    = 30.0
	orphanWeight    = 20.0
	cyclePenalty    = 5.0
	maxCyclePenalty = 20.0
)

// Score bands.
const (
	BandExcellent = "Excellent"
	BandGood      = "Good"
	BandFair      = "Fair"
	BandPoor      = "Poor"
)

// HealthReport is a full diagnostic of the vault link structure.
type HealthReport struct {
	TotalNotes       int          `json:"total_notes"`
	TotalLinks       int          `json:"total_links"`
	BrokenLinks      []BrokenLink `json:"broken_links"`
	Orphans          []string     `json:"orphans"`
	DeadEnds         []string     `json:"dead_ends"`
	Hubs             []Hub        `json:"hubs"`
	Cycles           [][]string   `json:"cycles"`
	Components       int          `json:"components"`
	LargestComponent int          `json:"largest_component"`
	IsolatedClusters int          `json:"isolated_clusters"`
	Score            float64      `json:"score"`
	Band             string       `json:"band"`
	Healthy          bool         `json:"healthy"`
}

// Stats summarizes the graph shape.
type Stats struct {
	Nodes       int     `json:"nodes"`
	Edges       int     `json:"edges"`
	Links       int     `json:"links"`
	BrokenLinks int     `json:"broken_links"`
	Orphans     int     `json:"orphans"`
	DeadEnds    int     `json:"dead_ends"`
	Components  int     `json:"components"`
	Density     float64 `json:"density"`
	AvgDegree   float64 `json:"avg_degree"`
}

// Strength describes how tightly two files are connected.
type Strength struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	Direct         int     `json:"direct_links"`
	Reverse        int     `json:"reverse_links"`
	Shared         int     `json:"shared_backlinks"`
	Strength       float64 `json:"strength"`
	Interpretation string  `json:"interpretation"`
}

// Suggestion is a file p does not link to but probably should.
type Suggestion struct {
	Path     string   `json:"path"`
	Shared   int      `json:"shared_backlinks"`
	Strength float64  `json:"strength"`
	Reasons  []string `json:"reasons"`
}

// HealthScore returns a 0 to 100 score. Zero broken links, orphans and
// cycles in a single component score 100; each issue strictly lowers it. An
// empty graph scores 0.
func (g *Graph) HealthScore() float64 {
	return g.Health().Score
}

// Health computes the full report. Cycles and components are recomputed on
// every call.
func (g *Graph) Health() HealthReport {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r := HealthReport{
		TotalNotes:  len(g.nodes),
		BrokenLinks: g.brokenLinks(),
		Cycles:      g.cycles(),
		Orphans:     g.filter(isOrphan),
		DeadEnds:    g.filter(isDeadEnd),
		Hubs:        g.hubs(10),
	}
	resolved := 0
	for _, n := range g.nodes {
		for _, e := range n.out {
			resolved += e.Count
		}
	}
	r.TotalLinks = resolved + len(r.BrokenLinks)

	comps := g.components()
	r.Components = len(comps)
	if len(comps) > 0 {
		r.LargestComponent = len(comps[0])
		r.IsolatedClusters = len(comps) - 1
	}
	r.Score = score(r)
	r.Band = band(r.Score)
	r.Healthy = r.Score >= 80
	return r
}

func score(r HealthReport) float64 {
	if r.TotalNotes == 0 {
		return 0
	}
	n := float64(r.TotalNotes)
	s := 100 * float64(r.LargestComponent) / n
	if r.TotalLinks > 0 {
		s -= brokenWeight * float64(len(r.BrokenLinks)) / float64(r.TotalLinks)
	}
	s -= orphanWeight * float64(len(r.Orphans)) / n
	s -= math.Min(cyclePenalty*float64(len(r.Cycles)), maxCyclePenalty)
	return math.Max(0, math.Min(100, s))
}

func band(s float64) string {
	switch {
	case s >= 100:
		return BandExcellent
	case s >= 80:
		return BandGood
	case s >= 60:
		return BandFair
	default:
		return BandPoor
	}
}

// Stats returns node and edge counts with density and average degree.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Nodes: len(g.nodes)}
	for _, n := range g.nodes {
		s.Edges += len(n.out)
		s.BrokenLinks += len(n.broken)
		for _, e := range n.out {
			s.Links += e.Count
		}
		switch {
		case isOrphan(n):
			s.Orphans++
		case isDeadEnd(n):
			s.DeadEnds++
		}
	}
	s.Links += s.BrokenLinks
	s.Components = len(g.components())
	if s.Nodes > 1 {
		s.Density = float64(s.Edges) / float64(s.Nodes*(s.Nodes-1))
	}
	if s.Nodes > 0 {
		s.AvgDegree = 2 * float64(s.Edges) / float64(s.Nodes)
	}
	return s
}

// LinkStrength scores the connection between a and b from direct links each
// way and the number of files linking to both.
func (g *Graph) LinkStrength(a, b string) (Strength, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	na, err := g.node("link_strength", a)
	if err != nil {
		return Strength{}, err
	}
	nb, err := g.node("link_strength", b)
	if err != nil {
		return Strength{}, err
	}
	s := Strength{Source: a, Target: b}
	if e, ok := na.out[b]; ok {
		s.Direct = e.Count
	}
	if e, ok := nb.out[a]; ok {
		s.Reverse = e.Count
	}
	s.Shared = sharedSources(na, nb)
	raw := (float64(s.Direct) + 0.7*float64(s.Reverse) + 0.3*float64(s.Shared)) / 2
	s.Strength = math.Min(raw, 1)
	s.Interpretation = interpretStrength(s.Strength)
	return s, nil
}

// SuggestLinks returns files p does not yet link to, ranked by how many
// backlink sources they share with p.
func (g *Graph) SuggestLinks(p string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	origin, err := g.node("suggest_links", p)
	if err != nil {
		return nil, err
	}
	var out []Suggestion
	for q, n := range g.nodes {
		if q == p {
			continue
		}
		if _, linked := origin.out[q]; linked {
			continue
		}
		shared := sharedSources(origin, n)
		if shared == 0 {
			continue
		}
		s := Suggestion{Path: q, Shared: shared, Strength: math.Min(0.3*float64(shared), 1)}
		s.Reasons = []string{fmt.Sprintf("%d shared backlinks", shared)}
		if s.Strength > 0.7 {
			s.Reasons = append(s.Reasons, "Frequently co-referenced")
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sharedSources(a, b *node) int {
	n := 0
	for src := range a.in {
		if src == b.path {
			continue
		}
		if _, ok := b.in[src]; ok {
			n++
		}
	}
	return n
}

func interpretStrength(s float64) string {
	switch {
	case s > 0.8:
		return "Very strong - extensively cross-referenced"
	case s > 0.6:
		return "Strong - frequently connected"
	case s > 0.4:
		return "Moderate - some connection"
	case s > 0.2:
		return "Weak - occasional reference"
	default:
		return "Very weak - minimal connection"
	}
}
