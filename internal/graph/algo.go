package graph

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/network"
	shortest "gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const (
	eigenIterations = 100
	eigenTolerance  = 1e-9
)

// Centrality holds the centrality measures of one file, each scaled to [0,1].
type Centrality struct {
	Path           string  `json:"path"`
	Betweenness    float64 `json:"betweenness"`
	Closeness      float64 `json:"closeness"`
	Eigenvector    float64 `json:"eigenvector"`
	Score          float64 `json:"score"`
	Rank           int     `json:"rank"`
	Interpretation string  `json:"interpretation"`
}

// snapshot is a dense view of the graph for whole-graph algorithms. Node IDs
// are indexes into paths, which is sorted, so the smallest ID of any set is its
// lexically smallest path.
type snapshot struct {
	paths []string
	index map[string]int64
	g     *simple.DirectedGraph
}

func (g *Graph) snapshot() snapshot {
	s := snapshot{paths: g.sortedPaths(), index: map[string]int64{}, g: simple.NewDirectedGraph()}
	for i, p := range s.paths {
		s.index[p] = int64(i)
		s.g.AddNode(simple.Node(i))
	}
	for i, p := range s.paths {
		for t := range g.nodes[p].out {
			s.g.SetEdge(s.g.NewEdge(simple.Node(i), simple.Node(s.index[t])))
		}
	}
	return s
}

// DetectCycles returns every simple directed cycle. Each cycle starts at its
// lexically smallest file and lists the files in link order without repeating
// the first; A→B→A is reported as [A B]. Cycles are ordered by length, then
// lexically.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cycles()
}

func (g *Graph) cycles() [][]string {
	s := g.snapshot()
	var out [][]string
	for _, c := range topo.DirectedCyclesIn(s.g) {
		ids := make([]int64, 0, len(c))
		for _, n := range c {
			ids = append(ids, n.ID())
		}
		if len(ids) > 1 && ids[0] == ids[len(ids)-1] {
			ids = ids[:len(ids)-1]
		}
		if len(ids) == 0 {
			continue
		}
		minAt := 0
		for i, id := range ids {
			if id < ids[minAt] {
				minAt = i
			}
		}
		cycle := make([]string, len(ids))
		for i := range ids {
			cycle[i] = s.paths[ids[(minAt+i)%len(ids)]]
		}
		out = append(out, cycle)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return lessStrings(out[i], out[j])
	})
	return out
}

// ConnectedComponents partitions the files treating links as undirected.
// Each component is sorted; components are ordered largest first, then by
// their first path.
func (g *Graph) ConnectedComponents() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.components()
}

func (g *Graph) components() [][]string {
	paths := g.sortedPaths()
	uf := newUnionFind(len(paths))
	index := make(map[string]int, len(paths))
	for i, p := range paths {
		index[p] = i
	}
	for i, p := range paths {
		for t := range g.nodes[p].out {
			uf.union(i, index[t])
		}
	}
	groups := map[int][]string{}
	for i, p := range paths {
		r := uf.find(i)
		groups[r] = append(groups[r], p)
	}
	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// CentralityRanking scores every file by betweenness, closeness and
// eigenvector centrality and ranks them by the mean of the three.
func (g *Graph) CentralityRanking() []Centrality {
	g.mu.RLock()
	s := g.snapshot()
	g.mu.RUnlock()

	n := len(s.paths)
	if n == 0 {
		return nil
	}
	between := betweenness(s)
	near := closeness(s)
	eigen := eigenvector(s)

	out := make([]Centrality, n)
	for i, p := range s.paths {
		c := Centrality{Path: p, Betweenness: between[i], Closeness: near[i], Eigenvector: eigen[i]}
		c.Score = (c.Betweenness + c.Closeness + c.Eigenvector) / 3
		c.Interpretation = interpretCentrality(c)
		out[i] = c
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// betweenness is normalized by (n-1)(n-2), the number of ordered pairs that
// can route through a node.
func betweenness(s snapshot) []float64 {
	n := len(s.paths)
	out := make([]float64, n)
	if n < 3 {
		return out
	}
	norm := float64((n - 1) * (n - 2))
	for id, b := range network.Betweenness(s.g) {
		out[id] = finite(b / norm)
	}
	return out
}

// closeness uses the Wasserman-Faust form so that nodes reaching only part of
// the graph are scaled down by the share they reach.
func closeness(s snapshot) []float64 {
	n := len(s.paths)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	all := shortest.DijkstraAllPaths(s.g)
	for u := 0; u < n; u++ {
		var sum float64
		reached := 0
		for v := 0; v < n; v++ {
			if u == v {
				continue
			}
			d := all.Weight(int64(u), int64(v))
			if math.IsInf(d, 0) || math.IsNaN(d) {
				continue
			}
			sum += d
			reached++
		}
		if reached == 0 || sum == 0 {
			continue
		}
		r := float64(reached)
		out[u] = finite((r / sum) * (r / float64(n-1)))
	}
	return out
}

// eigenvector runs power iteration on the undirected adjacency matrix plus
// the identity, which converges on bipartite graphs too. Scores are scaled so
// the largest is 1.
func eigenvector(s snapshot) []float64 {
	n := len(s.paths)
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		to := s.g.From(int64(i))
		for to.Next() {
			j := int(to.Node().ID())
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
		}
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
	}
	next := make([]float64, n)
	for iter := 0; iter < eigenIterations; iter++ {
		var peak float64
		for i := range next {
			v := x[i]
			for _, j := range adj[i] {
				v += x[j]
			}
			next[i] = v
			if v > peak {
				peak = v
			}
		}
		if peak == 0 {
			return make([]float64, n)
		}
		var delta float64
		for i := range next {
			next[i] /= peak
			delta += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		if delta < eigenTolerance {
			break
		}
	}
	// Nodes without edges keep the identity contribution only; report zero.
	for i := range x {
		if len(adj[i]) == 0 {
			x[i] = 0
		}
	}
	return x
}

func interpretCentrality(c Centrality) string {
	switch {
	case c.Betweenness > 0.7:
		return "Central hub"
	case c.Eigenvector > 0.7:
		return "Authority file"
	case c.Closeness > 0.7:
		return "Highly connected"
	default:
		return "Peripheral"
	}
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func lessStrings(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
