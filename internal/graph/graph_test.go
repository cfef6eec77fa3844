package graph

import (
	"errors"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/metrics"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/parser"
)

func record(t *testing.T, p, content string) *models.FileRecord {
	t.Helper()
	r, err := parser.Parse(p, []byte(content))
	require.NoError(t, err)
	return r
}

func build(t *testing.T, files map[string]string, opts ...Option) *Graph {
	t.Helper()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	recs := make([]*models.FileRecord, 0, len(files))
	for _, p := range paths {
		recs = append(recs, record(t, p, files[p]))
	}
	g := New(opts...)
	g.Build(recs)
	return g
}

func sources(edges []Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Source)
	}
	return out
}

func targets(edges []Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Target)
	}
	return out
}

func TestCycleDeadEndHubExample(t *testing.T) {
	g := build(t, map[string]string{
		"A.md": "[[B]]",
		"B.md": "[[A]] and [[C]]",
		"C.md": "",
	})

	assert.Equal(t, [][]string{{"A.md", "B.md"}}, g.DetectCycles())
	assert.Equal(t, []string{"C.md"}, g.DeadEnds())

	hubs := g.HubNotes(1)
	require.Len(t, hubs, 1)
	assert.Equal(t, "B.md", hubs[0].Path)
	assert.Equal(t, 3, hubs[0].Degree)

	back, err := g.Backlinks("C.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"B.md"}, sources(back))
	assert.Empty(t, g.Orphans())
}

func TestBacklinkSymmetry(t *testing.T) {
	g := build(t, map[string]string{
		"a.md":        "[[b]] [[c]] [[notes/d]]",
		"b.md":        "[[a]] [x](notes/d.md)",
		"c.md":        "[[c]] [[missing]]",
		"notes/d.md":  "[up](../a.md) [[e]]",
		"notes/e.md":  "",
		"lonely.md":   "nothing here",
		"notes/f.txt": "[[a]]",
	})

	for _, p := range g.Paths() {
		fwd, err := g.ForwardLinks(p)
		require.NoError(t, err)
		for _, e := range fwd {
			back, err := g.Backlinks(e.Target)
			require.NoError(t, err)
			assert.Contains(t, sources(back), p, "%s -> %s missing from backlinks", p, e.Target)
		}
		back, err := g.Backlinks(p)
		require.NoError(t, err)
		for _, e := range back {
			fwd, err := g.ForwardLinks(e.Source)
			require.NoError(t, err)
			assert.Contains(t, targets(fwd), p, "%s <- %s missing from forward links", p, e.Source)
		}
	}
}

func TestResolution(t *testing.T) {
	g := build(t, map[string]string{
		"notes/Project Alpha.md": "---\naliases: [alpha]\n---\n# Goals\n",
		"index.md": "[[Project Alpha]] [[alpha]] [[notes/Project Alpha#Goals]] " +
			"[md](notes/Project%20Alpha.md) [[#local]] ![[img.png]] [[Project]] " +
			"[web](https://example.com)",
		"notes/sub.md": "[up](../index.md)",
	})

	fwd, err := g.ForwardLinks("index.md")
	require.NoError(t, err)
	require.Len(t, fwd, 1)
	assert.Equal(t, "notes/Project Alpha.md", fwd[0].Target)
	assert.Equal(t, 4, fwd[0].Count)

	up, err := g.ForwardLinks("notes/sub.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"index.md"}, targets(up))

	broken := g.BrokenLinks()
	require.Len(t, broken, 1)
	assert.Equal(t, "index.md", broken[0].Source)
	assert.Equal(t, "Project", broken[0].Target)
	assert.Equal(t, []string{"notes/Project Alpha.md"}, broken[0].Suggestions)

	p, ok := g.Resolve("x.md", "ALPHA")
	assert.True(t, ok)
	assert.Equal(t, "notes/Project Alpha.md", p)
}

func TestStemCollisionPrefersShortestPath(t *testing.T) {
	g := build(t, map[string]string{
		"deep/nested/Note.md": "",
		"other/Note.md":       "",
		"src.md":              "[[Note]]",
	})
	fwd, err := g.ForwardLinks("src.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"other/Note.md"}, targets(fwd))
}

func TestIncrementalUpsertResolvesBrokenLink(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[B]]"})
	require.Len(t, g.BrokenLinks(), 1)

	g.Upsert(record(t, "B.md", "back to [[A]]"))
	assert.Empty(t, g.BrokenLinks())
	back, err := g.Backlinks("B.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md"}, sources(back))
	assert.Equal(t, [][]string{{"A.md", "B.md"}}, g.DetectCycles())

	// Replacing B drops its old edges.
	g.Upsert(record(t, "B.md", "no links"))
	assert.Empty(t, g.DetectCycles())
	assert.Equal(t, []string{"B.md"}, g.DeadEnds())
}

func TestIncrementalUpsertIsIdempotent(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[B]]", "B.md": "[[A]]"})
	before := g.Stats()
	g.Upsert(record(t, "A.md", "[[B]]"))
	g.Upsert(record(t, "A.md", "[[B]]"))
	assert.Equal(t, before, g.Stats())
}

func TestAliasChangeRelinksSources(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[nick]]", "B.md": ""})
	require.Len(t, g.BrokenLinks(), 1)

	g.Upsert(record(t, "B.md", "---\naliases: [nick]\n---\n"))
	assert.Empty(t, g.BrokenLinks())

	g.Upsert(record(t, "B.md", "alias gone"))
	assert.Len(t, g.BrokenLinks(), 1)
}

func TestRemoveMakesLinksBroken(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[B]]", "B.md": ""})
	assert.True(t, g.Remove("B.md"))
	assert.False(t, g.Remove("B.md"))
	assert.False(t, g.Has("B.md"))

	broken := g.BrokenLinks()
	require.Len(t, broken, 1)
	assert.Equal(t, "B", broken[0].Target)
	assert.Equal(t, []string{"A.md"}, g.Orphans())
}

func TestRename(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[B]]", "B.md": "[[A]]"})

	require.True(t, g.Rename("B.md", "Archive/B.md"))
	back, err := g.Backlinks("Archive/B.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md"}, sources(back))
	fwd, err := g.ForwardLinks("Archive/B.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md"}, targets(fwd))

	require.True(t, g.Rename("Archive/B.md", "Archive/C.md"))
	assert.Len(t, g.BrokenLinks(), 1)
	assert.False(t, g.Rename("nope.md", "x.md"))
}

func TestReferences(t *testing.T) {
	g := build(t, map[string]string{
		"A.md":       "[[B]] [[B|again]] [[b#Part]] [x](notes/../B.md)",
		"B.md":       "",
		"notes/C.md": "[y](../B.md) [[Other]]",
	})
	refs, err := g.References("B.md")
	require.NoError(t, err)
	assert.Equal(t, []Reference{
		{Source: "A.md", Targets: []string{"B", "b", "notes/../B.md"}},
		{Source: "notes/C.md", Targets: []string{"../B.md"}},
	}, refs)
}

func TestRelatedNotes(t *testing.T) {
	g := build(t, map[string]string{
		"A.md": "[[B]]",
		"B.md": "[[C]]",
		"C.md": "[[D]]",
		"D.md": "",
		"E.md": "[[A]]",
	})
	rel, err := g.RelatedNotes("A.md", 2)
	require.NoError(t, err)
	assert.Equal(t, []Related{{"B.md", 1}, {"E.md", 1}, {"C.md", 2}}, rel)

	all, err := g.RelatedNotes("A.md", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = g.RelatedNotes("missing.md", 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConnectedComponents(t *testing.T) {
	g := build(t, map[string]string{
		"A.md": "[[B]]",
		"B.md": "",
		"C.md": "",
		"D.md": "[[E]]",
		"E.md": "",
	})
	assert.Equal(t, [][]string{{"A.md", "B.md"}, {"D.md", "E.md"}, {"C.md"}}, g.ConnectedComponents())
}

func TestHealthScore(t *testing.T) {
	healthy := build(t, map[string]string{"A.md": "[[B]]", "B.md": ""})
	base := healthy.Health()
	assert.Equal(t, 100.0, base.Score)
	assert.Equal(t, BandExcellent, base.Band)
	assert.True(t, base.Healthy)

	cases := map[string]map[string]string{
		"orphan": {"A.md": "[[B]]", "B.md": "", "C.md": ""},
		"broken": {"A.md": "[[B]] [[Nope]]", "B.md": ""},
		"cycle":  {"A.md": "[[B]]", "B.md": "[[A]]"},
		"split":  {"A.md": "[[B]]", "B.md": "", "C.md": "[[D]]", "D.md": ""},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			s := build(t, files).HealthScore()
			assert.Less(t, s, base.Score)
			assert.GreaterOrEqual(t, s, 0.0)
		})
	}

	assert.Zero(t, New().HealthScore())
}

func TestHealthReport(t *testing.T) {
	g := build(t, map[string]string{
		"A.md": "[[B]] [[Gone]]",
		"B.md": "[[A]]",
		"C.md": "",
	})
	r := g.Health()
	assert.Equal(t, 3, r.TotalNotes)
	assert.Equal(t, 3, r.TotalLinks)
	assert.Len(t, r.BrokenLinks, 1)
	assert.Equal(t, []string{"C.md"}, r.Orphans)
	assert.Len(t, r.Cycles, 1)
	assert.Equal(t, 2, r.Components)
	assert.Equal(t, 1, r.IsolatedClusters)
	assert.Equal(t, BandPoor, r.Band)
	assert.False(t, r.Healthy)
}

func TestCentralityRankingStar(t *testing.T) {
	g := build(t, map[string]string{
		"hub.md": "[[l1]] [[l2]] [[l3]] [[l4]]",
		"l1.md":  "[[hub]]",
		"l2.md":  "[[hub]]",
		"l3.md":  "[[hub]]",
		"l4.md":  "[[hub]]",
		"z.md":   "",
	})
	ranks := g.CentralityRanking()
	require.Len(t, ranks, 6)

	top := ranks[0]
	assert.Equal(t, "hub.md", top.Path)
	assert.Equal(t, 1, top.Rank)
	assert.InDelta(t, 1.0, top.Eigenvector, 1e-6)
	assert.NotEqual(t, "Peripheral", top.Interpretation)
	for _, c := range ranks[1:5] {
		assert.Zero(t, c.Betweenness)
		assert.Less(t, c.Score, top.Score)
	}

	last := ranks[5]
	assert.Equal(t, "z.md", last.Path)
	assert.Zero(t, last.Score)
	assert.Equal(t, "Peripheral", last.Interpretation)
}

func TestLinkStrengthAndSuggestions(t *testing.T) {
	g := build(t, map[string]string{
		"A.md": "[[B]]",
		"B.md": "",
		"C.md": "",
		"X.md": "[[A]] [[B]]",
		"Y.md": "[[A]] [[B]] [[C]]",
	})

	s, err := g.LinkStrength("A.md", "B.md")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Direct)
	assert.Zero(t, s.Reverse)
	assert.Equal(t, 2, s.Shared)
	assert.InDelta(t, 0.8, s.Strength, 1e-9)

	sugg, err := g.SuggestLinks("A.md", 5)
	require.NoError(t, err)
	require.Len(t, sugg, 1)
	assert.Equal(t, "C.md", sugg[0].Path)
	assert.Equal(t, []string{"1 shared backlinks"}, sugg[0].Reasons)

	_, err = g.LinkStrength("A.md", "nope.md")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStats(t *testing.T) {
	g := build(t, map[string]string{"A.md": "[[B]] [[B]] [[x]]", "B.md": "", "C.md": ""})
	s := g.Stats()
	assert.Equal(t, Stats{
		Nodes:       3,
		Edges:       1,
		Links:       3,
		BrokenLinks: 1,
		Orphans:     1,
		DeadEnds:    1,
		Components:  2,
		Density:     1.0 / 6,
		AvgDegree:   2.0 / 3,
	}, s)
}

func TestMetricsPublished(t *testing.T) {
	m := metrics.New(nil)
	g := build(t, map[string]string{"A.md": "[[B]] [[gone]]", "B.md": ""}, WithMetrics(m))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphNodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphEdges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphBrokenLinks))

	g.Remove("B.md")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphNodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphBrokenLinks))
}
