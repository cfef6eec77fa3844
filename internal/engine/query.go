package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/index"
	"github.com/starford/vaultkeep/internal/validation"
)

const (
	defaultSearchLimit = 20
	snippetRadius      = 60
)

// VaultStats summarizes the vault contents and its link graph.
type VaultStats struct {
	Files     int         `json:"files"`
	TotalSize int64       `json:"total_size"`
	Tags      int         `json:"tags"`
	Graph     graph.Stats `json:"graph"`
}

// Backlinks returns the links pointing at p.
func (e *Engine) Backlinks(p string) ([]graph.Edge, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	return e.graph.Backlinks(rel)
}

// ForwardLinks returns the resolved links leaving p.
func (e *Engine) ForwardLinks(p string) ([]graph.Edge, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	return e.graph.ForwardLinks(rel)
}

// RelatedNotes returns files within maxHops links of p in either direction.
func (e *Engine) RelatedNotes(p string, maxHops int) ([]graph.Related, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	return e.graph.RelatedNotes(rel, maxHops)
}

// References returns every link occurrence targeting p.
func (e *Engine) References(p string) ([]graph.Reference, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	return e.graph.References(rel)
}

// DetectCycles returns every simple directed cycle in the graph.
func (e *Engine) DetectCycles() [][]string { return e.graph.DetectCycles() }

// ConnectedComponents groups files linked in either direction.
func (e *Engine) ConnectedComponents() [][]string { return e.graph.ConnectedComponents() }

// Orphans lists files with no links in or out.
func (e *Engine) Orphans() []string { return e.graph.Orphans() }

// DeadEnds lists files that are linked to but link nowhere.
func (e *Engine) DeadEnds() []string { return e.graph.DeadEnds() }

// HubNotes returns the n files with the highest total degree.
func (e *Engine) HubNotes(n int) []graph.Hub { return e.graph.HubNotes(n) }

// BrokenLinks lists links whose target resolves to no file.
func (e *Engine) BrokenLinks() []graph.BrokenLink { return e.graph.BrokenLinks() }

// Health returns the full link health report.
func (e *Engine) Health() graph.HealthReport { return e.graph.Health() }

// HealthScore returns the 0 to 100 health score.
func (e *Engine) HealthScore() float64 { return e.graph.HealthScore() }

// CentralityRanking ranks every file by combined centrality.
func (e *Engine) CentralityRanking() []graph.Centrality { return e.graph.CentralityRanking() }

// LinkStrength scores the connection between a and b.
func (e *Engine) LinkStrength(a, b string) (graph.Strength, error) {
	ra, err := e.store.Normalize(a)
	if err != nil {
		return graph.Strength{}, err
	}
	rb, err := e.store.Normalize(b)
	if err != nil {
		return graph.Strength{}, err
	}
	return e.graph.LinkStrength(ra, rb)
}

// SuggestLinks proposes up to limit files p could link to.
func (e *Engine) SuggestLinks(p string, limit int) ([]graph.Suggestion, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	return e.graph.SuggestLinks(rel, limit)
}

// Stats returns file, size and tag counts together with the graph stats.
func (e *Engine) Stats() VaultStats {
	e.mu.RLock()
	s := VaultStats{Files: len(e.records)}
	tags := map[string]struct{}{}
	for _, r := range e.records {
		s.TotalSize += r.Size
		for _, t := range r.Tags {
			tags[strings.ToLower(t)] = struct{}{}
		}
	}
	e.mu.RUnlock()
	s.Tags = len(tags)
	s.Graph = e.graph.Stats()
	return s
}

// Validate runs the configured validators over p.
func (e *Engine) Validate(ctx context.Context, p string) (*validation.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := e.Record(p)
	if err != nil {
		return nil, err
	}
	return e.cfg.Validators.Validate(rec), nil
}

// Search finds files matching q. With an index configured the index serves
// the query, otherwise titles and bodies are scanned in memory.
func (e *Engine) Search(ctx context.Context, q string, limit int) ([]index.Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "search", "", "query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if e.index != nil {
		return e.index.Search(ctx, q, limit)
	}

	needle := strings.ToLower(q)
	e.mu.RLock()
	defer e.mu.RUnlock()
	hits := []index.Hit{}
	for _, r := range e.records {
		title := strings.Contains(strings.ToLower(r.Title), needle)
		at := strings.Index(strings.ToLower(r.Body), needle)
		if !title && at < 0 {
			continue
		}
		hits = append(hits, index.Hit{Path: r.Path, Title: r.Title, Snippet: snippet(r.Body, at, len(needle))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Path < hits[j].Path })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// TaggedWith returns the files carrying tag, sorted by path.
func (e *Engine) TaggedWith(ctx context.Context, tag string) ([]string, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "tagged", "", "tag is required")
	}
	if e.index != nil {
		return e.index.TaggedWith(ctx, tag)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for _, r := range e.records {
		for _, t := range r.Tags {
			if strings.EqualFold(t, tag) {
				out = append(out, r.Path)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// snippet cuts body around the match at offset at. Offsets are byte based so
// the cut is widened to rune boundaries.
func snippet(body string, at, n int) string {
	if at < 0 || at > len(body) {
		at, n = 0, 0
	}
	start := max(at-snippetRadius, 0)
	end := min(at+n+snippetRadius, len(body))
	for start > 0 && !isRuneStart(body[start]) {
		start--
	}
	for end < len(body) && !isRuneStart(body[end]) {
		end++
	}
	s := strings.Join(strings.Fields(body[start:end]), " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(body) {
		s += "..."
	}
	return s
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
