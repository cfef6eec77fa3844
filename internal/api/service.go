package api

import (
	"context"

	"github.com/starford/vaultkeep/internal/batch"
	"github.com/starford/vaultkeep/internal/edit"
	"github.com/starford/vaultkeep/internal/engine"
	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/index"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/templates"
	"github.com/starford/vaultkeep/internal/validation"
)

// Vault is the engine surface the API serves.
type Vault interface {
	Ready() bool
	List() []models.FileInfo
	ReadFile(ctx context.Context, p string) (*engine.File, error)
	Write(ctx context.Context, p string, content []byte) (*models.FileRecord, error)
	WriteIfMatch(ctx context.Context, p string, content []byte, expectedHash string) (*models.FileRecord, error)
	Create(ctx context.Context, p string, content []byte, frontmatter map[string]any) (*models.FileRecord, error)
	Delete(ctx context.Context, p string, updateRefs bool) (*batch.Result, error)
	Move(ctx context.Context, from, to string, updateRefs bool) (*batch.Result, error)
	Copy(ctx context.Context, from, to string) (*models.FileRecord, error)
	Edit(ctx context.Context, p string, blocks []edit.Block, expectedHash string, dryRun bool) (*edit.Result, error)
	Batch(ctx context.Context, ops []batch.Operation) (*batch.Result, error)
	Search(ctx context.Context, q string, limit int) ([]index.Hit, error)
	TaggedWith(ctx context.Context, tag string) ([]string, error)
	Validate(ctx context.Context, p string) (*validation.Report, error)
	QueryMetadata(query string) ([]engine.MetadataMatch, error)
	MetadataValue(p, key string) (any, error)
	Templates() []templates.Template
	CreateFromTemplate(ctx context.Context, id, p string, values map[string]string) (*models.FileRecord, error)
	NotesFromTemplate(id string) []string

	Backlinks(p string) ([]graph.Edge, error)
	ForwardLinks(p string) ([]graph.Edge, error)
	RelatedNotes(p string, maxHops int) ([]graph.Related, error)
	DetectCycles() [][]string
	ConnectedComponents() [][]string
	Orphans() []string
	DeadEnds() []string
	HubNotes(n int) []graph.Hub
	BrokenLinks() []graph.BrokenLink
	Health() graph.HealthReport
	CentralityRanking() []graph.Centrality
	LinkStrength(a, b string) (graph.Strength, error)
	SuggestLinks(p string, limit int) ([]graph.Suggestion, error)
	Stats() engine.VaultStats
}

// Verify *engine.Engine satisfies Vault at compile time.
var _ Vault = (*engine.Engine)(nil)
