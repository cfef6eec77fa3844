package index

import (
	"context"

	"github.com/starford/vaultkeep/internal/models"
)

// FileIndex is the search index the engine keeps in step with the vault.
type FileIndex interface {
	Upsert(ctx context.Context, rec *models.FileRecord) error
	Delete(ctx context.Context, path string) error
	Hashes(ctx context.Context) (map[string]string, error)
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	TaggedWith(ctx context.Context, tag string) ([]string, error)
	Close() error
}

// Verify *DB satisfies FileIndex at compile time.
var _ FileIndex = (*DB)(nil)
