// Package storage implements the atomic, path-secured vault file store.
package storage

import (
	"context"

	"github.com/starford/vaultkeep/internal/models"
)

// Provider is the interface for vault file operations. All paths are relative
// to the vault root and are validated before any filesystem access.
type Provider interface {
	// List returns metadata for every eligible file in the vault.
	List(ctx context.Context) ([]models.FileInfo, error)
	// Read returns the content of path, served from cache while fresh.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write atomically replaces the content at path.
	Write(ctx context.Context, path string, content []byte) error
	// Delete removes the file at path.
	Delete(ctx context.Context, path string) error
	// Move renames from to to; to must not exist.
	Move(ctx context.Context, from, to string) error
	// Copy duplicates from at to; to must not exist.
	Copy(ctx context.Context, from, to string) error
	// Stat returns metadata for path.
	Stat(path string) (models.FileInfo, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Normalize validates path and returns its canonical vault-relative form.
	Normalize(path string) (string, error)
	// Eligible reports whether rel has a tracked extension and is not excluded.
	Eligible(rel string) bool
	// Invalidate drops any cached content for path.
	Invalidate(path string)
	// Root returns the canonical vault root.
	Root() string
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
