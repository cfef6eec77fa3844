package api

import (
	"github.com/starford/vaultkeep/internal/batch"
	"github.com/starford/vaultkeep/internal/engine"
	"github.com/starford/vaultkeep/internal/index"
	"github.com/starford/vaultkeep/internal/models"
)

// CreateFileRequest is the request body for creating a file.
type CreateFileRequest struct {
	Path        string         `json:"path" example:"notes/hello.md" validate:"required"`
	Content     string         `json:"content" example:"# Hello\nWorld"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// PutFileRequest is the request body for replacing a file.
type PutFileRequest struct {
	Content string `json:"content" example:"# Updated\nContent"`
}

// EditFileRequest applies SEARCH/REPLACE blocks to a file.
type EditFileRequest struct {
	Diff         string `json:"diff" validate:"required"`
	ExpectedHash string `json:"expected_hash,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
}

// MoveRequest is the request body for moving or copying a file.
type MoveRequest struct {
	From             string `json:"from" example:"inbox/idea.md" validate:"required"`
	To               string `json:"to" example:"projects/idea.md" validate:"required"`
	UpdateReferences bool   `json:"update_references,omitempty"`
}

// BatchRequest wraps the operations of one transaction.
type BatchRequest struct {
	Operations []batch.Operation `json:"operations" validate:"required"`
}

// FileDetail is the full file response type (aliased from the engine).
type FileDetail = engine.File

// FileListResponse wraps file listings.
type FileListResponse struct {
	Files []models.FileInfo `json:"files" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.Hit `json:"results" validate:"required"`
}

// CreateFromTemplateRequest is the request body for creating a note from a template.
type CreateFromTemplateRequest struct {
	Path   string            `json:"path" example:"tasks/ship.md" validate:"required"`
	Fields map[string]string `json:"fields"`
}
