//go:build sqlite_fts5

package index

import (
	"context"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files_fts`).Scan(&count); err != nil {
		t.Fatalf("files_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Upsert(ctx, record("fts.md", "FTS Note", "f1", "The vault provides powerful full-text search capabilities.", "search")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := db.Search(ctx, "powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "fts.md" {
		t.Errorf("path = %q", results[0].Path)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.Upsert(ctx, record("gone.md", "", "g", "vanishing content"))
	_ = db.Delete(ctx, "gone.md")

	results, _ := db.Search(ctx, "vanishing", 10)
	for _, r := range results {
		if r.Path == "gone.md" {
			t.Error("deleted file still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.Upsert(ctx, record("evo.md", "Old", "1", "original text"))
	_ = db.Upsert(ctx, record("evo.md", "New", "2", "replacement text"))

	results, _ := db.Search(ctx, "original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search(ctx, "replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
