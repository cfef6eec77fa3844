package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/vaultkeep/internal/models"
)

// Hit is one search result.
type Hit struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

const defaultLimit = 20

func scanHits(rows *sql.Rows) ([]Hit, error) {
	defer rows.Close()
	out := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Path, &h.Title, &h.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a file, its FTS entry and its tags within a
// transaction.
func (db *DB) Upsert(ctx context.Context, rec *models.FileRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// The files table keeps the body for the LIKE fallback search.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, title, hash, size, body, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			hash        = excluded.hash,
			size        = excluded.size,
			body        = excluded.body,
			modified_at = excluded.modified_at
	`, rec.Path, rec.Title, rec.Hash, rec.Size, rec.Body, rec.ModifiedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, rec.Path, rec.Title, rec.Body, rec.Tags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE path = ?`, rec.Path); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	if len(rec.Tags) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO file_tags (path, tag) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare tag insert: %w", err)
		}
		defer stmt.Close()
		for _, tag := range rec.Tags {
			if _, err := stmt.ExecContext(ctx, rec.Path, tag); err != nil {
				return fmt.Errorf("index: insert tag: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Delete removes a file, its FTS entry and its tags.
func (db *DB) Delete(ctx context.Context, path string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return tx.Commit()
}

// Hashes returns the stored content hash of every indexed file.
func (db *DB) Hashes(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, hash FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// TaggedWith returns the paths carrying tag, sorted.
func (db *DB) TaggedWith(ctx context.Context, tag string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path FROM file_tags WHERE tag = ? ORDER BY path`, tag)
	if err != nil {
		return nil, fmt.Errorf("index: tagged with: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
