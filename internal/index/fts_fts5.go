//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO files_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path)
}

// Search ranks files with bm25, weighting title over tags over body. Every
// query term must match; the last may be a prefix.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	ts := terms(query)
	if len(ts) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path,
		       title,
		       snippet(files_fts, 2, '<b>', '</b>', '...', 16)
		FROM files_fts
		WHERE files_fts MATCH ?
		ORDER BY bm25(files_fts, 0.0, 10.0, 1.0, 5.0), path
		LIMIT ?
	`, ftsMatch(ts), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}
