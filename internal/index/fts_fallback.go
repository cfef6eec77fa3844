//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on files.body.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Body is already stored in the files table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// Search matches files whose title, body or a tag contains every query
// term, case-insensitively for ASCII.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	ts := terms(query)
	if len(ts) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	var (
		where []string
		args  []any
	)
	for _, t := range ts {
		where = append(where, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'
			OR path IN (SELECT path FROM file_tags WHERE tag LIKE ? ESCAPE '\'))`)
		p := likePattern(t)
		args = append(args, p, p, p)
	}
	args = append(args, limit)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, title, substr(body, 1, 200)
		FROM files
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY path
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}
