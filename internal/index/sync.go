package index

import (
	"context"
	"log/slog"

	"github.com/starford/vaultkeep/internal/models"
)

// SyncStats counts the changes a Sync made.
type SyncStats struct {
	Indexed   int
	Removed   int
	Unchanged int
}

// Sync brings the index up to date with records:
//   - new/changed files are upserted
//   - indexed files missing from records are deleted
func Sync(ctx context.Context, idx FileIndex, records []*models.FileRecord, logger *slog.Logger) (SyncStats, error) {
	var st SyncStats
	hashes, err := idx.Hashes(ctx)
	if err != nil {
		return st, err
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seen[rec.Path] = struct{}{}
		if hashes[rec.Path] == rec.Hash {
			st.Unchanged++
			continue
		}
		if err := idx.Upsert(ctx, rec); err != nil {
			logger.Warn("sync: index failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
			continue
		}
		st.Indexed++
		logger.Debug("sync: indexed", slog.String("path", rec.Path))
	}

	// Remove stale entries.
	for p := range hashes {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := idx.Delete(ctx, p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}
	return st, nil
}
