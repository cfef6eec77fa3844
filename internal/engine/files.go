package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/batch"
	"github.com/starford/vaultkeep/internal/checksum"
	"github.com/starford/vaultkeep/internal/edit"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/parser"
)

// File is a file's content with its parsed metadata.
type File struct {
	*models.FileRecord
	Content string `json:"content"`
}

// Read returns the content of p, served from the cache while fresh.
func (e *Engine) Read(ctx context.Context, p string) ([]byte, error) {
	return e.store.Read(ctx, p)
}

// ReadFile returns the content of p together with its parsed metadata.
func (e *Engine) ReadFile(ctx context.Context, p string) (*File, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	data, err := e.store.Read(ctx, rel)
	if err != nil {
		return nil, err
	}
	rec, err := parser.Parse(rel, data)
	if err != nil {
		return nil, err
	}
	if known, err := e.Record(rel); err == nil {
		rec.CreatedAt, rec.ModifiedAt = known.CreatedAt, known.ModifiedAt
	}
	return &File{FileRecord: rec, Content: string(data)}, nil
}

// Write atomically replaces the content of p, creating it if needed, and
// updates the graph before returning.
func (e *Engine) Write(ctx context.Context, p string, content []byte) (*models.FileRecord, error) {
	rel, err := e.prepareWrite(p, content)
	if err != nil {
		return nil, err
	}
	if err := e.store.Write(ctx, rel, content); err != nil {
		return nil, err
	}
	return e.settle(ctx, rel)
}

// WriteIfMatch writes like Write but only when the current content hashes
// to expectedHash. It returns a ConcurrencyError otherwise.
func (e *Engine) WriteIfMatch(ctx context.Context, p string, content []byte, expectedHash string) (*models.FileRecord, error) {
	rel, err := e.prepareWrite(p, content)
	if err != nil {
		return nil, err
	}
	current, err := e.store.Read(ctx, rel)
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(current, expectedHash) {
		return nil, apperr.Errorf(apperr.KindConcurrency, "write", rel, "content hash is %s, expected %s", checksum.Sum(current), expectedHash)
	}
	if err := e.store.Write(ctx, rel, content); err != nil {
		return nil, err
	}
	return e.settle(ctx, rel)
}

// Create writes a new file and fails with a ConflictError if p exists.
func (e *Engine) Create(ctx context.Context, p string, content []byte, frontmatter map[string]any) (*models.FileRecord, error) {
	rel, err := e.prepareWrite(p, content)
	if err != nil {
		return nil, err
	}
	if _, err := e.Batch(ctx, []batch.Operation{batch.CreateFile(rel, string(content), frontmatter)}); err != nil {
		return nil, err
	}
	if rec, err := e.Record(rel); err == nil {
		return rec, nil
	}
	return e.untracked(rel)
}

// Delete removes p. With updateRefs every link to p elsewhere is replaced by
// its display text in the same transaction.
func (e *Engine) Delete(ctx context.Context, p string, updateRefs bool) (*batch.Result, error) {
	return e.Batch(ctx, []batch.Operation{batch.DeleteFile(p, updateRefs)})
}

// Move renames from to to. With updateRefs every link to from is retargeted
// in the same transaction.
func (e *Engine) Move(ctx context.Context, from, to string, updateRefs bool) (*batch.Result, error) {
	return e.Batch(ctx, []batch.Operation{batch.MoveFile(from, to, updateRefs)})
}

// Copy duplicates from at to. The destination must not exist.
func (e *Engine) Copy(ctx context.Context, from, to string) (*models.FileRecord, error) {
	dst, err := e.store.Normalize(to)
	if err != nil {
		return nil, err
	}
	if err := e.store.Copy(ctx, from, dst); err != nil {
		return nil, err
	}
	return e.settle(ctx, dst)
}

// Edit applies SEARCH/REPLACE blocks to p. A non-empty expectedHash must
// match the current content. A dry run reports the result with a diff
// preview and writes nothing.
func (e *Engine) Edit(ctx context.Context, p string, blocks []edit.Block, expectedHash string, dryRun bool) (*edit.Result, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	current, err := e.store.Read(ctx, rel)
	if err != nil {
		return nil, err
	}
	res, updated, err := edit.Apply(rel, current, blocks, expectedHash, dryRun)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return res, nil
	}
	if _, err := e.prepareWrite(rel, updated); err != nil {
		return nil, err
	}
	if err := e.store.Write(ctx, rel, updated); err != nil {
		return nil, err
	}
	if _, err := e.settle(ctx, rel); err != nil {
		return nil, err
	}
	return res, nil
}

// Batch executes ops as one transaction. Paths are normalized during
// validation, so a bad path is reported as a conflict alongside the others.
// Moves and deletes that update references use the current graph. Whatever
// the outcome, the touched paths are re-read so the graph matches the disk.
func (e *Engine) Batch(ctx context.Context, ops []batch.Operation) (*batch.Result, error) {
	tx := batch.New(e.store,
		batch.WithReferences(e.graph),
		batch.WithLogger(e.log),
		batch.WithMetrics(e.metrics),
	)
	for _, op := range ops {
		if err := tx.Add(op); err != nil {
			return nil, err
		}
	}
	res, err := tx.Execute(ctx)
	if res == nil || res.State == batch.StateRejected {
		return res, err
	}

	sctx := context.WithoutCancel(ctx)
	var (
		changes []Change
		seen    = map[string]bool{}
	)
	for _, op := range tx.Operations() {
		if op.Kind == batch.KindMove && res.Success {
			e.sync(sctx, op.Path)
			if _, c := e.sync(sctx, op.To); c != "" {
				changes = append(changes, Change{Kind: ChangeMoved, Path: op.To, From: op.Path})
			}
			seen[op.Path], seen[op.To] = true, true
			continue
		}
		for _, p := range []string{op.Path, op.To} {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			if _, c := e.sync(sctx, p); c != "" {
				changes = append(changes, Change{Kind: c, Path: p})
			}
		}
	}
	e.notify(changes)
	return res, err
}

// prepareWrite normalizes p and rejects content that would not parse.
func (e *Engine) prepareWrite(p string, content []byte) (string, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return "", err
	}
	if e.store.Eligible(rel) {
		if _, err := parser.Parse(rel, content); err != nil {
			return "", err
		}
	}
	return rel, nil
}

// settle syncs rel after a single-file mutation, notifies subscribers and
// returns the new record.
func (e *Engine) settle(ctx context.Context, rel string) (*models.FileRecord, error) {
	rec, c := e.sync(context.WithoutCancel(ctx), rel)
	if c != "" {
		e.notify([]Change{{Kind: c, Path: rel}})
	}
	if rec == nil {
		return e.untracked(rel)
	}
	return rec, nil
}

// untracked describes a file the graph does not hold, such as an attachment.
func (e *Engine) untracked(rel string) (*models.FileRecord, error) {
	info, err := e.store.Stat(rel)
	if err != nil {
		return nil, err
	}
	return &models.FileRecord{Path: rel, Size: info.Size, CreatedAt: info.ModifiedAt, ModifiedAt: info.ModifiedAt}, nil
}

// sync re-reads rel from disk and brings the records, graph and index in
// line with it. It returns a copy of the current record, nil when rel is not
// tracked, and the kind of change made, empty when nothing changed.
func (e *Engine) sync(ctx context.Context, rel string) (*models.FileRecord, ChangeKind) {
	if n, err := e.store.Normalize(rel); err == nil {
		rel = n
	}
	unlock := e.syncing.lock(rel)
	defer unlock()

	info, err := e.store.Stat(rel)
	if err != nil || !e.store.Eligible(rel) {
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			e.log.Warn("engine: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		if e.forget(ctx, rel) {
			return nil, ChangeDeleted
		}
		return nil, ""
	}

	rec, err := e.load(ctx, info)
	if err != nil {
		e.log.Warn("engine: dropping unreadable file",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		if e.forget(ctx, rel) {
			return nil, ChangeDeleted
		}
		return nil, ""
	}

	e.mu.Lock()
	prev, had := e.records[rel]
	if had && prev.Hash == rec.Hash {
		prev.ModifiedAt = rec.ModifiedAt
		cp := *prev
		e.mu.Unlock()
		return &cp, ""
	}
	if had {
		rec.CreatedAt = prev.CreatedAt
	}
	e.records[rel] = rec
	e.graph.Upsert(rec)
	cp := *rec
	e.mu.Unlock()

	if e.index != nil {
		if err := e.index.Upsert(ctx, rec); err != nil {
			e.log.Warn("engine: index upsert failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
	if had {
		return &cp, ChangeUpdated
	}
	return &cp, ChangeCreated
}

// forget drops rel from the records, graph and index. It reports whether rel
// was tracked.
func (e *Engine) forget(ctx context.Context, rel string) bool {
	e.mu.Lock()
	_, had := e.records[rel]
	delete(e.records, rel)
	e.graph.Remove(rel)
	e.mu.Unlock()

	if had && e.index != nil {
		if err := e.index.Delete(ctx, rel); err != nil {
			e.log.Warn("engine: index delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
	return had
}
