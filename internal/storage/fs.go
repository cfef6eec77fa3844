package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/cache"
	"github.com/starford/vaultkeep/internal/metrics"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/pathresolver"
)

const (
	// DefaultMaxFileSize bounds reads and writes unless overridden.
	DefaultMaxFileSize int64 = 10 << 20

	tempPrefix = ".vaultkeep-tmp-"
	filePerm   = 0o644
)

// FS implements Provider backed by the local file system.
type FS struct {
	resolver    *pathresolver.Resolver
	cache       *cache.Cache
	locks       *lockRegistry
	exclude     *pathresolver.Matcher
	extensions  map[string]struct{}
	maxSize     int64
	lockTimeout time.Duration
	metrics     *metrics.Metrics

	// beforeRename runs after the temp file is synced and before it replaces
	// the target. Tests use it to inject faults.
	beforeRename func(tmpName string) error
}

// Option configures an FS.
type Option func(*FS)

// WithCache serves reads through c. Without it every read hits the disk.
func WithCache(c *cache.Cache) Option {
	return func(f *FS) { f.cache = c }
}

// WithMaxFileSize sets the largest file that may be read or written.
func WithMaxFileSize(n int64) Option {
	return func(f *FS) { f.maxSize = n }
}

// WithLockTimeout bounds how long a mutation waits for its path lock.
func WithLockTimeout(d time.Duration) Option {
	return func(f *FS) { f.lockTimeout = d }
}

// WithExclusions skips matching paths in List.
func WithExclusions(m *pathresolver.Matcher) Option {
	return func(f *FS) { f.exclude = m }
}

// WithExtensions restricts List to files with the given extensions.
func WithExtensions(exts []string) Option {
	return func(f *FS) {
		f.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			f.extensions[e] = struct{}{}
		}
	}
}

// WithMetrics records operation counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FS) { f.metrics = m }
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	res, err := pathresolver.New(root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	f := &FS{
		resolver: res,
		locks:    newLockRegistry(),
		maxSize:  DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = cache.New(0)
	}
	f.metrics = metrics.OrNop(f.metrics)
	return f, nil
}

// Root returns the canonical vault root.
func (f *FS) Root() string {
	return f.resolver.Root()
}

// Normalize validates p and returns its canonical vault-relative form.
func (f *FS) Normalize(p string) (string, error) {
	res, err := f.resolver.Resolve(p)
	if err != nil {
		return "", err
	}
	return res.Rel, nil
}

// Eligible reports whether rel would be included by List.
func (f *FS) Eligible(rel string) bool {
	if strings.HasPrefix(path.Base(rel), tempPrefix) {
		return false
	}
	if f.exclude.Excluded(rel) {
		return false
	}
	if len(f.extensions) == 0 {
		return true
	}
	_, ok := f.extensions[strings.ToLower(path.Ext(rel))]
	return ok
}

// List walks the vault and returns metadata for every eligible file, sorted
// by path. Excluded directories are not descended into and files over the
// size limit are skipped.
func (f *FS) List(ctx context.Context) ([]models.FileInfo, error) {
	defer f.observe("list", time.Now())
	root := f.resolver.Root()
	var out []models.FileInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := f.resolver.Rel(p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if f.exclude.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !f.Eligible(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.Size() > f.maxSize {
			return nil
		}
		out = append(out, models.FileInfo{Path: rel, Size: info.Size(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		f.count("list", err)
		return nil, apperr.E(apperr.KindIO, "list", "", err)
	}
	f.count("list", nil)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the content of a vault file.
func (f *FS) Read(_ context.Context, p string) ([]byte, error) {
	defer f.observe("read", time.Now())
	res, err := f.resolver.Resolve(p)
	if err != nil {
		f.count("read", err)
		return nil, err
	}
	data, err := f.cache.Load(res.Rel, func() ([]byte, error) {
		return f.readDisk(res)
	})
	f.count("read", err)
	return data, err
}

func (f *FS) readDisk(res pathresolver.Resolved) ([]byte, error) {
	info, err := os.Stat(res.Abs)
	if err != nil {
		return nil, classify("read", res.Rel, err)
	}
	if info.IsDir() {
		return nil, apperr.Errorf(apperr.KindInvalidPath, "read", res.Rel, "is a directory")
	}
	if info.Size() > f.maxSize {
		return nil, apperr.Errorf(apperr.KindTooLarge, "read", res.Rel, "%d bytes exceeds limit of %d", info.Size(), f.maxSize)
	}
	data, err := os.ReadFile(res.Abs)
	if err != nil {
		return nil, classify("read", res.Rel, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, apperr.Errorf(apperr.KindTooLarge, "read", res.Rel, "%d bytes exceeds limit of %d", len(data), f.maxSize)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(ctx context.Context, p string, content []byte) error {
	defer f.observe("write", time.Now())
	err := f.write(ctx, p, content)
	f.count("write", err)
	return err
}

func (f *FS) write(ctx context.Context, p string, content []byte) error {
	res, err := f.resolver.Resolve(p)
	if err != nil {
		return err
	}
	if int64(len(content)) > f.maxSize {
		return apperr.Errorf(apperr.KindTooLarge, "write", res.Rel, "%d bytes exceeds limit of %d", len(content), f.maxSize)
	}
	release, err := f.lock(ctx, res.Rel)
	if err != nil {
		return err
	}
	defer release()
	defer f.cache.Invalidate(res.Rel)

	if info, err := os.Stat(res.Abs); err == nil && info.IsDir() {
		return apperr.Errorf(apperr.KindInvalidPath, "write", res.Rel, "is a directory")
	}
	return f.writeAtomic(res, content)
}

func (f *FS) writeAtomic(res pathresolver.Resolved, content []byte) error {
	dir := filepath.Dir(res.Abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("mkdir: %w", err))
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("create temp: %w", err))
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("write temp: %w", err))
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("chmod temp: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("fsync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("close temp: %w", err))
	}
	if f.beforeRename != nil {
		if err := f.beforeRename(tmpName); err != nil {
			return apperr.E(apperr.KindIO, "write", res.Rel, err)
		}
	}
	if err := os.Rename(tmpName, res.Abs); err != nil {
		return apperr.E(apperr.KindIO, "write", res.Rel, fmt.Errorf("rename: %w", err))
	}
	success = true
	return nil
}

// Delete removes a file from the vault.
func (f *FS) Delete(ctx context.Context, p string) error {
	defer f.observe("delete", time.Now())
	err := f.delete(ctx, p)
	f.count("delete", err)
	return err
}

func (f *FS) delete(ctx context.Context, p string) error {
	res, err := f.resolver.Resolve(p)
	if err != nil {
		return err
	}
	release, err := f.lock(ctx, res.Rel)
	if err != nil {
		return err
	}
	defer release()
	defer f.cache.Invalidate(res.Rel)

	info, err := os.Stat(res.Abs)
	if err != nil {
		return classify("delete", res.Rel, err)
	}
	if info.IsDir() {
		return apperr.Errorf(apperr.KindInvalidPath, "delete", res.Rel, "is a directory")
	}
	if err := os.Remove(res.Abs); err != nil {
		return classify("delete", res.Rel, err)
	}
	return nil
}

// Move renames a file within the vault. Both paths are locked for the
// duration. When rename fails across devices the content is copied with an
// atomic write and the source removed.
func (f *FS) Move(ctx context.Context, from, to string) error {
	defer f.observe("move", time.Now())
	err := f.move(ctx, from, to)
	f.count("move", err)
	return err
}

func (f *FS) move(ctx context.Context, from, to string) error {
	src, dst, release, err := f.lockPair(ctx, "move", from, to)
	if err != nil {
		return err
	}
	defer release()
	defer f.cache.Invalidate(src.Rel)
	defer f.cache.Invalidate(dst.Rel)

	if err := f.requireFile("move", src); err != nil {
		return err
	}
	if err := f.requireAbsent("move", dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst.Abs), 0o755); err != nil {
		return apperr.E(apperr.KindIO, "move", dst.Rel, fmt.Errorf("mkdir: %w", err))
	}

	err = os.Rename(src.Abs, dst.Abs)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return apperr.E(apperr.KindIO, "move", src.Rel, err)
	}
	data, err := f.readDisk(src)
	if err != nil {
		return err
	}
	if err := f.writeAtomic(dst, data); err != nil {
		return err
	}
	if err := os.Remove(src.Abs); err != nil {
		_ = os.Remove(dst.Abs)
		return apperr.E(apperr.KindIO, "move", src.Rel, err)
	}
	return nil
}

// Copy duplicates a file within the vault.
func (f *FS) Copy(ctx context.Context, from, to string) error {
	defer f.observe("copy", time.Now())
	err := f.copy(ctx, from, to)
	f.count("copy", err)
	return err
}

func (f *FS) copy(ctx context.Context, from, to string) error {
	src, dst, release, err := f.lockPair(ctx, "copy", from, to)
	if err != nil {
		return err
	}
	defer release()
	defer f.cache.Invalidate(dst.Rel)

	if err := f.requireAbsent("copy", dst); err != nil {
		return err
	}
	data, err := f.readDisk(src)
	if err != nil {
		return err
	}
	return f.writeAtomic(dst, data)
}

// Stat returns metadata for a vault file.
func (f *FS) Stat(p string) (models.FileInfo, error) {
	res, err := f.resolver.Resolve(p)
	if err != nil {
		return models.FileInfo{}, err
	}
	info, err := os.Stat(res.Abs)
	if err != nil {
		return models.FileInfo{}, classify("stat", res.Rel, err)
	}
	if info.IsDir() {
		return models.FileInfo{}, apperr.Errorf(apperr.KindInvalidPath, "stat", res.Rel, "is a directory")
	}
	return models.FileInfo{Path: res.Rel, Size: info.Size(), ModifiedAt: info.ModTime()}, nil
}

// Exists reports whether a regular file exists at p.
func (f *FS) Exists(p string) (bool, error) {
	_, err := f.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Invalidate drops cached content for p. Changes made to the vault outside
// the store must be reported here before the next Read.
func (f *FS) Invalidate(p string) {
	if rel, err := f.Normalize(p); err == nil {
		f.cache.Invalidate(rel)
	}
}

func (f *FS) lock(ctx context.Context, rel string) (func(), error) {
	start := time.Now()
	release, err := f.locks.acquire(ctx, rel, f.lockTimeout)
	f.metrics.LockWait.Observe(time.Since(start).Seconds())
	return release, err
}

func (f *FS) lockPair(ctx context.Context, op, from, to string) (pathresolver.Resolved, pathresolver.Resolved, func(), error) {
	src, err := f.resolver.Resolve(from)
	if err != nil {
		return src, src, nil, err
	}
	dst, err := f.resolver.Resolve(to)
	if err != nil {
		return src, dst, nil, err
	}
	if src.Rel == dst.Rel {
		return src, dst, nil, apperr.Errorf(apperr.KindValidation, op, src.Rel, "source and destination are the same")
	}
	start := time.Now()
	release, err := f.locks.acquireAll(ctx, []string{src.Rel, dst.Rel}, f.lockTimeout)
	f.metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return src, dst, nil, err
	}
	return src, dst, release, nil
}

func (f *FS) requireFile(op string, res pathresolver.Resolved) error {
	info, err := os.Stat(res.Abs)
	if err != nil {
		return classify(op, res.Rel, err)
	}
	if info.IsDir() {
		return apperr.Errorf(apperr.KindInvalidPath, op, res.Rel, "is a directory")
	}
	return nil
}

func (f *FS) requireAbsent(op string, res pathresolver.Resolved) error {
	_, err := os.Lstat(res.Abs)
	switch {
	case err == nil:
		return apperr.Errorf(apperr.KindConflict, op, res.Rel, "destination already exists")
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return apperr.E(apperr.KindIO, op, res.Rel, err)
	}
}

func (f *FS) observe(op string, start time.Time) {
	f.metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (f *FS) count(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	f.metrics.StoreOps.WithLabelValues(op, result).Inc()
}

// classify maps an os error to the matching error kind.
func classify(op, rel string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.E(apperr.KindNotFound, op, rel, err)
	case errors.Is(err, syscall.ENOTDIR):
		return apperr.E(apperr.KindNotFound, op, rel, err)
	default:
		return apperr.E(apperr.KindIO, op, rel, err)
	}
}
