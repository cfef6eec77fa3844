// Package engine composes the vault core: path-secured atomic storage, the
// content cache, the parser, the link graph and batch transactions. It is the
// only surface the transport layers talk to.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/cache"
	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/index"
	"github.com/starford/vaultkeep/internal/metrics"
	"github.com/starford/vaultkeep/internal/models"
	"github.com/starford/vaultkeep/internal/parser"
	"github.com/starford/vaultkeep/internal/pathresolver"
	"github.com/starford/vaultkeep/internal/storage"
	"github.com/starford/vaultkeep/internal/templates"
	"github.com/starford/vaultkeep/internal/validation"
)

// Defaults applied to zero Config fields.
var (
	DefaultExcluded   = []string{".obsidian", ".git", ".trash", "node_modules", ".DS_Store"}
	DefaultExtensions = []string{".md", ".markdown", ".txt", ".canvas"}
)

const scanWorkers = 8

// Config configures an Engine.
type Config struct {
	Root        string
	MaxFileSize int64
	CacheTTL    time.Duration
	Excluded    []string
	Extensions  []string
	LockTimeout time.Duration

	// Validators run by Validate after the link validator, which is always
	// bound to the graph.
	Validators validation.Validators

	// Templates are registered over the built-in note templates.
	Templates []templates.Template
}

// Engine owns one vault.
type Engine struct {
	cfg     Config
	store   storage.Provider
	cache   *cache.Cache
	exclude *pathresolver.Matcher
	graph   *graph.Graph
	tmpl    *templates.Registry
	index   index.FileIndex
	log     *slog.Logger
	metrics *metrics.Metrics

	// syncing orders disk-to-graph syncs per path. mu guards records.
	// Storage has its own locks.
	syncing syncLocks
	mu      sync.RWMutex
	records map[string]*models.FileRecord
	ready   bool

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records engine, store, cache, graph and batch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIndex keeps idx in step with the vault and serves Search from it.
func WithIndex(idx index.FileIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// New builds an engine over cfg.Root, which must exist. Call Initialize
// before use.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Excluded == nil {
		cfg.Excluded = DefaultExcluded
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = storage.DefaultMaxFileSize
	}

	e := &Engine{cfg: cfg, records: map[string]*models.FileRecord{}, subs: map[int]func(Change){}}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.metrics = metrics.OrNop(e.metrics)

	exclude, err := pathresolver.NewMatcher(cfg.Excluded)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.exclude = exclude
	e.cache = cache.New(cfg.CacheTTL, cache.WithMetrics(e.metrics))
	e.store, err = storage.NewFS(cfg.Root,
		storage.WithCache(e.cache),
		storage.WithMaxFileSize(cfg.MaxFileSize),
		storage.WithLockTimeout(cfg.LockTimeout),
		storage.WithExclusions(exclude),
		storage.WithExtensions(cfg.Extensions),
		storage.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.graph = graph.New(graph.WithMetrics(e.metrics), graph.WithNoteExtensions(cfg.Extensions))
	e.cfg.Validators = append(validation.Validators{validation.LinkValidator{Graph: e.graph}}, cfg.Validators...)
	if e.tmpl, err = templates.NewRegistry(cfg.Templates...); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return e, nil
}

// Root returns the canonical vault root.
func (e *Engine) Root() string { return e.store.Root() }

// Eligible reports whether rel is a vault file the engine tracks.
func (e *Engine) Eligible(rel string) bool { return e.store.Eligible(rel) }

// Excluded reports whether rel lies in an excluded directory.
func (e *Engine) Excluded(rel string) bool { return e.exclude.Excluded(rel) }

// Ready reports whether Initialize has completed.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Initialize scans the vault, parses every eligible file in parallel and
// builds the link graph. Files that fail to read or parse are logged and
// skipped.
func (e *Engine) Initialize(ctx context.Context) error {
	start := time.Now()
	infos, err := e.store.List(ctx)
	if err != nil {
		return err
	}

	records := make([]*models.FileRecord, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, info := range infos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := e.load(gctx, info)
			if err != nil {
				e.log.Warn("engine: skipping file",
					slog.String("path", info.Path),
					slog.String("error", err.Error()))
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	parsed := records[:0]
	for _, r := range records {
		if r != nil {
			parsed = append(parsed, r)
		}
	}

	e.mu.Lock()
	e.records = make(map[string]*models.FileRecord, len(parsed))
	for _, r := range parsed {
		e.records[r.Path] = r
	}
	e.graph.Build(parsed)
	e.ready = true
	e.mu.Unlock()

	if e.index != nil {
		st, err := index.Sync(ctx, e.index, parsed, e.log)
		if err != nil {
			e.log.Warn("engine: index sync failed", slog.String("error", err.Error()))
		} else {
			e.log.Info("engine: index synced",
				slog.Int("indexed", st.Indexed),
				slog.Int("removed", st.Removed),
				slog.Int("unchanged", st.Unchanged))
		}
	}

	e.log.Info("engine: initialized",
		slog.String("root", e.store.Root()),
		slog.Int("files", len(parsed)),
		slog.Int("skipped", len(infos)-len(parsed)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// load reads and parses one file.
func (e *Engine) load(ctx context.Context, info models.FileInfo) (*models.FileRecord, error) {
	data, err := e.store.Read(ctx, info.Path)
	if err != nil {
		return nil, err
	}
	rec, err := parser.Parse(info.Path, data)
	if err != nil {
		return nil, err
	}
	rec.ModifiedAt = info.ModifiedAt
	// Creation time is not portable; the modification time stands in.
	rec.CreatedAt = info.ModifiedAt
	return rec, nil
}

// List returns metadata for every tracked file, sorted by path.
func (e *Engine) List() []models.FileInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.FileInfo, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, models.FileInfo{Path: r.Path, Size: r.Size, ModifiedAt: r.ModifiedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Record returns the parsed metadata of p.
func (e *Engine) Record(p string) (*models.FileRecord, error) {
	rel, err := e.store.Normalize(p)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[rel]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "record", rel, nil)
	}
	cp := *rec
	return &cp, nil
}

// SweepCache drops expired cache entries.
func (e *Engine) SweepCache() int { return e.cache.Sweep() }

// CacheTTL returns the content cache lifetime.
func (e *Engine) CacheTTL() time.Duration { return e.cache.TTL() }

// Close releases the index, if any.
func (e *Engine) Close() error {
	if e.index != nil {
		return e.index.Close()
	}
	return nil
}
