// Package watcher turns file system notifications under a vault root into
// debounced change events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before pending changes are flushed.
const DefaultDebounce = 100 * time.Millisecond

// Kind is the type of a change event.
type Kind string

// Event kinds.
const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
	Renamed  Kind = "renamed"
)

// Event is a change to one vault-relative path. From is set for Renamed.
type Event struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
	From string `json:"from,omitempty"`
}

// Watcher emits Events for files under root.
type Watcher struct {
	root     string
	debounce time.Duration
	eligible func(rel string) bool
	skipDir  func(rel string) bool
	log      *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero or less uses DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithFilter reports only files for which eligible returns true.
func WithFilter(eligible func(rel string) bool) Option {
	return func(w *Watcher) { w.eligible = eligible }
}

// WithDirFilter skips directories for which skip returns true.
func WithDirFilter(skip func(rel string) bool) Option {
	return func(w *Watcher) { w.skipDir = skip }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New returns a watcher for the directory root.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		eligible: func(string) bool { return true },
		skipDir:  func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Run watches root recursively and sends events to out until ctx is
// cancelled. New directories are watched as they appear and the files already
// inside them are reported as Created.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.root, nil); err != nil {
		return err
	}
	w.log.Info("watcher: started", slog.String("root", w.root))

	p := newPending()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			timer.Reset(w.debounce)
		}
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.log.Info("watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			for _, ev := range p.flush(w.root) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if w.skipDir(rel) {
						continue
					}
					if err := w.addDirs(fw, ev.Name, p); err != nil {
						w.log.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", err.Error()))
					}
					schedule()
					continue
				}
			}
			if !w.eligible(rel) {
				continue
			}
			p.add(rel, ev.Op)
			schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// addDirs watches dir and its subdirectories. With p set, files found are
// recorded as created.
func (w *Watcher) addDirs(fw *fsnotify.Watcher, dir string, p *pending) error {
	return filepath.WalkDir(dir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, relErr := filepath.Rel(w.root, abs)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && w.skipDir(rel) {
				return filepath.SkipDir
			}
			return fw.Add(abs)
		}
		if p != nil && d.Type().IsRegular() && w.eligible(rel) {
			p.add(rel, fsnotify.Create)
		}
		return nil
	})
}

// pending accumulates operations per path between flushes.
type pending struct {
	ops   map[string]fsnotify.Op
	order []string
}

func newPending() *pending {
	return &pending{ops: map[string]fsnotify.Op{}}
}

func (p *pending) add(rel string, op fsnotify.Op) {
	if _, seen := p.ops[rel]; !seen {
		p.order = append(p.order, rel)
	}
	p.ops[rel] |= op
}

// flush turns the accumulated operations into events using the current disk
// state, then resets. A single vanished renamed path paired with a single new
// path becomes one Renamed event.
func (p *pending) flush(root string) []Event {
	var (
		events   []Event
		renamed  []int
		creation []int
	)
	for _, rel := range p.order {
		op := p.ops[rel]
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		exists := err == nil && info.Mode().IsRegular()
		switch {
		case exists && op&fsnotify.Create != 0:
			creation = append(creation, len(events))
			events = append(events, Event{Kind: Created, Path: rel})
		case exists:
			events = append(events, Event{Kind: Modified, Path: rel})
		default:
			if op&fsnotify.Rename != 0 {
				renamed = append(renamed, len(events))
			}
			events = append(events, Event{Kind: Deleted, Path: rel})
		}
	}
	p.ops = map[string]fsnotify.Op{}
	p.order = nil

	if len(renamed) != 1 || len(creation) != 1 {
		return events
	}
	from, to := renamed[0], creation[0]
	events[to] = Event{Kind: Renamed, Path: events[to].Path, From: events[from].Path}
	return append(events[:from], events[from+1:]...)
}
