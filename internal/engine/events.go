package engine

import (
	"context"
	"log/slog"

	"github.com/starford/vaultkeep/internal/watcher"
)

// ChangeKind describes what happened to a file.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeMoved   ChangeKind = "moved"
)

// Change is a settled modification of the vault. From is set for moves.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path"`
	From string     `json:"from,omitempty"`
}

// Subscribe registers fn to be called, in order, for every change the engine
// applies, whether made through the engine or observed on disk. The returned
// func unregisters it. fn must not block.
func (e *Engine) Subscribe(fn func(Change)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	e.subMu.Lock()
	fns := make([]func(Change), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Apply brings the engine in line with a change observed on disk. Each event
// is resolved by re-reading the current disk state, so duplicate, stale or
// reordered events converge on the same result.
func (e *Engine) Apply(ctx context.Context, ev watcher.Event) []Change {
	e.metrics.WatcherEvents.WithLabelValues(string(ev.Kind)).Inc()

	var changes []Change
	if ev.Kind == watcher.Renamed && ev.From != "" {
		e.store.Invalidate(ev.From)
		e.store.Invalidate(ev.Path)
		_, gone := e.sync(ctx, ev.From)
		_, came := e.sync(ctx, ev.Path)
		switch {
		case gone == ChangeDeleted && came == ChangeCreated:
			changes = append(changes, Change{Kind: ChangeMoved, Path: ev.Path, From: ev.From})
		default:
			if gone != "" {
				changes = append(changes, Change{Kind: gone, Path: ev.From})
			}
			if came != "" {
				changes = append(changes, Change{Kind: came, Path: ev.Path})
			}
		}
	} else {
		e.store.Invalidate(ev.Path)
		if _, c := e.sync(ctx, ev.Path); c != "" {
			changes = append(changes, Change{Kind: c, Path: ev.Path})
		}
	}

	for _, c := range changes {
		e.log.Debug("engine: applied change",
			slog.String("kind", string(c.Kind)),
			slog.String("path", c.Path),
			slog.String("from", c.From))
	}
	e.notify(changes)
	return changes
}

// Run applies events until ctx is cancelled or events is closed.
func (e *Engine) Run(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Apply(ctx, ev)
		}
	}
}
