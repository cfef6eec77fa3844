// Package batch applies ordered sets of file operations with all-or-nothing
// semantics.
//
// A Transaction moves through Building → Validating → Executing and ends
// Committed or RolledBack. Validation reports every conflict at once and
// never touches the store. Execution snapshots each path before changing it
// and, on failure, restores the snapshots in reverse order. Isolation is per
// file only: readers may observe intermediate states while a batch runs.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/linkedit"
	"github.com/starford/vaultkeep/internal/metrics"
)

// State is a transaction lifecycle state.
type State string

// Transaction states.
const (
	StateBuilding   State = "building"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateRejected   State = "rejected"
)

// Store is the file store a transaction mutates.
type Store interface {
	Read(ctx context.Context, p string) ([]byte, error)
	Write(ctx context.Context, p string, data []byte) error
	Delete(ctx context.Context, p string) error
	Move(ctx context.Context, from, to string) error
	Exists(p string) (bool, error)
	Normalize(p string) (string, error)
}

// References finds the files linking to a path. *graph.Graph implements it.
type References interface {
	References(p string) ([]graph.Reference, error)
}

// Transaction is an ordered set of operations. It is safe for concurrent use
// but executes at most once.
type Transaction struct {
	mu        sync.Mutex
	id        string
	store     Store
	refs      References
	log       *slog.Logger
	metrics   *metrics.Metrics
	ops       []Operation
	state     State
	conflicts []Conflict
}

// Option configures a Transaction.
type Option func(*Transaction)

// WithReferences enables reference updates for moves and deletes.
func WithReferences(r References) Option {
	return func(t *Transaction) { t.refs = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transaction) { t.log = l }
}

// WithMetrics records outcomes and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transaction) { t.metrics = m }
}

// New returns an empty transaction in the Building state.
func New(store Store, opts ...Option) *Transaction {
	t := &Transaction{id: uuid.NewString(), store: store, state: StateBuilding}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.metrics = metrics.OrNop(t.metrics)
	return t
}

// ID returns the transaction identifier.
func (t *Transaction) ID() string { return t.id }

// State returns the current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Operations returns the queued operations, including derived link updates
// once validated.
func (t *Transaction) Operations() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Operation(nil), t.ops...)
}

// Add appends op to the queue. It is only legal while Building.
func (t *Transaction) Add(op Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateBuilding {
		return apperr.Errorf(apperr.KindValidation, "batch_add", op.Path, "transaction is %s", t.state)
	}
	op.Derived = false
	t.ops = append(t.ops, op)
	return nil
}

// ConflictType names a validation conflict.
type ConflictType string

// Conflict types.
const (
	ConflictEmpty             ConflictType = "empty_batch"
	ConflictInvalid           ConflictType = "invalid_operation"
	ConflictInvalidPath       ConflictType = "invalid_path"
	ConflictDuplicatePath     ConflictType = "duplicate_path"
	ConflictAlreadyExists     ConflictType = "already_exists"
	ConflictNotFound          ConflictType = "not_found"
	ConflictDestinationExists ConflictType = "destination_exists"
)

// Conflict is one problem found by Validate. Index is the operation's
// position in the queue, or -1 for the batch as a whole.
type Conflict struct {
	Index   int          `json:"index"`
	Path    string       `json:"path,omitempty"`
	Type    ConflictType `json:"type"`
	Message string       `json:"message"`
}

func (c Conflict) String() string {
	if c.Index < 0 {
		return c.Message
	}
	return fmt.Sprintf("operation %d: %s", c.Index, c.Message)
}

// Validate checks the queue without changing anything and returns every
// conflict found. With no conflicts the transaction is ready to execute and
// reference-updating moves and deletes have been expanded into link updates.
// With conflicts it is Rejected. The error is non-nil only when the store
// could not be queried.
func (t *Transaction) Validate(ctx context.Context) ([]Conflict, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validate(ctx)
}

func (t *Transaction) validate(_ context.Context) ([]Conflict, error) {
	switch t.state {
	case StateBuilding:
	case StateValidating:
		return nil, nil
	case StateRejected:
		return t.conflicts, nil
	default:
		return nil, apperr.Errorf(apperr.KindValidation, "batch_validate", "", "transaction is %s", t.state)
	}
	t.state = StateValidating

	conflicts, ops, err := t.check()
	if err != nil {
		t.state = StateBuilding
		return nil, err
	}
	if len(conflicts) > 0 {
		t.state = StateRejected
		t.conflicts = conflicts
		t.metrics.Transactions.WithLabelValues("rejected").Inc()
		return conflicts, nil
	}
	t.ops = ops
	return nil, nil
}

// check simulates the queue against the store. Paths are normalized in the
// returned operations and derived link updates are inserted after the move or
// delete that needs them.
func (t *Transaction) check() ([]Conflict, []Operation, error) {
	if len(t.ops) == 0 {
		return []Conflict{{Index: -1, Type: ConflictEmpty, Message: "batch has no operations"}}, nil, nil
	}

	var conflicts []Conflict
	add := func(i int, p string, typ ConflictType, format string, args ...any) {
		conflicts = append(conflicts, Conflict{Index: i, Path: p, Type: typ, Message: fmt.Sprintf(format, args...)})
	}

	normalized := make([]Operation, len(t.ops))
	claimed := map[string]int{}
	for i, op := range t.ops {
		normalized[i] = op
		if err := op.Validate(); err != nil {
			add(i, op.Path, ConflictInvalid, "%s: %v", op.Kind, err)
			normalized[i].Kind = ""
			continue
		}
		ok := true
		for j, p := range op.targets() {
			rel, err := t.store.Normalize(p)
			if err != nil {
				add(i, p, ConflictInvalidPath, "%v", err)
				ok = false
				continue
			}
			if j == 0 {
				normalized[i].Path = rel
			} else {
				normalized[i].To = rel
			}
			if prev, dup := claimed[rel]; dup {
				add(i, rel, ConflictDuplicatePath, "%s is also targeted by operation %d", rel, prev)
				ok = false
				continue
			}
			claimed[rel] = i
		}
		if !ok {
			normalized[i].Kind = ""
		}
	}

	sim := newSimulation(t.store)
	var expanded []Operation
	for i, op := range normalized {
		if op.Kind == "" {
			continue
		}
		expanded = append(expanded, op)
		switch op.Kind {
		case KindCreate:
			exists, err := sim.exists(op.Path)
			if err != nil {
				return nil, nil, err
			}
			if exists {
				add(i, op.Path, ConflictAlreadyExists, "cannot create %s: file exists", op.Path)
			}
			sim.set(op.Path, true)
		case KindWrite, KindUpdateLinks:
			if err := sim.require(op.Path, func() {
				add(i, op.Path, ConflictNotFound, "cannot %s %s: file does not exist", verb(op.Kind), op.Path)
			}); err != nil {
				return nil, nil, err
			}
		case KindDelete:
			if err := sim.require(op.Path, func() {
				add(i, op.Path, ConflictNotFound, "cannot delete %s: file does not exist", op.Path)
			}); err != nil {
				return nil, nil, err
			}
			sim.set(op.Path, false)
			if op.UpdateReferences {
				expanded = append(expanded, t.derive(op, sim)...)
			}
		case KindMove:
			if err := sim.require(op.Path, func() {
				add(i, op.Path, ConflictNotFound, "cannot move %s: file does not exist", op.Path)
			}); err != nil {
				return nil, nil, err
			}
			exists, err := sim.exists(op.To)
			if err != nil {
				return nil, nil, err
			}
			if exists {
				add(i, op.To, ConflictDestinationExists, "cannot move %s to %s: destination exists", op.Path, op.To)
			}
			sim.set(op.Path, false)
			sim.set(op.To, true)
			sim.renamed[op.Path] = op.To
			if op.UpdateReferences {
				expanded = append(expanded, t.derive(op, sim)...)
			}
		}
	}
	return conflicts, expanded, nil
}

// derive builds the link updates for every file referencing the subject of a
// move or delete. Sources removed earlier in the batch are skipped and sources
// moved earlier are addressed at their new path.
func (t *Transaction) derive(op Operation, sim *simulation) []Operation {
	if t.refs == nil {
		return nil
	}
	refs, err := t.refs.References(op.Path)
	if err != nil {
		// Not in the graph: nothing links to it.
		return nil
	}
	var out []Operation
	for _, ref := range refs {
		src := ref.Source
		if to, moved := sim.renamed[src]; moved {
			src = to
		}
		if src == op.Path || src == op.To {
			continue
		}
		if exists, err := sim.exists(src); err != nil || !exists {
			continue
		}
		repls := make([]linkedit.Replacement, 0, len(ref.Targets))
		for _, target := range ref.Targets {
			repls = append(repls, linkedit.Replacement{Old: target, New: op.To})
		}
		out = append(out, Operation{Kind: KindUpdateLinks, Path: src, Replacements: repls, Derived: true})
	}
	return out
}

// simulation tracks file existence as the queue would leave it.
type simulation struct {
	store   Store
	state   map[string]bool
	renamed map[string]string
}

func newSimulation(s Store) *simulation {
	return &simulation{store: s, state: map[string]bool{}, renamed: map[string]string{}}
}

func (s *simulation) exists(p string) (bool, error) {
	if v, ok := s.state[p]; ok {
		return v, nil
	}
	return s.store.Exists(p)
}

func (s *simulation) set(p string, exists bool) { s.state[p] = exists }

func (s *simulation) require(p string, missing func()) error {
	ok, err := s.exists(p)
	if err != nil {
		return err
	}
	if !ok {
		missing()
	}
	return nil
}

func verb(k Kind) string {
	switch k {
	case KindWrite:
		return "write"
	case KindUpdateLinks:
		return "update links in"
	default:
		return strings.TrimSuffix(string(k), "_file")
	}
}
