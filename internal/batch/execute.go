package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/linkedit"
	"github.com/starford/vaultkeep/internal/parser"
)

// Operation record statuses.
const (
	StatusApplied        = "applied"
	StatusFailed         = "failed"
	StatusRolledBack     = "rolled_back"
	StatusRollbackFailed = "rollback_failed"
	StatusPending        = "not_executed"
)

// OperationRecord is the outcome of one queued operation.
type OperationRecord struct {
	Index   int    `json:"index"`
	Kind    Kind   `json:"kind"`
	Path    string `json:"path"`
	To      string `json:"to,omitempty"`
	Derived bool   `json:"derived,omitempty"`
	Status  string `json:"status"`
	Change  string `json:"change,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result reports a transaction outcome. Executed equals Total only when
// Success is true.
type Result struct {
	TransactionID string            `json:"transaction_id"`
	Success       bool              `json:"success"`
	State         State             `json:"state"`
	Executed      int               `json:"executed"`
	Total         int               `json:"total"`
	FailedAt      int               `json:"failed_at"`
	Duration      time.Duration     `json:"duration"`
	Changes       []string          `json:"changes"`
	Errors        []string          `json:"errors,omitempty"`
	Conflicts     []Conflict        `json:"conflicts,omitempty"`
	Operations    []OperationRecord `json:"operations"`
	RolledBack    bool              `json:"rolled_back"`
	RollbackClean bool              `json:"rollback_clean"`
}

// snapshot is the pre-image of the paths one operation touches.
type snapshot struct {
	path    string
	existed bool
	content []byte
	to      string // move destination
	noop    bool   // operation changed nothing
}

// Execute validates the queue if needed, then applies every operation in
// order. On the first failure the applied operations are undone in reverse
// order and the transaction ends RolledBack. Once execution starts ctx
// cancellation is ignored so a batch always finishes or rolls back.
//
// The returned error is a ConflictError when validation failed, a
// RollbackError when restoring a snapshot also failed, and otherwise the
// kind of the failing operation's error.
func (t *Transaction) Execute(ctx context.Context) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	res := &Result{TransactionID: t.id, FailedAt: -1, Changes: []string{}}
	conflicts, err := t.validate(ctx)
	if err != nil {
		return nil, err
	}
	if t.state != StateValidating {
		res.State = t.state
		res.Total = len(t.ops)
		res.Conflicts = conflicts
		for _, c := range conflicts {
			res.Errors = append(res.Errors, c.String())
		}
		res.Duration = time.Since(start)
		return res, apperr.Errorf(apperr.KindConflict, "batch", "", "%d conflict(s): %s", len(conflicts), res.Errors[0])
	}

	t.state = StateExecuting
	ctx = context.WithoutCancel(ctx)
	res.Total = len(t.ops)
	res.Operations = make([]OperationRecord, len(t.ops))
	for i, op := range t.ops {
		res.Operations[i] = OperationRecord{Index: i, Kind: op.Kind, Path: op.Path, To: op.To, Derived: op.Derived, Status: StatusPending}
	}
	t.metrics.TransactionOps.Observe(float64(len(t.ops)))
	defer func() {
		res.Duration = time.Since(start)
		t.metrics.TransactionDuration.Observe(res.Duration.Seconds())
	}()

	snaps := make([]snapshot, 0, len(t.ops))
	for i, op := range t.ops {
		snap, err := t.capture(ctx, op)
		if err == nil {
			var change string
			change, err = t.apply(ctx, op, &snap)
			if err == nil {
				snaps = append(snaps, snap)
				res.Operations[i].Status = StatusApplied
				res.Operations[i].Change = change
				res.Changes = append(res.Changes, change)
				res.Executed++
				continue
			}
		}
		return res, t.fail(ctx, res, i, err, snaps)
	}

	t.state = StateCommitted
	res.State = t.state
	res.Success = true
	t.metrics.Transactions.WithLabelValues("committed").Inc()
	t.log.Info("batch: committed",
		slog.String("id", t.id),
		slog.Int("operations", len(t.ops)),
	)
	return res, nil
}

// fail rolls back snaps in reverse and fills in res.
func (t *Transaction) fail(ctx context.Context, res *Result, index int, cause error, snaps []snapshot) error {
	op := t.ops[index]
	res.FailedAt = index
	res.Operations[index].Status = StatusFailed
	res.Operations[index].Error = cause.Error()
	res.Errors = append(res.Errors, fmt.Sprintf("operation %d (%s %s) failed: %v", index, op.Kind, op.Path, cause))

	var restoreErrs []error
	for i := len(snaps) - 1; i >= 0; i-- {
		if err := t.restore(ctx, t.ops[i], snaps[i]); err != nil {
			restoreErrs = append(restoreErrs, err)
			res.Operations[i].Status = StatusRollbackFailed
			res.Operations[i].Error = err.Error()
			res.Errors = append(res.Errors, fmt.Sprintf("rollback of operation %d (%s %s) failed: %v", i, t.ops[i].Kind, t.ops[i].Path, err))
			continue
		}
		res.Operations[i].Status = StatusRolledBack
	}

	t.state = StateRolledBack
	res.State = t.state
	res.RolledBack = true
	res.RollbackClean = len(restoreErrs) == 0
	res.Changes = []string{}

	if len(restoreErrs) > 0 {
		t.metrics.Transactions.WithLabelValues("rollback_failed").Inc()
		t.log.Error("batch: rollback incomplete",
			slog.String("id", t.id),
			slog.Int("failed_at", index),
			slog.Int("restore_errors", len(restoreErrs)),
			slog.String("error", cause.Error()),
		)
		return apperr.E(apperr.KindRollback, "batch", op.Path,
			fmt.Errorf("operation %d failed and %d restore(s) failed: %w", index, len(restoreErrs), errors.Join(append([]error{cause}, restoreErrs...)...)))
	}
	t.metrics.Transactions.WithLabelValues("rolled_back").Inc()
	t.log.Warn("batch: rolled back",
		slog.String("id", t.id),
		slog.Int("failed_at", index),
		slog.String("error", cause.Error()),
	)
	kind := apperr.KindOf(cause)
	return apperr.E(kind, "batch", op.Path, fmt.Errorf("operation %d (%s) failed, rolled back: %w", index, op.Kind, cause))
}

// capture records the pre-state of every path op touches.
func (t *Transaction) capture(ctx context.Context, op Operation) (snapshot, error) {
	s := snapshot{path: op.Path, to: op.To}
	switch op.Kind {
	case KindCreate:
		return s, nil
	case KindWrite, KindDelete, KindMove, KindUpdateLinks:
		data, err := t.store.Read(ctx, op.Path)
		if err != nil {
			return s, err
		}
		s.existed = true
		s.content = data
		return s, nil
	}
	return s, apperr.Errorf(apperr.KindValidation, "batch", op.Path, "unknown operation %q", op.Kind)
}

// apply performs op and returns its change description.
func (t *Transaction) apply(ctx context.Context, op Operation, snap *snapshot) (string, error) {
	switch op.Kind {
	case KindCreate:
		exists, err := t.store.Exists(op.Path)
		if err != nil {
			return "", err
		}
		if exists {
			return "", apperr.Errorf(apperr.KindConflict, "create", op.Path, "file appeared after validation")
		}
		data, err := render([]byte(op.Content), op.Frontmatter)
		if err != nil {
			return "", apperr.E(apperr.KindValidation, "create", op.Path, err)
		}
		if err := t.store.Write(ctx, op.Path, data); err != nil {
			return "", err
		}
		return "Created: " + op.Path, nil

	case KindWrite:
		base := []byte(op.Content)
		if op.Content == "" && len(op.Frontmatter) > 0 {
			base = snap.content
		}
		data, err := render(base, op.Frontmatter)
		if err != nil {
			return "", apperr.E(apperr.KindValidation, "write", op.Path, err)
		}
		if err := t.store.Write(ctx, op.Path, data); err != nil {
			return "", err
		}
		return "Updated: " + op.Path, nil

	case KindDelete:
		if err := t.store.Delete(ctx, op.Path); err != nil {
			return "", err
		}
		return "Deleted: " + op.Path, nil

	case KindMove:
		if err := t.store.Move(ctx, op.Path, op.To); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved: %s → %s", op.Path, op.To), nil

	case KindUpdateLinks:
		updated, n := linkedit.Update(op.Path, snap.content, op.Replacements)
		if n == 0 {
			snap.noop = true
			return "No links updated in " + op.Path, nil
		}
		if err := t.store.Write(ctx, op.Path, updated); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %d link(s) in %s: %s", n, op.Path, describe(op.Replacements)), nil
	}
	return "", apperr.Errorf(apperr.KindValidation, "batch", op.Path, "unknown operation %q", op.Kind)
}

// restore undoes an applied operation from its snapshot.
func (t *Transaction) restore(ctx context.Context, op Operation, s snapshot) error {
	if s.noop {
		return nil
	}
	switch op.Kind {
	case KindCreate:
		err := t.store.Delete(ctx, s.path)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	case KindWrite, KindDelete, KindUpdateLinks:
		return t.store.Write(ctx, s.path, s.content)
	case KindMove:
		if err := t.store.Move(ctx, s.to, s.path); err == nil {
			return nil
		}
		// Fall back to recreating the source from the snapshot.
		if err := t.store.Write(ctx, s.path, s.content); err != nil {
			return err
		}
		err := t.store.Delete(ctx, s.to)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func render(content []byte, fm map[string]any) ([]byte, error) {
	if len(fm) == 0 {
		return content, nil
	}
	return parser.MergeFrontmatter(content, fm)
}

func describe(repls []linkedit.Replacement) string {
	parts := make([]string, 0, len(repls))
	for _, r := range repls {
		if r.Strip() {
			parts = append(parts, r.Old+" removed")
			continue
		}
		parts = append(parts, r.Old+" → "+r.New)
	}
	return strings.Join(parts, ", ")
}
