// Package optimistic applies a local mutation before the remote write that
// confirms it, and reverts it if the write fails.
package optimistic

import (
	"context"
	"errors"
	"fmt"
)

// ErrRolledBack wraps the commit error of a reverted mutation.
var ErrRolledBack = errors.New("optimistic: rolled back")

// Outcome is the state of one mutation: pending until the commit returns,
// then committed or rolled back. There is no retry after a rollback.
type Outcome string

const (
	Pending    Outcome = "pending"
	Committed  Outcome = "committed"
	RolledBack Outcome = "rolled_back"
)

// Op is one optimistic mutation. Revert must restore exactly what Apply
// changed and nothing else.
type Op struct {
	Apply  func(ctx context.Context) error
	Commit func(ctx context.Context) error
	Revert func(ctx context.Context) error
}

// Result reports how a mutation ended.
type Result struct {
	Outcome Outcome
	Err     error
}

// Run applies op, commits it and reverts on commit failure. A failed Apply
// changes nothing and skips the commit.
func Run(ctx context.Context, op Op) Result {
	if err := op.Apply(ctx); err != nil {
		return Result{Outcome: RolledBack, Err: fmt.Errorf("apply: %w", err)}
	}
	cerr := op.Commit(ctx)
	if cerr == nil {
		return Result{Outcome: Committed}
	}
	err := fmt.Errorf("%w: %w", ErrRolledBack, cerr)
	if rerr := op.Revert(context.WithoutCancel(ctx)); rerr != nil {
		err = errors.Join(err, fmt.Errorf("revert: %w", rerr))
	}
	return Result{Outcome: RolledBack, Err: err}
}

// Set returns apply and revert functions for assigning next to *p. The
// prior value is captured when Set is called, before anything is applied.
func Set[T any](p *T, next T) (apply, revert func(context.Context) error) {
	prev := *p
	apply = func(context.Context) error {
		*p = next
		return nil
	}
	revert = func(context.Context) error {
		*p = prev
		return nil
	}
	return apply, revert
}
