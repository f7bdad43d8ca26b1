package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Apply drives Branch once per Input row, resetting it between outer rows
// and copying the outer row's bindings into it first — the correlated-
// subquery join every EXISTS{} / OPTIONAL MATCH / subquery pattern needs.
// If OnlyExists is set, Apply yields the outer row unchanged as soon as
// Branch produces one inner row (short-circuiting the rest of Branch)
// instead of streaming every inner row.
type Apply struct {
	Input      cursor.Cursor
	Branch     cursor.Cursor
	OnlyExists bool
	Negate     bool // EXISTS vs NOT EXISTS

	branchDone bool
	sawInner   bool
	started    bool
}

func (a *Apply) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if !a.started {
		a.started = true
		a.branchDone = true // the first Pull starts by drawing an Input row
	}
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if a.branchDone {
			ok, err := a.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			if err := a.Branch.Reset(); err != nil {
				return false, err
			}
			a.branchDone = false
			a.sawInner = false
		}

		if a.OnlyExists {
			inner := gval.NewFrame(frame.Size())
			inner.CopyFrom(frame)
			ok, err := a.Branch.Pull(ctx, inner, execCtx)
			if err != nil {
				return false, err
			}
			a.branchDone = true
			if ok == a.Negate {
				continue
			}
			return true, nil
		}

		ok, err := a.Branch.Pull(ctx, frame, execCtx)
		if err != nil {
			return false, err
		}
		if ok {
			a.sawInner = true
			return true, nil
		}
		a.branchDone = true
	}
}

func (a *Apply) Reset() error {
	a.branchDone = true
	a.sawInner = false
	if err := a.Branch.Reset(); err != nil {
		return err
	}
	return a.Input.Reset()
}
func (a *Apply) Close() error {
	if err := a.Branch.Close(); err != nil {
		return err
	}
	return a.Input.Close()
}

// AdvanceCommand issues Tx.AdvanceCommand() once per input row before
// yielding it, giving a WITH boundary write-visibility semantics: prior
// writes in the same query become visible under OLD to everything
// downstream.
type AdvanceCommand struct {
	Input cursor.Cursor
}

func (a *AdvanceCommand) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := a.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	execCtx.Tx.AdvanceCommand()
	return true, nil
}

func (a *AdvanceCommand) Reset() error { return a.Input.Reset() }
func (a *AdvanceCommand) Close() error { return a.Input.Close() }

// Profile wraps Input, recording a Pull-call/rows-yielded counter under
// Name into execCtx.Profile for EXPLAIN/PROFILE output.
type Profile struct {
	Input cursor.Cursor
	Name  string
}

func (p *Profile) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	ok, err := p.Input.Pull(ctx, frame, execCtx)
	if execCtx.Profile != nil {
		execCtx.Profile.Record(p.Name, ok)
	}
	return ok, err
}

func (p *Profile) Reset() error { return p.Input.Reset() }
func (p *Profile) Close() error { return p.Input.Close() }

// Explain never pulls Input; it exists so a plan tree can be walked and
// rendered without executing any operator.
type Explain struct {
	Input cursor.Cursor
	Name  string
	Args  map[string]string
}

func (e *Explain) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	return false, nil
}

func (e *Explain) Reset() error { return nil }
func (e *Explain) Close() error { return nil }
