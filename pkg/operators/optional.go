package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/accessor"
)

// Optional wraps Branch so that if it produces no rows at all for the
// current outer row, a single all-Null row is yielded instead (OPTIONAL
// MATCH's semantics).
type Optional struct {
	Branch  cursor.Cursor
	Symbols []gval.Symbol // symbols Branch would have bound, nulled on the fallback row

	producedAny bool
	fellBack    bool
}

func (o *Optional) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	if o.fellBack {
		return false, nil
	}
	ok, err := o.Branch.Pull(ctx, frame, execCtx)
	if err != nil {
		return false, err
	}
	if ok {
		o.producedAny = true
		return true, nil
	}
	if o.producedAny {
		return false, nil
	}
	for _, s := range o.Symbols {
		frame.Set(s, gval.Null)
	}
	o.fellBack = true
	return true, nil
}

func (o *Optional) Reset() error {
	o.producedAny = false
	o.fellBack = false
	return o.Branch.Reset()
}
func (o *Optional) Close() error { return o.Branch.Close() }

// Unwind expands a list-valued expression into one row per element. UNWIND
// of Null or an empty list yields no rows.
type Unwind struct {
	Input  cursor.Cursor
	List   gexpr.Expr
	Output gval.Symbol

	items  []gval.TypedValue
	pos    int
	loaded bool
}

func (u *Unwind) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if !u.loaded || u.pos >= len(u.items) {
			ok, err := u.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			v, err := u.List.Eval(execCtx, frame, accessor.ViewNew)
			if err != nil {
				return false, err
			}
			u.items, _ = v.AsList()
			u.pos = 0
			u.loaded = true
			if len(u.items) == 0 {
				continue
			}
		}
		frame.Set(u.Output, u.items[u.pos])
		u.pos++
		return true, nil
	}
}

func (u *Unwind) Reset() error {
	u.loaded = false
	u.items = nil
	u.pos = 0
	return u.Input.Reset()
}
func (u *Unwind) Close() error { return u.Input.Close() }
