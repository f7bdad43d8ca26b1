package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Merge implements MERGE's match-or-create pattern: per input row, Match
// runs against the current frame. Every row Match yields for that input row
// is forwarded, with OnMatch applied to each, before the cursor advances to
// the next input row — Match's "pull_input" state is cleared only once its
// branch is exhausted, not after the first row, so a match branch bound to
// more than one candidate (a label scan with no uniqueness guarantee, say)
// reports all of them instead of silently dropping every row after the
// first. Only when Match yields nothing at all for an input row does Merge
// fall back to inserting a fresh vertex from CreateProps and applying
// OnCreate. Match's own "branch yielded nothing" is the same
// local-recovery case Optional also implements.
//
// Grounded on pkg/cypher/executor.go's executeMerge dispatch, which
// special-cases MERGE's ON CREATE SET / ON MATCH SET handling apart from
// the general clause pipeline; reworked here into a single cursor instead
// of that file's string-driven branch.
type Merge struct {
	Input cursor.Cursor
	Match cursor.Cursor // may yield more than one row per input row

	Labels      []string
	CreateProps []PropertyExpr
	Output      gval.Symbol

	OnCreate []PropertyExpr
	OnMatch  []PropertyExpr

	matching bool // mid-match-branch for the current input row
	sawMatch bool // Match yielded at least one row for the current input row
}

func (m *Merge) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if !m.matching {
			ok, err := m.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			if err := m.Match.Reset(); err != nil {
				return false, err
			}
			m.matching = true
			m.sawMatch = false
		}

		found, err := m.Match.Pull(ctx, frame, execCtx)
		if err != nil {
			return false, err
		}
		if found {
			m.sawMatch = true
			return true, m.applyActions(execCtx, frame, m.OnMatch)
		}

		m.matching = false
		if m.sawMatch {
			continue // this input row is done; go pull the next one
		}

		props, err := evalProperties(execCtx, frame, accessor.ViewNew, m.CreateProps)
		if err != nil {
			return false, err
		}
		v := execCtx.Tx.InsertVertex(m.Labels, props)
		frame.Set(m.Output, gval.Vertex(v))
		return true, m.applyActions(execCtx, frame, m.OnCreate)
	}
}

func (m *Merge) applyActions(execCtx *cursor.ExecContext, frame *gval.Frame, actions []PropertyExpr) error {
	if len(actions) == 0 {
		return nil
	}
	ref, ok := frame.Get(m.Output).AsVertex()
	if !ok {
		return cursor.New(cursor.KindQueryRuntime, "MERGE action target is not a bound node")
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return cursor.New(cursor.KindQueryRuntime, "MERGE action target is not local")
	}
	for _, a := range actions {
		v, err := a.Expr.Eval(execCtx, frame, accessor.ViewNew)
		if err != nil {
			return err
		}
		if v.IsNull() {
			err = va.RemoveProperty(a.Name)
		} else {
			err = va.SetProperty(a.Name, v)
		}
		if err != nil {
			return cursor.Wrap(cursor.KindQueryRuntime, err, "MERGE action")
		}
	}
	return nil
}

func (m *Merge) Reset() error {
	m.matching = false
	m.sawMatch = false
	if err := m.Match.Reset(); err != nil {
		return err
	}
	return m.Input.Reset()
}
func (m *Merge) Close() error {
	if err := m.Input.Close(); err != nil {
		return err
	}
	return m.Match.Close()
}
