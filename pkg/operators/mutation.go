package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// PropertyExpr binds a property name to the expression producing its value.
type PropertyExpr struct {
	Name string
	Expr gexpr.Expr
}

func evalProperties(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View, specs []PropertyExpr) (map[string]gval.TypedValue, error) {
	out := make(map[string]gval.TypedValue, len(specs))
	for _, s := range specs {
		v, err := s.Expr.Eval(ec, frame, view)
		if err != nil {
			return nil, err
		}
		out[s.Name] = v
	}
	return out, nil
}

// CreateNode inserts a new vertex per input row and binds it to Output.
type CreateNode struct {
	Input      cursor.Cursor
	Output     gval.Symbol
	Labels     []string
	Properties []PropertyExpr
}

func (c *CreateNode) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := c.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	props, err := evalProperties(execCtx, frame, accessor.ViewNew, c.Properties)
	if err != nil {
		return false, err
	}
	v := execCtx.Tx.InsertVertex(c.Labels, props)
	frame.Set(c.Output, gval.Vertex(v))
	return true, nil
}

func (c *CreateNode) Reset() error { return c.Input.Reset() }
func (c *CreateNode) Close() error { return c.Input.Close() }

// CreateExpand inserts a new edge (and, if ExistingOther's symbol is empty,
// a new vertex on the other end) connecting FromVertex, the CREATE-pattern
// edge form.
type CreateExpand struct {
	Input        cursor.Cursor
	FromVertex   gval.Symbol
	ExistingOther gval.Symbol // set means reuse an already-bound vertex; unset means create one
	OtherLabels  []string
	OtherProps   []PropertyExpr
	OutputOther  gval.Symbol
	OutputEdge   gval.Symbol
	EdgeType     string
	EdgeProps    []PropertyExpr
	Reversed     bool // true means the new edge points from Other to FromVertex
}

func (c *CreateExpand) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := c.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}

	fromRef, ok := frame.Get(c.FromVertex).AsVertex()
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "CREATE expand requires a bound start vertex")
	}
	from, ok := fromRef.(*accessor.VertexAccessor)
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "CREATE expand start vertex is not local")
	}

	var other *accessor.VertexAccessor
	if c.ExistingOther.Name != "" {
		ref, ok := frame.Get(c.ExistingOther).AsVertex()
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "CREATE expand requires a bound end vertex")
		}
		other, ok = ref.(*accessor.VertexAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "CREATE expand end vertex is not local")
		}
	} else {
		otherProps, err := evalProperties(execCtx, frame, accessor.ViewNew, c.OtherProps)
		if err != nil {
			return false, err
		}
		other = execCtx.Tx.InsertVertex(c.OtherLabels, otherProps)
	}

	edgeProps, err := evalProperties(execCtx, frame, accessor.ViewNew, c.EdgeProps)
	if err != nil {
		return false, err
	}
	var edge *accessor.EdgeAccessor
	if c.Reversed {
		edge, err = execCtx.Tx.InsertEdge(other, from, c.EdgeType, edgeProps)
	} else {
		edge, err = execCtx.Tx.InsertEdge(from, other, c.EdgeType, edgeProps)
	}
	if err != nil {
		return false, err
	}

	frame.Set(c.OutputOther, gval.Vertex(other))
	frame.Set(c.OutputEdge, gval.Edge(edge))
	return true, nil
}

func (c *CreateExpand) Reset() error { return c.Input.Reset() }
func (c *CreateExpand) Close() error { return c.Input.Close() }

// Delete removes the entities bound to Targets. Vertices with remaining
// incident edges fail unless Detach is set.
type Delete struct {
	Input   cursor.Cursor
	Targets []gval.Symbol
	Detach  bool
}

func (d *Delete) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := d.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	// Edges must be deleted before vertices in the same row: deleting a
	// vertex first would strand a reference to an edge that detach-delete
	// already implicitly removed.
	for _, sym := range d.Targets {
		v := frame.Get(sym)
		if v.Kind() != gval.KindEdge {
			continue
		}
		ref, _ := v.AsEdge()
		ea, ok := ref.(*accessor.EdgeAccessor)
		if !ok {
			continue
		}
		if err := execCtx.Tx.RemoveEdge(ea); err != nil {
			return false, cursor.Wrap(cursor.KindQueryRuntime, err, "DELETE edge")
		}
	}
	for _, sym := range d.Targets {
		v := frame.Get(sym)
		if v.Kind() != gval.KindVertex {
			continue
		}
		ref, _ := v.AsVertex()
		va, ok := ref.(*accessor.VertexAccessor)
		if !ok {
			continue
		}
		var err error
		if d.Detach {
			err = execCtx.Tx.DetachRemoveVertex(va)
		} else {
			err = execCtx.Tx.RemoveVertex(va)
		}
		if err != nil {
			return false, cursor.Wrap(cursor.KindQueryRuntime, err, "DELETE vertex")
		}
	}
	return true, nil
}

func (d *Delete) Reset() error { return d.Input.Reset() }
func (d *Delete) Close() error { return d.Input.Close() }

// PropertyWriteMode selects whether SetProperties replaces the whole
// property map or merges keys into it, the SET-vs-`+=` split.
type PropertyWriteMode uint8

const (
	WriteReplace PropertyWriteMode = iota
	WriteMerge
)

// SetProperty writes a single named property on the vertex or edge bound
// to Target.
type SetProperty struct {
	Input  cursor.Cursor
	Target gval.Symbol
	Name   string
	Value  gexpr.Expr
}

func (s *SetProperty) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := s.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	v, err := s.Value.Eval(execCtx, frame, accessor.ViewNew)
	if err != nil {
		return false, err
	}
	target := frame.Get(s.Target)
	switch target.Kind() {
	case gval.KindVertex:
		ref, _ := target.AsVertex()
		va, ok := ref.(*accessor.VertexAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "SET on a non-local vertex")
		}
		if v.IsNull() {
			err = va.RemoveProperty(s.Name)
		} else {
			err = va.SetProperty(s.Name, v)
		}
	case gval.KindEdge:
		ref, _ := target.AsEdge()
		ea, ok := ref.(*accessor.EdgeAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "SET on a non-local relationship")
		}
		err = ea.SetProperty(s.Name, v)
	default:
		return false, cursor.New(cursor.KindQueryRuntime, "SET target is not a node or relationship")
	}
	if err != nil {
		return false, cursor.Wrap(cursor.KindQueryRuntime, err, "SET property")
	}
	return true, nil
}

func (s *SetProperty) Reset() error { return s.Input.Reset() }
func (s *SetProperty) Close() error { return s.Input.Close() }

// SetProperties applies a whole map expression to Target under Mode.
type SetProperties struct {
	Input  cursor.Cursor
	Target gval.Symbol
	Value  gexpr.Expr
	Mode   PropertyWriteMode
}

func (s *SetProperties) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := s.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	v, err := s.Value.Eval(execCtx, frame, accessor.ViewNew)
	if err != nil {
		return false, err
	}
	newProps, ok := v.AsMap()
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "SET += requires a map value")
	}

	target := frame.Get(s.Target)
	switch target.Kind() {
	case gval.KindVertex:
		ref, _ := target.AsVertex()
		va, ok := ref.(*accessor.VertexAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "SET on a non-local vertex")
		}
		if s.Mode == WriteReplace {
			for k := range va.Properties() {
				if _, keep := newProps[k]; !keep {
					_ = va.RemoveProperty(k)
				}
			}
		}
		for k, pv := range newProps {
			if pv.IsNull() {
				_ = va.RemoveProperty(k)
				continue
			}
			if err := va.SetProperty(k, pv); err != nil {
				return false, cursor.Wrap(cursor.KindQueryRuntime, err, "SET properties")
			}
		}
	case gval.KindEdge:
		ref, _ := target.AsEdge()
		ea, ok := ref.(*accessor.EdgeAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "SET on a non-local relationship")
		}
		merged := newProps
		if s.Mode == WriteMerge {
			merged = make(map[string]gval.TypedValue, len(ea.Properties())+len(newProps))
			for k, ev := range ea.Properties() {
				merged[k] = ev
			}
			for k, pv := range newProps {
				merged[k] = pv
			}
		}
		if err := replaceEdgeProps(ea, merged); err != nil {
			return false, cursor.Wrap(cursor.KindQueryRuntime, err, "SET properties")
		}
	default:
		return false, cursor.New(cursor.KindQueryRuntime, "SET target is not a node or relationship")
	}
	return true, nil
}

func (s *SetProperties) Reset() error { return s.Input.Reset() }
func (s *SetProperties) Close() error { return s.Input.Close() }

// SetLabels adds Labels to the vertex bound to Target.
type SetLabels struct {
	Input  cursor.Cursor
	Target gval.Symbol
	Labels []string
}

func (s *SetLabels) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := s.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	ref, ok := frame.Get(s.Target).AsVertex()
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "SET labels target is not a node")
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "SET labels on a non-local vertex")
	}
	if err := va.SetLabels(s.Labels); err != nil {
		return false, cursor.Wrap(cursor.KindQueryRuntime, err, "SET labels")
	}
	return true, nil
}

func (s *SetLabels) Reset() error { return s.Input.Reset() }
func (s *SetLabels) Close() error { return s.Input.Close() }

// RemoveProperty deletes a single named property.
type RemoveProperty struct {
	Input  cursor.Cursor
	Target gval.Symbol
	Name   string
}

func (r *RemoveProperty) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := r.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	target := frame.Get(r.Target)
	switch target.Kind() {
	case gval.KindVertex:
		ref, _ := target.AsVertex()
		va, ok := ref.(*accessor.VertexAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "REMOVE on a non-local vertex")
		}
		if err := va.RemoveProperty(r.Name); err != nil {
			return false, cursor.Wrap(cursor.KindQueryRuntime, err, "REMOVE property")
		}
	case gval.KindEdge:
		ref, _ := target.AsEdge()
		ea, ok := ref.(*accessor.EdgeAccessor)
		if !ok {
			return false, cursor.New(cursor.KindQueryRuntime, "REMOVE on a non-local relationship")
		}
		props := ea.Properties()
		delete(props, r.Name)
		if err := replaceEdgeProps(ea, props); err != nil {
			return false, cursor.Wrap(cursor.KindQueryRuntime, err, "REMOVE property")
		}
	default:
		return false, cursor.New(cursor.KindQueryRuntime, "REMOVE target is not a node or relationship")
	}
	return true, nil
}

func (r *RemoveProperty) Reset() error { return r.Input.Reset() }
func (r *RemoveProperty) Close() error { return r.Input.Close() }

// RemoveLabels removes Labels from the vertex bound to Target.
type RemoveLabels struct {
	Input  cursor.Cursor
	Target gval.Symbol
	Labels []string
}

func (r *RemoveLabels) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := r.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	ref, ok := frame.Get(r.Target).AsVertex()
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "REMOVE labels target is not a node")
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "REMOVE labels on a non-local vertex")
	}
	if err := va.RemoveLabels(r.Labels); err != nil {
		return false, cursor.Wrap(cursor.KindQueryRuntime, err, "REMOVE labels")
	}
	return true, nil
}

func (r *RemoveLabels) Reset() error { return r.Input.Reset() }
func (r *RemoveLabels) Close() error { return r.Input.Close() }

func replaceEdgeProps(ea *accessor.EdgeAccessor, props map[string]gval.TypedValue) error {
	for k := range ea.Properties() {
		if _, keep := props[k]; !keep {
			if err := ea.SetProperty(k, gval.Null); err != nil {
				return err
			}
		}
	}
	for k, v := range props {
		if err := ea.SetProperty(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Accumulate drains its whole input before yielding anything, used to
// force write-visibility barriers ahead of a downstream read within the
// same query (e.g. between a MATCH and a subsequent MATCH over the write's
// effects).
type Accumulate struct {
	Input cursor.Cursor

	rows   []*gval.Frame
	pos    int
	loaded bool
}

func (a *Accumulate) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if !a.loaded {
		for {
			if err := cursor.CheckAbort(ctx, execCtx); err != nil {
				return false, err
			}
			row := gval.NewFrame(frame.Size())
			ok, err := a.Input.Pull(ctx, row, execCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			a.rows = append(a.rows, row.Clone())
		}
		a.loaded = true
	}
	if a.pos >= len(a.rows) {
		return false, nil
	}
	frame.CopyFrom(a.rows[a.pos])
	a.pos++
	return true, nil
}

func (a *Accumulate) Reset() error {
	a.loaded = false
	a.rows = nil
	a.pos = 0
	return a.Input.Reset()
}
func (a *Accumulate) Close() error { return a.Input.Close() }
