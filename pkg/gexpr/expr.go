// Package gexpr implements an expression-tree evaluator: Null propagation,
// three-valued logic, type promotion, and property access against
// accessors held in the frame. It is grounded on pkg/cypher/functions.go's
// evaluate* family (evaluateArithmeticExpr, evaluateLogicalAnd/Or/Xor,
// evaluateComparisonExpr), reworked from string-slicing over raw query
// text into a walk over a typed AST, since pkg/refplan's planner hands
// operators pre-parsed expression trees rather than expression substrings.
package gexpr

import (
	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Expr is one node of an expression tree. Eval consults frame for symbol
// values, execCtx.Params for $-parameters, and switches any accessor it
// touches to view for the duration of the call, per the GraphView
// contract.
type Expr interface {
	Eval(execCtx *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error)
}

// Literal is a constant value baked in at plan time.
type Literal struct{ Value gval.TypedValue }

func (l Literal) Eval(*cursor.ExecContext, *gval.Frame, accessor.View) (gval.TypedValue, error) {
	return l.Value, nil
}

// SymbolRef reads a frame cell by planner-assigned position.
type SymbolRef struct{ Sym gval.Symbol }

func (s SymbolRef) Eval(_ *cursor.ExecContext, frame *gval.Frame, _ accessor.View) (gval.TypedValue, error) {
	return frame.Get(s.Sym), nil
}

// NamedParam and PositionalParam read from the query's ParameterSet.
type NamedParam struct{ Name string }

func (p NamedParam) Eval(ec *cursor.ExecContext, _ *gval.Frame, _ accessor.View) (gval.TypedValue, error) {
	if ec.Params == nil {
		return gval.Null, nil
	}
	if v, ok := ec.Params.ByName(p.Name); ok {
		return v, nil
	}
	return gval.Null, nil
}

type PositionalParam struct{ Position int }

func (p PositionalParam) Eval(ec *cursor.ExecContext, _ *gval.Frame, _ accessor.View) (gval.TypedValue, error) {
	if ec.Params == nil {
		return gval.Null, nil
	}
	if v, ok := ec.Params.ByPosition(p.Position); ok {
		return v, nil
	}
	return gval.Null, nil
}

// ListLiteral evaluates each element expression into a fresh list.
type ListLiteral struct{ Items []Expr }

func (l ListLiteral) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	out := make([]gval.TypedValue, len(l.Items))
	for i, item := range l.Items {
		v, err := item.Eval(ec, frame, view)
		if err != nil {
			return gval.Null, err
		}
		out[i] = v
	}
	return gval.List(out), nil
}

// MapLiteral evaluates each entry expression into a fresh map.
type MapLiteral struct{ Entries map[string]Expr }

func (m MapLiteral) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	out := make(map[string]gval.TypedValue, len(m.Entries))
	for k, item := range m.Entries {
		v, err := item.Eval(ec, frame, view)
		if err != nil {
			return gval.Null, err
		}
		out[k] = v
	}
	return gval.Map(out), nil
}

// PropertyLookup reads Name off the value Target evaluates to. Property
// access on Null yields Null, and on a Vertex/Edge yields the stored value
// or Null. Reading through a Vertex/Edge temporarily switches its accessor
// to view.
type PropertyLookup struct {
	Target Expr
	Name   string
}

func (p PropertyLookup) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	tv, err := p.Target.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if tv.IsNull() {
		return gval.Null, nil
	}
	switch tv.Kind() {
	case gval.KindVertex:
		ref, _ := tv.AsVertex()
		va, ok := ref.(*accessor.VertexAccessor)
		if !ok {
			return gval.Null, nil
		}
		return withVertexView(va, view, func() gval.TypedValue { return va.Property(p.Name) }), nil
	case gval.KindEdge:
		ref, _ := tv.AsEdge()
		ea, ok := ref.(*accessor.EdgeAccessor)
		if !ok {
			return gval.Null, nil
		}
		return withEdgeView(ea, view, func() gval.TypedValue { return ea.Property(p.Name) }), nil
	case gval.KindMap:
		m, _ := tv.AsMap()
		if v, ok := m[p.Name]; ok {
			return v, nil
		}
		return gval.Null, nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "property access on non-graph, non-map value %s", tv.Kind())
	}
}

func withVertexView(va *accessor.VertexAccessor, view accessor.View, fn func() gval.TypedValue) gval.TypedValue {
	if view == accessor.ViewAsIs {
		return fn()
	}
	saved := va.View()
	if view == accessor.ViewOld {
		va.SwitchOld()
	} else {
		va.SwitchNew()
	}
	defer func() {
		if saved == accessor.ViewOld {
			va.SwitchOld()
		} else {
			va.SwitchNew()
		}
	}()
	return fn()
}

func withEdgeView(ea *accessor.EdgeAccessor, view accessor.View, fn func() gval.TypedValue) gval.TypedValue {
	if view == accessor.ViewAsIs {
		return fn()
	}
	saved := ea.View()
	if view == accessor.ViewOld {
		ea.SwitchOld()
	} else {
		ea.SwitchNew()
	}
	defer func() {
		if saved == accessor.ViewOld {
			ea.SwitchOld()
		} else {
			ea.SwitchNew()
		}
	}()
	return fn()
}
