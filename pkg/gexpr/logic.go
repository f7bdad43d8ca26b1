package gexpr

import (
	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Not implements three-valued negation: Not(Null) = Null.
type Not struct{ X Expr }

func (n Not) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	v, err := n.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if v.IsNull() {
		return gval.Null, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "NOT applied to non-boolean %s", v.Kind())
	}
	return gval.Bool(!b), nil
}

// And implements Kleene three-valued AND: false shortcuts regardless of
// the other operand's nullity; Null combined with true (or unevaluated
// truth) yields Null.
type And struct{ X, Y Expr }

func (a And) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := a.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if isFalse(lv) {
		return gval.Bool(false), nil
	}
	rv, err := a.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if isFalse(rv) {
		return gval.Bool(false), nil
	}
	if lv.IsNull() || rv.IsNull() {
		return gval.Null, nil
	}
	lb, lok := lv.AsBool()
	rb, rok := rv.AsBool()
	if !lok || !rok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "AND applied to non-boolean operand")
	}
	return gval.Bool(lb && rb), nil
}

// Or implements Kleene three-valued OR.
type Or struct{ X, Y Expr }

func (o Or) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := o.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if isTrue(lv) {
		return gval.Bool(true), nil
	}
	rv, err := o.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if isTrue(rv) {
		return gval.Bool(true), nil
	}
	if lv.IsNull() || rv.IsNull() {
		return gval.Null, nil
	}
	lb, lok := lv.AsBool()
	rb, rok := rv.AsBool()
	if !lok || !rok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "OR applied to non-boolean operand")
	}
	return gval.Bool(lb || rb), nil
}

// Xor has no short-circuit; either operand Null makes the result Null.
type Xor struct{ X, Y Expr }

func (x Xor) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := x.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	rv, err := x.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if lv.IsNull() || rv.IsNull() {
		return gval.Null, nil
	}
	lb, lok := lv.AsBool()
	rb, rok := rv.AsBool()
	if !lok || !rok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "XOR applied to non-boolean operand")
	}
	return gval.Bool(lb != rb), nil
}

func isTrue(v gval.TypedValue) bool {
	b, ok := v.AsBool()
	return ok && b
}

func isFalse(v gval.TypedValue) bool {
	b, ok := v.AsBool()
	return ok && !b
}

// IsNullCheck implements IS NULL / IS NOT NULL.
type IsNullCheck struct {
	X      Expr
	Negate bool
}

func (c IsNullCheck) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	v, err := c.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	result := v.IsNull()
	if c.Negate {
		result = !result
	}
	return gval.Bool(result), nil
}

// CompareOp is one of =, <>, <, <=, >, >=.
type CompareOp uint8

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// Compare evaluates X op Y, using gval.Compare's promotion rules.
// Comparison against Null (or an incomparable pair) yields Null rather
// than raising an error.
type Compare struct {
	Op   CompareOp
	X, Y Expr
}

func (c Compare) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := c.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	rv, err := c.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}

	if c.Op == OpEQ || c.Op == OpNE {
		if lv.IsNull() || rv.IsNull() {
			return gval.Null, nil
		}
		eq := gval.Equal(lv, rv)
		if c.Op == OpNE {
			eq = !eq
		}
		return gval.Bool(eq), nil
	}

	if lv.IsNull() || rv.IsNull() {
		return gval.Null, nil
	}
	cmp, ok := gval.Compare(lv, rv)
	if !ok {
		return gval.Null, nil
	}
	switch c.Op {
	case OpLT:
		return gval.Bool(cmp < 0), nil
	case OpLE:
		return gval.Bool(cmp <= 0), nil
	case OpGT:
		return gval.Bool(cmp > 0), nil
	case OpGE:
		return gval.Bool(cmp >= 0), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "unknown comparison operator")
	}
}

// InList implements the `X IN list` predicate. A missing match against a
// list containing Null yields Null rather than false, per Cypher's
// three-valued IN semantics.
type InList struct {
	X    Expr
	List Expr
}

func (in InList) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	xv, err := in.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	lv, err := in.List.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if lv.IsNull() {
		return gval.Null, nil
	}
	items, ok := lv.AsList()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "IN applied to non-list value %s", lv.Kind())
	}
	sawNull := xv.IsNull()
	for _, item := range items {
		if item.IsNull() {
			sawNull = true
			continue
		}
		if xv.IsNull() {
			continue
		}
		if gval.Equal(xv, item) {
			return gval.Bool(true), nil
		}
	}
	if sawNull {
		return gval.Null, nil
	}
	return gval.Bool(false), nil
}
