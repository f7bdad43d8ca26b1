package gexpr

import (
	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// ArithOp mirrors gval.Arith's op bytes plus '+' for Add, which has its
// own promotion rules (string/list concatenation) beyond plain numerics.
type ArithOp byte

const (
	OpAdd ArithOp = '+'
	OpSub ArithOp = '-'
	OpMul ArithOp = '*'
	OpDiv ArithOp = '/'
	OpMod ArithOp = '%'
	OpPow ArithOp = '^'
)

// Arithmetic evaluates X op Y with Int/Double promotion, delegating to
// gval.Add (for '+') or gval.Arith (everything else) for the actual
// numeric semantics.
type Arithmetic struct {
	Op   ArithOp
	X, Y Expr
}

func (a Arithmetic) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := a.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	rv, err := a.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}

	var result gval.TypedValue
	var evalErr error
	if a.Op == OpAdd {
		result, evalErr = gval.Add(lv, rv)
	} else {
		result, evalErr = gval.Arith(byte(a.Op), lv, rv)
	}
	if evalErr != nil {
		return gval.Null, cursor.Wrap(cursor.KindQueryRuntime, evalErr, "arithmetic error")
	}
	return result, nil
}

// UnaryMinus negates a numeric value; Null propagates.
type UnaryMinus struct{ X Expr }

func (u UnaryMinus) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	v, err := u.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if v.IsNull() {
		return gval.Null, nil
	}
	switch v.Kind() {
	case gval.KindInt:
		i, _ := v.AsInt()
		return gval.Int(-i), nil
	case gval.KindDouble:
		f, _ := v.AsDouble()
		return gval.Double(-f), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "unary minus on non-numeric %s", v.Kind())
	}
}

// StringConcat implements the `||` string/list concatenation operator. It
// combines operands with gval.Add, the same rules as '+': Null on either
// side gives Null, and operands Add cannot combine are a QueryRuntime error;
// nothing is coerced to a string.
type StringConcat struct{ X, Y Expr }

func (s StringConcat) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	lv, err := s.X.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	rv, err := s.Y.Eval(ec, frame, view)
	if err != nil {
		return gval.Null, err
	}
	if lv.IsNull() || rv.IsNull() {
		return gval.Null, nil
	}
	result, err := gval.Add(lv, rv)
	if err != nil {
		return gval.Null, cursor.Wrap(cursor.KindQueryRuntime, err, "concatenation error")
	}
	return result, nil
}

// WhenClause is one WHEN cond THEN result arm of a CaseExpr.
type WhenClause struct {
	Cond   Expr
	Result Expr
}

// CaseExpr evaluates each WhenClause in order and returns the first whose
// Cond is true; Else (nil defaults to Null) covers the fallthrough.
type CaseExpr struct {
	Whens []WhenClause
	Else  Expr
}

func (c CaseExpr) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	for _, w := range c.Whens {
		cond, err := w.Cond.Eval(ec, frame, view)
		if err != nil {
			return gval.Null, err
		}
		if isTrue(cond) {
			return w.Result.Eval(ec, frame, view)
		}
	}
	if c.Else == nil {
		return gval.Null, nil
	}
	return c.Else.Eval(ec, frame, view)
}

// FilterPredicate implements the filter-result contract: a Null result is
// treated as false, and a non-Boolean non-Null result is a QueryRuntime
// error.
func FilterPredicate(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View, expr Expr) (bool, error) {
	v, err := expr.Eval(ec, frame, view)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, cursor.New(cursor.KindQueryRuntime, "filter predicate produced non-boolean %s", v.Kind())
	}
	return b, nil
}
