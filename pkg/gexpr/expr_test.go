package gexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

func newExecCtx() (*cursor.ExecContext, *accessor.Transaction) {
	engine := gstore.NewMemoryEngine(1)
	tx := accessor.NewTransaction(engine, 1, accessor.NewDataManager(1, nil), nil)
	return &cursor.ExecContext{Tx: tx, Params: gval.NewParameterSet()}, tx
}

func TestAndThreeValuedLogic(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	v, err := And{Literal{gval.Bool(false)}, Literal{gval.Null}}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	assert.True(t, gval.Equal(v, gval.Bool(false)))

	v, err = And{Literal{gval.Null}, Literal{gval.Bool(true)}}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestOrShortCircuitsOnTrue(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	v, err := Or{Literal{gval.Bool(true)}, Literal{gval.Null}}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	b, _ := v.AsBool()
	assert.True(t, b)
}

func TestCompareEqualityNullYieldsNull(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	v, err := Compare{Op: OpEQ, X: Literal{gval.Null}, Y: Literal{gval.Int(1)}}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestArithmeticPromotion(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	v, err := Arithmetic{Op: OpAdd, X: Literal{gval.Int(2)}, Y: Literal{gval.Double(1.5)}}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	f, ok := v.AsDouble()
	require.True(t, ok)
	assert.Equal(t, 3.5, f)
}

func TestPropertyLookupOnVertex(t *testing.T) {
	ec, tx := newExecCtx()
	frame := gval.NewFrame(1)

	v := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Ann")})
	frame.SetAt(0, gval.Vertex(v))

	sym := gval.Symbol{Name: "n", Position: 0}
	result, err := PropertyLookup{Target: SymbolRef{Sym: sym}, Name: "name"}.Eval(ec, frame, accessor.ViewNew)
	require.NoError(t, err)
	s, ok := result.AsString()
	require.True(t, ok)
	assert.Equal(t, "Ann", s)
}

func TestPropertyLookupOnNullIsNull(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(1)
	sym := gval.Symbol{Name: "n", Position: 0}

	result, err := PropertyLookup{Target: SymbolRef{Sym: sym}, Name: "name"}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	assert.True(t, result.IsNull())
}

func TestFilterPredicateTreatsNullAsFalse(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	ok, err := FilterPredicate(ec, frame, accessor.ViewOld, Literal{gval.Null})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterPredicateRejectsNonBoolean(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	_, err := FilterPredicate(ec, frame, accessor.ViewOld, Literal{gval.Int(1)})
	require.Error(t, err)
	ce, ok := cursor.AsError(err)
	require.True(t, ok)
	assert.Equal(t, cursor.KindQueryRuntime, ce.Kind)
}

func TestInListWithNullMember(t *testing.T) {
	ec, _ := newExecCtx()
	frame := gval.NewFrame(0)

	list := ListLiteral{Items: []Expr{Literal{gval.Int(1)}, Literal{gval.Null}}}
	v, err := InList{X: Literal{gval.Int(5)}, List: list}.Eval(ec, frame, accessor.ViewOld)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestBuiltinLabelsAndSize(t *testing.T) {
	ec, tx := newExecCtx()
	frame := gval.NewFrame(1)
	v := tx.InsertVertex([]string{"Person", "Employee"}, nil)
	frame.SetAt(0, gval.Vertex(v))
	sym := gval.Symbol{Name: "n", Position: 0}

	result, err := FunctionCall{Name: "labels", Args: []Expr{SymbolRef{Sym: sym}}}.Eval(ec, frame, accessor.ViewNew)
	require.NoError(t, err)
	items, _ := result.AsList()
	assert.Len(t, items, 2)

	sizeResult, err := FunctionCall{Name: "size", Args: []Expr{Literal{result}}}.Eval(ec, frame, accessor.ViewNew)
	require.NoError(t, err)
	n, _ := sizeResult.AsInt()
	assert.Equal(t, int64(2), n)
}
