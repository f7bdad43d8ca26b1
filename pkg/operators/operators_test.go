package operators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

func newTestExecCtx() (*cursor.ExecContext, *accessor.Transaction) {
	engine := gstore.NewMemoryEngine(1)
	tx := accessor.NewTransaction(engine, 1, accessor.NewDataManager(1, nil), nil)
	return &cursor.ExecContext{Tx: tx, Params: gval.NewParameterSet()}, tx
}

func drain(t *testing.T, c cursor.Cursor, execCtx *cursor.ExecContext, size int) []*gval.Frame {
	t.Helper()
	var out []*gval.Frame
	for {
		frame := gval.NewFrame(size)
		ok, err := c.Pull(context.Background(), frame, execCtx)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, frame.Clone())
	}
}

func TestScanAllUnfilteredCountsEveryVertex(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"Person"}, nil)
	tx.InsertVertex([]string{"Company"}, nil)
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	rows := drain(t, scan, ec, 1)
	assert.Len(t, rows, 2)
}

func TestExpandYieldsEdgeAndOtherVertex(t *testing.T) {
	ec, tx := newTestExecCtx()
	a := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Ann")})
	b := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Bo")})
	_, err := tx.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	nSym := gval.Symbol{Name: "n", Position: 0}
	eSym := gval.Symbol{Name: "r", Position: 1}
	oSym := gval.Symbol{Name: "m", Position: 2}

	once := NewOnce()
	frame := gval.NewFrame(3)
	frame.Set(nSym, gval.Vertex(tx.Vertex(a.Address())))

	expand := &Expand{
		Input:       &fixedInput{row: frame, once: once},
		InputVertex: nSym,
		OutputEdge:  eSym,
		OutputOther: oSym,
		Direction:   gstore.DirOut,
		View:        accessor.ViewOld,
	}

	rows := drain(t, expand, ec, 3)
	require.Len(t, rows, 1)
	ref, ok := rows[0].Get(oSym).AsVertex()
	require.True(t, ok)
	va := ref.(*accessor.VertexAccessor)
	name := va.Property("name")
	s, _ := name.AsString()
	assert.Equal(t, "Bo", s)
}

// TestExpandJoinsPendingFutureOnceReady drives Pull directly through
// EMITTING_LOCAL and AWAITING_FUTURES with hand-populated queues, standing
// in for a genuinely remote peer (a single-worker test engine can't produce
// one). It checks the local step streams first, a not-yet-ready future
// doesn't stall Pull forever, and the future's row comes out once its
// goroutine closes ready.
func TestExpandJoinsPendingFutureOnceReady(t *testing.T) {
	ec, tx := newTestExecCtx()
	a := tx.InsertVertex([]string{"Person"}, nil)
	b := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("local")})
	c := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("remote")})
	localEdge, err := tx.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)
	remoteEdge, err := tx.InsertEdge(a, c, "KNOWS", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	nSym := gval.Symbol{Name: "n", Position: 0}
	eSym := gval.Symbol{Name: "r", Position: 1}
	oSym := gval.Symbol{Name: "m", Position: 2}

	expand := &Expand{
		Input:        &fixedInput{row: gval.NewFrame(3), once: &Once{done: true}},
		InputVertex:  nSym,
		OutputEdge:   eSym,
		OutputOther:  oSym,
		Direction:    gstore.DirOut,
		View:         accessor.ViewOld,
		PollInterval: time.Millisecond,
	}
	expand.state = expandEmittingLocal
	expand.local = []expandStep{{inc: gstore.Incidence{Peer: b.Address(), Edge: localEdge.Address(), TypeName: "KNOWS"}, fromOut: true}}

	ready := make(chan struct{})
	expand.futures = []*expandFuture{{
		ready: ready,
		edge:  tx.Edge(remoteEdge.Address()),
		other: tx.Vertex(c.Address()),
	}}
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(ready)
	}()

	// The saved frame is what Pull restores at the top of every iteration;
	// it must carry the input vertex binding the local step's incidence
	// resolves against.
	frame := gval.NewFrame(3)
	rootFrame := gval.NewFrame(3)
	rootFrame.Set(nSym, gval.Vertex(tx.Vertex(a.Address())))
	expand.saved = rootFrame.Snapshot(nil)

	first, err := expand.Pull(context.Background(), frame, ec)
	require.NoError(t, err)
	require.True(t, first)
	ref, ok := frame.Get(oSym).AsVertex()
	require.True(t, ok)
	name := ref.(*accessor.VertexAccessor).Property("name")
	s, _ := name.AsString()
	assert.Equal(t, "local", s)

	second, err := expand.Pull(context.Background(), frame, ec)
	require.NoError(t, err)
	require.True(t, second)
	ref, ok = frame.Get(oSym).AsVertex()
	require.True(t, ok)
	name = ref.(*accessor.VertexAccessor).Property("name")
	s, _ = name.AsString()
	assert.Equal(t, "remote", s)
}

// fixedInput yields exactly one caller-supplied frame, then exhausts —
// used to seed operator tests without a real upstream ScanAll.
type fixedInput struct {
	row  *gval.Frame
	once *Once
}

func (f *fixedInput) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	ok, err := f.once.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	frame.CopyFrom(f.row)
	return true, nil
}
func (f *fixedInput) Reset() error { return f.once.Reset() }
func (f *fixedInput) Close() error { return nil }

func TestFilterDropsFalseRows(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(20)})
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(40)})
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	pred := gexpr.Compare{
		Op: gexpr.OpGE,
		X:  gexpr.PropertyLookup{Target: gexpr.SymbolRef{Sym: sym}, Name: "age"},
		Y:  gexpr.Literal{Value: gval.Int(30)},
	}
	filter := &Filter{Input: scan, Predicate: pred, View: accessor.ViewOld}

	rows := drain(t, filter, ec, 1)
	require.Len(t, rows, 1)
	ref, _ := rows[0].Get(sym).AsVertex()
	va := ref.(*accessor.VertexAccessor)
	age := va.Property("age")
	n, _ := age.AsInt()
	assert.Equal(t, int64(40), n)
}

func TestLimitCapsRowCount(t *testing.T) {
	ec, tx := newTestExecCtx()
	for i := 0; i < 5; i++ {
		tx.InsertVertex([]string{"Person"}, nil)
	}
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	limit := &Limit{Input: scan, Count: gexpr.Literal{Value: gval.Int(2)}}

	rows := drain(t, limit, ec, 1)
	assert.Len(t, rows, 2)
}

func TestAggregateCountGroupedByLabelCount(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(20)})
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(30)})
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	countSym := gval.Symbol{Name: "c", Position: 1}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	agg := &Aggregate{
		Input: scan,
		Aggregates: []AggregateExpr{
			{Output: countSym, Func: AggCountStar},
		},
	}

	rows := drain(t, agg, ec, 2)
	require.Len(t, rows, 1)
	n, _ := rows[0].Get(countSym).AsInt()
	assert.Equal(t, int64(2), n)
}

func TestAggregateEmptyInputYieldsDefaults(t *testing.T) {
	ec, _ := newTestExecCtx()
	sym := gval.Symbol{Name: "n", Position: 0}
	countSym := gval.Symbol{Name: "c", Position: 1}
	sumSym := gval.Symbol{Name: "s", Position: 2}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	agg := &Aggregate{
		Input: scan,
		Aggregates: []AggregateExpr{
			{Output: countSym, Func: AggCountStar},
			{Output: sumSym, Func: AggSum, Arg: gexpr.PropertyLookup{Target: gexpr.SymbolRef{Sym: sym}, Name: "age"}},
		},
	}

	rows := drain(t, agg, ec, 3)
	require.Len(t, rows, 1)
	n, _ := rows[0].Get(countSym).AsInt()
	assert.Equal(t, int64(0), n)
	s := rows[0].Get(sumSym)
	sn, _ := s.AsInt()
	assert.Equal(t, int64(0), sn)
}

func TestUnwindProducesOneRowPerElement(t *testing.T) {
	ec, _ := newTestExecCtx()
	outSym := gval.Symbol{Name: "x", Position: 0}
	list := gexpr.ListLiteral{Items: []gexpr.Expr{
		gexpr.Literal{Value: gval.Int(1)},
		gexpr.Literal{Value: gval.Int(2)},
		gexpr.Literal{Value: gval.Int(3)},
	}}
	unwind := &Unwind{Input: NewOnce(), List: list, Output: outSym}

	rows := drain(t, unwind, ec, 1)
	require.Len(t, rows, 3)
	n, _ := rows[2].Get(outSym).AsInt()
	assert.Equal(t, int64(3), n)
}

func TestCreateNodeInsertsAndBindsVertex(t *testing.T) {
	ec, _ := newTestExecCtx()
	outSym := gval.Symbol{Name: "n", Position: 0}
	create := &CreateNode{
		Input:  NewOnce(),
		Output: outSym,
		Labels: []string{"Person"},
		Properties: []PropertyExpr{
			{Name: "name", Expr: gexpr.Literal{Value: gval.String("Cy")}},
		},
	}

	rows := drain(t, create, ec, 1)
	require.Len(t, rows, 1)
	ref, ok := rows[0].Get(outSym).AsVertex()
	require.True(t, ok)
	va := ref.(*accessor.VertexAccessor)
	va.SwitchNew()
	assert.True(t, va.HasLabel("Person"))
}

func TestDeleteRemovesVertexWithNoEdges(t *testing.T) {
	ec, tx := newTestExecCtx()
	v := tx.InsertVertex([]string{"Person"}, nil)
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	frame := gval.NewFrame(1)
	frame.Set(sym, gval.Vertex(v))
	del := &Delete{Input: &fixedInput{row: frame, once: NewOnce()}, Targets: []gval.Symbol{sym}}

	rows := drain(t, del, ec, 1)
	require.Len(t, rows, 1)
	tx.AdvanceCommand()
	assert.False(t, tx.Vertex(v.Address()).Exists())
}

func TestOrderBySortsAscendingNullsLast(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(30)})
	tx.InsertVertex([]string{"Person"}, nil)
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(10)})
	tx.AdvanceCommand()

	sym := gval.Symbol{Name: "n", Position: 0}
	scan := &ScanAll{OutputVertex: sym, View: accessor.ViewOld}
	order := &OrderBy{
		Input: scan,
		Keys: []OrderKey{
			{Expr: gexpr.PropertyLookup{Target: gexpr.SymbolRef{Sym: sym}, Name: "age"}},
		},
	}

	rows := drain(t, order, ec, 1)
	require.Len(t, rows, 3)
	ref0, _ := rows[0].Get(sym).AsVertex()
	first := ref0.(*accessor.VertexAccessor).Property("age")
	n, _ := first.AsInt()
	assert.Equal(t, int64(10), n)

	refLast, _ := rows[2].Get(sym).AsVertex()
	last := refLast.(*accessor.VertexAccessor).Property("age")
	assert.True(t, last.IsNull())
}

func TestMergeForwardsEveryMatchRowBeforeAdvancing(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"seen": gval.Bool(false)})
	tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"seen": gval.Bool(false)})
	tx.AdvanceCommand()

	outSym := gval.Symbol{Name: "p", Position: 0}
	input := &fixedInput{row: gval.NewFrame(1), once: NewOnce()}
	match := &ScanAll{OutputVertex: outSym, Label: "Person", View: accessor.ViewOld}

	merge := &Merge{
		Input:  input,
		Match:  match,
		Output: outSym,
		OnMatch: []PropertyExpr{
			{Name: "seen", Expr: gexpr.Literal{Value: gval.Bool(true)}},
		},
	}

	rows := drain(t, merge, ec, 1)
	require.Len(t, rows, 2, "every row the match branch yields for the input row must be forwarded")
	for _, row := range rows {
		ref, ok := row.Get(outSym).AsVertex()
		require.True(t, ok)
		va := ref.(*accessor.VertexAccessor)
		va.SwitchNew()
		seen, _ := va.Property("seen").AsBool()
		assert.True(t, seen, "OnMatch must apply to every matched row, not just the first")
	}
}

func TestMergeCreatesWhenMatchYieldsNothing(t *testing.T) {
	ec, _ := newTestExecCtx()

	outSym := gval.Symbol{Name: "p", Position: 0}
	input := &fixedInput{row: gval.NewFrame(1), once: NewOnce()}
	match := &ScanAll{OutputVertex: outSym, Label: "Person", View: accessor.ViewOld}

	merge := &Merge{
		Input:       input,
		Match:       match,
		Labels:      []string{"Person"},
		Output:      outSym,
		CreateProps: []PropertyExpr{{Name: "name", Expr: gexpr.Literal{Value: gval.String("Ada")}}},
		OnCreate: []PropertyExpr{
			{Name: "created", Expr: gexpr.Literal{Value: gval.Bool(true)}},
		},
	}

	rows := drain(t, merge, ec, 1)
	require.Len(t, rows, 1)
	ref, ok := rows[0].Get(outSym).AsVertex()
	require.True(t, ok)
	va := ref.(*accessor.VertexAccessor)
	created, _ := va.Property("created").AsBool()
	assert.True(t, created)
	name, _ := va.Property("name").AsString()
	assert.Equal(t, "Ada", name)
}

func TestExpandVariableFiltersToExistingTargetVertex(t *testing.T) {
	ec, tx := newTestExecCtx()
	a := tx.InsertVertex([]string{"Person"}, nil)
	b := tx.InsertVertex([]string{"Person"}, nil)
	c := tx.InsertVertex([]string{"Person"}, nil)
	d := tx.InsertVertex([]string{"Person"}, nil)
	_, err := tx.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)
	_, err = tx.InsertEdge(b, c, "KNOWS", nil)
	require.NoError(t, err)
	_, err = tx.InsertEdge(a, d, "KNOWS", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	nSym := gval.Symbol{Name: "a", Position: 0}
	targetSym := gval.Symbol{Name: "c", Position: 1}
	otherSym := gval.Symbol{Name: "m", Position: 2}

	frame := gval.NewFrame(3)
	frame.Set(nSym, gval.Vertex(tx.Vertex(a.Address())))
	frame.Set(targetSym, gval.Vertex(tx.Vertex(c.Address())))

	expand := &ExpandVariable{
		Input:        &fixedInput{row: frame, once: NewOnce()},
		InputVertex:  nSym,
		TargetVertex: targetSym,
		OutputOther:  otherSym,
		Direction:    gstore.DirOut,
		MinHops:      1,
		MaxHops:      2,
	}

	rows := drain(t, expand, ec, 3)
	require.Len(t, rows, 1, "only the path ending at the pre-bound target vertex is yielded")
	ref, ok := rows[0].Get(otherSym).AsVertex()
	require.True(t, ok)
	assert.Equal(t, c.Address(), ref.(*accessor.VertexAccessor).Address())
}

func TestExpandBFSFiltersToExistingTargetVertex(t *testing.T) {
	ec, tx := newTestExecCtx()
	a := tx.InsertVertex([]string{"Person"}, nil)
	b := tx.InsertVertex([]string{"Person"}, nil)
	c := tx.InsertVertex([]string{"Person"}, nil)
	d := tx.InsertVertex([]string{"Person"}, nil)
	_, err := tx.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)
	_, err = tx.InsertEdge(b, c, "KNOWS", nil)
	require.NoError(t, err)
	_, err = tx.InsertEdge(a, d, "KNOWS", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	nSym := gval.Symbol{Name: "a", Position: 0}
	targetSym := gval.Symbol{Name: "c", Position: 1}
	otherSym := gval.Symbol{Name: "m", Position: 2}

	frame := gval.NewFrame(3)
	frame.Set(nSym, gval.Vertex(tx.Vertex(a.Address())))
	frame.Set(targetSym, gval.Vertex(tx.Vertex(c.Address())))

	expand := &ExpandBFS{
		Input:        &fixedInput{row: frame, once: NewOnce()},
		InputVertex:  nSym,
		TargetVertex: targetSym,
		OutputOther:  otherSym,
		Direction:    gstore.DirOut,
		MaxHops:      2,
	}

	rows := drain(t, expand, ec, 3)
	require.Len(t, rows, 1, "only the path ending at the pre-bound target vertex is yielded")
	ref, ok := rows[0].Get(otherSym).AsVertex()
	require.True(t, ok)
	assert.Equal(t, c.Address(), ref.(*accessor.VertexAccessor).Address())
}

func TestCartesianRestoresBothProjections(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.InsertVertex([]string{"A"}, map[string]gval.TypedValue{"n": gval.Int(1)})
	tx.InsertVertex([]string{"A"}, map[string]gval.TypedValue{"n": gval.Int(2)})
	tx.InsertVertex([]string{"B"}, map[string]gval.TypedValue{"n": gval.Int(9)})
	tx.AdvanceCommand()

	aSym := gval.Symbol{Name: "a", Position: 0}
	bSym := gval.Symbol{Name: "b", Position: 1}

	left := &ScanAll{OutputVertex: aSym, Label: "A", View: accessor.ViewOld}
	right := &ScanAll{OutputVertex: bSym, Label: "B", View: accessor.ViewOld}
	cart := &Cartesian{Left: left, Right: right}

	rows := drain(t, cart, ec, 2)
	require.Len(t, rows, 2)
	for _, row := range rows {
		aRef, ok := row.Get(aSym).AsVertex()
		require.True(t, ok, "left projection must survive the merge")
		bRef, ok := row.Get(bSym).AsVertex()
		require.True(t, ok, "right projection must survive the merge")
		bn, _ := bRef.(*accessor.VertexAccessor).Property("n").AsInt()
		assert.Equal(t, int64(9), bn)
		_ = aRef
	}
}
