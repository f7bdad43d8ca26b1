package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// AggregateFunc names the supported aggregate kinds.
type AggregateFunc uint8

const (
	AggCount AggregateFunc = iota
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
	AggCollectList
	AggCollectMap
)

// AggregateExpr binds one aggregate function over Arg (Arg is nil for
// COUNT(*)) to an output symbol, with an optional CollectKey for
// COLLECT_MAP's map-entry key expression.
type AggregateExpr struct {
	Output     gval.Symbol
	Func       AggregateFunc
	Arg        gexpr.Expr
	CollectKey gexpr.Expr
	Distinct   bool
}

// Aggregate groups input rows by GroupKeys and computes Aggregates over
// each group. With no GroupKeys, the whole input forms
// a single implicit group, and an empty input still yields exactly one row
// carrying each aggregate's defined empty-input value (0 for COUNT/SUM,
// Null for AVG/MIN/MAX, an empty list/map for COLLECT).
type Aggregate struct {
	Input      cursor.Cursor
	GroupKeys  []NamedExpr
	Aggregates []AggregateExpr

	groups   []*aggGroup
	byKey    map[string]*aggGroup
	pos      int
	loaded   bool
}

type aggGroup struct {
	keyValues []gval.TypedValue
	states    []aggState
}

type aggState struct {
	count   int64
	sum     float64
	sumIsInt bool
	sumInt  int64
	min, max gval.TypedValue
	haveMinMax bool
	list    []gval.TypedValue
	dict    map[string]gval.TypedValue
	seen    map[string]struct{} // DISTINCT dedup
}

func (a *Aggregate) load(ctx context.Context, execCtx *cursor.ExecContext, size int) error {
	a.byKey = make(map[string]*aggGroup)
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return err
		}
		frame := gval.NewFrame(size)
		ok, err := a.Input.Pull(ctx, frame, execCtx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		keyVals := make([]gval.TypedValue, len(a.GroupKeys))
		for i, k := range a.GroupKeys {
			v, err := k.Expr.Eval(execCtx, frame, accessor.ViewNew)
			if err != nil {
				return err
			}
			keyVals[i] = v
		}
		key := aggGroupKey(keyVals)
		grp, ok := a.byKey[key]
		if !ok {
			grp = &aggGroup{keyValues: keyVals, states: make([]aggState, len(a.Aggregates))}
			for i := range grp.states {
				grp.states[i].dict = map[string]gval.TypedValue{}
				grp.states[i].seen = map[string]struct{}{}
			}
			a.byKey[key] = grp
			a.groups = append(a.groups, grp)
		}

		for i, agg := range a.Aggregates {
			if err := applyAggregate(execCtx, frame, &grp.states[i], agg); err != nil {
				return err
			}
		}
	}

	if len(a.groups) == 0 && len(a.GroupKeys) == 0 {
		grp := &aggGroup{states: make([]aggState, len(a.Aggregates))}
		for i := range grp.states {
			grp.states[i].dict = map[string]gval.TypedValue{}
		}
		a.groups = append(a.groups, grp)
	}
	a.loaded = true
	return nil
}

func aggGroupKey(vals []gval.TypedValue) string {
	out := make([]byte, 0, 16)
	for _, v := range vals {
		out = append(out, []byte(v.GoString())...)
		out = append(out, 0)
	}
	return string(out)
}

func applyAggregate(ec *cursor.ExecContext, frame *gval.Frame, st *aggState, agg AggregateExpr) error {
	if agg.Func == AggCountStar {
		st.count++
		return nil
	}
	v, err := agg.Arg.Eval(ec, frame, accessor.ViewNew)
	if err != nil {
		return err
	}
	if agg.Func != AggCollectList && agg.Func != AggCollectMap && v.IsNull() {
		return nil
	}
	if agg.Distinct {
		key := v.GoString()
		if _, dup := st.seen[key]; dup {
			return nil
		}
		st.seen[key] = struct{}{}
	}

	switch agg.Func {
	case AggCount:
		st.count++
	case AggSum:
		st.sum += mustNumeric(v)
		if i, ok := v.AsInt(); ok {
			st.sumInt += i
		} else {
			st.sumIsInt = false
		}
		if st.count == 0 {
			st.sumIsInt = v.Kind() == gval.KindInt
		}
		st.count++
	case AggAvg:
		st.sum += mustNumeric(v)
		st.count++
	case AggMin:
		if !st.haveMinMax {
			st.min, st.haveMinMax = v, true
		} else if c, ok := gval.Compare(v, st.min); ok && c < 0 {
			st.min = v
		}
	case AggMax:
		if !st.haveMinMax {
			st.max, st.haveMinMax = v, true
		} else if c, ok := gval.Compare(v, st.max); ok && c > 0 {
			st.max = v
		}
	case AggCollectList:
		if !v.IsNull() {
			st.list = append(st.list, v)
		}
	case AggCollectMap:
		if agg.CollectKey == nil {
			return cursor.New(cursor.KindSemantic, "COLLECT_MAP requires a key expression")
		}
		kv, err := agg.CollectKey.Eval(ec, frame, accessor.ViewNew)
		if err != nil {
			return err
		}
		k, ok := kv.AsString()
		if !ok {
			return cursor.New(cursor.KindQueryRuntime, "COLLECT_MAP key must be a string")
		}
		if !v.IsNull() {
			st.dict[k] = v
		}
	}
	return nil
}

func mustNumeric(v gval.TypedValue) float64 {
	f, _ := v.AsNumeric()
	return f
}

func resultOf(agg AggregateExpr, st aggState) gval.TypedValue {
	switch agg.Func {
	case AggCount, AggCountStar:
		return gval.Int(st.count)
	case AggSum:
		if st.count == 0 {
			return gval.Int(0)
		}
		if st.sumIsInt {
			return gval.Int(st.sumInt)
		}
		return gval.Double(st.sum)
	case AggAvg:
		if st.count == 0 {
			return gval.Null
		}
		return gval.Double(st.sum / float64(st.count))
	case AggMin:
		if !st.haveMinMax {
			return gval.Null
		}
		return st.min
	case AggMax:
		if !st.haveMinMax {
			return gval.Null
		}
		return st.max
	case AggCollectList:
		return gval.List(st.list)
	case AggCollectMap:
		return gval.Map(st.dict)
	}
	return gval.Null
}

func (a *Aggregate) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if !a.loaded {
		if err := a.load(ctx, execCtx, frame.Size()); err != nil {
			return false, err
		}
	}
	if a.pos >= len(a.groups) {
		return false, nil
	}
	grp := a.groups[a.pos]
	a.pos++

	for i, k := range a.GroupKeys {
		frame.Set(k.Symbol, grp.keyValues[i])
	}
	for i, agg := range a.Aggregates {
		frame.Set(agg.Output, resultOf(agg, grp.states[i]))
	}
	return true, nil
}

func (a *Aggregate) Reset() error {
	a.loaded = false
	a.groups = nil
	a.byKey = nil
	a.pos = 0
	return a.Input.Reset()
}
func (a *Aggregate) Close() error { return a.Input.Close() }
