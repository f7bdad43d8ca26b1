package gexpr

import (
	"strings"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// BuiltinFunc is a scalar function callable from an expression tree.
type BuiltinFunc func(args []gval.TypedValue) (gval.TypedValue, error)

// builtins is the scalar function table, grounded on the surface
// pkg/cypher/functions.go exposes through its evaluate* dispatch
// (id/labels/type/keys/size/exists and the string/numeric coercions),
// reworked into a name-keyed table of pure functions over already
// -evaluated arguments instead of that file's string-splicing approach.
var builtins = map[string]BuiltinFunc{
	"id":         fnID,
	"labels":     fnLabels,
	"type":       fnType,
	"keys":       fnKeys,
	"size":       fnSize,
	"exists":     fnExists,
	"tostring":   fnToString,
	"tointeger":  fnToInteger,
	"tofloat":    fnToFloat,
	"toboolean":  fnToBoolean,
	"coalesce":   fnCoalesce,
	"startnode":  fnStartNode,
	"endnode":    fnEndNode,
	"properties": fnProperties,
	"length":     fnLength,
}

// FunctionCall evaluates its arguments (with the invocation's view
// applied to any accessor argument) and dispatches to the named builtin.
type FunctionCall struct {
	Name string
	Args []Expr
}

func (f FunctionCall) Eval(ec *cursor.ExecContext, frame *gval.Frame, view accessor.View) (gval.TypedValue, error) {
	fn, ok := builtins[strings.ToLower(f.Name)]
	if !ok {
		return gval.Null, cursor.New(cursor.KindSemantic, "unknown function %q", f.Name)
	}
	args := make([]gval.TypedValue, len(f.Args))
	for i, a := range f.Args {
		v, err := a.Eval(ec, frame, view)
		if err != nil {
			return gval.Null, err
		}
		args[i] = v
	}
	return fn(args)
}

func fnID(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "id() takes exactly one argument")
	}
	switch args[0].Kind() {
	case gval.KindVertex:
		v, _ := args[0].AsVertex()
		return gval.Int(int64(v.VertexAddr())), nil
	case gval.KindEdge:
		e, _ := args[0].AsEdge()
		return gval.Int(int64(e.EdgeAddr())), nil
	case gval.KindNull:
		return gval.Null, nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "id() applied to non-graph value")
	}
}

func fnLabels(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "labels() takes exactly one argument")
	}
	if args[0].IsNull() {
		return gval.Null, nil
	}
	ref, ok := args[0].AsVertex()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "labels() applied to a non-vertex value")
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return gval.List(nil), nil
	}
	labels := va.Labels()
	out := make([]gval.TypedValue, len(labels))
	for i, l := range labels {
		out[i] = gval.String(l)
	}
	return gval.List(out), nil
}

func fnType(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "type() takes exactly one argument")
	}
	if args[0].IsNull() {
		return gval.Null, nil
	}
	ref, ok := args[0].AsEdge()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "type() applied to a non-relationship value")
	}
	ea, ok := ref.(*accessor.EdgeAccessor)
	if !ok {
		return gval.Null, nil
	}
	return gval.String(ea.Type()), nil
}

func fnKeys(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "keys() takes exactly one argument")
	}
	var props map[string]gval.TypedValue
	switch args[0].Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindMap:
		props, _ = args[0].AsMap()
	case gval.KindVertex:
		ref, _ := args[0].AsVertex()
		if va, ok := ref.(*accessor.VertexAccessor); ok {
			props = va.Properties()
		}
	case gval.KindEdge:
		ref, _ := args[0].AsEdge()
		if ea, ok := ref.(*accessor.EdgeAccessor); ok {
			props = ea.Properties()
		}
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "keys() applied to unsupported value")
	}
	out := make([]gval.TypedValue, 0, len(props))
	for k := range props {
		out = append(out, gval.String(k))
	}
	return gval.List(out), nil
}

func fnSize(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "size() takes exactly one argument")
	}
	switch args[0].Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindList:
		l, _ := args[0].AsList()
		return gval.Int(int64(len(l))), nil
	case gval.KindString:
		s, _ := args[0].AsString()
		return gval.Int(int64(len(s))), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "size() applied to unsupported value")
	}
}

func fnExists(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "exists() takes exactly one argument")
	}
	return gval.Bool(!args[0].IsNull()), nil
}

func fnToString(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "toString() takes exactly one argument")
	}
	v := args[0]
	switch v.Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindString:
		return v, nil
	case gval.KindInt, gval.KindDouble, gval.KindBool:
		return gval.String(v.GoString()), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "toString() applied to unsupported value")
	}
}

func fnToInteger(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "toInteger() takes exactly one argument")
	}
	v := args[0]
	switch v.Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindInt:
		return v, nil
	case gval.KindDouble:
		f, _ := v.AsDouble()
		return gval.Int(int64(f)), nil
	case gval.KindString:
		s, _ := v.AsString()
		var i int64
		var parsed int
		if n, err := parseInt(s); err == nil {
			i, parsed = n, 1
		}
		if parsed == 0 {
			return gval.Null, nil
		}
		return gval.Int(i), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "toInteger() applied to unsupported value")
	}
}

func fnToFloat(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "toFloat() takes exactly one argument")
	}
	f, ok := args[0].AsNumeric()
	if !ok {
		if args[0].IsNull() {
			return gval.Null, nil
		}
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "toFloat() applied to non-numeric value")
	}
	return gval.Double(f), nil
}

func fnToBoolean(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "toBoolean() takes exactly one argument")
	}
	v := args[0]
	switch v.Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindBool:
		return v, nil
	case gval.KindString:
		s, _ := v.AsString()
		switch strings.ToLower(s) {
		case "true":
			return gval.Bool(true), nil
		case "false":
			return gval.Bool(false), nil
		default:
			return gval.Null, nil
		}
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "toBoolean() applied to unsupported value")
	}
}

func fnCoalesce(args []gval.TypedValue) (gval.TypedValue, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return gval.Null, nil
}

func fnStartNode(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "startNode() takes exactly one argument")
	}
	ref, ok := args[0].AsEdge()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "startNode() applied to a non-relationship value")
	}
	ea, ok := ref.(*accessor.EdgeAccessor)
	if !ok {
		return gval.Null, nil
	}
	return gval.Vertex(ea.StartVertex()), nil
}

func fnEndNode(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "endNode() takes exactly one argument")
	}
	ref, ok := args[0].AsEdge()
	if !ok {
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "endNode() applied to a non-relationship value")
	}
	ea, ok := ref.(*accessor.EdgeAccessor)
	if !ok {
		return gval.Null, nil
	}
	return gval.Vertex(ea.EndVertex()), nil
}

func fnProperties(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "properties() takes exactly one argument")
	}
	switch args[0].Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindMap:
		return args[0], nil
	case gval.KindVertex:
		ref, _ := args[0].AsVertex()
		if va, ok := ref.(*accessor.VertexAccessor); ok {
			return gval.Map(va.Properties()), nil
		}
	case gval.KindEdge:
		ref, _ := args[0].AsEdge()
		if ea, ok := ref.(*accessor.EdgeAccessor); ok {
			return gval.Map(ea.Properties()), nil
		}
	}
	return gval.Null, cursor.New(cursor.KindQueryRuntime, "properties() applied to unsupported value")
}

// fnLength returns the edge count of a path, or the element count of a
// list — the latter covers a variable-length relationship binding, which
// evaluates to a list of edges rather than a constructed path.
func fnLength(args []gval.TypedValue) (gval.TypedValue, error) {
	if len(args) != 1 {
		return gval.Null, cursor.New(cursor.KindSemantic, "length() takes exactly one argument")
	}
	switch args[0].Kind() {
	case gval.KindNull:
		return gval.Null, nil
	case gval.KindPath:
		p, _ := args[0].AsPath()
		return gval.Int(int64(len(p.PathEdges()))), nil
	case gval.KindList:
		l, _ := args[0].AsList()
		return gval.Int(int64(len(l))), nil
	case gval.KindString:
		s, _ := args[0].AsString()
		return gval.Int(int64(len(s))), nil
	default:
		return gval.Null, cursor.New(cursor.KindQueryRuntime, "length() applied to unsupported value")
	}
}

// parseInt is a minimal base-10 integer parse used by toInteger() so this
// package does not need strconv's full float/int grammar surface for a
// single call site.
func parseInt(s string) (int64, error) {
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, cursor.New(cursor.KindQueryRuntime, "empty integer string")
	}
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, cursor.New(cursor.KindQueryRuntime, "invalid integer string")
		}
		n = n*10 + int64(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
