package interpreter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/interpreter"
	"github.com/nornic-labs/graphcore/pkg/refplan"
)

func newInterpreter() *interpreter.Interpreter {
	engine := gstore.NewMemoryEngine(1)
	return interpreter.New(engine, refplan.Parse)
}

func TestExecuteCreateThenMatch(t *testing.T) {
	in := newInterpreter()
	ctx := context.Background()

	_, err := in.Execute(ctx, 1, `CREATE (a:Person {name: "Ada"}) RETURN a`, nil)
	require.NoError(t, err)

	res, err := in.Execute(ctx, 2, `MATCH (n:Person) RETURN n`, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, res.Columns)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Vertex", res.Rows[0][0].Kind().String())
}

func TestExecuteCountAggregate(t *testing.T) {
	in := newInterpreter()
	ctx := context.Background()

	_, err := in.Execute(ctx, 1, `CREATE (a:Person {name: "Ada"}) RETURN a`, nil)
	require.NoError(t, err)
	_, err = in.Execute(ctx, 2, `CREATE (b:Person {name: "Grace"}) RETURN b`, nil)
	require.NoError(t, err)

	res, err := in.Execute(ctx, 3, `MATCH (n:Person) RETURN count(*)`, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	count, ok := res.Rows[0][0].AsInt()
	require.True(t, ok)
	require.Equal(t, int64(2), count)
}

func TestExecuteRepeatedQueryHitsPlanCache(t *testing.T) {
	in := newInterpreter()
	ctx := context.Background()

	_, err := in.Execute(ctx, 1, `MATCH (n:Person) WHERE n.age > 30 RETURN n`, nil)
	require.NoError(t, err)
	_, err = in.Execute(ctx, 2, `MATCH (n:Person) WHERE n.age > 99 RETURN n`, nil)
	require.NoError(t, err)

	hits, _, size := in.Cache.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, 1, size)
}

func TestExplainRendersPlanWithoutExecuting(t *testing.T) {
	in := newInterpreter()

	text, cur, err := in.Explain(`MATCH (n:Person) RETURN n`)
	require.NoError(t, err)
	require.Contains(t, text, "ScanAll(Person)")
	require.Contains(t, text, "Produce")

	ok, err := cur.Pull(context.Background(), nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProfileReportsPerOperatorCounts(t *testing.T) {
	in := newInterpreter()
	ctx := context.Background()

	_, err := in.Execute(ctx, 1, `CREATE (a:Person {name: "Ada"}) RETURN a`, nil)
	require.NoError(t, err)

	res, entries, err := in.Profile(ctx, 2, `MATCH (n:Person) RETURN n`, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.NotEmpty(t, entries)

	var sawScan bool
	for _, e := range entries {
		if e.Name == "ScanAll(Person)" {
			sawScan = true
			require.Equal(t, 1, e.RowsYielded)
		}
	}
	require.True(t, sawScan)
}

func TestExecuteWithCallerParameters(t *testing.T) {
	in := newInterpreter()
	ctx := context.Background()

	params := map[string]gval.TypedValue{"name": gval.String("Ada")}
	res, err := in.Execute(ctx, 1, `CREATE (a:Person {name: $name}) RETURN a.name`, params)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	name, ok := res.Rows[0][0].AsString()
	require.True(t, ok)
	require.Equal(t, "Ada", name)
}
