package refplan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// walkKinds flattens a plan tree into the sequence of Kinds encountered on
// its single-child spine (Input), root first. Branch/Match subtrees are not
// followed; tests that care about them inspect the node directly.
func walkKinds(n *planpb.Node) []planpb.Kind {
	var out []planpb.Kind
	for n != nil {
		out = append(out, n.Kind)
		n = n.Input
	}
	return out
}

func TestParseSimpleMatchReturn(t *testing.T) {
	plan, err := Parse("MATCH (n:Person) RETURN n")
	require.NoError(t, err)
	require.Equal(t, planpb.KindProduce, plan.Root.Kind)
	require.Len(t, plan.Columns, 1)
	require.Equal(t, "n", plan.Columns[0].Name)

	kinds := walkKinds(plan.Root)
	require.Equal(t, []planpb.Kind{planpb.KindProduce, planpb.KindScanAll, planpb.KindOnce}, kinds)

	scan := plan.Root.Input
	require.Equal(t, "Person", scan.Label)
}

func TestParseMatchWithPropertyFilterAndExpand(t *testing.T) {
	plan, err := Parse(`MATCH (a:Person {name: "Ada"})-[r:KNOWS]->(b:Person) WHERE b.age > 30 RETURN a, b, r`)
	require.NoError(t, err)
	require.Len(t, plan.Columns, 3)

	kinds := walkKinds(plan.Root)
	require.Equal(t, []planpb.Kind{
		planpb.KindProduce,
		planpb.KindFilter,
		planpb.KindExpand,
		planpb.KindScanAll,
		planpb.KindOnce,
	}, kinds)

	scan := plan.Root.Input.Input.Input
	require.Equal(t, "Person", scan.Label)
	require.Equal(t, "name", scan.PropertyName)

	expand := plan.Root.Input.Input
	require.Equal(t, []string{"KNOWS"}, expand.EdgeTypes)
}

func TestParseCountStar(t *testing.T) {
	plan, err := Parse("MATCH (n) RETURN count(*)")
	require.NoError(t, err)
	require.Equal(t, planpb.KindAggregate, plan.Root.Kind)
	require.Len(t, plan.Root.Aggregates, 1)
	require.Equal(t, 0, len(plan.Root.GroupKeys))
}

func TestParseAggregateArithmeticCombination(t *testing.T) {
	// sum(2) + count(3) needs both aggregates computed by one Aggregate
	// node feeding a Produce that adds their results together.
	plan, err := Parse("RETURN sum(2) + count(3)")
	require.NoError(t, err)

	require.Equal(t, planpb.KindProduce, plan.Root.Kind)
	require.Len(t, plan.Root.Projections, 1)

	agg := plan.Root.Input
	require.Equal(t, planpb.KindAggregate, agg.Kind)
	require.Len(t, agg.Aggregates, 2)
	require.Empty(t, agg.GroupKeys)

	require.Len(t, plan.Columns, 1)
	require.Equal(t, "_", plan.Columns[0].Name)
}

func TestParseAggregateWithGroupKey(t *testing.T) {
	plan, err := Parse("MATCH (n:Person) RETURN n.city AS city, count(n) AS total")
	require.NoError(t, err)

	agg := plan.Root
	require.Equal(t, planpb.KindAggregate, agg.Kind)
	require.Len(t, agg.GroupKeys, 1)
	require.Equal(t, "city", agg.GroupKeys[0].Symbol.Name)
	require.Len(t, agg.Aggregates, 1)

	require.Len(t, plan.Columns, 2)
	require.Equal(t, "city", plan.Columns[0].Name)
	require.Equal(t, "total", plan.Columns[1].Name)
}

func TestParseOptionalMatch(t *testing.T) {
	plan, err := Parse("MATCH (n:Person) OPTIONAL MATCH (n)-[:KNOWS]->(m) RETURN n, m")
	require.NoError(t, err)

	produce := plan.Root
	require.Equal(t, planpb.KindProduce, produce.Kind)

	apply := produce.Input
	require.Equal(t, planpb.KindApply, apply.Kind)
	require.Equal(t, planpb.KindScanAll, apply.Input.Kind)

	branch := apply.Branch
	require.Equal(t, planpb.KindOptional, branch.Kind)
	require.NotEmpty(t, branch.Symbols)

	expand := branch.Branch
	require.Equal(t, planpb.KindExpand, expand.Kind)
}

func TestParseCreatePattern(t *testing.T) {
	plan, err := Parse(`CREATE (a:Person {name: "Ada"})-[:KNOWS]->(b:Person {name: "Grace"}) RETURN a`)
	require.NoError(t, err)

	produce := plan.Root
	require.Equal(t, planpb.KindProduce, produce.Kind)

	createExpand := produce.Input
	require.Equal(t, planpb.KindCreateExpand, createExpand.Kind)
	require.Equal(t, "KNOWS", createExpand.EdgeType)
	require.False(t, createExpand.Reversed)

	createNode := createExpand.Input
	require.Equal(t, planpb.KindCreateNode, createNode.Kind)
	require.Equal(t, []string{"Person"}, createNode.Labels)
}

func TestParseReversedCreateExpand(t *testing.T) {
	plan, err := Parse(`CREATE (a:Person)<-[:MANAGES]-(b:Person) RETURN a`)
	require.NoError(t, err)

	createExpand := plan.Root.Input
	require.Equal(t, planpb.KindCreateExpand, createExpand.Kind)
	require.True(t, createExpand.Reversed)
}

func TestParseDetachDelete(t *testing.T) {
	plan, err := Parse("MATCH (n:Person) DETACH DELETE n RETURN n")
	require.NoError(t, err)

	del := plan.Root.Input
	require.Equal(t, planpb.KindDelete, del.Kind)
	require.True(t, del.Detach)
	require.Len(t, del.Targets, 1)
}

func TestParseSetAndRemove(t *testing.T) {
	plan, err := Parse(`MATCH (n:Person) SET n.age = 31, n:Senior REMOVE n.temp RETURN n`)
	require.NoError(t, err)

	removeProp := plan.Root.Input
	require.Equal(t, planpb.KindRemoveProperty, removeProp.Kind)
	require.Equal(t, "temp", removeProp.PropName)

	setLabels := removeProp.Input
	require.Equal(t, planpb.KindSetLabels, setLabels.Kind)
	require.Equal(t, []string{"Senior"}, setLabels.Labels)

	setProp := setLabels.Input
	require.Equal(t, planpb.KindSetProperty, setProp.Kind)
	require.Equal(t, "age", setProp.PropName)
}

func TestParseMergeWithOnCreateOnMatch(t *testing.T) {
	plan, err := Parse(`MERGE (n:Person {name: "Ada"}) ON CREATE SET n.created = true ON MATCH SET n.seen = true RETURN n`)
	require.NoError(t, err)

	merge := plan.Root.Input
	require.Equal(t, planpb.KindMerge, merge.Kind)
	require.NotNil(t, merge.Match)
	require.Equal(t, planpb.KindScanAll, merge.Match.Kind)
	require.Len(t, merge.OnCreate, 1)
	require.Equal(t, "created", merge.OnCreate[0].Name)
	require.Len(t, merge.OnMatch, 1)
	require.Equal(t, "seen", merge.OnMatch[0].Name)
}

func TestParseUnwind(t *testing.T) {
	plan, err := Parse("UNWIND [1, 2, 3] AS x RETURN x")
	require.NoError(t, err)

	produce := plan.Root
	require.Equal(t, planpb.KindProduce, produce.Kind)

	unwind := produce.Input
	require.Equal(t, planpb.KindUnwind, unwind.Kind)
	require.Equal(t, "x", unwind.Output.Name)
}

func TestParseDistinctOrderSkipLimit(t *testing.T) {
	plan, err := Parse("MATCH (n:Person) RETURN n.name AS name ORDER BY name DESC SKIP 1 LIMIT 5")
	require.NoError(t, err)

	limit := plan.Root
	require.Equal(t, planpb.KindLimit, limit.Kind)
	skip := limit.Input
	require.Equal(t, planpb.KindSkip, skip.Kind)
	orderBy := skip.Input
	require.Equal(t, planpb.KindOrderBy, orderBy.Kind)
	require.Len(t, orderBy.OrderKeys, 1)
	require.True(t, orderBy.OrderKeys[0].Descending)
}

func TestParseVariableLengthExpand(t *testing.T) {
	plan, err := Parse("MATCH (a:Person)-[:KNOWS*1..3]->(b:Person) RETURN a, b")
	require.NoError(t, err)

	produce := plan.Root
	expand := produce.Input
	require.Equal(t, planpb.KindExpandVariable, expand.Kind)
	require.Equal(t, 1, expand.MinHops)
	require.Equal(t, 3, expand.MaxHops)
}

func TestParseUnrecognizedClauseErrors(t *testing.T) {
	_, err := Parse("FOOBAR (n) RETURN n")
	require.Error(t, err)
}

func TestParseMergeOfRelationshipUnsupported(t *testing.T) {
	_, err := Parse("MERGE (a)-[:KNOWS]->(b) RETURN a")
	require.Error(t, err)
}

func TestParseThreeNodePatternUnsupported(t *testing.T) {
	_, err := Parse("MATCH (a)-[:KNOWS]->(b)-[:KNOWS]->(c) RETURN a")
	require.Error(t, err)
}
