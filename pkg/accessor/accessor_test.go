package accessor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

func newTx(engine *gstore.Engine) *Transaction {
	return NewTransaction(engine, 1, NewDataManager(1, nil), nil)
}

func TestInsertVertexVisibleUnderNewView(t *testing.T) {
	engine := gstore.NewMemoryEngine(1)
	tx := newTx(engine)

	v := tx.InsertVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Ann")})
	assert.True(t, v.Exists())
	assert.Equal(t, "Ann", mustString(v.Property("name")))

	old := tx.Vertex(v.Address())
	assert.False(t, old.Exists(), "OLD view should not see an uncommitted-command creation")
}

func TestInsertEdgeAndTraverse(t *testing.T) {
	engine := gstore.NewMemoryEngine(1)
	tx := newTx(engine)

	a := tx.InsertVertex([]string{"A"}, nil)
	b := tx.InsertVertex([]string{"B"}, nil)
	_, err := tx.InsertEdge(a, b, "LINK", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	a.SwitchOld()
	out := a.Out()
	require.Len(t, out, 1)
	assert.Equal(t, "LINK", out[0].TypeName)
	assert.Equal(t, b.Address(), out[0].Peer)
}

func TestRemoveVertexFailsWithIncidentEdges(t *testing.T) {
	engine := gstore.NewMemoryEngine(1)
	tx := newTx(engine)

	a := tx.InsertVertex([]string{"A"}, nil)
	b := tx.InsertVertex([]string{"B"}, nil)
	_, err := tx.InsertEdge(a, b, "LINK", nil)
	require.NoError(t, err)

	err = tx.RemoveVertex(a)
	assert.ErrorIs(t, err, gstore.ErrHasEdges)

	err = tx.DetachRemoveVertex(a)
	assert.NoError(t, err)
}

func TestRemoteMutationRejected(t *testing.T) {
	engine := gstore.NewMemoryEngine(1)
	tx := newTx(engine)

	remoteAddr := gstore.NewAddress(2, 1)
	v := tx.Vertex(remoteAddr)
	err := v.SetProperty("x", gval.Int(1))
	assert.ErrorIs(t, err, ErrRemoteMutation)
}

func TestShouldAbortRespectsContextCancellation(t *testing.T) {
	engine := gstore.NewMemoryEngine(1)
	tx := newTx(engine)

	ctx, cancel := context.WithCancel(context.Background())
	assert.False(t, tx.ShouldAbort(ctx))
	cancel()
	assert.True(t, tx.ShouldAbort(ctx))
}

func mustString(v gval.TypedValue) string {
	s, _ := v.AsString()
	return s
}
