package gstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

func TestCreateVertexVisibleUnderNewNotOld(t *testing.T) {
	e := NewMemoryEngine(1)
	tx := e.Begin(1)

	v := tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Ann")})

	_, ok := tx.GetVertex(v.Addr, ViewOld)
	assert.False(t, ok, "creation should not be visible under OLD before AdvanceCommand")

	got, ok := tx.GetVertex(v.Addr, ViewNew)
	require.True(t, ok)
	assert.True(t, got.HasLabel("Person"))

	tx.AdvanceCommand()
	_, ok = tx.GetVertex(v.Addr, ViewOld)
	assert.True(t, ok, "creation becomes visible under OLD after AdvanceCommand")
}

func TestDeleteVertexRequiresDetachWhenEdgesPresent(t *testing.T) {
	e := NewMemoryEngine(1)
	tx := e.Begin(1)

	a := tx.CreateVertex([]string{"A"}, nil)
	b := tx.CreateVertex([]string{"B"}, nil)
	tx.AdvanceCommand()

	_, err := tx.CreateEdge(a.Addr, b.Addr, "LINK", nil)
	require.NoError(t, err)
	tx.AdvanceCommand()

	err = tx.DeleteVertex(a.Addr, false)
	assert.ErrorIs(t, err, ErrHasEdges)

	err = tx.DeleteVertex(a.Addr, true)
	assert.NoError(t, err)

	_, ok := tx.GetVertex(a.Addr, ViewNew)
	assert.False(t, ok)
}

func TestCommitAppliesOverlayToEngine(t *testing.T) {
	e := NewMemoryEngine(1)
	tx := e.Begin(1)

	v := tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(30)})
	tx.AdvanceCommand()

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, e.VertexCount())

	committed, ok := e.getVertexCommitted(v.Addr)
	require.True(t, ok)
	assert.Equal(t, []string{"Person"}, committed.Labels)
}

func TestCommitDetectsConcurrentModification(t *testing.T) {
	e := NewMemoryEngine(1)

	seed := e.Begin(1)
	v := seed.CreateVertex([]string{"Person"}, nil)
	seed.AdvanceCommand()
	require.NoError(t, seed.Commit())

	txA := e.Begin(2)
	txB := e.Begin(3)

	_, ok := txA.GetVertex(v.Addr, ViewOld)
	require.True(t, ok)
	_, ok = txB.GetVertex(v.Addr, ViewOld)
	require.True(t, ok)

	_, err := txA.ModifyVertex(v.Addr, func(vd *VertexData) {
		vd.Properties["touched"] = gval.Bool(true)
	})
	require.NoError(t, err)
	require.NoError(t, txA.Commit())

	_, err = txB.ModifyVertex(v.Addr, func(vd *VertexData) {
		vd.Properties["touched"] = gval.Bool(false)
	})
	require.NoError(t, err)
	err = txB.Commit()
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestScanAllByLabel(t *testing.T) {
	e := NewMemoryEngine(1)
	tx := e.Begin(1)
	tx.CreateVertex([]string{"Person"}, nil)
	tx.CreateVertex([]string{"Person"}, nil)
	tx.CreateVertex([]string{"Company"}, nil)
	tx.AdvanceCommand()
	require.NoError(t, tx.Commit())

	people := e.snapshotVertexAddrs("Person")
	assert.Len(t, people, 2)

	all := e.snapshotVertexAddrs("")
	assert.Len(t, all, 3)
}

func TestPropertyRangeIndex(t *testing.T) {
	e := NewMemoryEngine(1)
	tx := e.Begin(1)
	tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(20)})
	tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(30)})
	tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"age": gval.Int(40)})
	tx.AdvanceCommand()
	require.NoError(t, tx.Commit())

	got := e.snapshotByPropertyRange("Person", "age", &RangeBound{Value: gval.Int(25), Inclusive: true}, &RangeBound{Value: gval.Int(40), Inclusive: false})
	assert.Len(t, got, 1)
}
