package distcoord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

func TestFetchRemoteVertexReturnsCommittedRecord(t *testing.T) {
	engineA := gstore.NewMemoryEngine(1)
	tx := engineA.Begin(1)
	v := tx.CreateVertex([]string{"Person"}, map[string]gval.TypedValue{"name": gval.String("Ann")})
	tx.AdvanceCommand()
	require.NoError(t, tx.Commit())

	transport := NewInProcessTransport()
	transport.Register(NewWorkerNode(1, engineA))

	got, err := transport.FetchRemoteVertex(context.Background(), 99, v.Addr)
	require.NoError(t, err)
	assert.True(t, got.HasLabel("Person"))
}

func TestInsertRemoteVertexThenCommit(t *testing.T) {
	engineB := gstore.NewMemoryEngine(2)
	transport := NewInProcessTransport()
	transport.Register(NewWorkerNode(2, engineB))

	ctx := WithTxID(context.Background(), 7)
	addr, err := transport.InsertRemoteVertex(ctx, 2, []string{"Person"}, nil)
	require.NoError(t, err)

	require.NoError(t, transport.CommitRemote(2, 7))
	assert.Equal(t, 1, engineB.VertexCount())

	tx := accessor.NewTransaction(engineB, 8, accessor.NewDataManager(8, nil), nil)
	assert.True(t, tx.Vertex(addr).Exists())
}

func TestBarrierUnblocksAfterAllArrive(t *testing.T) {
	transport := NewInProcessTransport()
	transport.Register(NewWorkerNode(1, gstore.NewMemoryEngine(1)))
	transport.Register(NewWorkerNode(2, gstore.NewMemoryEngine(2)))

	require.NoError(t, transport.Broadcast(context.Background(), 1, "b1"))

	done := make(chan error, 1)
	go func() {
		done <- transport.AwaitAllExhausted(context.Background(), 1, "b1")
	}()

	require.NoError(t, transport.Broadcast(context.Background(), 1, "b1"))
	require.NoError(t, <-done)
}
