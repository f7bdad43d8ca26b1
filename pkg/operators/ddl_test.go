package operators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

func TestDDLCreateIndexDeclaresOnce(t *testing.T) {
	ec, _ := newTestExecCtx()
	ddl := &DDL{Input: NewOnce(), Kind: DDLCreateIndex, Label: "Person", Property: "name"}
	rows := drain(t, ddl, ec, 0)
	assert.Len(t, rows, 1)
}

func TestDDLCreateIndexDuplicateRaisesIndexExists(t *testing.T) {
	ec, _ := newTestExecCtx()
	ddl := &DDL{Input: NewOnce(), Kind: DDLCreateIndex, Label: "Person", Property: "name"}
	_, err := ddl.Pull(context.Background(), gval.NewFrame(0), ec)
	require.NoError(t, err)

	ddl2 := &DDL{Input: NewOnce(), Kind: DDLCreateIndex, Label: "Person", Property: "name"}
	_, err = ddl2.Pull(context.Background(), gval.NewFrame(0), ec)
	require.Error(t, err)
	cerr, ok := err.(*cursor.Error)
	require.True(t, ok)
	assert.Equal(t, cursor.KindIndexExists, cerr.Kind)
}

func TestDDLRejectsExplicitTransaction(t *testing.T) {
	ec, tx := newTestExecCtx()
	tx.SetExplicitTransaction(true)
	ddl := &DDL{Input: NewOnce(), Kind: DDLCreateIndex, Label: "Person", Property: "name"}
	_, err := ddl.Pull(context.Background(), gval.NewFrame(0), ec)
	require.Error(t, err)
	cerr, ok := err.(*cursor.Error)
	require.True(t, ok)
	assert.Equal(t, cursor.KindIndexInMulticommand, cerr.Kind)
}

func TestDDLStreamLifecycle(t *testing.T) {
	ec, _ := newTestExecCtx()

	create := &DDL{Input: NewOnce(), Kind: DDLCreateStream, StreamName: "events"}
	_, err := create.Pull(context.Background(), gval.NewFrame(0), ec)
	require.NoError(t, err)

	outSym := gval.Symbol{Name: "streams", Position: 0}
	show := &DDL{Input: NewOnce(), Kind: DDLShowStreams, Output: outSym}
	frame := gval.NewFrame(1)
	_, err = show.Pull(context.Background(), frame, ec)
	require.NoError(t, err)
	list, ok := frame.Get(outSym).AsList()
	require.True(t, ok)
	require.Len(t, list, 1)
	s, _ := list[0].AsString()
	assert.Equal(t, "events", s)

	start := &DDL{Input: NewOnce(), Kind: DDLStartStream, StreamName: "events"}
	_, err = start.Pull(context.Background(), gval.NewFrame(0), ec)
	require.NoError(t, err)

	stop := &DDL{Input: NewOnce(), Kind: DDLStopStream, StreamName: "events"}
	_, err = stop.Pull(context.Background(), gval.NewFrame(0), ec)
	require.NoError(t, err)

	drop := &DDL{Input: NewOnce(), Kind: DDLDropStream, StreamName: "events"}
	_, err = drop.Pull(context.Background(), gval.NewFrame(0), ec)
	require.NoError(t, err)
}

func TestDDLUnknownStreamRaisesQueryRuntime(t *testing.T) {
	ec, _ := newTestExecCtx()
	start := &DDL{Input: NewOnce(), Kind: DDLStartStream, StreamName: "missing"}
	_, err := start.Pull(context.Background(), gval.NewFrame(0), ec)
	require.Error(t, err)
	cerr, ok := err.(*cursor.Error)
	require.True(t, ok)
	assert.Equal(t, cursor.KindQueryRuntime, cerr.Kind)
}
