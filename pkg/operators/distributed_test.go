package operators

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

type fakePullClient struct {
	batches   [][]*gval.Frame
	exhausted []bool
	calls     int32
}

func (f *fakePullClient) Pull(ctx context.Context, worker uint16, txID uint64, planID string) ([]*gval.Frame, bool, error) {
	i := int(atomic.AddInt32(&f.calls, 1)) - 1
	if i >= len(f.batches) {
		return nil, true, nil
	}
	return f.batches[i], f.exhausted[i], nil
}

func (f *fakePullClient) Reset(ctx context.Context, worker uint16, txID uint64, planID string) error {
	atomic.StoreInt32(&f.calls, 0)
	return nil
}

func frameWith(v int64) *gval.Frame {
	f := gval.NewFrame(1)
	f.SetAt(0, gval.Int(v))
	return f
}

func TestPullRemoteStreamsBatchesAcrossCalls(t *testing.T) {
	client := &fakePullClient{
		batches:   [][]*gval.Frame{{frameWith(1), frameWith(2)}, {frameWith(3)}},
		exhausted: []bool{false, true},
	}
	p := &PullRemote{Client: client, Worker: 1, PlanID: "p1"}
	execCtx, _ := newTestExecCtx()

	var got []int64
	for {
		frame := gval.NewFrame(1)
		ok, err := p.Pull(context.Background(), frame, execCtx)
		require.NoError(t, err)
		if !ok {
			break
		}
		v, _ := frame.GetAt(0).AsInt()
		got = append(got, v)
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestPullRemoteBacksOffOnEmptyNonExhaustedBatch(t *testing.T) {
	client := &fakePullClient{
		batches:   [][]*gval.Frame{{}, {frameWith(9)}},
		exhausted: []bool{false, true},
	}
	p := &PullRemote{Client: client, Worker: 1, PlanID: "p1", PollInterval: 5 * time.Millisecond}
	execCtx, _ := newTestExecCtx()

	start := time.Now()
	frame := gval.NewFrame(1)
	ok, err := p.Pull(context.Background(), frame, execCtx)
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	v, _ := frame.GetAt(0).AsInt()
	require.Equal(t, int64(9), v)
}

func TestPullRemoteBackoffRespectsContextCancellation(t *testing.T) {
	client := &fakePullClient{
		batches:   [][]*gval.Frame{{}},
		exhausted: []bool{false},
	}
	p := &PullRemote{Client: client, Worker: 1, PlanID: "p1", PollInterval: time.Hour}
	execCtx, _ := newTestExecCtx()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := p.Pull(ctx, gval.NewFrame(1), execCtx)
	require.Error(t, err)
}

func TestPullRemoteResetClearsBufferAndCallsClient(t *testing.T) {
	client := &fakePullClient{
		batches:   [][]*gval.Frame{{frameWith(1)}},
		exhausted: []bool{true},
	}
	p := &PullRemote{Client: client, Worker: 1, PlanID: "p1"}
	execCtx, _ := newTestExecCtx()

	_, err := p.Pull(context.Background(), gval.NewFrame(1), execCtx)
	require.NoError(t, err)

	require.NoError(t, p.Reset())
	require.Equal(t, int32(0), client.calls)
}

type fakeUpdatesClient struct {
	broadcastCount int32
	applyCount     int32
	awaitErr       error
	applyErr       error
}

func (f *fakeUpdatesClient) Broadcast(ctx context.Context, txID uint64, barrierID string) error {
	atomic.AddInt32(&f.broadcastCount, 1)
	return nil
}

func (f *fakeUpdatesClient) AwaitAllExhausted(ctx context.Context, txID uint64, barrierID string) error {
	return f.awaitErr
}

func (f *fakeUpdatesClient) Apply(ctx context.Context, txID uint64) error {
	atomic.AddInt32(&f.applyCount, 1)
	return f.applyErr
}

// sliceCursor is a minimal cursor.Cursor over a fixed slice, driving
// Synchronize without needing a full upstream operator tree.
type sliceCursor struct {
	rows []int64
	pos  int
}

func (s *sliceCursor) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if s.pos >= len(s.rows) {
		return false, nil
	}
	frame.SetAt(0, gval.Int(s.rows[s.pos]))
	s.pos++
	return true, nil
}
func (s *sliceCursor) Reset() error { s.pos = 0; return nil }
func (s *sliceCursor) Close() error { return nil }

func TestSynchronizeDrainsInputThenBroadcastsAndReplays(t *testing.T) {
	input := &sliceCursor{rows: []int64{1, 2, 3}}
	updates := &fakeUpdatesClient{}
	s := &Synchronize{Input: input, Updates: updates, BarrierID: "b1"}
	execCtx, _ := newTestExecCtx()

	var got []int64
	for {
		frame := gval.NewFrame(1)
		ok, err := s.Pull(context.Background(), frame, execCtx)
		require.NoError(t, err)
		if !ok {
			break
		}
		v, _ := frame.GetAt(0).AsInt()
		got = append(got, v)
	}
	require.Equal(t, []int64{1, 2, 3}, got)
	require.Equal(t, int32(1), updates.broadcastCount)

	require.NoError(t, s.Reset())
	got = got[:0]
	for {
		frame := gval.NewFrame(1)
		ok, err := s.Pull(context.Background(), frame, execCtx)
		require.NoError(t, err)
		if !ok {
			break
		}
		v, _ := frame.GetAt(0).AsInt()
		got = append(got, v)
	}
	require.Equal(t, []int64{1, 2, 3}, got, "Reset rewinds the input, so a second barrier pass replays it in full")
	require.Equal(t, int32(2), updates.broadcastCount)
	require.Equal(t, int32(2), updates.applyCount, "every barrier pass must apply deferred remote updates once")
}

func TestSynchronizeReturnsAwaitError(t *testing.T) {
	input := &sliceCursor{rows: []int64{1}}
	updates := &fakeUpdatesClient{awaitErr: context.DeadlineExceeded}
	s := &Synchronize{Input: input, Updates: updates, BarrierID: "b1"}
	execCtx, _ := newTestExecCtx()

	_, err := s.Pull(context.Background(), gval.NewFrame(1), execCtx)
	require.Error(t, err)
}

func TestSynchronizeReturnsApplyErrorAndSkipsAdvance(t *testing.T) {
	input := &sliceCursor{rows: []int64{1}}
	updates := &fakeUpdatesClient{applyErr: cursor.New(cursor.KindSerialization, "conflict")}
	s := &Synchronize{Input: input, Updates: updates, BarrierID: "b1"}
	execCtx, _ := newTestExecCtx()

	_, err := s.Pull(context.Background(), gval.NewFrame(1), execCtx)
	require.Error(t, err)
	require.Equal(t, int32(1), updates.applyCount)
}

func TestSynchronizeDrainsRemoteChildAfterLocalRows(t *testing.T) {
	input := &sliceCursor{rows: []int64{1}}
	remote := &sliceCursor{rows: []int64{2, 3}}
	updates := &fakeUpdatesClient{}
	s := &Synchronize{Input: input, Remote: remote, Updates: updates, BarrierID: "b1"}
	execCtx, _ := newTestExecCtx()

	var got []int64
	for {
		frame := gval.NewFrame(1)
		ok, err := s.Pull(context.Background(), frame, execCtx)
		require.NoError(t, err)
		if !ok {
			break
		}
		v, _ := frame.GetAt(0).AsInt()
		got = append(got, v)
	}
	require.Equal(t, []int64{1, 2, 3}, got, "local rows stream first, then the remote child")
}
