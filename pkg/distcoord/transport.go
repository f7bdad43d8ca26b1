// Package distcoord is the cross-worker seam a sharded deployment plugs
// into pkg/accessor and pkg/operators: fetching remote vertex/edge records,
// inserting a vertex on a peer's shard, dispatching a subplan to run on a
// remote worker, and pulling its rows back. InProcessTransport is the
// reference implementation used by single-process tests and the demo
// binary; a real deployment replaces it with a gRPC/TCP transport without
// touching accessor or operators.
package distcoord

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
)

var (
	_ accessor.DataFetcher   = (*InProcessTransport)(nil)
	_ accessor.RemoteInserter = (*InProcessTransport)(nil)
	_ operators.PullClient    = (*InProcessTransport)(nil)
	_ operators.UpdatesClient = (*InProcessTransport)(nil)
)

// PlanFactory builds the local subplan cursor a remote pull for planID
// should run, bound to a fresh per-call frame width and the local worker's
// transaction. Registered once per (worker, planID) before a query begins.
type PlanFactory func(tx *accessor.Transaction) (cursor.Cursor, int)

// WorkerNode is one shard's exposed surface: its storage engine and the
// registry of subplans other workers may pull from.
type WorkerNode struct {
	ID     uint16
	Engine *gstore.Engine

	mu    sync.Mutex
	plans map[planKey]*remotePlanState
}

type planKey struct {
	txID   uint64
	planID string
}

type remotePlanState struct {
	tx     *accessor.Transaction
	cursor cursor.Cursor
	width  int
}

func NewWorkerNode(id uint16, engine *gstore.Engine) *WorkerNode {
	return &WorkerNode{ID: id, Engine: engine, plans: make(map[planKey]*remotePlanState)}
}

// InProcessTransport wires a set of WorkerNodes together within a single
// process, grounded on pkg/replication/storage_adapter.go's pattern of an
// adapter dispatching commands onto a concrete engine, generalized here
// from a WAL-replayed command log to direct synchronous calls between
// in-memory workers.
type InProcessTransport struct {
	mu      sync.RWMutex
	workers map[uint16]*WorkerNode

	barrierMu sync.Mutex
	barriers  map[string]*barrierState
}

type barrierState struct {
	expected int
	arrived  int
	done     chan struct{}
}

func NewInProcessTransport() *InProcessTransport {
	return &InProcessTransport{
		workers:  make(map[uint16]*WorkerNode),
		barriers: make(map[string]*barrierState),
	}
}

func (t *InProcessTransport) Register(node *WorkerNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[node.ID] = node
}

func (t *InProcessTransport) worker(id uint16) (*WorkerNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.workers[id]
	if !ok {
		return nil, cursor.New(cursor.KindNetwork, "unknown worker %d", id)
	}
	return w, nil
}

// FetchRemoteVertex satisfies accessor.DataFetcher: it reads addr's
// committed state on its owning worker under OLD, since a cross-worker
// read only ever observes what has already committed there.
func (t *InProcessTransport) FetchRemoteVertex(ctx context.Context, txID uint64, addr gstore.Address) (*gstore.VertexData, error) {
	w, err := t.worker(addr.WorkerID())
	if err != nil {
		return nil, err
	}
	tx := w.Engine.Begin(txID)
	v, ok := tx.GetVertex(addr, gstore.ViewOld)
	if !ok {
		return nil, gstore.ErrNotFound
	}
	return v, nil
}

func (t *InProcessTransport) FetchRemoteEdge(ctx context.Context, txID uint64, addr gstore.Address) (*gstore.EdgeData, error) {
	w, err := t.worker(addr.WorkerID())
	if err != nil {
		return nil, err
	}
	tx := w.Engine.Begin(txID)
	e, ok := tx.GetEdge(addr, gstore.ViewOld)
	if !ok {
		return nil, gstore.ErrNotFound
	}
	return e, nil
}

// InsertRemoteVertex satisfies accessor.RemoteInserter: it opens (or
// reuses) a transaction on workerID keyed by the caller's own transaction
// id, creates the vertex there, and leaves it uncommitted until
// CommitRemote is called for that (worker, txID) pair.
func (t *InProcessTransport) InsertRemoteVertex(ctx context.Context, workerID uint16, labels []string, props map[string]gval.TypedValue) (gstore.Address, error) {
	w, err := t.worker(workerID)
	if err != nil {
		return 0, err
	}
	txID := txIDFromContext(ctx)
	w.mu.Lock()
	tx := w.remoteTx(txID)
	w.mu.Unlock()
	v := tx.CreateVertex(labels, props)
	return v.Addr, nil
}

// remoteTx and the txID-keyed remoteTxs map let InsertRemoteVertex reuse
// one storage transaction per (worker, txID) pair across the life of a
// distributed query instead of minting a new one per insert.
var remoteTxs sync.Map // key: remoteTxKey{worker, txID} -> *gstore.Transaction

type remoteTxKey struct {
	worker uint16
	txID   uint64
}

func (w *WorkerNode) remoteTx(txID uint64) *gstore.Transaction {
	key := remoteTxKey{worker: w.ID, txID: txID}
	if v, ok := remoteTxs.Load(key); ok {
		return v.(*gstore.Transaction)
	}
	tx := w.Engine.Begin(txID)
	remoteTxs.Store(key, tx)
	return tx
}

// CommitRemote commits and forgets the (worker, txID) transaction opened
// by InsertRemoteVertex calls, part of the distributed commit protocol's
// second phase.
func (t *InProcessTransport) CommitRemote(workerID uint16, txID uint64) error {
	if _, err := t.worker(workerID); err != nil {
		return err
	}
	key := remoteTxKey{worker: workerID, txID: txID}
	v, ok := remoteTxs.LoadAndDelete(key)
	if !ok {
		return nil
	}
	tx := v.(*gstore.Transaction)
	tx.AdvanceCommand()
	return tx.Commit()
}

// Apply commits every (worker, txID) transaction opened by InsertRemoteVertex
// calls for txID, across every registered worker. Synchronize calls this
// once every worker has reported its local branch drained and before it
// advances the command, so a vertex created on a peer during this command
// becomes visible everywhere at the barrier instead of waiting on that
// peer's own eventual top-level commit.
func (t *InProcessTransport) Apply(ctx context.Context, txID uint64) error {
	t.mu.RLock()
	workers := make([]uint16, 0, len(t.workers))
	for id := range t.workers {
		workers = append(workers, id)
	}
	t.mu.RUnlock()

	for _, id := range workers {
		if err := t.CommitRemote(id, txID); err != nil {
			kind := cursor.KindQueryRuntime
			if errors.Is(err, gstore.ErrSerialization) {
				kind = cursor.KindSerialization
			}
			return cursor.Wrap(kind, err, "apply deferred updates on worker %d", id)
		}
	}
	return nil
}

func txIDFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(txIDKey{}).(uint64); ok {
		return v
	}
	return 0
}

type txIDKey struct{}

// WithTxID stores txID on ctx so InsertRemoteVertex can recover which
// caller transaction an insert belongs to.
func WithTxID(ctx context.Context, txID uint64) context.Context {
	return context.WithValue(ctx, txIDKey{}, txID)
}

// RegisterPlan installs the subplan factory a remote Pull(worker, txID,
// planID) request should run, called once per distributed query before
// any PullClient.Pull reaches this worker.
func (t *InProcessTransport) RegisterPlan(workerID uint16, txID uint64, planID string, factory PlanFactory, width int) error {
	w, err := t.worker(workerID)
	if err != nil {
		return err
	}
	tx := accessor.NewTransaction(w.Engine, txID, accessor.NewDataManager(txID, t), t)
	c, w2 := factory(tx)
	if w2 != 0 {
		width = w2
	}
	w.mu.Lock()
	w.plans[planKey{txID: txID, planID: planID}] = &remotePlanState{tx: tx, cursor: c, width: width}
	w.mu.Unlock()
	return nil
}

// Pull satisfies operators.PullClient, draining up to a fixed batch size
// from the registered subplan.
func (t *InProcessTransport) Pull(ctx context.Context, worker uint16, txID uint64, planID string) ([]*gval.Frame, bool, error) {
	const batchSize = 64
	w, err := t.worker(worker)
	if err != nil {
		return nil, true, err
	}
	w.mu.Lock()
	state, ok := w.plans[planKey{txID: txID, planID: planID}]
	w.mu.Unlock()
	if !ok {
		return nil, true, cursor.New(cursor.KindNetwork, "no registered plan %q on worker %d", planID, worker)
	}

	execCtx := &cursor.ExecContext{Tx: state.tx}
	var rows []*gval.Frame
	for i := 0; i < batchSize; i++ {
		frame := gval.NewFrame(state.width)
		ok, err := state.cursor.Pull(ctx, frame, execCtx)
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return rows, true, nil
		}
		rows = append(rows, frame.Clone())
	}
	return rows, false, nil
}

func (t *InProcessTransport) Reset(ctx context.Context, worker uint16, txID uint64, planID string) error {
	w, err := t.worker(worker)
	if err != nil {
		return err
	}
	w.mu.Lock()
	state, ok := w.plans[planKey{txID: txID, planID: planID}]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return state.cursor.Reset()
}

// Broadcast/AwaitAllExhausted satisfy operators.UpdatesClient, implementing
// the Synchronize barrier with a shared arrival counter per barrier id:
// every worker calls Broadcast once it has drained its local branch, then
// AwaitAllExhausted blocks until every worker registered at the first
// Broadcast has. BarrierConfig is not consulted by either method.
type BarrierConfig struct {
	ExpectedWorkers int
}

func (t *InProcessTransport) barrier(id string, expected int) *barrierState {
	t.barrierMu.Lock()
	defer t.barrierMu.Unlock()
	b, ok := t.barriers[id]
	if !ok {
		b = &barrierState{expected: expected, done: make(chan struct{})}
		t.barriers[id] = b
	}
	return b
}

func (t *InProcessTransport) Broadcast(ctx context.Context, txID uint64, barrierID string) error {
	t.mu.RLock()
	expected := len(t.workers)
	t.mu.RUnlock()
	b := t.barrier(barrierID, expected)

	t.barrierMu.Lock()
	b.arrived++
	arrived := b.arrived
	if arrived >= b.expected {
		close(b.done)
	}
	t.barrierMu.Unlock()

	logrus.WithFields(logrus.Fields{"barrier": barrierID, "tx": txID, "arrived": arrived, "expected": b.expected}).
		Debug("distcoord: barrier arrival")
	return nil
}

func (t *InProcessTransport) AwaitAllExhausted(ctx context.Context, txID uint64, barrierID string) error {
	t.barrierMu.Lock()
	b, ok := t.barriers[barrierID]
	t.barrierMu.Unlock()
	if !ok {
		return cursor.New(cursor.KindNetwork, "barrier %q not started", barrierID)
	}
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
