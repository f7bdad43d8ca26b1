// Package accessor is the lightweight handle layer operators (pkg/operators)
// use to read and mutate graph state, wrapping a pkg/gstore.Transaction with
// the OLD/NEW view-switching contract and the per-transaction remote-entity
// cache required by the distributed coordinator. It is grounded on
// pkg/storage/transaction.go's read-your-writes Transaction, generalized so
// every accessor carries its own view flag instead of the transaction
// deciding visibility globally.
package accessor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// View mirrors gstore.View at the accessor boundary; AS_IS defers to the
// caller's own accessor without any switch — the {OLD, NEW, AS_IS}
// GraphView flag.
type View uint8

const (
	ViewOld View = iota
	ViewNew
	ViewAsIs
)

func (v View) toStore() gstore.View {
	if v == ViewOld {
		return gstore.ViewOld
	}
	return gstore.ViewNew
}

// VertexAccessor is a re-resolvable handle to a vertex: it carries an
// address, not owned data, and re-reads gstore on every access so it always
// reflects its current view.
type VertexAccessor struct {
	tx      *Transaction
	addr    gstore.Address
	view    View
}

func newVertexAccessor(tx *Transaction, addr gstore.Address) *VertexAccessor {
	return &VertexAccessor{tx: tx, view: ViewOld, addr: addr}
}

func (a *VertexAccessor) Address() gstore.Address { return a.addr }

// IsLocal reports whether this vertex is owned by the transaction's local
// worker, i.e. whether resolving it is a direct engine read rather than a
// DataManager fetch through the coordinator.
func (a *VertexAccessor) IsLocal() bool { return a.addr.IsLocal(a.tx.localWorker) }

// VertexAddr satisfies gval.VertexRef so a *VertexAccessor can be carried
// directly inside a TypedValue.
func (a *VertexAccessor) VertexAddr() uint64 { return uint64(a.addr) }

// SwitchOld / SwitchNew flip this accessor's observed version in place
// (switch_old()/switch_new()).
func (a *VertexAccessor) SwitchOld() { a.view = ViewOld }
func (a *VertexAccessor) SwitchNew() { a.view = ViewNew }
func (a *VertexAccessor) View() View { return a.view }

func (a *VertexAccessor) resolve() (*gstore.VertexData, bool) {
	if a.addr.IsLocal(a.tx.localWorker) {
		return a.tx.storeTx.GetVertex(a.addr, a.view.toStore())
	}
	return a.tx.dataManager.remoteVertex(a.addr)
}

// Exists reports whether the vertex is visible under the accessor's
// current view (it may have been deleted, or not yet created under OLD).
func (a *VertexAccessor) Exists() bool {
	_, ok := a.resolve()
	return ok
}

func (a *VertexAccessor) Labels() []string {
	v, ok := a.resolve()
	if !ok {
		return nil
	}
	return v.Labels
}

func (a *VertexAccessor) HasLabel(label string) bool {
	v, ok := a.resolve()
	return ok && v.HasLabel(label)
}

func (a *VertexAccessor) Property(name string) gval.TypedValue {
	v, ok := a.resolve()
	if !ok {
		return gval.Null
	}
	if val, ok := v.Properties[name]; ok {
		return val
	}
	return gval.Null
}

func (a *VertexAccessor) Properties() map[string]gval.TypedValue {
	v, ok := a.resolve()
	if !ok {
		return nil
	}
	return v.Properties
}

// In / Out return the incidence entries for the requested direction,
// optionally restricted to a set of edge type names (v.in(types?)/
// v.out(types?)).
func (a *VertexAccessor) In(types ...string) []gstore.Incidence {
	v, ok := a.resolve()
	if !ok {
		return nil
	}
	return filterIncidence(v.InEdges, types)
}

func (a *VertexAccessor) Out(types ...string) []gstore.Incidence {
	v, ok := a.resolve()
	if !ok {
		return nil
	}
	return filterIncidence(v.OutEdges, types)
}

func filterIncidence(in []gstore.Incidence, types []string) []gstore.Incidence {
	if len(types) == 0 {
		return in
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	out := make([]gstore.Incidence, 0, len(in))
	for _, inc := range in {
		if _, ok := set[inc.TypeName]; ok {
			out = append(out, inc)
		}
	}
	return out
}

// SetProperty/RemoveProperty/SetLabels/RemoveLabels all mutate through the
// NEW view regardless of the accessor's own current view flag: Set/Create/
// Delete operators always evaluate with NEW.
func (a *VertexAccessor) SetProperty(name string, v gval.TypedValue) error {
	if !a.addr.IsLocal(a.tx.localWorker) {
		return ErrRemoteMutation
	}
	_, err := a.tx.storeTx.ModifyVertex(a.addr, func(vd *gstore.VertexData) {
		if v.IsNull() {
			delete(vd.Properties, name)
			return
		}
		if vd.Properties == nil {
			vd.Properties = make(map[string]gval.TypedValue)
		}
		vd.Properties[name] = v
	})
	return err
}

func (a *VertexAccessor) RemoveProperty(name string) error {
	return a.SetProperty(name, gval.Null)
}

func (a *VertexAccessor) SetLabels(add []string) error {
	if !a.addr.IsLocal(a.tx.localWorker) {
		return ErrRemoteMutation
	}
	_, err := a.tx.storeTx.ModifyVertex(a.addr, func(vd *gstore.VertexData) {
		for _, l := range add {
			if !vd.HasLabel(l) {
				vd.Labels = append(vd.Labels, l)
			}
		}
	})
	return err
}

func (a *VertexAccessor) RemoveLabels(remove []string) error {
	if !a.addr.IsLocal(a.tx.localWorker) {
		return ErrRemoteMutation
	}
	set := make(map[string]struct{}, len(remove))
	for _, l := range remove {
		set[l] = struct{}{}
	}
	_, err := a.tx.storeTx.ModifyVertex(a.addr, func(vd *gstore.VertexData) {
		kept := vd.Labels[:0]
		for _, l := range vd.Labels {
			if _, drop := set[l]; !drop {
				kept = append(kept, l)
			}
		}
		vd.Labels = append([]string(nil), kept...)
	})
	return err
}

// EdgeAccessor mirrors VertexAccessor for edges.
type EdgeAccessor struct {
	tx   *Transaction
	addr gstore.Address
	view View
}

func newEdgeAccessor(tx *Transaction, addr gstore.Address) *EdgeAccessor {
	return &EdgeAccessor{tx: tx, view: ViewOld, addr: addr}
}

func (a *EdgeAccessor) Address() gstore.Address { return a.addr }

// EdgeAddr satisfies gval.EdgeRef so a *EdgeAccessor can be carried
// directly inside a TypedValue.
func (a *EdgeAccessor) EdgeAddr() uint64 { return uint64(a.addr) }
func (a *EdgeAccessor) SwitchOld()               { a.view = ViewOld }
func (a *EdgeAccessor) SwitchNew()               { a.view = ViewNew }
func (a *EdgeAccessor) View() View               { return a.view }

func (a *EdgeAccessor) resolve() (*gstore.EdgeData, bool) {
	if a.addr.IsLocal(a.tx.localWorker) {
		return a.tx.storeTx.GetEdge(a.addr, a.view.toStore())
	}
	return a.tx.dataManager.remoteEdge(a.addr)
}

func (a *EdgeAccessor) Exists() bool {
	_, ok := a.resolve()
	return ok
}

func (a *EdgeAccessor) Type() string {
	e, ok := a.resolve()
	if !ok {
		return ""
	}
	return e.Type
}

func (a *EdgeAccessor) From() gstore.Address {
	e, ok := a.resolve()
	if !ok {
		return gstore.NilAddress
	}
	return e.From
}

func (a *EdgeAccessor) To() gstore.Address {
	e, ok := a.resolve()
	if !ok {
		return gstore.NilAddress
	}
	return e.To
}

// StartVertex / EndVertex resolve an edge's endpoints back into accessors
// on the same transaction, for startNode()/endNode() support.
func (a *EdgeAccessor) StartVertex() *VertexAccessor { return a.tx.Vertex(a.From()) }
func (a *EdgeAccessor) EndVertex() *VertexAccessor   { return a.tx.Vertex(a.To()) }

func (a *EdgeAccessor) Property(name string) gval.TypedValue {
	e, ok := a.resolve()
	if !ok {
		return gval.Null
	}
	if val, ok := e.Properties[name]; ok {
		return val
	}
	return gval.Null
}

func (a *EdgeAccessor) Properties() map[string]gval.TypedValue {
	e, ok := a.resolve()
	if !ok {
		return nil
	}
	return e.Properties
}

func (a *EdgeAccessor) SetProperty(name string, v gval.TypedValue) error {
	if !a.addr.IsLocal(a.tx.localWorker) {
		return ErrRemoteMutation
	}
	e, ok := a.tx.storeTx.GetEdge(a.addr, gstore.ViewNew)
	if !ok {
		return gstore.ErrNotFound
	}
	next := *e
	next.Properties = cloneProps(e.Properties)
	if v.IsNull() {
		delete(next.Properties, name)
	} else {
		next.Properties[name] = v
	}
	return a.tx.replaceEdge(&next)
}

func cloneProps(props map[string]gval.TypedValue) map[string]gval.TypedValue {
	out := make(map[string]gval.TypedValue, len(props))
	for k, v := range props {
		out[k] = v.Clone()
	}
	return out
}

// Transaction wraps a gstore.Transaction with the accessor-facing surface
// operators rely on: vertex/edge iteration, insertion, removal, view
// switching, command advancement, abort polling, and cross-worker
// insertion routed through the distributed coordinator.
type Transaction struct {
	mu sync.Mutex

	localWorker uint16
	storeTx     *gstore.Transaction
	engine      *gstore.Engine

	dataManager *DataManager
	remote      RemoteInserter

	killed   atomic.Bool
	explicit bool // set once a multicommand (explicit) transaction is opened
}

// RemoteInserter is the seam into pkg/distcoord: inserting a vertex on a
// remote worker requires dispatching to that worker's coordinator rather
// than touching the local engine (insert_vertex_into_remote).
type RemoteInserter interface {
	InsertRemoteVertex(ctx context.Context, workerID uint16, labels []string, props map[string]gval.TypedValue) (gstore.Address, error)
}

// NewTransaction opens an accessor-level transaction over engine, id-stamped
// txID, with dm as its remote-entity cache and remote (may be nil, meaning
// single-worker mode) as the cross-worker insertion seam.
func NewTransaction(engine *gstore.Engine, txID uint64, dm *DataManager, remote RemoteInserter) *Transaction {
	return &Transaction{
		localWorker: engine.LocalWorker(),
		storeTx:     engine.Begin(txID),
		engine:      engine,
		dataManager: dm,
		remote:      remote,
	}
}

func (t *Transaction) ID() uint64 { return t.storeTx.ID() }

// InExplicitTransaction reports whether this transaction was opened as an
// explicit (multicommand, BEGIN/COMMIT-delimited) session rather than an
// implicit single-query one. DDL operators reject themselves inside one
// (IndexInMulticommandTxException).
func (t *Transaction) InExplicitTransaction() bool { return t.explicit }

// SetExplicitTransaction marks this transaction as opened explicitly.
func (t *Transaction) SetExplicitTransaction(v bool) { t.explicit = v }

// DeclareIndex, CreateStream, DropStream, StartStream, StopStream, and
// StreamNames forward DDL/Admin bookkeeping to the engine's registries.
func (t *Transaction) DeclareIndex(label, property string) bool {
	return t.engine.DeclareIndex(label, property)
}

func (t *Transaction) CreateStream(name string) bool { return t.engine.CreateStream(name) }
func (t *Transaction) DropStream(name string) bool   { return t.engine.DropStream(name) }
func (t *Transaction) StartStream(name string) bool  { return t.engine.StartStream(name) }
func (t *Transaction) StopStream(name string) bool   { return t.engine.StopStream(name) }
func (t *Transaction) StreamNames() []string         { return t.engine.StreamNames() }

// Vertices returns every vertex address visible under the requested view,
// folding this transaction's own uncommitted creates/modifies/deletes onto
// the engine's committed state the same read-your-writes way a single
// vertex lookup already does — a vertex created earlier in this
// transaction is visible under NEW right away, and under OLD once the
// command that created it has been advanced past, without waiting for a
// full commit.
func (t *Transaction) Vertices(view View) []gstore.Address {
	return addrsOf(t.storeTx.VisibleVertices("", view.toStore()))
}

func (t *Transaction) VerticesByLabel(label string, view View) []gstore.Address {
	return addrsOf(t.storeTx.VisibleVertices(label, view.toStore()))
}

// VerticesByProperty and VerticesByPropertyRange resolve the label's
// visible vertices under view first, then filter by property in Go rather
// than through the engine's committed-only property index — an
// uncommitted vertex has no entry in that index yet, so it would otherwise
// never satisfy an equality or range predicate inside its own transaction.
func (t *Transaction) VerticesByProperty(label, prop string, val gval.TypedValue, view View) []gstore.Address {
	var out []gstore.Address
	for _, vd := range t.storeTx.VisibleVertices(label, view.toStore()) {
		if gval.Equal(vd.Properties[prop], val) {
			out = append(out, vd.Addr)
		}
	}
	return out
}

func (t *Transaction) VerticesByPropertyRange(label, prop string, lower, upper *gstore.RangeBound, view View) []gstore.Address {
	var out []gstore.Address
	for _, vd := range t.storeTx.VisibleVertices(label, view.toStore()) {
		val, ok := vd.Properties[prop]
		if !ok {
			continue
		}
		if lower != nil {
			c, cok := gval.Compare(val, lower.Value)
			if !cok || c < 0 || (c == 0 && !lower.Inclusive) {
				continue
			}
		}
		if upper != nil {
			c, cok := gval.Compare(val, upper.Value)
			if !cok || c > 0 || (c == 0 && !upper.Inclusive) {
				continue
			}
		}
		out = append(out, vd.Addr)
	}
	return out
}

func addrsOf(vs []*gstore.VertexData) []gstore.Address {
	out := make([]gstore.Address, len(vs))
	for i, vd := range vs {
		out[i] = vd.Addr
	}
	return out
}

// Vertex/Edge wrap an address in a fresh accessor defaulting to OLD, the
// view Filter/OrderBy/ScanAll normally read through.
func (t *Transaction) Vertex(addr gstore.Address) *VertexAccessor { return newVertexAccessor(t, addr) }
func (t *Transaction) Edge(addr gstore.Address) *EdgeAccessor     { return newEdgeAccessor(t, addr) }

// InsertVertex creates a local vertex and returns a NEW-view accessor to it.
func (t *Transaction) InsertVertex(labels []string, props map[string]gval.TypedValue) *VertexAccessor {
	v := t.storeTx.CreateVertex(labels, props)
	a := newVertexAccessor(t, v.Addr)
	a.view = ViewNew
	return a
}

// InsertVertexIntoRemote dispatches vertex creation to workerID via the
// coordinator seam and returns a handle whose data lives in this
// transaction's DataManager until an Updates-apply barrier installs it on
// the owning worker.
func (t *Transaction) InsertVertexIntoRemote(ctx context.Context, workerID uint16, labels []string, props map[string]gval.TypedValue) (*VertexAccessor, error) {
	if t.remote == nil {
		return nil, ErrNoCoordinator
	}
	addr, err := t.remote.InsertRemoteVertex(ctx, workerID, labels, props)
	if err != nil {
		return nil, err
	}
	t.dataManager.cacheVertex(&gstore.VertexData{Addr: addr, Labels: labels, Properties: props})
	a := newVertexAccessor(t, addr)
	a.view = ViewNew
	return a, nil
}

func (t *Transaction) InsertEdge(from, to *VertexAccessor, typ string, props map[string]gval.TypedValue) (*EdgeAccessor, error) {
	ed, err := t.storeTx.CreateEdge(from.addr, to.addr, typ, props)
	if err != nil {
		return nil, err
	}
	a := newEdgeAccessor(t, ed.Addr)
	a.view = ViewNew
	return a, nil
}

// RemoveVertex fails with gstore.ErrHasEdges if incident edges remain.
func (t *Transaction) RemoveVertex(v *VertexAccessor) error {
	return t.storeTx.DeleteVertex(v.addr, false)
}

func (t *Transaction) DetachRemoveVertex(v *VertexAccessor) error {
	return t.storeTx.DeleteVertex(v.addr, true)
}

func (t *Transaction) RemoveEdge(e *EdgeAccessor) error {
	return t.storeTx.DeleteEdge(e.addr)
}

func (t *Transaction) replaceEdge(e *gstore.EdgeData) error {
	// edges are immutable except for properties, so the only edge
	// modification gstore.Transaction offers is ReplaceEdgeProperties,
	// which installs e.Properties as the edge's property map.
	return t.storeTx.ReplaceEdgeProperties(e.Addr, e.Properties)
}

// AdvanceCommand installs the next MVCC command id so subsequent reads see
// prior mutations via OLD (advance_command()).
func (t *Transaction) AdvanceCommand() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storeTx.AdvanceCommand()
}

// Kill requests cooperative termination; ShouldAbort will observe it on
// the next check. Grounded on the killer-scheduler concept in
// pkg/storage, but expressed as a context.Context-friendly atomic flag
// instead.
func (t *Transaction) Kill() { t.killed.Store(true) }

// ShouldAbort reports whether the caller (a Cursor.Pull loop) should stop
// and raise HintedAbort, either because Kill was called or ctx is done.
func (t *Transaction) ShouldAbort(ctx context.Context) bool {
	if t.killed.Load() || t.storeTx.ShouldAbort() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storeTx.Commit()
}

func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storeTx.Rollback()
}
