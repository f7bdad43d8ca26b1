package gstore

import (
	"sync"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

// View selects which snapshot of a transaction's own writes an accessor
// call should see: OLD is the state as of the last AdvanceCommand, NEW
// includes writes made in the current command.
type View uint8

const (
	ViewOld View = iota
	ViewNew
)

// opKind tags one overlay entry.
type opKind uint8

const (
	opCreate opKind = iota
	opModify
	opDelete
)

type vertexOp struct {
	kind    opKind
	cmd     int
	vertex  *VertexData // nil for opDelete
}

type edgeOp struct {
	kind  opKind
	cmd   int
	edge  *EdgeData // nil for opDelete
}

// Transaction is the per-query mutable overlay over an Engine's committed
// state. It generalizes pkg/storage/transaction.go's buffered-operation
// list into a command-indexed *version list* per entity so that OLD/NEW
// view switching and command-advance visibility can both be satisfied
// without materializing a full multi-version chain in the engine itself —
// see DESIGN.md's C3 entry for the rationale.
type Transaction struct {
	mu sync.Mutex

	engine  *Engine
	id      uint64
	command int // current command index, advanced by AdvanceCommand

	vertexOverlay map[Address][]vertexOp
	edgeOverlay   map[Address][]edgeOp

	// baseline captures, for every vertex this transaction has touched, the
	// committed *VertexData pointer observed at the moment of first touch.
	// Commit compares this against the engine's current pointer for that
	// address to detect a concurrent commit, mirroring pkg/storage's
	// Commit() pre-validation.
	baseline map[Address]*VertexData

	aborted   bool
	committed bool
}

// Begin opens a new transaction against e.
func (e *Engine) Begin(id uint64) *Transaction {
	return &Transaction{
		engine:        e,
		id:            id,
		vertexOverlay: make(map[Address][]vertexOp),
		edgeOverlay:   make(map[Address][]edgeOp),
		baseline:      make(map[Address]*VertexData),
	}
}

// touch records addr's committed baseline the first time this transaction
// observes or writes it, taken under the engine's read lock so it reflects
// a real committed snapshot rather than another goroutine's in-flight
// overlay.
func (t *Transaction) touch(addr Address) {
	if _, ok := t.baseline[addr]; ok {
		return
	}
	v, _ := t.engine.getVertexCommitted(addr) // nil is a valid baseline: "did not exist"
	t.baseline[addr] = v
}

func (t *Transaction) ID() uint64 { return t.id }

// AdvanceCommand closes out the current command: all NEW-view writes made
// so far become visible under OLD, mirroring Cypher's per-clause visibility
// barrier.
func (t *Transaction) AdvanceCommand() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.command++
}

// vertexAt resolves the visible version of addr under view v by folding the
// overlay (entries with cmd <= visibility bound, latest wins) onto the
// committed baseline. Returns (nil, false) if the entity does not exist in
// that view, whether never created or already deleted.
func (t *Transaction) vertexAt(addr Address, v View) (*VertexData, bool) {
	bound := t.command
	if v == ViewOld {
		bound--
	}
	return t.vertexAtBound(addr, bound)
}

// vertexAtBound is vertexAt against a precomputed command bound, letting a
// scan resolve every candidate address at the same bound without
// recomputing it per address.
func (t *Transaction) vertexAtBound(addr Address, bound int) (*VertexData, bool) {
	ops := t.vertexOverlay[addr]
	var latest *vertexOp
	for i := range ops {
		if ops[i].cmd <= bound {
			latest = &ops[i]
		}
	}
	if latest != nil {
		if latest.kind == opDelete {
			return nil, false
		}
		return latest.vertex, true
	}
	return t.engine.getVertexCommitted(addr)
}

// VisibleVertices resolves every vertex address the engine or this
// transaction's own overlay knows about into its live version under view
// v, the scan-level counterpart to vertexAt: a CREATE this transaction has
// not yet committed is included under NEW immediately and under OLD only
// after the AdvanceCommand that closes the command it ran in; a DELETE
// removes an otherwise-committed vertex from the result the same way.
// label, if non-empty, restricts the result to vertices carrying it.
func (t *Transaction) VisibleVertices(label string, v View) []*VertexData {
	t.mu.Lock()
	defer t.mu.Unlock()
	bound := t.command
	if v == ViewOld {
		bound--
	}

	candidates := make(map[Address]struct{}, len(t.vertexOverlay))
	for _, addr := range t.engine.snapshotVertexAddrs("") {
		candidates[addr] = struct{}{}
	}
	for addr := range t.vertexOverlay {
		candidates[addr] = struct{}{}
	}

	out := make([]*VertexData, 0, len(candidates))
	for addr := range candidates {
		vd, ok := t.vertexAtBound(addr, bound)
		if !ok {
			continue
		}
		if label != "" && !vd.HasLabel(label) {
			continue
		}
		out = append(out, vd)
	}
	return out
}

func (t *Transaction) edgeAt(addr Address, v View) (*EdgeData, bool) {
	bound := t.command
	if v == ViewOld {
		bound--
	}

	ops := t.edgeOverlay[addr]
	var latest *edgeOp
	for i := range ops {
		if ops[i].cmd <= bound {
			latest = &ops[i]
		}
	}
	if latest != nil {
		if latest.kind == opDelete {
			return nil, false
		}
		return latest.edge, true
	}
	return t.engine.getEdgeCommitted(addr)
}

// GetVertex returns the version of addr visible under view v. Reading an
// address establishes this transaction's commit-time baseline for it, the
// same snapshot-isolation contract as a write.
func (t *Transaction) GetVertex(addr Address, v View) (*VertexData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch(addr)
	return t.vertexAt(addr, v)
}

// GetEdge returns the version of addr visible under view v.
func (t *Transaction) GetEdge(addr Address, v View) (*EdgeData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edgeAt(addr, v)
}

// CreateVertex allocates a new local vertex, visible under NEW immediately
// and under OLD only after the next AdvanceCommand.
func (t *Transaction) CreateVertex(labels []string, props map[string]gval.TypedValue) *VertexData {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := t.engine.NewLocalAddress()
	v := &VertexData{
		Addr:       addr,
		Labels:     append([]string(nil), labels...),
		Properties: cloneProps(props),
	}
	t.vertexOverlay[addr] = append(t.vertexOverlay[addr], vertexOp{kind: opCreate, cmd: t.command, vertex: v})
	t.touch(addr)
	return v.clone()
}

// ModifyVertex installs mutate(current-clone) as the new NEW-view version
// of addr. mutate receives an owned clone it is free to edit in place.
func (t *Transaction) ModifyVertex(addr Address, mutate func(*VertexData)) (*VertexData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.vertexAt(addr, ViewNew)
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.clone()
	mutate(next)
	t.vertexOverlay[addr] = append(t.vertexOverlay[addr], vertexOp{kind: opModify, cmd: t.command, vertex: next})
	t.touch(addr)
	return next.clone(), nil
}

// DeleteVertex marks addr deleted as of the current command. Without detach
// it fails with ErrHasEdges while the vertex still has incident edges in the
// NEW view; with detach those edges are deleted too, mirroring the Delete vs
// DetachDelete split.
func (t *Transaction) DeleteVertex(addr Address, detach bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.vertexAt(addr, ViewNew)
	if !ok {
		return ErrNotFound
	}
	if !detach && (len(cur.InEdges) > 0 || len(cur.OutEdges) > 0) {
		return ErrHasEdges
	}
	if detach {
		for _, inc := range append(append([]Incidence(nil), cur.InEdges...), cur.OutEdges...) {
			t.edgeOverlay[inc.Edge] = append(t.edgeOverlay[inc.Edge], edgeOp{kind: opDelete, cmd: t.command})
		}
	}
	t.vertexOverlay[addr] = append(t.vertexOverlay[addr], vertexOp{kind: opDelete, cmd: t.command})
	t.touch(addr)
	return nil
}

// CreateEdge allocates a new edge between two vertices already visible
// under NEW, and updates both endpoints' incidence lists.
func (t *Transaction) CreateEdge(from, to Address, typ string, props map[string]gval.TypedValue) (*EdgeData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromV, ok := t.vertexAt(from, ViewNew)
	if !ok {
		return nil, ErrNotFound
	}
	toV, ok := t.vertexAt(to, ViewNew)
	if !ok {
		return nil, ErrNotFound
	}

	addr := t.engine.NewLocalAddress()
	ed := &EdgeData{Addr: addr, From: from, To: to, Type: typ, Properties: cloneProps(props)}
	t.edgeOverlay[addr] = append(t.edgeOverlay[addr], edgeOp{kind: opCreate, cmd: t.command, edge: ed})

	nextFrom := fromV.clone()
	nextFrom.OutEdges = append(nextFrom.OutEdges, Incidence{Peer: to, Edge: addr, TypeName: typ})
	t.vertexOverlay[from] = append(t.vertexOverlay[from], vertexOp{kind: opModify, cmd: t.command, vertex: nextFrom})

	nextTo := toV.clone()
	if from == to {
		nextTo = nextFrom.clone()
	}
	nextTo.InEdges = append(nextTo.InEdges, Incidence{Peer: from, Edge: addr, TypeName: typ})
	t.vertexOverlay[to] = append(t.vertexOverlay[to], vertexOp{kind: opModify, cmd: t.command, vertex: nextTo})

	t.touch(from)
	t.touch(to)
	return ed.clone(), nil
}

// ReplaceEdgeProperties installs a new property map as the NEW-view
// version of addr. Edges have no other mutable fields (From/To/Type are
// fixed for the edge's lifetime), so this is the only "modify" primitive
// an edge needs.
func (t *Transaction) ReplaceEdgeProperties(addr Address, props map[string]gval.TypedValue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.edgeAt(addr, ViewNew)
	if !ok {
		return ErrNotFound
	}
	next := &EdgeData{Addr: cur.Addr, From: cur.From, To: cur.To, Type: cur.Type, Properties: cloneProps(props)}
	t.edgeOverlay[addr] = append(t.edgeOverlay[addr], edgeOp{kind: opModify, cmd: t.command, edge: next})
	return nil
}

// DeleteEdge removes an edge and its incidence entries from both endpoints.
func (t *Transaction) DeleteEdge(addr Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ed, ok := t.edgeAt(addr, ViewNew)
	if !ok {
		return ErrNotFound
	}
	t.edgeOverlay[addr] = append(t.edgeOverlay[addr], edgeOp{kind: opDelete, cmd: t.command})

	if fromV, ok := t.vertexAt(ed.From, ViewNew); ok {
		next := fromV.clone()
		next.OutEdges = removeIncidence(next.OutEdges, addr)
		t.vertexOverlay[ed.From] = append(t.vertexOverlay[ed.From], vertexOp{kind: opModify, cmd: t.command, vertex: next})
	}
	if toV, ok := t.vertexAt(ed.To, ViewNew); ok && ed.To != ed.From {
		next := toV.clone()
		next.InEdges = removeIncidence(next.InEdges, addr)
		t.vertexOverlay[ed.To] = append(t.vertexOverlay[ed.To], vertexOp{kind: opModify, cmd: t.command, vertex: next})
	}
	return nil
}

func removeIncidence(in []Incidence, edge Address) []Incidence {
	out := in[:0]
	for _, inc := range in {
		if inc.Edge != edge {
			out = append(out, inc)
		}
	}
	return append([]Incidence(nil), out...)
}

func cloneProps(props map[string]gval.TypedValue) map[string]gval.TypedValue {
	out := make(map[string]gval.TypedValue, len(props))
	for k, v := range props {
		out[k] = v.Clone()
	}
	return out
}

// ShouldAbort reports whether the transaction has already been aborted,
// the Go analogue of should_abort() polling in cooperative-cancellation
// loops — cursors check this (via context.Context) between Pull calls.
func (t *Transaction) ShouldAbort() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

func (t *Transaction) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
}

// Commit validates that every vertex this transaction touched still has
// the committed version it last observed at Begin/overlay time, then
// applies every overlay entry to the engine atomically under a single
// engine-wide lock. This mirrors straga-Mimir_lite/nornicdb/pkg/storage's
// Transaction.Commit() pre-validation pass; it is a coarse
// touched-address check rather than true multi-version conflict
// detection, matching the reduced MVCC scope recorded in DESIGN.md.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aborted {
		return ErrStorageClosed
	}
	if t.committed {
		return nil
	}

	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	for addr, base := range t.baseline {
		cur, existsNow := t.engine.vertices[addr]
		switch {
		case base == nil && existsNow:
			return ErrSerialization
		case base != nil && !existsNow:
			return ErrSerialization
		case base != nil && existsNow && cur != base:
			return ErrSerialization
		}
	}

	for addr, ops := range t.vertexOverlay {
		if len(ops) == 0 {
			continue
		}
		final := ops[len(ops)-1]
		if final.kind == opDelete {
			t.engine.commitVertexDelete(addr)
		} else {
			t.engine.commitVertex(final.vertex.clone())
		}
	}
	for addr, ops := range t.edgeOverlay {
		if len(ops) == 0 {
			continue
		}
		final := ops[len(ops)-1]
		if final.kind == opDelete {
			t.engine.commitEdgeDelete(addr)
		} else {
			t.engine.commitEdge(final.edge.clone())
		}
	}

	t.committed = true
	return nil
}

// Rollback discards the overlay without touching the engine.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vertexOverlay = make(map[Address][]vertexOp)
	t.edgeOverlay = make(map[Address][]edgeOp)
	t.aborted = true
}

