package gstore

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Engine holds committed graph state and the secondary indexes used by
// ScanAllByLabel/ByLabelPropertyValue/ByLabelPropertyRange. It is the
// generalization of pkg/storage/memory.go's MemoryEngine: same
// RWMutex-guarded maps and label index, plus a property-value index and a
// worker id used to stamp newly minted addresses.
//
// A persistent Engine (WithPersistence) additionally mirrors every commit
// into Badger, following pkg/storage/badger.go's key-prefix layout.
type Engine struct {
	mu sync.RWMutex

	localWorker uint16
	nextGID     atomic.Uint64
	commitGen   atomic.Uint64

	vertices map[Address]*VertexData
	edges    map[Address]*EdgeData

	labelIndex    map[string]map[Address]struct{}
	propertyIndex map[string]map[string]*sortedValues // label -> propName -> sorted (value, addr) pairs

	declaredIndexes map[string]struct{} // "label:property" set CreateIndex declares, for duplicate detection
	streams         map[string]bool     // stream name -> running, DDL/Admin bookkeeping only

	persist *badgerMirror // nil for a pure in-memory engine
}

// sortedValues keeps (value, addr) pairs sorted by TypedValue ordering, so
// a range scan reads one (label, property) entry list rather than every
// vertex with the label. snapshotByPropertyRange still walks that list
// entry by entry; it does not binary-search the bounds.
type sortedValues struct {
	entries []indexEntry
}

type indexEntry struct {
	value gval.TypedValue
	addr  Address
}

func (sv *sortedValues) insert(v gval.TypedValue, addr Address) {
	i := sort.Search(len(sv.entries), func(i int) bool {
		c, ok := gval.Compare(sv.entries[i].value, v)
		if !ok {
			return false
		}
		return c >= 0
	})
	sv.entries = append(sv.entries, indexEntry{})
	copy(sv.entries[i+1:], sv.entries[i:])
	sv.entries[i] = indexEntry{value: v, addr: addr}
}

func (sv *sortedValues) remove(v gval.TypedValue, addr Address) {
	for i, e := range sv.entries {
		if e.addr == addr && gval.Equal(e.value, v) {
			sv.entries = append(sv.entries[:i], sv.entries[i+1:]...)
			return
		}
	}
}

// NewMemoryEngine creates a pure in-memory engine, the default used by unit
// tests and the reference planner's demo mode.
func NewMemoryEngine(localWorker uint16) *Engine {
	return &Engine{
		localWorker:     localWorker,
		vertices:        make(map[Address]*VertexData),
		edges:           make(map[Address]*EdgeData),
		labelIndex:      make(map[string]map[Address]struct{}),
		propertyIndex:   make(map[string]map[string]*sortedValues),
		declaredIndexes: make(map[string]struct{}),
		streams:         make(map[string]bool),
	}
}

func (e *Engine) LocalWorker() uint16 { return e.localWorker }

// DeclareIndex registers a label+property index by name, reporting whether
// it was newly created. CreateIndex's actual scan acceleration already
// exists unconditionally in propertyIndex (see ScanByPropertyValue);
// this is just the DDL-visible declaration used to detect a duplicate
// CreateIndex (IndexExists).
func (e *Engine) DeclareIndex(label, property string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.declaredIndexes == nil {
		e.declaredIndexes = make(map[string]struct{})
	}
	key := label + ":" + property
	if _, exists := e.declaredIndexes[key]; exists {
		return false
	}
	e.declaredIndexes[key] = struct{}{}
	return true
}

// CreateStream registers name in the stream registry, stopped by default.
// Reports whether it was newly created.
func (e *Engine) CreateStream(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streams == nil {
		e.streams = make(map[string]bool)
	}
	if _, exists := e.streams[name]; exists {
		return false
	}
	e.streams[name] = false
	return true
}

// DropStream removes name from the registry, reporting whether it existed.
func (e *Engine) DropStream(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.streams[name]; !exists {
		return false
	}
	delete(e.streams, name)
	return true
}

// StartStream/StopStream flip a registered stream's running flag, reporting
// whether name was registered at all.
func (e *Engine) StartStream(name string) bool { return e.setStreamRunning(name, true) }
func (e *Engine) StopStream(name string) bool  { return e.setStreamRunning(name, false) }

func (e *Engine) setStreamRunning(name string, running bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.streams[name]; !exists {
		return false
	}
	e.streams[name] = running
	return true
}

// StreamNames returns every registered stream name, for ShowStreams.
func (e *Engine) StreamNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.streams))
	for name := range e.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextGID allocates a worker-local generation id for a new vertex/edge
// address. Implemented as an atomic regardless of the coordinator's current
// single-threaded-ness — see DESIGN.md Open Question #2.
func (e *Engine) NextGID() uint64 { return e.nextGID.Add(1) }

// NewLocalAddress mints a fresh local address.
func (e *Engine) NewLocalAddress() Address { return NewAddress(e.localWorker, e.NextGID()) }

// commitVertex installs v as the current committed version of its address
// and updates indexes accordingly. Must be called with e.mu held.
func (e *Engine) commitVertex(v *VertexData) {
	if old, ok := e.vertices[v.Addr]; ok {
		e.unindexVertex(old)
	}
	e.vertices[v.Addr] = v
	e.indexVertex(v)
	if e.persist != nil {
		e.persist.putVertex(v)
	}
}

func (e *Engine) commitVertexDelete(addr Address) {
	if old, ok := e.vertices[addr]; ok {
		e.unindexVertex(old)
		delete(e.vertices, addr)
		if e.persist != nil {
			e.persist.deleteVertex(addr)
		}
	}
}

func (e *Engine) indexVertex(v *VertexData) {
	for _, label := range v.Labels {
		if e.labelIndex[label] == nil {
			e.labelIndex[label] = make(map[Address]struct{})
		}
		e.labelIndex[label][v.Addr] = struct{}{}

		for prop, val := range v.Properties {
			if e.propertyIndex[label] == nil {
				e.propertyIndex[label] = make(map[string]*sortedValues)
			}
			sv := e.propertyIndex[label][prop]
			if sv == nil {
				sv = &sortedValues{}
				e.propertyIndex[label][prop] = sv
			}
			sv.insert(val, v.Addr)
		}
	}
}

func (e *Engine) unindexVertex(v *VertexData) {
	for _, label := range v.Labels {
		if m := e.labelIndex[label]; m != nil {
			delete(m, v.Addr)
		}
		for prop, val := range v.Properties {
			if byProp := e.propertyIndex[label]; byProp != nil {
				if sv := byProp[prop]; sv != nil {
					sv.remove(val, v.Addr)
				}
			}
		}
	}
}

func (e *Engine) commitEdge(ed *EdgeData) {
	e.edges[ed.Addr] = ed
	if e.persist != nil {
		e.persist.putEdge(ed)
	}
}

func (e *Engine) commitEdgeDelete(addr Address) {
	delete(e.edges, addr)
	if e.persist != nil {
		e.persist.deleteEdge(addr)
	}
}

// snapshotVertexAddrs returns every currently committed vertex address,
// optionally filtered by label. The slice is a point-in-time copy so
// ScanAll's iterator can be Reset() and re-walked.
func (e *Engine) snapshotVertexAddrs(label string) []Address {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if label == "" {
		out := make([]Address, 0, len(e.vertices))
		for a := range e.vertices {
			out = append(out, a)
		}
		return out
	}
	set := e.labelIndex[label]
	out := make([]Address, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

// snapshotByPropertyValue returns addresses whose (label, prop) equals val.
func (e *Engine) snapshotByPropertyValue(label, prop string, val gval.TypedValue) []Address {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byProp := e.propertyIndex[label]
	if byProp == nil {
		return nil
	}
	sv := byProp[prop]
	if sv == nil {
		return nil
	}
	var out []Address
	for _, ent := range sv.entries {
		if gval.Equal(ent.value, val) {
			out = append(out, ent.addr)
		}
	}
	return out
}

// RangeBound is one side of a property range scan; either bound may be nil
// but not both.
type RangeBound struct {
	Value     gval.TypedValue
	Inclusive bool
}

// snapshotByPropertyRange returns addresses whose (label, prop) value falls
// within [lower, upper] (each optionally exclusive, each optionally absent).
func (e *Engine) snapshotByPropertyRange(label, prop string, lower, upper *RangeBound) []Address {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byProp := e.propertyIndex[label]
	if byProp == nil {
		return nil
	}
	sv := byProp[prop]
	if sv == nil {
		return nil
	}
	var out []Address
	for _, ent := range sv.entries {
		if lower != nil {
			c, ok := gval.Compare(ent.value, lower.Value)
			if !ok {
				continue
			}
			if c < 0 || (c == 0 && !lower.Inclusive) {
				continue
			}
		}
		if upper != nil {
			c, ok := gval.Compare(ent.value, upper.Value)
			if !ok {
				continue
			}
			if c > 0 || (c == 0 && !upper.Inclusive) {
				continue
			}
		}
		out = append(out, ent.addr)
	}
	return out
}

func (e *Engine) getVertexCommitted(addr Address) (*VertexData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vertices[addr]
	return v, ok
}

func (e *Engine) getEdgeCommitted(addr Address) (*EdgeData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ed, ok := e.edges[addr]
	return ed, ok
}

// ScanAllVertexAddrs is the exported form of snapshotVertexAddrs used by
// pkg/accessor to implement vertices(label?, view_is_new).
func (e *Engine) ScanAllVertexAddrs(label string) []Address {
	return e.snapshotVertexAddrs(label)
}

// ScanByPropertyValue is the exported form of snapshotByPropertyValue.
func (e *Engine) ScanByPropertyValue(label, prop string, val gval.TypedValue) []Address {
	return e.snapshotByPropertyValue(label, prop, val)
}

// ScanByPropertyRange is the exported form of snapshotByPropertyRange.
func (e *Engine) ScanByPropertyRange(label, prop string, lower, upper *RangeBound) []Address {
	return e.snapshotByPropertyRange(label, prop, lower, upper)
}

// VertexCount and EdgeCount report the current committed cardinality.
func (e *Engine) VertexCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vertices)
}

func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.edges)
}

// Close releases the persistence layer, if any.
func (e *Engine) Close() error {
	if e.persist != nil {
		return e.persist.close()
	}
	return nil
}
