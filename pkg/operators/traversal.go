package operators

import (
	"container/heap"
	"context"
	"time"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// expandState tracks Expand's per-input-row progress: UNINIT means no row
// is loaded yet; EDGES_INIT means the incidence list was just split into
// local and remote steps; EMITTING_LOCAL streams the local steps
// synchronously; AWAITING_FUTURES polls the in-flight remote fetches once
// local steps are exhausted; DONE means every step for this row has been
// emitted and the next Input.Pull is due.
type expandState uint8

const (
	expandUninit expandState = iota
	expandEdgesInit
	expandEmittingLocal
	expandAwaitingFutures
	expandDone
)

// Expand consumes a row bearing an input vertex, enumerates its incident
// edges in the requested direction filtered by edge-type set, and emits
// (edge, other_vertex) into the frame for each. Local steps are emitted
// as soon as they're loaded; remote steps are launched as concurrent
// background fetches and joined back by polling for whichever completes
// first, so a row with many remote neighbors doesn't serialize on one
// fetch at a time.
type Expand struct {
	Input       cursor.Cursor
	InputVertex gval.Symbol
	OutputEdge  gval.Symbol
	OutputOther gval.Symbol
	Direction   gstore.Direction
	EdgeTypes   []string
	View        accessor.View

	// PollInterval is how long AWAITING_FUTURES backs off between checks
	// of in-flight remote fetches when none has completed yet. Zero means
	// spin immediately.
	PollInterval time.Duration

	state    expandState
	local    []expandStep
	localPos int
	futures  []*expandFuture
	saved    *gval.Frame
}

type expandStep struct {
	inc     gstore.Incidence
	fromOut bool
}

// expandFuture is one remote incidence's background fetch: the goroutine
// resolves both the edge and the peer vertex through the DataManager
// fallback path (populating its cache as a side effect) and closes ready
// when done.
type expandFuture struct {
	step  expandStep
	ready chan struct{}
	edge  *accessor.EdgeAccessor
	other *accessor.VertexAccessor
}

func (e *Expand) load(execCtx *cursor.ExecContext, frame *gval.Frame) {
	e.local = nil
	e.localPos = 0
	e.futures = nil
	e.state = expandDone

	ref, ok := frame.Get(e.InputVertex).AsVertex()
	if !ok {
		return
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return
	}

	var steps []expandStep
	if e.Direction == gstore.DirOut || e.Direction == gstore.DirBoth {
		for _, inc := range va.Out(e.EdgeTypes...) {
			steps = append(steps, expandStep{inc: inc, fromOut: true})
		}
	}
	if e.Direction == gstore.DirIn || e.Direction == gstore.DirBoth {
		for _, inc := range va.In(e.EdgeTypes...) {
			steps = append(steps, expandStep{inc: inc, fromOut: false})
		}
	}
	if len(steps) == 0 {
		return
	}

	for _, step := range steps {
		ea := execCtx.Tx.Edge(step.inc.Edge)
		other := execCtx.Tx.Vertex(step.inc.Peer)
		if e.View == accessor.ViewNew {
			ea.SwitchNew()
			other.SwitchNew()
		}
		if other.IsLocal() {
			e.local = append(e.local, step)
			continue
		}
		e.launchFuture(step, ea, other)
	}
	e.state = expandEdgesInit
}

func (e *Expand) launchFuture(step expandStep, ea *accessor.EdgeAccessor, other *accessor.VertexAccessor) {
	f := &expandFuture{step: step, ready: make(chan struct{}), edge: ea, other: other}
	e.futures = append(e.futures, f)
	go func() {
		other.Exists() // forces the DataManager fetch that populates its cache
		ea.Exists()
		close(f.ready)
	}()
}

func (e *Expand) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if e.saved != nil {
			frame.CopyFrom(e.saved)
		}

		switch e.state {
		case expandUninit, expandDone:
			ok, err := e.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			e.saved = frame.Snapshot(e.saved)
			e.load(execCtx, frame)
			continue

		case expandEdgesInit:
			e.state = expandEmittingLocal
			continue

		case expandEmittingLocal:
			if e.localPos < len(e.local) {
				step := e.local[e.localPos]
				e.localPos++
				ea := execCtx.Tx.Edge(step.inc.Edge)
				other := execCtx.Tx.Vertex(step.inc.Peer)
				if e.View == accessor.ViewNew {
					ea.SwitchNew()
					other.SwitchNew()
				}
				frame.Set(e.OutputEdge, gval.Edge(ea))
				frame.Set(e.OutputOther, gval.Vertex(other))
				return true, nil
			}
			e.state = expandAwaitingFutures
			continue

		case expandAwaitingFutures:
			if len(e.futures) == 0 {
				e.state = expandDone
				continue
			}
			f, idx := e.pollReadyFuture()
			if f == nil {
				if err := e.sleep(ctx); err != nil {
					return false, err
				}
				continue
			}
			e.futures = append(e.futures[:idx], e.futures[idx+1:]...)
			frame.Set(e.OutputEdge, gval.Edge(f.edge))
			frame.Set(e.OutputOther, gval.Vertex(f.other))
			return true, nil
		}
	}
}

// pollReadyFuture does a single non-blocking sweep of e.futures, returning
// the first one whose fetch has completed.
func (e *Expand) pollReadyFuture() (*expandFuture, int) {
	for i, f := range e.futures {
		select {
		case <-f.ready:
			return f, i
		default:
		}
	}
	return nil, -1
}

func (e *Expand) sleep(ctx context.Context) error {
	if e.PollInterval <= 0 {
		return nil
	}
	timer := time.NewTimer(e.PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Expand) Reset() error {
	e.state = expandUninit
	e.local = nil
	e.localPos = 0
	e.futures = nil
	e.saved = nil
	return e.Input.Reset()
}
func (e *Expand) Close() error { return e.Input.Close() }

// ExpandVariable performs a DFS variable-length traversal between MinHops
// and MaxHops, enforcing per-path edge uniqueness (no edge visited twice on
// the same path) and applying an optional inline filter at each hop.
type ExpandVariable struct {
	Input        cursor.Cursor
	InputVertex  gval.Symbol
	TargetVertex gval.Symbol // optional; Null symbol means any endpoint matches
	OutputOther  gval.Symbol
	OutputEdges  gval.Symbol // optional; Null symbol skips path-edge projection
	Direction    gstore.Direction
	EdgeTypes    []string
	MinHops      int
	MaxHops      int
	Filter       gexpr.Expr // optional per-hop predicate over OutputOther; nil means no filter
	View         accessor.View

	stack     []evStackFrame
	saved     *gval.Frame
	loaded    bool
	hasTarget bool
	target    gstore.Address
}

type evStackFrame struct {
	vertex   *accessor.VertexAccessor
	edges    []gstore.Address
	visited  map[gstore.Address]struct{}
	incident []gstore.Incidence
	idx      int
}

func (e *ExpandVariable) load(frame *gval.Frame) {
	e.stack = nil
	e.loaded = true
	e.hasTarget = false
	if e.TargetVertex.Name != "" {
		if tref, ok := frame.Get(e.TargetVertex).AsVertex(); ok {
			if tva, ok := tref.(*accessor.VertexAccessor); ok {
				e.target = tva.Address()
				e.hasTarget = true
			}
		}
	}
	ref, ok := frame.Get(e.InputVertex).AsVertex()
	if !ok {
		return
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return
	}
	root := evStackFrame{
		vertex:  va,
		visited: map[gstore.Address]struct{}{},
	}
	root.incident = e.incidentOf(va)
	e.stack = []evStackFrame{root}
}

func (e *ExpandVariable) incidentOf(va *accessor.VertexAccessor) []gstore.Incidence {
	var out []gstore.Incidence
	if e.Direction == gstore.DirOut || e.Direction == gstore.DirBoth {
		out = append(out, va.Out(e.EdgeTypes...)...)
	}
	if e.Direction == gstore.DirIn || e.Direction == gstore.DirBoth {
		out = append(out, va.In(e.EdgeTypes...)...)
	}
	return out
}

// Pull performs one DFS step; a candidate at depth d (1-indexed hop count)
// is yielded when d is within [MinHops, MaxHops] and passes Filter.
func (e *ExpandVariable) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if e.saved != nil {
			frame.CopyFrom(e.saved)
		}
		if !e.loaded || len(e.stack) == 0 {
			ok, err := e.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			e.saved = frame.Snapshot(e.saved)
			e.load(frame)
			continue
		}

		top := &e.stack[len(e.stack)-1]
		if top.idx >= len(top.incident) {
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		inc := top.incident[top.idx]
		top.idx++

		if _, used := top.visited[inc.Edge]; used {
			continue
		}
		if len(e.stack) > e.MaxHops {
			continue
		}

		other := execCtx.Tx.Vertex(inc.Peer)
		if e.View == accessor.ViewNew {
			other.SwitchNew()
		}

		depth := len(e.stack)
		nextVisited := make(map[gstore.Address]struct{}, len(top.visited)+1)
		for k := range top.visited {
			nextVisited[k] = struct{}{}
		}
		nextVisited[inc.Edge] = struct{}{}
		edges := append(append([]gstore.Address(nil), top.edges...), inc.Edge)

		if depth < e.MaxHops {
			e.stack = append(e.stack, evStackFrame{
				vertex:   other,
				edges:    edges,
				visited:  nextVisited,
				incident: e.incidentOf(other),
			})
		}

		if depth < e.MinHops {
			continue
		}
		if e.hasTarget && other.Address() != e.target {
			continue
		}
		if e.Filter != nil {
			frame.Set(e.OutputOther, gval.Vertex(other))
			pass, err := gexpr.FilterPredicate(execCtx, frame, e.View, e.Filter)
			if err != nil {
				return false, err
			}
			if !pass {
				continue
			}
		}
		frame.Set(e.OutputOther, gval.Vertex(other))
		if e.OutputEdges.Name != "" {
			items := make([]gval.TypedValue, len(edges))
			for i, addr := range edges {
				ea := execCtx.Tx.Edge(addr)
				if e.View == accessor.ViewNew {
					ea.SwitchNew()
				}
				items[i] = gval.Edge(ea)
			}
			frame.Set(e.OutputEdges, gval.List(items))
		}
		return true, nil
	}
}

func (e *ExpandVariable) Reset() error {
	e.loaded = false
	e.stack = nil
	e.saved = nil
	return e.Input.Reset()
}
func (e *ExpandVariable) Close() error { return e.Input.Close() }

// ExpandBFS performs breadth-first shortest-hop traversal using a processed
// set and a FIFO frontier, used for unweighted shortestPath and the k-hop
// neighborhood form.
type ExpandBFS struct {
	Input        cursor.Cursor
	InputVertex  gval.Symbol
	TargetVertex gval.Symbol // optional; Null symbol means any endpoint matches
	OutputOther  gval.Symbol
	OutputEdges  gval.Symbol
	Direction    gstore.Direction
	EdgeTypes    []string
	MaxHops      int
	View         accessor.View

	frontier  []bfsNode
	processed map[gstore.Address]struct{}
	saved     *gval.Frame
	loaded    bool
	hasTarget bool
	target    gstore.Address
}

type bfsNode struct {
	addr  gstore.Address
	edges []gstore.Address
	depth int
}

func (e *ExpandBFS) load(frame *gval.Frame, execCtx *cursor.ExecContext) {
	e.loaded = true
	e.frontier = nil
	e.processed = map[gstore.Address]struct{}{}
	e.hasTarget = false
	if e.TargetVertex.Name != "" {
		if tref, ok := frame.Get(e.TargetVertex).AsVertex(); ok {
			if tva, ok := tref.(*accessor.VertexAccessor); ok {
				e.target = tva.Address()
				e.hasTarget = true
			}
		}
	}
	ref, ok := frame.Get(e.InputVertex).AsVertex()
	if !ok {
		return
	}
	va, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return
	}
	e.processed[va.Address()] = struct{}{}
	e.enqueueChildren(execCtx, va, nil, 0)
}

func (e *ExpandBFS) enqueueChildren(execCtx *cursor.ExecContext, va *accessor.VertexAccessor, edges []gstore.Address, depth int) {
	if depth >= e.MaxHops {
		return
	}
	var incident []gstore.Incidence
	if e.Direction == gstore.DirOut || e.Direction == gstore.DirBoth {
		incident = append(incident, va.Out(e.EdgeTypes...)...)
	}
	if e.Direction == gstore.DirIn || e.Direction == gstore.DirBoth {
		incident = append(incident, va.In(e.EdgeTypes...)...)
	}
	for _, inc := range incident {
		if _, seen := e.processed[inc.Peer]; seen {
			continue
		}
		e.processed[inc.Peer] = struct{}{}
		nextEdges := append(append([]gstore.Address(nil), edges...), inc.Edge)
		e.frontier = append(e.frontier, bfsNode{addr: inc.Peer, edges: nextEdges, depth: depth + 1})
	}
}

func (e *ExpandBFS) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if e.saved != nil {
			frame.CopyFrom(e.saved)
		}
		if !e.loaded {
			ok, err := e.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			e.saved = frame.Snapshot(e.saved)
			e.load(frame, execCtx)
			continue
		}
		if len(e.frontier) == 0 {
			e.loaded = false
			continue
		}
		node := e.frontier[0]
		e.frontier = e.frontier[1:]

		other := execCtx.Tx.Vertex(node.addr)
		if e.View == accessor.ViewNew {
			other.SwitchNew()
		}
		e.enqueueChildren(execCtx, other, node.edges, node.depth)

		if e.hasTarget && node.addr != e.target {
			continue
		}

		frame.Set(e.OutputOther, gval.Vertex(other))
		if e.OutputEdges.Name != "" {
			items := make([]gval.TypedValue, len(node.edges))
			for i, addr := range node.edges {
				ea := execCtx.Tx.Edge(addr)
				if e.View == accessor.ViewNew {
					ea.SwitchNew()
				}
				items[i] = gval.Edge(ea)
			}
			frame.Set(e.OutputEdges, gval.List(items))
		}
		return true, nil
	}
}

func (e *ExpandBFS) Reset() error {
	e.loaded = false
	e.frontier = nil
	e.processed = nil
	e.saved = nil
	return e.Input.Reset()
}
func (e *ExpandBFS) Close() error { return e.Input.Close() }

// ExpandWeightedShortestPath runs Dijkstra's algorithm from the input
// vertex to every reachable vertex, using a container/heap priority queue
// keyed on accumulated weight. A non-numeric or negative edge weight is a
// QueryRuntime error, matching pkg/cypher/traversal.go's weighted-path
// guard.
type ExpandWeightedShortestPath struct {
	Input        cursor.Cursor
	InputVertex  gval.Symbol
	TargetVertex gval.Symbol // optional; Null symbol means "to every reachable vertex"
	OutputOther  gval.Symbol
	OutputEdges  gval.Symbol
	OutputWeight gval.Symbol
	Direction    gstore.Direction
	EdgeTypes    []string
	WeightProp   string
	MaxHops      int
	View         accessor.View

	results []wspResult
	pos     int
	saved   *gval.Frame
	loaded  bool
}

type wspResult struct {
	vertex *accessor.VertexAccessor
	edges  []gstore.Address
	weight float64
}

type wspQueueItem struct {
	addr   gstore.Address
	weight float64
	edges  []gstore.Address
	hops   int
}

type wspQueue []wspQueueItem

func (q wspQueue) Len() int            { return len(q) }
func (q wspQueue) Less(i, j int) bool  { return q[i].weight < q[j].weight }
func (q wspQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *wspQueue) Push(x interface{}) { *q = append(*q, x.(wspQueueItem)) }
func (q *wspQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (e *ExpandWeightedShortestPath) load(frame *gval.Frame, execCtx *cursor.ExecContext) error {
	e.loaded = true
	e.results = nil
	e.pos = 0

	ref, ok := frame.Get(e.InputVertex).AsVertex()
	if !ok {
		return nil
	}
	src, ok := ref.(*accessor.VertexAccessor)
	if !ok {
		return nil
	}

	var target gstore.Address
	hasTarget := false
	if e.TargetVertex.Name != "" {
		if tref, ok := frame.Get(e.TargetVertex).AsVertex(); ok {
			if tva, ok := tref.(*accessor.VertexAccessor); ok {
				target = tva.Address()
				hasTarget = true
			}
		}
	}

	best := map[gstore.Address]float64{src.Address(): 0}
	pq := &wspQueue{{addr: src.Address(), weight: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(wspQueueItem)
		if cur.weight > best[cur.addr] {
			continue
		}
		if cur.addr != src.Address() {
			va := execCtx.Tx.Vertex(cur.addr)
			if e.View == accessor.ViewNew {
				va.SwitchNew()
			}
			e.results = append(e.results, wspResult{vertex: va, edges: cur.edges, weight: cur.weight})
			if hasTarget && cur.addr == target {
				continue
			}
		}
		if cur.hops >= e.MaxHops {
			continue
		}
		va := execCtx.Tx.Vertex(cur.addr)
		var incident []gstore.Incidence
		if e.Direction == gstore.DirOut || e.Direction == gstore.DirBoth {
			incident = append(incident, va.Out(e.EdgeTypes...)...)
		}
		if e.Direction == gstore.DirIn || e.Direction == gstore.DirBoth {
			incident = append(incident, va.In(e.EdgeTypes...)...)
		}
		for _, inc := range incident {
			ea := execCtx.Tx.Edge(inc.Edge)
			w, err := edgeWeight(ea, e.WeightProp)
			if err != nil {
				return err
			}
			next := cur.weight + w
			if existing, seen := best[inc.Peer]; seen && existing <= next {
				continue
			}
			best[inc.Peer] = next
			nextEdges := append(append([]gstore.Address(nil), cur.edges...), inc.Edge)
			heap.Push(pq, wspQueueItem{addr: inc.Peer, weight: next, edges: nextEdges, hops: cur.hops + 1})
		}
	}
	return nil
}

func edgeWeight(ea *accessor.EdgeAccessor, prop string) (float64, error) {
	v := ea.Property(prop)
	w, ok := v.AsNumeric()
	if !ok {
		return 0, cursor.New(cursor.KindQueryRuntime, "shortest path weight property %q is not numeric", prop)
	}
	if w < 0 {
		return 0, cursor.New(cursor.KindQueryRuntime, "shortest path weight property %q is negative", prop)
	}
	return w, nil
}

func (e *ExpandWeightedShortestPath) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		if e.saved != nil {
			frame.CopyFrom(e.saved)
		}
		if !e.loaded || e.pos >= len(e.results) {
			ok, err := e.Input.Pull(ctx, frame, execCtx)
			if err != nil || !ok {
				return false, err
			}
			e.saved = frame.Snapshot(e.saved)
			if err := e.load(frame, execCtx); err != nil {
				return false, err
			}
			continue
		}
		r := e.results[e.pos]
		e.pos++

		frame.Set(e.OutputOther, gval.Vertex(r.vertex))
		if e.OutputEdges.Name != "" {
			items := make([]gval.TypedValue, len(r.edges))
			for i, addr := range r.edges {
				ea := execCtx.Tx.Edge(addr)
				if e.View == accessor.ViewNew {
					ea.SwitchNew()
				}
				items[i] = gval.Edge(ea)
			}
			frame.Set(e.OutputEdges, gval.List(items))
		}
		if e.OutputWeight.Name != "" {
			frame.Set(e.OutputWeight, gval.Double(r.weight))
		}
		return true, nil
	}
}

func (e *ExpandWeightedShortestPath) Reset() error {
	e.loaded = false
	e.results = nil
	e.pos = 0
	e.saved = nil
	return e.Input.Reset()
}
func (e *ExpandWeightedShortestPath) Close() error { return e.Input.Close() }

// ConstructNamedPath assembles a path value from a start vertex symbol and
// an edge-list symbol produced upstream (ExpandVariable/ExpandBFS's
// OutputEdges), materializing the intermediate vertices by walking each
// edge's endpoints.
type ConstructNamedPath struct {
	Input       cursor.Cursor
	StartVertex gval.Symbol
	EdgeList    gval.Symbol
	OutputPath  gval.Symbol
	View        accessor.View
}

func (c *ConstructNamedPath) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := c.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}

	startRef, ok := frame.Get(c.StartVertex).AsVertex()
	if !ok {
		frame.Set(c.OutputPath, gval.Null)
		return true, nil
	}
	start, ok := startRef.(*accessor.VertexAccessor)
	if !ok {
		frame.Set(c.OutputPath, gval.Null)
		return true, nil
	}

	edgesVal := frame.Get(c.EdgeList)
	edgeList, _ := edgesVal.AsList()

	vertices := []gval.VertexRef{start}
	edges := make([]gval.EdgeRef, 0, len(edgeList))
	cur := start
	for _, ev := range edgeList {
		eref, ok := ev.AsEdge()
		if !ok {
			continue
		}
		ea, ok := eref.(*accessor.EdgeAccessor)
		if !ok {
			continue
		}
		edges = append(edges, ea)
		var next *accessor.VertexAccessor
		if ea.From() == cur.Address() {
			next = ea.EndVertex()
		} else {
			next = ea.StartVertex()
		}
		if c.View == accessor.ViewNew {
			next.SwitchNew()
		}
		vertices = append(vertices, next)
		cur = next
	}

	frame.Set(c.OutputPath, gval.Path(&namedPath{vertices: vertices, edges: edges}))
	return true, nil
}

func (c *ConstructNamedPath) Reset() error { return c.Input.Reset() }
func (c *ConstructNamedPath) Close() error { return c.Input.Close() }

type namedPath struct {
	vertices []gval.VertexRef
	edges    []gval.EdgeRef
}

func (p *namedPath) PathVertices() []gval.VertexRef { return p.vertices }
func (p *namedPath) PathEdges() []gval.EdgeRef      { return p.edges }
