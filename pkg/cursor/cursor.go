package cursor

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Cursor is the pull-based protocol every operator implements: pull places
// the next row into frame and reports whether one was produced; reset
// rewinds to the initial state. Distributed cursors
// (PullRemote, Synchronize) are explicitly allowed to fail Reset with an
// Unsupported error.
type Cursor interface {
	Pull(ctx context.Context, frame *gval.Frame, execCtx *ExecContext) (bool, error)
	Reset() error

	// Close releases any resources (child cursors, remote futures) this
	// cursor holds, unwinding the same way a HintedAbort would.
	Close() error
}

// ExecContext carries everything an operator needs beyond its own local
// state: the transaction handle, query parameters, the profiling sink,
// and cancellation. One ExecContext is shared by every cursor in a plan
// tree for the lifetime of a single execution.
type ExecContext struct {
	Tx     *accessor.Transaction
	Params *gval.ParameterSet

	// Profile accumulates per-operator statistics when the query was run
	// with PROFILE rather than EXPLAIN or a plain execution.
	Profile *ProfileSink
}

func (ec *ExecContext) shouldAbort(ctx context.Context) bool {
	return ec.Tx != nil && ec.Tx.ShouldAbort(ctx)
}

// CheckAbort is the standard should_abort() guard operators call at the
// top of every Pull loop iteration, part of the cancellation model.
func CheckAbort(ctx context.Context, execCtx *ExecContext) error {
	if execCtx.shouldAbort(ctx) {
		return New(KindHintedAbort, "transaction aborted")
	}
	return nil
}

// ProfileSink accumulates per-operator pull counts and rows yielded,
// consulted by the Explain/Profile decorator operators.
type ProfileSink struct {
	entries map[string]*ProfileEntry
}

type ProfileEntry struct {
	Name       string
	PullCalls  int
	RowsYielded int
}

func NewProfileSink() *ProfileSink {
	return &ProfileSink{entries: make(map[string]*ProfileEntry)}
}

func (p *ProfileSink) Record(name string, produced bool) {
	e, ok := p.entries[name]
	if !ok {
		e = &ProfileEntry{Name: name}
		p.entries[name] = e
	}
	e.PullCalls++
	if produced {
		e.RowsYielded++
	}
}

func (p *ProfileSink) Entries() []*ProfileEntry {
	out := make([]*ProfileEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}
