// Package operators implements the pull-based operator tree that a query
// plan compiles to: leaf/source, traversal, filter/projection, mutation,
// aggregation, optional/unwind, and distributed operators, each a
// pkg/cursor.Cursor. Grounded on pkg/cypher/match.go, traversal.go,
// create.go, and clauses.go for clause semantics, split out of a
// monolithic string-driven executor into individual pull-based cursor
// types.
package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Once yields a single empty row then exhausts; it is the driver every
// operator without an input plugs into.
type Once struct {
	done bool
}

func NewOnce() *Once { return &Once{} }

func (o *Once) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	if o.done {
		return false, nil
	}
	o.done = true
	return true, nil
}

func (o *Once) Reset() error { o.done = false; return nil }
func (o *Once) Close() error { return nil }

// ScanAll produces a row per vertex visible in the requested view,
// optionally restricted by label and/or a property predicate/range.
// Property-value evaluating to Null skips the row rather than erroring.
type ScanAll struct {
	OutputVertex gval.Symbol
	View         accessor.View
	Label        string // "" means unfiltered

	// PropertyName + PropertyValue implement ByLabelPropertyValue when
	// both PropertyName and PropertyValue are set; PropertyRange
	// implements ByLabelPropertyRange when set instead. Exactly one, or
	// neither, of these two modes should be populated at plan time.
	PropertyName  string
	PropertyValue gval.TypedValue
	PropertyRange *PropertyRangeSpec

	addrs []gstore.Address
	pos   int
	ready bool
}

// PropertyRangeSpec carries the optional lower/upper bounds of a range
// scan; either bound may be nil but not both.
type PropertyRangeSpec struct {
	Property string
	Lower    *gstore.RangeBound
	Upper    *gstore.RangeBound
}

func (s *ScanAll) load(execCtx *cursor.ExecContext) {
	tx := execCtx.Tx
	switch {
	case s.PropertyRange != nil:
		s.addrs = tx.VerticesByPropertyRange(s.Label, s.PropertyRange.Property, s.PropertyRange.Lower, s.PropertyRange.Upper, s.View)
	case s.PropertyName != "" && !s.PropertyValue.IsNull():
		s.addrs = tx.VerticesByProperty(s.Label, s.PropertyName, s.PropertyValue, s.View)
	case s.PropertyName != "" && s.PropertyValue.IsNull():
		// Property value evaluated to Null: skip every row without
		// consulting the index.
		s.addrs = nil
	case s.Label != "":
		s.addrs = tx.VerticesByLabel(s.Label, s.View)
	default:
		s.addrs = tx.Vertices(s.View)
	}
	s.pos = 0
	s.ready = true
}

func (s *ScanAll) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	if !s.ready {
		s.load(execCtx)
	}
	if s.pos >= len(s.addrs) {
		return false, nil
	}
	addr := s.addrs[s.pos]
	s.pos++

	va := execCtx.Tx.Vertex(addr)
	if s.View == accessor.ViewNew {
		va.SwitchNew()
	}
	frame.Set(s.OutputVertex, gval.Vertex(va))
	return true, nil
}

func (s *ScanAll) Reset() error { s.ready = false; return nil }
func (s *ScanAll) Close() error { return nil }
