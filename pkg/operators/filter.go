package operators

import (
	"context"
	"sort"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Filter drops rows whose predicate is not strictly true (Null and
// non-boolean handling live in gexpr.FilterPredicate).
type Filter struct {
	Input     cursor.Cursor
	Predicate gexpr.Expr
	View      accessor.View
}

func (f *Filter) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		ok, err := f.Input.Pull(ctx, frame, execCtx)
		if err != nil || !ok {
			return false, err
		}
		pass, err := gexpr.FilterPredicate(execCtx, frame, f.View, f.Predicate)
		if err != nil {
			return false, err
		}
		if pass {
			return true, nil
		}
	}
}

func (f *Filter) Reset() error { return f.Input.Reset() }
func (f *Filter) Close() error { return f.Input.Close() }

// NamedExpr binds an evaluated expression to a frame symbol; Produce and
// aggregation grouping keys both use it.
type NamedExpr struct {
	Symbol gval.Symbol
	Expr   gexpr.Expr
}

// Produce evaluates named expressions into the frame under NEW view.
type Produce struct {
	Input       cursor.Cursor
	Projections []NamedExpr
}

func (p *Produce) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := p.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	for _, proj := range p.Projections {
		v, err := proj.Expr.Eval(execCtx, frame, accessor.ViewNew)
		if err != nil {
			return false, err
		}
		frame.Set(proj.Symbol, v)
	}
	return true, nil
}

func (p *Produce) Reset() error { return p.Input.Reset() }
func (p *Produce) Close() error { return p.Input.Close() }

// Distinct deduplicates rows by a symbol tuple; its memory is bounded only
// by input, i.e. it keeps every distinct key seen.
type Distinct struct {
	Input cursor.Cursor
	Keys  []gval.Symbol

	seen map[string]struct{}
}

func (d *Distinct) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if d.seen == nil {
		d.seen = make(map[string]struct{})
	}
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		ok, err := d.Input.Pull(ctx, frame, execCtx)
		if err != nil || !ok {
			return false, err
		}
		key := distinctKey(frame, d.Keys)
		if _, dup := d.seen[key]; dup {
			continue
		}
		d.seen[key] = struct{}{}
		return true, nil
	}
}

func distinctKey(frame *gval.Frame, keys []gval.Symbol) string {
	out := make([]byte, 0, 32)
	for _, k := range keys {
		out = append(out, []byte(frame.Get(k).GoString())...)
		out = append(out, 0)
	}
	return string(out)
}

func (d *Distinct) Reset() error {
	d.seen = nil
	return d.Input.Reset()
}
func (d *Distinct) Close() error { return d.Input.Close() }

// Skip discards the first N rows, evaluated once on first pull; a non-int
// or negative result is a QueryRuntime error.
type Skip struct {
	Input cursor.Cursor
	Count gexpr.Expr

	resolved bool
	n        int64
	skipped  int64
}

func (s *Skip) resolve(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) error {
	v, err := s.Count.Eval(execCtx, frame, accessor.ViewOld)
	if err != nil {
		return err
	}
	n, ok := v.AsInt()
	if !ok || n < 0 {
		return cursor.New(cursor.KindQueryRuntime, "SKIP requires a non-negative integer")
	}
	s.n = n
	s.resolved = true
	return nil
}

func (s *Skip) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return false, err
		}
		ok, err := s.Input.Pull(ctx, frame, execCtx)
		if err != nil || !ok {
			return false, err
		}
		if !s.resolved {
			if err := s.resolve(ctx, frame, execCtx); err != nil {
				return false, err
			}
		}
		if s.skipped < s.n {
			s.skipped++
			continue
		}
		return true, nil
	}
}

func (s *Skip) Reset() error {
	s.resolved = false
	s.skipped = 0
	return s.Input.Reset()
}
func (s *Skip) Close() error { return s.Input.Close() }

// Limit yields at most N rows.
type Limit struct {
	Input cursor.Cursor
	Count gexpr.Expr

	resolved bool
	n        int64
	yielded  int64
}

func (l *Limit) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := l.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	if !l.resolved {
		v, err := l.Count.Eval(execCtx, frame, accessor.ViewOld)
		if err != nil {
			return false, err
		}
		n, isInt := v.AsInt()
		if !isInt || n < 0 {
			return false, cursor.New(cursor.KindQueryRuntime, "LIMIT requires a non-negative integer")
		}
		l.n = n
		l.resolved = true
	}
	if l.yielded >= l.n {
		return false, nil
	}
	l.yielded++
	return true, nil
}

func (l *Limit) Reset() error {
	l.resolved = false
	l.yielded = 0
	return l.Input.Reset()
}
func (l *Limit) Close() error { return l.Input.Close() }

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Expr       gexpr.Expr
	Descending bool
}

// OrderBy buffers all input, sorts with Null last per key, then streams.
type OrderBy struct {
	Input cursor.Cursor
	Keys  []OrderKey

	buffered []*gval.Frame
	pos      int
	loaded   bool
}

func (o *OrderBy) load(ctx context.Context, execCtx *cursor.ExecContext, size int) error {
	var rows []*gval.Frame
	var keyVals [][]gval.TypedValue
	for {
		if err := cursor.CheckAbort(ctx, execCtx); err != nil {
			return err
		}
		frame := gval.NewFrame(size)
		ok, err := o.Input.Pull(ctx, frame, execCtx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys := make([]gval.TypedValue, len(o.Keys))
		for i, k := range o.Keys {
			v, err := k.Expr.Eval(execCtx, frame, accessor.ViewOld)
			if err != nil {
				return err
			}
			keys[i] = v
		}
		rows = append(rows, frame.Clone())
		keyVals = append(keyVals, keys)
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keyVals[idx[a]], keyVals[idx[b]]
		for i := range ka {
			c := compareOrderKey(ka[i], kb[i])
			if c == 0 {
				continue
			}
			if o.Keys[i].Descending && !ka[i].IsNull() && !kb[i].IsNull() {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	o.buffered = make([]*gval.Frame, len(rows))
	for i, j := range idx {
		o.buffered[i] = rows[j]
	}
	o.loaded = true
	return nil
}

// compareOrderKey sorts Null last regardless of ASC/DESC direction.
func compareOrderKey(a, b gval.TypedValue) int {
	c, ok := gval.Compare(a, b)
	if ok {
		return c
	}
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return 1
	}
	if b.IsNull() {
		return -1
	}
	return 0
}

func (o *OrderBy) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if !o.loaded {
		if err := o.load(ctx, execCtx, frame.Size()); err != nil {
			return false, err
		}
	}
	if o.pos >= len(o.buffered) {
		return false, nil
	}
	frame.CopyFrom(o.buffered[o.pos])
	o.pos++
	return true, nil
}

func (o *OrderBy) Reset() error {
	o.loaded = false
	o.buffered = nil
	o.pos = 0
	return o.Input.Reset()
}
func (o *OrderBy) Close() error { return o.Input.Close() }

// Union streams every row of Left, then every row of Right, projecting
// each branch's rows onto a shared set of output symbols.
type Union struct {
	Left, Right cursor.Cursor
	// LeftSymbols/RightSymbols map the union's own output symbols to
	// each branch's local symbols, by position.
	LeftSymbols, RightSymbols []gval.Symbol
	Output                    []gval.Symbol

	onRight bool
}

func (u *Union) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	if !u.onRight {
		inner := gval.NewFrame(frame.Size())
		ok, err := u.Left.Pull(ctx, inner, execCtx)
		if err != nil {
			return false, err
		}
		if ok {
			projectUnion(frame, inner, u.LeftSymbols, u.Output)
			return true, nil
		}
		u.onRight = true
	}
	inner := gval.NewFrame(frame.Size())
	ok, err := u.Right.Pull(ctx, inner, execCtx)
	if err != nil || !ok {
		return false, err
	}
	projectUnion(frame, inner, u.RightSymbols, u.Output)
	return true, nil
}

func projectUnion(dst, src *gval.Frame, from, to []gval.Symbol) {
	for i := range to {
		dst.Set(to[i], src.Get(from[i]))
	}
}

func (u *Union) Reset() error {
	u.onRight = false
	if err := u.Left.Reset(); err != nil {
		return err
	}
	return u.Right.Reset()
}
func (u *Union) Close() error {
	if err := u.Left.Close(); err != nil {
		return err
	}
	return u.Right.Close()
}

// Cartesian materializes the left branch, then for each right row replays
// every left row, restoring both frame projections.
type Cartesian struct {
	Left, Right cursor.Cursor

	leftRows []*gval.Frame
	leftIdx  int
	loaded   bool
	rightRow *gval.Frame
}

func (c *Cartesian) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	if !c.loaded {
		for {
			row := gval.NewFrame(frame.Size())
			ok, err := c.Left.Pull(ctx, row, execCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			c.leftRows = append(c.leftRows, row.Clone())
		}
		c.loaded = true
		c.leftIdx = len(c.leftRows) // fetch a right row before the first replay
		if len(c.leftRows) == 0 {
			return false, nil
		}
	}

	if c.leftIdx >= len(c.leftRows) {
		right := gval.NewFrame(frame.Size())
		ok, err := c.Right.Pull(ctx, right, execCtx)
		if err != nil || !ok {
			return false, err
		}
		c.rightRow = right
		c.leftIdx = 0
	}
	mergeCartesian(frame, c.leftRows[c.leftIdx], c.rightRow)
	c.leftIdx++
	return true, nil
}

// mergeCartesian restores both frame projections a Cartesian row carries:
// the left and right branches bind disjoint symbol positions, so the merged
// row is left's cells with right's non-Null cells layered on top.
func mergeCartesian(dst, left, right *gval.Frame) {
	dst.CopyFrom(left)
	for pos := 0; pos < right.Size(); pos++ {
		if v := right.GetAt(pos); !v.IsNull() {
			dst.SetAt(pos, v)
		}
	}
}

func (c *Cartesian) Reset() error {
	c.loaded = false
	c.leftRows = nil
	c.leftIdx = 0
	if err := c.Left.Reset(); err != nil {
		return err
	}
	return c.Right.Reset()
}
func (c *Cartesian) Close() error {
	if err := c.Left.Close(); err != nil {
		return err
	}
	return c.Right.Close()
}
