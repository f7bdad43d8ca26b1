// Package planpb is the pure-data contract between a planner and the
// interpreter entry point: a logical plan is a tree of
// Node values naming an operator kind plus the data that operator needs,
// with no behavior attached. pkg/refplan is one producer of this
// contract; pkg/interpreter's builder is its only consumer, translating a
// Node tree into a pkg/operators.Cursor tree bound to a live transaction.
//
// Field reuse across Kinds mostly mirrors the corresponding pkg/operators
// struct's own field names, so the builder in most cases performs a
// direct one-to-one construction; the few fields named differently are
// mapped by pkg/interpreter's Build.
package planpb

import (
	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
)

// Kind names which operator a Node compiles to.
type Kind uint8

const (
	KindOnce Kind = iota
	KindScanAll
	KindExpand
	KindExpandVariable
	KindExpandBFS
	KindExpandWSP
	KindConstructNamedPath
	KindFilter
	KindProduce
	KindDistinct
	KindSkip
	KindLimit
	KindOrderBy
	KindUnion
	KindCartesian
	KindCreateNode
	KindCreateExpand
	KindDelete
	KindSetProperty
	KindSetProperties
	KindSetLabels
	KindRemoveProperty
	KindRemoveLabels
	KindMerge
	KindAccumulate
	KindAggregate
	KindOptional
	KindUnwind
	KindApply
	KindAdvanceCommand
	KindDDL
)

// Node is one plan-tree vertex. Only the fields relevant to Kind are
// populated; the rest are left zero.
type Node struct {
	Kind Kind

	Input  *Node // single-child operators
	Left   *Node // Union/Cartesian
	Right  *Node
	Branch *Node // Optional/Apply's correlated subtree
	Match  *Node // Merge's lookup subtree

	// Source / traversal.
	OutputVertex  gval.Symbol
	InputVertex   gval.Symbol
	OutputEdge    gval.Symbol
	OutputOther   gval.Symbol
	OutputEdges   gval.Symbol
	OutputPath    gval.Symbol
	StartVertex   gval.Symbol
	EdgeList      gval.Symbol
	TargetVertex  gval.Symbol // ExpandWSP's optional single-target restriction
	OutputWeight  gval.Symbol // ExpandWSP's accumulated-weight output
	View          accessor.View
	Label         string
	PropertyName  string
	PropertyValue gval.TypedValue
	PropertyRange *operators.PropertyRangeSpec
	Direction     gstore.Direction
	EdgeTypes     []string
	MinHops       int
	MaxHops       int
	WeightProp    string
	HopFilter     gexpr.Expr

	// Filter / projection.
	Predicate     gexpr.Expr
	Projections   []operators.NamedExpr
	Keys          []gval.Symbol
	Count         gexpr.Expr
	OrderKeys     []operators.OrderKey
	LeftSymbols   []gval.Symbol
	RightSymbols  []gval.Symbol
	OutputSymbols []gval.Symbol

	// Mutation.
	Labels        []string
	Properties    []operators.PropertyExpr
	ExistingOther gval.Symbol
	OtherLabels   []string
	OtherProps    []operators.PropertyExpr
	EdgeType      string
	EdgeProps     []operators.PropertyExpr
	Reversed      bool
	Targets       []gval.Symbol
	Detach        bool
	Target        gval.Symbol
	PropName      string
	Value         gexpr.Expr
	Mode          operators.PropertyWriteMode
	OnCreate      []operators.PropertyExpr
	OnMatch       []operators.PropertyExpr

	// Aggregation.
	GroupKeys  []operators.NamedExpr
	Aggregates []operators.AggregateExpr

	// Optional / Unwind / Apply.
	Symbols    []gval.Symbol
	List       gexpr.Expr
	Output     gval.Symbol
	OnlyExists bool
	Negate     bool

	// DDL/Admin (CreateIndex, CreateStream, DropStream, ShowStreams,
	// StartStream, StopStream, TestStream, AuthQuery). Label/PropertyName
	// above double as CreateIndex's label+property.
	DDLKind    operators.DDLKind
	StreamName string
}

// Plan is a complete query plan: the operator tree plus the ordered
// result columns a client should render when translating typed values to
// the wire representation.
type Plan struct {
	Root      *Node
	Width     int
	Columns   []Column
	Cacheable bool
}

// Column is one RETURN projection: the wire-visible name and the symbol
// (already computed by the plan's Produce node) that holds its value.
type Column struct {
	Name   string
	Symbol gval.Symbol
}

// SymbolTable assigns stable frame positions to variable names as a query
// is planned, and mints fresh synthetic symbols for intermediate values
// (e.g. an unnamed relationship in a pattern), per the GLOSSARY's
// definition of Symbol.
type SymbolTable struct {
	byName map[string]gval.Symbol
	width  int
	synth  int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]gval.Symbol)}
}

// Declare returns name's existing symbol if already bound in this query,
// or allocates a new one at the next frame position.
func (t *SymbolTable) Declare(name string) gval.Symbol {
	if sym, ok := t.byName[name]; ok {
		return sym
	}
	sym := gval.Symbol{Name: name, Position: t.width, UserDeclared: true}
	t.byName[name] = sym
	t.width++
	return sym
}

// Lookup reports whether name has already been bound.
func (t *SymbolTable) Lookup(name string) (gval.Symbol, bool) {
	sym, ok := t.byName[name]
	return sym, ok
}

// Synthesize allocates a planner-private symbol with no source-level
// name, used for intermediate bindings a query never references directly
// (an unbound relationship in a pattern, a MERGE lookup's throwaway row).
func (t *SymbolTable) Synthesize(hint string) gval.Symbol {
	t.synth++
	sym := gval.Symbol{Name: hint, Position: t.width, UserDeclared: false}
	t.width++
	return sym
}

// DeclareAlias allocates a fresh symbol at the next frame position and
// binds name to it, shadowing any earlier symbol of the same name — the
// binding a RETURN/WITH item's `AS name` needs so a later ORDER BY, SKIP,
// or LIMIT expression in the same clause can refer back to it by name.
// Unlike Declare, it never reuses an existing symbol: each projected
// column gets its own position even if two columns share a display name.
func (t *SymbolTable) DeclareAlias(name string) gval.Symbol {
	sym := gval.Symbol{Name: name, Position: t.width, UserDeclared: true}
	t.byName[name] = sym
	t.width++
	return sym
}

func (t *SymbolTable) Width() int { return t.width }

// SymbolsFrom returns every declared symbol whose frame position is at
// least from, in position order — the set a planner needs to null out
// when a branch (e.g. an unmatched OPTIONAL MATCH) contributes no row.
func (t *SymbolTable) SymbolsFrom(from int) []gval.Symbol {
	out := make([]gval.Symbol, 0, t.width-from)
	for i := from; i < t.width; i++ {
		out = append(out, gval.Symbol{Position: i})
	}
	for _, sym := range t.byName {
		if sym.Position >= from {
			out[sym.Position-from] = sym
		}
	}
	return out
}
