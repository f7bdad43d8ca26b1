package refplan

import (
	"strconv"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// nodePattern is one parenthesized node in a MATCH/CREATE/MERGE pattern.
type nodePattern struct {
	varName string
	labels  []string
	props   map[string]gexpr.Expr
	fresh   bool // true if varName was not already bound in the symbol table
}

// relPattern is one bracketed relationship hop between two nodePatterns.
type relPattern struct {
	varName   string
	edgeTypes []string
	dir       gstore.Direction // gstore.DirOut, DirIn, or DirBoth for undirected
	minHops   int
	maxHops   int
	variable  bool
}

func (p *parser) parseNodePattern() (*nodePattern, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	np := &nodePattern{props: map[string]gexpr.Expr{}}
	if p.cur().kind == tokIdent {
		np.varName = p.advance().text
	}
	for p.atPunct(":") {
		p.advance()
		if p.cur().kind != tokIdent && p.cur().kind != tokKeyword {
			return nil, cursor.New(cursor.KindSyntax, "expected label after ':'")
		}
		np.labels = append(np.labels, p.advance().text)
	}
	if p.atPunct("{") {
		props, err := p.parseMapLiteral()
		if err != nil {
			return nil, err
		}
		np.props = props
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if np.varName != "" {
		if _, ok := p.syms.Lookup(np.varName); !ok {
			np.fresh = true
		}
	} else {
		np.fresh = true
	}
	return np, nil
}

// parseRelPattern parses one relationship hop, e.g. -[r:KNOWS*1..2]-> or
// <-[:LIKES]- or the bare arrow forms --> / <-- / --.
func (p *parser) parseRelPattern() (*relPattern, error) {
	rp := &relPattern{dir: gstore.DirBoth, minHops: 1, maxHops: 1}

	leftArrow := false
	if p.atArrow("<-") {
		leftArrow = true
		p.advance()
	} else if err := p.expectPunct("-"); err != nil {
		return nil, err
	}

	if p.atPunct("[") {
		p.advance()
		if p.cur().kind == tokIdent {
			rp.varName = p.advance().text
		}
		if p.atPunct(":") {
			p.advance()
			rp.edgeTypes = append(rp.edgeTypes, p.advance().text)
			for p.atPunct("|") {
				p.advance()
				rp.edgeTypes = append(rp.edgeTypes, p.advance().text)
			}
		}
		if p.atPunct("*") {
			p.advance()
			rp.variable = true
			rp.minHops, rp.maxHops = 1, -1
			if p.cur().kind == tokNumber {
				n, _ := strconv.Atoi(p.advance().text)
				rp.minHops = n
				rp.maxHops = n
			}
			if p.cur().kind == tokDotDot {
				p.advance()
				rp.maxHops = -1
				if p.cur().kind == tokNumber {
					n, _ := strconv.Atoi(p.advance().text)
					rp.maxHops = n
				}
			}
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	rightArrow := false
	if p.atArrow("->") {
		rightArrow = true
		p.advance()
	} else if err := p.expectPunct("-"); err != nil {
		return nil, err
	}

	switch {
	case leftArrow && !rightArrow:
		rp.dir = gstore.DirIn
	case rightArrow && !leftArrow:
		rp.dir = gstore.DirOut
	default:
		rp.dir = gstore.DirBoth
	}
	return rp, nil
}

func (p *parser) atArrow(s string) bool {
	t := p.cur()
	return t.kind == tokArrow && t.text == s
}

// parsePattern parses a single path pattern: a node, optionally followed
// by one relationship hop and a second node. Patterns with more than one
// hop are out of scope.
func (p *parser) parsePattern() ([]*nodePattern, []*relPattern, error) {
	var nodes []*nodePattern
	var rels []*relPattern

	n, err := p.parseNodePattern()
	if err != nil {
		return nil, nil, err
	}
	nodes = append(nodes, n)

	for p.atPunct("-") || p.atArrow("<-") {
		r, err := p.parseRelPattern()
		if err != nil {
			return nil, nil, err
		}
		rels = append(rels, r)
		n, err := p.parseNodePattern()
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) > 2 {
		return nil, nil, cursor.New(cursor.KindSyntax, "patterns with more than one relationship hop are not supported")
	}
	return nodes, rels, nil
}

// planMatchPattern turns a parsed pattern into a scan/expand chain reading
// against view, declaring fresh variables in p.syms as it goes.
func (p *parser) planMatchPattern(nodes []*nodePattern, rels []*relPattern, view accessor.View) (*planpb.Node, error) {
	first := nodes[0]
	firstSym := p.declareOrLookup(first)
	root := &planpb.Node{
		Kind:         planpb.KindScanAll,
		OutputVertex: firstSym,
		View:         view,
		Label:        soleLabel(first.labels),
	}
	if len(first.props) == 1 {
		for name, expr := range first.props {
			if lit, ok := expr.(gexpr.Literal); ok {
				root.PropertyName = name
				root.PropertyValue = lit.Value
			}
		}
	}

	if len(rels) == 0 {
		return root, nil
	}

	rel := rels[0]
	second := nodes[1]
	secondSym := p.declareOrLookup(second)

	var relSym gval.Symbol
	if rel.varName != "" {
		relSym = p.syms.Declare(rel.varName)
	} else {
		relSym = p.syms.Synthesize("edge")
	}

	if rel.variable {
		max := rel.maxHops
		return &planpb.Node{
			Kind:        planpb.KindExpandVariable,
			Input:       root,
			InputVertex: firstSym,
			OutputOther: secondSym,
			OutputEdges: relSym,
			Direction:   rel.dir,
			EdgeTypes:   rel.edgeTypes,
			MinHops:     rel.minHops,
			MaxHops:     max,
			View:        view,
		}, nil
	}

	return &planpb.Node{
		Kind:        planpb.KindExpand,
		Input:       root,
		InputVertex: firstSym,
		OutputEdge:  relSym,
		OutputOther: secondSym,
		Direction:   rel.dir,
		EdgeTypes:   rel.edgeTypes,
		View:        view,
	}, nil
}

func (p *parser) declareOrLookup(n *nodePattern) gval.Symbol {
	if n.varName == "" {
		return p.syms.Synthesize("node")
	}
	return p.syms.Declare(n.varName)
}

func soleLabel(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

// planCreatePattern turns a parsed CREATE pattern into a CreateNode /
// CreateExpand chain rooted at input.
func (p *parser) planCreatePattern(input *planpb.Node, nodes []*nodePattern, rels []*relPattern) (*planpb.Node, error) {
	first := nodes[0]
	firstSym := p.declareOrLookup(first)
	props, err := propsToPropertyExpr(first.props)
	if err != nil {
		return nil, err
	}
	chain := &planpb.Node{
		Kind:       planpb.KindCreateNode,
		Input:      input,
		Output:     firstSym,
		Labels:     first.labels,
		Properties: props,
	}
	if len(rels) == 0 {
		return chain, nil
	}

	rel := rels[0]
	second := nodes[1]
	var existing gval.Symbol
	fresh := true
	if !second.fresh {
		existing, _ = p.syms.Lookup(second.varName)
		fresh = false
	}
	secondSym := p.declareOrLookup(second)

	var relSym gval.Symbol
	if rel.varName != "" {
		relSym = p.syms.Declare(rel.varName)
	} else {
		relSym = p.syms.Synthesize("edge")
	}

	otherProps, err := propsToPropertyExpr(second.props)
	if err != nil {
		return nil, err
	}

	edgeType := ""
	if len(rel.edgeTypes) > 0 {
		edgeType = rel.edgeTypes[0]
	}

	node := &planpb.Node{
		Kind:        planpb.KindCreateExpand,
		Input:       chain,
		Target:      firstSym,
		OtherLabels: second.labels,
		OtherProps:  otherProps,
		OutputOther: secondSym,
		OutputEdge:  relSym,
		EdgeType:    edgeType,
		EdgeProps:   nil,
		Reversed:    rel.dir == gstore.DirIn,
	}
	if !fresh {
		node.ExistingOther = existing
	}
	return node, nil
}

func propsToPropertyExpr(props map[string]gexpr.Expr) ([]operators.PropertyExpr, error) {
	out := make([]operators.PropertyExpr, 0, len(props))
	for name, expr := range props {
		out = append(out, operators.PropertyExpr{Name: name, Expr: expr})
	}
	return out, nil
}
