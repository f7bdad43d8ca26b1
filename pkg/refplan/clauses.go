package refplan

import (
	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// parseQuery drives the clause sequence, threading the plan chain forward
// exactly the way pkg/cypher/executor.go's Execute dispatch threads
// execution state forward clause by clause, except here each step appends
// a planpb.Node instead of running one.
func (p *parser) parseQuery() (*planpb.Plan, error) {
	var chain *planpb.Node = &planpb.Node{Kind: planpb.KindOnce}

	for {
		switch {
		case p.atKeyword("OPTIONAL"):
			p.advance()
			if err := p.expectKeyword("MATCH"); err != nil {
				return nil, err
			}
			startWidth := p.syms.Width()
			branch, err := p.parseMatchClause(&planpb.Node{Kind: planpb.KindOnce})
			if err != nil {
				return nil, err
			}
			newSyms := p.syms.SymbolsFrom(startWidth)
			optional := &planpb.Node{Kind: planpb.KindOptional, Branch: branch, Symbols: newSyms}
			chain = &planpb.Node{Kind: planpb.KindApply, Input: chain, Branch: optional}

		case p.atKeyword("MATCH"):
			p.advance()
			var err error
			chain, err = p.parseMatchClause(chain)
			if err != nil {
				return nil, err
			}

		case p.atKeyword("WHERE"):
			p.advance()
			pred, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			chain = &planpb.Node{Kind: planpb.KindFilter, Input: chain, Predicate: pred}

		case p.atKeyword("UNWIND"):
			p.advance()
			listExpr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if p.cur().kind != tokIdent {
				return nil, cursor.New(cursor.KindSyntax, "expected identifier after UNWIND ... AS")
			}
			name := p.advance().text
			sym := p.syms.Declare(name)
			chain = &planpb.Node{Kind: planpb.KindUnwind, Input: chain, List: listExpr, Output: sym}

		case p.atKeyword("CREATE"):
			p.advance()
			nodes, rels, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			chain, err = p.planCreatePattern(chain, nodes, rels)
			if err != nil {
				return nil, err
			}
			for p.atPunct(",") {
				p.advance()
				nodes, rels, err := p.parsePattern()
				if err != nil {
					return nil, err
				}
				chain, err = p.planCreatePattern(chain, nodes, rels)
				if err != nil {
					return nil, err
				}
			}

		case p.atKeyword("MERGE"):
			p.advance()
			var err error
			chain, err = p.parseMergeClause(chain)
			if err != nil {
				return nil, err
			}

		case p.atKeyword("DETACH"), p.atKeyword("DELETE"):
			detach := false
			if p.atKeyword("DETACH") {
				detach = true
				p.advance()
			}
			if err := p.expectKeyword("DELETE"); err != nil {
				return nil, err
			}
			var targets []gval.Symbol
			for {
				if p.cur().kind != tokIdent {
					return nil, cursor.New(cursor.KindSyntax, "expected identifier in DELETE")
				}
				sym, ok := p.syms.Lookup(p.advance().text)
				if !ok {
					return nil, cursor.New(cursor.KindSemantic, "DELETE target not bound")
				}
				targets = append(targets, sym)
				if p.atPunct(",") {
					p.advance()
					continue
				}
				break
			}
			chain = &planpb.Node{Kind: planpb.KindDelete, Input: chain, Targets: targets, Detach: detach}

		case p.atKeyword("SET"):
			p.advance()
			var err error
			chain, err = p.parseSetClause(chain)
			if err != nil {
				return nil, err
			}

		case p.atKeyword("REMOVE"):
			p.advance()
			var err error
			chain, err = p.parseRemoveClause(chain)
			if err != nil {
				return nil, err
			}

		case p.atKeyword("RETURN"):
			p.advance()
			return p.parseReturn(chain)

		default:
			return nil, cursor.New(cursor.KindSyntax, "unrecognized clause at %q", p.cur().text)
		}
	}
}

func (p *parser) parseMatchClause(chain *planpb.Node) (*planpb.Node, error) {
	nodes, rels, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	patternRoot, err := p.planMatchPattern(nodes, rels, accessor.ViewAsIs)
	if err != nil {
		return nil, err
	}
	patternRoot = spliceInput(patternRoot, chain)

	for p.atPunct(",") {
		p.advance()
		nodes, rels, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		next, err := p.planMatchPattern(nodes, rels, accessor.ViewAsIs)
		if err != nil {
			return nil, err
		}
		patternRoot = spliceInput(next, patternRoot)
	}
	return patternRoot, nil
}

// spliceInput rewrites the leaf ScanAll of a freshly-built pattern chain
// (a Once fed straight into the ScanAll built by planMatchPattern isn't
// used here) to instead read from prior, since the first vertex in a
// second comma-separated pattern still needs to see rows already bound.
func spliceInput(root, prior *planpb.Node) *planpb.Node {
	n := root
	for n.Input != nil {
		n = n.Input
	}
	n.Input = prior
	return root
}

func (p *parser) parseMergeClause(chain *planpb.Node) (*planpb.Node, error) {
	nodes, rels, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if len(rels) != 0 {
		return nil, cursor.New(cursor.KindSyntax, "MERGE of a relationship pattern is not supported")
	}
	n := nodes[0]
	sym := p.declareOrLookup(n)
	props, err := propsToPropertyExpr(n.props)
	if err != nil {
		return nil, err
	}

	matchRoot := &planpb.Node{Kind: planpb.KindScanAll, OutputVertex: sym, View: accessor.ViewAsIs, Label: soleLabel(n.labels)}
	if len(n.props) == 1 {
		for name, expr := range n.props {
			if lit, ok := expr.(gexpr.Literal); ok {
				matchRoot.PropertyName = name
				matchRoot.PropertyValue = lit.Value
			}
		}
	}

	merge := &planpb.Node{
		Kind:        planpb.KindMerge,
		Input:       chain,
		Match:       matchRoot,
		Labels:      n.labels,
		Properties:  props,
		Output:      sym,
	}

	for p.atKeyword("ON") {
		p.advance()
		switch {
		case p.atKeyword("CREATE"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			actions, err := p.parseSetPropertyList()
			if err != nil {
				return nil, err
			}
			merge.OnCreate = actions
		case p.atKeyword("MATCH"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			actions, err := p.parseSetPropertyList()
			if err != nil {
				return nil, err
			}
			merge.OnMatch = actions
		default:
			return nil, cursor.New(cursor.KindSyntax, "expected CREATE or MATCH after ON")
		}
	}
	return merge, nil
}

// parseSetPropertyList parses a comma-separated `var.prop = expr` list, as
// used by both the top-level SET clause and MERGE's ON CREATE/ON MATCH SET.
func (p *parser) parseSetPropertyList() ([]operators.PropertyExpr, error) {
	var out []operators.PropertyExpr
	for {
		if p.cur().kind != tokIdent {
			return nil, cursor.New(cursor.KindSyntax, "expected identifier in SET")
		}
		p.advance()
		if err := p.expectPunct("."); err != nil {
			return nil, err
		}
		if p.cur().kind != tokIdent {
			return nil, cursor.New(cursor.KindSyntax, "expected property name in SET")
		}
		propName := p.advance().text
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, operators.PropertyExpr{Name: propName, Expr: val})
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *parser) parseSetClause(chain *planpb.Node) (*planpb.Node, error) {
	for {
		if p.cur().kind != tokIdent {
			return nil, cursor.New(cursor.KindSyntax, "expected identifier in SET")
		}
		name := p.advance().text
		sym, ok := p.syms.Lookup(name)
		if !ok {
			return nil, cursor.New(cursor.KindSemantic, "SET target %q not bound", name)
		}

		switch {
		case p.atPunct("."):
			p.advance()
			if p.cur().kind != tokIdent {
				return nil, cursor.New(cursor.KindSyntax, "expected property name in SET")
			}
			propName := p.advance().text
			if err := p.expectPunct("="); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			chain = &planpb.Node{Kind: planpb.KindSetProperty, Input: chain, Target: sym, PropName: propName, Value: val}

		case p.atPunct("+=") || (p.atPunct("+") && p.peek(1).kind == tokPunct && p.peek(1).text == "="):
			if p.atPunct("+=") {
				p.advance()
			} else {
				p.advance()
				p.advance()
			}
			m, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			props, ok := m.(gexpr.MapLiteral)
			if !ok {
				return nil, cursor.New(cursor.KindSyntax, "SET += requires a map literal")
			}
			chain = &planpb.Node{Kind: planpb.KindSetProperties, Input: chain, Target: sym, Value: props, Mode: operators.WriteMerge}

		case p.atPunct("="):
			p.advance()
			m, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			props, ok := m.(gexpr.MapLiteral)
			if !ok {
				return nil, cursor.New(cursor.KindSyntax, "SET = on a bare identifier requires a map literal")
			}
			chain = &planpb.Node{Kind: planpb.KindSetProperties, Input: chain, Target: sym, Value: props, Mode: operators.WriteReplace}

		case p.atPunct(":"):
			p.advance()
			var labels []string
			for {
				labels = append(labels, p.advance().text)
				if p.atPunct(":") {
					p.advance()
					continue
				}
				break
			}
			chain = &planpb.Node{Kind: planpb.KindSetLabels, Input: chain, Target: sym, Labels: labels}

		default:
			return nil, cursor.New(cursor.KindSyntax, "unrecognized SET item")
		}

		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return chain, nil
}

func (p *parser) parseRemoveClause(chain *planpb.Node) (*planpb.Node, error) {
	for {
		if p.cur().kind != tokIdent {
			return nil, cursor.New(cursor.KindSyntax, "expected identifier in REMOVE")
		}
		name := p.advance().text
		sym, ok := p.syms.Lookup(name)
		if !ok {
			return nil, cursor.New(cursor.KindSemantic, "REMOVE target %q not bound", name)
		}
		switch {
		case p.atPunct("."):
			p.advance()
			if p.cur().kind != tokIdent {
				return nil, cursor.New(cursor.KindSyntax, "expected property name in REMOVE")
			}
			propName := p.advance().text
			chain = &planpb.Node{Kind: planpb.KindRemoveProperty, Input: chain, Target: sym, PropName: propName}
		case p.atPunct(":"):
			p.advance()
			var labels []string
			for {
				labels = append(labels, p.advance().text)
				if p.atPunct(":") {
					p.advance()
					continue
				}
				break
			}
			chain = &planpb.Node{Kind: planpb.KindRemoveLabels, Input: chain, Target: sym, Labels: labels}
		default:
			return nil, cursor.New(cursor.KindSyntax, "unrecognized REMOVE item")
		}
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return chain, nil
}

func (p *parser) parseReturn(chain *planpb.Node) (*planpb.Plan, error) {
	distinct := false
	if p.atKeyword("DISTINCT") {
		distinct = true
		p.advance()
	}

	var groupKeys []operators.NamedExpr
	var finalProjections []operators.NamedExpr
	var columns []planpb.Column

	for {
		aggsBefore := len(p.pendingAggs)
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		name := exprDisplayName(expr)
		if p.atKeyword("AS") {
			p.advance()
			if p.cur().kind != tokIdent {
				return nil, cursor.New(cursor.KindSyntax, "expected identifier after AS")
			}
			name = p.advance().text
		}
		var outSym gval.Symbol
		if name == "_" {
			// no display name to bind: nothing later in the clause can
			// refer to this column, so a plain synthetic position is enough.
			outSym = p.syms.Synthesize(name)
		} else {
			// bind name so a later ORDER BY / SKIP / LIMIT expression in
			// this same RETURN can resolve it.
			outSym = p.syms.DeclareAlias(name)
		}
		if ref, bare := expr.(gexpr.SymbolRef); bare && len(p.pendingAggs) == aggsBefore+1 &&
			ref.Sym.Position == p.pendingAggs[aggsBefore].Output.Position {
			// expr is one bare aggregate call: the Aggregate node writes its
			// result straight into this column's symbol, so no Produce is needed.
			p.pendingAggs[aggsBefore].Output = outSym
		} else if len(p.pendingAggs) > aggsBefore {
			// expr combines one or more aggregate results computed by the
			// Aggregate node about to be inserted; a Produce after it
			// evaluates the combination.
			finalProjections = append(finalProjections, operators.NamedExpr{Symbol: outSym, Expr: expr})
		} else {
			// expr has no aggregate in it: it is a grouping key. Its own
			// value is what every later column projects, so the same
			// symbol serves both roles.
			groupKeys = append(groupKeys, operators.NamedExpr{Symbol: outSym, Expr: expr})
		}
		columns = append(columns, planpb.Column{Name: name, Symbol: outSym})
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}

	if len(p.pendingAggs) > 0 {
		chain = &planpb.Node{Kind: planpb.KindAggregate, Input: chain, GroupKeys: groupKeys, Aggregates: p.pendingAggs}
		if len(finalProjections) > 0 {
			chain = &planpb.Node{Kind: planpb.KindProduce, Input: chain, Projections: finalProjections}
		}
	} else {
		chain = &planpb.Node{Kind: planpb.KindProduce, Input: chain, Projections: groupKeys}
	}

	if distinct {
		keys := make([]gval.Symbol, len(columns))
		for i, c := range columns {
			keys[i] = c.Symbol
		}
		chain = &planpb.Node{Kind: planpb.KindDistinct, Input: chain, Keys: keys}
	}

	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		var keys []operators.OrderKey
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.atKeyword("DESC") {
				desc = true
				p.advance()
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			keys = append(keys, operators.OrderKey{Expr: expr, Descending: desc})
			if p.atPunct(",") {
				p.advance()
				continue
			}
			break
		}
		chain = &planpb.Node{Kind: planpb.KindOrderBy, Input: chain, OrderKeys: keys}
	}

	if p.atKeyword("SKIP") {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		chain = &planpb.Node{Kind: planpb.KindSkip, Input: chain, Count: n}
	}
	if p.atKeyword("LIMIT") {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		chain = &planpb.Node{Kind: planpb.KindLimit, Input: chain, Count: n}
	}

	return &planpb.Plan{Root: chain, Width: p.syms.Width(), Columns: columns, Cacheable: true}, nil
}

func exprDisplayName(e gexpr.Expr) string {
	switch v := e.(type) {
	case gexpr.SymbolRef:
		return v.Sym.Name
	case gexpr.PropertyLookup:
		if ref, ok := v.Target.(gexpr.SymbolRef); ok {
			return ref.Sym.Name + "." + v.Name
		}
	}
	return "_"
}
