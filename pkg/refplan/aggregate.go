package refplan

import (
	"strings"

	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/operators"
)

var aggregateNames = map[string]operators.AggregateFunc{
	"COUNT":   operators.AggCount,
	"SUM":     operators.AggSum,
	"AVG":     operators.AggAvg,
	"MIN":     operators.AggMin,
	"MAX":     operators.AggMax,
	"COLLECT": operators.AggCollectList,
}

func isAggregateName(word string) bool {
	_, ok := aggregateNames[strings.ToUpper(word)]
	return ok
}

// parseAggregateCall consumes an aggregate call and replaces it, in the
// expression tree being built, with a reference to a synthetic symbol:
// the actual aggregation runs once as a single Aggregate node ahead of
// whatever RETURN expression combines its result, so `sum(2) + count(3)`
// plans as one Aggregate computing both sum and count feeding a Produce
// that adds them together.
func (p *parser) parseAggregateCall() (gexpr.Expr, error) {
	name := p.advance().text
	fn := aggregateNames[strings.ToUpper(name)]
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	if fn == operators.AggCount && p.atPunct("*") {
		p.advance()
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		sym := p.syms.Synthesize(strings.ToLower(name))
		p.pendingAggs = append(p.pendingAggs, operators.AggregateExpr{Output: sym, Func: operators.AggCountStar})
		return gexpr.SymbolRef{Sym: sym}, nil
	}

	distinct := false
	if p.atKeyword("DISTINCT") {
		distinct = true
		p.advance()
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	sym := p.syms.Synthesize(strings.ToLower(name))
	p.pendingAggs = append(p.pendingAggs, operators.AggregateExpr{Output: sym, Func: fn, Arg: arg, Distinct: distinct})
	return gexpr.SymbolRef{Sym: sym}, nil
}
