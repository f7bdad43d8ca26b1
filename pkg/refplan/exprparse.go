package refplan

import (
	"strconv"
	"strings"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gexpr"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// parser walks a flat token stream with one token of lookahead, in the
// style of a conventional recursive-descent expression parser; symbols
// resolve through syms so a bare identifier inside an expression refers
// back to whatever pattern variable or WITH/RETURN alias declared it.
type parser struct {
	toks []token
	pos  int
	syms *planpb.SymbolTable

	// pendingAggs accumulates aggregate calls encountered anywhere inside
	// a RETURN expression (e.g. the two calls in `sum(2) + count(3)`);
	// parseReturn drains it into a single Aggregate node feeding whatever
	// Produce expression combines the results.
	pendingAggs []operators.AggregateExpr
}

func newParser(toks []token, syms *planpb.SymbolTable) *parser {
	return &parser{toks: toks, syms: syms}
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) peek(n int) token {
	if p.pos+n >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos+n]
}
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) atPunct(s string) bool {
	t := p.cur()
	return (t.kind == tokPunct || t.kind == tokArrow) && t.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return cursor.New(cursor.KindSyntax, "expected %q, found %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return cursor.New(cursor.KindSyntax, "expected %s, found %q", kw, p.cur().text)
	}
	p.advance()
	return nil
}

// parseExpr parses a full expression at the lowest precedence: OR/XOR.
func (p *parser) parseExpr() (gexpr.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (gexpr.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") || p.atKeyword("XOR") {
		op := p.advance().text
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if op == "OR" {
			left = gexpr.Or{X: left, Y: right}
		} else {
			left = gexpr.Xor{X: left, Y: right}
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (gexpr.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = gexpr.And{X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (gexpr.Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return gexpr.Not{X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (gexpr.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("="):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpEQ, X: left, Y: right}
		case p.atPunct("<>"):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpNE, X: left, Y: right}
		case p.atPunct("<="):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpLE, X: left, Y: right}
		case p.atPunct(">="):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpGE, X: left, Y: right}
		case p.atPunct("<"):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpLT, X: left, Y: right}
		case p.atPunct(">"):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.Compare{Op: gexpr.OpGT, X: left, Y: right}
		case p.atKeyword("IN"):
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = gexpr.InList{X: left, List: right}
		case p.atKeyword("IS"):
			p.advance()
			negate := false
			if p.atKeyword("NOT") {
				negate = true
				p.advance()
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = gexpr.IsNullCheck{X: left, Negate: negate}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdditive() (gexpr.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("+"):
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = gexpr.Arithmetic{Op: gexpr.OpAdd, X: left, Y: right}
		case p.atPunct("-"):
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = gexpr.Arithmetic{Op: gexpr.OpSub, X: left, Y: right}
		case p.atPunct("|") && p.peek(1).kind == tokPunct && p.peek(1).text == "|":
			p.advance()
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = gexpr.StringConcat{X: left, Y: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (gexpr.Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("*"):
			p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = gexpr.Arithmetic{Op: gexpr.OpMul, X: left, Y: right}
		case p.atPunct("/"):
			p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = gexpr.Arithmetic{Op: gexpr.OpDiv, X: left, Y: right}
		case p.atPunct("%"):
			p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = gexpr.Arithmetic{Op: gexpr.OpMod, X: left, Y: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parsePower() (gexpr.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.atPunct("^") {
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return gexpr.Arithmetic{Op: gexpr.OpPow, X: left, Y: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (gexpr.Expr, error) {
	if p.atPunct("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return gexpr.UnaryMinus{X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (gexpr.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.atPunct(".") {
		p.advance()
		if p.cur().kind != tokIdent && p.cur().kind != tokKeyword {
			return nil, cursor.New(cursor.KindSyntax, "expected property name after '.'")
		}
		name := p.advance().text
		x = gexpr.PropertyLookup{Target: x, Name: name}
	}
	return x, nil
}

func (p *parser) parsePrimary() (gexpr.Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		return numberLiteral(t.text)
	case t.kind == tokString:
		p.advance()
		return gexpr.Literal{Value: gval.String(t.text)}, nil
	case t.kind == tokParam:
		p.advance()
		if n, err := strconv.Atoi(t.text); err == nil {
			return gexpr.PositionalParam{Position: n}, nil
		}
		return gexpr.NamedParam{Name: t.text}, nil
	case t.kind == tokKeyword && t.text == "TRUE":
		p.advance()
		return gexpr.Literal{Value: gval.Bool(true)}, nil
	case t.kind == tokKeyword && t.text == "FALSE":
		p.advance()
		return gexpr.Literal{Value: gval.Bool(false)}, nil
	case t.kind == tokKeyword && t.text == "NULL":
		p.advance()
		return gexpr.Literal{Value: gval.Null}, nil
	case t.kind == tokPunct && t.text == "(":
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case t.kind == tokPunct && t.text == "[":
		return p.parseListLiteral()
	case t.kind == tokPunct && t.text == "{":
		entries, err := p.parseMapLiteral()
		if err != nil {
			return nil, err
		}
		return gexpr.MapLiteral{Entries: entries}, nil
	case (t.kind == tokIdent || t.kind == tokKeyword) && p.peek(1).kind == tokPunct && p.peek(1).text == "(" && isAggregateName(t.text):
		return p.parseAggregateCall()
	case t.kind == tokIdent && p.peek(1).kind == tokPunct && p.peek(1).text == "(":
		return p.parseFunctionCall()
	case t.kind == tokIdent:
		p.advance()
		sym, ok := p.syms.Lookup(t.text)
		if !ok {
			return nil, cursor.New(cursor.KindSemantic, "undeclared identifier %q", t.text)
		}
		return gexpr.SymbolRef{Sym: sym}, nil
	default:
		return nil, cursor.New(cursor.KindSyntax, "unexpected token %q", t.text)
	}
}

func (p *parser) parseListLiteral() (gexpr.Expr, error) {
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	var items []gexpr.Expr
	for !p.atPunct("]") {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return gexpr.ListLiteral{Items: items}, nil
}

func (p *parser) parseMapLiteral() (map[string]gexpr.Expr, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	entries := map[string]gexpr.Expr{}
	for !p.atPunct("}") {
		if p.cur().kind != tokIdent && p.cur().kind != tokKeyword {
			return nil, cursor.New(cursor.KindSyntax, "expected property key in map literal")
		}
		key := p.advance().text
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries[key] = val
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *parser) parseFunctionCall() (gexpr.Expr, error) {
	name := p.advance().text
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []gexpr.Expr
	for !p.atPunct(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return gexpr.FunctionCall{Name: name, Args: args}, nil
}

func numberLiteral(text string) (gexpr.Expr, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, cursor.Wrap(cursor.KindSyntax, err, "invalid numeric literal %q", text)
		}
		return gexpr.Literal{Value: gval.Double(f)}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, cursor.Wrap(cursor.KindSyntax, err, "invalid numeric literal %q", text)
	}
	return gexpr.Literal{Value: gval.Int(n)}, nil
}
