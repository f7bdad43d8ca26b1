package refplan

import (
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// Parse turns an already-stripped query (see the interpreter package's
// Strip step) into a Plan: every literal in text is expected to already
// be a $-parameter reference, so the resulting Plan is shape-stable and
// safe to cache independently of the values a caller supplies.
func Parse(text string) (*planpb.Plan, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := newParser(toks, planpb.NewSymbolTable())
	return p.parseQuery()
}
