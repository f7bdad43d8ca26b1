// Package interpreter is the query entry point: it turns
// query text into rows by stripping literals for cache-key stability,
// resolving a plan (cache hit or a fresh Planner call), compiling that plan
// into a pkg/operators cursor tree bound to a live transaction, and pulling
// it to exhaustion. Grounded on pkg/cypher/executor.go's Execute, whose
// strip/route/run stages this package keeps but rebuilds around a typed
// planpb.Plan instead of routing on string prefixes.
package interpreter

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nornic-labs/graphcore/pkg/accessor"
	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gconfig"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/gval"
	"github.com/nornic-labs/graphcore/pkg/operators"
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// Planner turns stripped query text into a plan. pkg/refplan.Parse
// satisfies this signature; a real cost-based planner would too.
type Planner func(text string) (*planpb.Plan, error)

// Interpreter wires a Planner and a plan cache to a live gstore.Engine.
type Interpreter struct {
	Engine  *gstore.Engine
	Planner Planner
	Cache   *PlanCache
	Remote  accessor.RemoteInserter // nil in single-worker deployments

	Log *logrus.Logger
}

// New builds an Interpreter with a default plan cache of 256 entries and a
// 10 minute TTL, matching cache_test.go's default-config expectations for
// its QueryPlanCache.
func New(engine *gstore.Engine, planner Planner) *Interpreter {
	return NewWithConfig(engine, planner, gconfig.LoadDefaults())
}

// NewWithConfig builds an Interpreter whose plan cache size and TTL come
// from cfg instead of New's hardcoded defaults, for callers (cmd/graphcored)
// that have already resolved a gconfig.Config.
func NewWithConfig(engine *gstore.Engine, planner Planner, cfg *gconfig.Config) *Interpreter {
	return &Interpreter{
		Engine:  engine,
		Planner: planner,
		Cache:   NewPlanCache(cfg.PlanCacheSize, cfg.PlanCacheTTL),
		Log:     logrus.StandardLogger(),
	}
}

// Result is one query's output: the RETURN-clause column names in order,
// and each row's values in the same order.
type Result struct {
	Columns []string
	Rows    [][]gval.TypedValue
}

// resolvePlan looks the stripped query up in the cache when it is
// cacheable, falling back to in.Planner on a miss, per cache_policy.go's
// gate.
func (in *Interpreter) resolvePlan(query string, stripped Stripped) (*planpb.Plan, bool, error) {
	cacheable := isCacheableReadQuery(query)
	if cacheable && in.Cache != nil {
		if plan, ok := in.Cache.Get(stripped.Hash); ok {
			return plan, true, nil
		}
	}
	plan, err := in.Planner(stripped.Text)
	if err != nil {
		return nil, false, err
	}
	plan.Cacheable = cacheable
	if cacheable && in.Cache != nil {
		in.Cache.Put(stripped.Hash, plan)
	}
	return plan, false, nil
}

// mergeParams layers the caller's named parameters on top of the literal
// values Strip pulled out of the query text; a caller-supplied name always
// wins over a same-named stripped placeholder, since $__pN placeholders
// never collide with user-chosen names.
func mergeParams(stripped *gval.ParameterSet, caller map[string]gval.TypedValue) *gval.ParameterSet {
	for name, v := range caller {
		stripped.SetNamed(name, v)
	}
	return stripped
}

// Execute runs query to completion inside a fresh transaction over txID,
// committing on success and returning every row it produced.
func (in *Interpreter) Execute(ctx context.Context, txID uint64, query string, params map[string]gval.TypedValue) (*Result, error) {
	res, _, err := in.run(ctx, txID, query, params, nil)
	return res, err
}

// Profile runs query exactly like Execute, but wraps every operator in the
// compiled tree with operators.Profile so the returned entries report
// per-operator pull counts and rows yielded.
func (in *Interpreter) Profile(ctx context.Context, txID uint64, query string, params map[string]gval.TypedValue) (*Result, []*cursor.ProfileEntry, error) {
	sink := cursor.NewProfileSink()
	res, _, err := in.run(ctx, txID, query, params, sink)
	if err != nil {
		return nil, nil, err
	}
	return res, sink.Entries(), nil
}

func (in *Interpreter) run(ctx context.Context, txID uint64, query string, params map[string]gval.TypedValue, profile *cursor.ProfileSink) (*Result, *planpb.Plan, error) {
	queryID := uuid.NewString()
	stripped := Strip(query)

	plan, cached, err := in.resolvePlan(query, stripped)
	if err != nil {
		return nil, nil, err
	}
	if in.Log != nil {
		in.Log.WithFields(logrus.Fields{"query_id": queryID, "tx": txID, "cache_hit": cached}).Debug("resolved query plan")
	}

	wrap := identityWrap
	if profile != nil {
		wrap = func(node *planpb.Node, c cursor.Cursor) cursor.Cursor {
			return &operators.Profile{Input: c, Name: nodeLabel(node)}
		}
	}
	root, err := build(plan.Root, wrap)
	if err != nil {
		return nil, nil, err
	}
	defer root.Close()

	ps := mergeParams(stripped.Params, params)
	dm := accessor.NewDataManager(txID, nil)
	tx := accessor.NewTransaction(in.Engine, txID, dm, in.Remote)
	execCtx := &cursor.ExecContext{Tx: tx, Params: ps, Profile: profile}

	frame := gval.NewFrame(plan.Width)
	var rows [][]gval.TypedValue
	for {
		ok, err := root.Pull(ctx, frame, execCtx)
		if err != nil {
			if in.Log != nil {
				in.Log.WithFields(logrus.Fields{"query_id": queryID, "tx": txID}).WithError(err).Warn("query failed")
			}
			return nil, nil, err
		}
		if !ok {
			break
		}
		row := make([]gval.TypedValue, len(plan.Columns))
		for i, col := range plan.Columns {
			row[i] = frame.Get(col.Symbol)
		}
		rows = append(rows, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, cursor.Wrap(cursor.KindQueryRuntime, err, "commit")
	}

	columns := make([]string, len(plan.Columns))
	for i, col := range plan.Columns {
		columns[i] = col.Name
	}
	return &Result{Columns: columns, Rows: rows}, plan, nil
}

// Explain resolves query to a plan without running it and renders the plan
// tree as indented text. The returned Cursor
// wraps the (unexecuted) compiled operator tree in operators.Explain, for
// callers that want the plan as a Cursor rather than as text. Explain shares
// resolvePlan with Execute, so a cacheable query's plan is warmed into the
// cache even when only explained, not run; a later Execute of the same text
// reuses it rather than re-planning.
func (in *Interpreter) Explain(query string) (text string, root cursor.Cursor, err error) {
	stripped := Strip(query)
	plan, _, err := in.resolvePlan(query, stripped)
	if err != nil {
		return "", nil, err
	}
	built, err := Build(plan.Root)
	if err != nil {
		return "", nil, err
	}
	explained := &operators.Explain{Input: built, Name: nodeLabel(plan.Root), Args: nodeArgs(plan.Root)}

	var sb strings.Builder
	renderPlan(&sb, plan.Root, 0)
	return sb.String(), explained, nil
}

func renderPlan(sb *strings.Builder, node *planpb.Node, depth int) {
	if node == nil {
		return
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(nodeLabel(node))
	sb.WriteByte('\n')
	for _, child := range []*planpb.Node{node.Input, node.Left, node.Right, node.Branch, node.Match} {
		renderPlan(sb, child, depth+1)
	}
}

// nodeArgs surfaces a small, EXPLAIN-relevant slice of a node's fields as
// strings, the way QueryStats reports counts rather than the whole clause
// AST.
func nodeArgs(node *planpb.Node) map[string]string {
	args := map[string]string{}
	if node.Label != "" {
		args["label"] = node.Label
	}
	if node.PropertyName != "" {
		args["property"] = node.PropertyName
	}
	if len(node.EdgeTypes) > 0 {
		args["edgeTypes"] = strings.Join(node.EdgeTypes, "|")
	}
	return args
}
