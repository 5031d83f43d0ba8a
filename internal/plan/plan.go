// Package plan lowers a MATCH/WALK statement into the Volcano-style
// operator tree the executor pulls rows through (spec.md §4.4). Source
// scans and edge joins are delegated to internal/pattern's compiler;
// this package adds the statement-level stages pattern doesn't know
// about: optional joins, aggregation, sort, limit/offset, projection,
// and distinct.
package plan

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
)

// aggFuncs is the set of function names recognized as aggregates when
// they appear in a projection (spec.md §4.4). Binary min/max are the
// scalar functions of the same name and are excluded by arity below.
var aggFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

// AggSpec describes one aggregate projection.
type AggSpec struct {
	Alias    string
	Func     string
	Arg      ast.Expr // nil for COUNT(*)
	Distinct bool
	Limit    *int
}

// Aggregation holds the group-by keys (every non-aggregate projection
// expression, Cypher-style implicit grouping) and the aggregate specs.
type Aggregation struct {
	GroupKeys []ast.Projection
	Aggs      []AggSpec
}

// OptionalStage is one OPTIONAL MATCH clause lowered to a pattern op
// sequence, plus the variables it introduces (for null-filling rows
// where the optional side found no match).
type OptionalStage struct {
	Ops  []pattern.Op
	Vars []string
}

// Plan is the full lowered statement, ready for internal/exec to run.
type Plan struct {
	Ops       []pattern.Op
	Optionals []OptionalStage
	Aggregate *Aggregation
	OrderBy   []ast.OrderTerm
	Limit     *int
	Offset    *int
	Return    []ast.Projection
	Distinct  bool
}

// Build lowers a MatchStatement into a Plan (spec.md §4.4 steps 1-9).
func Build(stmt *ast.MatchStatement, reg *registry.Registry, eval *pattern.Evaluator) (*Plan, error) {
	ops, err := pattern.Compile(stmt.Pattern, reg, eval)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Ops:      ops,
		OrderBy:  stmt.OrderBy,
		Limit:    stmt.Limit,
		Offset:   stmt.Offset,
		Return:   stmt.Return,
		Distinct: stmt.Distinct,
	}

	for _, opt := range stmt.Optional {
		subOps, err := pattern.Compile(opt.Pattern, reg, eval)
		if err != nil {
			return nil, err
		}
		p.Optionals = append(p.Optionals, OptionalStage{Ops: subOps, Vars: patternVars(opt.Pattern)})
	}

	if agg := detectAggregation(stmt.Return); agg != nil {
		p.Aggregate = agg
	}

	return p, nil
}

// EstimateCost scores a Plan by the shape of its operator tree rather
// than live cardinalities (no statistics are kept on the in-memory
// store): an unbounded scan or transitive traversal is weighted far
// above an indexed lookup or a narrow join, and OPTIONAL MATCH clauses
// and aggregation add their own sub-costs on top. config.toml's
// engine.max_pattern_cost rejects a plan outright when this exceeds
// the configured ceiling, before any row is pulled.
func EstimateCost(p *Plan) int {
	cost := opsCost(p.Ops)
	for _, opt := range p.Optionals {
		cost += opsCost(opt.Ops)
	}
	if p.Aggregate != nil {
		cost += 5
	}
	if len(p.OrderBy) > 0 {
		cost += 2
	}
	return cost
}

func opsCost(ops []pattern.Op) int {
	cost := 0
	for _, op := range ops {
		switch op.(type) {
		case pattern.ScanNodes:
			cost += 10
		case pattern.IndexScan:
			cost += 2
		case pattern.FollowEdge, pattern.CheckEdge:
			cost += 4
		case pattern.TransitiveEdge:
			cost += 25
		case pattern.NotExists:
			cost += 6
		case pattern.Filter:
			cost += 1
		default:
			cost += 3
		}
	}
	return cost
}

// patternVars collects every variable a pattern binds, used to
// null-fill an OPTIONAL MATCH clause's variables when it finds no
// match for a given left-hand row (spec.md §4.4 step 4).
func patternVars(pat *ast.Pattern) []string {
	var vars []string
	for _, elem := range pat.Elements {
		switch el := elem.(type) {
		case *ast.NodeElem:
			vars = append(vars, el.Var)
		case *ast.EdgeElem:
			for _, v := range el.Vars {
				if v != "_" {
					vars = append(vars, v)
				}
			}
			if el.EdgeVar != "" {
				vars = append(vars, el.EdgeVar)
			}
		}
	}
	return vars
}

// detectAggregation inspects a RETURN list for aggregate function
// calls and builds the implicit group-by if any are found (spec.md
// §4.4: "group-by keys are the non-aggregate projection expressions").
func detectAggregation(projs []ast.Projection) *Aggregation {
	var specs []AggSpec
	var keys []ast.Projection
	found := false
	for _, p := range projs {
		if spec, ok := asAggregate(p); ok {
			specs = append(specs, spec)
			found = true
		} else {
			keys = append(keys, p)
		}
	}
	if !found {
		return nil
	}
	return &Aggregation{GroupKeys: keys, Aggs: specs}
}

func asAggregate(p ast.Projection) (AggSpec, bool) {
	call, ok := p.Expr.(*ast.FuncCall)
	if !ok || !aggFuncs[call.Name] {
		return AggSpec{}, false
	}
	// Binary min/max are the scalar functions of the same name, not
	// aggregates (spec.md §4.4).
	if (call.Name == "min" || call.Name == "max") && len(call.Args) == 2 {
		return AggSpec{}, false
	}
	var arg ast.Expr
	if len(call.Args) > 0 {
		arg = call.Args[0]
	} else if call.Name != "count" {
		return AggSpec{}, false
	}
	alias := p.Alias
	if alias == "" {
		alias = call.Name
	}
	return AggSpec{Alias: alias, Func: call.Name, Arg: arg, Distinct: call.Distinct, Limit: call.Limit}, true
}

// ErrNoAggregateArg is returned when a non-count aggregate has no
// argument expression, a malformed-plan condition the executor
// surfaces as a typed error rather than panicking.
var ErrNoAggregateArg = mewerr.New(mewerr.InvalidOperation, "aggregate function requires an argument")
