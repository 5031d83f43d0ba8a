// Package engine assembles the registry, graph store, pattern/plan/exec
// pipeline, mutation executor, constraint checker, rule engine,
// transaction manager, and journal into one session-scoped set of
// collaborators (spec.md §1-§8), the way cmd/bd/main.go wires storage,
// the flush manager, and the hook runner together for a beads session.
package engine

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/constraint"
	"github.com/mewdb/mew/internal/exec"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/mutate"
	"github.com/mewdb/mew/internal/obs"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/plan"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/rule"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/txn"
	"github.com/mewdb/mew/internal/value"
	"github.com/mewdb/mew/internal/wal"
)

// Engine is one MEW session: a registry, a graph, and every collaborator
// that reads or writes it.
type Engine struct {
	Reg     *registry.Registry
	Graph   *store.Graph
	Eval    *pattern.Evaluator
	Checks  *constraint.Checker
	Mutate  *mutate.Executor
	Rules   *rule.Engine
	Txn     *txn.Manager
	Journal *wal.Writer

	maxPatternCost int
}

// Options configures a new Engine.
type Options struct {
	// JournalPath, if non-empty, opens a durable bbolt-backed journal at
	// this path (spec.md §4.8). Empty means run with no journal, losing
	// durability across restarts but useful for tests.
	JournalPath string
	AutoCommit  bool
	RuleLimits  rule.Limits

	// MaxPatternCost rejects a MATCH plan whose estimated cost
	// (plan.EstimateCost) exceeds this ceiling before execution. Zero
	// means unlimited. WALK statements are not cost-checked.
	MaxPatternCost int

	// Metrics, when non-nil, is threaded into every collaborator that
	// exposes a Prometheus counter/histogram (SPEC_FULL.md §A.5).
	Metrics *obs.Metrics
}

// New constructs an Engine bound to reg's schema.
func New(reg *registry.Registry, opts Options) (*Engine, error) {
	g := store.New()
	eval := pattern.NewEvaluator(reg)
	checks := constraint.New(reg)
	checks.Metrics = opts.Metrics
	mut := mutate.New(g, reg, nil) // Txn wired in below, once the Manager exists

	e := &Engine{Reg: reg, Graph: g, Eval: eval, Checks: checks, maxPatternCost: opts.MaxPatternCost}

	var journal *wal.Writer
	if opts.JournalPath != "" {
		w, err := wal.Open(opts.JournalPath)
		if err != nil {
			return nil, err
		}
		w.Metrics = opts.Metrics
		journal = w
	}
	e.Journal = journal

	limits := opts.RuleLimits
	if limits == (rule.Limits{}) {
		limits = rule.DefaultLimits
	}
	e.Rules = rule.New(autoRules(reg), e.findFirings(mut), limits)
	e.Rules.Metrics = opts.Metrics

	tm := txn.New(g, journalWAL(journal), e.deferredCheck, e.Rules.Run, opts.AutoCommit)
	tm.Metrics = opts.Metrics
	mut.Txn = tm
	e.Txn = tm
	e.Mutate = mut

	return e, nil
}

// Close releases the journal, if one is open.
func (e *Engine) Close() error {
	if e.Journal == nil {
		return nil
	}
	return e.Journal.Close()
}

// journalWAL adapts a possibly-nil *wal.Writer to the nil-interface
// txn.WAL expects (a nil *wal.Writer inside a non-nil interface value
// would break txn.Manager's "m.WAL != nil" checks).
func journalWAL(w *wal.Writer) txn.WAL {
	if w == nil {
		return nil
	}
	return w
}

func autoRules(reg *registry.Registry) []*registry.RuleDef {
	var out []*registry.RuleDef
	for _, rd := range reg.AllRules() {
		if rd.Auto {
			out = append(out, rd)
		}
	}
	return out
}

// deferredCheck runs every deferred constraint attached to a type or
// edge type touched by the transaction (spec.md §4.7 commit step 1).
func (e *Engine) deferredCheck(touched txn.TouchedSet) (mewerr.ViolationList, error) {
	view := store.NewView(e.Graph)
	seenTypes := map[int32]bool{}
	seenEdgeTypes := map[int32]bool{}
	var defs []*registry.ConstraintDef

	for nodeID := range touched.Nodes {
		n, ok := e.Graph.GetNode(nodeID)
		if !ok {
			continue
		}
		if seenTypes[n.TypeID] {
			continue
		}
		seenTypes[n.TypeID] = true
		for _, cd := range e.Reg.ConstraintsForType(n.TypeID) {
			if cd.Deferred {
				defs = append(defs, cd)
			}
		}
	}
	for edgeID := range touched.Edges {
		ed, ok := e.Graph.GetEdge(edgeID)
		if !ok {
			continue
		}
		if seenEdgeTypes[ed.TypeID] {
			continue
		}
		seenEdgeTypes[ed.TypeID] = true
		for _, cd := range e.Reg.ConstraintsForEdgeType(ed.TypeID) {
			if cd.Deferred {
				defs = append(defs, cd)
			}
		}
	}

	return e.Checks.CheckAll(defs, view, nil)
}

// findFirings builds the rule engine's FindFn: compile each rule's
// pattern, run it against the live graph, and bind a Production closure
// that replays the rule's production statement through the mutation
// executor for that one binding row (spec.md §4.6).
func (e *Engine) findFirings(mut *mutate.Executor) rule.FindFn {
	return func(rd *registry.RuleDef) ([]rule.Firing, error) {
		ops, err := pattern.Compile(rd.Pattern, e.Reg, e.Eval)
		if err != nil {
			return nil, err
		}
		view := store.NewView(e.Graph)
		bindings, err := pattern.RunOps(ops, view, nil, nil)
		if err != nil {
			return nil, err
		}

		firings := make([]rule.Firing, 0, len(bindings))
		for _, b := range bindings {
			binding := b
			firings = append(firings, rule.Firing{
				Rule:    rd,
				Binding: binding,
				Run: func(row pattern.Binding) (int, error) {
					t := mut.Txn.ActiveTxn()
					if t == nil {
						return 0, mewerr.New(mewerr.NoActiveTransaction, "rule %q fired with no active transaction", rd.Name)
					}
					outcome, err := mut.Exec(t, rd.Production, row, map[string]value.Value{})
					if err != nil {
						return 0, err
					}
					return actionsIn(outcome), nil
				},
			})
		}
		return firings, nil
	}
}

func actionsIn(o mutate.Outcome) int {
	return o.NodesCreated + o.NodesModified + o.NodesDeleted +
		o.EdgesCreated + o.EdgesModified + o.EdgesDeleted
}

// RunMatch executes a MATCH statement (spec.md §4.4).
func (e *Engine) RunMatch(stmt *ast.MatchStatement, params map[string]value.Value) (*exec.Result, error) {
	p, err := plan.Build(stmt, e.Reg, e.Eval)
	if err != nil {
		return nil, err
	}
	if e.maxPatternCost > 0 {
		if cost := plan.EstimateCost(p); cost > e.maxPatternCost {
			return nil, mewerr.New(mewerr.PatternTooCostly, "plan cost %d exceeds max_pattern_cost %d", cost, e.maxPatternCost)
		}
	}
	view := store.NewView(e.Graph)
	return exec.Run(p, view, e.Eval, nil, params)
}

// RunWalk executes a WALK statement (spec.md §4.4).
func (e *Engine) RunWalk(stmt *ast.WalkStatement, params map[string]value.Value) (*exec.Result, error) {
	wp, err := plan.BuildWalk(stmt, e.Reg)
	if err != nil {
		return nil, err
	}
	view := store.NewView(e.Graph)
	return exec.RunWalk(wp, view, e.Eval, params)
}
