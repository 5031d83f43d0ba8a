package pattern

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/value"
)

// Op is one primitive pattern operation (spec.md §4.3): ScanNodes,
// IndexScan, FollowEdge, CheckEdge, Filter, or NotExists. Each op expands
// every candidate binding into zero or more successors.
type Op interface {
	Apply(g GraphView, in []Binding, params map[string]value.Value) ([]Binding, error)
}

// ScanNodes is the initial source op: one binding per existing node of
// the given type (0 means any type — used for untyped node patterns).
type ScanNodes struct {
	Var     string
	TypeID  int32
	HasType bool
}

func (op ScanNodes) Apply(g GraphView, in []Binding, _ map[string]value.Value) ([]Binding, error) {
	var ids []int64
	if op.HasType {
		ids = g.NodesOfType(op.TypeID)
	}
	out := make([]Binding, 0, len(in)*len(ids))
	for _, base := range in {
		for _, id := range ids {
			b := base.Clone()
			b[op.Var] = value.NodeRef(id)
			out = append(out, b)
		}
	}
	return out, nil
}

// IndexScan is ScanNodes restricted by an equality from the WHERE clause
// on an indexed (type, attr) pair (spec.md §4.3 planner preference).
type IndexScan struct {
	Var    string
	TypeID int32
	Attr   string
	Value  value.Value
}

func (op IndexScan) Apply(g GraphView, in []Binding, _ map[string]value.Value) ([]Binding, error) {
	ids, ok := g.LookupExact(op.TypeID, op.Attr, op.Value)
	if !ok {
		ids = nil
	}
	out := make([]Binding, 0, len(in)*len(ids))
	for _, base := range in {
		for _, id := range ids {
			b := base.Clone()
			b[op.Var] = value.NodeRef(id)
			out = append(out, b)
		}
	}
	return out, nil
}

// FollowEdge enumerates edges of EdgeTypeID anchored on the first
// non-"_" entry of Vars: when that var is bound, only edges holding it at
// its position are scanned; otherwise every edge of the type is. Bound
// positional vars must match, unbound ones are bound, and the edge
// variable is bound optionally (spec.md §4.3).
type FollowEdge struct {
	EdgeTypeID int32
	Vars       []string // one per positional param
	EdgeVar    string   // "" if unbound
	Reg        *registry.Registry
}

func (op FollowEdge) Apply(g GraphView, in []Binding, _ map[string]value.Value) ([]Binding, error) {
	anchorPos, anchorVar := -1, ""
	for i, v := range op.Vars {
		if v == "_" {
			continue
		}
		anchorPos, anchorVar = i, v
		break
	}
	var out []Binding
	for _, base := range in {
		var candidateEdges []int64
		if anchorVar != "" {
			if bound, ok := base[anchorVar]; ok && !bound.IsNull() {
				nodeID := bound.AsNodeID()
				if anchorPos == 0 {
					candidateEdges = g.Outbound(nodeID, op.EdgeTypeID)
				} else {
					candidateEdges = g.Inbound(nodeID, op.EdgeTypeID)
				}
			} else {
				candidateEdges = g.EdgesOfType(op.EdgeTypeID)
			}
		} else {
			candidateEdges = g.EdgesOfType(op.EdgeTypeID)
		}

		for _, eid := range candidateEdges {
			e, ok := g.GetEdge(eid)
			if !ok || e.Arity() != len(op.Vars) {
				continue
			}
			b := base.Clone()
			matched := true
			for pos, v := range op.Vars {
				target, ok := e.TargetAt(pos)
				if !ok {
					matched = false
					break
				}
				if v == "_" {
					continue
				}
				if existing, bound := b[v]; bound {
					if !value.Equal(existing, target) {
						matched = false
						break
					}
				} else {
					b[v] = target
				}
			}
			if !matched {
				continue
			}
			if op.EdgeVar != "" {
				b[op.EdgeVar] = value.EdgeRef(eid)
			}
			out = append(out, b)
		}
	}
	return out, nil
}

// transitiveHardCap bounds a variable-length pattern's hop count when
// the pattern's own max is unbounded ("*" suffix), as a backstop
// against an unbounded BFS over a large graph.
const transitiveHardCap = 1000

// TransitiveEdge expands a `+`/`*` suffixed edge pattern by repeated
// FollowEdge-style hops from an already-bound FromVar, binding ToVar to
// every node whose shortest hop count lies within [Min, Max] (spec.md
// §4.3 "transitive edge patterns are compiled into repeated FollowEdge up
// to a configured maximum depth"). The start node itself (hop 0) is never
// bound, even when Min is 0.
type TransitiveEdge struct {
	EdgeTypeID int32
	FromVar    string
	ToVar      string
	Min, Max   int // Max == -1 means unbounded, capped by transitiveHardCap
}

func (op TransitiveEdge) Apply(g GraphView, in []Binding, _ map[string]value.Value) ([]Binding, error) {
	max := op.Max
	if max < 0 || max > transitiveHardCap {
		max = transitiveHardCap
	}
	var out []Binding
	for _, base := range in {
		from, ok := base[op.FromVar]
		if !ok || from.IsNull() {
			continue
		}
		depth := map[int64]int{}
		frontier := []int64{from.AsNodeID()}
		depth[from.AsNodeID()] = 0
		for hop := 1; hop <= max && len(frontier) > 0; hop++ {
			var next []int64
			for _, nodeID := range frontier {
				for _, eid := range g.Outbound(nodeID, op.EdgeTypeID) {
					e, ok := g.GetEdge(eid)
					if !ok || e.Arity() < 2 {
						continue
					}
					target, ok := e.TargetAt(1)
					if !ok || target.Kind() != value.KindNodeRef {
						continue
					}
					tid := target.AsNodeID()
					if _, seen := depth[tid]; seen {
						continue
					}
					depth[tid] = hop
					next = append(next, tid)
				}
			}
			frontier = next
		}
		for nodeID, hop := range depth {
			if hop < op.Min || hop == 0 {
				continue
			}
			b := base.Clone()
			b[op.ToVar] = value.NodeRef(nodeID)
			out = append(out, b)
		}
	}
	return out, nil
}

// CheckEdge asserts an edge of EdgeTypeID exists on already-bound nodes
// (spec.md §4.3, used when every participant is already bound).
type CheckEdge struct {
	EdgeTypeID int32
	Vars       []string
}

func (op CheckEdge) Apply(g GraphView, in []Binding, _ map[string]value.Value) ([]Binding, error) {
	var out []Binding
	for _, base := range in {
		if len(op.Vars) == 0 {
			continue
		}
		anchor, ok := base[op.Vars[0]]
		if !ok {
			continue
		}
		for _, eid := range g.Outbound(anchor.AsNodeID(), op.EdgeTypeID) {
			e, ok := g.GetEdge(eid)
			if !ok || e.Arity() != len(op.Vars) {
				continue
			}
			matched := true
			for pos, v := range op.Vars {
				want, ok := base[v]
				if !ok {
					matched = false
					break
				}
				got, ok := e.TargetAt(pos)
				if !ok || !value.Equal(want, got) {
					matched = false
					break
				}
			}
			if matched {
				out = append(out, base.Clone())
				break
			}
		}
	}
	return out, nil
}

// Filter keeps only bindings where Expr evaluates truthy (spec.md §4.3).
type Filter struct {
	Expr ast.Expr
	Eval *Evaluator
}

func (op Filter) Apply(g GraphView, in []Binding, params map[string]value.Value) ([]Binding, error) {
	out := make([]Binding, 0, len(in))
	for _, b := range in {
		v, err := op.Eval.Eval(op.Expr, b, g, params)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, b)
		}
	}
	return out, nil
}

func truthy(v value.Value) bool {
	return v.Kind() == value.KindBool && v.AsBool()
}

// NotExists backs EXISTS/NOT EXISTS sub-pattern expressions (spec.md
// §4.3): with Negate false it keeps a row iff Sub has at least one match
// under the current bindings (EXISTS); with Negate true it keeps a row
// iff Sub has zero matches (NOT EXISTS). evalExists drives this one
// binding at a time from an ast.ExistsExpr, passing its Negate through
// unchanged.
type NotExists struct {
	Sub    []Op
	Negate bool
}

func (op NotExists) Apply(g GraphView, in []Binding, params map[string]value.Value) ([]Binding, error) {
	out := make([]Binding, 0, len(in))
	for _, b := range in {
		matches, err := RunOps(op.Sub, g, []Binding{b}, params)
		if err != nil {
			return nil, err
		}
		hasMatch := len(matches) > 0
		if hasMatch != op.Negate {
			out = append(out, b)
		}
	}
	return out, nil
}

// RunOps threads a binding set through a compiled op sequence
// (spec.md §4.3 "matcher loop").
func RunOps(ops []Op, g GraphView, initial []Binding, params map[string]value.Value) ([]Binding, error) {
	candidates := initial
	if candidates == nil {
		candidates = []Binding{{}}
	}
	for _, op := range ops {
		next, err := op.Apply(g, candidates, params)
		if err != nil {
			return nil, err
		}
		candidates = next
		if len(candidates) == 0 {
			break
		}
	}
	return candidates, nil
}

// unknownEdgeTypeErr is a convenience constructor used by the compiler.
func unknownEdgeTypeErr(name string) error {
	return mewerr.New(mewerr.UnknownEdgeType, "unknown edge type %q", name)
}
