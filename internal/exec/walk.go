package exec

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/plan"
	"github.com/mewdb/mew/internal/value"
)

// walkStep is one node reached during a WALK traversal, keeping the full
// node/edge path from the start so WalkReturnPath can render it.
type walkStep struct {
	nodeID   int64
	nodePath []int64
	edgePath []int64
	depth    int
}

// transitiveHardCap bounds a WALK whose max depth is unbounded (Max ==
// -1), with the same value pattern.TransitiveEdge uses for "*" patterns.
const transitiveHardCap = 1000

// RunWalk executes a WALK statement (spec.md §4.4): a bounded-depth
// traversal outward from one starting node, stopping expansion past any
// node where Until holds, and yielding rows per ReturnMode.
func RunWalk(wp *plan.WalkPlan, g pattern.GraphView, eval *pattern.Evaluator, params map[string]value.Value) (*Result, error) {
	startVal, err := eval.Eval(wp.From, pattern.Binding{}, g, params)
	if err != nil {
		return nil, err
	}
	if startVal.IsNull() {
		return &Result{Columns: resultColumns(wp), Rows: nil}, nil
	}
	start := startVal.AsNodeID()

	max := wp.Max
	if max < 0 || max > transitiveHardCap {
		max = transitiveHardCap
	}

	visited := map[int64]bool{start: true}
	steps := []walkStep{{nodeID: start, nodePath: []int64{start}}}
	frontier := steps

	var reached []walkStep
	if wp.Min == 0 {
		reached = append(reached, steps[0])
	}

	for depth := 1; depth <= max && len(frontier) > 0; depth++ {
		var next []walkStep
		for _, cur := range frontier {
			stop, err := untilHolds(wp.Until, wp.Alias, cur.nodeID, eval, g, params)
			if err != nil {
				return nil, err
			}
			if stop {
				continue
			}
			for _, edges := range neighborEdges(g, cur.nodeID, wp.EdgeTypeIDs, wp.Direction) {
				eid, toID := edges.eid, edges.toID
				if visited[toID] {
					continue
				}
				visited[toID] = true
				nodePath := append(append([]int64(nil), cur.nodePath...), toID)
				edgePath := append(append([]int64(nil), cur.edgePath...), eid)
				step := walkStep{nodeID: toID, nodePath: nodePath, edgePath: edgePath, depth: depth}
				next = append(next, step)
				if depth >= wp.Min {
					reached = append(reached, step)
				}
			}
		}
		frontier = next
	}

	if wp.ReturnMode == ast.WalkReturnTerminal {
		reached = terminalOnly(reached, visited, g, wp, eval, params)
	}

	return renderWalk(wp, reached, g, eval, params)
}

type edgeHop struct {
	eid  int64
	toID int64
}

// neighborEdges returns the (edge, far-endpoint) pairs reachable from
// nodeID over the given edge types and direction.
func neighborEdges(g pattern.GraphView, nodeID int64, edgeTypeIDs []int32, dir ast.Direction) []edgeHop {
	var out []edgeHop
	for _, tid := range edgeTypeIDs {
		if dir == ast.DirOutbound || dir == ast.DirAny {
			for _, eid := range g.Outbound(nodeID, tid) {
				if e, ok := g.GetEdge(eid); ok {
					if t, ok := e.TargetAt(1); ok && t.Kind() == value.KindNodeRef {
						out = append(out, edgeHop{eid: eid, toID: t.AsNodeID()})
					}
				}
			}
		}
		if dir == ast.DirInbound || dir == ast.DirAny {
			for _, eid := range g.Inbound(nodeID, tid) {
				if e, ok := g.GetEdge(eid); ok {
					if t, ok := e.TargetAt(0); ok && t.Kind() == value.KindNodeRef {
						out = append(out, edgeHop{eid: eid, toID: t.AsNodeID()})
					}
				}
			}
		}
	}
	return out
}

func untilHolds(until ast.Expr, alias string, nodeID int64, eval *pattern.Evaluator, g pattern.GraphView, params map[string]value.Value) (bool, error) {
	if until == nil {
		return false, nil
	}
	b := pattern.Binding{}
	if alias != "" {
		b[alias] = value.NodeRef(nodeID)
	}
	v, err := eval.Eval(until, b, g, params)
	if err != nil {
		return false, err
	}
	return v.Kind() == value.KindBool && v.AsBool(), nil
}

// terminalOnly keeps only the reached steps where Until holds or that
// have no edge of the walked types in the walk's direction at all. A step
// whose neighbors were all visited already, or that sits at the Max
// depth with neighbors beyond it, is not kept.
func terminalOnly(reached []walkStep, visited map[int64]bool, g pattern.GraphView, wp *plan.WalkPlan, eval *pattern.Evaluator, params map[string]value.Value) []walkStep {
	var out []walkStep
	for _, s := range reached {
		stop, _ := untilHolds(wp.Until, wp.Alias, s.nodeID, eval, g, params)
		if stop || len(neighborEdges(g, s.nodeID, wp.EdgeTypeIDs, wp.Direction)) == 0 {
			out = append(out, s)
		}
	}
	return out
}

func resultColumns(wp *plan.WalkPlan) []string {
	switch wp.ReturnMode {
	case ast.WalkReturnPath:
		return []string{"path"}
	case ast.WalkReturnEdges:
		return []string{"edges"}
	case ast.WalkReturnProjection:
		cols := make([]string, len(wp.Return))
		for i, p := range wp.Return {
			cols[i] = columnName(p, i)
		}
		return cols
	default:
		return []string{"node"}
	}
}

func renderWalk(wp *plan.WalkPlan, reached []walkStep, g pattern.GraphView, eval *pattern.Evaluator, params map[string]value.Value) (*Result, error) {
	cols := resultColumns(wp)
	rows := make([]Row, 0, len(reached))
	for _, s := range reached {
		row := Row{}
		switch wp.ReturnMode {
		case ast.WalkReturnPath:
			nodes := make([]value.Value, len(s.nodePath))
			for i, id := range s.nodePath {
				nodes[i] = value.NodeRef(id)
			}
			row["path"] = value.List(nodes)
		case ast.WalkReturnEdges:
			edges := make([]value.Value, len(s.edgePath))
			for i, id := range s.edgePath {
				edges[i] = value.EdgeRef(id)
			}
			row["edges"] = value.List(edges)
		case ast.WalkReturnProjection:
			b := pattern.Binding{}
			if wp.Alias != "" {
				b[wp.Alias] = value.NodeRef(s.nodeID)
			}
			for i, p := range wp.Return {
				v, err := eval.Eval(p.Expr, b, g, params)
				if err != nil {
					return nil, err
				}
				row[cols[i]] = v
			}
		default:
			row["node"] = value.NodeRef(s.nodeID)
		}
		rows = append(rows, row)
	}
	return &Result{Columns: cols, Rows: rows}, nil
}
