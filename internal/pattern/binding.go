// Package pattern implements the pattern compiler, matcher, and
// expression evaluator (spec.md §4.3): lowering a MATCH pattern into
// primitive ops, running those ops against the graph store to produce
// binding rows, and evaluating expressions (literals, variable/attribute
// access, operators, function calls, EXISTS) against a binding.
package pattern

import "github.com/mewdb/mew/internal/value"

// Binding is one partial-match row: variable name -> bound value. Node
// and edge variables are bound to value.NodeRef/value.EdgeRef.
type Binding map[string]value.Value

// Clone returns a shallow copy, used whenever an op expands one
// candidate into several successors.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// GraphView is the minimal read surface the pattern engine needs from a
// graph, satisfied by a transaction-buffer-aware view (spec.md §4.5
// "Each mutation operates on a graph view that routes reads/writes
// through the transaction buffer") as well as directly by store.Graph.
type GraphView interface {
	GetNode(id int64) (NodeLike, bool)
	GetEdge(id int64) (EdgeLike, bool)
	NodesOfType(typeID int32) []int64
	LookupExact(typeID int32, attr string, v value.Value) ([]int64, bool)
	EdgesOfType(typeID int32) []int64
	Outbound(nodeID int64, typeID int32) []int64
	Inbound(nodeID int64, typeID int32) []int64
}

// NodeLike is the minimal node shape the evaluator reads attributes from.
type NodeLike interface {
	Attr(name string) (value.Value, bool)
	Type() int32
}

// EdgeLike is the minimal edge shape the evaluator reads attributes and
// targets from.
type EdgeLike interface {
	Attr(name string) (value.Value, bool)
	Type() int32
	TargetAt(pos int) (value.Value, bool) // NodeRef or EdgeRef
	Arity() int
}
