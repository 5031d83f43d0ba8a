package store

import (
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/value"
)

// Attr implements pattern.NodeLike.
func (n *Node) Attr(name string) (value.Value, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Type implements pattern.NodeLike and pattern.EdgeLike.
func (n *Node) Type() int32 { return n.TypeID }

// Attr implements pattern.EdgeLike.
func (e *Edge) Attr(name string) (value.Value, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Type implements pattern.EdgeLike.
func (e *Edge) Type() int32 { return e.TypeID }

// Arity implements pattern.EdgeLike.
func (e *Edge) Arity() int { return len(e.Targets) }

// TargetAt implements pattern.EdgeLike, returning the target at pos as a
// NodeRef or EdgeRef value.
func (e *Edge) TargetAt(pos int) (value.Value, bool) {
	if pos < 0 || pos >= len(e.Targets) {
		return value.Null, false
	}
	t := e.Targets[pos]
	if t.Kind == KindNode {
		return value.NodeRef(t.ID), true
	}
	return value.EdgeRef(t.ID), true
}

// View adapts *Graph to pattern.GraphView.
type View struct {
	G *Graph
}

func NewView(g *Graph) *View { return &View{G: g} }

func (v *View) GetNode(id int64) (pattern.NodeLike, bool) {
	n, ok := v.G.GetNode(id)
	if !ok {
		return nil, false
	}
	return n, true
}

func (v *View) GetEdge(id int64) (pattern.EdgeLike, bool) {
	e, ok := v.G.GetEdge(id)
	if !ok {
		return nil, false
	}
	return e, true
}

func (v *View) NodesOfType(typeID int32) []int64 { return v.G.NodesOfType(typeID) }

func (v *View) LookupExact(typeID int32, attr string, val value.Value) ([]int64, bool) {
	return v.G.LookupExact(typeID, attr, val)
}

func (v *View) EdgesOfType(typeID int32) []int64 { return v.G.EdgesOfType(typeID) }

func (v *View) Outbound(nodeID int64, typeID int32) []int64 { return v.G.Outbound(nodeID, typeID) }

func (v *View) Inbound(nodeID int64, typeID int32) []int64 { return v.G.Inbound(nodeID, typeID) }
