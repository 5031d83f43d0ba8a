// Package store implements the graph store (spec.md §4.2): the tables of
// live nodes and edges plus the indexes kept synchronously in lockstep on
// every mutation. The store is the sole owner of node/edge records;
// every index here holds only copies of id keys and can be rebuilt
// deterministically by replaying the tables (exercised by Fsck).
package store

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/value"
)

// EntityKind distinguishes a node id from an edge id inside a tagged
// EntityID (spec.md §3 "An EntityId is a tagged union of node or edge id").
type EntityKind int

const (
	KindNode EntityKind = iota
	KindEdge
)

// EntityID is spec.md §3's tagged id union.
type EntityID struct {
	Kind EntityKind
	ID   int64
}

// Node is the store's live node record (spec.md §3).
type Node struct {
	ID     int64
	TypeID int32
	Attrs  map[string]value.Value
}

// Edge is the store's live edge record (spec.md §3). Targets has exactly
// TypeID's arity (param count) entries.
type Edge struct {
	ID      int64
	TypeID  int32
	Targets []EntityID
	Attrs   map[string]value.Value
}

// rangeIndex is a sorted-by-int-value index for a single (type, attr)
// pair, supporting range scans over Int attributes (spec.md §4.2).
type rangeIndex struct {
	keys []int64 // sorted, unique
	ids  map[int64]map[int64]bool
}

func newRangeIndex() *rangeIndex {
	return &rangeIndex{ids: make(map[int64]map[int64]bool)}
}

func (ri *rangeIndex) insert(key, id int64) {
	set, ok := ri.ids[key]
	if !ok {
		set = make(map[int64]bool)
		ri.ids[key] = set
		i := sort.Search(len(ri.keys), func(i int) bool { return ri.keys[i] >= key })
		ri.keys = append(ri.keys, 0)
		copy(ri.keys[i+1:], ri.keys[i:])
		ri.keys[i] = key
	}
	set[id] = true
}

func (ri *rangeIndex) remove(key, id int64) {
	set, ok := ri.ids[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ri.ids, key)
		i := sort.Search(len(ri.keys), func(i int) bool { return ri.keys[i] >= key })
		if i < len(ri.keys) && ri.keys[i] == key {
			ri.keys = append(ri.keys[:i], ri.keys[i+1:]...)
		}
	}
}

// Range returns all node ids whose indexed value falls in [min, max].
func (ri *rangeIndex) Range(min, max int64) map[int64]bool {
	out := make(map[int64]bool)
	lo := sort.Search(len(ri.keys), func(i int) bool { return ri.keys[i] >= min })
	for i := lo; i < len(ri.keys) && ri.keys[i] <= max; i++ {
		for id := range ri.ids[ri.keys[i]] {
			out[id] = true
		}
	}
	return out
}

type attrKey struct {
	typeID int32
	attr   string
}

// Graph is the in-memory graph store (spec.md §4.2). A single RWMutex
// guards every table and index; the transaction manager is the only
// writer, so contention is limited to readers overlapping a writer.
type Graph struct {
	mu sync.RWMutex

	nextNodeID int64
	nextEdgeID int64

	nodes map[int64]*Node
	edges map[int64]*Edge

	typeIndex     map[int32]map[int64]bool // type_id -> node ids
	edgeTypeIndex map[int32]map[int64]bool // edge_type_id -> edge ids

	exactIndex map[attrKey]map[any]map[int64]bool
	rangeIdx   map[attrKey]*rangeIndex

	outbound  map[int64]map[int32]map[int64]bool // node id -> edge_type -> edge ids where node is at position 0
	inbound   map[int64]map[int32]map[int64]bool // node id -> edge_type -> edge ids where node is at position > 0
	allEdges  map[int64]map[int64]bool           // node id -> all incident edge ids (fast cascade)
	targeting map[int64]map[int64]bool           // edge id -> edge ids that target it (higher-order index)
}

// New returns an empty graph store.
func New() *Graph {
	return &Graph{
		nodes:         make(map[int64]*Node),
		edges:         make(map[int64]*Edge),
		typeIndex:     make(map[int32]map[int64]bool),
		edgeTypeIndex: make(map[int32]map[int64]bool),
		exactIndex:    make(map[attrKey]map[any]map[int64]bool),
		rangeIdx:      make(map[attrKey]*rangeIndex),
		outbound:      make(map[int64]map[int32]map[int64]bool),
		inbound:       make(map[int64]map[int32]map[int64]bool),
		allEdges:      make(map[int64]map[int64]bool),
		targeting:     make(map[int64]map[int64]bool),
	}
}

// CreateNode allocates a fresh id and inserts a node into every relevant
// index.
func (g *Graph) CreateNode(typeID int32, attrs map[string]value.Value) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextNodeID++
	n := &Node{ID: g.nextNodeID, TypeID: typeID, Attrs: attrs}
	g.nodes[n.ID] = n
	g.indexType(typeID, n.ID)
	for attr, v := range attrs {
		g.indexAttr(typeID, attr, v, n.ID)
	}
	return n
}

func (g *Graph) indexType(typeID int32, nodeID int64) {
	set, ok := g.typeIndex[typeID]
	if !ok {
		set = make(map[int64]bool)
		g.typeIndex[typeID] = set
	}
	set[nodeID] = true
}

func (g *Graph) indexAttr(typeID int32, attr string, v value.Value, nodeID int64) {
	if v.Hashable() {
		key := attrKey{typeID, attr}
		byVal, ok := g.exactIndex[key]
		if !ok {
			byVal = make(map[any]map[int64]bool)
			g.exactIndex[key] = byVal
		}
		ck := v.CanonicalKey()
		set, ok := byVal[ck]
		if !ok {
			set = make(map[int64]bool)
			byVal[ck] = set
		}
		set[nodeID] = true
	}
	if v.Kind() == value.KindInt {
		key := attrKey{typeID, attr}
		ri, ok := g.rangeIdx[key]
		if !ok {
			ri = newRangeIndex()
			g.rangeIdx[key] = ri
		}
		ri.insert(v.AsInt(), nodeID)
	}
}

func (g *Graph) unindexAttr(typeID int32, attr string, v value.Value, nodeID int64) {
	if v.Hashable() {
		key := attrKey{typeID, attr}
		if byVal, ok := g.exactIndex[key]; ok {
			if set, ok := byVal[v.CanonicalKey()]; ok {
				delete(set, nodeID)
				if len(set) == 0 {
					delete(byVal, v.CanonicalKey())
				}
			}
		}
	}
	if v.Kind() == value.KindInt {
		if ri, ok := g.rangeIdx[attrKey{typeID, attr}]; ok {
			ri.remove(v.AsInt(), nodeID)
		}
	}
}

// CreateEdge allocates a fresh id and inserts an edge into every relevant
// index, including adjacency (spec.md §4.2).
func (g *Graph) CreateEdge(typeID int32, targets []EntityID, attrs map[string]value.Value) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextEdgeID++
	e := &Edge{ID: g.nextEdgeID, TypeID: typeID, Targets: append([]EntityID(nil), targets...), Attrs: attrs}
	g.edges[e.ID] = e

	set, ok := g.edgeTypeIndex[typeID]
	if !ok {
		set = make(map[int64]bool)
		g.edgeTypeIndex[typeID] = set
	}
	set[e.ID] = true

	for pos, t := range e.Targets {
		if t.Kind != KindNode {
			if _, ok := g.targeting[t.ID]; !ok {
				g.targeting[t.ID] = make(map[int64]bool)
			}
			g.targeting[t.ID][e.ID] = true
			continue
		}
		if _, ok := g.allEdges[t.ID]; !ok {
			g.allEdges[t.ID] = make(map[int64]bool)
		}
		g.allEdges[t.ID][e.ID] = true
		if pos == 0 {
			g.addAdjacency(g.outbound, t.ID, typeID, e.ID)
		} else {
			g.addAdjacency(g.inbound, t.ID, typeID, e.ID)
		}
	}
	return e
}

// Restore reinserts a previously-deleted node under its original id,
// rebuilding its index entries. Used by the transaction manager's
// rollback to reverse a KILL/UNLINK using the full pre-image snapshot
// recorded in the undo log (spec.md §9(a)).
func (g *Graph) Restore(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
	g.indexType(n.TypeID, n.ID)
	for attr, v := range n.Attrs {
		g.indexAttr(n.TypeID, attr, v, n.ID)
	}
	if n.ID > g.nextNodeID {
		g.nextNodeID = n.ID
	}
}

// RestoreEdge reinserts a previously-deleted edge under its original id,
// rebuilding adjacency and higher-order index entries.
func (g *Graph) RestoreEdge(e *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[e.ID] = e
	set, ok := g.edgeTypeIndex[e.TypeID]
	if !ok {
		set = make(map[int64]bool)
		g.edgeTypeIndex[e.TypeID] = set
	}
	set[e.ID] = true
	for pos, t := range e.Targets {
		if t.Kind != KindNode {
			if _, ok := g.targeting[t.ID]; !ok {
				g.targeting[t.ID] = make(map[int64]bool)
			}
			g.targeting[t.ID][e.ID] = true
			continue
		}
		if _, ok := g.allEdges[t.ID]; !ok {
			g.allEdges[t.ID] = make(map[int64]bool)
		}
		g.allEdges[t.ID][e.ID] = true
		if pos == 0 {
			g.addAdjacency(g.outbound, t.ID, e.TypeID, e.ID)
		} else {
			g.addAdjacency(g.inbound, t.ID, e.TypeID, e.ID)
		}
	}
	if e.ID > g.nextEdgeID {
		g.nextEdgeID = e.ID
	}
}

func (g *Graph) addAdjacency(idx map[int64]map[int32]map[int64]bool, nodeID int64, typeID int32, edgeID int64) {
	byType, ok := idx[nodeID]
	if !ok {
		byType = make(map[int32]map[int64]bool)
		idx[nodeID] = byType
	}
	set, ok := byType[typeID]
	if !ok {
		set = make(map[int64]bool)
		byType[typeID] = set
	}
	set[edgeID] = true
}

func (g *Graph) removeAdjacency(idx map[int64]map[int32]map[int64]bool, nodeID int64, typeID int32, edgeID int64) {
	if byType, ok := idx[nodeID]; ok {
		if set, ok := byType[typeID]; ok {
			delete(set, edgeID)
		}
	}
}

// GetNode returns the live node, or false if it does not exist (has been
// deleted or never existed).
func (g *Graph) GetNode(id int64) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// GetEdge returns the live edge, or false.
func (g *Graph) GetEdge(id int64) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	return e, ok
}

// NodesOfType returns the live node id set for a type (does not follow
// subtypes; callers union over Registry.Subtypes themselves).
func (g *Graph) NodesOfType(typeID int32) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.typeIndex[typeID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgesOfType returns the live edge id set for an edge type.
func (g *Graph) EdgesOfType(typeID int32) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.edgeTypeIndex[typeID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LookupExact returns node ids whose (typeID, attr) equals v, using the
// exact-match index. Ok is false if v is not a hashable kind.
func (g *Graph) LookupExact(typeID int32, attr string, v value.Value) (ids []int64, ok bool) {
	if !v.Hashable() {
		return nil, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	byVal, exists := g.exactIndex[attrKey{typeID, attr}]
	if !exists {
		return nil, true
	}
	set := byVal[v.CanonicalKey()]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, true
}

// LookupRange returns node ids whose Int-valued (typeID, attr) falls in
// [min, max].
func (g *Graph) LookupRange(typeID int32, attr string, min, max int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ri, ok := g.rangeIdx[attrKey{typeID, attr}]
	if !ok {
		return nil
	}
	set := ri.Range(min, max)
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Outbound returns edge ids of the given type where nodeID sits at
// position 0.
func (g *Graph) Outbound(nodeID int64, typeID int32) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSlice(g.outbound[nodeID][typeID])
}

// Inbound returns edge ids of the given type where nodeID sits at a
// position > 0.
func (g *Graph) Inbound(nodeID int64, typeID int32) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSlice(g.inbound[nodeID][typeID])
}

// IncidentEdges returns every edge id touching nodeID, of any type or
// position (used by KILL's cascade walk).
func (g *Graph) IncidentEdges(nodeID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSlice(g.allEdges[nodeID])
}

// EdgesTargeting returns edges whose targets include edgeID (the
// higher-order index).
func (g *Graph) EdgesTargeting(edgeID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setToSlice(g.targeting[edgeID])
}

func setToSlice(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeleteEdge removes an edge and, recursively, every higher-order edge
// that targets it (spec.md §4.2), then unindexes it from every table.
func (g *Graph) DeleteEdge(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteEdgeLocked(id)
}

func (g *Graph) deleteEdgeLocked(id int64) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	for higher := range g.targeting[id] {
		g.deleteEdgeLocked(higher)
	}
	delete(g.targeting, id)

	if set, ok := g.edgeTypeIndex[e.TypeID]; ok {
		delete(set, id)
	}
	for pos, t := range e.Targets {
		if t.Kind != KindNode {
			if set, ok := g.targeting[t.ID]; ok {
				delete(set, id)
			}
			continue
		}
		if set, ok := g.allEdges[t.ID]; ok {
			delete(set, id)
		}
		if pos == 0 {
			g.removeAdjacency(g.outbound, t.ID, e.TypeID, id)
		} else {
			g.removeAdjacency(g.inbound, t.ID, e.TypeID, id)
		}
	}
	delete(g.edges, id)
}

// DeleteNode removes a node, first cascading through every incident edge
// (which itself cascades through higher-order edges), then removes the
// node from the type and attribute indexes (spec.md §4.2).
func (g *Graph) DeleteNode(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for edgeID := range g.allEdges[id] {
		g.deleteEdgeLocked(edgeID)
	}
	delete(g.allEdges, id)
	delete(g.outbound, id)
	delete(g.inbound, id)

	if set, ok := g.typeIndex[n.TypeID]; ok {
		delete(set, id)
	}
	for attr, v := range n.Attrs {
		g.unindexAttr(n.TypeID, attr, v, id)
	}
	delete(g.nodes, id)
}

// SetNodeAttr writes a new attribute value, removing the stale index
// entry and inserting the fresh one (spec.md §4.2).
func (g *Graph) SetNodeAttr(id int64, attr string, v value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	if old, ok := n.Attrs[attr]; ok {
		g.unindexAttr(n.TypeID, attr, old, id)
	}
	n.Attrs[attr] = v
	g.indexAttr(n.TypeID, attr, v, id)
}

// SetEdgeAttr writes a new edge attribute. Edge attributes are not
// indexed (spec.md §4.2).
func (g *Graph) SetEdgeAttr(id int64, attr string, v value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.edges[id]; ok {
		e.Attrs[attr] = v
	}
}

// FsckReport summarizes the invariant checks Fsck runs.
type FsckReport struct {
	TypeIndexOK     bool
	EdgeTypeIndexOK bool
	AttrIndexOK     bool
	AdjacencyOK     bool
	Errors          []error
}

// Fsck verifies that every type-index and edge-type-index entry points at
// a live record, that every indexable attribute of every live node has a
// matching attribute-index entry, and that every node target of every
// live edge has its adjacency entries (spec.md §4.2, §8 "fsck(graph)").
// Attribute-index and adjacency entries that point at a missing record
// are not detected. Each check runs concurrently via errgroup since they
// read disjoint parts of the store.
func (g *Graph) Fsck(ctx context.Context) FsckReport {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var report FsckReport
	report.TypeIndexOK = true
	report.EdgeTypeIndexOK = true
	report.AttrIndexOK = true
	report.AdjacencyOK = true

	var mu sync.Mutex
	record := func(ok *bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		*ok = false
		report.Errors = append(report.Errors, err)
	}

	eg, _ := errgroup.WithContext(ctx)

	eg.Go(func() error {
		for typeID, set := range g.typeIndex {
			for id := range set {
				if _, ok := g.nodes[id]; !ok {
					record(&report.TypeIndexOK, mewerr.New(mewerr.InvalidFormat, "type index: node %d (type %d) missing from table", id, typeID))
				}
			}
		}
		return nil
	})

	eg.Go(func() error {
		for typeID, set := range g.edgeTypeIndex {
			for id := range set {
				if _, ok := g.edges[id]; !ok {
					record(&report.EdgeTypeIndexOK, mewerr.New(mewerr.InvalidFormat, "edge-type index: edge %d (type %d) missing from table", id, typeID))
				}
			}
		}
		return nil
	})

	eg.Go(func() error {
		for id, n := range g.nodes {
			for attr, v := range n.Attrs {
				if !v.Hashable() {
					continue
				}
				byVal, ok := g.exactIndex[attrKey{n.TypeID, attr}]
				if !ok || !byVal[v.CanonicalKey()][id] {
					record(&report.AttrIndexOK, mewerr.New(mewerr.InvalidFormat, "attr index: node %d missing entry for %s", id, attr))
				}
			}
		}
		return nil
	})

	eg.Go(func() error {
		for id, e := range g.edges {
			for pos, t := range e.Targets {
				if t.Kind != KindNode {
					continue
				}
				if !g.allEdges[t.ID][id] {
					record(&report.AdjacencyOK, mewerr.New(mewerr.InvalidFormat, "adjacency: edge %d missing from node %d's all-edges set", id, t.ID))
					continue
				}
				if pos == 0 {
					if !g.outbound[t.ID][e.TypeID][id] {
						record(&report.AdjacencyOK, mewerr.New(mewerr.InvalidFormat, "adjacency: edge %d missing from node %d outbound", id, t.ID))
					}
				} else if !g.inbound[t.ID][e.TypeID][id] {
					record(&report.AdjacencyOK, mewerr.New(mewerr.InvalidFormat, "adjacency: edge %d missing from node %d inbound", id, t.ID))
				}
			}
		}
		return nil
	})

	_ = eg.Wait()
	return report
}
