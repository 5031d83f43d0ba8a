// Package mutate implements the mutation executor (spec.md §4.5):
// SPAWN, LINK, UNLINK, KILL, and SET, each operating through the
// transaction manager so undo entries and attribute validation stay
// consistent with the rest of the engine.
package mutate

import (
	"regexp"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/constraint"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/txn"
	"github.com/mewdb/mew/internal/value"
	"github.com/mewdb/mew/internal/wal"
)

// Executor runs mutation statements against a graph store through a
// transaction.
type Executor struct {
	Graph  *store.Graph
	Reg    *registry.Registry
	Txn    *txn.Manager
	Eval   *pattern.Evaluator
	Checks *constraint.Checker
}

// New constructs a mutation Executor.
func New(g *store.Graph, reg *registry.Registry, tm *txn.Manager) *Executor {
	return &Executor{Graph: g, Reg: reg, Txn: tm, Eval: pattern.NewEvaluator(reg), Checks: constraint.New(reg)}
}

// journal appends a redo record for a completed mutation, a no-op when
// the transaction manager has no WAL attached (spec.md §4.8).
func (ex *Executor) journal(t *txn.Txn, kind string, payload any) {
	if ex.Txn.WAL == nil {
		return
	}
	_, _ = ex.Txn.WAL.Append(t.ID, kind, payload)
}

// walTargets converts LINK's resolved entity targets into the journal's
// id-tagged reference shape.
func walTargets(targets []store.EntityID) []wal.EntityRef {
	out := make([]wal.EntityRef, len(targets))
	for i, tgt := range targets {
		kind := "node"
		if tgt.Kind == store.KindEdge {
			kind = "edge"
		}
		out[i] = wal.EntityRef{Kind: kind, OldID: tgt.ID}
	}
	return out
}

// fireImmediate runs the non-deferred constraints attached to a type or
// edge type right after the mutation that touched it (spec.md §4.5 step
// 7). Hard violations abort the statement; soft violations are reported
// but do not block.
func (ex *Executor) fireImmediate(defs []*registry.ConstraintDef, params map[string]value.Value) (mewerr.ViolationList, error) {
	view := store.NewView(ex.Graph)
	var all mewerr.ViolationList
	for _, cd := range defs {
		if cd.Deferred {
			continue
		}
		vs, err := ex.Checks.Check(cd, view, params)
		if err != nil {
			return nil, err
		}
		all = append(all, vs...)
	}
	if all.HasHard() {
		return all, all.Hard()
	}
	return all, nil
}

// Outcome reports a mutation statement's counts (spec.md §6 "Result
// surface").
type Outcome struct {
	NodesCreated  int
	NodesModified int
	NodesDeleted  int
	EdgesCreated  int
	EdgesModified int
	EdgesDeleted  int
	CreatedNodeID int64
	CreatedEdgeID int64
	NoOp          bool
}

// Spawn implements SPAWN (spec.md §4.5).
func (ex *Executor) Spawn(t *txn.Txn, stmt *ast.SpawnStatement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	typ, ok := ex.Reg.TypeByName(stmt.Type)
	if !ok {
		return Outcome{}, mewerr.New(mewerr.UnknownType, "unknown type %q", stmt.Type)
	}
	if typ.IsAbstract {
		return Outcome{}, mewerr.New(mewerr.AbstractType, "type %q is abstract and cannot be spawned", stmt.Type)
	}

	attrs := make(map[string]value.Value)
	assigned := map[string]bool{}
	view := store.NewView(ex.Graph)

	for _, a := range stmt.Attrs {
		desc, ok := ex.Reg.ResolveAttr(typ.ID, a.Attr)
		if !ok {
			return Outcome{}, mewerr.New(mewerr.UnknownAttribute, "type %q has no attribute %q", stmt.Type, a.Attr)
		}
		v, err := ex.Eval.Eval(a.Expr, b, view, params)
		if err != nil {
			return Outcome{}, err
		}
		if err := checkAttrType(desc, v); err != nil {
			return Outcome{}, err
		}
		attrs[a.Attr] = v
		assigned[a.Attr] = true
	}

	for name, desc := range ex.Reg.AllAttrs(typ.ID) {
		if assigned[name] {
			continue
		}
		if desc.Default != nil {
			v, err := ex.Eval.Eval(desc.Default, b, view, params)
			if err != nil {
				return Outcome{}, err
			}
			attrs[name] = v
			continue
		}
		if desc.Required {
			return Outcome{}, mewerr.New(mewerr.MissingRequired, "required attribute %q is missing", name)
		}
	}

	for name, desc := range ex.Reg.AllAttrs(typ.ID) {
		v, present := attrs[name]
		if !present {
			continue
		}
		if err := validateAttr(ex.Graph, typ.ID, desc, v, -1); err != nil {
			return Outcome{}, err
		}
	}

	n := ex.Graph.CreateNode(typ.ID, attrs)
	ex.Txn.RecordCreateNode(t, n.ID)
	ex.journal(t, "SPAWN", wal.SpawnPayload{Type: stmt.Type, OldNodeID: n.ID, Attrs: attrs})

	if _, err := ex.fireImmediate(ex.Reg.ConstraintsForType(typ.ID), params); err != nil {
		return Outcome{}, err
	}

	if stmt.Var != "" {
		b[stmt.Var] = value.NodeRef(n.ID)
	}
	return Outcome{NodesCreated: 1, CreatedNodeID: n.ID}, nil
}

// Link implements LINK: create a new edge between already-bound entities
// (spec.md §4.5). Target expressions are evaluated against the current
// binding row and must resolve to NodeRef or EdgeRef values (MEW edges
// may target other edges, making this a hypergraph).
func (ex *Executor) Link(t *txn.Txn, stmt *ast.LinkStatement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	et, ok := ex.Reg.EdgeTypeByName(stmt.EdgeType)
	if !ok {
		return Outcome{}, mewerr.New(mewerr.UnknownEdgeType, "unknown edge type %q", stmt.EdgeType)
	}
	if len(stmt.Targets) != len(et.Params) {
		return Outcome{}, mewerr.New(mewerr.InvalidArity, "edge type %q expects %d targets, got %d", stmt.EdgeType, len(et.Params), len(stmt.Targets))
	}

	view := store.NewView(ex.Graph)
	targets := make([]store.EntityID, len(stmt.Targets))
	for i, texpr := range stmt.Targets {
		v, err := ex.Eval.Eval(texpr, b, view, params)
		if err != nil {
			return Outcome{}, err
		}
		eid, err := toEntityID(v)
		if err != nil {
			return Outcome{}, err
		}
		if err := checkTargetType(ex.Reg, ex.Graph, et.Params[i], eid); err != nil {
			return Outcome{}, err
		}
		targets[i] = eid
	}

	if et.NoSelf && hasRepeatedTarget(targets) {
		return Outcome{}, mewerr.New(mewerr.SelfEdge, "edge type %q forbids self-edges", stmt.EdgeType)
	}
	if et.Acyclic && len(targets) == 2 && targets[0].Kind == store.KindNode && targets[1].Kind == store.KindNode {
		if reachable(ex.Graph, targets[1].ID, targets[0].ID, et.ID, map[int64]bool{}) {
			return Outcome{}, mewerr.New(mewerr.AcyclicViolation, "edge type %q: would introduce a cycle", stmt.EdgeType)
		}
	}
	if stmt.IfNotExists && edgeAlreadyExists(ex.Graph, et.ID, targets) {
		return Outcome{NoOp: true}, nil
	}
	if et.Unique && edgeAlreadyExists(ex.Graph, et.ID, targets) {
		return Outcome{}, mewerr.New(mewerr.DuplicateEdgeExists, "edge type %q already links these targets", stmt.EdgeType)
	}
	if err := checkCardinality(ex.Graph, et, targets); err != nil {
		return Outcome{}, err
	}

	attrs := make(map[string]value.Value)
	for _, a := range stmt.Attrs {
		desc, ok := ex.Reg.ResolveAttr(et.ID, a.Attr)
		if !ok {
			return Outcome{}, mewerr.New(mewerr.UnknownAttribute, "edge type %q has no attribute %q", stmt.EdgeType, a.Attr)
		}
		v, err := ex.Eval.Eval(a.Expr, b, view, params)
		if err != nil {
			return Outcome{}, err
		}
		if err := checkAttrType(desc, v); err != nil {
			return Outcome{}, err
		}
		attrs[a.Attr] = v
	}
	for name, desc := range ex.Reg.AllAttrs(et.ID) {
		if _, present := attrs[name]; present {
			continue
		}
		if desc.Default != nil {
			v, err := ex.Eval.Eval(desc.Default, b, view, params)
			if err != nil {
				return Outcome{}, err
			}
			attrs[name] = v
		} else if desc.Required {
			return Outcome{}, mewerr.New(mewerr.MissingRequired, "required attribute %q is missing", name)
		}
	}

	e := ex.Graph.CreateEdge(et.ID, targets, attrs)
	ex.Txn.RecordCreateEdge(t, e.ID)
	ex.journal(t, "LINK", wal.LinkPayload{EdgeType: stmt.EdgeType, OldEdgeID: e.ID, Targets: walTargets(targets), Attrs: attrs})

	if _, err := ex.fireImmediate(ex.Reg.ConstraintsForEdgeType(et.ID), params); err != nil {
		return Outcome{}, err
	}

	if stmt.Var != "" {
		b[stmt.Var] = value.EdgeRef(e.ID)
	}
	return Outcome{EdgesCreated: 1, CreatedEdgeID: e.ID}, nil
}

// UnlinkStmt implements UNLINK: evaluates the target expression and
// deletes the resulting edge without touching its targets (spec.md
// §4.5).
func (ex *Executor) UnlinkStmt(t *txn.Txn, stmt *ast.UnlinkStatement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	view := store.NewView(ex.Graph)
	v, err := ex.Eval.Eval(stmt.Target, b, view, params)
	if err != nil {
		return Outcome{}, err
	}
	eid, err := toEntityID(v)
	if err != nil {
		return Outcome{}, err
	}
	if eid.Kind != store.KindEdge {
		return Outcome{}, mewerr.New(mewerr.TypeError, "UNLINK target must be an edge reference")
	}
	return ex.killEdge(t, eid.ID)
}

// Unlink deletes an edge by id without touching its targets.
func (ex *Executor) Unlink(t *txn.Txn, edgeID int64) (Outcome, error) {
	e, ok := ex.Graph.GetEdge(edgeID)
	if !ok {
		return Outcome{}, mewerr.New(mewerr.EdgeNotFound, "edge %d not found", edgeID)
	}
	snapshot := cloneEdge(e)
	ex.Graph.DeleteEdge(edgeID)
	ex.Txn.RecordDeleteEdge(t, snapshot)
	ex.journal(t, "UNLINK", wal.UnlinkPayload{OldEdgeID: edgeID})
	return Outcome{EdgesDeleted: 1}, nil
}

// Kill implements KILL: delete a node (or edge), cascading to incident
// edges per each edge type's on_kill mode (spec.md §4.5, §6): cascade
// deletes the incident edge too, unlink removes only the dangling
// target slot by deleting the edge (MEW edges have no "hole" concept,
// so unlink is modeled as deleting the edge as well, matching
// spec.md's note that arity is fixed once created), and prevent aborts
// the KILL entirely while any such edge still exists.
func (ex *Executor) Kill(t *txn.Txn, entity store.EntityID) (Outcome, error) {
	if entity.Kind == store.KindEdge {
		return ex.killEdge(t, entity.ID)
	}
	return ex.killNode(t, entity.ID, true)
}

// KillStmt implements the KILL statement form: evaluates the target
// expression, then kills the resulting node or edge (spec.md §4.5). The
// CASCADE keyword defaults to true (spec.md §4.5 "KILL"); when a caller
// writes it out as false, any surviving incident edge aborts the kill
// instead of being cascaded away.
func (ex *Executor) KillStmt(t *txn.Txn, stmt *ast.KillStatement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	view := store.NewView(ex.Graph)
	v, err := ex.Eval.Eval(stmt.Target, b, view, params)
	if err != nil {
		return Outcome{}, err
	}
	eid, err := toEntityID(v)
	if err != nil {
		return Outcome{}, err
	}
	if eid.Kind == store.KindEdge {
		return ex.killEdge(t, eid.ID)
	}
	return ex.killNode(t, eid.ID, stmt.Cascade)
}

func (ex *Executor) killNode(t *txn.Txn, nodeID int64, cascade bool) (Outcome, error) {
	n, ok := ex.Graph.GetNode(nodeID)
	if !ok {
		return Outcome{}, mewerr.New(mewerr.NodeNotFound, "node %d not found", nodeID)
	}

	if !cascade && len(ex.Graph.IncidentEdges(nodeID)) > 0 {
		return Outcome{}, mewerr.New(mewerr.KillPrevented, "node %d has incident edges and CASCADE was not requested", nodeID)
	}

	for _, eid := range ex.Graph.IncidentEdges(nodeID) {
		e, ok := ex.Graph.GetEdge(eid)
		if !ok {
			continue
		}
		et, ok := ex.Reg.EdgeTypeByID(e.TypeID)
		if !ok {
			continue
		}
		pos := positionOf(e, store.EntityID{Kind: store.KindNode, ID: nodeID})
		if pos < 0 || pos >= len(et.Params) {
			continue
		}
		if et.Params[pos].OnKill == registry.OnKillPrevent {
			return Outcome{}, mewerr.New(mewerr.KillPrevented, "node %d is protected by edge type %q", nodeID, et.Name)
		}
	}

	var out Outcome
	for _, eid := range ex.Graph.IncidentEdges(nodeID) {
		if _, ok := ex.Graph.GetEdge(eid); !ok {
			continue
		}
		if o, err := ex.killEdge(t, eid); err == nil {
			out.EdgesDeleted += o.EdgesDeleted
		}
	}

	snapshot := cloneNode(n)
	ex.Graph.DeleteNode(nodeID)
	ex.Txn.RecordDeleteNode(t, snapshot)
	ex.journal(t, "KILL_NODE", wal.KillNodePayload{OldNodeID: nodeID, Cascade: cascade})
	out.NodesDeleted = 1
	return out, nil
}

func (ex *Executor) killEdge(t *txn.Txn, edgeID int64) (Outcome, error) {
	var out Outcome
	for _, parentID := range ex.Graph.EdgesTargeting(edgeID) {
		if o, err := ex.killEdge(t, parentID); err == nil {
			out.EdgesDeleted += o.EdgesDeleted
		}
	}
	o, err := ex.Unlink(t, edgeID)
	if err != nil {
		return out, err
	}
	out.EdgesDeleted += o.EdgesDeleted
	return out, nil
}

// Set implements SET: update one or more attributes on a bound node or
// edge (spec.md §4.5).
func (ex *Executor) Set(t *txn.Txn, stmt *ast.SetStatement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	view := store.NewView(ex.Graph)
	target, err := ex.Eval.Eval(stmt.Target, b, view, params)
	if err != nil {
		return Outcome{}, err
	}

	switch target.Kind() {
	case value.KindNodeRef:
		nodeID := target.AsNodeID()
		n, ok := ex.Graph.GetNode(nodeID)
		if !ok {
			return Outcome{}, mewerr.New(mewerr.NodeNotFound, "node %d not found", nodeID)
		}
		for _, a := range stmt.Attrs {
			desc, ok := ex.Reg.ResolveAttr(n.TypeID, a.Attr)
			if !ok {
				return Outcome{}, mewerr.New(mewerr.UnknownAttribute, "type has no attribute %q", a.Attr)
			}
			v, err := ex.Eval.Eval(a.Expr, b, view, params)
			if err != nil {
				return Outcome{}, err
			}
			if err := checkAttrType(desc, v); err != nil {
				return Outcome{}, err
			}
			if err := validateAttr(ex.Graph, n.TypeID, desc, v, nodeID); err != nil {
				return Outcome{}, err
			}
			old := n.Attrs[a.Attr]
			ex.Graph.SetNodeAttr(nodeID, a.Attr, v)
			ex.Txn.RecordSetNodeAttr(t, nodeID, a.Attr, old)
			ex.journal(t, "SET", wal.SetPayload{Kind: "node", OldID: nodeID, Attr: a.Attr, Value: v})
		}
		if _, err := ex.fireImmediate(ex.Reg.ConstraintsForType(n.TypeID), params); err != nil {
			return Outcome{}, err
		}
		return Outcome{NodesModified: 1}, nil

	case value.KindEdgeRef:
		edgeID := target.AsEdgeID()
		e, ok := ex.Graph.GetEdge(edgeID)
		if !ok {
			return Outcome{}, mewerr.New(mewerr.EdgeNotFound, "edge %d not found", edgeID)
		}
		for _, a := range stmt.Attrs {
			desc, ok := ex.Reg.ResolveAttr(e.TypeID, a.Attr)
			if !ok {
				return Outcome{}, mewerr.New(mewerr.UnknownAttribute, "edge type has no attribute %q", a.Attr)
			}
			v, err := ex.Eval.Eval(a.Expr, b, view, params)
			if err != nil {
				return Outcome{}, err
			}
			if err := checkAttrType(desc, v); err != nil {
				return Outcome{}, err
			}
			old := e.Attrs[a.Attr]
			ex.Graph.SetEdgeAttr(edgeID, a.Attr, v)
			ex.Txn.RecordSetEdgeAttr(t, edgeID, a.Attr, old)
			ex.journal(t, "SET", wal.SetPayload{Kind: "edge", OldID: edgeID, Attr: a.Attr, Value: v})
		}
		if _, err := ex.fireImmediate(ex.Reg.ConstraintsForEdgeType(e.TypeID), params); err != nil {
			return Outcome{}, err
		}
		return Outcome{EdgesModified: 1}, nil

	default:
		return Outcome{}, mewerr.New(mewerr.TypeError, "SET target is neither a node nor an edge reference")
	}
}

// Exec dispatches a single mutation statement (spec.md §4.5). stmt is
// one of *ast.SpawnStatement, *ast.LinkStatement, *ast.UnlinkStatement,
// *ast.KillStatement, *ast.SetStatement, or *ast.CompoundStatement.
func (ex *Executor) Exec(t *txn.Txn, stmt ast.Statement, b pattern.Binding, params map[string]value.Value) (Outcome, error) {
	switch s := stmt.(type) {
	case *ast.SpawnStatement:
		return ex.Spawn(t, s, b, params)
	case *ast.LinkStatement:
		return ex.Link(t, s, b, params)
	case *ast.UnlinkStatement:
		return ex.UnlinkStmt(t, s, b, params)
	case *ast.KillStatement:
		return ex.KillStmt(t, s, b, params)
	case *ast.SetStatement:
		return ex.Set(t, s, b, params)
	case *ast.CompoundStatement:
		return ex.Compound(t, s, params)
	default:
		return Outcome{}, mewerr.New(mewerr.InvalidOperation, "statement is not a mutation")
	}
}

// Compound implements `MATCH ... { LINK | SET | KILL | UNLINK }+`
// (spec.md §4.5): runs the pattern to get candidate binding rows, then
// applies every listed mutation to each row in turn, aggregating
// outcomes. Each row's mutations run against a fresh clone of the
// binding so one row's SPAWN-bound variable does not leak into the
// next.
func (ex *Executor) Compound(t *txn.Txn, stmt *ast.CompoundStatement, params map[string]value.Value) (Outcome, error) {
	view := store.NewView(ex.Graph)
	ops, err := pattern.Compile(stmt.Pattern, ex.Reg, ex.Eval)
	if err != nil {
		return Outcome{}, err
	}
	rows, err := pattern.RunOps(ops, view, []pattern.Binding{{}}, params)
	if err != nil {
		return Outcome{}, err
	}

	var total Outcome
	for _, row := range rows {
		b := row.Clone()
		for _, mut := range stmt.Mutations {
			o, err := ex.Exec(t, mut, b, params)
			if err != nil {
				return Outcome{}, err
			}
			total.NodesCreated += o.NodesCreated
			total.NodesModified += o.NodesModified
			total.NodesDeleted += o.NodesDeleted
			total.EdgesCreated += o.EdgesCreated
			total.EdgesModified += o.EdgesModified
			total.EdgesDeleted += o.EdgesDeleted
		}
	}
	if len(rows) == 0 {
		total.NoOp = true
	}
	return total, nil
}

func toEntityID(v value.Value) (store.EntityID, error) {
	switch v.Kind() {
	case value.KindNodeRef:
		return store.EntityID{Kind: store.KindNode, ID: v.AsNodeID()}, nil
	case value.KindEdgeRef:
		return store.EntityID{Kind: store.KindEdge, ID: v.AsEdgeID()}, nil
	default:
		return store.EntityID{}, mewerr.New(mewerr.TypeError, "expected a node or edge reference, got %s", v.TypeName())
	}
}

func checkTargetType(reg *registry.Registry, g *store.Graph, p registry.ParamDescriptor, eid store.EntityID) error {
	if p.TypeConstraint == "any" || eid.Kind == store.KindEdge {
		return nil
	}
	n, ok := g.GetNode(eid.ID)
	if !ok {
		return mewerr.New(mewerr.NodeNotFound, "node %d not found", eid.ID)
	}
	wantType, ok := reg.TypeByName(p.TypeConstraint)
	if !ok {
		return mewerr.New(mewerr.UnknownType, "unknown target type %q", p.TypeConstraint)
	}
	if !reg.IsSubtype(n.TypeID, wantType.ID) {
		return mewerr.New(mewerr.TargetTypeMismatch, "target node %d is not a %q", eid.ID, p.TypeConstraint)
	}
	return nil
}

func hasRepeatedTarget(targets []store.EntityID) bool {
	for i := range targets {
		for j := i + 1; j < len(targets); j++ {
			if targets[i] == targets[j] {
				return true
			}
		}
	}
	return false
}

// reachable does a bounded DFS over an edge type's binary instances to
// detect whether adding fromID->toID would close a cycle (spec.md §6
// "acyclic" edge modifier).
func reachable(g *store.Graph, fromID, toID int64, edgeTypeID int32, seen map[int64]bool) bool {
	if fromID == toID {
		return true
	}
	if seen[fromID] {
		return false
	}
	seen[fromID] = true
	for _, eid := range g.Outbound(fromID, edgeTypeID) {
		e, ok := g.GetEdge(eid)
		if !ok || len(e.Targets) != 2 || e.Targets[1].Kind != store.KindNode {
			continue
		}
		if reachable(g, e.Targets[1].ID, toID, edgeTypeID, seen) {
			return true
		}
	}
	return false
}

func edgeAlreadyExists(g *store.Graph, edgeTypeID int32, targets []store.EntityID) bool {
	if len(targets) == 0 || targets[0].Kind != store.KindNode {
		return false
	}
	for _, eid := range g.Outbound(targets[0].ID, edgeTypeID) {
		e, ok := g.GetEdge(eid)
		if !ok || len(e.Targets) != len(targets) {
			continue
		}
		match := true
		for i, tgt := range targets {
			if e.Targets[i] != tgt {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// checkCardinality enforces each param's declared max occurrence count
// against the number of existing edges of this type that hold the target
// at that same position (spec.md §3 edge type params).
func checkCardinality(g *store.Graph, et *registry.EdgeTypeDef, targets []store.EntityID) error {
	for i, p := range et.Params {
		if targets[i].Kind != store.KindNode {
			continue
		}
		count := 0
		candidates := g.Outbound(targets[i].ID, et.ID)
		if i > 0 {
			candidates = g.Inbound(targets[i].ID, et.ID)
		}
		for _, eid := range candidates {
			e, ok := g.GetEdge(eid)
			if ok && i < len(e.Targets) && e.Targets[i] == targets[i] {
				count++
			}
		}
		if p.Max != -1 && count+1 > p.Max {
			return mewerr.New(mewerr.CardinalityExceeded, "edge type %q param %q: max %d exceeded", et.Name, p.Name, p.Max)
		}
	}
	return nil
}

func positionOf(e *store.Edge, eid store.EntityID) int {
	for i, t := range e.Targets {
		if t == eid {
			return i
		}
	}
	return -1
}

func cloneNode(n *store.Node) *store.Node {
	attrs := make(map[string]value.Value, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	return &store.Node{ID: n.ID, TypeID: n.TypeID, Attrs: attrs}
}

func cloneEdge(e *store.Edge) *store.Edge {
	attrs := make(map[string]value.Value, len(e.Attrs))
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	targets := make([]store.EntityID, len(e.Targets))
	copy(targets, e.Targets)
	return &store.Edge{ID: e.ID, TypeID: e.TypeID, Targets: targets, Attrs: attrs}
}

// checkAttrType enforces spec.md §4.5 step 2's compatibility rule: Null
// is universally assignable; Int is assignable where Float is expected;
// otherwise the scalar type name must match exactly.
func checkAttrType(desc *registry.AttrDescriptor, v value.Value) error {
	if v.IsNull() {
		if desc.Required && !desc.Nullable {
			return mewerr.New(mewerr.MissingRequired, "attribute %q is required and not nullable", desc.Name)
		}
		return nil
	}
	want := desc.ScalarType
	got := v.TypeName()
	if got == want {
		return nil
	}
	if want == "Float" && got == "Int" {
		return nil
	}
	return mewerr.New(mewerr.InvalidAttrType, "attribute %q expects %s, got %s", desc.Name, want, got)
}

// validateAttr runs the attribute-level validators (min/max, length,
// match, format, in, unique) from spec.md §4.5 step 5. excludeID is the
// entity's own id (to exclude from a unique scan on SET); -1 for SPAWN
// where the entity does not exist yet.
func validateAttr(g *store.Graph, typeID int32, desc *registry.AttrDescriptor, v value.Value, excludeID int64) error {
	if v.IsNull() {
		return nil
	}
	if v.IsNumeric() {
		f := v.AsFloat()
		if desc.Min != nil && f < *desc.Min {
			return mewerr.New(mewerr.OutOfRange, "attribute %q: %v below minimum %v", desc.Name, f, *desc.Min)
		}
		if desc.Max != nil && f > *desc.Max {
			return mewerr.New(mewerr.OutOfRange, "attribute %q: %v above maximum %v", desc.Name, f, *desc.Max)
		}
	}
	if v.Kind() == value.KindString {
		s := v.AsString()
		if desc.LenMin != nil && len(s) < *desc.LenMin {
			return mewerr.New(mewerr.OutOfRange, "attribute %q: length %d below minimum %d", desc.Name, len(s), *desc.LenMin)
		}
		if desc.LenMax != nil && len(s) > *desc.LenMax {
			return mewerr.New(mewerr.OutOfRange, "attribute %q: length %d above maximum %d", desc.Name, len(s), *desc.LenMax)
		}
		if desc.Match != "" {
			re, err := regexp.Compile(desc.Match)
			if err != nil {
				return mewerr.Wrap(mewerr.BadFormat, err, "attribute %q: invalid match regex", desc.Name)
			}
			if !re.MatchString(s) {
				return mewerr.New(mewerr.PatternMismatch, "attribute %q: %q does not match %s", desc.Name, s, desc.Match)
			}
		}
		if desc.Format != "" {
			if !checkFormat(desc.Format, s) {
				return mewerr.New(mewerr.BadFormat, "attribute %q: %q is not a valid %s", desc.Name, s, desc.Format)
			}
		}
	}
	if len(desc.In) > 0 {
		found := false
		for _, allowed := range desc.In {
			if value.Equal(allowed, v) {
				found = true
				break
			}
		}
		if !found {
			return mewerr.New(mewerr.NotInAllowedValues, "attribute %q: %v is not in the allowed set", desc.Name, v)
		}
	}
	if desc.Unique {
		ids, ok := g.LookupExact(typeID, desc.Name, v)
		if ok {
			for _, id := range ids {
				if id != excludeID {
					return mewerr.New(mewerr.DuplicateUnique, "attribute %q: value %v already used by entity %d", desc.Name, v, id)
				}
			}
		}
	}
	return nil
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	slugRe  = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	urlRe   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^\s]+$`)
)

func checkFormat(format, s string) bool {
	switch format {
	case "email":
		return emailRe.MatchString(s)
	case "url":
		return urlRe.MatchString(s)
	case "uuid":
		return uuidRe.MatchString(s)
	case "slug":
		return slugRe.MatchString(s)
	default:
		return true
	}
}
