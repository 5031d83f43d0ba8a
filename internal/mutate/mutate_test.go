package mutate

import (
	"testing"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/txn"
	"github.com/mewdb/mew/internal/value"
)

func buildFixture(t *testing.T) (*registry.Registry, *store.Graph, *txn.Manager) {
	t.Helper()
	issue := &registry.TypeDef{ID: 1, Name: "Issue", Attrs: registry.NewAttrMap()}
	issue.Attrs.Set("title", &registry.AttrDescriptor{Name: "title", ScalarType: "String", Required: true})
	issue.Attrs.Set("priority", &registry.AttrDescriptor{Name: "priority", ScalarType: "Int"})
	issue.Attrs.Set("slug", &registry.AttrDescriptor{Name: "slug", ScalarType: "String", Unique: true})

	dependsOn := &registry.EdgeTypeDef{
		ID:   1,
		Name: "depends_on",
		Params: []registry.ParamDescriptor{
			{Name: "from", TypeConstraint: "Issue", Max: -1},
			{Name: "to", TypeConstraint: "Issue", Max: -1},
		},
		Attrs:   registry.NewAttrMap(),
		NoSelf:  true,
		Acyclic: true,
		Unique:  true,
	}

	reg, err := registry.Build(registry.Definitions{
		Types:     []*registry.TypeDef{issue},
		EdgeTypes: []*registry.EdgeTypeDef{dependsOn},
	})
	if err != nil {
		t.Fatal(err)
	}
	g := store.New()
	m := txn.New(g, nil, nil, nil, false)
	return reg, g, m
}

func TestSpawnCreatesNodeWithDefaults(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	stmt := &ast.SpawnStatement{
		Var:  "i",
		Type: "Issue",
		Attrs: []ast.Assignment{
			{Attr: "title", Expr: &ast.Lit{Value: "fix bug"}},
		},
	}
	b := pattern.Binding{}
	out, err := ex.Spawn(tx, stmt, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.NodesCreated != 1 {
		t.Fatalf("expected 1 node created, got %+v", out)
	}
	n, ok := g.GetNode(out.CreatedNodeID)
	if !ok || n.Attrs["title"].AsString() != "fix bug" {
		t.Fatalf("node not created correctly: %+v", n)
	}
	if ref, ok := b["i"]; !ok || ref.AsNodeID() != out.CreatedNodeID {
		t.Fatalf("SPAWN did not bind variable i: %+v", b)
	}
}

func TestSpawnMissingRequiredAttrFails(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()
	stmt := &ast.SpawnStatement{Var: "i", Type: "Issue"}
	_, err := ex.Spawn(tx, stmt, pattern.Binding{}, nil)
	if !mewerr.Is(err, mewerr.MissingRequired) {
		t.Fatalf("expected MissingRequired, got %v", err)
	}
}

func TestSpawnDuplicateUniqueFails(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	first := &ast.SpawnStatement{Var: "a", Type: "Issue", Attrs: []ast.Assignment{
		{Attr: "title", Expr: &ast.Lit{Value: "a"}},
		{Attr: "slug", Expr: &ast.Lit{Value: "dup"}},
	}}
	if _, err := ex.Spawn(tx, first, pattern.Binding{}, nil); err != nil {
		t.Fatal(err)
	}

	second := &ast.SpawnStatement{Var: "b", Type: "Issue", Attrs: []ast.Assignment{
		{Attr: "title", Expr: &ast.Lit{Value: "b"}},
		{Attr: "slug", Expr: &ast.Lit{Value: "dup"}},
	}}
	_, err := ex.Spawn(tx, second, pattern.Binding{}, nil)
	if !mewerr.Is(err, mewerr.DuplicateUnique) {
		t.Fatalf("expected DuplicateUnique, got %v", err)
	}
}

func TestLinkCreatesEdgeAndBindsVar(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	a := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	c := g.CreateNode(1, map[string]value.Value{"title": value.String("c")})
	b := pattern.Binding{"a": value.NodeRef(a.ID), "c": value.NodeRef(c.ID)}

	stmt := &ast.LinkStatement{
		Var:      "e",
		EdgeType: "depends_on",
		Targets:  []ast.Expr{&ast.VarRef{Name: "a"}, &ast.VarRef{Name: "c"}},
	}
	out, err := ex.Link(tx, stmt, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.EdgesCreated != 1 {
		t.Fatalf("expected 1 edge created, got %+v", out)
	}
	if _, ok := b["e"]; !ok {
		t.Fatal("LINK did not bind variable e")
	}
}

func TestLinkRejectsSelfEdge(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	a := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	b := pattern.Binding{"a": value.NodeRef(a.ID)}

	stmt := &ast.LinkStatement{
		EdgeType: "depends_on",
		Targets:  []ast.Expr{&ast.VarRef{Name: "a"}, &ast.VarRef{Name: "a"}},
	}
	_, err := ex.Link(tx, stmt, b, nil)
	if !mewerr.Is(err, mewerr.SelfEdge) {
		t.Fatalf("expected SelfEdge, got %v", err)
	}
}

func TestLinkRejectsCycle(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	a := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	b := g.CreateNode(1, map[string]value.Value{"title": value.String("b")})
	g.CreateEdge(1, []store.EntityID{{Kind: store.KindNode, ID: a.ID}, {Kind: store.KindNode, ID: b.ID}}, map[string]value.Value{})

	bind := pattern.Binding{"a": value.NodeRef(a.ID), "b": value.NodeRef(b.ID)}
	stmt := &ast.LinkStatement{
		EdgeType: "depends_on",
		Targets:  []ast.Expr{&ast.VarRef{Name: "b"}, &ast.VarRef{Name: "a"}},
	}
	_, err := ex.Link(tx, stmt, bind, nil)
	if !mewerr.Is(err, mewerr.AcyclicViolation) {
		t.Fatalf("expected AcyclicViolation, got %v", err)
	}
}

func TestKillCascadesIncidentEdge(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	a := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	c := g.CreateNode(1, map[string]value.Value{"title": value.String("c")})
	e := g.CreateEdge(1, []store.EntityID{{Kind: store.KindNode, ID: a.ID}, {Kind: store.KindNode, ID: c.ID}}, map[string]value.Value{})

	out, err := ex.Kill(tx, store.EntityID{Kind: store.KindNode, ID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if out.NodesDeleted != 1 || out.EdgesDeleted != 1 {
		t.Fatalf("expected cascade deletion of node and edge, got %+v", out)
	}
	if _, ok := g.GetEdge(e.ID); ok {
		t.Fatal("incident edge should have been deleted by KILL cascade")
	}
}

func TestSetUpdatesNodeAttr(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	n := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	b := pattern.Binding{"i": value.NodeRef(n.ID)}
	stmt := &ast.SetStatement{
		Target: &ast.VarRef{Name: "i"},
		Attrs: []ast.Assignment{
			{Attr: "priority", Expr: &ast.Lit{Value: int64(3)}},
		},
	}
	out, err := ex.Set(tx, stmt, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.NodesModified != 1 {
		t.Fatalf("expected 1 node modified, got %+v", out)
	}
	updated, _ := g.GetNode(n.ID)
	if updated.Attrs["priority"].AsInt() != 3 {
		t.Fatalf("priority not updated: %+v", updated.Attrs)
	}
}

func TestUnlinkRemovesEdgeKeepsNodes(t *testing.T) {
	reg, g, m := buildFixture(t)
	ex := New(g, reg, m)
	tx, _ := m.Begin()

	a := g.CreateNode(1, map[string]value.Value{"title": value.String("a")})
	c := g.CreateNode(1, map[string]value.Value{"title": value.String("c")})
	e := g.CreateEdge(1, []store.EntityID{{Kind: store.KindNode, ID: a.ID}, {Kind: store.KindNode, ID: c.ID}}, map[string]value.Value{})

	b := pattern.Binding{"e": value.EdgeRef(e.ID)}
	stmt := &ast.UnlinkStatement{Target: &ast.VarRef{Name: "e"}}
	out, err := ex.UnlinkStmt(tx, stmt, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.EdgesDeleted != 1 {
		t.Fatalf("expected 1 edge deleted, got %+v", out)
	}
	if _, ok := g.GetNode(a.ID); !ok {
		t.Fatal("UNLINK must not delete the target node")
	}
}
