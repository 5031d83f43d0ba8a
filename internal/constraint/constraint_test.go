package constraint

import (
	"testing"

	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/value"
)

func TestRequiredBuiltinFlagsMissingAttr(t *testing.T) {
	tid := int32(1)
	issue := &registry.TypeDef{ID: tid, Name: "Issue", Attrs: registry.NewAttrMap()}
	reg, err := registry.Build(registry.Definitions{Types: []*registry.TypeDef{issue}})
	if err != nil {
		t.Fatal(err)
	}
	g := store.New()
	g.CreateNode(tid, map[string]value.Value{})
	g.CreateNode(tid, map[string]value.Value{"title": value.String("has title")})

	c := New(reg)
	cd := &registry.ConstraintDef{Name: "required:title", TypeID: &tid, Hard: true}
	violations, err := c.Check(cd, store.NewView(g), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
	if !violations.HasHard() {
		t.Fatal("expected a hard violation")
	}
}

func TestNoSelfBuiltinFlagsSelfReferentialEdge(t *testing.T) {
	tid := int32(1)
	etid := int32(1)
	issue := &registry.TypeDef{ID: tid, Name: "Issue", Attrs: registry.NewAttrMap()}
	blocks := &registry.EdgeTypeDef{
		ID:   etid,
		Name: "blocks",
		Params: []registry.ParamDescriptor{
			{Name: "from", TypeConstraint: "any", Max: -1},
			{Name: "to", TypeConstraint: "any", Max: -1},
		},
	}
	reg, err := registry.Build(registry.Definitions{
		Types:     []*registry.TypeDef{issue},
		EdgeTypes: []*registry.EdgeTypeDef{blocks},
	})
	if err != nil {
		t.Fatal(err)
	}
	g := store.New()
	a := g.CreateNode(tid, map[string]value.Value{})
	b := g.CreateNode(tid, map[string]value.Value{})
	g.CreateEdge(etid, []store.EntityID{{Kind: store.KindNode, ID: a.ID}, {Kind: store.KindNode, ID: b.ID}}, nil)
	g.CreateEdge(etid, []store.EntityID{{Kind: store.KindNode, ID: a.ID}, {Kind: store.KindNode, ID: a.ID}}, nil)

	c := New(reg)
	cd := &registry.ConstraintDef{Name: "no_self", EdgeTypeID: &etid, Hard: true}
	violations, err := c.Check(cd, store.NewView(g), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected exactly the self-referential edge flagged, got %d: %v", len(violations), violations)
	}
	if !violations.HasHard() {
		t.Fatal("expected a hard violation")
	}
}

func TestUniqueBuiltinFlagsDuplicate(t *testing.T) {
	tid := int32(1)
	issue := &registry.TypeDef{ID: tid, Name: "Issue", Attrs: registry.NewAttrMap()}
	reg, err := registry.Build(registry.Definitions{Types: []*registry.TypeDef{issue}})
	if err != nil {
		t.Fatal(err)
	}
	g := store.New()
	g.CreateNode(tid, map[string]value.Value{"slug": value.String("dup")})
	g.CreateNode(tid, map[string]value.Value{"slug": value.String("dup")})

	c := New(reg)
	cd := &registry.ConstraintDef{Name: "unique:slug", TypeID: &tid, Hard: true}
	violations, err := c.Check(cd, store.NewView(g), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected both duplicate rows flagged, got %d", len(violations))
	}
}
