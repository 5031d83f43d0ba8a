package plan

import (
	"testing"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/registry"
)

func walkFixtureReg(t *testing.T) *registry.Registry {
	t.Helper()
	issue := &registry.TypeDef{ID: 1, Name: "Issue", Attrs: registry.NewAttrMap()}
	dependsOn := &registry.EdgeTypeDef{
		ID:   1,
		Name: "depends_on",
		Params: []registry.ParamDescriptor{
			{Name: "from", TypeConstraint: "Issue", Max: -1},
			{Name: "to", TypeConstraint: "Issue", Max: -1},
		},
		Attrs: registry.NewAttrMap(),
	}
	reg, err := registry.Build(registry.Definitions{
		Types:     []*registry.TypeDef{issue},
		EdgeTypes: []*registry.EdgeTypeDef{dependsOn},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestBuildWalkResolvesEdgeTypes(t *testing.T) {
	reg := walkFixtureReg(t)
	stmt := &ast.WalkStatement{
		From:       &ast.Param{Name: "start"},
		EdgeTypes:  []string{"depends_on"},
		Direction:  ast.DirOutbound,
		Transitive: ast.Transitive{Min: 1, Max: 3},
		ReturnMode: ast.WalkReturnNodes,
		Alias:      "n",
	}
	wp, err := BuildWalk(stmt, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(wp.EdgeTypeIDs) != 1 || wp.EdgeTypeIDs[0] != 1 {
		t.Fatalf("expected edge type id [1], got %v", wp.EdgeTypeIDs)
	}
	if wp.Min != 1 || wp.Max != 3 {
		t.Fatalf("expected min/max 1/3, got %d/%d", wp.Min, wp.Max)
	}
	if wp.Alias != "n" {
		t.Fatalf("expected alias %q, got %q", "n", wp.Alias)
	}
}

func TestBuildWalkUnknownEdgeType(t *testing.T) {
	reg := walkFixtureReg(t)
	stmt := &ast.WalkStatement{
		From:      &ast.Param{Name: "start"},
		EdgeTypes: []string{"nonexistent"},
	}
	if _, err := BuildWalk(stmt, reg); err == nil {
		t.Fatal("expected error for unknown edge type")
	}
}
