package exec

import (
	"testing"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/plan"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/value"
)

func execFixture(t *testing.T) (*registry.Registry, *store.Graph, *store.View, *pattern.Evaluator) {
	t.Helper()
	issue := &registry.TypeDef{ID: 1, Name: "Issue", Attrs: registry.NewAttrMap()}
	issue.Attrs.Set("priority", &registry.AttrDescriptor{Name: "priority", ScalarType: "Int"})
	issue.Attrs.Set("status", &registry.AttrDescriptor{Name: "status", ScalarType: "String"})
	reg, err := registry.Build(registry.Definitions{Types: []*registry.TypeDef{issue}})
	if err != nil {
		t.Fatal(err)
	}
	g := store.New()
	return reg, g, store.NewView(g), pattern.NewEvaluator(reg)
}

func matchPlan(t *testing.T, reg *registry.Registry, eval *pattern.Evaluator, stmt *ast.MatchStatement) *plan.Plan {
	t.Helper()
	p, err := plan.Build(stmt, reg, eval)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunProjectsPlainRows(t *testing.T) {
	reg, g, view, eval := execFixture(t)
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(3)})
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(1)})

	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"}, Alias: "p"},
		},
	}
	res, err := Run(matchPlan(t, reg, eval, stmt), view, eval, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || len(res.Columns) != 1 || res.Columns[0] != "p" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunAggregateCount(t *testing.T) {
	reg, g, view, eval := execFixture(t)
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(3)})
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(1)})

	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.FuncCall{Name: "count", Args: nil}, Alias: "n"},
		},
	}
	res, err := Run(matchPlan(t, reg, eval, stmt), view, eval, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["n"].AsInt() != 2 {
		t.Fatalf("expected count 2, got %+v", res.Rows)
	}
}

func TestRunAggregateEmptySetBoundaryLaws(t *testing.T) {
	reg, _, view, eval := execFixture(t)

	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.FuncCall{Name: "count", Args: nil}, Alias: "c"},
			{Expr: &ast.FuncCall{Name: "sum", Args: []ast.Expr{&ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"}}}, Alias: "s"},
			{Expr: &ast.FuncCall{Name: "avg", Args: []ast.Expr{&ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"}}}, Alias: "a"},
			{Expr: &ast.FuncCall{Name: "collect", Args: []ast.Expr{&ast.VarRef{Name: "i"}}}, Alias: "coll"},
		},
	}
	res, err := Run(matchPlan(t, reg, eval, stmt), view, eval, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected exactly one group row for empty input, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row["c"].AsInt() != 0 {
		t.Errorf("expected count=0, got %v", row["c"])
	}
	if row["s"].AsInt() != 0 {
		t.Errorf("expected sum=0, got %v", row["s"])
	}
	if !row["a"].IsNull() {
		t.Errorf("expected avg=Null, got %v", row["a"])
	}
	if len(row["coll"].AsList()) != 0 {
		t.Errorf("expected collect=[], got %v", row["coll"])
	}
}

func TestRunOrderByDescendingAndLimitOffset(t *testing.T) {
	reg, g, view, eval := execFixture(t)
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(1)})
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(3)})
	g.CreateNode(1, map[string]value.Value{"priority": value.Int(2)})

	limit, offset := 1, 1
	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"}, Alias: "p"},
		},
		OrderBy: []ast.OrderTerm{
			{Expr: &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"}, Descending: true},
		},
		Limit:  &limit,
		Offset: &offset,
	}
	res, err := Run(matchPlan(t, reg, eval, stmt), view, eval, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["p"].AsInt() != 2 {
		t.Fatalf("expected single row with priority 2 (second-highest), got %+v", res.Rows)
	}
}

func TestRunDistinctDedupsRows(t *testing.T) {
	reg, g, view, eval := execFixture(t)
	g.CreateNode(1, map[string]value.Value{"status": value.String("open")})
	g.CreateNode(1, map[string]value.Value{"status": value.String("open")})
	g.CreateNode(1, map[string]value.Value{"status": value.String("closed")})

	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "status"}, Alias: "s"},
		},
		Distinct: true,
	}
	res, err := Run(matchPlan(t, reg, eval, stmt), view, eval, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 distinct rows, got %d: %+v", len(res.Rows), res.Rows)
	}
}
