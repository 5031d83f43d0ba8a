package engine

import (
	"testing"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
)

func buildFixtureRegistry(t *testing.T) (*registry.Registry, int32) {
	t.Helper()
	issue := &registry.TypeDef{ID: 1, Name: "Issue", Attrs: registry.NewAttrMap()}
	issue.Attrs.Set("priority", &registry.AttrDescriptor{Name: "priority", ScalarType: "Int"})
	issue.Attrs.Set("flagged", &registry.AttrDescriptor{Name: "flagged", ScalarType: "Bool"})

	issueType := issue.ID

	rulePattern := &ast.Pattern{
		Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}},
		Where: &ast.BinOp{
			Op:    ast.OpGte,
			Left:  &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"},
			Right: &ast.Lit{Value: int64(5)},
		},
	}
	flagRule := &registry.RuleDef{
		ID:      1,
		Name:    "flag_high_priority",
		TypeID:  &issueType,
		Auto:    true,
		Pattern: rulePattern,
		Production: &ast.SetStatement{
			Target: &ast.VarRef{Name: "i"},
			Attrs:  []ast.Assignment{{Attr: "flagged", Expr: &ast.Lit{Value: true}}},
		},
	}

	constraintPattern := &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}}
	nonNegative := &registry.ConstraintDef{
		ID:       1,
		Name:     "priority_nonneg",
		TypeID:   &issueType,
		Hard:     true,
		Deferred: true,
		Pattern:  constraintPattern,
		Condition: &ast.BinOp{
			Op:    ast.OpGte,
			Left:  &ast.AttrAccess{Target: &ast.VarRef{Name: "i"}, Attr: "priority"},
			Right: &ast.Lit{Value: int64(0)},
		},
	}

	reg, err := registry.Build(registry.Definitions{
		Types:       []*registry.TypeDef{issue},
		Rules:       []*registry.RuleDef{flagRule},
		Constraints: []*registry.ConstraintDef{nonNegative},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg, issueType
}

func spawnIssue(t *testing.T, e *Engine, priority int64) int64 {
	t.Helper()
	tx, err := e.Txn.Begin()
	if err != nil {
		t.Fatal(err)
	}
	stmt := &ast.SpawnStatement{
		Var:  "i",
		Type: "Issue",
		Attrs: []ast.Assignment{
			{Attr: "priority", Expr: &ast.Lit{Value: priority}},
		},
	}
	out, err := e.Mutate.Spawn(tx, stmt, pattern.Binding{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Txn.Commit(); err != nil {
		t.Fatal(err)
	}
	return out.CreatedNodeID
}

func TestEngineAutoRuleFiresOnCommit(t *testing.T) {
	reg, _ := buildFixtureRegistry(t)
	e, err := New(reg, Options{AutoCommit: true})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	id := spawnIssue(t, e, 7)

	n, ok := e.Graph.GetNode(id)
	if !ok {
		t.Fatalf("node %d not found", id)
	}
	flagged, ok := n.Attr("flagged")
	if !ok || !flagged.AsBool() {
		t.Fatalf("expected the auto rule to set flagged=true, got %+v", n.Attrs)
	}
}

func TestEngineAutoRuleDoesNotFireBelowThreshold(t *testing.T) {
	reg, _ := buildFixtureRegistry(t)
	e, err := New(reg, Options{AutoCommit: true})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	id := spawnIssue(t, e, 1)

	n, ok := e.Graph.GetNode(id)
	if !ok {
		t.Fatalf("node %d not found", id)
	}
	if _, ok := n.Attr("flagged"); ok {
		t.Fatalf("expected flagged to remain unset for a low-priority issue, got %+v", n.Attrs)
	}
}

func TestEngineDeferredConstraintRollsBackOnViolation(t *testing.T) {
	reg, _ := buildFixtureRegistry(t)
	e, err := New(reg, Options{AutoCommit: true})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	tx, err := e.Txn.Begin()
	if err != nil {
		t.Fatal(err)
	}
	stmt := &ast.SpawnStatement{
		Var:  "i",
		Type: "Issue",
		Attrs: []ast.Assignment{
			{Attr: "priority", Expr: &ast.Lit{Value: int64(-1)}},
		},
	}
	out, err := e.Mutate.Spawn(tx, stmt, pattern.Binding{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Txn.Commit(); err == nil {
		t.Fatal("expected commit to fail on a negative-priority issue")
	}
	if _, ok := e.Graph.GetNode(out.CreatedNodeID); ok {
		t.Fatal("expected the rolled-back node to be gone from the graph")
	}
}

func TestEngineRunMatchReturnsProjectedRows(t *testing.T) {
	reg, _ := buildFixtureRegistry(t)
	e, err := New(reg, Options{AutoCommit: true})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	spawnIssue(t, e, 3)
	spawnIssue(t, e, 9)

	stmt := &ast.MatchStatement{
		Pattern: &ast.Pattern{Elements: []ast.PatternElem{&ast.NodeElem{Var: "i", Type: "Issue"}}},
		Return: []ast.Projection{
			{Expr: &ast.FuncCall{Name: "count"}, Alias: "n"},
		},
	}
	res, err := e.RunMatch(stmt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["n"].AsInt() != 2 {
		t.Fatalf("expected count 2, got %+v", res.Rows)
	}
}
