package plan

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/registry"
)

// WalkPlan is a lowered WALK statement (spec.md §4.4: "WALK becomes a
// TransitiveClosure traversal with min/max depth and direction").
type WalkPlan struct {
	From        ast.Expr
	EdgeTypeIDs []int32
	Direction   ast.Direction
	Min, Max    int
	Until       ast.Expr
	ReturnMode  ast.WalkReturnMode
	Return      []ast.Projection
	Alias       string
}

// BuildWalk lowers a WalkStatement, resolving its edge-type names against
// the registry up front so the executor never has to.
func BuildWalk(stmt *ast.WalkStatement, reg *registry.Registry) (*WalkPlan, error) {
	ids := make([]int32, 0, len(stmt.EdgeTypes))
	for _, name := range stmt.EdgeTypes {
		et, ok := reg.EdgeTypeByName(name)
		if !ok {
			return nil, mewerr.New(mewerr.UnknownEdgeType, "unknown edge type %q", name)
		}
		ids = append(ids, et.ID)
	}
	return &WalkPlan{
		From:        stmt.From,
		EdgeTypeIDs: ids,
		Direction:   stmt.Direction,
		Min:         stmt.Transitive.Min,
		Max:         stmt.Transitive.Max,
		Until:       stmt.Until,
		ReturnMode:  stmt.ReturnMode,
		Return:      stmt.Return,
		Alias:       stmt.Alias,
	}, nil
}
