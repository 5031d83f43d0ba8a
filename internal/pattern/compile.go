package pattern

import (
	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/value"
)

// Compile lowers a pattern into a primitive op sequence (spec.md §4.3).
// Edge-join order follows pattern order as written; the compiler prefers
// an IndexScan over a plain ScanNodes when the WHERE clause carries an
// equality on an indexed (type, attr) for that node variable.
func Compile(pat *ast.Pattern, reg *registry.Registry, eval *Evaluator) ([]Op, error) {
	var ops []Op
	seen := map[string]bool{}
	indexable := indexableEqualities(pat.Where)

	for _, elem := range pat.Elements {
		switch el := elem.(type) {
		case *ast.NodeElem:
			if seen[el.Var] {
				continue
			}
			seen[el.Var] = true
			if el.Type == "" {
				ops = append(ops, ScanNodes{Var: el.Var, HasType: false})
				continue
			}
			t, ok := reg.TypeByName(el.Type)
			if !ok {
				return nil, mewerr.New(mewerr.UnknownType, "unknown type %q", el.Type)
			}
			if hit, ok := indexable[el.Var]; ok {
				ops = append(ops, IndexScan{Var: el.Var, TypeID: t.ID, Attr: hit.attr, Value: hit.val})
			} else {
				ops = append(ops, ScanNodes{Var: el.Var, TypeID: t.ID, HasType: true})
			}

		case *ast.EdgeElem:
			et, ok := reg.EdgeTypeByName(el.EdgeType)
			if !ok {
				return nil, unknownEdgeTypeErr(el.EdgeType)
			}
			if el.Transitive != nil {
				if len(el.Vars) != 2 {
					return nil, mewerr.New(mewerr.InvalidOperation, "transitive edge pattern %q requires exactly 2 endpoints", el.EdgeType)
				}
				ops = append(ops, TransitiveEdge{
					EdgeTypeID: et.ID,
					FromVar:    el.Vars[0],
					ToVar:      el.Vars[1],
					Min:        el.Transitive.Min,
					Max:        el.Transitive.Max,
				})
				seen[el.Vars[1]] = true
				continue
			}
			allBound := true
			for _, v := range el.Vars {
				if v != "_" && !seen[v] {
					allBound = false
				}
			}
			if allBound && el.EdgeVar == "" {
				ops = append(ops, CheckEdge{EdgeTypeID: et.ID, Vars: el.Vars})
			} else {
				ops = append(ops, FollowEdge{EdgeTypeID: et.ID, Vars: el.Vars, EdgeVar: el.EdgeVar, Reg: reg})
				for _, v := range el.Vars {
					if v != "_" {
						seen[v] = true
					}
				}
				if el.EdgeVar != "" {
					seen[el.EdgeVar] = true
				}
			}
		}
	}

	if pat.Where != nil {
		ops = append(ops, Filter{Expr: pat.Where, Eval: eval})
	}
	return ops, nil
}

type indexHit struct {
	attr string
	val  value.Value
}

// indexableEqualities walks a WHERE expression (a top-level conjunction
// of ANDs) looking for `var.attr = <literal>` equalities, returning the
// attribute name and value keyed by var so Compile can swap ScanNodes for
// IndexScan.
func indexableEqualities(where ast.Expr) map[string]indexHit {
	out := map[string]indexHit{}
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		bin, ok := e.(*ast.BinOp)
		if !ok {
			return
		}
		if bin.Op == ast.OpAnd {
			walk(bin.Left)
			walk(bin.Right)
			return
		}
		if bin.Op != ast.OpEq {
			return
		}
		if v, attr, lit, ok := asAttrEquality(bin.Left, bin.Right); ok {
			out[v] = indexHit{attr: attr, val: lit}
		} else if v, attr, lit, ok := asAttrEquality(bin.Right, bin.Left); ok {
			out[v] = indexHit{attr: attr, val: lit}
		}
	}
	walk(where)
	return out
}

// asAttrEquality recognizes `var.attr = <literal>` and returns the
// variable name, attribute name, and literal value as a value.Value.
func asAttrEquality(lhs, rhs ast.Expr) (varName, attr string, lit value.Value, ok bool) {
	access, isAttr := lhs.(*ast.AttrAccess)
	if !isAttr {
		return "", "", value.Null, false
	}
	ref, isVar := access.Target.(*ast.VarRef)
	if !isVar {
		return "", "", value.Null, false
	}
	l, isLit := rhs.(*ast.Lit)
	if !isLit {
		return "", "", value.Null, false
	}
	v, ok := litToValue(l.Value)
	if !ok || !v.Hashable() {
		return "", "", value.Null, false
	}
	return ref.Name, access.Attr, v, true
}

// litToValue converts an ast.Lit's raw Go value into a value.Value,
// covering the literal kinds the grammar allows (spec.md §6).
func litToValue(raw any) (value.Value, bool) {
	switch x := raw.(type) {
	case nil:
		return value.Null, true
	case bool:
		return value.Bool(x), true
	case int64:
		return value.Int(x), true
	case int:
		return value.Int(int64(x)), true
	case float64:
		return value.Float(x), true
	case string:
		return value.String(x), true
	default:
		return value.Null, false
	}
}
