// Package constraint implements the constraint checker (spec.md §4.6):
// running a constraint's attached pattern, evaluating its condition per
// binding row, and collecting hard/soft violations. Built-in shorthands
// (`required:<attr>`, `unique:<attr>`, `no_self`) are expanded to the
// same check without needing a full pattern+condition pair.
package constraint

import (
	"strings"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/obs"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/value"
)

// Checker evaluates constraint descriptors against a graph view.
type Checker struct {
	Reg  *registry.Registry
	Eval *pattern.Evaluator

	// Metrics, when non-nil, counts every violation CheckAll collects,
	// by severity.
	Metrics *obs.Metrics
}

// New constructs a Checker bound to reg.
func New(reg *registry.Registry) *Checker {
	return &Checker{Reg: reg, Eval: pattern.NewEvaluator(reg)}
}

// Check runs one constraint against the graph view, returning the
// violations produced (spec.md §4.6: the constraint holds iff the
// condition evaluates true — or Null, treated as pass — for every
// binding row the pattern produces).
func (c *Checker) Check(cd *registry.ConstraintDef, g pattern.GraphView, params map[string]value.Value) (mewerr.ViolationList, error) {
	if builtin, ok := builtinName(cd.Name); ok {
		return c.checkBuiltin(builtin, cd, g)
	}
	if cd.Pattern == nil || cd.Condition == nil {
		return nil, nil
	}
	ops, err := pattern.Compile(cd.Pattern, c.Reg, c.Eval)
	if err != nil {
		return nil, err
	}
	rows, err := pattern.RunOps(ops, g, nil, params)
	if err != nil {
		return nil, err
	}
	var violations mewerr.ViolationList
	for _, row := range rows {
		v, err := c.Eval.Eval(cd.Condition, row, g, params)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			continue // Null is treated as pass ("unknown does not violate")
		}
		if v.Kind() == value.KindBool && !v.AsBool() {
			violations = append(violations, mewerr.Violation{
				Name:     cd.Name,
				Message:  "condition evaluated false for a matching binding",
				Severity: cd.Severity(),
			})
		}
	}
	return violations, nil
}

// CheckAll runs every constraint attached to typeID against a single
// entity's attributes (immediate checking, spec.md §4.6).
func (c *Checker) CheckAll(defs []*registry.ConstraintDef, g pattern.GraphView, params map[string]value.Value) (mewerr.ViolationList, error) {
	var all mewerr.ViolationList
	for _, cd := range defs {
		vs, err := c.Check(cd, g, params)
		if err != nil {
			return nil, err
		}
		all = append(all, vs...)
	}
	if c.Metrics != nil {
		for _, v := range all {
			c.Metrics.ConstraintViolations.WithLabelValues(string(v.Severity)).Inc()
		}
	}
	return all, nil
}

// builtinKind tags one of the built-in constraint shorthands.
type builtinKind int

const (
	builtinRequired builtinKind = iota
	builtinUnique
	builtinNoSelf
)

// builtinName recognizes `required:<attr>`, `unique:<attr>`, and
// `no_self` constraint names (spec.md §4.6).
func builtinName(name string) (kind struct {
	Kind builtinKind
	Attr string
}, ok bool) {
	switch {
	case strings.HasPrefix(name, "required:"):
		return struct {
			Kind builtinKind
			Attr string
		}{builtinRequired, strings.TrimPrefix(name, "required:")}, true
	case strings.HasPrefix(name, "unique:"):
		return struct {
			Kind builtinKind
			Attr string
		}{builtinUnique, strings.TrimPrefix(name, "unique:")}, true
	case name == "no_self":
		return struct {
			Kind builtinKind
			Attr string
		}{builtinNoSelf, ""}, true
	}
	return kind, false
}

// checkBuiltin evaluates a shorthand constraint. required/unique are
// already enforced by the mutation executor at SPAWN/SET time (spec.md
// §4.5 step 5); here they are re-asserted against the live store so a
// deferred builtin constraint still has teeth at commit.
func (c *Checker) checkBuiltin(b struct {
	Kind builtinKind
	Attr string
}, cd *registry.ConstraintDef, g pattern.GraphView) (mewerr.ViolationList, error) {
	if b.Kind == builtinNoSelf {
		return checkNoSelf(cd, g), nil
	}
	if cd.TypeID == nil {
		return nil, nil
	}
	var violations mewerr.ViolationList
	for _, id := range g.NodesOfType(*cd.TypeID) {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		switch b.Kind {
		case builtinRequired:
			if v, ok := n.Attr(b.Attr); !ok || v.IsNull() {
				violations = append(violations, mewerr.Violation{
					Name:     cd.Name,
					Message:  "required attribute " + b.Attr + " is missing",
					Severity: cd.Severity(),
				})
			}
		case builtinUnique:
			v, ok := n.Attr(b.Attr)
			if !ok || v.IsNull() {
				continue
			}
			ids, lookupOK := g.LookupExact(*cd.TypeID, b.Attr, v)
			if lookupOK && len(ids) > 1 {
				violations = append(violations, mewerr.Violation{
					Name:     cd.Name,
					Message:  "duplicate value for unique attribute " + b.Attr,
					Severity: cd.Severity(),
				})
			}
		}
	}
	return violations, nil
}

// checkNoSelf re-asserts the no_self shorthand against every live edge of
// cd.EdgeTypeID: a violation if any two of an edge's targets are the same
// entity (mirrors mew-constraint/src/checker.rs's check_no_self, which
// walks every target pair rather than just comparing to the first, so a
// higher-arity edge with a repeat anywhere among its targets is caught;
// the immediate check in internal/mutate's Link path uses the same
// pairwise notion via hasRepeatedTarget).
func checkNoSelf(cd *registry.ConstraintDef, g pattern.GraphView) mewerr.ViolationList {
	if cd.EdgeTypeID == nil {
		return nil
	}
	var violations mewerr.ViolationList
	for _, id := range g.EdgesOfType(*cd.EdgeTypeID) {
		e, ok := g.GetEdge(id)
		if !ok {
			continue
		}
		arity := e.Arity()
	pairs:
		for i := 0; i < arity; i++ {
			ti, ok := e.TargetAt(i)
			if !ok {
				continue
			}
			for j := i + 1; j < arity; j++ {
				tj, ok := e.TargetAt(j)
				if ok && value.Equal(ti, tj) {
					violations = append(violations, mewerr.Violation{
						Name:     cd.Name,
						Message:  "self-referential edge not allowed",
						Severity: cd.Severity(),
					})
					break pairs
				}
			}
		}
	}
	return violations
}
