// Package registry implements MEW's immutable schema registry (spec.md
// §4.1): node types, edge types, attribute descriptors, constraint and
// rule descriptors, and the subtype/supertype closure index. The
// compiler that lowers ontology source text into the Definitions this
// package builds from is an external collaborator (spec.md §1); registry
// only does the one-shot build and the read-only lookups afterward.
package registry

import (
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/value"
)

// AttrDescriptor is one attribute's full validation contract (spec.md §3).
type AttrDescriptor struct {
	Name       string
	ScalarType string // "Int", "Float", "String", "Bool", "Timestamp", "Duration", "NodeRef", "EdgeRef", or an alias name
	Required   bool
	Nullable   bool
	Unique     bool
	Default    ast.Expr // nil if no default
	Min, Max   *float64
	LenMin     *int
	LenMax     *int
	Match      string // regex source, "" if unset
	Format     string // "email" | "url" | "uuid" | "slug" | ""
	In         []value.Value
}

// OnKillMode controls what happens to an edge when one of its targets is
// killed (spec.md §6 edge modifiers).
type OnKillMode int

const (
	OnKillUnlink OnKillMode = iota
	OnKillCascade
	OnKillPrevent
)

// ParamDescriptor is one positional parameter of an edge type.
type ParamDescriptor struct {
	Name           string
	TypeConstraint string // type name, or "any"
	Min, Max       int    // Max == -1 means unbounded ("*")
	OnKill         OnKillMode
}

// TypeDef is a node type (spec.md §3).
type TypeDef struct {
	ID         int32
	Name       string
	Parents    []string
	ParentIDs  []int32
	Attrs      *orderedmap.OrderedMap[string, *AttrDescriptor]
	IsAbstract bool
	IsSealed   bool
}

// EdgeTypeDef is an edge type (spec.md §3).
type EdgeTypeDef struct {
	ID        int32
	Name      string
	Params    []ParamDescriptor
	Attrs     *orderedmap.OrderedMap[string, *AttrDescriptor]
	Acyclic   bool
	Unique    bool
	NoSelf    bool
	Symmetric bool
	Indexed   bool
}

// ConstraintDef mirrors spec.md §4.1's constraint descriptor. Condition is
// an opaque AST fragment (an ast.Expr over pattern bindings), not a string.
type ConstraintDef struct {
	ID         int32
	Name       string
	TypeID     *int32
	EdgeTypeID *int32
	Hard       bool
	Deferred   bool
	Pattern    *ast.Pattern
	Condition  ast.Expr
}

func (c *ConstraintDef) Severity() mewerr.Severity {
	if c.Hard {
		return mewerr.SeverityHard
	}
	return mewerr.SeveritySoft
}

// RuleDef mirrors spec.md §4.1's rule descriptor.
type RuleDef struct {
	ID         int32
	Name       string
	TypeID     *int32
	EdgeTypeID *int32
	Auto       bool
	Priority   int
	Pattern    *ast.Pattern
	Production ast.Statement
}

// AliasDef is a `type Alias = Base [modifiers]` definition.
type AliasDef struct {
	Name string
	Base string
	Attr AttrDescriptor // modifiers, Name left blank — merged onto the using attribute
}

// Definitions is the one-shot input to Build: the output of the external
// ontology compiler.
type Definitions struct {
	Types       []*TypeDef
	EdgeTypes   []*EdgeTypeDef
	Aliases     []*AliasDef
	Constraints []*ConstraintDef
	Rules       []*RuleDef
}

// Registry is the immutable, process-lifetime schema (spec.md §4.1, §3).
type Registry struct {
	typesByName     map[string]*TypeDef
	typesByID       map[int32]*TypeDef
	edgeTypesByName map[string]*EdgeTypeDef
	edgeTypesByID   map[int32]*EdgeTypeDef
	aliasesByName   map[string]*AliasDef

	supertypes map[int32]map[int32]bool // transitive, includes self
	subtypes   map[int32]map[int32]bool // transitive, includes self

	constraintsByType     map[int32][]*ConstraintDef
	constraintsByEdgeType map[int32][]*ConstraintDef
	rulesByType           map[int32][]*RuleDef
	rulesByEdgeType       map[int32][]*RuleDef
	allRules              []*RuleDef
}

// Build constructs an immutable Registry from Definitions, performing the
// failure-mode checks named in spec.md §4.1.
func Build(defs Definitions) (*Registry, error) {
	r := &Registry{
		typesByName:           make(map[string]*TypeDef),
		typesByID:             make(map[int32]*TypeDef),
		edgeTypesByName:       make(map[string]*EdgeTypeDef),
		edgeTypesByID:         make(map[int32]*EdgeTypeDef),
		aliasesByName:         make(map[string]*AliasDef),
		supertypes:            make(map[int32]map[int32]bool),
		subtypes:              make(map[int32]map[int32]bool),
		constraintsByType:     make(map[int32][]*ConstraintDef),
		constraintsByEdgeType: make(map[int32][]*ConstraintDef),
		rulesByType:           make(map[int32][]*RuleDef),
		rulesByEdgeType:       make(map[int32][]*RuleDef),
	}

	for _, t := range defs.Types {
		if _, dup := r.typesByName[t.Name]; dup {
			return nil, mewerr.New(mewerr.DuplicateTypeName, "type %q already defined", t.Name)
		}
		r.typesByName[t.Name] = t
		r.typesByID[t.ID] = t
	}
	for _, et := range defs.EdgeTypes {
		if _, dup := r.edgeTypesByName[et.Name]; dup {
			return nil, mewerr.New(mewerr.DuplicateEdgeName, "edge type %q already defined", et.Name)
		}
		r.edgeTypesByName[et.Name] = et
		r.edgeTypesByID[et.ID] = et
	}
	for _, a := range defs.Aliases {
		r.aliasesByName[a.Name] = a
	}

	for _, t := range defs.Types {
		t.ParentIDs = t.ParentIDs[:0]
		for _, pname := range t.Parents {
			pt, ok := r.typesByName[pname]
			if !ok {
				return nil, mewerr.New(mewerr.UnknownParentType, "type %q: unknown parent %q", t.Name, pname)
			}
			t.ParentIDs = append(t.ParentIDs, pt.ID)
		}
	}

	if err := r.buildClosure(defs.Types); err != nil {
		return nil, err
	}

	for _, et := range defs.EdgeTypes {
		for _, p := range et.Params {
			if p.TypeConstraint != "any" {
				if _, ok := r.typesByName[p.TypeConstraint]; !ok {
					return nil, mewerr.New(mewerr.UnknownAttrType, "edge type %q param %q: unknown type %q", et.Name, p.Name, p.TypeConstraint)
				}
			}
			if p.Max != -1 && p.Max < p.Min {
				return nil, mewerr.New(mewerr.InvalidCardinality, "edge type %q param %q: max < min", et.Name, p.Name)
			}
		}
	}

	for _, c := range defs.Constraints {
		if c.TypeID != nil {
			r.constraintsByType[*c.TypeID] = append(r.constraintsByType[*c.TypeID], c)
		}
		if c.EdgeTypeID != nil {
			r.constraintsByEdgeType[*c.EdgeTypeID] = append(r.constraintsByEdgeType[*c.EdgeTypeID], c)
		}
	}
	for _, rule := range defs.Rules {
		if rule.TypeID != nil {
			r.rulesByType[*rule.TypeID] = append(r.rulesByType[*rule.TypeID], rule)
		}
		if rule.EdgeTypeID != nil {
			r.rulesByEdgeType[*rule.EdgeTypeID] = append(r.rulesByEdgeType[*rule.EdgeTypeID], rule)
		}
		r.allRules = append(r.allRules, rule)
	}
	byPriorityDesc := func(list []*RuleDef) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	}
	for _, list := range r.rulesByType {
		byPriorityDesc(list)
	}
	for _, list := range r.rulesByEdgeType {
		byPriorityDesc(list)
	}

	return r, nil
}

// buildClosure computes transitive supertype/subtype sets and rejects
// cyclic inheritance (spec.md §4.1).
func (r *Registry) buildClosure(types []*TypeDef) error {
	color := make(map[int32]int) // 0=white,1=gray,2=black
	var visit func(id int32) error
	visit = func(id int32) error {
		if color[id] == 2 {
			return nil
		}
		if color[id] == 1 {
			return mewerr.New(mewerr.CyclicInheritance, "cyclic inheritance detected at type id %d", id)
		}
		color[id] = 1
		t := r.typesByID[id]
		supers := map[int32]bool{id: true}
		for _, pid := range t.ParentIDs {
			if err := visit(pid); err != nil {
				return err
			}
			supers[pid] = true
			for anc := range r.supertypes[pid] {
				supers[anc] = true
			}
		}
		r.supertypes[id] = supers
		color[id] = 2
		return nil
	}
	for _, t := range types {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	for id := range r.supertypes {
		r.subtypes[id] = map[int32]bool{}
	}
	for id, supers := range r.supertypes {
		for s := range supers {
			r.subtypes[s][id] = true
		}
	}
	return nil
}

// TypeByName resolves a node type by name (spec.md §4.1 by-name lookup).
func (r *Registry) TypeByName(name string) (*TypeDef, bool) {
	t, ok := r.typesByName[name]
	return t, ok
}

// TypeByID resolves a node type by its registry-assigned id.
func (r *Registry) TypeByID(id int32) (*TypeDef, bool) {
	t, ok := r.typesByID[id]
	return t, ok
}

// EdgeTypeByName resolves an edge type by name.
func (r *Registry) EdgeTypeByName(name string) (*EdgeTypeDef, bool) {
	et, ok := r.edgeTypesByName[name]
	return et, ok
}

// EdgeTypeByID resolves an edge type by id.
func (r *Registry) EdgeTypeByID(id int32) (*EdgeTypeDef, bool) {
	et, ok := r.edgeTypesByID[id]
	return et, ok
}

// IsSubtype returns true if a == b or b is a (transitive) supertype of a
// (spec.md §4.1).
func (r *Registry) IsSubtype(a, b int32) bool {
	return r.supertypes[a][b]
}

// Supertypes returns the transitive, self-inclusive set of a type's
// supertype ids.
func (r *Registry) Supertypes(id int32) map[int32]bool { return r.supertypes[id] }

// Subtypes returns the transitive, self-inclusive set of a type's subtype
// ids.
func (r *Registry) Subtypes(id int32) map[int32]bool { return r.subtypes[id] }

// ResolveAttr looks up an attribute descriptor, own-first then
// breadth-first through parents (spec.md §3 "Type definition").
func (r *Registry) ResolveAttr(typeID int32, name string) (*AttrDescriptor, bool) {
	t, ok := r.typesByID[typeID]
	if !ok {
		return nil, false
	}
	if d, ok := t.Attrs.Get(name); ok {
		return d, true
	}
	queue := append([]int32(nil), t.ParentIDs...)
	seen := map[int32]bool{typeID: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		pt, ok := r.typesByID[id]
		if !ok {
			continue
		}
		if d, ok := pt.Attrs.Get(name); ok {
			return d, true
		}
		queue = append(queue, pt.ParentIDs...)
	}
	return nil, false
}

// AllAttrs returns every attribute descriptor visible on a type (own plus
// inherited), own attributes taking precedence over inherited ones of the
// same name.
func (r *Registry) AllAttrs(typeID int32) map[string]*AttrDescriptor {
	out := make(map[string]*AttrDescriptor)
	var walk func(id int32, seen map[int32]bool)
	walk = func(id int32, seen map[int32]bool) {
		if seen[id] {
			return
		}
		seen[id] = true
		t, ok := r.typesByID[id]
		if !ok {
			return
		}
		for _, pid := range t.ParentIDs {
			walk(pid, seen)
		}
		for pair := t.Attrs.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = pair.Value
		}
	}
	walk(typeID, map[int32]bool{})
	return out
}

// ConstraintsForType returns constraints attached to a node type.
func (r *Registry) ConstraintsForType(typeID int32) []*ConstraintDef {
	return r.constraintsByType[typeID]
}

// ConstraintsForEdgeType returns constraints attached to an edge type.
func (r *Registry) ConstraintsForEdgeType(edgeTypeID int32) []*ConstraintDef {
	return r.constraintsByEdgeType[edgeTypeID]
}

// RulesForType returns rules attached to a node type, sorted by
// descending priority (spec.md §4.1).
func (r *Registry) RulesForType(typeID int32) []*RuleDef {
	return r.rulesByType[typeID]
}

// RulesForEdgeType returns rules attached to an edge type, sorted by
// descending priority.
func (r *Registry) RulesForEdgeType(edgeTypeID int32) []*RuleDef {
	return r.rulesByEdgeType[edgeTypeID]
}

// AllRules returns every rule in the registry, in declaration order. Used
// by internal/engine to seed the rule engine's auto-fire set (spec.md
// §4.6).
func (r *Registry) AllRules() []*RuleDef {
	return r.allRules
}

// NewAttrMap constructs the ordered attribute map used by TypeDef.Attrs
// and EdgeTypeDef.Attrs, keeping declaration order for deterministic
// INSPECT output (spec.md §6).
func NewAttrMap() *orderedmap.OrderedMap[string, *AttrDescriptor] {
	return orderedmap.New[string, *AttrDescriptor]()
}

// String renders a TypeDef for diagnostics.
func (t *TypeDef) String() string {
	return fmt.Sprintf("type(%d:%s)", t.ID, t.Name)
}

// String renders an EdgeTypeDef for diagnostics.
func (et *EdgeTypeDef) String() string {
	return fmt.Sprintf("edgetype(%d:%s/%d)", et.ID, et.Name, len(et.Params))
}
