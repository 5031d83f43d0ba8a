package pattern

import (
	"strings"
	"time"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/value"
)

// Evaluator is the pure expression evaluator (spec.md §4.3): a function
// over (expr, bindings, graph view, params) -> (value, error). It carries
// the registry so EXISTS sub-patterns can be compiled on demand.
type Evaluator struct {
	Reg *registry.Registry
}

// NewEvaluator constructs an Evaluator bound to reg, used to compile
// EXISTS/NOT EXISTS sub-patterns.
func NewEvaluator(reg *registry.Registry) *Evaluator {
	return &Evaluator{Reg: reg}
}

// Eval evaluates expr against binding b using graph view g for .attr
// access and EXISTS sub-patterns, and params for $name lookups.
func (ev *Evaluator) Eval(expr ast.Expr, b Binding, g GraphView, params map[string]value.Value) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.Lit:
		v, ok := litToValue(e.Value)
		if !ok {
			return value.Null, mewerr.New(mewerr.TypeError, "unsupported literal type").WithSpan(spanOf(e.Span))
		}
		return v, nil

	case *ast.ListLit:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := ev.Eval(it, b, g, params)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.List(items), nil

	case *ast.VarRef:
		v, ok := b[e.Name]
		if !ok {
			return value.Null, mewerr.New(mewerr.UnboundVariable, "unbound variable %q", e.Name).WithSpan(spanOf(e.Span))
		}
		return v, nil

	case *ast.Param:
		v, ok := params[e.Name]
		if !ok {
			return value.Null, mewerr.New(mewerr.MissingParameter, "missing parameter $%s", e.Name).WithSpan(spanOf(e.Span))
		}
		return v, nil

	case *ast.AttrAccess:
		target, err := ev.Eval(e.Target, b, g, params)
		if err != nil {
			return value.Null, err
		}
		return ev.readAttr(target, e.Attr, g)

	case *ast.BinOp:
		return ev.evalBinOp(e, b, g, params)

	case *ast.UnaryOp:
		return ev.evalUnaryOp(e, b, g, params)

	case *ast.FuncCall:
		return ev.evalFuncCall(e, b, g, params)

	case *ast.ExistsExpr:
		return ev.evalExists(e, b, g, params)

	default:
		return value.Null, mewerr.New(mewerr.InvalidOperation, "unsupported expression node")
	}
}

func spanOf(s *ast.Span) *mewerr.Span {
	if s == nil {
		return nil
	}
	return &mewerr.Span{Line: s.Line, Col: s.Col}
}

func (ev *Evaluator) readAttr(target value.Value, attr string, g GraphView) (value.Value, error) {
	switch target.Kind() {
	case value.KindNodeRef:
		n, ok := g.GetNode(target.AsNodeID())
		if !ok {
			return value.Null, mewerr.New(mewerr.NodeNotFound, "node #%d not found", target.AsNodeID())
		}
		if attr == "_type" {
			return value.Int(int64(n.Type())), nil
		}
		if attr == "_id" {
			return target, nil
		}
		v, ok := n.Attr(attr)
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case value.KindEdgeRef:
		e, ok := g.GetEdge(target.AsEdgeID())
		if !ok {
			return value.Null, mewerr.New(mewerr.EdgeNotFound, "edge #%d not found", target.AsEdgeID())
		}
		if attr == "_type" {
			return value.Int(int64(e.Type())), nil
		}
		if attr == "_id" {
			return target, nil
		}
		v, ok := e.Attr(attr)
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case value.KindNull:
		return value.Null, nil
	default:
		return value.Null, mewerr.New(mewerr.TypeError, "cannot access attribute %q on a %s", attr, target.Kind())
	}
}

func (ev *Evaluator) evalBinOp(e *ast.BinOp, b Binding, g GraphView, params map[string]value.Value) (value.Value, error) {
	l, err := ev.Eval(e.Left, b, g, params)
	if err != nil {
		return value.Null, err
	}
	// Short-circuit AND/OR before evaluating the right side.
	if e.Op == ast.OpAnd && !l.IsNull() && l.Kind() == value.KindBool && !l.AsBool() {
		return value.Bool(false), nil
	}
	if e.Op == ast.OpOr && !l.IsNull() && l.Kind() == value.KindBool && l.AsBool() {
		return value.Bool(true), nil
	}
	r, err := ev.Eval(e.Right, b, g, params)
	if err != nil {
		return value.Null, err
	}

	switch e.Op {
	case ast.OpEq:
		return value.Bool(value.Equal(l, r)), nil
	case ast.OpNeq:
		return value.Bool(!value.Equal(l, r)), nil
	case ast.OpLt:
		return value.Bool(value.Less(l, r)), nil
	case ast.OpLte:
		return value.Bool(!value.Less(r, l)), nil
	case ast.OpGt:
		return value.Bool(value.Less(r, l)), nil
	case ast.OpGte:
		return value.Bool(!value.Less(l, r)), nil
	case ast.OpAnd:
		return boolOp(l, r, func(a, c bool) bool { return a && c })
	case ast.OpOr:
		return boolOp(l, r, func(a, c bool) bool { return a || c })
	case ast.OpCoalesce:
		if l.IsNull() {
			return r, nil
		}
		return l, nil
	case ast.OpConcat:
		if l.IsNull() || r.IsNull() {
			return value.Null, nil
		}
		return value.String(l.String() + r.String()), nil
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return arith(e.Op, l, r)
	default:
		return value.Null, mewerr.New(mewerr.InvalidOperation, "unsupported binary operator")
	}
}

func boolOp(l, r value.Value, f func(a, b bool) bool) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null, nil
	}
	if l.Kind() != value.KindBool || r.Kind() != value.KindBool {
		return value.Null, mewerr.New(mewerr.TypeError, "AND/OR require Bool operands")
	}
	return value.Bool(f(l.AsBool(), r.AsBool())), nil
}

func arith(op ast.BinaryOperator, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null, nil
	}
	if !l.IsNumeric() || !r.IsNumeric() {
		return value.Null, mewerr.New(mewerr.TypeError, "arithmetic requires numeric operands")
	}
	if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
		a, c := l.AsInt(), r.AsInt()
		switch op {
		case ast.OpAdd:
			return value.Int(a + c), nil
		case ast.OpSub:
			return value.Int(a - c), nil
		case ast.OpMul:
			return value.Int(a * c), nil
		case ast.OpDiv:
			if c == 0 {
				return value.Null, mewerr.New(mewerr.DivisionByZero, "division by zero")
			}
			return value.Int(a / c), nil
		}
	}
	a, c := l.AsFloat(), r.AsFloat()
	switch op {
	case ast.OpAdd:
		return value.Float(a + c), nil
	case ast.OpSub:
		return value.Float(a - c), nil
	case ast.OpMul:
		return value.Float(a * c), nil
	case ast.OpDiv:
		if c == 0 {
			return value.Null, mewerr.New(mewerr.DivisionByZero, "division by zero")
		}
		return value.Float(a / c), nil
	}
	return value.Null, mewerr.New(mewerr.InvalidOperation, "unsupported arithmetic operator")
}

func (ev *Evaluator) evalUnaryOp(e *ast.UnaryOp, b Binding, g GraphView, params map[string]value.Value) (value.Value, error) {
	v, err := ev.Eval(e.Operand, b, g, params)
	if err != nil {
		return value.Null, err
	}
	switch e.Op {
	case ast.OpNeg:
		if v.IsNull() {
			return value.Null, nil
		}
		if !v.IsNumeric() {
			return value.Null, mewerr.New(mewerr.TypeError, "unary - requires a numeric operand")
		}
		if v.Kind() == value.KindInt {
			return value.Int(-v.AsInt()), nil
		}
		return value.Float(-v.AsFloat()), nil
	case ast.OpNot:
		if v.IsNull() {
			return value.Null, nil
		}
		if v.Kind() != value.KindBool {
			return value.Null, mewerr.New(mewerr.TypeError, "NOT requires a Bool operand")
		}
		return value.Bool(!v.AsBool()), nil
	default:
		return value.Null, mewerr.New(mewerr.InvalidOperation, "unsupported unary operator")
	}
}

func (ev *Evaluator) evalExists(e *ast.ExistsExpr, b Binding, g GraphView, params map[string]value.Value) (value.Value, error) {
	// NOTE: EXISTS compiles its sub-pattern fresh per call since the
	// binding context (which vars are already bound) differs call to
	// call; the compiled ops are not cached anywhere.
	ops, err := Compile(e.Pattern, ev.Reg, ev)
	if err != nil {
		return value.Null, err
	}
	op := NotExists{Sub: ops, Negate: e.Negate}
	out, err := op.Apply(g, []Binding{b.Clone()}, params)
	if err != nil {
		return value.Null, err
	}
	return value.Bool(len(out) > 0), nil
}

// evalFuncCall dispatches the built-in scalar function set (spec.md
// §4.3). Aggregate functions (count/sum/avg/min/max/collect in
// projection position) are handled by the planner/executor, not here.
// Inside a WHERE/Filter expression count/sum/avg/collect are unknown
// functions (UnknownFunction), and min/max are the binary scalar forms,
// so a call with other than two arguments is an InvalidOperation.
func (ev *Evaluator) evalFuncCall(e *ast.FuncCall, b Binding, g GraphView, params map[string]value.Value) (value.Value, error) {
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.Eval(a, b, g, params)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	name := strings.ToLower(e.Name)
	switch name {
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null, nil
	case "upper":
		return strFn(args, strings.ToUpper)
	case "lower":
		return strFn(args, strings.ToLower)
	case "trim":
		return strFn(args, strings.TrimSpace)
	case "length":
		if len(args) != 1 {
			return value.Null, arityErr(name)
		}
		if args[0].IsNull() {
			return value.Null, nil
		}
		switch args[0].Kind() {
		case value.KindString:
			return value.Int(int64(len(args[0].AsString()))), nil
		case value.KindList:
			return value.Int(int64(len(args[0].AsList()))), nil
		default:
			return value.Null, mewerr.New(mewerr.TypeError, "length() requires String or List")
		}
	case "starts_with":
		return strPredicate(args, strings.HasPrefix)
	case "ends_with":
		return strPredicate(args, strings.HasSuffix)
	case "contains":
		return strPredicate(args, strings.Contains)
	case "substring":
		return substring(args)
	case "abs":
		return numFn(args, func(f float64) float64 { return abs(f) })
	case "floor":
		return numFn(args, floorFn)
	case "ceil":
		return numFn(args, ceilFn)
	case "round":
		return numFn(args, roundFn)
	case "min":
		return minMax(args, true)
	case "max":
		return minMax(args, false)
	case "year", "month", "day", "hour", "minute", "second":
		return datePart(name, args)
	case "now":
		return value.Timestamp(time.Now().UTC()), nil
	case "is_null":
		if len(args) != 1 {
			return value.Null, arityErr(name)
		}
		return value.Bool(args[0].IsNull()), nil
	case "in":
		if len(args) != 2 || args[1].Kind() != value.KindList {
			return value.Null, mewerr.New(mewerr.InvalidOperation, "in(x, list) requires a List second argument")
		}
		for _, item := range args[1].AsList() {
			if value.Equal(args[0], item) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return value.Null, mewerr.New(mewerr.UnknownFunction, "unknown function %q", e.Name)
	}
}

func arityErr(name string) error {
	return mewerr.New(mewerr.InvalidOperation, "wrong number of arguments to %s()", name)
}

func strFn(args []value.Value, f func(string) string) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, arityErr("string function")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Kind() != value.KindString {
		return value.Null, mewerr.New(mewerr.TypeError, "expected a String argument")
	}
	return value.String(f(args[0].AsString())), nil
}

func strPredicate(args []value.Value, f func(s, sub string) bool) (value.Value, error) {
	if len(args) != 2 {
		return value.Null, arityErr("string predicate")
	}
	if args[0].IsNull() || args[1].IsNull() {
		return value.Null, nil
	}
	if args[0].Kind() != value.KindString || args[1].Kind() != value.KindString {
		return value.Null, mewerr.New(mewerr.TypeError, "expected String arguments")
	}
	return value.Bool(f(args[0].AsString(), args[1].AsString())), nil
}

func substring(args []value.Value) (value.Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return value.Null, arityErr("substring")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	s := []rune(args[0].AsString())
	start := int(args[1].AsInt())
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		start = len(s)
	}
	end := len(s)
	if len(args) == 3 {
		end = start + int(args[2].AsInt())
		if end > len(s) {
			end = len(s)
		}
	}
	return value.String(string(s[start:end])), nil
}

func numFn(args []value.Value, f func(float64) float64) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, arityErr("numeric function")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if !args[0].IsNumeric() {
		return value.Null, mewerr.New(mewerr.TypeError, "expected a numeric argument")
	}
	return value.Float(f(args[0].AsFloat())), nil
}

func minMax(args []value.Value, wantMin bool) (value.Value, error) {
	if len(args) != 2 {
		return value.Null, arityErr("min/max")
	}
	if args[0].IsNull() || args[1].IsNull() {
		return value.Null, nil
	}
	less := value.Less(args[0], args[1])
	if less == wantMin {
		return args[0], nil
	}
	return args[1], nil
}

func datePart(name string, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, arityErr(name)
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Kind() != value.KindTimestamp {
		return value.Null, mewerr.New(mewerr.TypeError, "%s() requires a Timestamp argument", name)
	}
	t := args[0].AsTime()
	switch name {
	case "year":
		return value.Int(int64(t.Year())), nil
	case "month":
		return value.Int(int64(t.Month())), nil
	case "day":
		return value.Int(int64(t.Day())), nil
	case "hour":
		return value.Int(int64(t.Hour())), nil
	case "minute":
		return value.Int(int64(t.Minute())), nil
	case "second":
		return value.Int(int64(t.Second())), nil
	default:
		return value.Null, mewerr.New(mewerr.UnknownFunction, "unknown date part %q", name)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func floorFn(f float64) float64 {
	i := int64(f)
	if f < 0 && float64(i) != f {
		i--
	}
	return float64(i)
}

func ceilFn(f float64) float64 {
	i := int64(f)
	if f > 0 && float64(i) != f {
		i++
	}
	return float64(i)
}

func roundFn(f float64) float64 {
	if f >= 0 {
		return floorFn(f + 0.5)
	}
	return ceilFn(f - 0.5)
}
