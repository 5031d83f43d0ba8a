// Package exec implements the pull-based Volcano executor (spec.md
// §4.4): it runs a internal/plan.Plan's operator stages in the order
// the spec fixes — sources, joins, filter (folded into the pattern
// ops), optional joins, aggregate, sort, limit/offset, project,
// distinct — and returns projected result rows.
package exec

import (
	"sort"

	"github.com/mewdb/mew/internal/ast"
	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/plan"
	"github.com/mewdb/mew/internal/value"
)

// Row is one projected output row: column name to value.
type Row map[string]value.Value

// Result is a statement's full result set (spec.md §6).
type Result struct {
	Columns []string
	Rows    []Row
}

// bundle pairs a projected row with the binding it was produced from,
// so ORDER BY can re-evaluate expressions against the source bindings
// (spec.md §4.4 step 6). For an aggregated group that is its first
// member's binding, so ORDER BY can reference group-key expressions but
// not aggregate aliases.
type bundle struct {
	row Row
	b   pattern.Binding
}

// Run executes a plan against a graph view (spec.md §4.4).
func Run(p *plan.Plan, g pattern.GraphView, eval *pattern.Evaluator, initial pattern.Binding, params map[string]value.Value) (*Result, error) {
	seed := []pattern.Binding{{}}
	if initial != nil {
		seed = []pattern.Binding{initial}
	}
	bindings, err := pattern.RunOps(p.Ops, g, seed, params)
	if err != nil {
		return nil, err
	}

	for _, opt := range p.Optionals {
		bindings, err = applyOptional(opt, g, bindings, params)
		if err != nil {
			return nil, err
		}
	}

	var bundles []bundle
	var cols []string
	if p.Aggregate != nil {
		bundles, cols, err = runAggregate(p.Aggregate, g, eval, bindings, params)
	} else {
		bundles, cols, err = project(p.Return, g, eval, bindings, params)
	}
	if err != nil {
		return nil, err
	}

	if len(p.OrderBy) > 0 {
		if err := sortBundles(bundles, p.OrderBy, g, eval, params); err != nil {
			return nil, err
		}
	}

	bundles = applyLimitOffset(bundles, p.Limit, p.Offset)

	rows := make([]Row, len(bundles))
	for i, bd := range bundles {
		rows[i] = bd.row
	}
	if p.Distinct {
		rows = distinctRows(rows, cols)
	}

	return &Result{Columns: cols, Rows: rows}, nil
}

// applyOptional runs one OPTIONAL MATCH clause per left-hand binding
// row; a row with no right-hand match keeps its own bindings and gets
// Null fillers for the optional clause's variables (spec.md §4.4 step 4).
func applyOptional(opt plan.OptionalStage, g pattern.GraphView, in []pattern.Binding, params map[string]value.Value) ([]pattern.Binding, error) {
	var out []pattern.Binding
	for _, b := range in {
		matches, err := pattern.RunOps(opt.Ops, g, []pattern.Binding{b}, params)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			filled := b.Clone()
			for _, v := range opt.Vars {
				filled[v] = value.Null
			}
			out = append(out, filled)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

// columnName derives a RETURN column's name: the explicit alias, or a
// rendering of the expression itself (spec.md §6 result columns).
func columnName(p ast.Projection, idx int) string {
	if p.Alias != "" {
		return p.Alias
	}
	switch e := p.Expr.(type) {
	case *ast.VarRef:
		return e.Name
	case *ast.AttrAccess:
		if ref, ok := e.Target.(*ast.VarRef); ok {
			return ref.Name + "." + e.Attr
		}
	case *ast.FuncCall:
		return e.Name
	}
	return columnFallback(idx)
}

func columnFallback(idx int) string {
	names := [...]string{"col0", "col1", "col2", "col3", "col4", "col5", "col6", "col7"}
	if idx < len(names) {
		return names[idx]
	}
	return "col"
}

// project evaluates the RETURN projections for every binding row
// (spec.md §4.4 step 8, run directly when there is no aggregation).
func project(projs []ast.Projection, g pattern.GraphView, eval *pattern.Evaluator, bindings []pattern.Binding, params map[string]value.Value) ([]bundle, []string, error) {
	cols := make([]string, len(projs))
	for i, p := range projs {
		cols[i] = columnName(p, i)
	}
	out := make([]bundle, 0, len(bindings))
	for _, b := range bindings {
		row := make(Row, len(projs))
		for i, p := range projs {
			v, err := eval.Eval(p.Expr, b, g, params)
			if err != nil {
				return nil, nil, err
			}
			row[cols[i]] = v
		}
		out = append(out, bundle{row: row, b: b})
	}
	return out, cols, nil
}

// runAggregate groups bindings by the non-aggregate projection
// expressions' values and reduces each group with every aggregate
// spec (spec.md §4.4). An empty source set still yields one row, with
// the empty-set boundary values the spec fixes per aggregate kind.
func runAggregate(agg *plan.Aggregation, g pattern.GraphView, eval *pattern.Evaluator, bindings []pattern.Binding, params map[string]value.Value) ([]bundle, []string, error) {
	cols := make([]string, 0, len(agg.GroupKeys)+len(agg.Aggs))
	for i, k := range agg.GroupKeys {
		cols = append(cols, columnName(k, i))
	}
	for _, a := range agg.Aggs {
		cols = append(cols, a.Alias)
	}

	type group struct {
		keyRow  Row
		b       pattern.Binding
		members []pattern.Binding
	}
	order := []string{}
	groups := map[string]*group{}

	keyOf := func(b pattern.Binding) (string, Row, error) {
		row := make(Row, len(agg.GroupKeys))
		key := ""
		for i, k := range agg.GroupKeys {
			v, err := eval.Eval(k.Expr, b, g, params)
			if err != nil {
				return "", nil, err
			}
			row[columnName(k, i)] = v
			key += v.String() + "\x1f"
		}
		return key, row, nil
	}

	if len(bindings) == 0 {
		groups[""] = &group{keyRow: Row{}, b: pattern.Binding{}}
		order = append(order, "")
	} else {
		for _, b := range bindings {
			key, row, err := keyOf(b)
			if err != nil {
				return nil, nil, err
			}
			gr, ok := groups[key]
			if !ok {
				gr = &group{keyRow: row, b: b}
				groups[key] = gr
				order = append(order, key)
			}
			gr.members = append(gr.members, b)
		}
	}

	out := make([]bundle, 0, len(order))
	for _, key := range order {
		gr := groups[key]
		row := make(Row, len(cols))
		for k, v := range gr.keyRow {
			row[k] = v
		}
		for _, a := range agg.Aggs {
			v, err := reduceAgg(a, g, eval, gr.members, params)
			if err != nil {
				return nil, nil, err
			}
			row[a.Alias] = v
		}
		out = append(out, bundle{row: row, b: gr.b})
	}
	return out, cols, nil
}

// reduceAgg applies one aggregate spec to a group's member bindings,
// implementing the empty-set boundary laws (spec.md §4.4): COUNT→0,
// SUM→Int(0), AVG/MIN/MAX→Null, COLLECT→[].
func reduceAgg(a plan.AggSpec, g pattern.GraphView, eval *pattern.Evaluator, members []pattern.Binding, params map[string]value.Value) (value.Value, error) {
	if a.Func == "count" && a.Arg == nil {
		return value.Int(int64(len(members))), nil
	}
	if a.Arg == nil {
		return value.Null, mewerr.New(mewerr.InvalidOperation, "aggregate %q requires an argument", a.Func)
	}

	vals := make([]value.Value, 0, len(members))
	seen := map[string]bool{}
	for _, b := range members {
		v, err := eval.Eval(a.Arg, b, g, params)
		if err != nil {
			return value.Null, err
		}
		if v.IsNull() && a.Func != "count" {
			continue
		}
		if a.Distinct {
			k := v.String()
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		vals = append(vals, v)
	}

	switch a.Func {
	case "count":
		return value.Int(int64(len(vals))), nil
	case "sum":
		if len(vals) == 0 {
			return value.Int(0), nil
		}
		sum := 0.0
		allInt := true
		for _, v := range vals {
			sum += v.AsFloat()
			if v.Kind() != value.KindInt {
				allInt = false
			}
		}
		if allInt {
			return value.Int(int64(sum)), nil
		}
		return value.Float(sum), nil
	case "avg":
		if len(vals) == 0 {
			return value.Null, nil
		}
		sum := 0.0
		for _, v := range vals {
			sum += v.AsFloat()
		}
		return value.Float(sum / float64(len(vals))), nil
	case "min":
		if len(vals) == 0 {
			return value.Null, nil
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if value.Less(v, m) {
				m = v
			}
		}
		return m, nil
	case "max":
		if len(vals) == 0 {
			return value.Null, nil
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if value.Less(m, v) {
				m = v
			}
		}
		return m, nil
	case "collect":
		if a.Limit != nil && len(vals) > *a.Limit {
			vals = vals[:*a.Limit]
		}
		return value.List(vals), nil
	default:
		return value.Null, mewerr.New(mewerr.UnknownFunction, "unknown aggregate function %q", a.Func)
	}
}

// sortBundles orders rows by ORDER BY terms, evaluated against each
// bundle's source binding, stable and Null-first (spec.md §4.4 step 6,
// via value.Compare).
func sortBundles(bundles []bundle, terms []ast.OrderTerm, g pattern.GraphView, eval *pattern.Evaluator, params map[string]value.Value) error {
	keys := make([][]value.Value, len(bundles))
	for i, bd := range bundles {
		row := make([]value.Value, len(terms))
		for j, term := range terms {
			v, err := eval.Eval(term.Expr, bd.b, g, params)
			if err != nil {
				return err
			}
			row[j] = v
		}
		keys[i] = row
	}
	idx := make([]int, len(bundles))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		for k, term := range terms {
			c := value.Compare(keys[a][k], keys[b][k])
			if c == 0 {
				continue
			}
			if term.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	orig := append([]bundle(nil), bundles...)
	for i, j := range idx {
		bundles[i] = orig[j]
	}
	return nil
}

// applyLimitOffset skips Offset rows then keeps at most Limit rows
// (spec.md §4.4 step 7).
func applyLimitOffset(bundles []bundle, limit, offset *int) []bundle {
	if offset != nil {
		if *offset >= len(bundles) {
			return nil
		}
		bundles = bundles[*offset:]
	}
	if limit != nil && *limit < len(bundles) {
		bundles = bundles[:*limit]
	}
	return bundles
}

// distinctRows removes rows whose full projected column set duplicates
// an earlier row's, preserving order (spec.md §4.4 step 9).
func distinctRows(rows []Row, cols []string) []Row {
	seen := map[string]bool{}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		key := ""
		for _, c := range cols {
			key += r[c].String() + "\x1f"
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
