// Package value implements MEW's primitive value domain (spec.md §3): a
// sum type over Null, Bool, Int, Float, String, Timestamp, Duration,
// NodeRef, EdgeRef, and List, with the comparison and promotion rules the
// pattern evaluator and planner both depend on.
package value

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind tags which alternative of the Value sum type is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindDuration
	KindNodeRef
	KindEdgeRef
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindTimestamp:
		return "Timestamp"
	case KindDuration:
		return "Duration"
	case KindNodeRef:
		return "NodeRef"
	case KindEdgeRef:
		return "EdgeRef"
	case KindList:
		return "List"
	default:
		return "Unknown"
	}
}

// Value is an immutable tagged union over the primitive kinds above.
// Only the field matching Kind is meaningful.
type Value struct {
	kind Kind
	b    bool
	i    int64 // Int, Timestamp (ms since epoch), Duration (ms), NodeRef, EdgeRef
	f    float64
	s    string
	list []Value
}

// Null is the universal null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func NodeRef(id int64) Value { return Value{kind: KindNodeRef, i: id} }
func EdgeRef(id int64) Value { return Value{kind: KindEdgeRef, i: id} }
func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Timestamp wraps a time.Time as i64 milliseconds since the Unix epoch.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, i: t.UnixMilli()}
}

// TimestampMillis constructs a Timestamp directly from ms-since-epoch.
func TimestampMillis(ms int64) Value { return Value{kind: KindTimestamp, i: ms} }

// Duration wraps a time.Duration as i64 milliseconds.
func Duration(d time.Duration) Value {
	return Value{kind: KindDuration, i: d.Milliseconds()}
}

// DurationMillis constructs a Duration directly from milliseconds.
func DurationMillis(ms int64) Value { return Value{kind: KindDuration, i: ms} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) AsBool() bool { return v.b }
func (v Value) AsInt() int64 { return v.i }
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
func (v Value) AsString() string { return v.s }
func (v Value) AsNodeID() int64  { return v.i }
func (v Value) AsEdgeID() int64  { return v.i }
func (v Value) AsList() []Value  { return v.list }
func (v Value) AsTime() time.Time {
	return time.UnixMilli(v.i).UTC()
}
func (v Value) AsDuration() time.Duration {
	return time.Duration(v.i) * time.Millisecond
}

// IsNumeric reports whether the value is Int or Float, the two kinds that
// cross-compare and cross-arithmetic via promotion (spec.md §3).
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	case KindDuration:
		return v.AsDuration().String()
	case KindNodeRef:
		return fmt.Sprintf("#node:%d", v.i)
	case KindEdgeRef:
		return fmt.Sprintf("#edge:%d", v.i)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "?"
	}
}

// Equal implements value equality per spec.md §3/§4.3: Null = Null is
// true; Null = non-null is false; Int/Float compare numerically; List
// compares element-wise.
func Equal(a, b Value) bool {
	if a.kind == KindNull && b.kind == KindNull {
		return true
	}
	if a.kind == KindNull || b.kind == KindNull {
		return false
	}
	if a.IsNumeric() && b.IsNumeric() {
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindTimestamp, KindDuration, KindNodeRef, KindEdgeRef:
		return a.i == b.i
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare returns -1/0/1 for ordering purposes (ORDER BY, sort index keys).
// Null sorts before every non-null value (spec.md §3). Comparing
// incompatible non-numeric kinds falls back to comparing their Kind tags
// so a stable total order always exists for Sort.
func Compare(a, b Value) int {
	if a.kind == KindNull && b.kind == KindNull {
		return 0
	}
	if a.kind == KindNull {
		return -1
	}
	if b.kind == KindNull {
		return 1
	}
	if a.IsNumeric() && b.IsNumeric() {
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindTimestamp, KindDuration, KindNodeRef, KindEdgeRef:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case KindList:
		n := len(a.list)
		if len(b.list) < n {
			n = len(b.list)
		}
		for i := 0; i < n; i++ {
			if c := Compare(a.list[i], b.list[i]); c != 0 {
				return c
			}
		}
		return len(a.list) - len(b.list)
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b, using Compare.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

// SortValues sorts a slice of Values ascending using Compare; stable so
// ties preserve input order (spec.md §4.4 multi-key sort requires this).
func SortValues(vs []Value) {
	sort.SliceStable(vs, func(i, j int) bool { return Less(vs[i], vs[j]) })
}

// Hashable reports whether a value kind participates in exact-match
// attribute indexing (spec.md §4.2): Null, Bool, Int, String hash; Float,
// Timestamp, Duration, NodeRef, EdgeRef, List do not.
func (v Value) Hashable() bool {
	switch v.kind {
	case KindNull, KindBool, KindInt, KindString:
		return true
	default:
		return false
	}
}

// CanonicalKey returns a stable map key for indexable values, used by the
// attribute exact-match index (spec.md §4.2). Panics if !Hashable(); the
// caller is expected to have checked.
func (v Value) CanonicalKey() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		panic(fmt.Sprintf("value: %s is not hashable", v.kind))
	}
}

// TypeName returns the scalar type name used in attribute descriptors and
// error messages (e.g. "Int", "String").
func (v Value) TypeName() string { return v.kind.String() }
