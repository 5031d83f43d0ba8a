package value

import "testing"

func TestEqualNullSemantics(t *testing.T) {
	if !Equal(Null, Null) {
		t.Fatal("Null = Null should be true")
	}
	if Equal(Null, Int(0)) {
		t.Fatal("Null = 0 should be false")
	}
	if Equal(Int(1), Null) {
		t.Fatal("1 = Null should be false")
	}
}

func TestEqualNumericPromotion(t *testing.T) {
	if !Equal(Int(3), Float(3.0)) {
		t.Fatal("Int(3) should equal Float(3.0)")
	}
	if Equal(Int(3), Float(3.1)) {
		t.Fatal("Int(3) should not equal Float(3.1)")
	}
}

func TestCompareOrdering(t *testing.T) {
	vals := []Value{Int(3), Null, Int(1), Float(2)}
	SortValues(vals)
	want := []Value{Null, Int(1), Float(2), Int(3)}
	for i := range want {
		if !Equal(vals[i], want[i]) {
			t.Fatalf("index %d: got %v want %v", i, vals[i], want[i])
		}
	}
}

func TestHashable(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null, true},
		{Bool(true), true},
		{Int(1), true},
		{String("x"), true},
		{Float(1.0), false},
		{NodeRef(1), false},
		{List([]Value{Int(1)}), false},
	}
	for _, c := range cases {
		if got := c.v.Hashable(); got != c.want {
			t.Errorf("%v.Hashable() = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestListEquality(t *testing.T) {
	a := List([]Value{Int(1), String("a")})
	b := List([]Value{Int(1), String("a")})
	c := List([]Value{Int(1), String("b")})
	if !Equal(a, b) {
		t.Fatal("identical lists should be equal")
	}
	if Equal(a, c) {
		t.Fatal("differing lists should not be equal")
	}
}
