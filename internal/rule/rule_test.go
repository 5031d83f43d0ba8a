package rule

import (
	"testing"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/value"
)

func TestRunFiresUntilQuiescence(t *testing.T) {
	rd := &registry.RuleDef{ID: 1, Name: "escalate", Priority: 1}
	fireCount := 0

	find := func(_ *registry.RuleDef) ([]Firing, error) {
		if fireCount >= 3 {
			return nil, nil
		}
		return []Firing{{
			Rule:    rd,
			Binding: pattern.Binding{"n": value.Int(int64(fireCount))},
			Run: func(b pattern.Binding) (int, error) {
				fireCount++
				return 1, nil
			},
		}}, nil
	}

	eng := New([]*registry.RuleDef{rd}, find, DefaultLimits)
	actions, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}
	if actions != 3 {
		t.Fatalf("expected 3 actions, got %d", actions)
	}
}

func TestRunRespectsMaxActions(t *testing.T) {
	rd := &registry.RuleDef{ID: 1, Name: "loop", Priority: 1}
	n := 0
	find := func(_ *registry.RuleDef) ([]Firing, error) {
		n++
		return []Firing{{
			Rule:    rd,
			Binding: pattern.Binding{"n": value.Int(int64(n))},
			Run: func(b pattern.Binding) (int, error) {
				return 1, nil
			},
		}}, nil
	}
	eng := New([]*registry.RuleDef{rd}, find, Limits{MaxDepth: 1000, MaxActions: 2})
	_, err := eng.Run()
	if !mewerr.Is(err, mewerr.MaxActionsExceeded) {
		t.Fatalf("expected MaxActionsExceeded, got %v", err)
	}
}

func TestPriorityOrderingFiresHighestFirst(t *testing.T) {
	low := &registry.RuleDef{ID: 1, Name: "low", Priority: 1}
	high := &registry.RuleDef{ID: 2, Name: "high", Priority: 10}
	var order []string
	done := false

	find := func(rd *registry.RuleDef) ([]Firing, error) {
		if done {
			return nil, nil
		}
		return []Firing{{
			Rule:    rd,
			Binding: pattern.Binding{"x": value.Int(1)},
			Run: func(b pattern.Binding) (int, error) {
				order = append(order, rd.Name)
				if len(order) == 2 {
					done = true
				}
				return 1, nil
			},
		}}, nil
	}

	eng := New([]*registry.RuleDef{low, high}, find, DefaultLimits)
	if _, err := eng.Run(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "high" {
		t.Fatalf("expected high-priority rule first, got %v", order)
	}
}
